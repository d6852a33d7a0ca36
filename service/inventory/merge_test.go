package inventory

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collection(t *testing.T, listed, owned []map[string]interface{}) RawCollection {
	t.Helper()
	data := map[string]interface{}{}
	if listed != nil {
		data["listedNFTs"] = listed
	}
	if owned != nil {
		data["ownerNFTs"] = owned
	}
	b, err := json.Marshal(data)
	require.NoError(t, err)
	return RawCollection{Data: b}
}

func nft(contract, id string) map[string]interface{} {
	return map[string]interface{}{"contract_address": contract, "identifier": id}
}

func keys(records []NftRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Key().String()
	}
	return out
}

func TestMerge_Scenario(t *testing.T) {
	listed := nft("0xC1", "1")
	listed["price"] = "1000000000000000000"

	cols := []RawCollection{
		collection(t, []map[string]interface{}{listed}, []map[string]interface{}{nft("0xC2", "5")}),
		collection(t, []map[string]interface{}{}, []map[string]interface{}{nft("0xC1", "1")}),
	}

	inv := Merge(cols)

	require.Len(t, inv.Listed, 1)
	require.Len(t, inv.Owned, 1)
	assert.Equal(t, "0xC1", inv.Listed[0].ContractAddress)
	assert.Equal(t, "1", inv.Listed[0].TokenID)
	require.NotNil(t, inv.Listed[0].Price)
	assert.Equal(t, "1.0", inv.Listed[0].Price.Decimal)
	assert.Equal(t, "0xC2", inv.Owned[0].ContractAddress)
	assert.Equal(t, "5", inv.Owned[0].TokenID)
	assert.Nil(t, inv.Owned[0].Price)
}

func TestMerge_ListedPriorityAcrossCollections(t *testing.T) {
	cols := []RawCollection{
		collection(t, []map[string]interface{}{nft("0xA", "7")}, nil),
		collection(t, nil, []map[string]interface{}{nft("0xA", "7"), nft("0xB", "8")}),
	}

	inv, stats := MergeWithStats(cols)

	assert.Equal(t, []string{"0xA-7"}, keys(inv.Listed))
	assert.Equal(t, []string{"0xB-8"}, keys(inv.Owned))
	assert.Equal(t, 1, stats.DuplicatesDropped)
}

func TestMerge_FirstSeenWinsWithinSet(t *testing.T) {
	first := nft("0xA", "1")
	first["name"] = "first"
	second := nft("0xA", "1")
	second["name"] = "second"

	cols := []RawCollection{
		collection(t, []map[string]interface{}{first, nft("0xA", "2"), second}, nil),
	}

	inv := Merge(cols)

	assert.Equal(t, []string{"0xA-1", "0xA-2"}, keys(inv.Listed))
	assert.Equal(t, "first", inv.Listed[0].Name)
}

func TestMerge_OwnedBeforeLaterListed(t *testing.T) {
	// An owned record in an earlier collection is seen before a listed one
	// in a later collection; the scan order decides.
	cols := []RawCollection{
		collection(t, nil, []map[string]interface{}{nft("0xA", "1")}),
		collection(t, []map[string]interface{}{nft("0xA", "1")}, nil),
	}

	inv := Merge(cols)

	assert.Empty(t, inv.Listed)
	assert.Equal(t, []string{"0xA-1"}, keys(inv.Owned))
}

func TestMerge_MalformedInputIsSkipped(t *testing.T) {
	cols := []RawCollection{
		{},                                  // missing data
		{Data: json.RawMessage(`null`)},     // null data
		{Data: json.RawMessage(`"oops"`)},   // not an object
		{Data: json.RawMessage(`{"listedNFTs": 5}`)},
		{Data: json.RawMessage(`{"listedNFTs": [
			{"contract_address": "0xA", "identifier": 1},
			{"identifier": "2"},
			{"contract_address": "0xB"},
			"garbage",
			{"contract_address": "0xC", "identifier": {"x": 1}},
			{"contract_address": "0xD", "identifier": "4", "price": true}
		], "ownerNFTs": [{"contract_address": "0xE", "identifier": "5"}]}`)},
	}

	inv, stats := MergeWithStats(cols)

	assert.Equal(t, []string{"0xA-1"}, keys(inv.Listed))
	assert.Equal(t, []string{"0xE-5"}, keys(inv.Owned))
	assert.Equal(t, 4, stats.MalformedData)
	assert.Equal(t, 5, stats.MalformedRecords)
}

func TestMerge_Empty(t *testing.T) {
	inv := Merge(nil)
	assert.NotNil(t, inv.Listed)
	assert.NotNil(t, inv.Owned)
	assert.Equal(t, 0, inv.Len())
}

func TestMerge_IdempotentAndKeyExclusive(t *testing.T) {
	cols := []RawCollection{
		collection(t,
			[]map[string]interface{}{nft("0xA", "1"), nft("0xB", "2"), nft("0xA", "1")},
			[]map[string]interface{}{nft("0xB", "2"), nft("0xC", "3")},
		),
		collection(t,
			[]map[string]interface{}{nft("0xC", "3"), nft("0xD", "4")},
			[]map[string]interface{}{nft("0xA", "1"), nft("0xE", "5"), nft("0xD", "4")},
		),
		{Data: json.RawMessage(`{}`)},
		collection(t, nil, []map[string]interface{}{nft("0xE", "5"), nft("0xF", "6")}),
	}

	first := Merge(cols)
	second := Merge(cols)
	assert.Equal(t, first, second)

	seen := map[DedupKey]int{}
	for _, r := range append(append([]NftRecord{}, first.Listed...), first.Owned...) {
		seen[r.Key()]++
	}
	for key, n := range seen {
		assert.Equal(t, 1, n, "key %s appears %d times", key, n)
	}

	assert.Equal(t, []string{"0xA-1", "0xB-2", "0xD-4"}, keys(first.Listed))
	assert.Equal(t, []string{"0xC-3", "0xE-5", "0xF-6"}, keys(first.Owned))
}

func TestInventoryFind(t *testing.T) {
	inv := Merge([]RawCollection{
		collection(t, []map[string]interface{}{nft("0xA", "1")}, []map[string]interface{}{nft("0xB", "2")}),
	})

	rec, ok := inv.Find(DedupKey{ContractAddress: "0xB", TokenID: "2"})
	require.True(t, ok)
	assert.Equal(t, Owned, rec.Membership)

	_, ok = inv.Find(DedupKey{ContractAddress: "0xZ", TokenID: "9"})
	assert.False(t, ok)
}

func TestInventoryFind_IgnoresContractCase(t *testing.T) {
	inv := Merge([]RawCollection{
		collection(t, []map[string]interface{}{nft("0xAbCd", "1")}, nil),
	})

	rec, ok := inv.Find(DedupKey{ContractAddress: "0xabcd", TokenID: "1"})
	require.True(t, ok)
	assert.Equal(t, Listed, rec.Membership)
	assert.Equal(t, "0xAbCd", rec.ContractAddress)

	_, ok = inv.Find(DedupKey{ContractAddress: "0xABCD", TokenID: "01"})
	assert.False(t, ok, "token ids are compared exactly")
}
