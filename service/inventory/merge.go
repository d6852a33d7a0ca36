package inventory

import (
	"bytes"
	"encoding/json"
)

// MergeStats counts what a merge pass dropped.
type MergeStats struct {
	Collections       int
	MalformedData     int
	MalformedRecords  int
	DuplicatesDropped int
}

// Merge folds the records of all collections into one deduplicated
// inventory. See MergeWithStats.
func Merge(collections []RawCollection) Inventory {
	inv, _ := MergeWithStats(collections)
	return inv
}

// MergeWithStats scans collections in order, listed records before owned
// records within each collection, and keeps only the first occurrence of
// every DedupKey. A key seen as listed anywhere earlier in the scan is never
// added to the owned set. Malformed collections and records are skipped.
func MergeWithStats(collections []RawCollection) (Inventory, MergeStats) {
	inv := EmptyInventory()
	stats := MergeStats{Collections: len(collections)}
	seen := make(map[DedupKey]struct{})

	add := func(raws []json.RawMessage, m Membership) {
		for _, msg := range raws {
			raw, ok := decodeRecord(msg)
			if !ok {
				stats.MalformedRecords++
				continue
			}
			key := DedupKey{ContractAddress: raw.ContractAddress, TokenID: string(raw.Identifier)}
			if _, dup := seen[key]; dup {
				stats.DuplicatesDropped++
				continue
			}
			seen[key] = struct{}{}

			rec := Normalize(raw, m)
			if m == Listed {
				inv.Listed = append(inv.Listed, rec)
			} else {
				inv.Owned = append(inv.Owned, rec)
			}
		}
	}

	for _, c := range collections {
		data, ok := decodeCollectionData(c.Data)
		if !ok {
			stats.MalformedData++
			continue
		}
		add(data.ListedNFTs, Listed)
		add(data.OwnerNFTs, Owned)
	}

	return inv, stats
}

func decodeCollectionData(msg json.RawMessage) (collectionData, bool) {
	var data collectionData
	if !isObject(msg) {
		return data, false
	}
	if err := json.Unmarshal(msg, &data); err != nil {
		return collectionData{}, false
	}
	return data, true
}

func decodeRecord(msg json.RawMessage) (RawNftRecord, bool) {
	var raw RawNftRecord
	if !isObject(msg) {
		return raw, false
	}
	if err := json.Unmarshal(msg, &raw); err != nil {
		return RawNftRecord{}, false
	}
	if raw.ContractAddress == "" || raw.Identifier == "" {
		return RawNftRecord{}, false
	}
	return raw, true
}

func isObject(msg json.RawMessage) bool {
	b := bytes.TrimSpace(msg)
	return len(b) > 0 && b[0] == '{'
}
