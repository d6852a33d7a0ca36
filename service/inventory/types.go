package inventory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

// Membership says whether a record is currently for sale or only held.
type Membership string

const (
	Listed Membership = "listed"
	Owned  Membership = "owned"
)

// NativeCurrency is the sentinel currency address for the chain's native coin.
const NativeCurrency = "0x0000000000000000000000000000000000000000"

// Placeholders substituted for absent display fields.
const (
	UnnamedPlaceholder       = "Unnamed NFT"
	NoDescriptionPlaceholder = "No description"
)

// DedupKey identifies one asset regardless of which collection reported it.
type DedupKey struct {
	ContractAddress string `json:"contract_address"`
	TokenID         string `json:"token_id"`
}

func (k DedupKey) String() string {
	return k.ContractAddress + "-" + k.TokenID
}

// Matches compares two keys, ignoring the letter case of the hex contract
// address.
func (k DedupKey) Matches(other DedupKey) bool {
	return k.TokenID == other.TokenID && strings.EqualFold(k.ContractAddress, other.ContractAddress)
}

// Price is the sale price of a listed record. A record either has a complete
// Price or none at all.
type Price struct {
	MinorUnits *big.Int
	Decimal    string
	Currency   string
}

type priceJSON struct {
	MinorUnits string `json:"minor_units"`
	Decimal    string `json:"decimal"`
	Currency   string `json:"currency"`
}

// MarshalJSON encodes MinorUnits as a decimal string so 18-digit prices
// survive JSON consumers that parse numbers as float64.
func (p Price) MarshalJSON() ([]byte, error) {
	out := priceJSON{Decimal: p.Decimal, Currency: p.Currency}
	if p.MinorUnits != nil {
		out.MinorUnits = p.MinorUnits.String()
	}
	return json.Marshal(out)
}

func (p *Price) UnmarshalJSON(b []byte) error {
	var in priceJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	p.Decimal = in.Decimal
	p.Currency = in.Currency
	p.MinorUnits = nil
	if in.MinorUnits != "" {
		v, ok := new(big.Int).SetString(in.MinorUnits, 10)
		if !ok {
			return fmt.Errorf("invalid minor_units %q", in.MinorUnits)
		}
		p.MinorUnits = v
	}
	return nil
}

// NftRecord is one NFT as known to this system. Records are built by
// Normalize and never mutated afterwards.
type NftRecord struct {
	ContractAddress string     `json:"contract_address"`
	TokenID         string     `json:"token_id"`
	Name            string     `json:"name"`
	Description     string     `json:"description"`
	ImageURL        string     `json:"image_url,omitempty"`
	OrderHash       string     `json:"order_hash,omitempty"`
	Membership      Membership `json:"membership"`
	Price           *Price     `json:"price,omitempty"`
}

// Key returns the dedup key of the record.
func (r NftRecord) Key() DedupKey {
	return DedupKey{ContractAddress: r.ContractAddress, TokenID: r.TokenID}
}

// ID is a stable identity for list rendering: membership plus dedup key.
func (r NftRecord) ID() string {
	return string(r.Membership) + "-" + r.Key().String()
}

// Inventory is an immutable snapshot of one address's NFTs. Listed and Owned
// are disjoint by DedupKey and kept in first-seen order.
type Inventory struct {
	Listed []NftRecord `json:"listed"`
	Owned  []NftRecord `json:"owned"`
}

// EmptyInventory returns a snapshot with no records.
func EmptyInventory() Inventory {
	return Inventory{Listed: []NftRecord{}, Owned: []NftRecord{}}
}

// Len returns the total number of records in the snapshot.
func (inv Inventory) Len() int {
	return len(inv.Listed) + len(inv.Owned)
}

// Find looks a record up by key in both sets.
func (inv Inventory) Find(key DedupKey) (NftRecord, bool) {
	for _, r := range inv.Listed {
		if r.Key().Matches(key) {
			return r, true
		}
	}
	for _, r := range inv.Owned {
		if r.Key().Matches(key) {
			return r, true
		}
	}
	return NftRecord{}, false
}

// RawNftRecord is the wire shape of one record from the lookup service.
type RawNftRecord struct {
	ContractAddress string     `json:"contract_address"`
	Identifier      FlexString `json:"identifier"`
	Name            string     `json:"name,omitempty"`
	Description     string     `json:"description,omitempty"`
	ImageURL        string     `json:"image_url,omitempty"`
	Price           FlexString `json:"price,omitempty"`
	Currency        string     `json:"currency,omitempty"`
	OrderHash       string     `json:"order_hash,omitempty"`
}

// RawCollection is one collection entry of a lookup response. Data is kept
// raw so a malformed payload only affects this collection.
type RawCollection struct {
	Data json.RawMessage `json:"data,omitempty"`
}

// collectionData is the decoded form of RawCollection.Data. Individual
// records stay raw so one bad record can be skipped on its own.
type collectionData struct {
	ListedNFTs []json.RawMessage `json:"listedNFTs"`
	OwnerNFTs  []json.RawMessage `json:"ownerNFTs"`
}

// LookupResponse is the top-level response of the lookup service.
type LookupResponse struct {
	Collections []RawCollection `json:"collections"`
}

// FlexString decodes from either a JSON string or a JSON number. Upstream
// services are inconsistent about quoting identifiers and prices.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return fmt.Errorf("expected string or number, got %s", string(b))
	}
	*f = FlexString(n.String())
	return nil
}
