package inventory

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// MinorUnitDecimals is the number of decimals between minor units and the
// human-readable amount (wei to ether).
const MinorUnitDecimals = 18

// Normalize converts one raw record into an NftRecord with the given
// membership. Owned records never carry a price.
func Normalize(raw RawNftRecord, m Membership) NftRecord {
	rec := NftRecord{
		ContractAddress: raw.ContractAddress,
		TokenID:         string(raw.Identifier),
		Name:            raw.Name,
		Description:     raw.Description,
		ImageURL:        raw.ImageURL,
		OrderHash:       raw.OrderHash,
		Membership:      m,
	}
	if strings.TrimSpace(rec.Name) == "" {
		rec.Name = UnnamedPlaceholder
	}
	if strings.TrimSpace(rec.Description) == "" {
		rec.Description = NoDescriptionPlaceholder
	}

	if m != Listed {
		return rec
	}

	minor, ok := ParseMinorUnits(string(raw.Price))
	if !ok {
		return rec
	}
	currency := raw.Currency
	if currency == "" {
		currency = NativeCurrency
	}
	rec.Price = &Price{
		MinorUnits: minor,
		Decimal:    FormatMinorUnits(minor),
		Currency:   currency,
	}
	return rec
}

// ParseMinorUnits parses a non-negative base-10 integer amount.
func ParseMinorUnits(s string) (*big.Int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, false
	}
	return v, true
}

// FormatMinorUnits renders minor units as an exact decimal string with at
// least one fractional digit: 10^18 -> "1.0", 2.5*10^18 -> "2.5".
func FormatMinorUnits(v *big.Int) string {
	s := decimal.NewFromBigInt(v, -MinorUnitDecimals).String()
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// ToMinorUnits converts a decimal amount string back into minor units.
// Fractions finer than one minor unit are rejected.
func ToMinorUnits(amount string) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return nil, err
	}
	shifted := d.Shift(MinorUnitDecimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, errPrecision
	}
	return shifted.BigInt(), nil
}
