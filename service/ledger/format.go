package ledger

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// FormatUnits renders v scaled down by decimals and rounded to places
// fractional digits, always printing exactly places digits.
// FormatUnits(1234567800000000000, 18, 4) == "1.2346".
func FormatUnits(v *big.Int, decimals int32, places int32) string {
	if v == nil {
		return decimal.Zero.StringFixed(places)
	}
	return decimal.NewFromBigInt(v, -decimals).StringFixed(places)
}
