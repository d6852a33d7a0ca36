package inventory

import "github.com/ethereum/go-ethereum/common"

// CurrencySymbol returns the display symbol for a record currency. Only the
// native sentinel is resolved; token symbols are not looked up.
func CurrencySymbol(currency string) string {
	if common.IsHexAddress(currency) && common.HexToAddress(currency) == (common.Address{}) {
		return "ETH"
	}
	return "N/A"
}
