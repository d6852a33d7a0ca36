package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/brojonat/nftex/service/config"
)

// ConfigFrom builds a ledger Config from the application config. The
// private key is parsed only when one is configured.
func ConfigFrom(cfg *config.Config) (Config, error) {
	out := Config{
		ChainID:             big.NewInt(cfg.ChainID),
		MarketplaceContract: common.HexToAddress(cfg.MarketplaceContract),
		BalanceToken:        common.HexToAddress(cfg.BalanceTokenAddress),
		TransferTimeout:     cfg.TransferTimeout,
	}
	if cfg.CanSubmitTransfers() {
		key, err := ParsePrivateKey(cfg.LedgerPrivateKey)
		if err != nil {
			return Config{}, err
		}
		out.PrivateKey = key
	}
	return out, nil
}
