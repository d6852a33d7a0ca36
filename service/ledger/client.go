package ledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/brojonat/nftex/service/exchange"
	"github.com/brojonat/nftex/service/inventory"
	"github.com/brojonat/nftex/service/metrics"
)

// ErrNoSigner is returned by SubmitTransfer when no private key is configured.
var ErrNoSigner = errors.New("ledger has no signing key")

// Backend is the part of an Ethereum RPC client the ledger needs.
// *ethclient.Client satisfies it.
type Backend interface {
	bind.DeployBackend
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
}

// Config configures a Client.
type Config struct {
	ChainID             *big.Int
	MarketplaceContract common.Address
	BalanceToken        common.Address
	// PrivateKey signs transfers. Without it the client is read-only.
	PrivateKey      *ecdsa.PrivateKey
	TransferTimeout time.Duration
}

// Client reads balances and submits marketplace transfers. It satisfies
// exchange.Ledger.
type Client struct {
	backend        Backend
	cfg            Config
	marketplaceABI abi.ABI
	erc20ABI       abi.ABI
	metrics        *metrics.Metrics
	logger         *slog.Logger
}

// Dial connects to rpcURL and returns a Client.
func Dial(ctx context.Context, rpcURL string, cfg Config, m *metrics.Metrics, logger *slog.Logger) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC node: %w", err)
	}
	return NewClient(ec, cfg, m, logger)
}

// NewClient creates a Client over an existing backend.
func NewClient(backend Backend, cfg Config, m *metrics.Metrics, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.ChainID == nil {
		return nil, errors.New("chain id is required")
	}
	if cfg.TransferTimeout == 0 {
		cfg.TransferTimeout = 5 * time.Minute
	}

	marketplaceABI, err := abi.JSON(strings.NewReader(MarketplaceABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse marketplace ABI: %w", err)
	}
	erc20ABI, err := abi.JSON(strings.NewReader(ERC20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC20 ABI: %w", err)
	}

	return &Client{
		backend:        backend,
		cfg:            cfg,
		marketplaceABI: marketplaceABI,
		erc20ABI:       erc20ABI,
		metrics:        m,
		logger:         logger.With("component", "ledger_client"),
	}, nil
}

// ParsePrivateKey parses a hex private key with or without 0x prefix.
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return key, nil
}

// CanSubmit reports whether the client has a signing key.
func (c *Client) CanSubmit() bool {
	return c.cfg.PrivateKey != nil
}

// From returns the signing address, or the zero address without a key.
func (c *Client) From() common.Address {
	if c.cfg.PrivateKey == nil {
		return common.Address{}
	}
	return crypto.PubkeyToAddress(c.cfg.PrivateKey.PublicKey)
}

// GetBalance returns the balance-token holdings of address in minor units.
func (c *Client) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	start := time.Now()
	balance, err := c.getBalance(ctx, address)
	c.record("GetBalance", start, err)
	return balance, err
}

func (c *Client) getBalance(ctx context.Context, address string) (*big.Int, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid address %q", address)
	}
	data, err := c.erc20ABI.Pack("balanceOf", common.HexToAddress(address))
	if err != nil {
		return nil, fmt.Errorf("failed to pack balanceOf: %w", err)
	}

	token := c.cfg.BalanceToken
	result, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call balanceOf: %w", err)
	}

	out, err := c.erc20ABI.Unpack("balanceOf", result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack balanceOf: %w", err)
	}
	balance, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf result type %T", out[0])
	}
	return balance, nil
}

// SubmitTransfer calls NameTransfer on the marketplace contract and waits
// until the transaction is mined or TransferTimeout passes. The receipt is
// confirmed iff the transaction succeeded on chain. Signer rejections are
// returned wrapping exchange.ErrUserRejected.
func (c *Client) SubmitTransfer(ctx context.Context, req exchange.TransferRequest) (exchange.TransferReceipt, error) {
	start := time.Now()
	receipt, err := c.submitTransfer(ctx, req)
	if err != nil && exchange.IsUserRejected(err) && !errors.Is(err, exchange.ErrUserRejected) {
		err = fmt.Errorf("%w: %v", exchange.ErrUserRejected, err)
	}
	c.record("SubmitTransfer", start, err)
	return receipt, err
}

func (c *Client) submitTransfer(ctx context.Context, req exchange.TransferRequest) (exchange.TransferReceipt, error) {
	if c.cfg.PrivateKey == nil {
		return exchange.TransferReceipt{}, ErrNoSigner
	}
	if !common.IsHexAddress(req.NFTContractAddress) {
		return exchange.TransferReceipt{}, fmt.Errorf("invalid NFT contract address %q", req.NFTContractAddress)
	}
	if req.TokenID == nil || req.TokenID.Sign() < 0 {
		return exchange.TransferReceipt{}, errors.New("token id must be a non-negative integer")
	}
	amount, err := inventory.ToMinorUnits(req.PriceDecimal)
	if err != nil {
		return exchange.TransferReceipt{}, fmt.Errorf("invalid price %q: %w", req.PriceDecimal, err)
	}

	data, err := c.marketplaceABI.Pack("NameTransfer", common.HexToAddress(req.NFTContractAddress), req.TokenID, amount)
	if err != nil {
		return exchange.TransferReceipt{}, fmt.Errorf("failed to pack NameTransfer: %w", err)
	}

	from := c.From()
	to := c.cfg.MarketplaceContract

	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return exchange.TransferReceipt{}, fmt.Errorf("failed to get nonce: %w", err)
	}
	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return exchange.TransferReceipt{}, fmt.Errorf("failed to get gas price: %w", err)
	}
	gasLimit, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &to,
		Data:  data,
		Value: big.NewInt(0),
	})
	if err != nil {
		return exchange.TransferReceipt{}, fmt.Errorf("failed to estimate gas: %w", err)
	}

	tx := ethtypes.NewTransaction(nonce, to, big.NewInt(0), gasLimit, gasPrice, data)
	signed, err := ethtypes.SignTx(tx, ethtypes.NewEIP155Signer(c.cfg.ChainID), c.cfg.PrivateKey)
	if err != nil {
		return exchange.TransferReceipt{}, fmt.Errorf("failed to sign transaction: %w", err)
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return exchange.TransferReceipt{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	txHash := signed.Hash().Hex()
	c.logger.InfoContext(ctx, "transfer sent",
		"tx_hash", txHash,
		"nft_contract", req.NFTContractAddress,
		"token_id", req.TokenID.String(),
		"amount", amount.String(),
		"nonce", nonce,
	)

	waitCtx, cancel := context.WithTimeout(ctx, c.cfg.TransferTimeout)
	defer cancel()
	receipt, err := bind.WaitMined(waitCtx, c.backend, signed)
	if err != nil {
		return exchange.TransferReceipt{TxHash: txHash}, fmt.Errorf("failed waiting for transaction %s: %w", txHash, err)
	}

	confirmed := receipt.Status == ethtypes.ReceiptStatusSuccessful
	c.logger.InfoContext(ctx, "transfer mined",
		"tx_hash", txHash,
		"block", receipt.BlockNumber,
		"gas_used", receipt.GasUsed,
		"confirmed", confirmed,
	)
	return exchange.TransferReceipt{Confirmed: confirmed, TxHash: txHash}, nil
}

func (c *Client) record(method string, start time.Time, err error) {
	if c.metrics != nil {
		c.metrics.RecordLedgerCall(method, time.Since(start).Seconds(), err)
	}
}
