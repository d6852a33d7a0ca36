package exchange

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/brojonat/nftex/service/inventory"
	"github.com/brojonat/nftex/service/metrics"
)

// Controller drives one transfer at a time against a Ledger and refreshes
// the inventory once the ledger confirms.
type Controller struct {
	ledger  Ledger
	loader  InventoryLoader
	metrics *metrics.Metrics
	logger  *slog.Logger
	state   atomic.Int32
}

// NewController creates a Controller. A nil ledger is a valid "not
// initialized" ledger: every submission fails its preconditions.
func NewController(ledger Ledger, loader InventoryLoader, m *metrics.Metrics, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Controller{
		ledger:  ledger,
		loader:  loader,
		metrics: m,
		logger:  logger.With("component", "exchange_controller"),
	}
}

// State returns the current controller state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Submit exchanges record for address.
//
// Preconditions are checked before anything else and before the in-flight
// check, so an ineligible record never touches the ledger. A second call
// while one is submitting returns KindFailed with ReasonInProgress. There are
// no retries; the caller must submit again.
func (c *Controller) Submit(ctx context.Context, record inventory.NftRecord, address string) Outcome {
	start := time.Now()
	out := Outcome{
		ExchangeID: uuid.NewString(),
		Address:    address,
		Key:        record.Key(),
	}
	logger := c.logger.With("exchange_id", out.ExchangeID, "address", address, "nft", out.Key.String())

	tokenID, err := c.checkPreconditions(record, address)
	if err != nil {
		logger.InfoContext(ctx, "exchange rejected", "error", err)
		return c.finish(c.failed(out, ReasonNotEligible, err), "precondition", start)
	}

	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateSubmitting)) {
		logger.InfoContext(ctx, "exchange rejected, another one is in flight")
		return c.finish(c.failed(out, ReasonInProgress, ErrInProgress), "in_progress", start)
	}
	defer c.state.Store(int32(StateIdle))

	out.Price = fallbackPrice
	if record.Price != nil && record.Price.Decimal != "" {
		out.Price = record.Price.Decimal
	}
	req := TransferRequest{
		NFTContractAddress: record.ContractAddress,
		TokenID:            tokenID,
		PriceDecimal:       out.Price,
	}

	logger.InfoContext(ctx, "submitting transfer", "price", out.Price)
	receipt, err := c.ledger.SubmitTransfer(ctx, req)
	out.TxHash = receipt.TxHash
	switch {
	case err != nil && IsUserRejected(err):
		logger.InfoContext(ctx, "transfer cancelled by signer", "error", err)
		out.Kind = KindCancelled
		out.Reason = ReasonCancelled
		out.Err = err
		return c.finish(out, "user_rejected", start)
	case err != nil:
		logger.ErrorContext(ctx, "transfer failed", "error", err)
		return c.finish(c.failed(out, ReasonTransferFailed, err), "transfer_failed", start)
	case !receipt.Confirmed:
		logger.ErrorContext(ctx, "transfer not confirmed", "tx_hash", receipt.TxHash)
		return c.finish(c.failed(out, ReasonTransferFailed, ErrNotConfirmed), "not_confirmed", start)
	}

	logger.InfoContext(ctx, "transfer confirmed", "tx_hash", receipt.TxHash)
	out.Kind = KindSuccess

	inv, err := c.loader.Load(ctx, address)
	if err != nil {
		logger.WarnContext(ctx, "inventory refresh after transfer failed", "error", err)
		out.RefreshErr = err
		return c.finish(out, "refresh_failed", start)
	}
	out.Inventory = &inv
	return c.finish(out, "", start)
}

func (c *Controller) checkPreconditions(record inventory.NftRecord, address string) (*big.Int, error) {
	switch {
	case c.ledger == nil:
		return nil, &PreconditionError{Reason: "ledger not initialized"}
	case c.loader == nil:
		return nil, &PreconditionError{Reason: "inventory loader not initialized"}
	case address == "":
		return nil, &PreconditionError{Reason: "no address"}
	case record.Membership != inventory.Listed:
		return nil, &PreconditionError{Reason: "record is not listed"}
	case record.Price == nil:
		return nil, &PreconditionError{Reason: "record has no price"}
	}
	tokenID, ok := new(big.Int).SetString(strings.TrimSpace(record.TokenID), 10)
	if !ok || tokenID.Sign() < 0 {
		return nil, &PreconditionError{Reason: "token id is not a non-negative integer"}
	}
	return tokenID, nil
}

func (c *Controller) failed(out Outcome, reason string, err error) Outcome {
	out.Kind = KindFailed
	out.Reason = reason
	out.Err = err
	return out
}

func (c *Controller) finish(out Outcome, reason string, start time.Time) Outcome {
	if c.metrics != nil {
		c.metrics.RecordExchange(string(out.Kind), reason, time.Since(start).Seconds())
	}
	return out
}
