package exchange

import (
	"context"
	"math/big"

	"github.com/brojonat/nftex/service/inventory"
)

// Kind tags an Outcome.
type Kind string

const (
	KindSuccess   Kind = "success"
	KindCancelled Kind = "cancelled"
	KindFailed    Kind = "failed"
)

// User-facing reasons. Underlying errors never appear in these.
const (
	ReasonNotEligible    = "Only listed NFTs can be exchanged"
	ReasonInProgress     = "already in progress"
	ReasonTransferFailed = "Transfer failed. See logs for details."
	ReasonCancelled      = "Transaction was cancelled"
)

// fallbackPrice is used when a record reaches submission without a price.
// Preconditions reject such records, so this is a guard only.
const fallbackPrice = "1"

// TransferRequest is what the ledger is asked to execute.
type TransferRequest struct {
	NFTContractAddress string
	TokenID            *big.Int
	PriceDecimal       string
}

// TransferReceipt is the ledger's answer to a submitted transfer.
type TransferReceipt struct {
	Confirmed bool
	TxHash    string
}

// Ledger submits transfers. It is not safe for overlapping submissions;
// the Controller guarantees at most one call in flight.
type Ledger interface {
	SubmitTransfer(ctx context.Context, req TransferRequest) (TransferReceipt, error)
}

// InventoryLoader reloads an address's inventory after a confirmed transfer.
// *inventory.Aggregator satisfies it.
type InventoryLoader interface {
	Load(ctx context.Context, address string) (inventory.Inventory, error)
}

// Outcome is the tagged result of one submission.
//
// On KindSuccess, Inventory holds the refreshed snapshot; it is nil when the
// transfer went through but the refresh failed (see RefreshErr). Err keeps the
// underlying cause of a cancellation or failure for logging.
type Outcome struct {
	Kind       Kind
	ExchangeID string
	Address    string
	Key        inventory.DedupKey
	Price      string
	Reason     string
	TxHash     string
	Inventory  *inventory.Inventory
	Err        error
	RefreshErr error
}

// State is the controller's position in Idle -> Submitting -> Idle.
type State int32

const (
	StateIdle State = iota
	StateSubmitting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitting:
		return "submitting"
	default:
		return "unknown"
	}
}
