package exchange

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
)

// ErrUserRejected is returned by a Ledger when the signer declined the
// transfer. Controllers report it as KindCancelled.
var ErrUserRejected = errors.New("user rejected transaction")

// ErrInProgress is set on the outcome of a submission that found another one
// in flight.
var ErrInProgress = errors.New("exchange already in progress")

// ErrNotConfirmed is set when the ledger accepted a transfer but did not
// confirm it.
var ErrNotConfirmed = errors.New("transfer not confirmed")

// userRejectedCode is the EIP-1193 "user rejected request" error code.
const userRejectedCode = 4001

// PreconditionError describes why a record could not be submitted.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("exchange precondition failed: %s", e.Reason)
}

// IsUserRejected reports whether err is a signer rejection: ErrUserRejected,
// a JSON-RPC error with code 4001, or a message saying "user rejected".
func IsUserRejected(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUserRejected) {
		return true
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == userRejectedCode {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "user rejected")
}
