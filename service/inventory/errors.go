package inventory

import (
	"errors"
	"fmt"
)

// ErrNoAddress is returned when an inventory is requested without an
// address. It is the "wallet not connected" state, not a failure: the
// accompanying inventory is empty.
var ErrNoAddress = errors.New("no address")

var errPrecision = errors.New("amount has more than 18 decimal places")

// LookupError reports that the collection lookup service was unreachable or
// returned a malformed top-level response.
type LookupError struct {
	Address string
	Err     error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("collection lookup for %s failed: %v", e.Address, e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}
