package exchange

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/nftex/service/inventory"
	"github.com/brojonat/nftex/service/metrics"
)

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) SubmitTransfer(ctx context.Context, req TransferRequest) (TransferReceipt, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(TransferReceipt), args.Error(1)
}

type MockLoader struct {
	mock.Mock
}

func (m *MockLoader) Load(ctx context.Context, address string) (inventory.Inventory, error) {
	args := m.Called(ctx, address)
	return args.Get(0).(inventory.Inventory), args.Error(1)
}

type rpcError struct {
	code int
	msg  string
}

func (e rpcError) Error() string  { return e.msg }
func (e rpcError) ErrorCode() int { return e.code }

func listedRecord() inventory.NftRecord {
	return inventory.Normalize(inventory.RawNftRecord{
		ContractAddress: "0xC1",
		Identifier:      "1",
		Price:           "1000000000000000000",
	}, inventory.Listed)
}

func refreshed() inventory.Inventory {
	inv := inventory.EmptyInventory()
	inv.Owned = append(inv.Owned, inventory.Normalize(inventory.RawNftRecord{ContractAddress: "0xC2", Identifier: "5"}, inventory.Owned))
	return inv
}

func TestSubmit_PreconditionsNeverTouchLedger(t *testing.T) {
	owned := inventory.Normalize(inventory.RawNftRecord{ContractAddress: "0xC2", Identifier: "5", Price: "1"}, inventory.Owned)
	noPrice := inventory.Normalize(inventory.RawNftRecord{ContractAddress: "0xC1", Identifier: "1"}, inventory.Listed)
	badToken := listedRecord()
	badToken.TokenID = "abc"
	negToken := listedRecord()
	negToken.TokenID = "-1"

	tests := []struct {
		name     string
		record   inventory.NftRecord
		address  string
		noLedger bool
	}{
		{name: "owned record", record: owned, address: "0xA1"},
		{name: "listed without price", record: noPrice, address: "0xA1"},
		{name: "no address", record: listedRecord(), address: ""},
		{name: "ledger not initialized", record: listedRecord(), address: "0xA1", noLedger: true},
		{name: "non-numeric token id", record: badToken, address: "0xA1"},
		{name: "negative token id", record: negToken, address: "0xA1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := &MockLedger{}
			loader := &MockLoader{}
			var l Ledger = ledger
			if tt.noLedger {
				l = nil
			}
			c := NewController(l, loader, nil, nil)

			out := c.Submit(context.Background(), tt.record, tt.address)

			assert.Equal(t, KindFailed, out.Kind)
			assert.Equal(t, ReasonNotEligible, out.Reason)
			var perr *PreconditionError
			assert.ErrorAs(t, out.Err, &perr)
			ledger.AssertNotCalled(t, "SubmitTransfer", mock.Anything, mock.Anything)
			loader.AssertNotCalled(t, "Load", mock.Anything, mock.Anything)
			assert.Equal(t, StateIdle, c.State())
		})
	}
}

func TestSubmit_Success(t *testing.T) {
	ledger := &MockLedger{}
	loader := &MockLoader{}
	ledger.On("SubmitTransfer", mock.Anything, TransferRequest{
		NFTContractAddress: "0xC1",
		TokenID:            big.NewInt(1),
		PriceDecimal:       "1.0",
	}).Return(TransferReceipt{Confirmed: true, TxHash: "0xabc"}, nil).Once()
	loader.On("Load", mock.Anything, "0xA1").Return(refreshed(), nil).Once()

	c := NewController(ledger, loader, metrics.NewMetrics(prometheus.NewRegistry()), nil)
	out := c.Submit(context.Background(), listedRecord(), "0xA1")

	assert.Equal(t, KindSuccess, out.Kind)
	assert.Equal(t, "0xabc", out.TxHash)
	assert.Equal(t, "1.0", out.Price)
	assert.NotEmpty(t, out.ExchangeID)
	require.NotNil(t, out.Inventory)
	assert.Equal(t, refreshed(), *out.Inventory)
	assert.NoError(t, out.Err)
	assert.NoError(t, out.RefreshErr)
	assert.Equal(t, StateIdle, c.State())
	ledger.AssertExpectations(t)
	loader.AssertExpectations(t)
}

func TestSubmit_RefreshFailureStillSucceeds(t *testing.T) {
	ledger := &MockLedger{}
	loader := &MockLoader{}
	refreshErr := &inventory.LookupError{Address: "0xA1", Err: errors.New("timeout")}
	ledger.On("SubmitTransfer", mock.Anything, mock.Anything).Return(TransferReceipt{Confirmed: true, TxHash: "0xabc"}, nil)
	loader.On("Load", mock.Anything, "0xA1").Return(inventory.Inventory{}, refreshErr)

	out := NewController(ledger, loader, nil, nil).Submit(context.Background(), listedRecord(), "0xA1")

	assert.Equal(t, KindSuccess, out.Kind)
	assert.Nil(t, out.Inventory)
	assert.ErrorIs(t, out.RefreshErr, refreshErr)
}

func TestSubmit_UserRejection(t *testing.T) {
	rejections := map[string]error{
		"sentinel":   ErrUserRejected,
		"wrapped":    errors.Join(errors.New("signer"), ErrUserRejected),
		"rpc code":   rpcError{code: 4001, msg: "request denied"},
		"by message": errors.New("MetaMask Tx Signature: User rejected the transaction"),
	}

	for name, rejection := range rejections {
		t.Run(name, func(t *testing.T) {
			ledger := &MockLedger{}
			loader := &MockLoader{}
			ledger.On("SubmitTransfer", mock.Anything, mock.Anything).Return(TransferReceipt{}, rejection).Once()

			out := NewController(ledger, loader, nil, nil).Submit(context.Background(), listedRecord(), "0xA1")

			assert.Equal(t, KindCancelled, out.Kind)
			assert.Equal(t, ReasonCancelled, out.Reason)
			assert.Nil(t, out.Inventory)
			ledger.AssertNumberOfCalls(t, "SubmitTransfer", 1)
			loader.AssertNotCalled(t, "Load", mock.Anything, mock.Anything)
		})
	}
}

func TestSubmit_LedgerFailure(t *testing.T) {
	cause := rpcError{code: -32000, msg: "insufficient funds for gas * price + value"}
	ledger := &MockLedger{}
	loader := &MockLoader{}
	ledger.On("SubmitTransfer", mock.Anything, mock.Anything).Return(TransferReceipt{}, cause).Once()

	out := NewController(ledger, loader, nil, nil).Submit(context.Background(), listedRecord(), "0xA1")

	assert.Equal(t, KindFailed, out.Kind)
	assert.Equal(t, ReasonTransferFailed, out.Reason)
	assert.NotContains(t, out.Reason, "insufficient funds")
	assert.ErrorIs(t, out.Err, cause)
	ledger.AssertNumberOfCalls(t, "SubmitTransfer", 1)
	loader.AssertNotCalled(t, "Load", mock.Anything, mock.Anything)
}

func TestSubmit_NotConfirmed(t *testing.T) {
	ledger := &MockLedger{}
	loader := &MockLoader{}
	ledger.On("SubmitTransfer", mock.Anything, mock.Anything).Return(TransferReceipt{TxHash: "0xdead"}, nil)

	out := NewController(ledger, loader, nil, nil).Submit(context.Background(), listedRecord(), "0xA1")

	assert.Equal(t, KindFailed, out.Kind)
	assert.Equal(t, ReasonTransferFailed, out.Reason)
	assert.ErrorIs(t, out.Err, ErrNotConfirmed)
	assert.Equal(t, "0xdead", out.TxHash)
	loader.AssertNotCalled(t, "Load", mock.Anything, mock.Anything)
}

func TestSubmit_SingleFlight(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})

	ledger := &MockLedger{}
	loader := &MockLoader{}
	ledger.On("SubmitTransfer", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).
		Return(TransferReceipt{Confirmed: true}, nil).Once()
	loader.On("Load", mock.Anything, "0xA1").Return(refreshed(), nil)

	c := NewController(ledger, loader, nil, nil)

	first := make(chan Outcome, 1)
	go func() {
		first <- c.Submit(context.Background(), listedRecord(), "0xA1")
	}()

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first submission never reached the ledger")
	}
	assert.Equal(t, StateSubmitting, c.State())

	second := c.Submit(context.Background(), listedRecord(), "0xA1")
	assert.Equal(t, KindFailed, second.Kind)
	assert.Equal(t, ReasonInProgress, second.Reason)
	assert.ErrorIs(t, second.Err, ErrInProgress)

	close(release)
	out := <-first
	assert.Equal(t, KindSuccess, out.Kind)
	ledger.AssertNumberOfCalls(t, "SubmitTransfer", 1)
	assert.Equal(t, StateIdle, c.State())
}

func TestSubmit_IneligibleWhileBusyIsPreconditionFailure(t *testing.T) {
	c := NewController(&MockLedger{}, &MockLoader{}, nil, nil)
	c.state.Store(int32(StateSubmitting))

	owned := inventory.Normalize(inventory.RawNftRecord{ContractAddress: "0xC2", Identifier: "5"}, inventory.Owned)
	out := c.Submit(context.Background(), owned, "0xA1")

	assert.Equal(t, ReasonNotEligible, out.Reason)
}

func TestIsUserRejected(t *testing.T) {
	assert.False(t, IsUserRejected(nil))
	assert.False(t, IsUserRejected(errors.New("nonce too low")))
	assert.False(t, IsUserRejected(rpcError{code: -32000, msg: "execution reverted"}))
	assert.True(t, IsUserRejected(rpcError{code: 4001, msg: "denied"}))
	assert.True(t, IsUserRejected(ErrUserRejected))
}
