package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/nftex/service/db"
	"github.com/brojonat/nftex/service/exchange"
	"github.com/brojonat/nftex/service/inventory"
	"github.com/brojonat/nftex/service/metrics"
	"github.com/brojonat/nftex/service/session"
	"github.com/brojonat/nftex/service/temporal"
)

const (
	testAddress   = "0x00000000000000000000000000000000000000a1"
	testContract  = "0x00000000000000000000000000000000000000c1"
	ownedContract = "0x00000000000000000000000000000000000000c2"
)

// switchLoader returns inv until err is set.
type switchLoader struct {
	mu  sync.Mutex
	inv inventory.Inventory
	err error
}

func (l *switchLoader) Load(ctx context.Context, address string) (inventory.Inventory, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return inventory.EmptyInventory(), l.err
	}
	return l.inv, nil
}

func (l *switchLoader) fail(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

type stubLedger struct {
	receipt exchange.TransferReceipt
	err     error
}

func (l *stubLedger) SubmitTransfer(ctx context.Context, req exchange.TransferRequest) (exchange.TransferReceipt, error) {
	return l.receipt, l.err
}

type stubJournal struct {
	rows      []*db.Exchange
	err       error
	lastLimit int32
}

func (j *stubJournal) ListExchangesByAddress(ctx context.Context, address string, limit int32) ([]*db.Exchange, error) {
	j.lastLimit = limit
	return j.rows, j.err
}

type stubBalances struct {
	bal *big.Int
	err error
}

func (b stubBalances) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	return b.bal, b.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testInventory() inventory.Inventory {
	inv := inventory.EmptyInventory()
	inv.Listed = append(inv.Listed, inventory.Normalize(inventory.RawNftRecord{
		ContractAddress: testContract,
		Identifier:      "1",
		Name:            "First",
		Price:           "1000000000000000000",
	}, inventory.Listed))
	inv.Owned = append(inv.Owned, inventory.Normalize(inventory.RawNftRecord{
		ContractAddress: ownedContract,
		Identifier:      "5",
	}, inventory.Owned))
	return inv
}

func newTestHandler(t *testing.T, loader session.Loader, ledger exchange.Ledger, deps Dependencies) http.Handler {
	t.Helper()
	deps.Sessions = session.NewRegistry(loader, ledger, nil, testLogger())
	return New(":0", deps, nil, testLogger()).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGetInventory(t *testing.T) {
	h := newTestHandler(t, &switchLoader{inv: testInventory()}, nil, Dependencies{})

	rec := do(t, h, http.MethodGet, "/api/v1/inventory/"+testAddress, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp inventoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, testAddress, resp.Address)
	require.Len(t, resp.Listed, 1)
	require.Len(t, resp.Owned, 1)
	assert.Empty(t, resp.Warning)

	listed := resp.Listed[0]
	assert.Equal(t, "listed-"+testContract+"-1", listed.ID)
	assert.Equal(t, "First", listed.Name)
	assert.Equal(t, "ETH", listed.CurrencySymbol)
	require.NotNil(t, listed.Price)
	assert.Equal(t, "1.0", listed.Price.Decimal)

	owned := resp.Owned[0]
	assert.Equal(t, inventory.UnnamedPlaceholder, owned.Name)
	assert.Nil(t, owned.Price)
	assert.Empty(t, owned.CurrencySymbol)
}

func TestGetInventory_LookupFailureServesPreviousSnapshot(t *testing.T) {
	loader := &switchLoader{inv: testInventory()}
	h := newTestHandler(t, loader, nil, Dependencies{})

	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/v1/inventory/"+testAddress, "").Code)

	loader.fail(&inventory.LookupError{Address: testAddress, Err: errors.New("connection refused")})
	rec := do(t, h, http.MethodGet, "/api/v1/inventory/"+testAddress, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp inventoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Warning)
	assert.Len(t, resp.Listed, 1)
	assert.Len(t, resp.Owned, 1)
}

func TestGetInventory_InvalidAddress(t *testing.T) {
	h := newTestHandler(t, &switchLoader{inv: testInventory()}, nil, Dependencies{})

	for _, address := range []string{"wallet123", "0x1234", "00000000000000000000000000000000000000a1"} {
		rec := do(t, h, http.MethodGet, "/api/v1/inventory/"+address, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, address)
		assert.Contains(t, rec.Body.String(), "invalid address format")
	}
}

func exchangeBody(contract, tokenID string) string {
	return `{"address":"` + testAddress + `","contract_address":"` + contract + `","token_id":"` + tokenID + `"}`
}

func TestExchange_InProcess(t *testing.T) {
	tests := []struct {
		name           string
		ledger         *stubLedger
		body           string
		expectedStatus int
		expectedKind   string
		expectedReason string
	}{
		{
			name:           "confirmed transfer",
			ledger:         &stubLedger{receipt: exchange.TransferReceipt{Confirmed: true, TxHash: "0xfeed"}},
			body:           exchangeBody(testContract, "1"),
			expectedStatus: http.StatusOK,
			expectedKind:   "success",
		},
		{
			name:           "owned record",
			ledger:         &stubLedger{receipt: exchange.TransferReceipt{Confirmed: true}},
			body:           exchangeBody(ownedContract, "5"),
			expectedStatus: http.StatusUnprocessableEntity,
			expectedKind:   "failed",
			expectedReason: exchange.ReasonNotEligible,
		},
		{
			name:           "user rejected",
			ledger:         &stubLedger{err: exchange.ErrUserRejected},
			body:           exchangeBody(testContract, "1"),
			expectedStatus: http.StatusOK,
			expectedKind:   "cancelled",
			expectedReason: exchange.ReasonCancelled,
		},
		{
			name:           "ledger error",
			ledger:         &stubLedger{err: errors.New("insufficient funds for gas")},
			body:           exchangeBody(testContract, "1"),
			expectedStatus: http.StatusBadGateway,
			expectedKind:   "failed",
			expectedReason: exchange.ReasonTransferFailed,
		},
		{
			name:           "reverted",
			ledger:         &stubLedger{receipt: exchange.TransferReceipt{Confirmed: false, TxHash: "0xdead"}},
			body:           exchangeBody(testContract, "1"),
			expectedStatus: http.StatusBadGateway,
			expectedKind:   "failed",
			expectedReason: exchange.ReasonTransferFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, &switchLoader{inv: testInventory()}, tt.ledger, Dependencies{})

			rec := do(t, h, http.MethodPost, "/api/v1/exchanges", tt.body)
			assert.Equal(t, tt.expectedStatus, rec.Code)

			var result temporal.ExchangeResult
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
			assert.Equal(t, tt.expectedKind, result.Outcome)
			assert.Equal(t, tt.expectedReason, result.Reason)
			assert.Empty(t, result.Error)
		})
	}
}

func TestExchange_ChecksummedAddresses(t *testing.T) {
	registry := session.NewRegistry(&switchLoader{inv: testInventory()},
		&stubLedger{receipt: exchange.TransferReceipt{Confirmed: true, TxHash: "0xfeed"}}, nil, testLogger())
	h := New(":0", Dependencies{Sessions: registry}, nil, testLogger()).Handler()

	mixedAddress := "0x00000000000000000000000000000000000000A1"
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/v1/inventory/"+mixedAddress, "").Code)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/v1/inventory/"+testAddress, "").Code)
	assert.Equal(t, 1, registry.Len(), "both spellings share one session")

	body := `{"address":"` + mixedAddress + `","contract_address":"0x00000000000000000000000000000000000000C1","token_id":"1"}`
	rec := do(t, h, http.MethodPost, "/api/v1/exchanges", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var result temporal.ExchangeResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "success", result.Outcome)
	assert.Equal(t, testAddress, result.Address)
	assert.Equal(t, testContract, result.ContractAddress)
	assert.Equal(t, 1, registry.Len())
}

func TestExchange_NoLedgerIsPreconditionFailure(t *testing.T) {
	h := newTestHandler(t, &switchLoader{inv: testInventory()}, nil, Dependencies{})

	rec := do(t, h, http.MethodPost, "/api/v1/exchanges", exchangeBody(testContract, "1"))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), exchange.ReasonNotEligible)
}

func TestExchange_ViaStarter(t *testing.T) {
	starter := temporal.NewMockStarter()
	h := newTestHandler(t, &switchLoader{inv: testInventory()}, nil, Dependencies{Starter: starter})

	rec := do(t, h, http.MethodPost, "/api/v1/exchanges", exchangeBody(testContract, "1"))
	assert.Equal(t, http.StatusOK, rec.Code)

	inputs := starter.Inputs()
	require.Len(t, inputs, 1)
	assert.Equal(t, temporal.ExchangeInput{Address: testAddress, ContractAddress: testContract, TokenID: "1"}, inputs[0])

	starter.SetResult(testAddress, temporal.InProgressResult(inputs[0]))
	rec = do(t, h, http.MethodPost, "/api/v1/exchanges", exchangeBody(testContract, "1"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), exchange.ReasonInProgress)

	starter.SetError(errors.New("temporal unavailable"))
	rec = do(t, h, http.MethodPost, "/api/v1/exchanges", exchangeBody(testContract, "1"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestExchange_BadRequests(t *testing.T) {
	h := newTestHandler(t, &switchLoader{inv: testInventory()}, nil, Dependencies{})

	tests := []struct {
		name     string
		body     string
		contains string
	}{
		{"malformed JSON", `{"address":`, "invalid request body"},
		{"missing address", `{"contract_address":"` + testContract + `","token_id":"1"}`, "address is required"},
		{"missing contract", `{"address":"` + testAddress + `","token_id":"1"}`, "contract_address is required"},
		{"bad contract", `{"address":"` + testAddress + `","contract_address":"nope","token_id":"1"}`, "invalid contract_address"},
		{"missing token id", `{"address":"` + testAddress + `","contract_address":"` + testContract + `"}`, "token_id is required"},
		{"token id too long", exchangeBody(testContract, strings.Repeat("9", 100)), "token_id too long"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/v1/exchanges", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.contains)
		})
	}
}

func TestListExchanges(t *testing.T) {
	journal := &stubJournal{rows: []*db.Exchange{
		{Address: testAddress, ContractAddress: testContract, TokenID: "1", Outcome: "success"},
	}}
	h := newTestHandler(t, &switchLoader{}, nil, Dependencies{Journal: journal})

	rec := do(t, h, http.MethodGet, "/api/v1/exchanges/"+testAddress+"?limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int32(10), journal.lastLimit)

	var resp struct {
		Exchanges []db.Exchange `json:"exchanges"`
		Count     int           `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "success", resp.Exchanges[0].Outcome)

	do(t, h, http.MethodGet, "/api/v1/exchanges/"+testAddress, "")
	assert.Equal(t, int32(defaultListLimit), journal.lastLimit)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/v1/exchanges/"+testAddress+"?limit=0", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/v1/exchanges/"+testAddress+"?limit=abc", "").Code)

	journal.err = errors.New("db down")
	assert.Equal(t, http.StatusInternalServerError, do(t, h, http.MethodGet, "/api/v1/exchanges/"+testAddress, "").Code)
}

func TestListExchanges_NoJournal(t *testing.T) {
	h := newTestHandler(t, &switchLoader{}, nil, Dependencies{})

	rec := do(t, h, http.MethodGet, "/api/v1/exchanges/"+testAddress, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"address":"`+testAddress+`","exchanges":[],"count":0}`, rec.Body.String())
}

func TestGetBalance(t *testing.T) {
	bal, _ := new(big.Int).SetString("1234567890000000000", 10)
	h := newTestHandler(t, &switchLoader{}, nil, Dependencies{Balances: stubBalances{bal: bal}})

	rec := do(t, h, http.MethodGet, "/api/v1/balance/"+testAddress, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp balanceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "1234567890000000000", resp.Balance)
	assert.Equal(t, "1.2346", resp.Formatted)
	assert.Equal(t, 18, resp.Decimals)

	h = newTestHandler(t, &switchLoader{}, nil, Dependencies{Balances: stubBalances{err: errors.New("rpc down")}})
	assert.Equal(t, http.StatusBadGateway, do(t, h, http.MethodGet, "/api/v1/balance/"+testAddress, "").Code)

	h = newTestHandler(t, &switchLoader{}, nil, Dependencies{})
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/api/v1/balance/"+testAddress, "").Code)
}

func TestCloseSession(t *testing.T) {
	h := newTestHandler(t, &switchLoader{inv: testInventory()}, nil, Dependencies{})

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodDelete, "/api/v1/sessions/"+testAddress, "").Code)

	do(t, h, http.MethodGet, "/api/v1/inventory/"+testAddress, "")
	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/api/v1/sessions/"+testAddress, "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodDelete, "/api/v1/sessions/"+testAddress, "").Code)
}

func TestHealthAndCORS(t *testing.T) {
	h := newTestHandler(t, &switchLoader{}, nil, Dependencies{})

	rec := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = do(t, h, http.MethodOptions, "/api/v1/exchanges", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// No gatherer, no metrics endpoint.
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/metrics", "").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	registry := session.NewRegistry(&switchLoader{inv: testInventory()}, nil, m, testLogger())
	h := New(":0", Dependencies{Sessions: registry, Gatherer: reg}, m, testLogger()).Handler()

	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/v1/inventory/"+testAddress, "").Code)

	rec := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "http_requests_total")
	assert.Contains(t, body, `handler="/api/v1/inventory/{address}"`)
	assert.NotContains(t, body, testAddress)
	assert.Contains(t, body, "sessions_active 1")
}
