package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"unicode"

	"github.com/ethereum/go-ethereum/common"

	"github.com/brojonat/nftex/service/db"
	"github.com/brojonat/nftex/service/exchange"
	"github.com/brojonat/nftex/service/inventory"
	"github.com/brojonat/nftex/service/ledger"
	"github.com/brojonat/nftex/service/session"
	"github.com/brojonat/nftex/service/temporal"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB
	maxTokenIDLength   = 78      // decimal digits of 2^256
	defaultListLimit   = 50
	maxListLimit       = 500
	balanceDecimals    = 18
	balancePlaces      = 4
)

// Journal is the read side of the exchange journal. *db.Store satisfies it.
type Journal interface {
	ListExchangesByAddress(ctx context.Context, address string, limit int32) ([]*db.Exchange, error)
}

// BalanceReader reads token balances. *ledger.Client satisfies it.
type BalanceReader interface {
	GetBalance(ctx context.Context, address string) (*big.Int, error)
}

// recordResponse is an NftRecord with display helpers.
type recordResponse struct {
	inventory.NftRecord
	ID             string `json:"id"`
	CurrencySymbol string `json:"currency_symbol,omitempty"`
}

type inventoryResponse struct {
	Address string           `json:"address"`
	Listed  []recordResponse `json:"listed"`
	Owned   []recordResponse `json:"owned"`
	Warning string           `json:"warning,omitempty"`
}

func inventoryToResponse(address string, inv inventory.Inventory) inventoryResponse {
	convert := func(records []inventory.NftRecord) []recordResponse {
		out := make([]recordResponse, len(records))
		for i, r := range records {
			out[i] = recordResponse{NftRecord: r, ID: r.ID()}
			if r.Price != nil {
				out[i].CurrencySymbol = inventory.CurrencySymbol(r.Price.Currency)
			}
		}
		return out
	}
	return inventoryResponse{
		Address: address,
		Listed:  convert(inv.Listed),
		Owned:   convert(inv.Owned),
	}
}

// handleGetInventory returns a handler that refreshes and returns the
// inventory of an address.
// GET /api/v1/inventory/{address}
func handleGetInventory(sessions *session.Registry, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		if err := validateAddress(address); err != nil {
			logger.Debug("invalid address", "address", address, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		address = normalizeAddress(address)

		inv, err := sessions.Get(address).Refresh(r.Context())
		resp := inventoryToResponse(address, inv)

		var lookupErr *inventory.LookupError
		switch {
		case err == nil, errors.Is(err, session.ErrStale):
		case errors.As(err, &lookupErr):
			logger.WarnContext(r.Context(), "inventory lookup failed, serving previous snapshot",
				"address", address,
				"error", err,
			)
			resp.Warning = "collection lookup failed; showing the last known inventory"
		case errors.Is(err, session.ErrClosed):
			writeError(w, "session closed", http.StatusConflict)
			return
		default:
			logger.ErrorContext(r.Context(), "failed to load inventory", "address", address, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, resp, http.StatusOK)
	})
}

type exchangeRequest struct {
	Address         string `json:"address"`
	ContractAddress string `json:"contract_address"`
	TokenID         string `json:"token_id"`
}

// handleExchange returns a handler that exchanges a listed NFT.
// POST /api/v1/exchanges
//
// success and cancelled answer 200, a precondition failure 422, an exchange
// already in flight 409 and a failed transfer 502.
func handleExchange(sessions *session.Registry, starter temporal.ExchangeStarter, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req exchangeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Debug("failed to decode exchange request", "error", err)
			if strings.Contains(err.Error(), "http: request body too large") {
				writeError(w, "request body too large: maximum size is 1MB", http.StatusBadRequest)
				return
			}
			writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
			return
		}

		if err := validateExchangeRequest(req); err != nil {
			logger.Debug("invalid exchange request", "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		input := temporal.ExchangeInput{
			Address:         normalizeAddress(req.Address),
			ContractAddress: normalizeAddress(req.ContractAddress),
			TokenID:         req.TokenID,
		}

		var result *temporal.ExchangeResult
		if starter != nil {
			res, err := starter.StartExchange(r.Context(), input)
			if err != nil {
				logger.ErrorContext(r.Context(), "exchange workflow failed", "address", req.Address, "error", err)
				writeError(w, "failed to run exchange", http.StatusInternalServerError)
				return
			}
			result = res
		} else {
			result = exchangeInProcess(r.Context(), sessions, input, logger)
		}

		// The underlying error stays in the logs.
		result.Error = ""
		writeJSON(w, result, statusForResult(result))
	})
}

// exchangeInProcess runs the exchange on the address's session. A session
// that has not loaded anything yet is refreshed first so the record can be
// found.
func exchangeInProcess(ctx context.Context, sessions *session.Registry, input temporal.ExchangeInput, logger *slog.Logger) *temporal.ExchangeResult {
	s := sessions.Get(input.Address)
	if s.Inventory().Len() == 0 {
		if _, err := s.Refresh(ctx); err != nil && !errors.Is(err, session.ErrStale) {
			logger.WarnContext(ctx, "refresh before exchange failed", "address", input.Address, "error", err)
		}
	}

	out := s.Exchange(ctx, input.Key())
	if out.Err != nil {
		logger.WarnContext(ctx, "exchange did not succeed",
			"exchange_id", out.ExchangeID,
			"address", input.Address,
			"outcome", out.Kind,
			"error", out.Err,
		)
	}
	return temporal.ResultFromOutcome(out)
}

func statusForResult(r *temporal.ExchangeResult) int {
	switch exchange.Kind(r.Outcome) {
	case exchange.KindSuccess, exchange.KindCancelled:
		return http.StatusOK
	}
	switch r.Reason {
	case exchange.ReasonNotEligible:
		return http.StatusUnprocessableEntity
	case exchange.ReasonInProgress:
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

// handleListExchanges returns a handler that lists journaled exchanges.
// GET /api/v1/exchanges/{address}?limit={limit}
func handleListExchanges(journal Journal, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		if err := validateAddress(address); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		address = normalizeAddress(address)

		limit := defaultListLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 || n > maxListLimit {
				writeError(w, fmt.Sprintf("invalid limit: must be between 1 and %d", maxListLimit), http.StatusBadRequest)
				return
			}
			limit = n
		}

		exchanges := []*db.Exchange{}
		if journal != nil {
			found, err := journal.ListExchangesByAddress(r.Context(), address, int32(limit))
			if err != nil {
				logger.ErrorContext(r.Context(), "failed to list exchanges", "address", address, "error", err)
				writeError(w, "internal server error", http.StatusInternalServerError)
				return
			}
			exchanges = append(exchanges, found...)
		}

		writeJSON(w, map[string]interface{}{
			"address":   address,
			"exchanges": exchanges,
			"count":     len(exchanges),
		}, http.StatusOK)
	})
}

type balanceResponse struct {
	Address   string `json:"address"`
	Balance   string `json:"balance"`
	Formatted string `json:"formatted"`
	Decimals  int    `json:"decimals"`
}

// handleGetBalance returns a handler that reads the token balance of an
// address.
// GET /api/v1/balance/{address}
func handleGetBalance(balances BalanceReader, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		if err := validateAddress(address); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		address = normalizeAddress(address)
		if balances == nil {
			writeError(w, "ledger not configured", http.StatusServiceUnavailable)
			return
		}

		bal, err := balances.GetBalance(r.Context(), address)
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to read balance", "address", address, "error", err)
			writeError(w, "failed to read balance", http.StatusBadGateway)
			return
		}

		writeJSON(w, balanceResponse{
			Address:   address,
			Balance:   bal.String(),
			Formatted: ledger.FormatUnits(bal, balanceDecimals, balancePlaces),
			Decimals:  balanceDecimals,
		}, http.StatusOK)
	})
}

// handleCloseSession returns a handler that ends the session of an address.
// DELETE /api/v1/sessions/{address}
func handleCloseSession(sessions *session.Registry, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := normalizeAddress(r.PathValue("address"))
		if !sessions.Close(address) {
			writeError(w, "session not found", http.StatusNotFound)
			return
		}
		logger.Debug("session closed", "address", address)
		w.WriteHeader(http.StatusNoContent)
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// validateAddress checks that address is a 0x-prefixed 20-byte hex address.
func validateAddress(address string) error {
	if address == "" {
		return errorf("address is required")
	}
	for _, r := range address {
		if r == 0 || unicode.IsControl(r) {
			return errorf("invalid characters in address: control characters not allowed")
		}
	}
	if !strings.HasPrefix(address, "0x") || !common.IsHexAddress(address) {
		return errorf("invalid address format: must be a 0x-prefixed hex address")
	}
	return nil
}

// normalizeAddress lowercases a validated address so that checksummed and
// plain spellings share one session and one dedup key.
func normalizeAddress(address string) string {
	return strings.ToLower(address)
}

func validateExchangeRequest(req exchangeRequest) error {
	if err := validateAddress(req.Address); err != nil {
		return err
	}
	if req.ContractAddress == "" {
		return errorf("contract_address is required")
	}
	if err := validateAddress(req.ContractAddress); err != nil {
		return errorf("invalid contract_address: %v", err)
	}
	if req.TokenID == "" {
		return errorf("token_id is required")
	}
	if len(req.TokenID) > maxTokenIDLength {
		return errorf("token_id too long: maximum length is %d characters", maxTokenIDLength)
	}
	return nil
}

// errorf is a helper to format error strings.
func errorf(format string, args ...interface{}) error {
	return &validationError{msg: strings.TrimSpace(fmt.Sprintf(format, args...))}
}

type validationError struct {
	msg string
}

func (e *validationError) Error() string {
	return e.msg
}
