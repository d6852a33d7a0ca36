package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Price is the sale price of a listed record. MinorUnits is a base-10
// integer string.
type Price struct {
	MinorUnits string `json:"minor_units"`
	Decimal    string `json:"decimal"`
	Currency   string `json:"currency"`
}

// Record is one NFT as returned by the server.
type Record struct {
	ID              string `json:"id"`
	ContractAddress string `json:"contract_address"`
	TokenID         string `json:"token_id"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	ImageURL        string `json:"image_url,omitempty"`
	OrderHash       string `json:"order_hash,omitempty"`
	Membership      string `json:"membership"`
	Price           *Price `json:"price,omitempty"`
	CurrencySymbol  string `json:"currency_symbol,omitempty"`
}

// Inventory is the snapshot of an address. Warning is set when the server
// could not reach the lookup service and served its last known snapshot.
type Inventory struct {
	Address string    `json:"address"`
	Listed  []*Record `json:"listed"`
	Owned   []*Record `json:"owned"`
	Warning string    `json:"warning,omitempty"`
}

// ExchangeResult is the outcome of an exchange request. Outcome is one of
// "success", "cancelled" or "failed"; Reason is the user-facing message.
type ExchangeResult struct {
	ExchangeID      string `json:"exchange_id"`
	Address         string `json:"address"`
	ContractAddress string `json:"contract_address"`
	TokenID         string `json:"token_id"`
	PriceDecimal    string `json:"price_decimal,omitempty"`
	Outcome         string `json:"outcome"`
	Reason          string `json:"reason,omitempty"`
	TxHash          string `json:"tx_hash,omitempty"`
	RefreshError    string `json:"refresh_error,omitempty"`
	Refreshed       bool   `json:"refreshed"`
	Listed          int    `json:"listed"`
	Owned           int    `json:"owned"`
}

// Exchange is one journaled exchange attempt.
type Exchange struct {
	ID              string    `json:"id"`
	Address         string    `json:"address"`
	ContractAddress string    `json:"contract_address"`
	TokenID         string    `json:"token_id"`
	PriceDecimal    string    `json:"price_decimal"`
	Outcome         string    `json:"outcome"`
	Reason          string    `json:"reason,omitempty"`
	TxHash          string    `json:"tx_hash,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Balance is a token balance. Formatted is rounded to 4 decimal places.
type Balance struct {
	Address   string `json:"address"`
	Balance   string `json:"balance"`
	Formatted string `json:"formatted"`
	Decimals  int    `json:"decimals"`
}

// Client is the HTTP client for the nftex service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new nftex service client. Exchanges wait for on-chain
// confirmation, so the default timeout is generous.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Minute}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// GetInventory refreshes and returns the inventory of address.
func (c *Client) GetInventory(ctx context.Context, address string) (*Inventory, error) {
	var inv Inventory
	if err := c.getJSON(ctx, "/api/v1/inventory/"+url.PathEscape(address), &inv); err != nil {
		return nil, err
	}
	if inv.Warning != "" {
		c.logger.Warn("server returned a stale inventory", "address", address, "warning", inv.Warning)
	}
	return &inv, nil
}

// Exchange asks the server to exchange a listed NFT for address. A result is
// returned for every outcome the server decided, including cancellations and
// failures; an error means no outcome was obtained.
func (c *Client) Exchange(ctx context.Context, address, contractAddress, tokenID string) (*ExchangeResult, error) {
	body, err := json.Marshal(map[string]string{
		"address":          address,
		"contract_address": contractAddress,
		"token_id":         tokenID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/exchanges", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusConflict, http.StatusUnprocessableEntity, http.StatusBadGateway:
	default:
		return nil, c.parseErrorResponse(resp)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	var result ExchangeResult
	if err := json.Unmarshal(raw, &result); err != nil || result.Outcome == "" {
		return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(raw))
	}

	c.logger.Debug("exchange finished",
		"exchange_id", result.ExchangeID,
		"address", address,
		"outcome", result.Outcome,
	)
	return &result, nil
}

// ListExchanges returns the journaled exchanges of address, newest first.
// A limit of zero uses the server default.
func (c *Client) ListExchanges(ctx context.Context, address string, limit int) ([]*Exchange, error) {
	path := "/api/v1/exchanges/" + url.PathEscape(address)
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	var response struct {
		Exchanges []*Exchange `json:"exchanges"`
	}
	if err := c.getJSON(ctx, path, &response); err != nil {
		return nil, err
	}
	return response.Exchanges, nil
}

// GetBalance returns the token balance of address.
func (c *Client) GetBalance(ctx context.Context, address string) (*Balance, error) {
	var bal Balance
	if err := c.getJSON(ctx, "/api/v1/balance/"+url.PathEscape(address), &bal); err != nil {
		return nil, err
	}
	return &bal, nil
}

// CloseSession ends the server-side session of address.
func (c *Client) CloseSession(ctx context.Context, address string) error {
	u := fmt.Sprintf("%s/api/v1/sessions/%s", c.baseURL, url.PathEscape(address))
	req, err := http.NewRequestWithContext(ctx, "DELETE", u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return c.parseErrorResponse(resp)
	}

	c.logger.Debug("session closed", "address", address)
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return fmt.Errorf("request failed: %s", errResp.Error)
}
