package lookup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/brojonat/nftex/service/inventory"
	"github.com/brojonat/nftex/service/metrics"
)

// DefaultPath is the lookup endpoint; {address} is substituted per call.
const DefaultPath = "/api/v1/slugs/{address}"

// Config configures a Client.
type Config struct {
	BaseURL       string
	Path          string
	Timeout       time.Duration
	RetryCount    int
	RetryWait     time.Duration
	RetryMaxWait  time.Duration
	UserAgent     string
	RateLimitWait time.Duration
}

// DefaultConfig returns the settings used in production for baseURL.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:       baseURL,
		Path:          DefaultPath,
		Timeout:       30 * time.Second,
		RetryCount:    3,
		RetryWait:     time.Second,
		RetryMaxWait:  10 * time.Second,
		UserAgent:     "nftex",
		RateLimitWait: 10 * time.Second,
	}
}

// Client calls the collection lookup service. It satisfies
// inventory.Lookup.
type Client struct {
	http    *resty.Client
	path    string
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewClient creates a lookup client. Transport errors, 429 and 5xx responses
// are retried with backoff; 429 honors Retry-After.
func NewClient(cfg Config, m *metrics.Metrics, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	logger = logger.With("component", "lookup_client")

	rc := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(cfg.RetryMaxWait).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", cfg.UserAgent).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= 500
		}).
		AddRetryHook(func(resp *resty.Response, err error) {
			reason := "transport"
			if err == nil && resp != nil {
				reason = strconv.Itoa(resp.StatusCode())
			}
			logger.Debug("retrying collection lookup", "reason", reason)
			if m != nil {
				m.RecordLookupRetry(reason)
			}
		}).
		SetRetryAfter(func(client *resty.Client, resp *resty.Response) (time.Duration, error) {
			if resp == nil || resp.StatusCode() != http.StatusTooManyRequests {
				return 0, nil
			}
			if ra := resp.Header().Get("Retry-After"); ra != "" {
				if seconds, err := strconv.Atoi(ra); err == nil {
					return time.Duration(seconds) * time.Second, nil
				}
			}
			return cfg.RateLimitWait, nil
		})

	return &Client{
		http:    rc,
		path:    cfg.Path,
		metrics: m,
		logger:  logger,
	}
}

// Lookup fetches the raw collections for address.
//
// A missing collections field yields an empty response. Individual
// collection entries that are not objects are kept as empty collections so
// the merger skips them without failing the whole lookup.
func (c *Client) Lookup(ctx context.Context, address string) (*inventory.LookupResponse, error) {
	start := time.Now()
	resp, err := c.lookup(ctx, address)
	status := "success"
	if err != nil {
		status = "error"
	}
	if c.metrics != nil {
		c.metrics.RecordLookupCall(status, time.Since(start).Seconds())
	}
	return resp, err
}

func (c *Client) lookup(ctx context.Context, address string) (*inventory.LookupResponse, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("address", address).
		Get(c.path)
	if err != nil {
		return nil, fmt.Errorf("failed to query lookup service: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, &StatusError{StatusCode: resp.StatusCode(), Body: truncate(resp.String(), 256)}
	}

	out, err := decode(resp.Body())
	if err != nil {
		return nil, err
	}
	c.logger.DebugContext(ctx, "collection lookup complete",
		"address", address,
		"collections", len(out.Collections),
		"attempts", resp.Request.Attempt,
	)
	return out, nil
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("lookup service returned %d: %s", e.StatusCode, e.Body)
}

var errNotObject = errors.New("lookup response is not a JSON object")

func decode(body []byte) (*inventory.LookupResponse, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errNotObject
	}

	var top struct {
		Collections json.RawMessage `json:"collections"`
	}
	if err := json.Unmarshal(trimmed, &top); err != nil {
		return nil, fmt.Errorf("failed to decode lookup response: %w", err)
	}

	out := &inventory.LookupResponse{}
	raw := bytes.TrimSpace(top.Collections)
	if len(raw) == 0 || string(raw) == "null" {
		return out, nil
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("collections is not an array: %w", err)
	}
	out.Collections = make([]inventory.RawCollection, 0, len(entries))
	for _, entry := range entries {
		var col inventory.RawCollection
		e := bytes.TrimSpace(entry)
		if len(e) > 0 && e[0] == '{' {
			// Data is raw, so any object decodes.
			_ = json.Unmarshal(e, &col)
		}
		out.Collections = append(out.Collections, col)
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
