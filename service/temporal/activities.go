package temporal

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/brojonat/nftex/service/db"
	"github.com/brojonat/nftex/service/exchange"
	"github.com/brojonat/nftex/service/inventory"
	"github.com/brojonat/nftex/service/metrics"
	natspkg "github.com/brojonat/nftex/service/nats"
	"github.com/brojonat/nftex/service/session"
)

// ExchangeInput identifies the listed NFT an address wants to exchange.
type ExchangeInput struct {
	Address         string `json:"address"`
	ContractAddress string `json:"contract_address"`
	TokenID         string `json:"token_id"`
}

// Key returns the dedup key of the requested record.
func (in ExchangeInput) Key() inventory.DedupKey {
	return inventory.DedupKey{ContractAddress: in.ContractAddress, TokenID: in.TokenID}
}

// ExchangeResult is the serializable form of an exchange.Outcome.
type ExchangeResult struct {
	ExchangeID      string `json:"exchange_id"`
	Address         string `json:"address"`
	ContractAddress string `json:"contract_address"`
	TokenID         string `json:"token_id"`
	PriceDecimal    string `json:"price_decimal,omitempty"`
	Outcome         string `json:"outcome"`
	Reason          string `json:"reason,omitempty"`
	TxHash          string `json:"tx_hash,omitempty"`
	Error           string `json:"error,omitempty"`
	RefreshError    string `json:"refresh_error,omitempty"`
	Refreshed       bool   `json:"refreshed"`
	Listed          int    `json:"listed"`
	Owned           int    `json:"owned"`
}

// ResultFromOutcome converts an outcome into a workflow result.
func ResultFromOutcome(out exchange.Outcome) *ExchangeResult {
	r := &ExchangeResult{
		ExchangeID:      out.ExchangeID,
		Address:         out.Address,
		ContractAddress: out.Key.ContractAddress,
		TokenID:         out.Key.TokenID,
		PriceDecimal:    out.Price,
		Outcome:         string(out.Kind),
		Reason:          out.Reason,
		TxHash:          out.TxHash,
	}
	if out.Err != nil {
		r.Error = out.Err.Error()
	}
	if out.RefreshErr != nil {
		r.RefreshError = out.RefreshErr.Error()
	}
	if out.Inventory != nil {
		r.Refreshed = true
		r.Listed = len(out.Inventory.Listed)
		r.Owned = len(out.Inventory.Owned)
	}
	return r
}

// ToOutcome converts the result back into an exchange.Outcome. The refreshed
// inventory itself is not carried.
func (r *ExchangeResult) ToOutcome() exchange.Outcome {
	out := exchange.Outcome{
		Kind:       exchange.Kind(r.Outcome),
		ExchangeID: r.ExchangeID,
		Address:    r.Address,
		Key:        inventory.DedupKey{ContractAddress: r.ContractAddress, TokenID: r.TokenID},
		Price:      r.PriceDecimal,
		Reason:     r.Reason,
		TxHash:     r.TxHash,
	}
	if r.Error != "" {
		out.Err = errors.New(r.Error)
	}
	if r.RefreshError != "" {
		out.RefreshErr = errors.New(r.RefreshError)
	}
	return out
}

// InProgressResult is returned when an exchange workflow for the address is
// already running.
func InProgressResult(input ExchangeInput) *ExchangeResult {
	return &ExchangeResult{
		Address:         input.Address,
		ContractAddress: input.ContractAddress,
		TokenID:         input.TokenID,
		Outcome:         string(exchange.KindFailed),
		Reason:          exchange.ReasonInProgress,
	}
}

// SessionProvider hands out the session of an address. *session.Registry
// satisfies it.
type SessionProvider interface {
	Get(address string) *session.Session
}

// StoreInterface defines the journal operations needed by activities.
// This allows for easy mocking in tests.
type StoreInterface interface {
	CreateExchange(context.Context, db.CreateExchangeParams) (*db.Exchange, error)
}

// PublisherInterface defines the NATS publishing operations needed by activities.
type PublisherInterface interface {
	PublishExchange(ctx context.Context, event *natspkg.ExchangeEvent) error
}

// Activities holds the dependencies needed by Temporal activities.
// Store and publisher are optional; the matching activities become no-ops.
type Activities struct {
	sessions  SessionProvider
	store     StoreInterface
	publisher PublisherInterface
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
// If metrics is nil, no metrics will be recorded.
func NewActivities(
	sessions SessionProvider,
	store StoreInterface,
	publisher PublisherInterface,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		sessions:  sessions,
		store:     store,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

// SubmitExchange refreshes the address's inventory and submits the requested
// record. The outcome is the result; only infrastructure problems are
// returned as errors, and the workflow never retries this activity.
func (a *Activities) SubmitExchange(ctx context.Context, input ExchangeInput) (result *ExchangeResult, err error) {
	start := time.Now()
	defer a.observe("SubmitExchange", start, &err)

	if a.sessions == nil {
		return nil, errors.New("no session provider configured")
	}

	s := a.sessions.Get(input.Address)
	if _, rerr := s.Refresh(ctx); rerr != nil && !errors.Is(rerr, session.ErrStale) {
		a.logger.WarnContext(ctx, "inventory refresh before exchange failed",
			"address", input.Address,
			"error", rerr,
		)
	}

	out := s.Exchange(ctx, input.Key())
	a.logger.InfoContext(ctx, "exchange submitted",
		"exchange_id", out.ExchangeID,
		"address", input.Address,
		"contract_address", input.ContractAddress,
		"token_id", input.TokenID,
		"outcome", out.Kind,
	)
	return ResultFromOutcome(out), nil
}

// RecordExchange journals the result. Retries of an already journaled
// exchange succeed.
func (a *Activities) RecordExchange(ctx context.Context, result ExchangeResult) (err error) {
	start := time.Now()
	defer a.observe("RecordExchange", start, &err)

	if a.store == nil {
		a.logger.DebugContext(ctx, "no journal configured, skipping", "exchange_id", result.ExchangeID)
		return nil
	}

	_, err = a.store.CreateExchange(ctx, db.ParamsFromOutcome(result.ToOutcome()))
	if errors.Is(err, db.ErrDuplicateExchange) {
		a.logger.DebugContext(ctx, "exchange already journaled", "exchange_id", result.ExchangeID)
		return nil
	}
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to journal exchange",
			"exchange_id", result.ExchangeID,
			"error", err,
		)
		return err
	}
	return nil
}

// PublishExchange publishes the result to NATS.
func (a *Activities) PublishExchange(ctx context.Context, result ExchangeResult) (err error) {
	start := time.Now()
	defer a.observe("PublishExchange", start, &err)

	if a.publisher == nil {
		a.logger.DebugContext(ctx, "no publisher configured, skipping", "exchange_id", result.ExchangeID)
		return nil
	}

	event := natspkg.FromOutcome(result.ToOutcome())
	event.Refreshed = result.Refreshed
	if err = a.publisher.PublishExchange(ctx, event); err != nil {
		a.logger.ErrorContext(ctx, "failed to publish exchange",
			"exchange_id", result.ExchangeID,
			"error", err,
		)
		return err
	}
	return nil
}

func (a *Activities) observe(activity string, start time.Time, err *error) {
	if a.metrics != nil {
		a.metrics.RecordActivityDuration(activity, time.Since(start).Seconds(), *err)
	}
}
