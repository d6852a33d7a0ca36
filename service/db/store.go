package db

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brojonat/nftex/service/db/dbgen"
	"github.com/brojonat/nftex/service/metrics"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateExchange is returned when an exchange id is already journaled.
var ErrDuplicateExchange = errors.New("exchange already recorded")

const pgUniqueViolation = "23505"

// Store is the exchange journal. It wraps the generated sqlc queries.
type Store struct {
	pool    *pgxpool.Pool
	q       *dbgen.Queries
	metrics *metrics.Metrics
}

// NewStore creates a new Store with the given database connection pool.
// m may be nil.
func NewStore(pool *pgxpool.Pool, m *metrics.Metrics) *Store {
	return &Store{
		pool:    pool,
		q:       dbgen.New(pool),
		metrics: m,
	}
}

// Exchange is one journaled exchange attempt.
type Exchange struct {
	ID              uuid.UUID `json:"id"`
	Address         string    `json:"address"`
	ContractAddress string    `json:"contract_address"`
	TokenID         string    `json:"token_id"`
	PriceDecimal    string    `json:"price_decimal"`
	Outcome         string    `json:"outcome"`
	Reason          string    `json:"reason,omitempty"`
	TxHash          string    `json:"tx_hash,omitempty"`
	ErrorDetail     string    `json:"-"`
	CreatedAt       time.Time `json:"created_at"`
}

// CreateExchangeParams contains the parameters for journaling an exchange.
type CreateExchangeParams struct {
	ID              uuid.UUID
	Address         string
	ContractAddress string
	TokenID         string
	PriceDecimal    string
	Outcome         string
	Reason          string
	TxHash          string
	// ErrorDetail is the underlying error, kept for operators only.
	ErrorDetail string
}

// Migrate creates the journal schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateExchange inserts an exchange. A zero ID is replaced by a new one.
func (s *Store) CreateExchange(ctx context.Context, params CreateExchangeParams) (*Exchange, error) {
	start := time.Now()
	if params.ID == uuid.Nil {
		params.ID = uuid.New()
	}

	result, err := s.q.CreateExchange(ctx, dbgen.CreateExchangeParams{
		ID:              params.ID,
		Address:         params.Address,
		ContractAddress: params.ContractAddress,
		TokenID:         params.TokenID,
		PriceDecimal:    params.PriceDecimal,
		Outcome:         params.Outcome,
		Reason:          params.Reason,
		TxHash:          params.TxHash,
		ErrorDetail:     params.ErrorDetail,
	})
	s.record("create_exchange", start, err)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, ErrDuplicateExchange
		}
		return nil, fmt.Errorf("insert exchange: %w", err)
	}
	return dbExchangeToDomain(&result), nil
}

// GetExchange retrieves an exchange by id.
func (s *Store) GetExchange(ctx context.Context, id uuid.UUID) (*Exchange, error) {
	start := time.Now()
	result, err := s.q.GetExchange(ctx, id)
	s.record("get_exchange", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get exchange: %w", err)
	}
	return dbExchangeToDomain(&result), nil
}

// ListExchangesByAddress returns the most recent exchanges of address,
// newest first.
func (s *Store) ListExchangesByAddress(ctx context.Context, address string, limit int32) ([]*Exchange, error) {
	start := time.Now()
	if limit <= 0 {
		limit = 50
	}

	results, err := s.q.ListExchangesByAddress(ctx, dbgen.ListExchangesByAddressParams{
		Address: address,
		Limit:   limit,
	})
	s.record("list_exchanges", start, err)
	if err != nil {
		return nil, fmt.Errorf("list exchanges: %w", err)
	}

	out := make([]*Exchange, len(results))
	for i := range results {
		out[i] = dbExchangeToDomain(&results[i])
	}
	return out, nil
}

// CountExchangesByOutcome counts the exchanges of address per outcome.
// An empty address counts across all addresses.
func (s *Store) CountExchangesByOutcome(ctx context.Context, address string) (map[string]int64, error) {
	start := time.Now()
	rows, err := s.q.CountExchangesByOutcome(ctx, address)
	s.record("count_exchanges", start, err)
	if err != nil {
		return nil, fmt.Errorf("count exchanges: %w", err)
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Outcome] = row.Count
	}
	return counts, nil
}

// dbExchangeToDomain converts a generated row into an Exchange.
func dbExchangeToDomain(e *dbgen.Exchange) *Exchange {
	return &Exchange{
		ID:              e.ID,
		Address:         e.Address,
		ContractAddress: e.ContractAddress,
		TokenID:         e.TokenID,
		PriceDecimal:    e.PriceDecimal,
		Outcome:         e.Outcome,
		Reason:          e.Reason,
		TxHash:          e.TxHash,
		ErrorDetail:     e.ErrorDetail,
		CreatedAt:       e.CreatedAt.Time,
	}
}

func (s *Store) record(operation string, start time.Time, err error) {
	if s.metrics != nil {
		s.metrics.RecordDBQuery(operation, "exchanges", time.Since(start).Seconds(), err)
	}
}
