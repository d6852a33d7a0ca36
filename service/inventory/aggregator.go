package inventory

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/brojonat/nftex/service/metrics"
)

// Lookup fetches the raw collections for an address.
type Lookup interface {
	Lookup(ctx context.Context, address string) (*LookupResponse, error)
}

// Aggregator builds Inventory snapshots from the lookup service.
type Aggregator struct {
	lookup  Lookup
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewAggregator creates an Aggregator. If metrics is nil, no metrics are recorded.
func NewAggregator(lookup Lookup, m *metrics.Metrics, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Aggregator{
		lookup:  lookup,
		metrics: m,
		logger:  logger.With("component", "inventory_aggregator"),
	}
}

// Load fetches and merges the collections of address into a new snapshot.
//
// An empty address returns an empty inventory together with ErrNoAddress and
// does not contact the lookup service. Lookup failures return a
// *LookupError and no snapshot; there are no partial results.
func (a *Aggregator) Load(ctx context.Context, address string) (Inventory, error) {
	if address == "" {
		return EmptyInventory(), ErrNoAddress
	}

	start := time.Now()
	resp, err := a.lookup.Lookup(ctx, address)
	if err == nil && resp == nil {
		err = errors.New("empty lookup response")
	}
	if err != nil {
		a.record("error", start)
		a.logger.WarnContext(ctx, "collection lookup failed", "address", address, "error", err)
		return Inventory{}, &LookupError{Address: address, Err: err}
	}

	inv, stats := MergeWithStats(resp.Collections)
	a.record("success", start)
	if a.metrics != nil {
		a.metrics.RecordInventorySize(len(inv.Listed), len(inv.Owned))
		a.metrics.RecordMergeDropped("duplicate", stats.DuplicatesDropped)
		a.metrics.RecordMergeDropped("malformed_record", stats.MalformedRecords)
		a.metrics.RecordMergeDropped("malformed_collection", stats.MalformedData)
	}

	a.logger.DebugContext(ctx, "inventory loaded",
		"address", address,
		"collections", stats.Collections,
		"listed", len(inv.Listed),
		"owned", len(inv.Owned),
		"duplicates_dropped", stats.DuplicatesDropped,
		"malformed_records", stats.MalformedRecords,
		"malformed_collections", stats.MalformedData,
	)
	return inv, nil
}

func (a *Aggregator) record(status string, start time.Time) {
	if a.metrics != nil {
		a.metrics.RecordInventoryLoad(status, time.Since(start).Seconds())
	}
}
