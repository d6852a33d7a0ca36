package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/brojonat/nftex/service/exchange"
	"github.com/brojonat/nftex/service/inventory"
	"github.com/brojonat/nftex/service/metrics"
)

// ErrStale is returned when a load finished after a newer load was issued or
// the address changed. Its result was discarded.
var ErrStale = errors.New("load result superseded")

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("session closed")

// Loader produces inventory snapshots. *inventory.Aggregator satisfies it.
type Loader interface {
	Load(ctx context.Context, address string) (inventory.Inventory, error)
}

// Exchanger submits exchanges. *exchange.Controller satisfies it.
type Exchanger interface {
	Submit(ctx context.Context, record inventory.NftRecord, address string) exchange.Outcome
}

// Session holds the state of one user: the current address, the current
// inventory snapshot and the tag of the most recently issued load.
//
// Every load is tagged with a monotonically increasing number. When a load
// finishes, its result is applied only if its tag is still the newest and
// the address has not changed; otherwise it is dropped. Snapshots are
// replaced wholesale, never patched.
type Session struct {
	loader    Loader
	exchanger Exchanger
	metrics   *metrics.Metrics
	logger    *slog.Logger

	mu        sync.Mutex
	address   string
	inventory inventory.Inventory
	tag       uint64
	closed    bool
	handlers  []*handlerEntry
	// active counts running loads and exchanges; lastUsed is when the
	// session was last handed out or last finished one.
	active   int
	lastUsed time.Time
}

type handlerEntry struct {
	fn Handler
}

// New creates a session with its own exchange controller over ledger. A nil
// ledger leaves the session read-only: every exchange fails its preconditions.
func New(loader Loader, ledger exchange.Ledger, m *metrics.Metrics, logger *slog.Logger) *Session {
	s := newSession("", loader, nil, m, logger)
	s.exchanger = exchange.NewController(ledger, s, m, logger)
	return s
}

func newSession(address string, loader Loader, exchanger Exchanger, m *metrics.Metrics, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Session{
		loader:    loader,
		exchanger: exchanger,
		metrics:   m,
		logger:    logger.With("component", "session"),
		address:   address,
		inventory: inventory.EmptyInventory(),
		lastUsed:  time.Now(),
	}
}

// Address returns the current address, empty when none is connected.
func (s *Session) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address
}

// Inventory returns the current snapshot.
func (s *Session) Inventory() inventory.Inventory {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inventory
}

// Subscribe registers h for all future events and returns a func that
// removes it.
func (s *Session) Subscribe(h Handler) func() {
	entry := &handlerEntry{fn: h}
	s.mu.Lock()
	s.handlers = append(s.handlers, entry)
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, e := range s.handlers {
			if e == entry {
				s.handlers = append(s.handlers[:i:i], s.handlers[i+1:]...)
				return
			}
		}
	}
}

// SetAddress switches the session to address. If the address changed, the
// snapshot is reset, AddressChanged is emitted and any in-flight load becomes
// stale. Either way the inventory is then reloaded.
func (s *Session) SetAddress(ctx context.Context, address string) (inventory.Inventory, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return inventory.Inventory{}, ErrClosed
	}
	changed := s.address != address
	if changed {
		s.address = address
		s.inventory = inventory.EmptyInventory()
		s.tag++
	}
	s.mu.Unlock()

	if !changed {
		return s.load(ctx, address, "refresh")
	}
	s.logger.DebugContext(ctx, "address changed", "address", address)
	s.emit(ctx, Event{Type: AddressChanged, Address: address})
	return s.load(ctx, address, "address_changed")
}

// Refresh reloads the inventory of the current address.
//
// A LookupError keeps the previous snapshot; it is returned together with
// that snapshot as a non-fatal diagnostic. ErrStale means a newer load
// superseded this one and the returned snapshot is the current one.
func (s *Session) Refresh(ctx context.Context) (inventory.Inventory, error) {
	return s.load(ctx, s.Address(), "refresh")
}

// Load satisfies exchange.InventoryLoader so the post-transfer refresh of
// the session's controller goes through the same tagging as any other load.
// It returns the loader's result even when the session discards it as stale.
func (s *Session) Load(ctx context.Context, address string) (inventory.Inventory, error) {
	inv, _, err := s.loadTagged(ctx, address, "exchange")
	return inv, err
}

// Exchange submits the record identified by key from the current snapshot.
// A key that is not in the snapshot is submitted as an unlisted record and
// fails its preconditions. On success the refreshed snapshot has already
// replaced the current one when Exchange returns, unless it was stale.
func (s *Session) Exchange(ctx context.Context, key inventory.DedupKey) exchange.Outcome {
	s.mu.Lock()
	address := s.address
	record, ok := s.inventory.Find(key)
	closed := s.closed
	s.mu.Unlock()

	if !ok {
		record = inventory.NftRecord{ContractAddress: key.ContractAddress, TokenID: key.TokenID}
	}
	if closed {
		return exchange.Outcome{
			Kind:    exchange.KindFailed,
			Address: address,
			Key:     key,
			Reason:  exchange.ReasonNotEligible,
			Err:     ErrClosed,
		}
	}

	s.begin()
	defer s.end()
	out := s.exchanger.Submit(ctx, record, address)
	s.emit(ctx, Event{Type: ExchangeCompleted, Address: address, Outcome: &out, Err: out.Err})
	return out
}

// Close ends the session. In-flight loads become stale and subscribers are
// dropped.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.tag++
	s.handlers = nil
}

func (s *Session) begin() {
	s.mu.Lock()
	s.active++
	s.mu.Unlock()
}

func (s *Session) end() {
	s.mu.Lock()
	s.active--
	s.lastUsed = time.Now()
	s.mu.Unlock()
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	if now.After(s.lastUsed) {
		s.lastUsed = now
	}
	s.mu.Unlock()
}

// idle reports whether nothing is running on the session and it has not
// been used since cutoff.
func (s *Session) idle(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active == 0 && !s.lastUsed.After(cutoff)
}

func (s *Session) load(ctx context.Context, address, source string) (inventory.Inventory, error) {
	inv, applied, err := s.loadTagged(ctx, address, source)
	switch {
	case applied:
		return s.resultOf(inv, err)
	case errors.Is(err, ErrClosed):
		return inventory.Inventory{}, ErrClosed
	default:
		return s.Inventory(), ErrStale
	}
}

// resultOf maps an applied load result to what callers see.
func (s *Session) resultOf(inv inventory.Inventory, err error) (inventory.Inventory, error) {
	switch {
	case err == nil:
		return inv, nil
	case errors.Is(err, inventory.ErrNoAddress):
		return inventory.EmptyInventory(), nil
	default:
		return s.Inventory(), err
	}
}

// loadTagged issues one tagged load for address and applies the result if
// it is still current. applied is false when the result was discarded.
func (s *Session) loadTagged(ctx context.Context, address, source string) (inventory.Inventory, bool, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return inventory.Inventory{}, false, ErrClosed
	}
	// A load for an address other than the current one can never be applied
	// and must not supersede the current address's loads.
	stale := address != s.address
	if !stale {
		s.tag++
	}
	tag := s.tag
	s.active++
	s.mu.Unlock()
	defer s.end()

	inv, err := s.loader.Load(ctx, address)

	s.mu.Lock()
	if stale || s.closed || tag != s.tag || address != s.address {
		s.mu.Unlock()
		s.logger.DebugContext(ctx, "discarding stale inventory result", "address", address, "tag", tag, "source", source)
		if s.metrics != nil {
			s.metrics.RecordStaleResult(source)
		}
		return inv, false, err
	}

	var ev Event
	switch {
	case err == nil:
		s.inventory = inv
		ev = Event{Type: InventoryLoaded, Address: address, Tag: tag, Inventory: &inv}
	case errors.Is(err, inventory.ErrNoAddress):
		empty := inventory.EmptyInventory()
		s.inventory = empty
		ev = Event{Type: InventoryLoaded, Address: address, Tag: tag, Inventory: &empty}
	default:
		prev := s.inventory
		ev = Event{Type: InventoryLoadFailed, Address: address, Tag: tag, Inventory: &prev, Err: err}
	}
	s.mu.Unlock()

	if ev.Type == InventoryLoadFailed {
		s.logger.WarnContext(ctx, "inventory load failed, keeping previous snapshot", "address", address, "error", err)
	}
	s.emit(ctx, ev)
	return inv, true, err
}

func (s *Session) emit(ctx context.Context, ev Event) {
	s.mu.Lock()
	handlers := make([]*handlerEntry, len(s.handlers))
	copy(handlers, s.handlers)
	s.mu.Unlock()

	for _, h := range handlers {
		h.fn(ctx, ev)
	}
}
