package session

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/brojonat/nftex/service/exchange"
	"github.com/brojonat/nftex/service/inventory"
	"github.com/brojonat/nftex/service/metrics"
)

// Registry keeps one session per address for servers that handle many
// users. All sessions share one exchange controller, so at most one
// transfer is in flight per registry regardless of address.
type Registry struct {
	loader     Loader
	controller *exchange.Controller
	metrics    *metrics.Metrics
	logger     *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	handlers []Handler
}

// NewRegistry creates a Registry. A nil ledger disables exchanges.
func NewRegistry(loader Loader, ledger exchange.Ledger, m *metrics.Metrics, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	r := &Registry{
		loader:   loader,
		metrics:  m,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
	r.controller = exchange.NewController(ledger, r, m, logger)
	return r
}

// Subscribe registers h on every session the registry creates from now on.
// Call it before serving requests.
func (r *Registry) Subscribe(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, h)
}

// Get returns the session for address, creating it on first use. The new
// session is bound to address but has not loaded anything yet.
func (r *Registry) Get(address string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[address]; ok {
		s.touch(time.Now())
		return s
	}
	s := newSession(address, r.loader, r.controller, r.metrics, r.logger)
	for _, h := range r.handlers {
		s.Subscribe(h)
	}
	r.sessions[address] = s
	if r.metrics != nil {
		r.metrics.RecordSessionChange(1)
	}
	return s
}

// Lookup returns the session for address if one exists.
func (r *Registry) Lookup(address string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[address]
	return s, ok
}

// Close ends and discards the session for address. It reports whether a
// session existed.
func (r *Registry) Close(address string) bool {
	r.mu.Lock()
	s, ok := r.sessions[address]
	delete(r.sessions, address)
	r.mu.Unlock()

	if !ok {
		return false
	}
	s.Close()
	if r.metrics != nil {
		r.metrics.RecordSessionChange(-1)
	}
	return true
}

// Sweep closes every session that has been idle for at least idleTimeout
// as of now and returns how many it closed. Sessions with a load or an
// exchange running are kept.
func (r *Registry) Sweep(now time.Time, idleTimeout time.Duration) int {
	cutoff := now.Add(-idleTimeout)

	r.mu.Lock()
	var evicted []*Session
	for address, s := range r.sessions {
		if s.idle(cutoff) {
			delete(r.sessions, address)
			evicted = append(evicted, s)
		}
	}
	r.mu.Unlock()

	for _, s := range evicted {
		s.Close()
		if r.metrics != nil {
			r.metrics.RecordSessionChange(-1)
		}
	}
	return len(evicted)
}

// EvictIdle sweeps idle sessions until ctx is done. A non-positive
// idleTimeout disables eviction.
func (r *Registry) EvictIdle(ctx context.Context, idleTimeout time.Duration) {
	if idleTimeout <= 0 {
		return
	}
	interval := idleTimeout / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := r.Sweep(now, idleTimeout); n > 0 {
				r.logger.DebugContext(ctx, "evicted idle sessions", "count", n, "remaining", r.Len())
			}
		}
	}
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Load routes the controller's post-transfer refresh to the session of
// address. Without a session the loader is called directly.
func (r *Registry) Load(ctx context.Context, address string) (inventory.Inventory, error) {
	if s, ok := r.Lookup(address); ok {
		return s.Load(ctx, address)
	}
	return r.loader.Load(ctx, address)
}
