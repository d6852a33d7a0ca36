package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brojonat/nftex/service/metrics"
	"github.com/brojonat/nftex/service/session"
	"github.com/brojonat/nftex/service/temporal"
)

// Dependencies are the collaborators of the HTTP server. Only Sessions is
// required.
type Dependencies struct {
	Sessions *session.Registry
	// Journal serves exchange history. Nil disables history.
	Journal Journal
	// Starter routes exchanges through Temporal. Nil runs them in-process.
	Starter temporal.ExchangeStarter
	// Balances serves token balances. Nil disables the balance endpoint.
	Balances BalanceReader
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

// Server represents the HTTP server for the exchange service.
type Server struct {
	addr    string
	deps    Dependencies
	metrics *metrics.Metrics
	logger  *slog.Logger
	server  *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The metrics is optional - if nil, request metrics won't be recorded.
func New(addr string, deps Dependencies, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:    addr,
		deps:    deps,
		metrics: m,
		logger:  logger.With("component", "server"),
	}
}

// Handler builds the routed, middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	route := func(pattern, name string, h http.Handler) {
		mux.Handle(pattern, metrics.HTTPMetricsMiddleware(s.metrics, name)(h))
	}

	route("GET /api/v1/inventory/{address}", "/api/v1/inventory/{address}", handleGetInventory(s.deps.Sessions, s.logger))
	route("POST /api/v1/exchanges", "/api/v1/exchanges", handleExchange(s.deps.Sessions, s.deps.Starter, s.logger))
	route("GET /api/v1/exchanges/{address}", "/api/v1/exchanges/{address}", handleListExchanges(s.deps.Journal, s.logger))
	route("GET /api/v1/balance/{address}", "/api/v1/balance/{address}", handleGetBalance(s.deps.Balances, s.logger))
	route("DELETE /api/v1/sessions/{address}", "/api/v1/sessions/{address}", handleCloseSession(s.deps.Sessions, s.logger))

	if s.deps.Starter != nil {
		s.logger.Info("exchanges routed through temporal")
	}
	if s.deps.Journal == nil {
		s.logger.Warn("exchange journal not configured, history endpoint returns empty lists")
	}

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if a gatherer is configured)
	if s.deps.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	return corsMiddleware(mux)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // exchanges wait for on-chain confirmation
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
