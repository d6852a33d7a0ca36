package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/brojonat/nftex/service/config"
	"github.com/brojonat/nftex/service/db"
	"github.com/brojonat/nftex/service/exchange"
	"github.com/brojonat/nftex/service/inventory"
	"github.com/brojonat/nftex/service/ledger"
	"github.com/brojonat/nftex/service/lookup"
	"github.com/brojonat/nftex/service/metrics"
	natspkg "github.com/brojonat/nftex/service/nats"
	"github.com/brojonat/nftex/service/server"
	"github.com/brojonat/nftex/service/session"
	"github.com/brojonat/nftex/service/temporal"
)

func main() {
	// A missing .env file is fine; the environment may already be set.
	_ = godotenv.Load()

	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
	)

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsCollector := metrics.NewMetrics(prometheus.DefaultRegisterer)

	// Collection lookup and inventory aggregation
	lookupClient := lookup.NewClient(lookup.ConfigFrom(cfg), metricsCollector, logger)
	aggregator := inventory.NewAggregator(lookupClient, metricsCollector, logger)
	logger.Info("initialized lookup client", "url", cfg.LookupURL, "path", cfg.LookupPath)

	// Ledger client. Without a signing key it only reads balances.
	ledgerCfg, err := ledger.ConfigFrom(cfg)
	if err != nil {
		logger.Error("invalid ledger configuration", "error", err)
		os.Exit(1)
	}
	ledgerClient, err := ledger.Dial(ctx, cfg.EthRPCURL, ledgerCfg, metricsCollector, logger)
	if err != nil {
		logger.Error("failed to connect to ledger", "error", err)
		os.Exit(1)
	}
	var txLedger exchange.Ledger
	if ledgerClient.CanSubmit() {
		txLedger = ledgerClient
		logger.Info("ledger ready to submit transfers", "from", ledgerClient.From().Hex())
	} else {
		logger.Warn("no ledger private key configured, exchanges will fail")
	}

	registry := session.NewRegistry(aggregator, txLedger, metricsCollector, logger)
	go registry.EvictIdle(ctx, cfg.SessionIdleTimeout)

	deps := server.Dependencies{
		Sessions: registry,
		Balances: ledgerClient,
		Gatherer: prometheus.DefaultGatherer,
	}

	// Exchange journal
	if cfg.DatabaseURL != "" {
		dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer dbPool.Close()

		if err := dbPool.Ping(ctx); err != nil {
			logger.Error("failed to ping database", "error", err)
			os.Exit(1)
		}

		store := db.NewStore(dbPool, metricsCollector)
		if err := store.Migrate(ctx); err != nil {
			logger.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
		logger.Info("connected to database")

		deps.Journal = store
		// Exchanges run through Temporal are journaled by the worker.
		if !cfg.ExchangeViaTemporal {
			registry.Subscribe(store.JournalHandler(logger))
		}
	}

	// Event publishing
	if cfg.NATSURL != "" {
		natsPublisher, err := natspkg.NewPublisher(cfg.NATSURL, metricsCollector, logger)
		if err != nil {
			logger.Error("failed to create NATS publisher", "error", err)
			os.Exit(1)
		}
		defer natsPublisher.Close()
		registry.Subscribe(natspkg.SessionHandler(natsPublisher, logger))
		logger.Info("connected to NATS", "url", cfg.NATSURL)
	}

	if cfg.ExchangeViaTemporal {
		temporalClient, err := temporal.NewClient(
			cfg.TemporalHost,
			cfg.TemporalNamespace,
			cfg.TemporalTaskQueue,
			metricsCollector,
			logger,
		)
		if err != nil {
			logger.Error("failed to create temporal client", "error", err)
			os.Exit(1)
		}
		defer temporalClient.Close()
		deps.Starter = temporalClient
		logger.Info("exchanges routed through temporal",
			"host", cfg.TemporalHost,
			"task_queue", cfg.TemporalTaskQueue,
		)
	}

	httpServer := server.New(cfg.ServerAddr, deps, metricsCollector, logger)

	logger.Info("server initialized, all dependencies ready",
		"lookup_url", cfg.LookupURL,
		"eth_rpc_url", cfg.EthRPCURL,
		"journal", cfg.DatabaseURL != "",
		"nats", cfg.NATSURL != "",
		"via_temporal", cfg.ExchangeViaTemporal,
	)

	// Start HTTP server in background
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		// Graceful shutdown with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
