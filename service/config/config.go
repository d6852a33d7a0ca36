package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr  string
	MetricsAddr string
	LogLevel    string

	// Database configuration. Empty disables the exchange journal.
	DatabaseURL string

	// NATS configuration. Empty disables event publishing.
	NATSURL string

	// Collection lookup service
	LookupURL     string
	LookupPath    string
	LookupTimeout time.Duration

	// Ledger configuration
	EthRPCURL           string
	ChainID             int64
	MarketplaceContract string
	BalanceTokenAddress string
	// LedgerPrivateKey signs transfers. Without it exchanges are disabled.
	LedgerPrivateKey string
	TransferTimeout  time.Duration

	// SessionIdleTimeout closes sessions unused for this long. Zero keeps
	// them until they are closed explicitly.
	SessionIdleTimeout time.Duration

	// Temporal configuration
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string
	// ExchangeViaTemporal routes API exchanges through ExchangeWorkflow so
	// that several server replicas share one in-flight guard per address.
	ExchangeViaTemporal bool
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.MetricsAddr = getEnvOrDefault("METRICS_ADDR", ":9091")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.NATSURL = os.Getenv("NATS_URL")

	// Lookup service
	cfg.LookupURL = os.Getenv("LOOKUP_URL")
	if cfg.LookupURL == "" {
		errs = append(errs, fmt.Errorf("LOOKUP_URL is required"))
	}
	cfg.LookupPath = getEnvOrDefault("LOOKUP_PATH", "/api/v1/slugs/{address}")
	if !strings.Contains(cfg.LookupPath, "{address}") {
		errs = append(errs, fmt.Errorf("LOOKUP_PATH must contain {address}"))
	}
	lookupTimeout, err := parseDuration("LOOKUP_TIMEOUT", "30s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.LookupTimeout = lookupTimeout
	}

	// Ledger
	cfg.EthRPCURL = os.Getenv("ETH_RPC_URL")
	if cfg.EthRPCURL == "" {
		errs = append(errs, fmt.Errorf("ETH_RPC_URL is required"))
	}

	chainID, err := parseInt("CHAIN_ID", 1)
	if err != nil {
		errs = append(errs, err)
	} else if chainID <= 0 {
		errs = append(errs, fmt.Errorf("CHAIN_ID must be positive, got %d", chainID))
	} else {
		cfg.ChainID = int64(chainID)
	}

	cfg.MarketplaceContract = os.Getenv("MARKETPLACE_CONTRACT")
	if cfg.MarketplaceContract == "" {
		errs = append(errs, fmt.Errorf("MARKETPLACE_CONTRACT is required"))
	} else if !common.IsHexAddress(cfg.MarketplaceContract) {
		errs = append(errs, fmt.Errorf("MARKETPLACE_CONTRACT: invalid address %q", cfg.MarketplaceContract))
	}

	cfg.BalanceTokenAddress = os.Getenv("BALANCE_TOKEN_ADDRESS")
	if cfg.BalanceTokenAddress == "" {
		errs = append(errs, fmt.Errorf("BALANCE_TOKEN_ADDRESS is required"))
	} else if !common.IsHexAddress(cfg.BalanceTokenAddress) {
		errs = append(errs, fmt.Errorf("BALANCE_TOKEN_ADDRESS: invalid address %q", cfg.BalanceTokenAddress))
	}

	cfg.LedgerPrivateKey = os.Getenv("LEDGER_PRIVATE_KEY")

	transferTimeout, err := parseDuration("TRANSFER_TIMEOUT", "5m")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.TransferTimeout = transferTimeout
	}

	idleTimeout, err := parseDuration("SESSION_IDLE_TIMEOUT", "30m")
	if err != nil {
		errs = append(errs, err)
	} else if idleTimeout < 0 {
		errs = append(errs, fmt.Errorf("SESSION_IDLE_TIMEOUT must not be negative, got %s", idleTimeout))
	} else {
		cfg.SessionIdleTimeout = idleTimeout
	}

	// Temporal configuration
	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "nftex-exchanges")
	viaTemporal, err := parseBool("EXCHANGE_VIA_TEMPORAL", false)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.ExchangeViaTemporal = viaTemporal
	}

	// Return all validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.LookupURL == "" {
		errs = append(errs, fmt.Errorf("LookupURL is required"))
	}

	if c.EthRPCURL == "" {
		errs = append(errs, fmt.Errorf("EthRPCURL is required"))
	}

	if c.ChainID <= 0 {
		errs = append(errs, fmt.Errorf("ChainID must be positive"))
	}

	if !common.IsHexAddress(c.MarketplaceContract) {
		errs = append(errs, fmt.Errorf("MarketplaceContract must be a hex address"))
	}

	if !common.IsHexAddress(c.BalanceTokenAddress) {
		errs = append(errs, fmt.Errorf("BalanceTokenAddress must be a hex address"))
	}

	if c.LookupTimeout < time.Second {
		errs = append(errs, fmt.Errorf("LookupTimeout must be at least 1 second"))
	}

	if c.TransferTimeout < time.Second {
		errs = append(errs, fmt.Errorf("TransferTimeout must be at least 1 second"))
	}

	if c.SessionIdleTimeout < 0 {
		errs = append(errs, fmt.Errorf("SessionIdleTimeout must not be negative"))
	}

	if c.TemporalHost == "" {
		errs = append(errs, fmt.Errorf("TemporalHost is required"))
	}

	if c.TemporalNamespace == "" {
		errs = append(errs, fmt.Errorf("TemporalNamespace is required"))
	}

	if c.TemporalTaskQueue == "" {
		errs = append(errs, fmt.Errorf("TemporalTaskQueue is required"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// CanSubmitTransfers reports whether a signing key is configured.
func (c *Config) CanSubmitTransfers() bool {
	return c.LedgerPrivateKey != ""
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

// parseBool parses a boolean from an environment variable or uses a default.
func parseBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q: %w", key, value, err)
	}
	return result, nil
}
