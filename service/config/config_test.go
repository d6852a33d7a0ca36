package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testMarketplace = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	testToken       = "0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512"
)

func setRequiredEnv() {
	os.Setenv("LOOKUP_URL", "https://lookup.example.com")
	os.Setenv("ETH_RPC_URL", "http://localhost:8545")
	os.Setenv("MARKETPLACE_CONTRACT", testMarketplace)
	os.Setenv("BALANCE_TOKEN_ADDRESS", testToken)
}

func TestLoad_ValidConfig(t *testing.T) {
	setRequiredEnv()
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "https://lookup.example.com", cfg.LookupURL)
	assert.Equal(t, "/api/v1/slugs/{address}", cfg.LookupPath)
	assert.Equal(t, 30*time.Second, cfg.LookupTimeout)
	assert.Equal(t, "http://localhost:8545", cfg.EthRPCURL)
	assert.Equal(t, int64(1), cfg.ChainID)
	assert.Equal(t, 5*time.Minute, cfg.TransferTimeout)
	assert.Equal(t, 30*time.Minute, cfg.SessionIdleTimeout)
	assert.Equal(t, ":8080", cfg.ServerAddr) // Default
	assert.Equal(t, ":9091", cfg.MetricsAddr)
	assert.Equal(t, "info", cfg.LogLevel) // Default
	assert.Equal(t, "nftex-exchanges", cfg.TemporalTaskQueue)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Empty(t, cfg.NATSURL)
	assert.False(t, cfg.CanSubmitTransfers())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingRequired(t *testing.T) {
	tests := []struct {
		unset string
		want  string
	}{
		{"LOOKUP_URL", "LOOKUP_URL is required"},
		{"ETH_RPC_URL", "ETH_RPC_URL is required"},
		{"MARKETPLACE_CONTRACT", "MARKETPLACE_CONTRACT is required"},
		{"BALANCE_TOKEN_ADDRESS", "BALANCE_TOKEN_ADDRESS is required"},
	}

	for _, tt := range tests {
		t.Run(tt.unset, func(t *testing.T) {
			setRequiredEnv()
			os.Unsetenv(tt.unset)
			defer cleanupEnv()

			cfg, err := Load()
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_InvalidAddress(t *testing.T) {
	setRequiredEnv()
	os.Setenv("MARKETPLACE_CONTRACT", "0x1234")
	defer cleanupEnv()

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MARKETPLACE_CONTRACT: invalid address")
}

func TestLoad_InvalidDuration(t *testing.T) {
	setRequiredEnv()
	os.Setenv("TRANSFER_TIMEOUT", "forever")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestLoad_SessionIdleTimeout(t *testing.T) {
	setRequiredEnv()
	os.Setenv("SESSION_IDLE_TIMEOUT", "0")
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)
	assert.Zero(t, cfg.SessionIdleTimeout)

	os.Setenv("SESSION_IDLE_TIMEOUT", "-1m")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SESSION_IDLE_TIMEOUT must not be negative")
}

func TestLoad_InvalidChainID(t *testing.T) {
	for _, v := range []string{"mainnet", "0", "-5"} {
		t.Run(v, func(t *testing.T) {
			setRequiredEnv()
			os.Setenv("CHAIN_ID", v)
			defer cleanupEnv()

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_LookupPathNeedsPlaceholder(t *testing.T) {
	setRequiredEnv()
	os.Setenv("LOOKUP_PATH", "/api/v1/slugs")
	defer cleanupEnv()

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOOKUP_PATH must contain {address}")
}

func TestLoad_CustomValues(t *testing.T) {
	setRequiredEnv()
	os.Setenv("SERVER_ADDR", ":9090")
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("DATABASE_URL", "postgres://localhost/nftex")
	os.Setenv("NATS_URL", "nats://nats.example.com:4222")
	os.Setenv("TEMPORAL_HOST", "temporal.example.com:7233")
	os.Setenv("CHAIN_ID", "11155111")
	os.Setenv("LEDGER_PRIVATE_KEY", "0xabc")
	os.Setenv("LOOKUP_TIMEOUT", "5s")
	os.Setenv("EXCHANGE_VIA_TEMPORAL", "true")
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, ":9090", cfg.ServerAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "postgres://localhost/nftex", cfg.DatabaseURL)
	assert.Equal(t, "nats://nats.example.com:4222", cfg.NATSURL)
	assert.Equal(t, "temporal.example.com:7233", cfg.TemporalHost)
	assert.Equal(t, int64(11155111), cfg.ChainID)
	assert.Equal(t, 5*time.Second, cfg.LookupTimeout)
	assert.True(t, cfg.CanSubmitTransfers())
	assert.True(t, cfg.ExchangeViaTemporal)
}

func TestLoad_InvalidBool(t *testing.T) {
	setRequiredEnv()
	os.Setenv("EXCHANGE_VIA_TEMPORAL", "sometimes")
	defer cleanupEnv()

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EXCHANGE_VIA_TEMPORAL")
}

func validConfig() *Config {
	return &Config{
		LookupURL:           "https://lookup.example.com",
		EthRPCURL:           "http://localhost:8545",
		ChainID:             1,
		MarketplaceContract: testMarketplace,
		BalanceTokenAddress: testToken,
		LookupTimeout:       30 * time.Second,
		TransferTimeout:     5 * time.Minute,
		TemporalHost:        "localhost:7233",
		TemporalNamespace:   "default",
		TemporalTaskQueue:   "nftex-exchanges",
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing lookup url", func(c *Config) { c.LookupURL = "" }, "LookupURL is required"},
		{"bad marketplace", func(c *Config) { c.MarketplaceContract = "nope" }, "MarketplaceContract must be a hex address"},
		{"zero chain", func(c *Config) { c.ChainID = 0 }, "ChainID must be positive"},
		{"short transfer timeout", func(c *Config) { c.TransferTimeout = 10 * time.Millisecond }, "TransferTimeout must be at least 1 second"},
		{"negative idle timeout", func(c *Config) { c.SessionIdleTimeout = -time.Second }, "SessionIdleTimeout must not be negative"},
		{"missing task queue", func(c *Config) { c.TemporalTaskQueue = "" }, "TemporalTaskQueue is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestMustLoad_Panics(t *testing.T) {
	// Don't set required env vars
	defer cleanupEnv()

	assert.Panics(t, func() {
		MustLoad()
	})
}

func TestMustLoad_Success(t *testing.T) {
	setRequiredEnv()
	defer cleanupEnv()

	assert.NotPanics(t, func() {
		cfg := MustLoad()
		assert.NotNil(t, cfg)
	})
}

// cleanupEnv clears all environment variables used in tests
func cleanupEnv() {
	for _, key := range []string{
		"SERVER_ADDR", "METRICS_ADDR", "LOG_LEVEL", "DATABASE_URL", "NATS_URL",
		"LOOKUP_URL", "LOOKUP_PATH", "LOOKUP_TIMEOUT",
		"ETH_RPC_URL", "CHAIN_ID", "MARKETPLACE_CONTRACT", "BALANCE_TOKEN_ADDRESS",
		"LEDGER_PRIVATE_KEY", "TRANSFER_TIMEOUT", "SESSION_IDLE_TIMEOUT",
		"TEMPORAL_HOST", "TEMPORAL_NAMESPACE", "TEMPORAL_TASK_QUEUE", "EXCHANGE_VIA_TEMPORAL",
	} {
		os.Unsetenv(key)
	}
}
