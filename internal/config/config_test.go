package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Venues = []VenueConfig{
		{Name: "binance", WsURL: "wss://a.example/ws", Pairs: []string{"ETH/USDC"}, TakerFeeBps: 10},
		{Name: "uniswap", WsURL: "wss://b.example/ws", Pairs: []string{"ETH/USDC"}, TakerFeeBps: 30},
	}
	return cfg
}

func TestValidateAcceptsDefaults(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadMode(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "turbo"
	assert.Error(t, cfg.Validate())
}

func TestValidateRequiresTwoVenues(t *testing.T) {
	cfg := validConfig()
	cfg.Venues = cfg.Venues[:1]
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsDuplicateVenue(t *testing.T) {
	cfg := validConfig()
	cfg.Venues[1].Name = "binance"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsNegativeFee(t *testing.T) {
	cfg := validConfig()
	cfg.Venues[0].TakerFeeBps = -1
	assert.Error(t, cfg.Validate())
}

func TestValidateRequiresChainSettingsForExecution(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "arbitrage"
	cfg.Executor.AutoExecute = true
	cfg.Chain.RPCURL = "https://rpc.example"

	assert.Error(t, cfg.Validate())

	cfg.Chain.ContractAddress = "0xcontract"
	cfg.Chain.TokenAddress = "0xtoken"
	cfg.Chain.PrivateKey = "abcd"
	assert.NoError(t, cfg.Validate())
}

func TestVenueFeeBps(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, 10.0, cfg.VenueFeeBps("binance"))
	assert.Equal(t, 30.0, cfg.VenueFeeBps("uniswap"))
	assert.Equal(t, 0.0, cfg.VenueFeeBps("unknown"))
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	data := `
mode = "arbitrage"
log_level = "debug"

[[venues]]
name = "binance"
ws_url = "wss://a.example/ws"
pairs = ["ETH/USDC"]
taker_fee_bps = 10.0

[[venues]]
name = "uniswap"
ws_url = "wss://b.example/ws"
pairs = ["ETH/USDC"]
taker_fee_bps = 30.0

[detector]
min_threshold_bps = 75.0
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "arbitrage", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 75.0, cfg.Detector.MinThresholdBps)
	// Untouched fields keep their defaults.
	assert.Equal(t, int64(5000), cfg.Detector.StalenessWindowMs)
	assert.Equal(t, 8000, cfg.Server.Port)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`mode = "monitor"`), 0o600))

	t.Setenv("ARBOT_MODE", "full")
	t.Setenv("ARBOT_REDIS_ADDR", "redis.internal:6379")
	t.Setenv("API_TOKEN", "legacy-secret")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "full", cfg.Mode)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
	assert.Equal(t, "legacy-secret", cfg.Server.APIKey)
}
