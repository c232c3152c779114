// Package config defines the top-level configuration for the arbitrage
// engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by ARBOT_* environment variables.
type Config struct {
	Venues   []VenueConfig  `toml:"venues"`
	Detector DetectorConfig `toml:"detector"`
	Executor ExecutorConfig `toml:"executor"`
	Chain    ChainConfig    `toml:"chain"`
	Risk     RiskConfig     `toml:"risk"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// VenueConfig describes one exchange or DEX router feed.
type VenueConfig struct {
	Name        string   `toml:"name"`
	WsURL       string   `toml:"ws_url"`
	Pairs       []string `toml:"pairs"`
	TakerFeeBps float64  `toml:"taker_fee_bps"`
	// Router is the on-chain router address used for settlement legs on
	// this venue. Required in arbitrage/full mode.
	Router string `toml:"router"`
}

// DetectorConfig holds opportunity detection parameters.
type DetectorConfig struct {
	MinThresholdBps    float64 `toml:"min_threshold_bps"`
	Notional           float64 `toml:"notional"`
	GasEstimateUSD     float64 `toml:"gas_estimate_usd"`
	StalenessWindowMs  int64   `toml:"staleness_window_ms"`
	MaxQuoteSpreadBps  float64 `toml:"max_quote_spread_bps"`
	PriceBucket        float64 `toml:"price_bucket"`
	DedupWindowSeconds int64   `toml:"dedup_window_seconds"`
}

// StalenessWindow returns the quote staleness window as a duration.
func (d DetectorConfig) StalenessWindow() time.Duration {
	return time.Duration(d.StalenessWindowMs) * time.Millisecond
}

// DedupWindow returns the fingerprint time-bucket width as a duration.
func (d DetectorConfig) DedupWindow() time.Duration {
	return time.Duration(d.DedupWindowSeconds) * time.Second
}

// ExecutorConfig holds settlement submission parameters.
type ExecutorConfig struct {
	AutoExecute       bool  `toml:"auto_execute"`
	QueueSize         int   `toml:"queue_size"`
	ConfirmTimeoutSec int64 `toml:"confirm_timeout_sec"`
	PollIntervalMs    int64 `toml:"poll_interval_ms"`
	SubmitTimeoutSec  int64 `toml:"submit_timeout_sec"`
}

// ConfirmTimeout bounds how long the orchestrator polls for a confirmation
// before declaring an ambiguous submission failed.
func (e ExecutorConfig) ConfirmTimeout() time.Duration {
	return time.Duration(e.ConfirmTimeoutSec) * time.Second
}

// PollInterval is the delay between confirmation polls.
func (e ExecutorConfig) PollInterval() time.Duration {
	return time.Duration(e.PollIntervalMs) * time.Millisecond
}

// SubmitTimeout bounds a single settlement submission call.
func (e ExecutorConfig) SubmitTimeout() time.Duration {
	return time.Duration(e.SubmitTimeoutSec) * time.Second
}

// ChainConfig holds on-chain settlement parameters.
type ChainConfig struct {
	RPCURL           string `toml:"rpc_url"`
	ChainID          int64  `toml:"chain_id"`
	ContractAddress  string `toml:"contract_address"`
	TokenAddress     string `toml:"token_address"`
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
	GasLimit         uint64 `toml:"gas_limit"`
}

// RiskConfig holds trading risk limits.
type RiskConfig struct {
	MaxTradeAmount float64 `toml:"max_trade_amount"`
	MaxDailyLoss   float64 `toml:"max_daily_loss"`
	MaxTradeCount  int     `toml:"max_trade_count"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
}

// S3Config holds S3-compatible object storage parameters for the trade
// archiver.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds the HTTP/WebSocket API server configuration.
type ServerConfig struct {
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
}

// NotifyConfig holds outbound notification settings.
type NotifyConfig struct {
	WebhookURL string `toml:"webhook_url"`
	Discord    bool   `toml:"discord"`
}

// Defaults returns a Config populated with sane defaults for every field a
// deployment commonly leaves unset.
func Defaults() Config {
	return Config{
		Detector: DetectorConfig{
			MinThresholdBps:    20,
			Notional:           1,
			GasEstimateUSD:     0.5,
			StalenessWindowMs:  5000,
			MaxQuoteSpreadBps:  2000,
			PriceBucket:        0.01,
			DedupWindowSeconds: 10,
		},
		Executor: ExecutorConfig{
			AutoExecute:       false,
			QueueSize:         64,
			ConfirmTimeoutSec: 60,
			PollIntervalMs:    2000,
			SubmitTimeoutSec:  30,
		},
		Chain: ChainConfig{
			GasLimit: 600_000,
		},
		Risk: RiskConfig{
			MaxTradeAmount: 1.0,
			MaxDailyLoss:   0.5,
			MaxTradeCount:  10,
		},
		Postgres: PostgresConfig{
			SSLMode:      "disable",
			PoolMaxConns: 8,
			PoolMinConns: 1,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 8,
		},
		Server: ServerConfig{
			Port: 8000,
		},
		Mode:     "monitor",
		LogLevel: "info",
	}
}

// Validate checks the configuration for the selected mode and returns an
// error describing the first problem found.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Mode) {
	case "monitor", "arbitrage", "full":
	default:
		return fmt.Errorf("config: unsupported mode %q", c.Mode)
	}

	if len(c.Venues) < 2 {
		return fmt.Errorf("config: at least two venues are required, got %d", len(c.Venues))
	}
	seen := make(map[string]bool, len(c.Venues))
	for i, v := range c.Venues {
		if v.Name == "" {
			return fmt.Errorf("config: venues[%d]: name is required", i)
		}
		if seen[v.Name] {
			return fmt.Errorf("config: duplicate venue %q", v.Name)
		}
		seen[v.Name] = true
		if v.WsURL == "" {
			return fmt.Errorf("config: venue %q: ws_url is required", v.Name)
		}
		if len(v.Pairs) == 0 {
			return fmt.Errorf("config: venue %q: at least one pair is required", v.Name)
		}
		if v.TakerFeeBps < 0 {
			return fmt.Errorf("config: venue %q: taker_fee_bps must not be negative", v.Name)
		}
	}

	if c.Detector.Notional <= 0 {
		return fmt.Errorf("config: detector.notional must be positive")
	}
	if c.Detector.MinThresholdBps < 0 {
		return fmt.Errorf("config: detector.min_threshold_bps must not be negative")
	}
	if c.Detector.StalenessWindowMs <= 0 {
		return fmt.Errorf("config: detector.staleness_window_ms must be positive")
	}

	needsChain := strings.ToLower(c.Mode) != "monitor" && c.Executor.AutoExecute && c.Chain.RPCURL != ""
	if needsChain {
		if c.Chain.ContractAddress == "" {
			return fmt.Errorf("config: chain.contract_address is required for on-chain execution")
		}
		if c.Chain.TokenAddress == "" {
			return fmt.Errorf("config: chain.token_address is required for on-chain execution")
		}
		if c.Chain.PrivateKey == "" && c.Chain.EncryptedKeyPath == "" {
			return fmt.Errorf("config: chain signing key is required for on-chain execution")
		}
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}

	return nil
}

// VenueFeeBps returns the taker fee for the named venue, or 0 when unknown.
func (c *Config) VenueFeeBps(venue string) float64 {
	for _, v := range c.Venues {
		if v.Name == venue {
			return v.TakerFeeBps
		}
	}
	return 0
}
