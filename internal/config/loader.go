package config

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ARBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ARBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Mode, "ARBOT_MODE")
	setStr(&cfg.LogLevel, "ARBOT_LOG_LEVEL")

	setFloat64(&cfg.Detector.MinThresholdBps, "ARBOT_DETECTOR_MIN_THRESHOLD_BPS")
	setFloat64(&cfg.Detector.Notional, "ARBOT_DETECTOR_NOTIONAL")
	setFloat64(&cfg.Detector.GasEstimateUSD, "ARBOT_DETECTOR_GAS_ESTIMATE_USD")
	setInt64(&cfg.Detector.StalenessWindowMs, "ARBOT_DETECTOR_STALENESS_WINDOW_MS")

	setBool(&cfg.Executor.AutoExecute, "ARBOT_EXECUTOR_AUTO_EXECUTE")
	setInt64(&cfg.Executor.ConfirmTimeoutSec, "ARBOT_EXECUTOR_CONFIRM_TIMEOUT_SEC")

	setStr(&cfg.Chain.RPCURL, "ARBOT_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "ARBOT_CHAIN_ID")
	setStr(&cfg.Chain.ContractAddress, "ARBOT_CHAIN_CONTRACT_ADDRESS")
	setStr(&cfg.Chain.TokenAddress, "ARBOT_CHAIN_TOKEN_ADDRESS")
	setStr(&cfg.Chain.PrivateKey, "ARBOT_CHAIN_PRIVATE_KEY")
	setStr(&cfg.Chain.EncryptedKeyPath, "ARBOT_CHAIN_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Chain.KeyPassword, "ARBOT_CHAIN_KEY_PASSWORD")

	setFloat64(&cfg.Risk.MaxTradeAmount, "ARBOT_RISK_MAX_TRADE_AMOUNT")
	setFloat64(&cfg.Risk.MaxDailyLoss, "ARBOT_RISK_MAX_DAILY_LOSS")
	setInt(&cfg.Risk.MaxTradeCount, "ARBOT_RISK_MAX_TRADE_COUNT")

	setStr(&cfg.Postgres.DSN, "ARBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "ARBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ARBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ARBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ARBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ARBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ARBOT_POSTGRES_SSLMODE")
	setBool(&cfg.Postgres.RunMigrations, "ARBOT_POSTGRES_RUN_MIGRATIONS")

	setStr(&cfg.Redis.Addr, "ARBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARBOT_REDIS_DB")

	setStr(&cfg.S3.Endpoint, "ARBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ARBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "ARBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ARBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ARBOT_S3_SECRET_KEY")

	setInt(&cfg.Server.Port, "ARBOT_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "ARBOT_SERVER_API_KEY")
	// Compatibility with the legacy deployment variable.
	setStr(&cfg.Server.APIKey, "API_TOKEN")

	setStr(&cfg.Notify.WebhookURL, "ARBOT_NOTIFY_WEBHOOK_URL")
}

func setStr(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func setInt(dst *int, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, env string) {
	if v := os.Getenv(env); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, env string) {
	if v := os.Getenv(env); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
