package config

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies DEXARB_* environment variable overrides, and
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

// applyEnvOverrides reads well-known DEXARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Signer ──
	setStr(&cfg.Signer.PrivateKey, "DEXARB_SIGNER_PRIVATE_KEY")

	// ── Search ──
	setInt(&cfg.Search.MaxHops, "DEXARB_SEARCH_MAX_HOPS")
	setInt(&cfg.Search.TopK, "DEXARB_SEARCH_TOP_K")
	setInt(&cfg.Search.FanoutLimit, "DEXARB_SEARCH_FANOUT_LIMIT")
	setFloat64(&cfg.Search.LiquidityFloorRatio, "DEXARB_SEARCH_LIQUIDITY_FLOOR_RATIO")
	setFloat64(&cfg.Search.ProbeAmount, "DEXARB_SEARCH_PROBE_AMOUNT")
	setDuration(&cfg.Search.Budget, "DEXARB_SEARCH_BUDGET")
	setDuration(&cfg.Search.Debounce, "DEXARB_SEARCH_DEBOUNCE")

	// ── Eval ──
	setFloat64(&cfg.Eval.SlippageMarginBps, "DEXARB_EVAL_SLIPPAGE_MARGIN_BPS")
	setDuration(&cfg.Eval.MaxStaleness, "DEXARB_EVAL_MAX_STALENESS")
	setFloat64(&cfg.Eval.MinInput, "DEXARB_EVAL_MIN_INPUT")
	setFloat64(&cfg.Eval.MaxInput, "DEXARB_EVAL_MAX_INPUT")
	setFloat64(&cfg.Eval.InputHint, "DEXARB_EVAL_INPUT_HINT")

	// ── Execution ──
	setInt64(&cfg.Execution.MaxConcurrentAttempts, "DEXARB_EXECUTION_MAX_CONCURRENT_ATTEMPTS")
	setDuration(&cfg.Execution.InclusionDeadline, "DEXARB_EXECUTION_INCLUSION_DEADLINE")
	setInt(&cfg.Execution.RetryBudget, "DEXARB_EXECUTION_RETRY_BUDGET")
	setDuration(&cfg.Execution.DistributedLockTTL, "DEXARB_EXECUTION_DISTRIBUTED_LOCK_TTL")

	// ── Risk ──
	setFloat64(&cfg.Risk.MaxNotional, "DEXARB_RISK_MAX_NOTIONAL")
	setFloat64(&cfg.Risk.MaxDailyLoss, "DEXARB_RISK_MAX_DAILY_LOSS")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "DEXARB_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "DEXARB_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "DEXARB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "DEXARB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "DEXARB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "DEXARB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "DEXARB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "DEXARB_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "DEXARB_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "DEXARB_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "DEXARB_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "DEXARB_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "DEXARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "DEXARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "DEXARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "DEXARB_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "DEXARB_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "DEXARB_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "DEXARB_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "DEXARB_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "DEXARB_S3_REGION")
	setStr(&cfg.S3.Bucket, "DEXARB_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "DEXARB_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "DEXARB_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "DEXARB_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "DEXARB_S3_FORCE_PATH_STYLE")

	// ── Telemetry ──
	setDuration(&cfg.Telemetry.FlushInterval, "DEXARB_TELEMETRY_FLUSH_INTERVAL")

	// ── Replay ──
	setStr(&cfg.Replay.Source, "DEXARB_REPLAY_SOURCE")
	setStr(&cfg.Replay.Path, "DEXARB_REPLAY_PATH")
	setStr(&cfg.Replay.Key, "DEXARB_REPLAY_KEY")
	setFloat64(&cfg.Replay.Speed, "DEXARB_REPLAY_SPEED")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "DEXARB_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.BatchSize, "DEXARB_ARCHIVE_BATCH_SIZE")
	setDuration(&cfg.Archive.FlushInterval, "DEXARB_ARCHIVE_FLUSH_INTERVAL")

	// ── Top-level ──
	setStr(&cfg.Mode, "DEXARB_MODE")
	setStr(&cfg.LogLevel, "DEXARB_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}
