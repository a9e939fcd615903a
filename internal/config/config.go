// Package config defines the engine's TOML configuration, defaults, and
// validation. Load merges a config file over Defaults() and then applies
// DEXARB_* environment overrides, so secrets never need to live in the file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration.
type Config struct {
	Search    SearchConfig    `toml:"search"`
	Eval      EvalConfig      `toml:"eval"`
	Execution ExecutionConfig `toml:"execution"`
	Risk      RiskConfig      `toml:"risk"`
	Gas       GasConfig       `toml:"gas"`
	Network   NetworkConfig   `toml:"network"`
	Signer    SignerConfig    `toml:"signer"`
	Chains    []ChainConfig   `toml:"chains"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Replay    ReplayConfig    `toml:"replay"`
	Archive   ArchiveConfig   `toml:"archive"`

	// Mode selects what the process does: "discover" finds and caches
	// opportunities without touching the chain, "trade" runs the full
	// discover-and-execute loop, "replay" feeds a recorded update stream
	// through discovery.
	Mode string `toml:"mode"`

	// LogLevel: debug, info, warn, error.
	LogLevel string `toml:"log_level"`
}

// SearchConfig holds route-search parameters.
type SearchConfig struct {
	MaxHops             int     `toml:"max_hops"`
	TopK                int     `toml:"top_k"`
	FanoutLimit         int     `toml:"fanout_limit"`
	LiquidityFloorRatio float64 `toml:"liquidity_floor_ratio"`
	// ProbeAmount is the candidate input size, in origin-token units, used
	// for liquidity pruning during search.
	ProbeAmount float64  `toml:"probe_amount"`
	Budget      duration `toml:"budget"`
	// Debounce batches bursts of pool updates before a discovery sweep.
	Debounce duration `toml:"debounce"`
	// NotifyBuffer bounds the dirty-token queue feeding discovery.
	NotifyBuffer int `toml:"notify_buffer"`
}

// EvalConfig holds profitability-evaluation parameters.
type EvalConfig struct {
	SlippageMarginBps float64  `toml:"slippage_margin_bps"`
	MaxStaleness      duration `toml:"max_staleness"`
	// MinInput/MaxInput bound the optimal-input search, in input-token
	// units. InputHint seeds it.
	MinInput  float64 `toml:"min_input"`
	MaxInput  float64 `toml:"max_input"`
	InputHint float64 `toml:"input_hint"`
}

// ExecutionConfig holds attempt-coordination parameters.
type ExecutionConfig struct {
	MaxConcurrentAttempts int64    `toml:"max_concurrent_attempts"`
	InclusionDeadline     duration `toml:"inclusion_deadline"`
	RetryBudget           int      `toml:"retry_budget"`
	RetryBaseDelay        duration `toml:"retry_base_delay"`
	RetryMaxDelay         duration `toml:"retry_max_delay"`
	// PollInterval is the cadence of the cache candidate pull loop;
	// CandidateBatch is how many ranked candidates each pull considers.
	PollInterval   duration `toml:"poll_interval"`
	CandidateBatch int      `toml:"candidate_batch"`
	// DistributedLockTTL guards fingerprints across instances when Redis
	// locking is enabled; zero disables the distributed lock.
	DistributedLockTTL duration `toml:"distributed_lock_ttl"`
}

// RiskConfig holds hard risk limits. Zero values disable the corresponding
// limit.
type RiskConfig struct {
	// MaxNotional caps the input amount of a single attempt, in input-token
	// units.
	MaxNotional float64 `toml:"max_notional"`
	// MaxDailyLoss halts the engine once cumulative realized losses for the
	// day exceed it.
	MaxDailyLoss float64 `toml:"max_daily_loss"`
}

// GasConfig holds the gas cost model parameters.
type GasConfig struct {
	BaseGas   uint64 `toml:"base_gas"`
	GasPerHop uint64 `toml:"gas_per_hop"`
	// FallbackPriceGwei is used for a chain until its first observed gas
	// price arrives.
	FallbackPriceGwei float64  `toml:"fallback_price_gwei"`
	PollInterval      duration `toml:"poll_interval"`
}

// NetworkConfig holds RPC client tuning shared by all chains.
type NetworkConfig struct {
	RequestTimeout      duration `toml:"request_timeout"`
	ReceiptPollInterval duration `toml:"receipt_poll_interval"`
}

// SignerConfig holds the transaction signing key.
type SignerConfig struct {
	// PrivateKey is a hex-encoded secp256k1 key, with or without the 0x
	// prefix. Required for trade mode; inject via DEXARB_SIGNER_PRIVATE_KEY.
	PrivateKey string `toml:"private_key"`
}

// ChainConfig describes one chain the engine trades on.
type ChainConfig struct {
	ChainID uint64 `toml:"chain_id"`
	Name    string `toml:"name"`
	// WSURL is the liquidity feed endpoint; RPCURLs are tried round-robin
	// for simulation and submission.
	WSURL   string   `toml:"ws_url"`
	RPCURLs []string `toml:"rpc_urls"`
	// Executor is the route executor contract address.
	Executor string `toml:"executor"`
	// NativeToken is the address of the wrapped native token, used to
	// express gas costs in graph terms. NativeDecimals defaults to 18.
	NativeToken    string `toml:"native_token"`
	NativeDecimals uint8  `toml:"native_decimals"`
	// Pools optionally restricts the feed subscription; empty subscribes to
	// everything the feed offers.
	Pools []string `toml:"pools"`
}

// ExecutorAddress parses the executor contract address.
func (c ChainConfig) ExecutorAddress() common.Address {
	return common.HexToAddress(c.Executor)
}

// NativeTokenAddress parses the wrapped native token address.
func (c ChainConfig) NativeTokenAddress() common.Address {
	return common.HexToAddress(c.NativeToken)
}

// PostgresConfig holds attempt/stats store connection parameters. When DSN is
// set it wins over the discrete fields.
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
	// Enabled gates persistence entirely; discover/replay runs work without
	// a database.
	Enabled bool `toml:"enabled"`
}

// RedisConfig holds distributed lock and signal bus parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds blob archive parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// TelemetryConfig holds stats aggregation parameters.
type TelemetryConfig struct {
	// FlushInterval is the stats window length; each flush persists one
	// window row and publishes it on the signal bus.
	FlushInterval duration `toml:"flush_interval"`
}

// ReplayConfig holds recorded-stream playback parameters (mode = "replay").
type ReplayConfig struct {
	// Source: "file" reads Path from local disk, "s3" reads Key from the
	// configured bucket.
	Source string `toml:"source"`
	Path   string `toml:"path"`
	Key    string `toml:"key"`
	// Speed scales playback pacing relative to recorded timestamps; zero
	// replays as fast as possible.
	Speed float64 `toml:"speed"`
	// Buffer bounds the update channel between replay and ingestion.
	Buffer int `toml:"buffer"`
}

// ArchiveConfig holds attempt archival parameters.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	BatchSize     int      `toml:"batch_size"`
	FlushInterval duration `toml:"flush_interval"`
}

// duration wraps time.Duration so the TOML decoder accepts strings like "5m"
// or "250ms".
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Search: SearchConfig{
			MaxHops:             3,
			TopK:                16,
			FanoutLimit:         8,
			LiquidityFloorRatio: 0.01,
			ProbeAmount:         1_000,
			Budget:              duration{25 * time.Millisecond},
			Debounce:            duration{25 * time.Millisecond},
			NotifyBuffer:        4096,
		},
		Eval: EvalConfig{
			SlippageMarginBps: 10,
			MaxStaleness:      duration{2 * time.Second},
			MinInput:          1,
			MaxInput:          250_000,
			InputHint:         1_000,
		},
		Execution: ExecutionConfig{
			MaxConcurrentAttempts: 4,
			InclusionDeadline:     duration{30 * time.Second},
			RetryBudget:           2,
			RetryBaseDelay:        duration{100 * time.Millisecond},
			RetryMaxDelay:         duration{2 * time.Second},
			PollInterval:          duration{50 * time.Millisecond},
			CandidateBatch:        8,
			DistributedLockTTL:    duration{0},
		},
		Risk: RiskConfig{
			MaxNotional:  50_000,
			MaxDailyLoss: 5_000,
		},
		Gas: GasConfig{
			BaseGas:           120_000,
			GasPerHop:         90_000,
			FallbackPriceGwei: 30,
			PollInterval:      duration{15 * time.Second},
		},
		Network: NetworkConfig{
			RequestTimeout:      duration{10 * time.Second},
			ReceiptPollInterval: duration{500 * time.Millisecond},
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "dexarb",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "dexarb-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Telemetry: TelemetryConfig{
			FlushInterval: duration{time.Minute},
		},
		Replay: ReplayConfig{
			Source: "file",
			Speed:  1.0,
			Buffer: 1024,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			BatchSize:     256,
			FlushInterval: duration{5 * time.Minute},
		},
		Mode:     "discover",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"discover": true,
	"trade":    true,
	"replay":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: discover, trade, replay)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Search
	if c.Search.MaxHops < 2 {
		errs = append(errs, "search: max_hops must be >= 2 (a cycle needs at least two hops)")
	}
	if c.Search.TopK < 1 {
		errs = append(errs, "search: top_k must be >= 1")
	}
	// Ratios above 1 are valid: they demand edge depth exceed the probed
	// amount that many times over.
	if c.Search.LiquidityFloorRatio < 0 {
		errs = append(errs, fmt.Sprintf("search: liquidity_floor_ratio must be >= 0, got %g", c.Search.LiquidityFloorRatio))
	}
	if c.Search.ProbeAmount <= 0 {
		errs = append(errs, "search: probe_amount must be > 0")
	}

	// Eval
	if c.Eval.SlippageMarginBps < 0 {
		errs = append(errs, "eval: slippage_margin_bps must be >= 0")
	}
	if c.Eval.MaxStaleness.Duration <= 0 {
		errs = append(errs, "eval: max_staleness must be > 0")
	}
	if c.Eval.MinInput <= 0 || c.Eval.MaxInput < c.Eval.MinInput {
		errs = append(errs, "eval: require 0 < min_input <= max_input")
	}

	// Gas
	if c.Gas.FallbackPriceGwei < 0 {
		errs = append(errs, fmt.Sprintf("gas: fallback_price_gwei must be >= 0, got %g", c.Gas.FallbackPriceGwei))
	}
	if c.Gas.PollInterval.Duration <= 0 {
		errs = append(errs, "gas: poll_interval must be > 0")
	}

	// Execution
	if c.Execution.MaxConcurrentAttempts < 1 {
		errs = append(errs, "execution: max_concurrent_attempts must be >= 1")
	}
	if c.Execution.InclusionDeadline.Duration <= 0 {
		errs = append(errs, "execution: inclusion_deadline must be > 0")
	}
	if c.Execution.RetryBudget < 0 {
		errs = append(errs, "execution: retry_budget must be >= 0")
	}

	// Chains — at least one chain is required outside replay mode, and
	// trade mode additionally needs RPC endpoints, executors, and a key.
	if mode != "replay" && len(c.Chains) == 0 {
		errs = append(errs, "chains: at least one [[chains]] entry is required for mode "+c.Mode)
	}
	seen := make(map[uint64]bool, len(c.Chains))
	for i, ch := range c.Chains {
		prefix := fmt.Sprintf("chains[%d]", i)
		if ch.ChainID == 0 {
			errs = append(errs, prefix+": chain_id must be set")
		}
		if seen[ch.ChainID] {
			errs = append(errs, fmt.Sprintf("%s: duplicate chain_id %d", prefix, ch.ChainID))
		}
		seen[ch.ChainID] = true
		if ch.WSURL == "" && mode != "replay" {
			errs = append(errs, prefix+": ws_url must not be empty")
		}
		if ch.NativeToken != "" && !common.IsHexAddress(ch.NativeToken) {
			errs = append(errs, fmt.Sprintf("%s: native_token %q is not a hex address", prefix, ch.NativeToken))
		}
		if mode == "trade" {
			if len(ch.RPCURLs) == 0 {
				errs = append(errs, prefix+": rpc_urls must not be empty for trade mode")
			}
			if !common.IsHexAddress(ch.Executor) {
				errs = append(errs, fmt.Sprintf("%s: executor %q is not a hex address", prefix, ch.Executor))
			}
		}
	}
	if mode == "trade" && c.Signer.PrivateKey == "" {
		errs = append(errs, "signer: private_key is required for trade mode")
	}

	// Replay
	if mode == "replay" {
		switch strings.ToLower(c.Replay.Source) {
		case "file":
			if c.Replay.Path == "" {
				errs = append(errs, "replay: path must be set when source is \"file\"")
			}
		case "s3":
			if c.Replay.Key == "" {
				errs = append(errs, "replay: key must be set when source is \"s3\"")
			}
			if !c.S3.Enabled {
				errs = append(errs, "replay: s3 source requires s3.enabled = true")
			}
		default:
			errs = append(errs, fmt.Sprintf("replay: unknown source %q (valid: file, s3)", c.Replay.Source))
		}
		if c.Replay.Speed < 0 {
			errs = append(errs, "replay: speed must be >= 0")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: require 0 <= pool_min_conns <= pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}
	if c.Execution.DistributedLockTTL.Duration > 0 && !c.Redis.Enabled {
		errs = append(errs, "execution: distributed_lock_ttl requires redis.enabled = true")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}
	if c.Archive.Enabled && !c.S3.Enabled {
		errs = append(errs, "archive: enabled requires s3.enabled = true")
	}
	if c.Archive.Enabled && c.Archive.BatchSize < 1 {
		errs = append(errs, "archive: batch_size must be >= 1")
	}

	// Telemetry
	if c.Telemetry.FlushInterval.Duration <= 0 {
		errs = append(errs, "telemetry: flush_interval must be > 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
