package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalTOML = `
mode = "discover"

[[chains]]
chain_id = 137
name = "polygon"
ws_url = "wss://feed.example.com/polygon"
native_token = "0x0d500B1d8E8eF31E21C99d1Db9A6444d3ADf1270"
`

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, minimalTOML+`
[search]
max_hops = 4

[eval]
max_staleness = "750ms"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Search.MaxHops != 4 {
		t.Errorf("MaxHops = %d, want 4 from file", cfg.Search.MaxHops)
	}
	if got := cfg.Eval.MaxStaleness.Duration; got != 750*time.Millisecond {
		t.Errorf("MaxStaleness = %v, want 750ms from file", got)
	}
	// Untouched sections keep their defaults.
	if cfg.Search.TopK != Defaults().Search.TopK {
		t.Errorf("TopK = %d, want default %d", cfg.Search.TopK, Defaults().Search.TopK)
	}
	if cfg.Execution.RetryBudget != 2 {
		t.Errorf("RetryBudget = %d, want default 2", cfg.Execution.RetryBudget)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := writeConfig(t, minimalTOML+`
[redis]
enabled = true
addr = "file-redis:6379"
`)

	t.Setenv("DEXARB_REDIS_ADDR", "env-redis:6379")
	t.Setenv("DEXARB_SIGNER_PRIVATE_KEY", "0101")
	t.Setenv("DEXARB_EXECUTION_MAX_CONCURRENT_ATTEMPTS", "9")
	t.Setenv("DEXARB_EVAL_MAX_STALENESS", "3s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Redis.Addr != "env-redis:6379" {
		t.Errorf("Redis.Addr = %q, want env override", cfg.Redis.Addr)
	}
	if cfg.Signer.PrivateKey != "0101" {
		t.Errorf("Signer.PrivateKey = %q, want env override", cfg.Signer.PrivateKey)
	}
	if cfg.Execution.MaxConcurrentAttempts != 9 {
		t.Errorf("MaxConcurrentAttempts = %d, want 9", cfg.Execution.MaxConcurrentAttempts)
	}
	if cfg.Eval.MaxStaleness.Duration != 3*time.Second {
		t.Errorf("MaxStaleness = %v, want 3s", cfg.Eval.MaxStaleness.Duration)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "unknown mode",
			mutate: func(c *Config) { c.Mode = "yolo" },
			want:   "unknown mode",
		},
		{
			name:   "no chains outside replay",
			mutate: func(c *Config) { c.Chains = nil },
			want:   "at least one",
		},
		{
			name: "duplicate chain id",
			mutate: func(c *Config) {
				c.Chains = append(c.Chains, c.Chains[0])
			},
			want: "duplicate chain_id",
		},
		{
			name: "trade mode needs signer key",
			mutate: func(c *Config) {
				c.Mode = "trade"
				c.Chains[0].RPCURLs = []string{"https://rpc.example.com"}
				c.Chains[0].Executor = "0x00000000000000000000000000000000000000aa"
			},
			want: "private_key is required",
		},
		{
			name: "trade mode needs executor",
			mutate: func(c *Config) {
				c.Mode = "trade"
				c.Signer.PrivateKey = "0101"
				c.Chains[0].RPCURLs = []string{"https://rpc.example.com"}
				c.Chains[0].Executor = "not-an-address"
			},
			want: "is not a hex address",
		},
		{
			name: "replay file source needs path",
			mutate: func(c *Config) {
				c.Mode = "replay"
				c.Replay.Source = "file"
				c.Replay.Path = ""
			},
			want: "path must be set",
		},
		{
			name: "distributed lock needs redis",
			mutate: func(c *Config) {
				c.Execution.DistributedLockTTL.Duration = 10 * time.Second
				c.Redis.Enabled = false
			},
			want: "requires redis.enabled",
		},
		{
			name: "archive needs s3",
			mutate: func(c *Config) {
				c.Archive.Enabled = true
				c.S3.Enabled = false
			},
			want: "requires s3.enabled",
		},
		{
			name:   "negative liquidity floor",
			mutate: func(c *Config) { c.Search.LiquidityFloorRatio = -0.1 },
			want:   "liquidity_floor_ratio",
		},
		{
			name:   "negative gas fallback price",
			mutate: func(c *Config) { c.Gas.FallbackPriceGwei = -1 },
			want:   "fallback_price_gwei",
		},
		{
			name:   "zero gas poll interval",
			mutate: func(c *Config) { c.Gas.PollInterval.Duration = 0 },
			want:   "poll_interval",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.Chains = []ChainConfig{{
				ChainID: 137,
				WSURL:   "wss://feed.example.com/polygon",
			}}
			tc.mutate(&cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate: expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("Validate error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestValidateAcceptsDefaultsWithChain(t *testing.T) {
	cfg := Defaults()
	cfg.Chains = []ChainConfig{{
		ChainID:     137,
		WSURL:       "wss://feed.example.com/polygon",
		NativeToken: "0x0d500B1d8E8eF31E21C99d1Db9A6444d3ADf1270",
	}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	// A floor above 1 demands depth exceed the probed amount that many
	// times over; it is conservative, not invalid.
	cfg.Search.LiquidityFloorRatio = 2.5
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate with floor ratio 2.5: %v", err)
	}
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Signer.PrivateKey = "deadbeef"
	cfg.Postgres.Password = "hunter2"
	cfg.Postgres.DSN = "postgres://u:p@h/db"
	cfg.Redis.Password = "redispass"
	cfg.S3.AccessKey = "AK"
	cfg.S3.SecretKey = "SK"
	cfg.Chains = []ChainConfig{{ChainID: 1}}

	out := RedactedConfig(&cfg)

	for name, got := range map[string]string{
		"signer.private_key": out.Signer.PrivateKey,
		"postgres.password":  out.Postgres.Password,
		"postgres.dsn":       out.Postgres.DSN,
		"redis.password":     out.Redis.Password,
		"s3.access_key":      out.S3.AccessKey,
		"s3.secret_key":      out.S3.SecretKey,
	} {
		if got != "***" {
			t.Errorf("%s = %q, want redacted", name, got)
		}
	}

	// Original is untouched, and the chain slice is a copy.
	if cfg.Signer.PrivateKey != "deadbeef" {
		t.Error("RedactedConfig mutated the original")
	}
	out.Chains[0].ChainID = 999
	if cfg.Chains[0].ChainID != 1 {
		t.Error("redacted copy shares the chain slice with the original")
	}
}

func TestChainConfigAddressParsing(t *testing.T) {
	ch := ChainConfig{
		Executor:    "0x00000000000000000000000000000000000000Aa",
		NativeToken: "0x0d500B1d8E8eF31E21C99d1Db9A6444d3ADf1270",
	}
	if ch.ExecutorAddress() != common.HexToAddress(ch.Executor) {
		t.Errorf("ExecutorAddress = %s", ch.ExecutorAddress().Hex())
	}
	if ch.NativeTokenAddress() != common.HexToAddress(ch.NativeToken) {
		t.Errorf("NativeTokenAddress = %s", ch.NativeTokenAddress().Hex())
	}
}
