package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var configEnv = []string{
	"LISTEN_ADDR", "API_KEYS_POOL", "GEMINI_MODEL", "GEMINI_BASE_URL", "GEMINI_API_VERSION",
	"UPSTREAM_TIMEOUT", "REQUESTS_PER_KEY", "COUNTER_TTL", "STORE_BACKEND", "REDIS_ADDR",
	"REDIS_PASSWORD", "REDIS_DB", "REDIS_KEY_PREFIX", "BADGER_DIR", "STATS_ENABLED",
	"STATS_PREFIX", "STATS_TTL", "STATS_BUCKET", "RATE_ENABLED", "RATE_RPS", "RATE_BURST",
	"RATE_KEY_HEADER", "TRUST_XFF", "RETRY_AFTER", "ADD_RATELIMIT_HEADERS", "CONCURRENCY_MAX",
	"CONCURRENCY_TIMEOUT", "MAX_BODY_BYTES", "CORS_ORIGIN", "STATIC_DIR", "GATEWAY_CONFIG",
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, k := range configEnv {
		t.Setenv(k, "")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if cfg.ListenAddr != ":3000" {
		t.Fatalf("expected :3000, got %q", cfg.ListenAddr)
	}
	if cfg.RequestsPerKey != 20 {
		t.Fatalf("expected 20 requests per key, got %d", cfg.RequestsPerKey)
	}
	if cfg.CounterTTL != time.Hour {
		t.Fatalf("expected 1h counter ttl, got %v", cfg.CounterTTL)
	}
	if cfg.UpstreamTimeout != 30*time.Second {
		t.Fatalf("expected 30s upstream timeout, got %v", cfg.UpstreamTimeout)
	}
	if cfg.StoreBackend != backendRedis {
		t.Fatalf("expected redis backend, got %q", cfg.StoreBackend)
	}
	if cfg.Model != "gemini-3-flash-preview" {
		t.Fatalf("unexpected model %q", cfg.Model)
	}
	if cfg.RateBurst != 10 || cfg.RateRPS != 2 {
		t.Fatalf("unexpected rate defaults rps=%v burst=%d", cfg.RateRPS, cfg.RateBurst)
	}
}

func TestLoadConfig_YAMLThenEnv(t *testing.T) {
	clearConfigEnv(t)

	path := filepath.Join(t.TempDir(), "gateway.yaml")
	yml := `listen_addr: ":9000"
api_keys_pool: "a,b"
store_backend: memory
requests_per_key: 5
counter_ttl: 10m
prompts:
  translate: "Traduza para o espanhol."
temperatures:
  improve: 0.9
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	t.Setenv("REQUESTS_PER_KEY", "7")
	t.Setenv("STORE_BACKEND", "BADGER")

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if cfg.ListenAddr != ":9000" {
		t.Fatalf("expected yaml listen addr, got %q", cfg.ListenAddr)
	}
	if cfg.RequestsPerKey != 7 {
		t.Fatalf("env should win over yaml, got %d", cfg.RequestsPerKey)
	}
	if cfg.StoreBackend != backendBadger {
		t.Fatalf("expected lower-cased badger, got %q", cfg.StoreBackend)
	}
	if cfg.CounterTTL != 10*time.Minute {
		t.Fatalf("expected 10m, got %v", cfg.CounterTTL)
	}
	if cfg.Prompts["translate"] != "Traduza para o espanhol." {
		t.Fatalf("prompt override lost: %#v", cfg.Prompts)
	}
	if cfg.Temperatures["improve"] != 0.9 {
		t.Fatalf("temperature override lost: %#v", cfg.Temperatures)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	clearConfigEnv(t)
	if _, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadConfig_RateBurst(t *testing.T) {
	cases := []struct {
		name  string
		rps   string
		burst string
		want  int
	}{
		{name: "default", want: 10},
		{name: "low rps without burst", rps: "0.02", want: 1},
		{name: "low rps with burst", rps: "0.02", burst: "3", want: 3},
		{name: "high rps keeps default", rps: "5", want: 10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearConfigEnv(t)
			t.Setenv("RATE_RPS", tc.rps)
			t.Setenv("RATE_BURST", tc.burst)

			cfg, err := loadConfig("")
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if cfg.RateBurst != tc.want {
				t.Fatalf("expected burst %d, got %d", tc.want, cfg.RateBurst)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() config {
		c := defaultConfig()
		c.APIKeysPool = "k1,k2"
		c.RedisAddr = "localhost:6379"
		return c
	}

	cases := []struct {
		name    string
		mutate  func(c *config)
		wantErr string
	}{
		{name: "ok", mutate: func(c *config) {}},
		{name: "no pool", mutate: func(c *config) { c.APIKeysPool = " " }, wantErr: "API_KEYS_POOL environment variable not configured"},
		{name: "redis without addr", mutate: func(c *config) { c.RedisAddr = "" }, wantErr: "REDIS_ADDR"},
		{name: "memory without addr", mutate: func(c *config) { c.RedisAddr = ""; c.StoreBackend = backendMemory }},
		{name: "unknown backend", mutate: func(c *config) { c.StoreBackend = "etcd" }, wantErr: "STORE_BACKEND"},
		{name: "zero threshold", mutate: func(c *config) { c.RequestsPerKey = 0 }, wantErr: "REQUESTS_PER_KEY"},
		{name: "zero timeout", mutate: func(c *config) { c.UpstreamTimeout = 0 }, wantErr: "UPSTREAM_TIMEOUT"},
		{name: "negative ttl", mutate: func(c *config) { c.CounterTTL = -time.Second }, wantErr: "COUNTER_TTL"},
		{name: "stats without redis", mutate: func(c *config) {
			c.StoreBackend = backendMemory
			c.RedisAddr = ""
			c.StatsEnabled = true
		}, wantErr: "STATS_ENABLED"},
		{name: "bad rps", mutate: func(c *config) { c.RateRPS = 0 }, wantErr: "RATE_RPS"},
		{name: "rate disabled ignores rps", mutate: func(c *config) { c.RateRPS = 0; c.RateEnabled = false }},
		{name: "bad body limit", mutate: func(c *config) { c.MaxBodyBytes = 0 }, wantErr: "MAX_BODY_BYTES"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := valid()
			tc.mutate(&c)
			err := c.validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected err: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}
