package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"textaipro-gateway/proxy/keyrotation/application"
	"textaipro-gateway/proxy/keyrotation/infra"

	"gopkg.in/yaml.v3"
)

const (
	backendRedis  = "redis"
	backendBadger = "badger"
	backendMemory = "memory"
)

// config é montada em camadas: padrões -> arquivo YAML (--config) -> variáveis de ambiente -> flags.
type config struct {
	ListenAddr      string        `yaml:"listen_addr"`
	APIKeysPool     string        `yaml:"api_keys_pool"`
	Model           string        `yaml:"gemini_model"`
	BaseURL         string        `yaml:"gemini_base_url"`
	APIVersion      string        `yaml:"gemini_api_version"`
	UpstreamTimeout time.Duration `yaml:"upstream_timeout"`
	RequestsPerKey  int64         `yaml:"requests_per_key"`
	CounterTTL      time.Duration `yaml:"counter_ttl"`

	StoreBackend   string `yaml:"store_backend"`
	RedisAddr      string `yaml:"redis_addr"`
	RedisPassword  string `yaml:"redis_password"`
	RedisDB        int    `yaml:"redis_db"`
	RedisKeyPrefix string `yaml:"redis_key_prefix"`
	BadgerDir      string `yaml:"badger_dir"`

	StatsEnabled bool          `yaml:"stats_enabled"`
	StatsPrefix  string        `yaml:"stats_prefix"`
	StatsTTL     time.Duration `yaml:"stats_ttl"`
	StatsBucket  string        `yaml:"stats_bucket"`

	RateEnabled        bool          `yaml:"rate_enabled"`
	RateRPS            float64       `yaml:"rate_rps"`
	RateBurst          int           `yaml:"rate_burst"`
	RateKeyHeader      string        `yaml:"rate_key_header"`
	TrustXFF           bool          `yaml:"trust_xff"`
	RetryAfter         time.Duration `yaml:"retry_after"`
	AddHeaders         bool          `yaml:"add_ratelimit_headers"`
	ConcurrencyMax     int           `yaml:"concurrency_max"`
	ConcurrencyTimeout time.Duration `yaml:"concurrency_timeout"`

	MaxBodyBytes int64  `yaml:"max_body_bytes"`
	CORSOrigin   string `yaml:"cors_origin"`
	StaticDir    string `yaml:"static_dir"`

	// Prompts e Temperatures sobrescrevem o catálogo por ação (só via YAML).
	Prompts      map[string]string  `yaml:"prompts"`
	Temperatures map[string]float32 `yaml:"temperatures"`
}

func defaultConfig() config {
	return config{
		ListenAddr:      ":3000",
		Model:           infra.DefaultModel,
		APIVersion:      infra.DefaultAPIVersion,
		UpstreamTimeout: application.DefaultTimeout,
		RequestsPerKey:  application.DefaultThreshold,
		CounterTTL:      infra.DefaultCounterTTL,

		StoreBackend: backendRedis,

		StatsPrefix: "textaipro:usage",
		StatsTTL:    24 * time.Hour,
		StatsBucket: "minute",

		RateEnabled:    true,
		RateRPS:        2,
		RateBurst:      10,
		RetryAfter:     time.Second,
		ConcurrencyMax: 100,

		MaxBodyBytes: 5 << 20,
		CORSOrigin:   "*",
	}
}

// loadConfig lê o YAML (se path != "") e aplica o ambiente por cima.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *config) applyEnv() {
	c.ListenAddr = getenvDefault("LISTEN_ADDR", c.ListenAddr)
	c.APIKeysPool = getenvDefault("API_KEYS_POOL", c.APIKeysPool)
	c.Model = getenvDefault("GEMINI_MODEL", c.Model)
	c.BaseURL = getenvDefault("GEMINI_BASE_URL", c.BaseURL)
	c.APIVersion = getenvDefault("GEMINI_API_VERSION", c.APIVersion)
	c.UpstreamTimeout = getenvDurationDefault("UPSTREAM_TIMEOUT", c.UpstreamTimeout)
	c.RequestsPerKey = int64(getenvIntDefault("REQUESTS_PER_KEY", int(c.RequestsPerKey)))
	c.CounterTTL = getenvDurationDefault("COUNTER_TTL", c.CounterTTL)

	c.StoreBackend = strings.ToLower(getenvDefault("STORE_BACKEND", c.StoreBackend))
	c.RedisAddr = getenvDefault("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = getenvDefault("REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = getenvIntDefault("REDIS_DB", c.RedisDB)
	c.RedisKeyPrefix = getenvDefault("REDIS_KEY_PREFIX", c.RedisKeyPrefix)
	c.BadgerDir = getenvDefault("BADGER_DIR", c.BadgerDir)

	c.StatsEnabled = getenvBoolDefault("STATS_ENABLED", c.StatsEnabled)
	c.StatsPrefix = getenvDefault("STATS_PREFIX", c.StatsPrefix)
	c.StatsTTL = getenvDurationDefault("STATS_TTL", c.StatsTTL)
	c.StatsBucket = getenvDefault("STATS_BUCKET", c.StatsBucket)

	c.RateEnabled = getenvBoolDefault("RATE_ENABLED", c.RateEnabled)
	c.RateRPS = getenvFloatDefault("RATE_RPS", c.RateRPS)
	// IMPORTANTE: o "burst" permite uma rajada inicial de requisições.
	// Com RPS muito baixo (ex: 0.02) e sem RATE_BURST explícito, usamos 1
	// para o limite ser perceptível desde a primeira requisição.
	if burst, ok := getenvInt("RATE_BURST"); ok {
		c.RateBurst = burst
	} else if getenvIsSet("RATE_RPS") && c.RateRPS > 0 && c.RateRPS < 1 {
		c.RateBurst = 1
	}
	c.RateKeyHeader = getenvDefault("RATE_KEY_HEADER", c.RateKeyHeader)
	c.TrustXFF = getenvBoolDefault("TRUST_XFF", c.TrustXFF)
	c.RetryAfter = getenvDurationDefault("RETRY_AFTER", c.RetryAfter)
	c.AddHeaders = getenvBoolDefault("ADD_RATELIMIT_HEADERS", c.AddHeaders)
	c.ConcurrencyMax = getenvIntDefault("CONCURRENCY_MAX", c.ConcurrencyMax)
	c.ConcurrencyTimeout = getenvDurationDefault("CONCURRENCY_TIMEOUT", c.ConcurrencyTimeout)

	c.MaxBodyBytes = int64(getenvIntDefault("MAX_BODY_BYTES", int(c.MaxBodyBytes)))
	c.CORSOrigin = getenvDefault("CORS_ORIGIN", c.CORSOrigin)
	c.StaticDir = getenvDefault("STATIC_DIR", c.StaticDir)
}

// validateStore cobre o que `keys` e `serve` precisam.
func (c config) validateStore() error {
	if strings.TrimSpace(c.APIKeysPool) == "" {
		return errors.New("API_KEYS_POOL environment variable not configured")
	}
	switch c.StoreBackend {
	case backendRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			return errors.New("REDIS_ADDR is required when STORE_BACKEND=redis")
		}
	case backendBadger, backendMemory:
	default:
		return fmt.Errorf("STORE_BACKEND must be one of redis, badger, memory (got %q)", c.StoreBackend)
	}
	if c.CounterTTL < 0 {
		return errors.New("COUNTER_TTL must be >= 0")
	}
	return nil
}

func (c config) validate() error {
	if err := c.validateStore(); err != nil {
		return err
	}
	if c.RequestsPerKey <= 0 {
		return errors.New("REQUESTS_PER_KEY must be > 0")
	}
	if c.UpstreamTimeout <= 0 {
		return errors.New("UPSTREAM_TIMEOUT must be > 0")
	}
	if c.StatsEnabled && strings.TrimSpace(c.RedisAddr) == "" {
		return errors.New("REDIS_ADDR is required when STATS_ENABLED=true")
	}
	if c.RateEnabled && c.RateRPS <= 0 {
		return errors.New("RATE_RPS must be > 0")
	}
	if c.RateEnabled && c.RateBurst <= 0 {
		return errors.New("RATE_BURST must be > 0")
	}
	if c.ConcurrencyMax < 0 {
		return errors.New("CONCURRENCY_MAX must be >= 0")
	}
	if c.MaxBodyBytes <= 0 {
		return errors.New("MAX_BODY_BYTES must be > 0")
	}
	return nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	if i, ok := getenvInt(k); ok {
		return i
	}
	return def
}

func getenvInt(k string) (int, bool) {
	v, ok := os.LookupEnv(k)
	if !ok || v == "" {
		return 0, false
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return i, true
}

func getenvIsSet(k string) bool {
	v, ok := os.LookupEnv(k)
	return ok && v != ""
}

func getenvFloatDefault(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
