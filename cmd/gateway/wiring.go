package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"textaipro-gateway/proxy/keyrotation/application"
	"textaipro-gateway/proxy/keyrotation/domain"
	"textaipro-gateway/proxy/keyrotation/infra"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// rotationStore é o RotationStore com o Ping usado no /healthz.
type rotationStore interface {
	domain.RotationStore
	Ping(ctx context.Context) error
}

// backends agrupa o que depende de conexão externa e precisa ser fechado.
type backends struct {
	store rotationStore
	stats *infra.RedisUsageStats
	rdb   *redis.Client

	closers []func() error
}

func (b *backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *app) redisClient(ctx context.Context) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     a.cfg.RedisAddr,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", a.cfg.RedisAddr, err)
	}
	return rdb, nil
}

func (a *app) openBackends(ctx context.Context, withStats bool) (*backends, error) {
	b := &backends{}
	storeOpts := []infra.StoreOption{
		infra.WithKeyPrefix(a.cfg.RedisKeyPrefix),
		infra.WithCounterTTL(a.cfg.CounterTTL),
	}

	if a.cfg.StoreBackend == backendRedis || (withStats && a.cfg.StatsEnabled) {
		rdb, err := a.redisClient(ctx)
		if err != nil {
			return nil, err
		}
		b.rdb = rdb
		b.closers = append(b.closers, rdb.Close)
	}

	switch a.cfg.StoreBackend {
	case backendRedis:
		b.store = infra.NewRedisRotationStore(b.rdb, storeOpts...)
	case backendBadger:
		s, err := infra.OpenBadgerRotationStore(a.cfg.BadgerDir, storeOpts...)
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		b.store = s
		b.closers = append(b.closers, s.Close)
	case backendMemory:
		b.store = infra.NewMemoryRotationStore(storeOpts...)
	default:
		_ = b.Close()
		return nil, fmt.Errorf("unknown store backend %q", a.cfg.StoreBackend)
	}

	if withStats && a.cfg.StatsEnabled && b.rdb != nil {
		b.stats = infra.NewRedisUsageStats(
			b.rdb,
			infra.WithStatsPrefix(a.cfg.StatsPrefix),
			infra.WithStatsTTL(a.cfg.StatsTTL),
			infra.WithStatsBucket(a.cfg.StatsBucket),
		)
	}
	return b, nil
}

func (a *app) catalog() (application.Catalog, error) {
	var opts []application.CatalogOption
	for name, prompt := range a.cfg.Prompts {
		act, err := domain.ParseAction(name)
		if err != nil {
			return application.Catalog{}, fmt.Errorf("config prompts: %w", err)
		}
		opts = append(opts, application.WithPrompt(act, prompt))
	}
	for name, t := range a.cfg.Temperatures {
		act, err := domain.ParseAction(name)
		if err != nil {
			return application.Catalog{}, fmt.Errorf("config temperatures: %w", err)
		}
		opts = append(opts, application.WithTemperature(act, t))
	}
	return application.NewCatalog(opts...), nil
}

func (a *app) rotator(pool domain.Pool, b *backends) (application.Rotator, error) {
	gen, err := infra.NewGenAIGenerator(
		infra.WithModel(a.cfg.Model),
		infra.WithBaseURL(a.cfg.BaseURL),
		infra.WithAPIVersion(a.cfg.APIVersion),
	)
	if err != nil {
		return application.Rotator{}, err
	}
	cat, err := a.catalog()
	if err != nil {
		return application.Rotator{}, err
	}

	r := application.Rotator{
		Store:     b.store,
		Generator: gen,
		Catalog:   cat,
		Pool:      pool,
		Threshold: a.cfg.RequestsPerKey,
		Timeout:   a.cfg.UpstreamTimeout,
		Logger:    a.logger.Named("rotation"),
	}
	if b.stats != nil {
		r.Stats = b.stats
	}
	return r, nil
}

func (a *app) pool() (domain.Pool, error) {
	pool, err := domain.ParsePool(a.cfg.APIKeysPool)
	if err != nil {
		return domain.Pool{}, fmt.Errorf("API_KEYS_POOL: %w", err)
	}
	return pool, nil
}

func logStartup(logger *zap.Logger, cfg config, pool domain.Pool) {
	logger.Info("gateway configured",
		zap.String("listen", cfg.ListenAddr),
		zap.Int("api_keys", pool.Size()),
		zap.String("model", cfg.Model),
		zap.String("store", cfg.StoreBackend),
		zap.Int64("requests_per_key", cfg.RequestsPerKey),
		zap.Duration("counter_ttl", cfg.CounterTTL),
		zap.Duration("upstream_timeout", cfg.UpstreamTimeout))
	logger.Info("limits",
		zap.Bool("rate_enabled", cfg.RateEnabled),
		zap.Float64("rate_rps", cfg.RateRPS),
		zap.Int("rate_burst", cfg.RateBurst),
		zap.String("rate_key_header", cfg.RateKeyHeader),
		zap.Bool("trust_xff", cfg.TrustXFF),
		zap.Int("concurrency_max", cfg.ConcurrencyMax),
		zap.Duration("concurrency_timeout", cfg.ConcurrencyTimeout),
		zap.Bool("stats_enabled", cfg.StatsEnabled))
}
