package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"textaipro-gateway/middleware/ratelimit"
	"textaipro-gateway/proxy/keyrotation"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func (a *app) serve(ctx context.Context) error {
	if err := a.cfg.validate(); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	pool, err := a.pool()
	if err != nil {
		return err
	}

	b, err := a.openBackends(ctx, true)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			a.logger.Warn("close backends", zap.Error(err))
		}
	}()

	rot, err := a.rotator(pool, b)
	if err != nil {
		return err
	}

	limiter := ratelimit.NewStore(a.cfg.RateRPS, a.cfg.RateBurst)
	h := a.handler(rot, b.store, limiter)

	srv := &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// provedor pode levar até UpstreamTimeout, duas vezes em caso de retry
		WriteTimeout: 2*a.cfg.UpstreamTimeout + 10*time.Second,
		IdleTimeout:  90 * time.Second,
	}

	logStartup(a.logger, a.cfg, pool)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("gateway listening", zap.String("addr", a.cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		a.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	if a.cfg.RateEnabled {
		g.Go(func() error { return limiter.Run(gctx) })
	}
	return g.Wait()
}

// handler empilha os middlewares: CORS e log por fora, depois rate limit e concorrência.
func (a *app) handler(p keyrotation.Processor, health keyrotation.Pinger, limiter *ratelimit.Store) http.Handler {
	h := keyrotation.NewHandler(keyrotation.Options{
		Processor:    p,
		Health:       health,
		Logger:       a.logger.Named("http"),
		MaxBodyBytes: a.cfg.MaxBodyBytes,
		StaticDir:    a.cfg.StaticDir,
	})
	h = ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
		Max:            a.cfg.ConcurrencyMax,
		RejectStatus:   http.StatusServiceUnavailable,
		AcquireTimeout: a.cfg.ConcurrencyTimeout,
	})(h)
	if a.cfg.RateEnabled {
		h = ratelimit.Middleware(ratelimit.Options{
			Store:               limiter,
			KeyHeader:           a.cfg.RateKeyHeader,
			TrustXForwardedFor:  a.cfg.TrustXFF,
			RejectStatus:        http.StatusTooManyRequests,
			RetryAfter:          a.cfg.RetryAfter,
			AddRateLimitHeaders: a.cfg.AddHeaders,
			Logger:              a.logger.Named("ratelimit"),
		})(h)
	}
	h = keyrotation.CORS(a.cfg.CORSOrigin)(h)
	h = keyrotation.RequestLog(a.logger.Named("access"))(h)
	return h
}
