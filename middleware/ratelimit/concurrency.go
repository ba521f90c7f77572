package ratelimit

import (
	"context"
	"net/http"
	"time"
)

type ConcurrencyOptions struct {
	Max          int
	RejectStatus int
	// AcquireTimeout <= 0 espera por uma vaga até o cliente desistir (ctx da requisição).
	AcquireTimeout time.Duration
}

// semaphore é um pool simples baseado em channel com capacidade fixa.
type semaphore chan struct{}

// acquire bloqueia até conseguir uma vaga ou até o ctx encerrar.
// A função de release deve ser chamada exatamente uma vez.
func (s semaphore) acquire(ctx context.Context) (func(), bool) {
	select {
	case s <- struct{}{}:
		return func() { <-s }, true
	case <-ctx.Done():
		return nil, false
	}
}

// ConcurrencyMiddleware limita quantas requisições ficam em voo ao mesmo tempo.
// Cada uma segura uma vaga enquanto espera o provedor (até o timeout do upstream).
func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Max <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}
	sem := make(semaphore, opts.Max)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if opts.AcquireTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, opts.AcquireTimeout)
				defer cancel()
			}

			release, ok := sem.acquire(ctx)
			if !ok {
				reject(w, opts.RejectStatus, "Server busy")
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
