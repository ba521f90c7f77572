package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"textaipro-gateway/proxy/keyrotation/domain"

	"go.uber.org/zap"
)

const (
	DefaultThreshold = 20
	DefaultTimeout   = 30 * time.Second
)

// Rotator concentra a regra de rotação de chaves.
//
// Ele não sabe nada sobre HTTP de entrada (headers/status do cliente); só devolve
// um resultado ou um erro (*domain.UpstreamError quando o status importa).
type Rotator struct {
	Store     domain.RotationStore
	Generator domain.Generator
	Stats     domain.UsageRecorder
	Catalog   Catalog
	Pool      domain.Pool

	// Threshold: sucessos por chave antes de rotacionar.
	Threshold int64
	// Timeout de cada chamada ao provedor.
	Timeout time.Duration
	Logger  *zap.Logger
}

func (r Rotator) withDefaults() Rotator {
	if r.Threshold <= 0 {
		r.Threshold = DefaultThreshold
	}
	if r.Timeout <= 0 {
		r.Timeout = DefaultTimeout
	}
	if r.Logger == nil {
		r.Logger = zap.NewNop()
	}
	if r.Catalog.specs == nil {
		r.Catalog = NewCatalog()
	}
	return r
}

// Process executa o fluxo completo para uma requisição.
//
//  1. lê o ponteiro (inicializa em 0 na primeira execução)
//  2. resolve a chave com módulo sobre o tamanho do pool
//  3. chama o provedor
//  4. 429/403: rotação forçada + um único retry
//  5. sucesso: incrementa o contador da chave usada
//  6. contador >= Threshold: rotaciona
//
// Outros erros do provedor voltam direto, sem incrementar nenhum contador.
func (r Rotator) Process(ctx context.Context, text string, action domain.Action) (domain.Result, error) {
	r = r.withDefaults()

	req, err := r.Catalog.Build(action, text)
	if err != nil {
		return domain.Result{}, &domain.UpstreamError{
			Status:  http.StatusBadRequest,
			Message: "Unknown action: " + string(action),
		}
	}
	if r.Pool.Size() == 0 {
		return domain.Result{}, domain.ErrEmptyPool
	}

	safe, key, err := r.resolve(ctx)
	if err != nil {
		return domain.Result{}, err
	}

	out, err := r.call(ctx, action, safe, key, req, false)
	retried := false
	if err != nil {
		var ue *domain.UpstreamError
		if !errors.As(err, &ue) || !ue.IsDeadKey() {
			return domain.Result{}, err
		}

		r.Logger.Warn("dead key, force rotating",
			zap.Int64("key_index", int64(safe)),
			zap.Int("status", ue.Status))

		if _, err := r.Store.Rotate(ctx, safe, r.Pool.Size()); err != nil {
			return domain.Result{}, fmt.Errorf("force rotate from %d: %w", safe, err)
		}
		safe, key, err = r.resolve(ctx)
		if err != nil {
			return domain.Result{}, err
		}

		r.Logger.Info("retrying with new key", zap.Int64("key_index", int64(safe)))
		retried = true
		out, err = r.call(ctx, action, safe, key, req, true)
		if err != nil {
			if errors.As(err, &ue) {
				failed := *ue
				failed.Retried = true
				if failed.Message == "" {
					failed.Message = "All keys exhausted or rate-limited"
				}
				return domain.Result{}, &failed
			}
			return domain.Result{}, err
		}
	}

	count, err := r.Store.Incr(ctx, safe)
	if err != nil {
		return domain.Result{}, fmt.Errorf("increment usage of %d: %w", safe, err)
	}
	r.Logger.Debug("usage incremented", zap.Int64("key_index", int64(safe)), zap.Int64("count", count))

	if count >= r.Threshold {
		rotated, err := r.Store.Rotate(ctx, safe, r.Pool.Size())
		if err != nil {
			return domain.Result{}, fmt.Errorf("rotate from %d: %w", safe, err)
		}
		r.Logger.Info("threshold reached",
			zap.Int64("key_index", int64(safe)),
			zap.Int64("count", count),
			zap.Int64("threshold", r.Threshold),
			zap.Bool("rotated", rotated))
	}

	return domain.Result{
		Text:         out,
		KeyIndex:     safe,
		RequestCount: count,
		Retried:      retried,
	}, nil
}

func (r Rotator) resolve(ctx context.Context) (domain.Index, string, error) {
	idx, err := r.Store.CurrentIndex(ctx)
	if err != nil {
		return 0, "", fmt.Errorf("fetch current index: %w", err)
	}
	safe, key := r.Pool.Resolve(idx)
	return safe, key, nil
}

func (r Rotator) call(ctx context.Context, action domain.Action, safe domain.Index, key string, req domain.GenerateRequest, retry bool) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	out, err := r.Generator.Generate(callCtx, key, req)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		var ue *domain.UpstreamError
		if !errors.As(err, &ue) {
			err = &domain.UpstreamError{Status: http.StatusRequestTimeout, Message: "Request timed out"}
		}
	}

	ev := domain.UsageEvent{
		Action:   action,
		KeyIndex: safe,
		Outcome:  domain.OutcomeOK,
		Retried:  retry,
		At:       time.Now(),
	}
	if err != nil {
		ev.Outcome = domain.OutcomeError
		var ue *domain.UpstreamError
		if errors.As(err, &ue) {
			ev.Status = ue.Status
			if ue.IsDeadKey() {
				ev.Outcome = domain.OutcomeDeadKey
			}
		}
	}
	r.record(ctx, ev)

	return out, err
}

func (r Rotator) record(ctx context.Context, ev domain.UsageEvent) {
	if r.Stats == nil {
		return
	}
	if err := r.Stats.Record(ctx, ev); err != nil {
		r.Logger.Debug("usage stats record failed", zap.Error(err))
	}
}
