package keyrotation

import (
	"context"
	"errors"
	"net/http"
	"time"

	"textaipro-gateway/proxy/keyrotation/domain"

	"go.uber.org/zap"
)

const DefaultMaxBodyBytes = 5 << 20

// Processor é o caso de uso chamado pelo handler (application.Rotator em produção).
type Processor interface {
	Process(ctx context.Context, text string, action domain.Action) (domain.Result, error)
}

// Pinger é usado pelo /healthz para checar o store.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	Processor    Processor
	Health       Pinger
	Logger       *zap.Logger
	MaxBodyBytes int64
	// StaticDir, se definido, serve o front-end do editor em "/".
	StaticDir string
}

// NewHandler monta as rotas do gateway. CORS e log ficam por conta de quem chama
// (ver cmd/gateway), como os middlewares de rate limit.
func NewHandler(opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}

	mux := http.NewServeMux()
	mux.Handle("/api/gemini", generateHandler(opts))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if opts.Health != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := opts.Health.Ping(ctx); err != nil {
				opts.Logger.Warn("health check failed", zap.Error(err))
				writeError(w, http.StatusServiceUnavailable, "store unavailable")
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if opts.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(opts.StaticDir)))
	} else {
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusNotFound, "Not found")
		})
	}
	return mux
}

func generateHandler(opts Options) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", "POST, OPTIONS")
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}

		var req apiRequest
		if err := decodeBody(w, r, opts.MaxBodyBytes, &req); err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
				return
			}
			writeError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}
		if req.Text == "" || req.Action == "" {
			writeError(w, http.StatusBadRequest, "Missing text or action")
			return
		}

		res, err := opts.Processor.Process(r.Context(), req.Text, domain.Action(req.Action))
		if err != nil {
			var ue *domain.UpstreamError
			if errors.As(err, &ue) {
				status := ue.Status
				if status < 400 || status > 599 {
					status = http.StatusInternalServerError
				}
				opts.Logger.Warn("upstream request failed",
					zap.String("request_id", w.Header().Get(RequestIDHeader)),
					zap.String("action", req.Action),
					zap.Int("status", ue.Status),
					zap.Bool("retried", ue.Retried),
					zap.String("message", ue.Message))
				writeJSON(w, status, apiError{Error: ue.Message, Retried: ue.Retried})
				return
			}

			opts.Logger.Error("proxy error",
				zap.String("request_id", w.Header().Get(RequestIDHeader)),
				zap.String("action", req.Action),
				zap.Error(err))
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, apiResponse{
			Result:       res.Text,
			KeyIndex:     int64(res.KeyIndex),
			RequestCount: res.RequestCount,
			Retried:      res.Retried,
		})
	})
}
