package keyrotation

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"textaipro-gateway/proxy/keyrotation/application"
	"textaipro-gateway/proxy/keyrotation/domain"
	"textaipro-gateway/proxy/keyrotation/infra"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// upstream mínimo do generateContent: 429 para chaves em dead.
func newUpstream(t *testing.T, dead ...string) (*httptest.Server, *[]string) {
	t.Helper()
	var (
		mu   sync.Mutex
		keys []string
	)
	deadSet := map[string]bool{}
	for _, k := range dead {
		deadSet[k] = true
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("x-goog-api-key")
		mu.Lock()
		keys = append(keys, key)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if deadSet[key] {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"code":429,"message":"Resource has been exhausted","status":"RESOURCE_EXHAUSTED"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{map[string]any{
				"content": map[string]any{"role": "model", "parts": []any{map[string]any{"text": "done by " + key}}},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &keys
}

func newGateway(t *testing.T, srv *httptest.Server, store domain.RotationStore, threshold int64, keys ...string) http.Handler {
	t.Helper()
	gen, err := infra.NewGenAIGenerator(infra.WithBaseURL(srv.URL+"/"), infra.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	pool, err := domain.NewPool(keys...)
	require.NoError(t, err)

	rot := application.Rotator{
		Store:     store,
		Generator: gen,
		Stats:     infra.NewMemoryUsageStats(),
		Catalog:   application.NewCatalog(),
		Pool:      pool,
		Threshold: threshold,
	}
	return CORS("")(NewHandler(Options{Processor: rot}))
}

func post(t *testing.T, h http.Handler, body string) (int, map[string]any) {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "http://example/api/gemini", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	var m map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m), w.Body.String())
	return w.Code, m
}

func TestGateway_RotatesAfterThreshold(t *testing.T) {
	srv, seen := newUpstream(t)
	store := infra.NewMemoryRotationStore()
	h := newGateway(t, srv, store, 2, "kA", "kB")

	var indexes []float64
	for i := 0; i < 4; i++ {
		code, m := post(t, h, `{"text":"hi","action":"summarize"}`)
		require.Equal(t, http.StatusOK, code, m)
		indexes = append(indexes, m["keyIndex"].(float64))
	}
	assert.Equal(t, []float64{0, 0, 1, 1}, indexes)
	assert.Equal(t, []string{"kA", "kA", "kB", "kB"}, *seen)
}

func TestGateway_DeadKeyFailsOver(t *testing.T) {
	srv, seen := newUpstream(t, "kA")
	store := infra.NewMemoryRotationStore()
	h := newGateway(t, srv, store, 20, "kA", "kB", "kC")

	code, m := post(t, h, `{"text":"hi","action":"translate"}`)
	require.Equal(t, http.StatusOK, code, m)
	assert.Equal(t, "done by kB", m["result"])
	assert.EqualValues(t, 1, m["keyIndex"])
	assert.EqualValues(t, 1, m["requestCount"])
	assert.Contains(t, *seen, "kA")
	assert.Equal(t, "kB", (*seen)[len(*seen)-1])
}

func TestGateway_AllKeysDead(t *testing.T) {
	srv, _ := newUpstream(t, "kA", "kB")
	store := infra.NewMemoryRotationStore()
	h := newGateway(t, srv, store, 20, "kA", "kB")

	code, m := post(t, h, `{"text":"hi","action":"correct"}`)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, true, m["retried"])
	assert.NotEmpty(t, m["error"])
}
