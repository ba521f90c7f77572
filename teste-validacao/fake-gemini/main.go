// fake-gemini imita o endpoint generateContent para validar a rotação sem gastar cota.
//
// Chaves listadas em DEAD_KEYS (separadas por vírgula) recebem 429, como uma chave
// sem cota. As demais recebem de volta o trecho final do prompt.
//
//	DEAD_KEYS=key-a LISTEN_ADDR=:8081 go run ./teste-validacao/fake-gemini
//	GEMINI_BASE_URL=http://localhost:8081/ API_KEYS_POOL=key-a,key-b STORE_BACKEND=memory go run ./cmd/gateway
package main

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
)

const userInputMarker = "[USER INPUT TO PROCESS]:\n"

type generateRequest struct {
	Contents []struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"contents"`
}

type fakeServer struct {
	dead   map[string]bool
	calls  atomic.Int64
	logger *zap.Logger
}

func (s *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, ":generateContent") {
		http.NotFound(w, r)
		return
	}
	key := r.Header.Get("x-goog-api-key")
	if key == "" {
		key = r.URL.Query().Get("key")
	}
	n := s.calls.Add(1)
	s.logger.Info("generateContent", zap.Int64("call", n), zap.String("key", key), zap.String("path", r.URL.Path))

	w.Header().Set("Content-Type", "application/json")
	if s.dead[key] {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": 429, "message": "Resource has been exhausted (e.g. check quota).", "status": "RESOURCE_EXHAUSTED"},
		})
		return
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": 400, "message": err.Error(), "status": "INVALID_ARGUMENT"},
		})
		return
	}
	var prompt string
	for _, c := range req.Contents {
		for _, p := range c.Parts {
			prompt += p.Text
		}
	}
	if _, after, ok := strings.Cut(prompt, userInputMarker); ok {
		prompt = after
	}

	_ = json.NewEncoder(w).Encode(map[string]any{
		"candidates": []any{map[string]any{
			"content":      map[string]any{"role": "model", "parts": []any{map[string]any{"text": "[fake] " + prompt}}},
			"finishReason": "STOP",
		}},
	})
}

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	s := &fakeServer{dead: map[string]bool{}, logger: logger}
	for _, k := range strings.Split(os.Getenv("DEAD_KEYS"), ",") {
		if k = strings.TrimSpace(k); k != "" {
			s.dead[k] = true
		}
	}

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8081"
	}
	logger.Info("fake gemini listening", zap.String("addr", addr), zap.Int("dead_keys", len(s.dead)))
	if err := http.ListenAndServe(addr, s); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
