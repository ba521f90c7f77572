package domain

import (
	"context"
	"fmt"
	"net/http"
)

// GenerateRequest é o pedido já montado para o provedor (prompt final + parâmetros).
type GenerateRequest struct {
	Prompt      string
	Temperature float32
	TopP        float32
	TopK        float32
}

// Generator chama o provedor generativo com uma chave específica.
//
// Erros do provedor devem ser devolvidos como *UpstreamError para que o status
// HTTP (429/403 em especial) chegue à regra de rotação.
type Generator interface {
	Generate(ctx context.Context, apiKey string, req GenerateRequest) (string, error)
}

// UpstreamError carrega o status HTTP devolvido (ou sintetizado) para o cliente.
type UpstreamError struct {
	Status  int
	Message string
	// Retried indica que a falha ocorreu depois da rotação forçada + retry.
	Retried bool
}

func (e *UpstreamError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("upstream error: %d", e.Status)
	}
	return fmt.Sprintf("upstream error %d: %s", e.Status, e.Message)
}

// IsDeadKey: o provedor rejeitou a chave (quota ou autorização).
func (e *UpstreamError) IsDeadKey() bool {
	return e.Status == http.StatusTooManyRequests || e.Status == http.StatusForbidden
}

// Result é a resposta de uma requisição bem sucedida.
type Result struct {
	Text         string
	KeyIndex     Index
	RequestCount int64
	Retried      bool
}
