package infra

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"textaipro-gateway/proxy/keyrotation/domain"

	lru "github.com/hashicorp/golang-lru/v2"
	"google.golang.org/genai"
)

const (
	DefaultModel      = "gemini-3-flash-preview"
	DefaultAPIVersion = "v1beta"

	defaultClientCacheSize = 64
)

// GenAIGenerator chama o Gemini (generateContent) usando o SDK oficial.
//
// O cliente do SDK fica preso a uma chave, então mantemos um cliente por chave em um LRU.
type GenAIGenerator struct {
	model      string
	baseURL    string
	apiVersion string
	httpClient *http.Client

	mu      sync.Mutex
	clients *lru.Cache[string, *genai.Client]
}

type GenAIOption func(*GenAIGenerator)

func WithModel(model string) GenAIOption {
	return func(g *GenAIGenerator) {
		if m := strings.TrimSpace(model); m != "" {
			g.model = m
		}
	}
}

// WithBaseURL troca o endpoint (ex: proxy corporativo ou servidor fake nos testes).
func WithBaseURL(u string) GenAIOption {
	return func(g *GenAIGenerator) { g.baseURL = strings.TrimSpace(u) }
}

func WithAPIVersion(v string) GenAIOption {
	return func(g *GenAIGenerator) {
		if v = strings.TrimSpace(v); v != "" {
			g.apiVersion = v
		}
	}
}

func WithHTTPClient(c *http.Client) GenAIOption {
	return func(g *GenAIGenerator) { g.httpClient = c }
}

func NewGenAIGenerator(opts ...GenAIOption) (*GenAIGenerator, error) {
	g := &GenAIGenerator{
		model:      DefaultModel,
		apiVersion: DefaultAPIVersion,
	}
	for _, opt := range opts {
		opt(g)
	}

	cache, err := lru.New[string, *genai.Client](defaultClientCacheSize)
	if err != nil {
		return nil, fmt.Errorf("client cache: %w", err)
	}
	g.clients = cache
	return g, nil
}

func (g *GenAIGenerator) Model() string { return g.model }

func (g *GenAIGenerator) Generate(ctx context.Context, apiKey string, req domain.GenerateRequest) (string, error) {
	client, err := g.client(ctx, apiKey)
	if err != nil {
		return "", &domain.UpstreamError{Status: http.StatusInternalServerError, Message: err.Error()}
	}

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(req.Temperature),
		TopP:        genai.Ptr(req.TopP),
		TopK:        genai.Ptr(req.TopK),
	}

	resp, err := client.Models.GenerateContent(ctx, g.model, genai.Text(req.Prompt), cfg)
	if err != nil {
		return "", upstreamError(err)
	}

	text := firstText(resp)
	if text == "" {
		return "", &domain.UpstreamError{Status: http.StatusInternalServerError, Message: "No response from AI"}
	}
	return text, nil
}

func (g *GenAIGenerator) client(ctx context.Context, apiKey string) (*genai.Client, error) {
	if c, ok := g.clients.Get(apiKey); ok {
		return c, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.clients.Get(apiKey); ok {
		return c, nil
	}

	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: g.httpClient,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    g.baseURL,
			APIVersion: g.apiVersion,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	g.clients.Add(apiKey, c)
	return c, nil
}

// firstText segue candidates[0].content.parts[0].text.
func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	c := resp.Candidates[0]
	if c == nil || c.Content == nil || len(c.Content.Parts) == 0 || c.Content.Parts[0] == nil {
		return ""
	}
	return c.Content.Parts[0].Text
}

// upstreamError traduz erros do SDK para o status que a regra de rotação entende.
func upstreamError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErrorToUpstream(apiErr)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrorToUpstream(*apiErrPtr)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.UpstreamError{Status: http.StatusRequestTimeout, Message: "Request timed out"}
	}
	return &domain.UpstreamError{Status: http.StatusInternalServerError, Message: err.Error()}
}

func apiErrorToUpstream(e genai.APIError) error {
	status := e.Code
	if status == 0 {
		status = http.StatusInternalServerError
	}
	msg := e.Message
	if msg == "" {
		msg = fmt.Sprintf("API error: %d", status)
	}
	return &domain.UpstreamError{Status: status, Message: msg}
}
