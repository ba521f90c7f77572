package application

import (
	_ "embed"
	"fmt"
	"strings"

	"textaipro-gateway/proxy/keyrotation/domain"
)

var (
	//go:embed prompts/correct.txt
	promptCorrect string
	//go:embed prompts/improve.txt
	promptImprove string
	//go:embed prompts/summarize.txt
	promptSummarize string
	//go:embed prompts/to_prompt.txt
	promptToPrompt string
	//go:embed prompts/translate.txt
	promptTranslate string
)

const (
	defaultTemperature float32 = 0.5
	defaultTopP        float32 = 0.95
	defaultTopK        float32 = 40
)

// ActionSpec é o prompt de sistema e a temperatura usados por uma ação.
type ActionSpec struct {
	Prompt      string
	Temperature float32
}

// Catalog mapeia cada ação para o pedido enviado ao provedor.
type Catalog struct {
	specs map[domain.Action]ActionSpec
	topP  float32
	topK  float32
}

type CatalogOption func(*Catalog)

// WithPrompt substitui o prompt de sistema de uma ação (ex: vindo do arquivo de config).
func WithPrompt(a domain.Action, prompt string) CatalogOption {
	return func(c *Catalog) {
		prompt = strings.TrimSpace(prompt)
		if prompt == "" {
			return
		}
		spec := c.specs[a]
		spec.Prompt = prompt
		c.specs[a] = spec
	}
}

func WithTemperature(a domain.Action, t float32) CatalogOption {
	return func(c *Catalog) {
		spec := c.specs[a]
		spec.Temperature = t
		c.specs[a] = spec
	}
}

func NewCatalog(opts ...CatalogOption) Catalog {
	c := Catalog{
		specs: map[domain.Action]ActionSpec{
			domain.ActionCorrect:   {Prompt: strings.TrimSpace(promptCorrect), Temperature: 0.1},
			domain.ActionImprove:   {Prompt: strings.TrimSpace(promptImprove), Temperature: 0.7},
			domain.ActionSummarize: {Prompt: strings.TrimSpace(promptSummarize), Temperature: 0.2},
			domain.ActionToPrompt:  {Prompt: strings.TrimSpace(promptToPrompt), Temperature: 0.4},
			domain.ActionTranslate: {Prompt: strings.TrimSpace(promptTranslate), Temperature: 0.3},
		},
		topP: defaultTopP,
		topK: defaultTopK,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func (c Catalog) Spec(a domain.Action) (ActionSpec, bool) {
	spec, ok := c.specs[a]
	if !ok || spec.Prompt == "" {
		return ActionSpec{}, false
	}
	if spec.Temperature <= 0 {
		spec.Temperature = defaultTemperature
	}
	return spec, true
}

// Build monta o pedido final: instruções de sistema e texto do usuário no mesmo turno.
func (c Catalog) Build(a domain.Action, text string) (domain.GenerateRequest, error) {
	spec, ok := c.Spec(a)
	if !ok {
		return domain.GenerateRequest{}, fmt.Errorf("%w: %s", domain.ErrUnknownAction, a)
	}
	return domain.GenerateRequest{
		Prompt:      "[SYSTEM INSTRUCTIONS - FOLLOW STRICTLY]:\n" + spec.Prompt + "\n\n---\n\n[USER INPUT TO PROCESS]:\n" + text,
		Temperature: spec.Temperature,
		TopP:        c.topP,
		TopK:        c.topK,
	}, nil
}
