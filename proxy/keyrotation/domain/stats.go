package domain

import (
	"context"
	"time"
)

type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeDeadKey Outcome = "dead_key"
	OutcomeError   Outcome = "error"
)

// UsageEvent representa uma chamada ao provedor feita com uma chave do pool.
//
// Cada tentativa gera um evento: uma requisição com retry gera dois.
type UsageEvent struct {
	Action   Action
	KeyIndex Index
	Outcome  Outcome
	Status   int
	Retried  bool

	At time.Time
}

// UsageRecorder persiste estatísticas de uso.
// O chamador trata erro como best-effort (não derruba a requisição).
type UsageRecorder interface {
	Record(ctx context.Context, ev UsageEvent) error
}
