package infra

import (
	"context"
	"sync"

	"textaipro-gateway/proxy/keyrotation/domain"
)

type Counters struct {
	OK      int64
	DeadKey int64
	Error   int64
}

func (c *Counters) add(o domain.Outcome) {
	switch o {
	case domain.OutcomeDeadKey:
		c.DeadKey++
	case domain.OutcomeError:
		c.Error++
	default:
		c.OK++
	}
}

// MemoryUsageStats é uma implementação simples em memória.
// Útil para testes e desenvolvimento.
//
// Não faz expiração e não é indicada para produção.
type MemoryUsageStats struct {
	mu       sync.Mutex
	total    Counters
	retried  int64
	byAction map[domain.Action]Counters
	byKey    map[domain.Index]Counters
}

func NewMemoryUsageStats() *MemoryUsageStats {
	return &MemoryUsageStats{
		byAction: make(map[domain.Action]Counters),
		byKey:    make(map[domain.Index]Counters),
	}
}

func (s *MemoryUsageStats) Record(_ context.Context, ev domain.UsageEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.add(ev.Outcome)
	if ev.Retried {
		s.retried++
	}

	a := s.byAction[ev.Action]
	a.add(ev.Outcome)
	s.byAction[ev.Action] = a

	k := s.byKey[ev.KeyIndex]
	k.add(ev.Outcome)
	s.byKey[ev.KeyIndex] = k
	return nil
}

func (s *MemoryUsageStats) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryUsageStats) Retried() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retried
}

func (s *MemoryUsageStats) ByAction() map[domain.Action]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.Action]Counters, len(s.byAction))
	for k, v := range s.byAction {
		out[k] = v
	}
	return out
}

func (s *MemoryUsageStats) ByKey() map[domain.Index]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.Index]Counters, len(s.byKey))
	for k, v := range s.byKey {
		out[k] = v
	}
	return out
}
