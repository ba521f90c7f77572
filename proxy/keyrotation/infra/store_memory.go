package infra

import (
	"context"
	"sync"
	"time"

	"textaipro-gateway/proxy/keyrotation/domain"
)

// MemoryRotationStore é uma implementação simples em memória.
// Útil para testes e desenvolvimento.
//
// Não é compartilhada entre réplicas: cada processo rotaciona sozinho.
type MemoryRotationStore struct {
	mu       sync.Mutex
	ptr      domain.Index
	hasPtr   bool
	counters map[domain.Index]memCounter
	now      func() time.Time

	storeConfig
}

type memCounter struct {
	n         int64
	expiresAt time.Time
}

func NewMemoryRotationStore(opts ...StoreOption) *MemoryRotationStore {
	return &MemoryRotationStore{
		counters:    make(map[domain.Index]memCounter),
		now:         time.Now,
		storeConfig: newStoreConfig(opts),
	}
}

func (s *MemoryRotationStore) CurrentIndex(context.Context) (domain.Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasPtr {
		s.ptr, s.hasPtr = 0, true
	}
	return s.ptr, nil
}

func (s *MemoryRotationStore) Incr(_ context.Context, safe domain.Index) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.counterLocked(safe)
	c.n++
	s.counters[safe] = c
	return c.n, nil
}

func (s *MemoryRotationStore) Rotate(_ context.Context, from domain.Index, poolSize int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !domain.ResolvesTo(s.ptr, from, poolSize) {
		return false, nil
	}
	s.ptr++
	s.hasPtr = true

	if s.counterTTL > 0 {
		if c, ok := s.counters[from]; ok && !s.expiredLocked(c) {
			c.expiresAt = s.now().Add(s.counterTTL)
			s.counters[from] = c
		}
	}
	return true, nil
}

func (s *MemoryRotationStore) Usage(_ context.Context, poolSize int) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, max(poolSize, 0))
	for i := range out {
		out[i] = s.counterLocked(domain.Index(i)).n
	}
	return out, nil
}

func (s *MemoryRotationStore) Reset(context.Context, int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ptr, s.hasPtr = 0, false
	s.counters = make(map[domain.Index]memCounter)
	return nil
}

func (s *MemoryRotationStore) Ping(context.Context) error { return nil }

// counterLocked devolve o contador, descartando-o se já expirou.
func (s *MemoryRotationStore) counterLocked(i domain.Index) memCounter {
	c, ok := s.counters[i]
	if !ok {
		return memCounter{}
	}
	if s.expiredLocked(c) {
		delete(s.counters, i)
		return memCounter{}
	}
	return c
}

func (s *MemoryRotationStore) expiredLocked(c memCounter) bool {
	return !c.expiresAt.IsZero() && !s.now().Before(c.expiresAt)
}
