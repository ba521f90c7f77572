package infra

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"textaipro-gateway/proxy/keyrotation/domain"

	"github.com/dgraph-io/badger/v4"
)

// BadgerRotationStore mantém o estado da rotação em um badger local.
//
// Serve para um gateway de nó único que precisa sobreviver a restart sem Redis.
// Não é compartilhado entre processos (badger trava o diretório).
type BadgerRotationStore struct {
	db    *badger.DB
	owned bool
	// serializa escritas deste processo; ErrConflict fica só para escritores externos
	mu sync.Mutex
	storeConfig
}

func NewBadgerRotationStore(db *badger.DB, opts ...StoreOption) *BadgerRotationStore {
	return &BadgerRotationStore{db: db, storeConfig: newStoreConfig(opts)}
}

// OpenBadgerRotationStore abre (ou cria) o banco em dir. Com dir vazio o banco fica em memória.
func OpenBadgerRotationStore(dir string, opts ...StoreOption) (*BadgerRotationStore, error) {
	bopts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		bopts = bopts.WithInMemory(true)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger %q: %w", dir, err)
	}
	s := NewBadgerRotationStore(db, opts...)
	s.owned = true
	return s, nil
}

func (s *BadgerRotationStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

func (s *BadgerRotationStore) CurrentIndex(ctx context.Context) (domain.Index, error) {
	var idx int64
	err := s.update(ctx, func(txn *badger.Txn) error {
		v, _, found, err := getInt(txn, s.ks.index())
		if err != nil {
			return err
		}
		if !found {
			idx = 0
			return txn.Set([]byte(s.ks.index()), formatInt64(0))
		}
		idx = v
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("get %s: %w", s.ks.index(), err)
	}
	return domain.Index(idx), nil
}

func (s *BadgerRotationStore) Incr(ctx context.Context, safe domain.Index) (int64, error) {
	key := s.ks.usage(safe)
	var n int64
	err := s.update(ctx, func(txn *badger.Txn) error {
		v, expiresAt, _, err := getInt(txn, key)
		if err != nil {
			return err
		}
		n = v + 1
		// como no INCR do Redis, o TTL existente é preservado
		return setInt(txn, key, n, expiresAt)
	})
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", key, err)
	}
	return n, nil
}

func (s *BadgerRotationStore) Rotate(ctx context.Context, from domain.Index, poolSize int) (bool, error) {
	rotated := false
	err := s.update(ctx, func(txn *badger.Txn) error {
		rotated = false

		raw, _, _, err := getInt(txn, s.ks.index())
		if err != nil {
			return err
		}
		if !domain.ResolvesTo(domain.Index(raw), from, poolSize) {
			return nil
		}
		if err := txn.Set([]byte(s.ks.index()), formatInt64(raw+1)); err != nil {
			return err
		}

		if s.counterTTL > 0 {
			n, _, found, err := getInt(txn, s.ks.usage(from))
			if err != nil {
				return err
			}
			// EXPIRE em chave inexistente não faz nada
			if found {
				if err := setInt(txn, s.ks.usage(from), n, uint64(time.Now().Add(s.counterTTL).Unix())); err != nil {
					return err
				}
			}
		}
		rotated = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("rotate from %d: %w", from, err)
	}
	return rotated, nil
}

func (s *BadgerRotationStore) Usage(_ context.Context, poolSize int) ([]int64, error) {
	out := make([]int64, max(poolSize, 0))
	err := s.db.View(func(txn *badger.Txn) error {
		for i := range out {
			n, _, _, err := getInt(txn, s.ks.usage(domain.Index(i)))
			if err != nil {
				return err
			}
			out[i] = n
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read usage: %w", err)
	}
	return out, nil
}

func (s *BadgerRotationStore) Reset(ctx context.Context, poolSize int) error {
	err := s.update(ctx, func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(s.ks.index())); err != nil {
			return err
		}
		for i := 0; i < poolSize; i++ {
			if err := txn.Delete([]byte(s.ks.usage(domain.Index(i)))); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("reset rotation state: %w", err)
	}
	return nil
}

func (s *BadgerRotationStore) Ping(context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger is closed")
	}
	return nil
}

// update repete a transação em caso de conflito (outra goroutine escreveu as mesmas chaves).
func (s *BadgerRotationStore) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 0; i < maxTxnRetries; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return ErrTooMuchContention
}

// getInt lê um inteiro decimal. Chave ausente ou expirada vale 0 com found=false.
func getInt(txn *badger.Txn, key string) (v int64, expiresAt uint64, found bool, err error) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, err
	}
	err = item.Value(func(val []byte) error {
		v, err = strconv.ParseInt(string(val), 10, 64)
		return err
	})
	if err != nil {
		return 0, 0, false, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, item.ExpiresAt(), true, nil
}

func setInt(txn *badger.Txn, key string, v int64, expiresAt uint64) error {
	e := badger.NewEntry([]byte(key), formatInt64(v))
	if expiresAt > 0 {
		e.ExpiresAt = expiresAt
	}
	return txn.SetEntry(e)
}

func formatInt64(v int64) []byte { return []byte(strconv.FormatInt(v, 10)) }
