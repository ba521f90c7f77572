package infra

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"textaipro-gateway/proxy/keyrotation/domain"

	"github.com/redis/go-redis/v9"
)

// RedisRotationStore guarda o ponteiro e os contadores em Redis.
// Várias réplicas do gateway podem compartilhar a mesma instância.
type RedisRotationStore struct {
	rdb *redis.Client
	storeConfig
}

func NewRedisRotationStore(rdb *redis.Client, opts ...StoreOption) *RedisRotationStore {
	return &RedisRotationStore{rdb: rdb, storeConfig: newStoreConfig(opts)}
}

func (s *RedisRotationStore) CurrentIndex(ctx context.Context) (domain.Index, error) {
	v, err := s.rdb.Get(ctx, s.ks.index()).Int64()
	if errors.Is(err, redis.Nil) {
		// primeira execução: SETNX evita sobrescrever o valor de outra réplica
		if err := s.rdb.SetNX(ctx, s.ks.index(), 0, 0).Err(); err != nil {
			return 0, fmt.Errorf("init %s: %w", s.ks.index(), err)
		}
		v, err = s.rdb.Get(ctx, s.ks.index()).Int64()
	}
	if err != nil {
		return 0, fmt.Errorf("get %s: %w", s.ks.index(), err)
	}
	return domain.Index(v), nil
}

func (s *RedisRotationStore) Incr(ctx context.Context, safe domain.Index) (int64, error) {
	n, err := s.rdb.Incr(ctx, s.ks.usage(safe)).Result()
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", s.ks.usage(safe), err)
	}
	return n, nil
}

// Rotate usa WATCH no ponteiro: se outra réplica rotacionar entre a leitura e o EXEC,
// a transação falha e relemos; se o ponteiro já saiu de `from`, não fazemos nada.
func (s *RedisRotationStore) Rotate(ctx context.Context, from domain.Index, poolSize int) (bool, error) {
	idxKey := s.ks.index()
	rotated := false

	txf := func(tx *redis.Tx) error {
		rotated = false

		raw, err := tx.Get(ctx, idxKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if !domain.ResolvesTo(domain.Index(raw), from, poolSize) {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Incr(ctx, idxKey)
			if s.counterTTL > 0 {
				pipe.Expire(ctx, s.ks.usage(from), s.counterTTL)
			}
			return nil
		})
		if err == nil {
			rotated = true
		}
		return err
	}

	for i := 0; i < maxTxnRetries; i++ {
		err := s.rdb.Watch(ctx, txf, idxKey)
		if err == nil {
			return rotated, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return false, fmt.Errorf("rotate from %d: %w", from, err)
	}
	return false, ErrTooMuchContention
}

func (s *RedisRotationStore) Usage(ctx context.Context, poolSize int) ([]int64, error) {
	if poolSize <= 0 {
		return nil, nil
	}
	keys := make([]string, poolSize)
	for i := range keys {
		keys[i] = s.ks.usage(domain.Index(i))
	}

	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget usage: %w", err)
	}

	out := make([]int64, poolSize)
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(str, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", keys[i], err)
		}
		out[i] = n
	}
	return out, nil
}

func (s *RedisRotationStore) Reset(ctx context.Context, poolSize int) error {
	keys := []string{s.ks.index()}
	for i := 0; i < poolSize; i++ {
		keys = append(keys, s.ks.usage(domain.Index(i)))
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("reset rotation state: %w", err)
	}
	return nil
}

// Ping é usado pelo /healthz.
func (s *RedisRotationStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
