package infra

import (
	"context"
	"sync"
	"testing"
	"time"

	"textaipro-gateway/proxy/keyrotation/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testStore interface {
	domain.RotationStore
	Ping(ctx context.Context) error
}

func newMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

// backends roda o mesmo contrato contra os três RotationStore.
func backends(t *testing.T) map[string]func(t *testing.T) testStore {
	return map[string]func(t *testing.T) testStore{
		"memory": func(t *testing.T) testStore { return NewMemoryRotationStore() },
		"redis": func(t *testing.T) testStore {
			_, rdb := newMiniRedis(t)
			return NewRedisRotationStore(rdb)
		},
		"badger": func(t *testing.T) testStore {
			s, err := OpenBadgerRotationStore("")
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func TestRotationStore_Contract(t *testing.T) {
	for name, mk := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := mk(t)

			require.NoError(t, s.Ping(ctx))

			// primeira execução: ponteiro inicializa em 0
			idx, err := s.CurrentIndex(ctx)
			require.NoError(t, err)
			assert.Equal(t, domain.Index(0), idx)

			n, err := s.Incr(ctx, 0)
			require.NoError(t, err)
			assert.Equal(t, int64(1), n)
			n, err = s.Incr(ctx, 0)
			require.NoError(t, err)
			assert.Equal(t, int64(2), n)

			rotated, err := s.Rotate(ctx, 0, 3)
			require.NoError(t, err)
			assert.True(t, rotated)

			idx, err = s.CurrentIndex(ctx)
			require.NoError(t, err)
			assert.Equal(t, domain.Index(1), idx)

			// outra réplica já rotacionou a partir de 0: no-op
			rotated, err = s.Rotate(ctx, 0, 3)
			require.NoError(t, err)
			assert.False(t, rotated)

			_, err = s.Incr(ctx, 1)
			require.NoError(t, err)

			usage, err := s.Usage(ctx, 3)
			require.NoError(t, err)
			assert.Equal(t, []int64{2, 1, 0}, usage)

			require.NoError(t, s.Reset(ctx, 3))
			usage, err = s.Usage(ctx, 3)
			require.NoError(t, err)
			assert.Equal(t, []int64{0, 0, 0}, usage)
			idx, err = s.CurrentIndex(ctx)
			require.NoError(t, err)
			assert.Equal(t, domain.Index(0), idx)
		})
	}
}

func TestRotationStore_PointerWrapsThroughPool(t *testing.T) {
	for name, mk := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := mk(t)
			pool, _ := domain.NewPool("a", "b")

			seen := []domain.Index{}
			for i := 0; i < 5; i++ {
				raw, err := s.CurrentIndex(ctx)
				require.NoError(t, err)
				safe, _ := pool.Resolve(raw)
				seen = append(seen, safe)

				rotated, err := s.Rotate(ctx, safe, pool.Size())
				require.NoError(t, err)
				require.True(t, rotated)
			}
			assert.Equal(t, []domain.Index{0, 1, 0, 1, 0}, seen)
		})
	}
}

func TestRotationStore_ConcurrentRotateAdvancesOnce(t *testing.T) {
	for name, mk := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := mk(t)
			_, err := s.CurrentIndex(ctx)
			require.NoError(t, err)

			var (
				wg      sync.WaitGroup
				mu      sync.Mutex
				rotated int
			)
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, err := s.Rotate(ctx, 0, 4)
					if !assert.NoError(t, err) {
						return
					}
					if ok {
						mu.Lock()
						rotated++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, 1, rotated)
			idx, err := s.CurrentIndex(ctx)
			require.NoError(t, err)
			assert.Equal(t, domain.Index(1), idx)
		})
	}
}

func TestRotationStore_ConcurrentIncrIsAtomic(t *testing.T) {
	for name, mk := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := mk(t)

			var wg sync.WaitGroup
			for i := 0; i < 40; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := s.Incr(ctx, 2)
					assert.NoError(t, err)
				}()
			}
			wg.Wait()

			usage, err := s.Usage(ctx, 3)
			require.NoError(t, err)
			assert.Equal(t, int64(40), usage[2])
		})
	}
}

func TestRedisRotationStore_UsesServerlessKeyNames(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newMiniRedis(t)
	s := NewRedisRotationStore(rdb, WithCounterTTL(time.Hour))

	_, err := s.CurrentIndex(ctx)
	require.NoError(t, err)
	_, err = s.Incr(ctx, 0)
	require.NoError(t, err)

	v, err := mr.Get("current_key_index")
	require.NoError(t, err)
	assert.Equal(t, "0", v)
	v, err = mr.Get("usage:key_index_0")
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	// contador ativo não expira
	assert.Zero(t, mr.TTL("usage:key_index_0"))

	_, err = s.Rotate(ctx, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, mr.TTL("usage:key_index_0"))

	mr.FastForward(time.Hour + time.Second)
	assert.False(t, mr.Exists("usage:key_index_0"))
	usage, err := s.Usage(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 0}, usage)
}

func TestRedisRotationStore_KeepsExistingPointer(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newMiniRedis(t)
	require.NoError(t, mr.Set("current_key_index", "5"))

	s := NewRedisRotationStore(rdb)
	idx, err := s.CurrentIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Index(5), idx)
}

func TestRedisRotationStore_KeyPrefix(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newMiniRedis(t)
	s := NewRedisRotationStore(rdb, WithKeyPrefix("tenant-a"))

	_, err := s.CurrentIndex(ctx)
	require.NoError(t, err)
	_, err = s.Incr(ctx, 1)
	require.NoError(t, err)

	assert.True(t, mr.Exists("tenant-a:current_key_index"))
	assert.True(t, mr.Exists("tenant-a:usage:key_index_1"))
	assert.False(t, mr.Exists("current_key_index"))
}

func TestMemoryRotationStore_CounterExpiresAfterRotation(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	s := NewMemoryRotationStore(WithCounterTTL(time.Minute))
	s.now = func() time.Time { return now }

	_, _ = s.Incr(ctx, 0)
	_, _ = s.Incr(ctx, 0)
	_, err := s.Rotate(ctx, 0, 2)
	require.NoError(t, err)

	usage, _ := s.Usage(ctx, 2)
	assert.Equal(t, int64(2), usage[0])

	now = now.Add(time.Minute)
	usage, _ = s.Usage(ctx, 2)
	assert.Equal(t, int64(0), usage[0])

	n, _ := s.Incr(ctx, 0)
	assert.Equal(t, int64(1), n)
}

func TestBadgerRotationStore_RotationSetsTTLAndIncrKeepsIt(t *testing.T) {
	ctx := context.Background()
	s, err := OpenBadgerRotationStore("", WithCounterTTL(time.Hour))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Incr(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, badgerExpiresAt(t, s, "usage:key_index_0"))

	_, err = s.Rotate(ctx, 0, 2)
	require.NoError(t, err)
	exp := badgerExpiresAt(t, s, "usage:key_index_0")
	assert.NotZero(t, exp)

	_, err = s.Incr(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, exp, badgerExpiresAt(t, s, "usage:key_index_0"))
}

func TestBadgerRotationStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := OpenBadgerRotationStore(dir)
	require.NoError(t, err)
	_, err = s.CurrentIndex(ctx)
	require.NoError(t, err)
	_, err = s.Rotate(ctx, 0, 3)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = OpenBadgerRotationStore(dir)
	require.NoError(t, err)
	defer s.Close()
	idx, err := s.CurrentIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Index(1), idx)
}
