package infra

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"textaipro-gateway/proxy/keyrotation/domain"
)

const (
	keyCurrentIndex = "current_key_index"
	keyUsagePrefix  = "usage:key_index_"

	DefaultCounterTTL = time.Hour

	maxTxnRetries = 16
)

var ErrTooMuchContention = errors.New("rotation store: too much contention")

// keyspace monta os nomes de chave compartilhados pelos backends.
// Com prefixo vazio os nomes são os mesmos do proxy serverless original
// (current_key_index, usage:key_index_<n>), então os dois podem dividir o mesmo Redis.
type keyspace struct {
	prefix string
}

func newKeyspace(prefix string) keyspace {
	prefix = strings.TrimSpace(prefix)
	if prefix != "" && !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return keyspace{prefix: prefix}
}

func (k keyspace) index() string { return k.prefix + keyCurrentIndex }

func (k keyspace) usage(i domain.Index) string {
	return k.prefix + keyUsagePrefix + strconv.FormatInt(int64(i), 10)
}

// storeConfig é comum aos três backends de RotationStore.
type storeConfig struct {
	ks keyspace
	// ttl aplicado ao contador da chave que deixou de ser a ativa.
	counterTTL time.Duration
}

type StoreOption func(*storeConfig)

func WithKeyPrefix(prefix string) StoreOption {
	return func(c *storeConfig) { c.ks = newKeyspace(prefix) }
}

// WithCounterTTL: 0 desliga a expiração dos contadores antigos.
func WithCounterTTL(d time.Duration) StoreOption {
	return func(c *storeConfig) { c.counterTTL = d }
}

func newStoreConfig(opts []StoreOption) storeConfig {
	c := storeConfig{counterTTL: DefaultCounterTTL}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
