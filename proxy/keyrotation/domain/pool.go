package domain

import (
	"errors"
	"strings"
)

var ErrEmptyPool = errors.New("api key pool is empty")

// Index é o ponteiro global de rotação.
//
// O valor persistido pode crescer sem limite (INCR); use Pool.Resolve para obter
// a posição real dentro do pool.
type Index int64

// Pool é a lista ordenada de chaves de API disponíveis para rotação.
type Pool struct {
	keys []string
}

// ParsePool lê uma lista separada por vírgulas (ex: API_KEYS_POOL).
// Entradas vazias são descartadas e espaços são removidos.
func ParsePool(raw string) (Pool, error) {
	var keys []string
	for _, part := range strings.Split(raw, ",") {
		if k := strings.TrimSpace(part); k != "" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return Pool{}, ErrEmptyPool
	}
	return Pool{keys: keys}, nil
}

// NewPool cria um pool a partir de chaves já separadas.
func NewPool(keys ...string) (Pool, error) {
	return ParsePool(strings.Join(keys, ","))
}

func (p Pool) Size() int { return len(p.keys) }

// Resolve aplica o módulo sobre o ponteiro bruto e devolve o índice seguro e a chave ativa.
// O índice retornado está sempre em [0, Size()).
func (p Pool) Resolve(idx Index) (Index, string) {
	n := Index(len(p.keys))
	if n == 0 {
		return 0, ""
	}
	safe := ((idx % n) + n) % n
	return safe, p.keys[safe]
}

// Masked devolve a chave na posição i sem expor o segredo (para logs e CLI).
func (p Pool) Masked(i int) string {
	if i < 0 || i >= len(p.keys) {
		return ""
	}
	k := p.keys[i]
	if len(k) <= 8 {
		return "****"
	}
	return k[:4] + "..." + k[len(k)-4:]
}
