package domain

import "context"

// RotationStore guarda o estado compartilhado da rotação: o ponteiro global
// e um contador de uso por índice.
//
// Implementações devem ser seguras para várias réplicas do gateway usando o mesmo backend.
type RotationStore interface {
	// CurrentIndex devolve o ponteiro atual. Na primeira execução (ponteiro ausente)
	// inicializa com 0 usando set-if-absent.
	CurrentIndex(ctx context.Context) (Index, error)

	// Incr incrementa atomicamente o contador de uso do índice e devolve o novo valor.
	Incr(ctx context.Context, safe Index) (int64, error)

	// Rotate avança o ponteiro em 1 e aplica TTL ao contador do índice antigo, na mesma transação.
	// Se o ponteiro já não resolve para `from` (outra réplica rotacionou), não faz nada e devolve false.
	Rotate(ctx context.Context, from Index, poolSize int) (bool, error)

	// Usage devolve o contador de cada índice em [0, poolSize). Contadores ausentes valem 0.
	Usage(ctx context.Context, poolSize int) ([]int64, error)

	// Reset apaga ponteiro e contadores.
	Reset(ctx context.Context, poolSize int) error
}

// ResolvesTo informa se o ponteiro bruto cai no índice seguro `from`.
// Usado pelas implementações de Rotate.
func ResolvesTo(raw Index, from Index, poolSize int) bool {
	if poolSize <= 0 {
		return raw == from
	}
	n := Index(poolSize)
	return ((raw%n)+n)%n == from
}
