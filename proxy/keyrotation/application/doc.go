// Package application contém os casos de uso da rotação de chaves.
//
// Ele depende apenas do pacote domain e não conhece net/http nem Redis.
// Ex.: Rotator.Process(ctx, text, action) executa o fluxo completo
// (ponteiro -> chave -> provedor -> contador -> rotação) e devolve um domain.Result.
package application
