// Package domain define contratos e tipos de domínio para a rotação de chaves de API.
//
// Este pacote não depende de net/http, Redis ou do SDK do provedor.
// Store, gerador e estatísticas são interfaces implementadas pela camada infra.
package domain
