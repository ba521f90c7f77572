// Package infra contém implementações concretas para os contratos definidos no pacote domain.
//
// Exemplos:
//   - RedisRotationStore: estado compartilhado entre réplicas (go-redis)
//   - BadgerRotationStore: estado persistente em disco para um único nó (badger)
//   - MemoryRotationStore: estado em memória para testes e desenvolvimento
//   - GenAIGenerator: chamadas ao Gemini via google.golang.org/genai
//   - RedisUsageStats / MemoryUsageStats: estatísticas de uso por chave e ação
package infra
