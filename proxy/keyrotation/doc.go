// Package keyrotation fornece o adapter HTTP (net/http) do proxy com rotação de chaves.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos (pool, ações, RotationStore, Generator)
//   - application: caso de uso Rotator.Process, sem net/http
//   - infra: Redis, badger, memória, SDK genai
//   - keyrotation (este pacote): handler HTTP + CORS + request id + tradução de erros para status/JSON
//
// Fluxo de POST /api/gemini:
//
//  1. Valida método e corpo {text, action}
//  2. Chama a camada application para processar (rotação + retry ficam lá)
//  3. Traduz o resultado em {result, keyIndex, requestCount} ou {error}
package keyrotation
