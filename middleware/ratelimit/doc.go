// Package ratelimit fornece middlewares HTTP (net/http) de rate limit por cliente
// e de limite de concorrência, colocados na frente de /api/gemini.
//
// Eles protegem a cota das chaves do pool: um cliente abusivo é barrado aqui,
// antes de consumir requisições no provedor e forçar rotações.
//
// Fluxo:
//
//  1. Extrai a chave do cliente (header/XFF/RemoteAddr)
//  2. Consulta o token bucket da chave (golang.org/x/time/rate)
//  3. Se bloqueado, responde 429 com Retry-After (rate limit) ou 503 (concorrência)
//  4. Se permitido, chama o próximo handler
//
// As respostas de erro usam o mesmo corpo JSON {"error": ...} do gateway.
package ratelimit
