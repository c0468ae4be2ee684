// Package ratelimit fornece o adapter HTTP (net/http) do controle de admissão dos
// endpoints de autenticação.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (resolver, chave, política, health gate, Engine) sem net/http
//   - infra: implementações concretas (Redis, memória, Prometheus), detalhes de infraestrutura
//   - config: configuração imutável montada no start
//   - ratelimit (este pacote): middleware por rota + extração de IP/usuário + tradução para status/headers
//
// Fluxo por request:
//
//   1) Resolve o cliente (usuário autenticado ou IP atrás de proxies confiáveis)
//   2) Chama Engine.Evaluate para obter a decisão
//   3) RejectQuota => 429 com Retry-After; RejectUnavailable => 503 (fail-closed)
//   4) Admit => chama o próximo handler
//
// Cada rota declara seu scope:
//
//	rl := ratelimit.New(opts)
//	r.With(rl.Scope("login")).Post("/auth/login", h)
package ratelimit
