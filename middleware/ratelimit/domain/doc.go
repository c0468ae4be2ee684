// Package domain define contratos e tipos de domínio para o controle de admissão
// dos endpoints de autenticação (login, refresh, authorize-url).
//
// Este pacote não depende de net/http nem de implementações concretas.
// A intenção é permitir testes de unidade puros e desacoplar regras de negócio
// de detalhes de infraestrutura (Redis, Prometheus).
package domain
