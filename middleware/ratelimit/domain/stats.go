package domain

import (
	"context"
	"time"
)

// StatsEvent representa uma decisão do controle de admissão.
//
// Ele é propositalmente "agnóstico de HTTP": Method/Route são strings genéricas.
//
// Observação: cuidado com cardinalidade (ex.: salvar Key sem controle pode
// explodir o número de séries/chaves em uma base como Redis/Prometheus).
type StatsEvent struct {
	Key          Key
	Outcome      Outcome
	Environment  Environment
	Scope        string
	IdentityKind IdentityKind

	Method string
	Route  string

	RequestID string
	At        time.Time
}

// StatsStore é a estratégia de persistência para estatísticas das decisões.
//
// Implementações podem armazenar em Redis, Prometheus, memória, etc.
// O middleware trata erro como best-effort (não derruba request).
// É assim que RejectQuota e RejectUnavailable ficam distinguíveis para alertas.
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
