package domain

// Camada de domínio do controle de admissão.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"context"
	"time"
)

// Key é a chave totalmente qualificada de um contador:
// {environment}:{scope}:{identity}:{route}.
type Key string

// IdentityKind diz se a cota acompanha o IP ou o usuário autenticado.
type IdentityKind string

const (
	IdentityIP   IdentityKind = "ip"
	IdentityUser IdentityKind = "user"
)

// IdentityKinds lista os tipos na ordem usada pela tabela de políticas.
var IdentityKinds = []IdentityKind{IdentityIP, IdentityUser}

// ClientIdentity é calculada a cada request e nunca persistida.
//
// Requests autenticados resolvem para IdentityUser (Value = id do usuário);
// os demais para IdentityIP (Value = endereço resolvido).
type ClientIdentity struct {
	Kind  IdentityKind
	Value string
}

func IPIdentity(addr string) ClientIdentity {
	return ClientIdentity{Kind: IdentityIP, Value: addr}
}

func UserIdentity(id string) ClientIdentity {
	return ClientIdentity{Kind: IdentityUser, Value: id}
}

func (c ClientIdentity) String() string {
	return string(c.Kind) + ":" + c.Value
}

// Policy é a cota aplicada em janela fixa.
type Policy struct {
	Limit  int64
	Window time.Duration
}

// WindowSeconds arredonda a janela para segundos inteiros (mínimo 1),
// que é a granularidade do TTL no contador.
func (p Policy) WindowSeconds() int64 {
	s := int64(p.Window / time.Second)
	if s < 1 {
		return 1
	}
	return s
}

// Outcome é o resultado terminal de uma avaliação.
type Outcome int

const (
	OutcomeAdmit Outcome = iota
	OutcomeRejectQuota
	OutcomeRejectUnavailable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAdmit:
		return "admit"
	case OutcomeRejectQuota:
		return "reject_quota"
	case OutcomeRejectUnavailable:
		return "reject_unavailable"
	default:
		return "unknown"
	}
}

type Decision struct {
	Outcome  Outcome
	Identity ClientIdentity
	Policy   Policy
	Key      Key
	// Count é o valor do contador após o incremento (0 se não houve incremento).
	Count int64
	// RetryAfter só é preenchido em OutcomeRejectQuota e vem da janela da política.
	// A duração de uma indisponibilidade é desconhecida, então não há sugestão nesse caso.
	RetryAfter time.Duration
	// Err guarda a causa de um OutcomeRejectUnavailable (para log/métricas).
	Err error
}

// Remaining é quanto ainda cabe na janela atual.
func (d Decision) Remaining() int64 {
	if d.Count >= d.Policy.Limit {
		return 0
	}
	return d.Policy.Limit - d.Count
}

// Counter incrementa atomicamente um contador de janela fixa.
//
// O TTL é definido apenas quando o incremento cria a entrada; incrementos
// seguintes não renovam a expiração. Retorna o valor pós-incremento.
type Counter interface {
	Increment(ctx context.Context, key Key, window time.Duration) (int64, error)
}

// HealthChecker é a sonda barata de liveness do backing store (ex.: PING).
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// CounterStore é o backing store compartilhado: contador + sonda.
type CounterStore interface {
	Counter
	HealthChecker
}
