package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"auth-admission/middleware/ratelimit/domain"
)

const DefaultStoreTimeout = 2 * time.Second

// Request é o que o framework entrega por request. Nada aqui é HTTP.
type Request struct {
	// DirectAddr é o endereço da conexão direta (sem porta).
	DirectAddr string
	// ForwardedFor é o valor cru do cabeçalho de encaminhamento (pode ser vazio).
	ForwardedFor string
	// UserID vem da camada de autenticação já validada; vazio = anônimo.
	UserID string
	Scope  string
	Route  string
}

// Engine orquestra resolver, política, health gate e contador.
//
// Ele não guarda estado entre requests e não sabe nada sobre HTTP (headers/status),
// apenas retorna uma decisão. Toda a configuração é imutável depois do start.
type Engine struct {
	// Enabled é o kill switch de rollout: false => sempre Admit, sem tocar no store.
	Enabled     bool
	Environment domain.Environment
	Trusted     domain.TrustedProxies
	Policies    PolicyTable
	Health      HealthGate
	Counter     domain.Counter
	// StoreTimeout limita o incremento.
	StoreTimeout time.Duration
	// Slots é o bulkhead opcional das idas ao store (zero value = desligado).
	Slots ConcurrencyService
}

// Identify aplica a regra: autenticado => User, senão => IP resolvido.
func (e Engine) Identify(req Request) domain.ClientIdentity {
	if id := strings.TrimSpace(req.UserID); id != "" {
		return domain.UserIdentity(id)
	}
	return domain.IPIdentity(ResolveClientAddress(req.DirectAddr, req.ForwardedFor, e.Trusted))
}

func (e Engine) Evaluate(ctx context.Context, req Request) domain.Decision {
	id := e.Identify(req)
	if !e.Enabled {
		return domain.Decision{Outcome: domain.OutcomeAdmit, Identity: id}
	}

	policy, ok := e.Policies.Select(e.Environment, id.Kind)
	if !ok {
		return unavailable(id, domain.Policy{}, "", fmt.Errorf("%w: no policy for %s/%s", domain.ErrInvalidConfig, e.Environment, id.Kind))
	}

	// Daqui em diante só os prazos próprios (bulkhead, probe, incremento) valem:
	// um cliente que desconectou não pode aparecer como queda do store.
	storeCtx := context.WithoutCancel(ctx)

	release, ok := e.Slots.Acquire(storeCtx)
	if !ok {
		return unavailable(id, policy, "", fmt.Errorf("%w: no store slot available", domain.ErrStoreUnavailable))
	}
	defer release()

	if err := e.Health.Check(storeCtx); err != nil {
		return unavailable(id, policy, "", err)
	}

	key := BuildKey(e.Environment, req.Scope, id, req.Route)
	count, err := e.increment(storeCtx, key, policy.Window)
	if err != nil {
		return unavailable(id, policy, key, err)
	}

	dec := domain.Decision{
		Outcome:  domain.OutcomeAdmit,
		Identity: id,
		Policy:   policy,
		Key:      key,
		Count:    count,
	}
	if count > policy.Limit {
		dec.Outcome = domain.OutcomeRejectQuota
		dec.RetryAfter = policy.Window
	}
	return dec
}

// increment roda só com o timeout próprio: um incremento que já foi enviado
// ao store não pode ser desfeito.
func (e Engine) increment(ctx context.Context, key domain.Key, window time.Duration) (int64, error) {
	if e.Counter == nil {
		return 0, fmt.Errorf("%w: no counter configured", domain.ErrStoreUnavailable)
	}
	timeout := e.StoreTimeout
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}

	incCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	count, err := e.Counter.Increment(incCtx, key, window)
	if err != nil {
		return 0, fmt.Errorf("%w: increment: %v", domain.ErrStoreUnavailable, err)
	}
	return count, nil
}

func unavailable(id domain.ClientIdentity, p domain.Policy, key domain.Key, err error) domain.Decision {
	return domain.Decision{
		Outcome:  domain.OutcomeRejectUnavailable,
		Identity: id,
		Policy:   p,
		Key:      key,
		Err:      err,
	}
}
