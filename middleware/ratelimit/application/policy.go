package application

import (
	"fmt"
	"time"

	"auth-admission/middleware/ratelimit/domain"
)

// PolicySet é a forma "crua" da tabela, como vem da configuração.
type PolicySet map[domain.Environment]map[domain.IdentityKind]domain.Policy

type policyKey struct {
	env  domain.Environment
	kind domain.IdentityKind
}

// PolicyTable é a tabela (environment, identity kind) -> Policy.
// Imutável depois de construída; Select é só um lookup.
type PolicyTable struct {
	entries map[policyKey]domain.Policy
}

// DefaultPolicies são os valores embutidos quando nenhum arquivo é informado.
func DefaultPolicies() PolicySet {
	return PolicySet{
		domain.EnvDevelopment: {
			domain.IdentityIP:   {Limit: 1000, Window: time.Minute},
			domain.IdentityUser: {Limit: 2000, Window: time.Minute},
		},
		domain.EnvStaging: {
			domain.IdentityIP:   {Limit: 100, Window: time.Minute},
			domain.IdentityUser: {Limit: 200, Window: time.Minute},
		},
		domain.EnvProduction: {
			domain.IdentityIP:   {Limit: 10, Window: time.Minute},
			domain.IdentityUser: {Limit: 50, Window: time.Minute},
		},
	}
}

// NewPolicyTable valida e congela a tabela.
//
// Regras:
//   - toda combinação (environment, kind) precisa existir
//   - limit > 0 e janela em segundos inteiros >= 1s
//   - production: limit(user) > limit(ip) (NAT corporativo)
//   - por kind: development >= staging >= production
func NewPolicyTable(set PolicySet) (PolicyTable, error) {
	t := PolicyTable{entries: make(map[policyKey]domain.Policy, len(domain.Environments)*len(domain.IdentityKinds))}

	for _, env := range domain.Environments {
		for _, kind := range domain.IdentityKinds {
			p, ok := set[env][kind]
			if !ok {
				return PolicyTable{}, fmt.Errorf("%w: missing policy for %s/%s", domain.ErrInvalidConfig, env, kind)
			}
			if p.Limit <= 0 {
				return PolicyTable{}, fmt.Errorf("%w: %s/%s: limit must be > 0", domain.ErrInvalidConfig, env, kind)
			}
			if p.Window < time.Second || p.Window%time.Second != 0 {
				return PolicyTable{}, fmt.Errorf("%w: %s/%s: window must be a whole number of seconds >= 1s, got %s", domain.ErrInvalidConfig, env, kind, p.Window)
			}
			t.entries[policyKey{env, kind}] = p
		}
	}

	prodIP := t.entries[policyKey{domain.EnvProduction, domain.IdentityIP}]
	prodUser := t.entries[policyKey{domain.EnvProduction, domain.IdentityUser}]
	if prodUser.Limit <= prodIP.Limit {
		return PolicyTable{}, fmt.Errorf("%w: production user limit (%d) must be greater than ip limit (%d)",
			domain.ErrInvalidConfig, prodUser.Limit, prodIP.Limit)
	}

	for _, kind := range domain.IdentityKinds {
		for i := 1; i < len(domain.Environments); i++ {
			looser := t.entries[policyKey{domain.Environments[i-1], kind}]
			stricter := t.entries[policyKey{domain.Environments[i], kind}]
			if looser.Limit < stricter.Limit {
				return PolicyTable{}, fmt.Errorf("%w: %s/%s limit (%d) is stricter than %s/%s (%d)",
					domain.ErrInvalidConfig,
					domain.Environments[i-1], kind, looser.Limit,
					domain.Environments[i], kind, stricter.Limit)
			}
		}
	}

	return t, nil
}

// MustPolicyTable é para testes e defaults.
func MustPolicyTable(set PolicySet) PolicyTable {
	t, err := NewPolicyTable(set)
	if err != nil {
		panic(err)
	}
	return t
}

// Select devolve a política de (env, kind). ok=false só acontece com uma
// tabela zero-value ou um environment fora da lista conhecida.
func (t PolicyTable) Select(env domain.Environment, kind domain.IdentityKind) (domain.Policy, bool) {
	p, ok := t.entries[policyKey{env, kind}]
	return p, ok
}

// Has informa se a tabela cobre todos os kinds do environment.
func (t PolicyTable) Has(env domain.Environment) bool {
	for _, kind := range domain.IdentityKinds {
		if _, ok := t.entries[policyKey{env, kind}]; !ok {
			return false
		}
	}
	return true
}
