package application

import (
	"strings"

	"auth-admission/middleware/ratelimit/domain"
)

var keyEscaper = strings.NewReplacer("%", "%25", ":", "%3A")

// BuildKey compõe {environment}:{scope}:{kind}:{identity}:{route}.
//
// Cada componente livre tem ':' e '%' escapados, então IPv6 ou rotas com ':'
// não colidem com outra tupla. O formato é o único contrato de "wire" com o
// Redis compartilhado e precisa ficar estável entre deploys.
func BuildKey(env domain.Environment, scope string, id domain.ClientIdentity, route string) domain.Key {
	var b strings.Builder
	b.Grow(len(env) + len(scope) + len(id.Value) + len(route) + 16)
	b.WriteString(keyEscaper.Replace(string(env)))
	b.WriteByte(':')
	b.WriteString(keyEscaper.Replace(scope))
	b.WriteByte(':')
	b.WriteString(keyEscaper.Replace(string(id.Kind)))
	b.WriteByte(':')
	b.WriteString(keyEscaper.Replace(id.Value))
	b.WriteByte(':')
	b.WriteString(keyEscaper.Replace(route))
	return domain.Key(b.String())
}
