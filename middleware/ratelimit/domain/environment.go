package domain

import (
	"fmt"
	"strings"
)

// Environment é a designação de deploy do processo. É resolvida uma única vez
// na inicialização e faz parte de toda chave, isolando staging de production
// mesmo quando compartilham o mesmo Redis.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Environments está em ordem decrescente de permissividade.
var Environments = []Environment{EnvDevelopment, EnvStaging, EnvProduction}

// ParseEnvironment aceita os nomes canônicos e os apelidos usados pelas plataformas
// (ex.: VERCEL_ENV=preview).
func ParseEnvironment(s string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "development", "dev", "local":
		return EnvDevelopment, nil
	case "staging", "stage", "preview", "qa":
		return EnvStaging, nil
	case "production", "prod":
		return EnvProduction, nil
	default:
		return "", fmt.Errorf("%w: unknown environment %q", ErrInvalidConfig, s)
	}
}
