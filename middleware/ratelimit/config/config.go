// Package config monta a configuração imutável do controle de admissão:
// environment, faixas de proxy confiáveis, tabela de políticas e kill switch.
//
// Tudo é resolvido uma vez no start. Qualquer erro aqui envolve
// domain.ErrInvalidConfig e deve derrubar o processo; nada é "defaultado"
// silenciosamente.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"auth-admission/middleware/ratelimit/application"
	"auth-admission/middleware/ratelimit/domain"

	"gopkg.in/yaml.v3"
)

// LookupFunc tem a assinatura de os.LookupEnv (injetável em testes).
type LookupFunc func(key string) (string, bool)

// environmentVars é a ordem de detecção: override explícito primeiro,
// depois indicadores das plataformas de hospedagem.
var environmentVars = []string{"RATE_ENV", "APP_ENV", "RAILWAY_ENVIRONMENT_NAME", "VERCEL_ENV"}

// Settings é passada por valor para o Engine; não há globais mutáveis.
type Settings struct {
	Enabled        bool
	Environment    domain.Environment
	TrustedProxies domain.TrustedProxies
	Policies       application.PolicyTable
	// TrustedUserHeader é o cabeçalho com o id do usuário já autenticado,
	// aceito apenas quando a conexão direta vem de um proxy confiável.
	TrustedUserHeader string
	HealthTimeout     time.Duration
	StoreTimeout      time.Duration
}

// FromEnv lê as variáveis do processo.
func FromEnv() (Settings, error) { return Load(os.LookupEnv) }

func Load(lookup LookupFunc) (Settings, error) {
	s := Settings{}

	enabled, err := boolVar(lookup, "RATE_ENABLED", true)
	if err != nil {
		return Settings{}, err
	}
	s.Enabled = enabled

	if s.Environment, err = DetectEnvironment(lookup); err != nil {
		return Settings{}, err
	}

	if s.TrustedProxies, err = trustedProxies(lookup); err != nil {
		return Settings{}, err
	}

	path, _ := lookup("RATE_POLICY_FILE")
	if strings.TrimSpace(path) == "" {
		s.Policies, err = application.NewPolicyTable(application.DefaultPolicies())
	} else {
		s.Policies, err = LoadPolicyFile(path)
	}
	if err != nil {
		return Settings{}, err
	}
	if !s.Policies.Has(s.Environment) {
		return Settings{}, fmt.Errorf("%w: no policy for environment %s", domain.ErrInvalidConfig, s.Environment)
	}

	s.TrustedUserHeader, _ = lookup("TRUSTED_USER_HEADER")
	s.TrustedUserHeader = strings.TrimSpace(s.TrustedUserHeader)
	if s.TrustedUserHeader != "" && s.TrustedProxies.Len() == 0 {
		return Settings{}, fmt.Errorf("%w: TRUSTED_USER_HEADER requires TRUSTED_PROXIES", domain.ErrInvalidConfig)
	}

	if s.HealthTimeout, err = durationVar(lookup, "HEALTH_TIMEOUT", application.DefaultHealthTimeout); err != nil {
		return Settings{}, err
	}
	if s.StoreTimeout, err = durationVar(lookup, "STORE_TIMEOUT", application.DefaultStoreTimeout); err != nil {
		return Settings{}, err
	}

	return s, nil
}

// trustedProxies exige TRUSTED_PROXIES explícito: sem ele, atrás de um proxy
// todo cliente anônimo cairia no IP do proxy. "none" declara deploy exposto
// diretamente (nenhum cabeçalho de encaminhamento é aceito).
func trustedProxies(lookup LookupFunc) (domain.TrustedProxies, error) {
	raw, _ := lookup("TRUSTED_PROXIES")
	v := strings.TrimSpace(raw)
	switch {
	case v == "":
		return domain.TrustedProxies{}, fmt.Errorf("%w: TRUSTED_PROXIES is required (use \"none\" when not behind a proxy)", domain.ErrInvalidConfig)
	case strings.EqualFold(v, "none"):
		return domain.TrustedProxies{}, nil
	}
	return domain.ParseTrustedProxies(strings.Split(v, ","))
}

// DetectEnvironment percorre RATE_ENV, APP_ENV, RAILWAY_ENVIRONMENT_NAME e
// VERCEL_ENV. Sem nenhum indicador assume production, a tabela mais estrita.
func DetectEnvironment(lookup LookupFunc) (domain.Environment, error) {
	for _, name := range environmentVars {
		v, ok := lookup(name)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		env, err := domain.ParseEnvironment(v)
		if err != nil {
			return "", fmt.Errorf("%s: %w", name, err)
		}
		return env, nil
	}
	return domain.EnvProduction, nil
}

type policyEntry struct {
	Limit         int64  `yaml:"limit"`
	Window        string `yaml:"window"`
	WindowSeconds int64  `yaml:"window_seconds"`
}

// LoadPolicyFile lê a tabela de um YAML:
//
//	production:
//	  ip:   {limit: 10, window: 60s}
//	  user: {limit: 50, window: 60s}
func LoadPolicyFile(path string) (application.PolicyTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return application.PolicyTable{}, fmt.Errorf("%w: policy file: %v", domain.ErrInvalidConfig, err)
	}
	return ParsePolicies(data)
}

func ParsePolicies(data []byte) (application.PolicyTable, error) {
	var doc map[string]map[string]policyEntry
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return application.PolicyTable{}, fmt.Errorf("%w: policy file: %v", domain.ErrInvalidConfig, err)
	}

	set := application.PolicySet{}
	for envName, kinds := range doc {
		env, err := domain.ParseEnvironment(envName)
		if err != nil {
			return application.PolicyTable{}, err
		}
		if _, dup := set[env]; dup {
			return application.PolicyTable{}, fmt.Errorf("%w: environment %s defined twice", domain.ErrInvalidConfig, env)
		}
		set[env] = map[domain.IdentityKind]domain.Policy{}
		for kindName, entry := range kinds {
			kind := domain.IdentityKind(strings.ToLower(strings.TrimSpace(kindName)))
			if kind != domain.IdentityIP && kind != domain.IdentityUser {
				return application.PolicyTable{}, fmt.Errorf("%w: %s: unknown identity kind %q", domain.ErrInvalidConfig, env, kindName)
			}
			if _, dup := set[env][kind]; dup {
				return application.PolicyTable{}, fmt.Errorf("%w: %s/%s defined twice", domain.ErrInvalidConfig, env, kind)
			}
			window, err := entry.window()
			if err != nil {
				return application.PolicyTable{}, fmt.Errorf("%w: %s/%s: %v", domain.ErrInvalidConfig, env, kind, err)
			}
			set[env][kind] = domain.Policy{Limit: entry.Limit, Window: window}
		}
	}
	return application.NewPolicyTable(set)
}

func (e policyEntry) window() (time.Duration, error) {
	switch {
	case e.Window != "" && e.WindowSeconds != 0:
		return 0, fmt.Errorf("set either window or window_seconds, not both")
	case e.Window != "":
		return time.ParseDuration(e.Window)
	case e.WindowSeconds != 0:
		return time.Duration(e.WindowSeconds) * time.Second, nil
	default:
		return 0, fmt.Errorf("missing window")
	}
}

func boolVar(lookup LookupFunc, name string, def bool) (bool, error) {
	v, ok := lookup(name)
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, fmt.Errorf("%w: %s: %v", domain.ErrInvalidConfig, name, err)
	}
	return b, nil
}

func durationVar(lookup LookupFunc, name string, def time.Duration) (time.Duration, error) {
	v, ok := lookup(name)
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive duration, got %q", domain.ErrInvalidConfig, name, v)
	}
	return d, nil
}
