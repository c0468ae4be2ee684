package infra

import (
	"context"
	"errors"

	"auth-admission/middleware/ratelimit/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusStats expõe as decisões como contador com labels de baixa
// cardinalidade (a chave nunca vira label).
type PrometheusStats struct {
	decisions *prometheus.CounterVec
}

func NewPrometheusStats(reg prometheus.Registerer) *PrometheusStats {
	factory := promauto.With(reg)
	return &PrometheusStats{
		decisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "authadmission",
				Subsystem: "ratelimit",
				Name:      "decisions_total",
				Help:      "Admission decisions by environment, scope, identity kind and outcome",
			},
			[]string{"environment", "scope", "identity_kind", "outcome"},
		),
	}
}

func (p *PrometheusStats) Record(_ context.Context, ev domain.StatsEvent) error {
	p.decisions.WithLabelValues(
		string(ev.Environment),
		ev.Scope,
		string(ev.IdentityKind),
		ev.Outcome.String(),
	).Inc()
	return nil
}

// Decisions expõe o vetor para inspeção em testes.
func (p *PrometheusStats) Decisions() *prometheus.CounterVec { return p.decisions }

// MultiStats repassa o evento para vários stores e junta os erros.
type MultiStats []domain.StatsStore

func (m MultiStats) Record(ctx context.Context, ev domain.StatsEvent) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
