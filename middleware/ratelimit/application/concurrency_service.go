package application

import (
	"context"
	"time"

	"auth-admission/middleware/ratelimit/domain"
)

const DefaultAcquireTimeout = 250 * time.Millisecond

// ConcurrencyService é o bulkhead das idas ao backing store: limita quantas
// avaliações por processo podem estar esperando o Redis ao mesmo tempo.
// Sem vaga dentro do prazo a decisão é RejectUnavailable (fail-closed).
type ConcurrencyService struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
}

// Acquire tenta adquirir uma vaga.
//   - Sem Pool, o bulkhead está desligado e sempre libera.
//   - A espera nunca é indefinida: AcquireTimeout <= 0 usa DefaultAcquireTimeout.
//
// Retorna (release, ok). Se ok=false, nenhuma vaga foi adquirida.
func (s ConcurrencyService) Acquire(ctx context.Context) (func(), bool) {
	if s.Pool == nil {
		return func() {}, true
	}

	timeout := s.AcquireTimeout
	if timeout <= 0 {
		timeout = DefaultAcquireTimeout
	}

	acqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.Pool.Acquire(acqCtx)
}
