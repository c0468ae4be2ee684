package application

import (
	"context"
	"fmt"
	"time"

	"auth-admission/middleware/ratelimit/domain"
)

const DefaultHealthTimeout = 1 * time.Second

// HealthGate roda a sonda de liveness antes de qualquer incremento.
// nil = saudável; qualquer erro (inclusive timeout) envolve domain.ErrStoreUnavailable.
type HealthGate struct {
	Checker domain.HealthChecker
	Timeout time.Duration
}

func (g HealthGate) Check(ctx context.Context) error {
	if g.Checker == nil {
		return fmt.Errorf("%w: no health checker configured", domain.ErrStoreUnavailable)
	}
	timeout := g.Timeout
	if timeout <= 0 {
		timeout = DefaultHealthTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := g.Checker.Ping(ctx); err != nil {
		return fmt.Errorf("%w: health probe: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}
