package application

import (
	"context"
	"testing"
	"time"
)

// slotPool é um semáforo mínimo para exercitar o bulkhead sem depender de infra.
type slotPool struct {
	slots    chan struct{}
	acquires int
}

func newSlotPool(n int) *slotPool { return &slotPool{slots: make(chan struct{}, n)} }

func (p *slotPool) Acquire(ctx context.Context) (func(), bool) {
	p.acquires++
	select {
	case p.slots <- struct{}{}:
		return func() { <-p.slots }, true
	case <-ctx.Done():
		return nil, false
	}
}

func TestConcurrencyService_DisabledWithoutPool(t *testing.T) {
	release, ok := ConcurrencyService{}.Acquire(context.Background())
	if !ok || release == nil {
		t.Fatalf("expected a free pass when the bulkhead is off")
	}
	release()
}

func TestConcurrencyService_SaturatedPoolRejectsAfterTimeout(t *testing.T) {
	pool := newSlotPool(1)
	svc := ConcurrencyService{Pool: pool, AcquireTimeout: 20 * time.Millisecond}

	release, ok := svc.Acquire(context.Background())
	if !ok {
		t.Fatalf("expected first slot")
	}

	start := time.Now()
	if _, ok := svc.Acquire(context.Background()); ok {
		t.Fatalf("expected saturated pool to reject")
	}
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond || elapsed > time.Second {
		t.Fatalf("expected rejection near the acquire timeout, took %s", elapsed)
	}

	release()
	release2, ok := svc.Acquire(context.Background())
	if !ok {
		t.Fatalf("expected slot after release")
	}
	release2()
	if pool.acquires != 3 {
		t.Fatalf("expected 3 acquire attempts, got %d", pool.acquires)
	}
}

func TestConcurrencyService_ZeroTimeoutUsesDefault(t *testing.T) {
	pool := newSlotPool(1)
	svc := ConcurrencyService{Pool: pool}
	release, _ := svc.Acquire(context.Background())
	defer release()

	start := time.Now()
	if _, ok := svc.Acquire(context.Background()); ok {
		t.Fatalf("expected ok=false")
	}
	if elapsed := time.Since(start); elapsed < DefaultAcquireTimeout/2 || elapsed > 2*time.Second {
		t.Fatalf("expected wait bounded by the default acquire timeout, took %s", elapsed)
	}
}

func TestConcurrencyService_CancelledCallerGivesUpImmediately(t *testing.T) {
	pool := newSlotPool(1)
	svc := ConcurrencyService{Pool: pool, AcquireTimeout: time.Minute}
	release, _ := svc.Acquire(context.Background())
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if _, ok := svc.Acquire(ctx); ok {
		t.Fatalf("expected cancelled caller to be rejected")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("expected immediate return, took %s", elapsed)
	}
}
