package infra

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"auth-admission/middleware/ratelimit/domain"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemoryCounter_FixedWindowIsNotRenewed(t *testing.T) {
	clock := &manualClock{now: time.Unix(1_700_000_000, 0)}
	c := NewMemoryCounter(WithClock(clock.Now))
	ctx := context.Background()

	if n, _ := c.Increment(ctx, "k", time.Minute); n != 1 {
		t.Fatalf("expected 1, got %d", n)
	}
	clock.Advance(59 * time.Second)
	if n, _ := c.Increment(ctx, "k", time.Minute); n != 2 {
		t.Fatalf("expected 2, got %d", n)
	}
	// a janela começou no primeiro incremento; o segundo não a estendeu
	clock.Advance(time.Second)
	if n, _ := c.Increment(ctx, "k", time.Minute); n != 1 {
		t.Fatalf("expected new window with count 1, got %d", n)
	}
}

func TestMemoryCounter_KeysAreIndependent(t *testing.T) {
	c := NewMemoryCounter()
	ctx := context.Background()

	c.Increment(ctx, "a", time.Minute)
	c.Increment(ctx, "a", time.Minute)
	if n, _ := c.Increment(ctx, "b", time.Minute); n != 1 {
		t.Fatalf("expected 1 for key b, got %d", n)
	}
}

func TestMemoryCounter_CleanupRemovesExpiredWindows(t *testing.T) {
	clock := &manualClock{now: time.Unix(1_700_000_000, 0)}
	c := NewMemoryCounter(WithClock(clock.Now))
	ctx := context.Background()

	c.Increment(ctx, "short", time.Second)
	c.Increment(ctx, "long", time.Hour)
	clock.Advance(2 * time.Second)

	c.Cleanup()

	if c.Len() != 1 {
		t.Fatalf("expected only the long window to remain, got %d entries", c.Len())
	}
}

func TestMemoryCounter_Unavailable(t *testing.T) {
	c := NewMemoryCounter()
	c.SetAvailable(false)

	if err := c.Ping(context.Background()); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable from ping, got %v", err)
	}
	if _, err := c.Increment(context.Background(), "k", time.Minute); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable from increment, got %v", err)
	}

	c.SetAvailable(true)
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("expected healthy, got %v", err)
	}
}

func TestMemoryCounter_ConcurrentIncrements(t *testing.T) {
	c := NewMemoryCounter()

	const n = 100
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, _ = c.Increment(context.Background(), "k", time.Minute)
		}()
	}
	wg.Wait()

	if got, _ := c.Increment(context.Background(), "k", time.Minute); got != n+1 {
		t.Fatalf("expected %d, got %d", n+1, got)
	}
}
