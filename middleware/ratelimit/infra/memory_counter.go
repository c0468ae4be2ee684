package infra

import (
	"context"
	"sync"
	"time"

	"auth-admission/middleware/ratelimit/domain"
)

// MemoryCounter é um contador de janela fixa em memória, com a mesma semântica
// do RedisCounter (TTL definido só na criação).
//
// O estado é local ao processo: serve para desenvolvimento e testes, não
// aplica cota global entre réplicas. Por isso é recusado em production.
type MemoryCounter struct {
	mu      sync.Mutex
	entries map[domain.Key]*counterEntry
	now     func() time.Time
	down    bool
}

type counterEntry struct {
	count     int64
	expiresAt time.Time
}

type MemoryCounterOption func(*MemoryCounter)

// WithClock troca o relógio (testes).
func WithClock(now func() time.Time) MemoryCounterOption {
	return func(c *MemoryCounter) { c.now = now }
}

func NewMemoryCounter(opts ...MemoryCounterOption) *MemoryCounter {
	c := &MemoryCounter{
		entries: make(map[domain.Key]*counterEntry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Increment implementa domain.Counter.
func (c *MemoryCounter) Increment(ctx context.Context, key domain.Key, window time.Duration) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.down {
		return 0, domain.ErrStoreUnavailable
	}

	ent, ok := c.entries[key]
	if !ok || !now.Before(ent.expiresAt) {
		ent = &counterEntry{expiresAt: now.Add(window)}
		c.entries[key] = ent
	}
	ent.count++
	return ent.count, nil
}

// Ping implementa domain.HealthChecker.
func (c *MemoryCounter) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down {
		return domain.ErrStoreUnavailable
	}
	return nil
}

// SetAvailable simula queda/retorno do store (testes e smoke de fail-closed).
func (c *MemoryCounter) SetAvailable(ok bool) {
	c.mu.Lock()
	c.down = !ok
	c.mu.Unlock()
}

// Cleanup remove janelas expiradas. Agendado pelo binário (cron).
func (c *MemoryCounter) Cleanup() {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for k, ent := range c.entries {
		if !now.Before(ent.expiresAt) {
			delete(c.entries, k)
		}
	}
}

func (c *MemoryCounter) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
