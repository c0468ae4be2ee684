package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"auth-admission/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// incrementScript é o contador de janela fixa: INCR e, só quando a chave
// ainda não tem TTL (acabou de ser criada, ou sobrou sem expiração), EXPIRE.
// Incrementos seguintes não renovam a janela.
//
// KEYS[1]: chave do contador
// ARGV[1]: janela em segundos
var incrementScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if redis.call('TTL', KEYS[1]) < 0 then
    redis.call('EXPIRE', KEYS[1], ARGV[1])
end
return count
`)

// RedisCounter implementa domain.CounterStore sobre um Redis compartilhado
// por todas as instâncias. O client (pool de conexões) é aberto uma vez no start.
type RedisCounter struct {
	rdb    redis.UniversalClient
	prefix string
}

type RedisCounterOption func(*RedisCounter)

// WithCounterPrefix muda o prefixo das chaves armazenadas (padrão "ratelimit").
func WithCounterPrefix(prefix string) RedisCounterOption {
	return func(c *RedisCounter) { c.prefix = strings.Trim(prefix, ":") }
}

func NewRedisCounter(rdb redis.UniversalClient, opts ...RedisCounterOption) *RedisCounter {
	c := &RedisCounter{rdb: rdb, prefix: "ratelimit"}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StorageKey é a chave efetivamente gravada no Redis.
func (c *RedisCounter) StorageKey(key domain.Key) string {
	if c.prefix == "" {
		return string(key)
	}
	return c.prefix + ":" + string(key)
}

// Increment implementa domain.Counter com um único EVALSHA (cai para EVAL em NOSCRIPT).
func (c *RedisCounter) Increment(ctx context.Context, key domain.Key, window time.Duration) (int64, error) {
	secs := int64(window / time.Second)
	if secs < 1 {
		secs = 1
	}

	n, err := incrementScript.Run(ctx, c.rdb, []string{c.StorageKey(key)}, secs).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis increment %s: %w", key, err)
	}
	return n, nil
}

// Ping implementa domain.HealthChecker.
func (c *RedisCounter) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
