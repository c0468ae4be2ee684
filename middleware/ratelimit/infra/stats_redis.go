package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"auth-admission/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// RedisStatsStore grava contadores de decisão em hashes:
//
//	<prefix>:total                  admit / reject_quota / reject_unavailable
//	<prefix>:minute:<yyyymmddhhmm>  idem, por minuto (com TTL)
//	<prefix>:scope                  <env>:<scope>:<outcome>
//	<prefix>:route                  <METHOD route>:<outcome>
//	<prefix>:key:<key>              opcional (cuidado com cardinalidade)
//
// Durante uma queda do Redis as gravações falham junto; o middleware trata como best-effort.
type RedisStatsStore struct {
	rdb redis.UniversalClient

	prefix string
	// ttl aplica apenas em chaves de série temporal / por key.
	// total é cumulativo e não expira.
	ttl time.Duration

	bucket string // "minute" (padrão) ou "none"

	trackKeys bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

func NewRedisStatsStore(rdb redis.UniversalClient, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "ratelimit:stats",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	outcome := ev.Outcome.String()

	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		s.bump(ctx, pipe, s.prefix+":total", outcome, false)

		if s.bucket == "minute" {
			s.bump(ctx, pipe, s.prefix+":minute:"+at.UTC().Format("200601021504"), outcome, true)
		}
		if ev.Scope != "" {
			s.bump(ctx, pipe, s.prefix+":scope", fmt.Sprintf("%s:%s:%s", ev.Environment, ev.Scope, outcome), false)
		}
		if route := strings.TrimSpace(ev.Method + " " + ev.Route); route != "" {
			s.bump(ctx, pipe, s.prefix+":route", route+":"+outcome, false)
		}
		if k := strings.TrimSpace(string(ev.Key)); s.trackKeys && k != "" {
			s.bump(ctx, pipe, s.prefix+":key:"+k, outcome, true)
		}
		return nil
	})
	return err
}

// bump enfileira um HINCRBY; séries temporais e por chave ganham TTL.
func (s *RedisStatsStore) bump(ctx context.Context, pipe redis.Pipeliner, key, field string, expiring bool) {
	pipe.HIncrBy(ctx, key, field, 1)
	if expiring && s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
}
