package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"auth-admission/middleware/ratelimit/application"
	"auth-admission/middleware/ratelimit/config"
	"auth-admission/middleware/ratelimit/domain"
)

type gatewayConfig struct {
	listenAddr  string
	upstreamURL string
	addHeaders  bool

	// admission é o núcleo (kill switch, environment, proxies, políticas, timeouts).
	admission config.Settings

	counterBackend string
	redisAddr      string
	redisPassword  string
	redisDB        int
	redisKeyPrefix string

	storeMaxInflight    int
	storeAcquireTimeout time.Duration

	rateStatsEnabled       bool
	rateStatsRedisAddr     string
	rateStatsRedisPassword string
	rateStatsRedisDB       int
	rateStatsPrefix        string
	rateStatsTTL           time.Duration
	rateStatsBucket        string
	rateStatsTrackKeys     bool

	metricsEnabled bool
}

func readConfig() (gatewayConfig, error) {
	var env envReader
	cfg := gatewayConfig{}

	settings, err := config.FromEnv()
	if err != nil {
		return gatewayConfig{}, err
	}
	cfg.admission = settings

	cfg.listenAddr = getenvDefault("LISTEN_ADDR", ":8080")
	cfg.upstreamURL = os.Getenv("UPSTREAM_URL")
	cfg.addHeaders = env.boolDefault("ADD_RATELIMIT_HEADERS", false)

	cfg.counterBackend = strings.ToLower(getenvDefault("COUNTER_BACKEND", "redis"))
	cfg.redisAddr = getenvDefault("REDIS_ADDR", "localhost:6379")
	cfg.redisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.redisDB = env.intDefault("REDIS_DB", 0)
	cfg.redisKeyPrefix = getenvDefault("REDIS_KEY_PREFIX", "ratelimit")

	cfg.storeMaxInflight = env.intDefault("STORE_MAX_INFLIGHT", 0)
	cfg.storeAcquireTimeout = env.durationDefault("STORE_ACQUIRE_TIMEOUT", application.DefaultAcquireTimeout)

	cfg.rateStatsEnabled = env.boolDefault("RATE_STATS_ENABLED", false)
	cfg.rateStatsRedisAddr = getenvDefault("RATE_STATS_REDIS_ADDR", cfg.redisAddr)
	cfg.rateStatsRedisPassword = getenvDefault("RATE_STATS_REDIS_PASSWORD", cfg.redisPassword)
	cfg.rateStatsRedisDB = env.intDefault("RATE_STATS_REDIS_DB", cfg.redisDB)
	cfg.rateStatsPrefix = getenvDefault("RATE_STATS_PREFIX", "ratelimit:stats")
	cfg.rateStatsTTL = env.durationDefault("RATE_STATS_TTL", 24*time.Hour)
	cfg.rateStatsBucket = getenvDefault("RATE_STATS_BUCKET", "minute")
	cfg.rateStatsTrackKeys = env.boolDefault("RATE_STATS_TRACK_KEYS", false)

	cfg.metricsEnabled = env.boolDefault("METRICS_ENABLED", true)

	if err := env.err(); err != nil {
		return gatewayConfig{}, err
	}

	if cfg.upstreamURL == "" {
		return gatewayConfig{}, fmt.Errorf("%w: UPSTREAM_URL is required", domain.ErrInvalidConfig)
	}
	switch cfg.counterBackend {
	case "redis":
		if strings.TrimSpace(cfg.redisAddr) == "" {
			return gatewayConfig{}, fmt.Errorf("%w: REDIS_ADDR is required for COUNTER_BACKEND=redis", domain.ErrInvalidConfig)
		}
	case "memory":
		// contador local não é cota global entre réplicas
		if cfg.admission.Environment == domain.EnvProduction {
			return gatewayConfig{}, fmt.Errorf("%w: COUNTER_BACKEND=memory is not allowed in production", domain.ErrInvalidConfig)
		}
	default:
		return gatewayConfig{}, fmt.Errorf("%w: COUNTER_BACKEND must be redis or memory, got %q", domain.ErrInvalidConfig, cfg.counterBackend)
	}
	if cfg.storeMaxInflight < 0 {
		return gatewayConfig{}, fmt.Errorf("%w: STORE_MAX_INFLIGHT must be >= 0", domain.ErrInvalidConfig)
	}
	if cfg.rateStatsEnabled && strings.TrimSpace(cfg.rateStatsRedisAddr) == "" {
		return gatewayConfig{}, fmt.Errorf("%w: RATE_STATS_REDIS_ADDR is required when RATE_STATS_ENABLED=true", domain.ErrInvalidConfig)
	}
	return cfg, nil
}

func getenvDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

// envReader acumula erros de parse: valor malformado derruba o start em vez
// de cair no default.
type envReader struct {
	errs []error
}

func (e *envReader) err() error {
	if len(e.errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", domain.ErrInvalidConfig, errors.Join(e.errs...))
}

func (e *envReader) intDefault(k string, def int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %v", k, err))
		return def
	}
	return i
}

func (e *envReader) boolDefault(k string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %v", k, err))
		return def
	}
	return b
}

func (e *envReader) durationDefault(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %v", k, err))
		return def
	}
	return d
}
