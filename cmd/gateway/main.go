package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"auth-admission/middleware/ratelimit"
	"auth-admission/middleware/ratelimit/application"
	"auth-admission/middleware/ratelimit/domain"
	"auth-admission/middleware/ratelimit/infra"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	// .env é opcional; variáveis do processo têm precedência
	_ = godotenv.Load()

	logger, err := newLogger(getenvDefault("LOG_LEVEL", "info"), getenvDefault("LOG_FORMAT", "json"))
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := readConfig()
	if err != nil {
		logger.Fatal("config error", zap.Error(err))
	}

	target, err := url.Parse(cfg.upstreamURL)
	if err != nil {
		logger.Fatal("invalid UPSTREAM_URL", zap.Error(err))
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Warn("proxy error", zap.String("path", r.URL.Path), zap.Error(err))
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sched := cron.New()

	var store domain.CounterStore
	switch cfg.counterBackend {
	case "memory":
		mem := infra.NewMemoryCounter()
		if _, err := sched.AddFunc("@every 1m", mem.Cleanup); err != nil {
			logger.Fatal("cron error", zap.Error(err))
		}
		store = mem
	default:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.redisAddr,
			Password: cfg.redisPassword,
			DB:       cfg.redisDB,
		})
		defer func() { _ = rdb.Close() }()
		store = infra.NewRedisCounter(rdb, infra.WithCounterPrefix(cfg.redisKeyPrefix))

		// Redis fora no start não derruba o processo: as rotas protegidas
		// respondem 503 até ele voltar.
		pingCtx, pingCancel := context.WithTimeout(ctx, cfg.admission.HealthTimeout)
		if err := store.Ping(pingCtx); err != nil {
			logger.Warn("redis counter ping failed at startup", zap.String("addr", cfg.redisAddr), zap.Error(err))
		}
		pingCancel()
	}

	reg := prometheus.NewRegistry()
	var sinks infra.MultiStats
	var metrics http.Handler
	if cfg.metricsEnabled {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		sinks = append(sinks, infra.NewPrometheusStats(reg))
		metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
	}
	if cfg.rateStatsEnabled {
		statsRdb := redis.NewClient(&redis.Options{
			Addr:     cfg.rateStatsRedisAddr,
			Password: cfg.rateStatsRedisPassword,
			DB:       cfg.rateStatsRedisDB,
		})
		defer func() { _ = statsRdb.Close() }()

		pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
		_, err := statsRdb.Ping(pingCtx).Result()
		pingCancel()
		if err != nil {
			logger.Fatal("redis stats ping error", zap.Error(err))
		}

		sinks = append(sinks, infra.NewRedisStatsStore(
			statsRdb,
			infra.WithStatsPrefix(cfg.rateStatsPrefix),
			infra.WithStatsTTL(cfg.rateStatsTTL),
			infra.WithStatsBucket(cfg.rateStatsBucket),
			infra.WithStatsTrackKeys(cfg.rateStatsTrackKeys),
		))
	}
	var stats domain.StatsStore
	if len(sinks) > 0 {
		stats = sinks
	}

	engine := application.Engine{
		Enabled:      cfg.admission.Enabled,
		Environment:  cfg.admission.Environment,
		Trusted:      cfg.admission.TrustedProxies,
		Policies:     cfg.admission.Policies,
		Health:       application.HealthGate{Checker: store, Timeout: cfg.admission.HealthTimeout},
		Counter:      store,
		StoreTimeout: cfg.admission.StoreTimeout,
		Slots: application.ConcurrencyService{
			Pool:           infra.NewChanPool(cfg.storeMaxInflight),
			AcquireTimeout: cfg.storeAcquireTimeout,
		},
	}

	rl := ratelimit.New(ratelimit.Options{
		Engine:              engine,
		Stats:               stats,
		Logger:              logger,
		TrustedUserHeader:   cfg.admission.TrustedUserHeader,
		RouteFn:             routePattern,
		AddRateLimitHeaders: cfg.addHeaders,
	})

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           newRouter(rl, proxy, metrics),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	sched.Start()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		<-sched.Stop().Done()
	}()

	logger.Info("gateway listening",
		zap.String("addr", cfg.listenAddr),
		zap.String("upstream", target.String()))
	logger.Info("admission",
		zap.Bool("enabled", cfg.admission.Enabled),
		zap.String("environment", string(cfg.admission.Environment)),
		zap.Int("trusted_proxies", cfg.admission.TrustedProxies.Len()),
		zap.String("counter_backend", cfg.counterBackend),
		zap.Duration("health_timeout", cfg.admission.HealthTimeout),
		zap.Duration("store_timeout", cfg.admission.StoreTimeout),
		zap.Int("store_max_inflight", cfg.storeMaxInflight))
	for _, kind := range domain.IdentityKinds {
		if p, ok := cfg.admission.Policies.Select(cfg.admission.Environment, kind); ok {
			logger.Info("policy", zap.String("kind", string(kind)), zap.Int64("limit", p.Limit), zap.Duration("window", p.Window))
		}
	}
	logger.Info("rate-stats",
		zap.Bool("enabled", cfg.rateStatsEnabled),
		zap.String("redis_addr", cfg.rateStatsRedisAddr),
		zap.String("bucket", cfg.rateStatsBucket),
		zap.Duration("ttl", cfg.rateStatsTTL),
		zap.Bool("track_keys", cfg.rateStatsTrackKeys),
		zap.Bool("metrics", cfg.metricsEnabled))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}

// newLogger monta o zap de produção com nível e formato vindos do ambiente.
func newLogger(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	switch format {
	case "console":
		zc.Encoding = "console"
		zc.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	case "json":
	default:
		return nil, errors.New("LOG_FORMAT must be json or console")
	}
	zc.OutputPaths = []string{"stdout"}
	if host, err := os.Hostname(); err == nil {
		zc.InitialFields = map[string]any{"host": host}
	}
	return zc.Build()
}
