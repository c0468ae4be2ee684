package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"auth-admission/middleware/ratelimit"
	"auth-admission/middleware/ratelimit/application"
	"auth-admission/middleware/ratelimit/domain"
	"auth-admission/middleware/ratelimit/infra"

	"github.com/go-chi/chi/v5"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

func main() {
	// Exemplo: injetando o middleware diretamente no seu webserver (sem proxy),
	// com contador em memória (só development).
	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	store := infra.NewMemoryCounter()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sched := cron.New()
	if _, err := sched.AddFunc("@every 1m", store.Cleanup); err != nil {
		logger.Fatal("cron error", zap.Error(err))
	}
	sched.Start()

	rl := ratelimit.New(ratelimit.Options{
		Engine: application.Engine{
			Enabled:     true,
			Environment: domain.EnvDevelopment,
			Policies:    application.MustPolicyTable(application.DefaultPolicies()),
			Health:      application.HealthGate{Checker: store},
			Counter:     store,
		},
		Logger:              logger,
		AddRateLimitHeaders: true,
	})

	r := chi.NewRouter()
	// a camada de auth vem antes: o limiter só lê o id já validado
	r.Use(bearerUser)
	r.With(rl.Scope("login")).Post("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	r.With(rl.Scope("refresh")).Post("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		user, _ := ratelimit.UserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("refreshed " + user + "\n"))
	})

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		<-sched.Stop().Done()
	}()

	logger.Info("example server listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
}

// bearerUser é um autenticador de brinquedo: "Bearer <id>" vira o usuário.
func bearerUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
			r = r.WithContext(ratelimit.WithUser(r.Context(), strings.TrimSpace(id)))
		}
		next.ServeHTTP(w, r)
	})
}
