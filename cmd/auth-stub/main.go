package main

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// auth-stub imita os endpoints de auth da plataforma de BI. Serve de upstream
// do gateway para smoke test de rollout (RATE_ENABLED=false e depois true).
func main() {
	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           newStubRouter(logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("auth stub listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
}

func newStubRouter(logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Post("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		logger.Info("login", zap.String("remote", r.RemoteAddr), zap.String("xff", r.Header.Get("X-Forwarded-For")))
		writeJSON(w, map[string]any{
			"access_token":  uuid.NewString(),
			"refresh_token": uuid.NewString(),
			"expires_in":    900,
		})
	})
	r.Post("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		logger.Info("refresh", zap.String("remote", r.RemoteAddr))
		writeJSON(w, map[string]any{
			"access_token": uuid.NewString(),
			"expires_in":   900,
		})
	})
	r.Get("/auth/authorize-url", func(w http.ResponseWriter, r *http.Request) {
		state := uuid.NewString()
		logger.Info("authorize-url", zap.String("state", state))
		writeJSON(w, map[string]any{
			"url":   "https://idp.example/authorize?state=" + state,
			"state": state,
		})
	})
	return r
}

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}
