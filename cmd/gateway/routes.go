package main

import (
	"context"
	"net/http"
	"time"

	"auth-admission/middleware/ratelimit"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// protectedRoute liga um endpoint de auth a um scope de cota. Todos os
// métodos do path passam pela admissão; o upstream responde 405 se for o caso.
type protectedRoute struct {
	path  string
	scope string
}

var protectedRoutes = []protectedRoute{
	{"/auth/login", "login"},
	{"/auth/refresh", "refresh"},
	{"/auth/authorize-url", "authorize"},
}

// routePattern usa o padrão do chi como rota da chave; cai no path cru fora do chi.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// newRouter monta o gateway: rotas de auth com admissão, demais rotas só proxy.
// metrics pode ser nil (METRICS_ENABLED=false).
func newRouter(rl *ratelimit.Limiter, upstream http.Handler, metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if err := rl.Healthy(ctx); err != nil {
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	for _, pr := range protectedRoutes {
		r.With(rl.Scope(pr.scope)).Handle(pr.path, upstream)
	}
	r.NotFound(upstream.ServeHTTP)
	r.MethodNotAllowed(upstream.ServeHTTP)
	return r
}
