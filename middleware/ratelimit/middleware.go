package ratelimit

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"auth-admission/middleware/ratelimit/application"
	"auth-admission/middleware/ratelimit/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// UserFunc devolve o id do usuário já autenticado pela camada de auth.
// ok=false => request anônimo (cota por IP).
type UserFunc func(r *http.Request) (id string, ok bool)

// RouteFunc devolve o identificador de rota usado na chave.
type RouteFunc func(r *http.Request) string

type Options struct {
	Engine application.Engine
	Stats  domain.StatsStore
	Logger *zap.Logger

	// ForwardedHeader padrão: X-Forwarded-For.
	ForwardedHeader string
	// TrustedUserHeader só é lido quando a conexão direta vem de proxy confiável.
	TrustedUserHeader string
	UserFn            UserFunc
	// RouteFn padrão: r.URL.Path.
	RouteFn RouteFunc

	RejectStatus        int
	UnavailableStatus   int
	AddRateLimitHeaders bool
}

// Limiter é o ponto de enforcement no pipeline HTTP. Um Limiter é criado no
// start e cada rota protegida recebe seu middleware via Scope.
type Limiter struct {
	opts Options
	log  *zap.Logger

	// durante uma queda do store todo request cai aqui; um aviso por segundo basta
	outageLog rate.Sometimes
}

const statsTimeout = 500 * time.Millisecond

func New(opts Options) *Limiter {
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.UnavailableStatus == 0 {
		opts.UnavailableStatus = http.StatusServiceUnavailable
	}
	if opts.ForwardedHeader == "" {
		opts.ForwardedHeader = "X-Forwarded-For"
	}
	if opts.RouteFn == nil {
		opts.RouteFn = func(r *http.Request) string { return r.URL.Path }
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Limiter{
		opts:      opts,
		log:       log.Named("ratelimit"),
		outageLog: rate.Sometimes{Interval: time.Second},
	}
}

// Middleware é o atalho New(opts).Scope(scope).
func Middleware(opts Options, scope string) func(next http.Handler) http.Handler {
	return New(opts).Scope(scope)
}

// Scope devolve o middleware de uma rota protegida; scope entra na chave
// (ex.: "login", "refresh", "authorize").
func (l *Limiter) Scope(scope string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req := l.Request(r, scope)
			dec := l.opts.Engine.Evaluate(r.Context(), req)

			reqID := r.Header.Get("X-Request-ID")
			if reqID == "" {
				reqID = uuid.NewString()
			}
			l.observe(r, req, dec, reqID)

			switch dec.Outcome {
			case domain.OutcomeAdmit:
				if l.opts.AddRateLimitHeaders && dec.Policy.Limit > 0 {
					w.Header().Set("X-RateLimit-Limit", formatInt64(dec.Policy.Limit))
					w.Header().Set("X-RateLimit-Remaining", formatInt64(dec.Remaining()))
				}
				next.ServeHTTP(w, r)

			case domain.OutcomeRejectQuota:
				if l.opts.AddRateLimitHeaders {
					w.Header().Set("X-RateLimit-Limit", formatInt64(dec.Policy.Limit))
					w.Header().Set("X-RateLimit-Remaining", "0")
				}
				w.Header().Set("Retry-After", formatInt(int(dec.RetryAfter/time.Second)))
				http.Error(w, http.StatusText(l.opts.RejectStatus), l.opts.RejectStatus)

			default:
				// duração da queda é desconhecida: sem Retry-After
				http.Error(w, http.StatusText(l.opts.UnavailableStatus), l.opts.UnavailableStatus)
			}
		})
	}
}

// Request traduz o http.Request para a entrada do Engine.
func (l *Limiter) Request(r *http.Request, scope string) application.Request {
	direct := DirectAddr(r)
	return application.Request{
		DirectAddr:   direct,
		ForwardedFor: r.Header.Get(l.opts.ForwardedHeader),
		UserID:       l.userID(r, direct),
		Scope:        scope,
		Route:        l.opts.RouteFn(r),
	}
}

// Healthy reaproveita o health gate do Engine (usado pelo /healthz do gateway).
func (l *Limiter) Healthy(ctx context.Context) error {
	return l.opts.Engine.Health.Check(ctx)
}

func (l *Limiter) userID(r *http.Request, direct string) string {
	if l.opts.UserFn != nil {
		if id, ok := l.opts.UserFn(r); ok {
			return id
		}
		return ""
	}
	if id, ok := UserFromContext(r.Context()); ok {
		return id
	}
	if l.opts.TrustedUserHeader == "" {
		return ""
	}
	addr, err := netip.ParseAddr(direct)
	if err != nil || !l.opts.Engine.Trusted.Contains(addr) {
		return ""
	}
	return strings.TrimSpace(r.Header.Get(l.opts.TrustedUserHeader))
}

func (l *Limiter) observe(r *http.Request, req application.Request, dec domain.Decision, reqID string) {
	fields := []zap.Field{
		zap.String("environment", string(l.opts.Engine.Environment)),
		zap.String("scope", req.Scope),
		zap.String("route", req.Route),
		zap.String("identity_kind", string(dec.Identity.Kind)),
		zap.String("request_id", reqID),
	}

	switch dec.Outcome {
	case domain.OutcomeRejectQuota:
		l.log.Info("rate limit exceeded",
			append(fields, zap.Int64("count", dec.Count), zap.Int64("limit", dec.Policy.Limit))...)
	case domain.OutcomeRejectUnavailable:
		l.outageLog.Do(func() {
			l.log.Warn("rate limit store unavailable, rejecting", append(fields, zap.Error(dec.Err))...)
		})
	}

	if l.opts.Stats == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), statsTimeout)
	defer cancel()
	err := l.opts.Stats.Record(ctx, domain.StatsEvent{
		Key:          dec.Key,
		Outcome:      dec.Outcome,
		Environment:  l.opts.Engine.Environment,
		Scope:        req.Scope,
		IdentityKind: dec.Identity.Kind,
		Method:       r.Method,
		Route:        req.Route,
		RequestID:    reqID,
		At:           time.Now(),
	})
	if err != nil {
		l.log.Debug("stats record failed", zap.Error(err))
	}
}

// DirectAddr é o host de RemoteAddr (sem porta).
func DirectAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return "unknown"
}
