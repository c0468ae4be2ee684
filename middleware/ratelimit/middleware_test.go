package ratelimit

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"auth-admission/middleware/ratelimit/application"
	"auth-admission/middleware/ratelimit/domain"
	"auth-admission/middleware/ratelimit/infra"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func testEngine(store domain.CounterStore) application.Engine {
	return application.Engine{
		Enabled:     true,
		Environment: domain.EnvProduction,
		Trusted:     domain.MustParseTrustedProxies("10.0.0.0/8"),
		Policies:    application.MustPolicyTable(application.DefaultPolicies()),
		Health:      application.HealthGate{Checker: store, Timeout: 100 * time.Millisecond},
		Counter:     store,
	}
}

func okHandler(calls *int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok")
	})
}

func loginRequest(remote string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "http://example/auth/login", nil)
	r.RemoteAddr = remote
	return r
}

func TestMiddleware_AllowsThenRejectsSameClient(t *testing.T) {
	store := infra.NewMemoryCounter()
	calls := 0
	h := Middleware(Options{Engine: testEngine(store), AddRateLimitHeaders: true}, "login")(okHandler(&calls))

	for i := 1; i <= 10; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, loginRequest("203.0.113.5:1234"))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, w.Code)
		}
		if got := w.Header().Get("X-RateLimit-Remaining"); got != formatInt(10-i) {
			t.Fatalf("request %d: expected remaining %d, got %q", i, 10-i, got)
		}
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, loginRequest("203.0.113.5:1234"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if got := strings.TrimSpace(w.Header().Get("Retry-After")); got != "60" {
		t.Fatalf("expected Retry-After=60, got %q", got)
	}
	if calls != 10 {
		t.Fatalf("expected next handler to be called 10 times, got %d", calls)
	}
}

func TestMiddleware_StoreDownReturns503WithoutRetryAfter(t *testing.T) {
	store := infra.NewMemoryCounter()
	store.SetAvailable(false)
	calls := 0
	h := Middleware(Options{Engine: testEngine(store)}, "login")(okHandler(&calls))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, loginRequest("203.0.113.5:1234"))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "" {
		t.Fatalf("expected no Retry-After on outage, got %q", got)
	}
	if calls != 0 {
		t.Fatalf("expected next handler not to be called")
	}
}

func TestMiddleware_KillSwitchBypassesEvenWhenStoreIsDown(t *testing.T) {
	store := infra.NewMemoryCounter()
	store.SetAvailable(false)
	eng := testEngine(store)
	eng.Enabled = false

	calls := 0
	h := Middleware(Options{Engine: eng}, "login")(okHandler(&calls))
	for i := 0; i < 50; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, loginRequest("203.0.113.5:1234"))
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200 with kill switch off, got %d", w.Code)
		}
	}
	if store.Len() != 0 {
		t.Fatalf("expected no counters to be created")
	}
}

func TestMiddleware_AuthenticatedUsersBehindNATAreNotLockedOut(t *testing.T) {
	store := infra.NewMemoryCounter()
	calls := 0
	h := Middleware(Options{Engine: testEngine(store)}, "refresh")(okHandler(&calls))

	for u := 0; u < 5; u++ {
		for i := 0; i < 20; i++ {
			r := loginRequest("203.0.113.5:1234")
			r = r.WithContext(WithUser(r.Context(), "user-"+formatInt(u)))
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)
			if w.Code != http.StatusOK {
				t.Fatalf("user %d request %d: expected 200, got %d", u, i+1, w.Code)
			}
		}
	}
	if calls != 100 {
		t.Fatalf("expected 100 admitted requests, got %d", calls)
	}
}

func TestMiddleware_ForwardedForOnlyFromTrustedProxy(t *testing.T) {
	store := infra.NewMemoryCounter()
	l := New(Options{Engine: testEngine(store)})

	trusted := loginRequest("10.0.0.5:443")
	trusted.Header.Set("X-Forwarded-For", "1.2.3.4, 10.0.0.5")
	if got := l.opts.Engine.Identify(l.Request(trusted, "login")); got != domain.IPIdentity("1.2.3.4") {
		t.Fatalf("expected ip:1.2.3.4, got %s", got)
	}

	untrusted := loginRequest("198.51.100.9:443")
	untrusted.Header.Set("X-Forwarded-For", "1.2.3.4, 10.0.0.5")
	if got := l.opts.Engine.Identify(l.Request(untrusted, "login")); got != domain.IPIdentity("198.51.100.9") {
		t.Fatalf("expected ip:198.51.100.9, got %s", got)
	}
}

func TestMiddleware_TrustedUserHeaderIgnoredFromUntrustedPeer(t *testing.T) {
	store := infra.NewMemoryCounter()
	l := New(Options{Engine: testEngine(store), TrustedUserHeader: "X-Authenticated-User"})

	fromProxy := loginRequest("10.0.0.5:443")
	fromProxy.Header.Set("X-Authenticated-User", "alice")
	if got := l.Request(fromProxy, "login").UserID; got != "alice" {
		t.Fatalf("expected alice from trusted proxy, got %q", got)
	}

	spoofed := loginRequest("198.51.100.9:443")
	spoofed.Header.Set("X-Authenticated-User", "alice")
	if got := l.Request(spoofed, "login").UserID; got != "" {
		t.Fatalf("expected header to be ignored from untrusted peer, got %q", got)
	}
}

func TestMiddleware_UserFnOverridesDefaults(t *testing.T) {
	store := infra.NewMemoryCounter()
	l := New(Options{
		Engine: testEngine(store),
		UserFn: func(r *http.Request) (string, bool) { return r.Header.Get("X-Test-User"), r.Header.Get("X-Test-User") != "" },
	})

	r := loginRequest("203.0.113.5:1")
	r = r.WithContext(WithUser(r.Context(), "from-context"))
	if got := l.Request(r, "login").UserID; got != "" {
		t.Fatalf("expected UserFn to win over context, got %q", got)
	}
	r.Header.Set("X-Test-User", "bob")
	if got := l.Request(r, "login").UserID; got != "bob" {
		t.Fatalf("expected bob, got %q", got)
	}
}

func TestMiddleware_ScopesAndRoutesHaveSeparateCounters(t *testing.T) {
	store := infra.NewMemoryCounter()
	l := New(Options{Engine: testEngine(store)})
	calls := 0
	login := l.Scope("login")(okHandler(&calls))
	refresh := l.Scope("refresh")(okHandler(&calls))

	for i := 0; i < 10; i++ {
		login.ServeHTTP(httptest.NewRecorder(), loginRequest("203.0.113.5:1"))
	}

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "http://example/auth/refresh", nil)
	r.RemoteAddr = "203.0.113.5:1"
	refresh.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("expected refresh scope to have its own quota, got %d", w.Code)
	}
}

func TestMiddleware_RecordsOutcomes(t *testing.T) {
	store := infra.NewMemoryCounter()
	stats := infra.NewMemoryStatsStore()
	calls := 0
	h := Middleware(Options{Engine: testEngine(store), Stats: stats}, "login")(okHandler(&calls))

	for i := 0; i < 12; i++ {
		h.ServeHTTP(httptest.NewRecorder(), loginRequest("203.0.113.5:1"))
	}
	store.SetAvailable(false)
	h.ServeHTTP(httptest.NewRecorder(), loginRequest("203.0.113.5:1"))

	total := stats.Total()
	if total.Admitted != 10 || total.RejectedQuota != 2 || total.RejectedUnavailable != 1 {
		t.Fatalf("unexpected totals %+v", total)
	}
	if got := stats.ByRoute()["POST /auth/login"]; got != total {
		t.Fatalf("expected route counters to match totals, got %+v", got)
	}
}

func TestDirectAddr_StripsPortAndFallsBack(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)

	r.RemoteAddr = "10.0.0.9:5555"
	if got := DirectAddr(r); got != "10.0.0.9" {
		t.Fatalf("expected remote host, got %q", got)
	}
	r.RemoteAddr = "[2001:db8::1]:443"
	if got := DirectAddr(r); got != "2001:db8::1" {
		t.Fatalf("expected ipv6 host, got %q", got)
	}
	r.RemoteAddr = "@"
	if got := DirectAddr(r); got != "@" {
		t.Fatalf("expected raw remote addr, got %q", got)
	}
	r.RemoteAddr = ""
	if got := DirectAddr(r); got != "unknown" {
		t.Fatalf("expected unknown, got %q", got)
	}
}

func TestUserFromContext(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	if _, ok := UserFromContext(r.Context()); ok {
		t.Fatalf("expected no user")
	}
	if _, ok := UserFromContext(WithUser(r.Context(), "")); ok {
		t.Fatalf("expected empty id to be ignored")
	}
}

func TestMiddleware_ClientDisconnectIsNotAnOutage(t *testing.T) {
	store := infra.NewMemoryCounter()
	stats := infra.NewMemoryStatsStore()
	core, logs := observer.New(zap.DebugLevel)
	calls := 0
	h := Middleware(Options{Engine: testEngine(store), Stats: stats, Logger: zap.New(core)}, "login")(okHandler(&calls))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := loginRequest("203.0.113.5:1234").WithContext(ctx)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for a cancelled request with a healthy store, got %d", w.Code)
	}
	if total := stats.Total(); total.RejectedUnavailable != 0 || total.Admitted != 1 {
		t.Fatalf("expected one admitted decision and no outage, got %+v", total)
	}
	if n := logs.FilterMessage("rate limit store unavailable, rejecting").Len(); n != 0 {
		t.Fatalf("expected no outage warning, got %d", n)
	}
	if store.Len() != 1 {
		t.Fatalf("expected the increment to land in the store, got %d entries", store.Len())
	}
}
