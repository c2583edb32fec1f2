package middleware_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/SxyzJsnx/ratelimit-go/internal/slidingblock"
	"github.com/SxyzJsnx/ratelimit-go/middleware"
	"github.com/SxyzJsnx/ratelimit-go/stats"
	"github.com/SxyzJsnx/ratelimit-go/types"
)

// stubLimiter returns a fixed decision and records what it was asked.
type stubLimiter struct {
	dec   types.Decision
	err   error
	calls int
	keys  []string
}

func (s *stubLimiter) Allow(_ context.Context, key string) (types.Decision, error) {
	s.calls++
	s.keys = append(s.keys, key)
	return s.dec, s.err
}

func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware_AllowedPassesThrough(t *testing.T) {
	limiter := &stubLimiter{dec: types.Allow}
	mw := middleware.NewRateLimitMiddleware(limiter, "test")

	var called bool
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/limited", nil)
	req.RemoteAddr = "10.0.0.1:4321"
	mw.Handler(okHandler(&called)).ServeHTTP(rec, req)

	if !called {
		t.Fatal("next handler not called for allowed request")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if limiter.calls != 1 {
		t.Errorf("limiter called %d times, want 1", limiter.calls)
	}
	if len(limiter.keys) != 1 || limiter.keys[0] != "10.0.0.1" {
		t.Errorf("limiter keys = %v, want [10.0.0.1]", limiter.keys)
	}
}

func TestMiddleware_DeniedWritesPayload(t *testing.T) {
	limiter := &stubLimiter{dec: types.Deny(1300 * time.Millisecond)}
	mw := middleware.NewRateLimitMiddleware(limiter, "test",
		middleware.WithStatusCode(http.StatusServiceUnavailable),
		middleware.WithMessage("slow down"),
	)

	var called bool
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/limited", nil)
	req.RemoteAddr = "10.0.0.1:4321"
	mw.Handler(okHandler(&called)).ServeHTTP(rec, req)

	if called {
		t.Fatal("next handler called for denied request")
	}
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "2" {
		t.Errorf("Retry-After = %q, want \"2\" (ceiling of 1.3s)", got)
	}
	if got := rec.Header().Get("X-RateLimit-Key"); got != "10.0.0.1" {
		t.Errorf("X-RateLimit-Key = %q, want \"10.0.0.1\"", got)
	}

	var payload struct {
		Status        int    `json:"status"`
		Message       string `json:"message"`
		RemainingTime int    `json:"remainingTime"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode denial body: %v", err)
	}
	if payload.Status != http.StatusServiceUnavailable {
		t.Errorf("payload status = %d, want 503", payload.Status)
	}
	if payload.Message != "slow down" {
		t.Errorf("payload message = %q, want \"slow down\"", payload.Message)
	}
	if payload.RemainingTime != 2 {
		t.Errorf("payload remainingTime = %d, want 2", payload.RemainingTime)
	}
}

func TestMiddleware_SkipBypassesLimiterEntirely(t *testing.T) {
	limiter := &stubLimiter{dec: types.Deny(time.Second)}
	mw := middleware.NewRateLimitMiddleware(limiter, "test",
		middleware.WithSkipFunc(func(r *http.Request) bool {
			return r.Header.Get("X-Internal") == "1"
		}),
	)

	var called bool
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/limited", nil)
	req.Header.Set("X-Internal", "1")
	mw.Handler(okHandler(&called)).ServeHTTP(rec, req)

	if !called {
		t.Fatal("next handler not called for exempt request")
	}
	if limiter.calls != 0 {
		t.Errorf("limiter called %d times for exempt request, want 0", limiter.calls)
	}
}

func TestMiddleware_BypassLeavesStateUntouched(t *testing.T) {
	// A real engine: exempt traffic must consume no window slot and leave
	// nothing behind in the store, regardless of volume.
	engine := slidingblock.NewLimiter("bypass_state", 1, time.Minute, time.Minute)
	mw := middleware.NewRateLimitMiddleware(engine, "test",
		middleware.WithSkipFunc(func(*http.Request) bool { return true }),
	)

	var called bool
	handler := mw.Handler(okHandler(&called))
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/limited", nil)
		req.RemoteAddr = "10.0.0.1:4321"
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("exempt request %d got status %d", i, rec.Code)
		}
	}

	if got := engine.Size(); got != 0 {
		t.Errorf("engine tracks %d keys after exempt-only traffic, want 0", got)
	}
}

func TestMiddleware_EmptyKeyRejected(t *testing.T) {
	limiter := &stubLimiter{dec: types.Allow}
	mw := middleware.NewRateLimitMiddleware(limiter, "test",
		middleware.WithKeyFunc(func(*http.Request) string { return "" }),
	)

	var called bool
	rec := httptest.NewRecorder()
	mw.Handler(okHandler(&called)).ServeHTTP(rec, httptest.NewRequest("GET", "/limited", nil))

	if called {
		t.Fatal("next handler called despite missing identifier")
	}
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if limiter.calls != 0 {
		t.Errorf("limiter called %d times, want 0", limiter.calls)
	}
}

func TestMiddleware_LimiterErrorDeniesConservatively(t *testing.T) {
	limiter := &stubLimiter{dec: types.Allow, err: context.DeadlineExceeded}
	mw := middleware.NewRateLimitMiddleware(limiter, "test")

	var called bool
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/limited", nil)
	req.RemoteAddr = "10.0.0.1:4321"
	mw.Handler(okHandler(&called)).ServeHTTP(rec, req)

	if called {
		t.Fatal("next handler called despite limiter error")
	}
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestMiddleware_RecordsStats(t *testing.T) {
	store := stats.NewMemoryStore()
	limiter := &stubLimiter{dec: types.Allow}
	mw := middleware.NewRateLimitMiddleware(limiter, "test",
		middleware.WithStats(store),
	)

	var called bool
	handler := mw.Handler(okHandler(&called))
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("GET", "/limited", nil)
		req.RemoteAddr = "10.0.0.1:4321"
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	limiter.dec = types.Deny(time.Second)
	req := httptest.NewRequest("GET", "/limited", nil)
	req.RemoteAddr = "10.0.0.1:4321"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	total := store.Total()
	if total.Allowed != 3 || total.Denied != 1 {
		t.Errorf("Total = %+v, want {Allowed:3 Denied:1}", total)
	}
	byRoute := store.ByRoute()
	if c := byRoute["GET /limited"]; c.Allowed != 3 || c.Denied != 1 {
		t.Errorf("ByRoute[GET /limited] = %+v, want {Allowed:3 Denied:1}", c)
	}
}

func TestMiddleware_HandleFuncShape(t *testing.T) {
	limiter := &stubLimiter{dec: types.Allow}
	mw := middleware.NewRateLimitMiddleware(limiter, "test")

	var called bool
	h := mw.Handle(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/limited", nil)
	req.RemoteAddr = "10.0.0.1:4321"
	h(rec, req)

	if !called || rec.Code != http.StatusOK {
		t.Errorf("HandlerFunc wrapper: called=%v status=%d", called, rec.Code)
	}
}

func TestNewAdapter(t *testing.T) {
	limiter := &stubLimiter{dec: types.Allow}
	mw := middleware.NewRateLimitMiddleware(limiter, "test")

	for _, name := range []string{"http", "chi"} {
		adapter, err := middleware.NewAdapter(name, mw)
		if err != nil {
			t.Fatalf("NewAdapter(%q) failed: %v", name, err)
		}
		var called bool
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/limited", nil)
		req.RemoteAddr = "10.0.0.1:4321"
		adapter(okHandler(&called)).ServeHTTP(rec, req)
		if !called {
			t.Errorf("adapter %q did not invoke next handler", name)
		}
	}
}

func TestNewAdapter_UnknownName(t *testing.T) {
	mw := middleware.NewRateLimitMiddleware(&stubLimiter{dec: types.Allow}, "test")

	_, err := middleware.NewAdapter("express", mw)
	if err == nil {
		t.Fatal("NewAdapter unexpectedly succeeded for unknown name")
	}
	if !strings.Contains(err.Error(), "express") {
		t.Errorf("error %q does not name the unknown adapter", err)
	}
	if !strings.Contains(err.Error(), "http") {
		t.Errorf("error %q does not list known adapters", err)
	}
}
