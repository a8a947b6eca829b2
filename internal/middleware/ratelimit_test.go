package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/coursegate/internal/model"
)

func newLimitedRequest(principalID string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/posts", nil)
	p := &model.Principal{ID: principalID}
	return req.WithContext(ContextWithPrincipal(req.Context(), p))
}

func TestNewRateLimiterConfig(t *testing.T) {
	cfg := NewRateLimiterConfig(30)
	if cfg.Rate != rate.Limit(0.5) {
		t.Errorf("Rate = %v, want 0.5", cfg.Rate)
	}
	if cfg.Burst != 30 {
		t.Errorf("Burst = %d, want 30", cfg.Burst)
	}

	disabled := NewRateLimiterConfig(0)
	if disabled.Rate != rate.Inf {
		t.Errorf("Rate = %v, want Inf", disabled.Rate)
	}
}

func TestRateLimiter_ExceedingBurst_Returns429(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: rate.Limit(0.5), Burst: 2, CleanupInterval: time.Minute})
	defer rl.Stop()

	handler := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, newLimitedRequest("p1"))
		if w.Code != http.StatusCreated {
			t.Fatalf("request %d: status = %d, want %d", i+1, w.Code, http.StatusCreated)
		}
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, newLimitedRequest("p1"))
	assertErrorResponse(t, w, http.StatusTooManyRequests, "Too many requests")
	if got := w.Header().Get("Retry-After"); got != "2" {
		t.Errorf("Retry-After = %q, want %q", got, "2")
	}
}

func TestRateLimiter_IndependentPerPrincipal(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: rate.Limit(0.1), Burst: 1, CleanupInterval: time.Minute})
	defer rl.Stop()

	handler := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, newLimitedRequest(fmt.Sprintf("p%d", i)))
		if w.Code != http.StatusOK {
			t.Errorf("principal p%d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}
	if got := rl.limiterCount(); got != 3 {
		t.Errorf("limiterCount() = %d, want 3", got)
	}
}

func TestRateLimiter_NoPrincipal_Returns401(t *testing.T) {
	rl := NewRateLimiter(NewRateLimiterConfig(30))
	defer rl.Stop()

	handler := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("next handler should not be called")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/posts", nil))
	assertErrorResponse(t, w, http.StatusUnauthorized, "Unauthorized")
}

func TestRateLimiter_Disabled_AllowsAll(t *testing.T) {
	rl := NewRateLimiter(NewRateLimiterConfig(0))
	defer rl.Stop()

	handler := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 100; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, newLimitedRequest("p1"))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want %d", i+1, w.Code, http.StatusOK)
		}
	}
}

func TestRateLimiter_CleanupRemovesIdleEntries(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: rate.Limit(1), Burst: 1, CleanupInterval: time.Minute})
	defer rl.Stop()

	rl.limiterFor("idle")
	rl.limiterFor("active")

	rl.mu.Lock()
	rl.limiters["idle"].lastAccess = time.Now().Add(-3 * time.Minute)
	rl.mu.Unlock()

	rl.cleanup(time.Now())

	if got := rl.limiterCount(); got != 1 {
		t.Errorf("limiterCount() = %d, want 1", got)
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(NewRateLimiterConfig(30))
	rl.Stop()
	rl.Stop()
}
