package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"Giorgio/backend/go/pkg/circuitbreaker"
	"Giorgio/backend/go/pkg/ratelimiter"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestKeyedRateLimitPerKey(t *testing.T) {
	limiter := ratelimiter.NewKeyedTokenBucket(0.001, 1, 10)
	h := KeyedRateLimit(limiter, func(r *http.Request) string {
		return r.Header.Get("X-Owner")
	})(okHandler())

	do := func(owner string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Owner", owner)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := do("alice"); code != http.StatusOK {
		t.Fatalf("alice 首次请求应为 200，实际 %d", code)
	}
	if code := do("alice"); code != http.StatusTooManyRequests {
		t.Fatalf("alice 第二次请求应为 429，实际 %d", code)
	}
	if code := do("bob"); code != http.StatusOK {
		t.Fatalf("bob 应不受影响，实际 %d", code)
	}
	if code := do(""); code != http.StatusOK {
		t.Fatalf("空键不应限流，实际 %d", code)
	}
}

func TestCircuitBreakOpensOn5xx(t *testing.T) {
	cb := circuitbreaker.New(1, 1, time.Minute)
	h := CircuitBreak(cb)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("首次请求应透传 502，实际 %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("熔断后应返回 503，实际 %d", rec.Code)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.7:5123"
	if got := ClientIP(req); got != "10.0.0.7" {
		t.Fatalf("期望 10.0.0.7，实际 %s", got)
	}
}
