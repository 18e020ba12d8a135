package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"Giorgio/backend/go/internal/config"
	"Giorgio/backend/go/pkg/circuitbreaker"
)

func newTestConfig() *config.AppConfig {
	return &config.AppConfig{
		App: config.AppInfo{Name: "giorgio-test"},
		Middleware: config.MiddlewareConfig{
			RateLimiter: config.RateLimiterConfig{
				Enabled: true,
				TokenBucket: config.TokenBucketConfig{
					Rate:     10,
					Capacity: 5,
				},
			},
			CircuitBreaker: config.CircuitBreakerConfig{
				Enabled:          true,
				FailureThreshold: 2,
				SuccessThreshold: 2,
				Timeout:          "10s",
			},
		},
	}
}

func TestNewServer_WithAddress(t *testing.T) {
	srv, err := NewServer(newTestConfig(), WithAddress(":9999"))
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	if srv.Addr() != ":9999" {
		t.Errorf("期望地址 :9999，实际 %s", srv.Addr())
	}
}

func TestNewServer_RejectsBadBucket(t *testing.T) {
	cfg := newTestConfig()
	cfg.Middleware.RateLimiter.TokenBucket.Capacity = 0
	if _, err := NewServer(cfg); err == nil {
		t.Fatal("容量为 0 时应返回错误")
	}
}

func TestRateLimiterMiddleware(t *testing.T) {
	cfg := newTestConfig()
	cfg.Middleware.RateLimiter.TokenBucket.Capacity = 2
	cfg.Middleware.RateLimiter.TokenBucket.Rate = 0.01

	srv, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("创建服务失败: %v", err)
	}
	srv.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	for i := 0; i < 2; i++ {
		resp, err := http.Get(ts.URL)
		if err != nil {
			t.Fatalf("第 %d 次请求失败: %v", i+1, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("第 %d 次请求期望 200，实际 %d", i+1, resp.StatusCode)
		}
	}

	resp, err := http.Get(ts.URL)
	if err != nil {
		t.Fatalf("第 3 次请求失败: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("第 3 次请求期望 429，实际 %d", resp.StatusCode)
	}
}

func TestCircuitBreakerMiddleware(t *testing.T) {
	cfg := newTestConfig()
	cfg.Middleware.RateLimiter.Enabled = false

	srv, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("创建服务失败: %v", err)
	}
	srv.HandleFunc("/fail", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	})

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	for i := 0; i < 2; i++ {
		resp, err := http.Get(ts.URL + "/fail")
		if err != nil {
			t.Fatalf("第 %d 次请求失败: %v", i+1, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusInternalServerError {
			t.Errorf("第 %d 次请求期望 500，实际 %d", i+1, resp.StatusCode)
		}
	}

	resp, err := http.Get(ts.URL + "/fail")
	if err != nil {
		t.Fatalf("第 3 次请求失败: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("第 3 次请求期望 503，实际 %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "Circuit Breaker is open") {
		t.Errorf("响应体应包含 'Circuit Breaker is open'，实际 '%s'", string(body))
	}
}

func TestClientDoJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("api-key") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"echo":` + string(body) + `}`))
	}))
	defer ts.Close()

	c, err := NewClient(config.CircuitBreakerConfig{}, WithHeader("api-key", "secret"), WithHTTPClient(ts.Client()))
	if err != nil {
		t.Fatalf("创建客户端失败: %v", err)
	}

	var out struct {
		Echo map[string]string `json:"echo"`
	}
	if err := c.DoJSON(context.Background(), http.MethodPost, ts.URL, map[string]string{"q": "ciao"}, &out); err != nil {
		t.Fatalf("DoJSON 失败: %v", err)
	}
	if out.Echo["q"] != "ciao" {
		t.Errorf("回显内容错误: %v", out.Echo)
	}

	bare, _ := NewClient(config.CircuitBreakerConfig{})
	err = bare.DoJSON(context.Background(), http.MethodGet, ts.URL, nil, nil)
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusUnauthorized {
		t.Fatalf("期望 401 StatusError，实际 %v", err)
	}
}

func TestClientBreakerOpens(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	c, err := NewClient(config.CircuitBreakerConfig{Enabled: true, FailureThreshold: 1, SuccessThreshold: 1, Timeout: "1m"})
	if err != nil {
		t.Fatalf("创建客户端失败: %v", err)
	}
	_ = c.DoJSON(context.Background(), http.MethodGet, ts.URL, nil, nil)
	err = c.DoJSON(context.Background(), http.MethodGet, ts.URL, nil, nil)
	if !errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		t.Fatalf("期望 ErrCircuitOpen，实际 %v", err)
	}
}
