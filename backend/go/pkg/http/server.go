package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"Giorgio/backend/go/internal/config"
	"Giorgio/backend/go/pkg/circuitbreaker"
	"Giorgio/backend/go/pkg/httpmiddleware"
	"Giorgio/backend/go/pkg/logger"
	"Giorgio/backend/go/pkg/ratelimiter"
)

// Middleware 包装一个 http.Handler。
type Middleware func(http.Handler) http.Handler

// Server 在标准 http.Server 外挂上限流、熔断和访问日志中间件。
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	log        *logger.Logger
}

// ServerOption 配置 Server。
type ServerOption func(*Server)

// WithAddress 设置监听地址。
func WithAddress(addr string) ServerOption {
	return func(s *Server) {
		s.httpServer.Addr = addr
	}
}

// WithReadHeaderTimeout 设置读取请求头的超时。
func WithReadHeaderTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		s.httpServer.ReadHeaderTimeout = d
	}
}

// NewServer 按配置创建 Server。配置中启用的限流和熔断中间件会自动挂载。
func NewServer(cfg *config.AppConfig, opts ...ServerOption) (*Server, error) {
	mux := http.NewServeMux()
	var handler http.Handler = mux
	log := logger.New(cfg.App.Name, "", "")

	middlewares := []Middleware{httpmiddleware.AccessLog(cfg.App.Name)}

	if rl := cfg.Middleware.RateLimiter; rl.Enabled {
		if rl.TokenBucket.Rate <= 0 || rl.TokenBucket.Capacity <= 0 {
			return nil, fmt.Errorf("令牌桶配置非法: rate=%v capacity=%d", rl.TokenBucket.Rate, rl.TokenBucket.Capacity)
		}
		if rl.PerOwner {
			log.Info("启用按来源限流中间件")
			limiter := ratelimiter.NewKeyedTokenBucket(rl.TokenBucket.Rate, rl.TokenBucket.Capacity, 0)
			middlewares = append(middlewares, httpmiddleware.KeyedRateLimit(limiter, httpmiddleware.ClientIP))
		} else {
			log.Info("启用全局限流中间件")
			middlewares = append(middlewares, httpmiddleware.RateLimit(ratelimiter.NewTokenBucket(rl.TokenBucket.Rate, rl.TokenBucket.Capacity)))
		}
	}

	if cfg.Middleware.CircuitBreaker.Enabled {
		breaker, err := NewCircuitBreaker(cfg.Middleware.CircuitBreaker)
		if err != nil {
			return nil, err
		}
		log.Info("启用熔断中间件")
		middlewares = append(middlewares, httpmiddleware.CircuitBreak(breaker))
	}

	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}

	srv := &Server{
		httpServer: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		mux: mux,
		log: log,
	}
	for _, opt := range opts {
		opt(srv)
	}
	if srv.httpServer.Addr == "" {
		srv.httpServer.Addr = ":8080"
	}
	return srv, nil
}

// Handle 注册处理器。
func (s *Server) Handle(pattern string, handler http.Handler) {
	s.mux.Handle(pattern, handler)
}

// HandleFunc 注册处理函数。
func (s *Server) HandleFunc(pattern string, handler http.HandlerFunc) {
	s.mux.HandleFunc(pattern, handler)
}

// Handler 返回挂好中间件的根处理器。
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Addr 返回监听地址。
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// ListenAndServe 启动服务。正常关闭时返回 nil。
func (s *Server) ListenAndServe() error {
	if s.httpServer.Addr == "" {
		return errors.New("server address is not set")
	}
	s.log.WithPayload(map[string]interface{}{"address": s.httpServer.Addr}).Info("HTTP 服务启动")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown 优雅关闭服务。
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// NewCircuitBreaker 按配置创建熔断器。
func NewCircuitBreaker(cfg config.CircuitBreakerConfig) (circuitbreaker.CircuitBreaker, error) {
	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("熔断器超时配置非法: %w", err)
	}
	return circuitbreaker.New(cfg.FailureThreshold, cfg.SuccessThreshold, timeout), nil
}
