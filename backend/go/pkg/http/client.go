package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"Giorgio/backend/go/internal/config"
	"Giorgio/backend/go/pkg/circuitbreaker"
)

// StatusError 表示非 2xx 响应。
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Client 是带熔断保护的 HTTP 客户端，Tavily 和 Qdrant 的调用都经过它。
type Client struct {
	httpClient *http.Client
	breaker    circuitbreaker.CircuitBreaker
	headers    http.Header
}

// ClientOption 配置 Client。
type ClientOption func(*Client)

// WithTimeout 设置单次请求超时。
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithHeader 为每个请求附加固定请求头。
func WithHeader(key, value string) ClientOption {
	return func(c *Client) {
		if value != "" {
			c.headers.Set(key, value)
		}
	}
}

// WithHTTPClient 替换底层 http.Client（测试中使用）。
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient 创建客户端。熔断器未启用时直接使用底层客户端。
func NewClient(cfg config.CircuitBreakerConfig, opts ...ClientOption) (*Client, error) {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		headers:    make(http.Header),
	}
	if cfg.Enabled {
		breaker, err := NewCircuitBreaker(cfg)
		if err != nil {
			return nil, err
		}
		c.breaker = breaker
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Do 发送请求，5xx 响应计为熔断失败。
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}
	if c.breaker == nil {
		return c.httpClient.Do(req)
	}

	return circuitbreaker.Do(c.breaker, func() (*http.Response, error) {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
		}
		return resp, nil
	})
}

// DoJSON 以 JSON 发送 in，并把 2xx 响应体解码到 out。in 或 out 可以为 nil。
func (c *Client) DoJSON(ctx context.Context, method, url string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("序列化请求体失败: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("解析响应失败: %w", err)
	}
	return nil
}
