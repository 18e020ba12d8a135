// Package websearch 提供网页搜索与网页读取。
package websearch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"Giorgio/backend/go/internal/config"
	pkghttp "Giorgio/backend/go/pkg/http"
)

// ErrMissingAPIKey 表示未配置 Tavily 密钥。
var ErrMissingAPIKey = errors.New("缺少 Tavily API 密钥")

// Result 是一条搜索结果。
type Result struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Searcher 执行网页搜索。
type Searcher interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

type tavilyRequest struct {
	Query       string `json:"query"`
	MaxResults  int    `json:"max_results"`
	SearchDepth string `json:"search_depth,omitempty"`
}

type tavilyResponse struct {
	Query   string   `json:"query"`
	Results []Result `json:"results"`
}

// Tavily 调用 Tavily 搜索接口。
type Tavily struct {
	client     *pkghttp.Client
	baseURL    string
	maxResults int
	hasKey     bool
}

// NewTavily 创建搜索客户端，密钥以 Bearer 方式发送。
func NewTavily(cfg config.WebSearchConfig, breaker config.CircuitBreakerConfig) (*Tavily, error) {
	client, err := pkghttp.NewClient(breaker, pkghttp.WithHeader("Authorization", bearer(cfg.APIKey)))
	if err != nil {
		return nil, err
	}
	return newTavily(client, cfg), nil
}

func newTavily(client *pkghttp.Client, cfg config.WebSearchConfig) *Tavily {
	limit := cfg.MaxResults
	if limit <= 0 {
		limit = 3
	}
	return &Tavily{
		client:     client,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		maxResults: limit,
		hasKey:     cfg.APIKey != "",
	}
}

func bearer(key string) string {
	if key == "" {
		return ""
	}
	return "Bearer " + key
}

func (t *Tavily) Search(ctx context.Context, query string) ([]Result, error) {
	if !t.hasKey {
		return nil, ErrMissingAPIKey
	}
	var resp tavilyResponse
	err := t.client.DoJSON(ctx, http.MethodPost, t.baseURL+"/search", tavilyRequest{
		Query:      query,
		MaxResults: t.maxResults,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("Tavily 搜索失败: %w", err)
	}
	if len(resp.Results) > t.maxResults {
		resp.Results = resp.Results[:t.maxResults]
	}
	return resp.Results, nil
}
