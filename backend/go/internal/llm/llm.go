package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"Giorgio/backend/go/internal/config"
	"Giorgio/backend/go/internal/models"
	"Giorgio/backend/go/pkg/circuitbreaker"
)

// LLM 是所有模型客户端的统一接口。请求中携带系统提示、完整历史和工具定义，
// 客户端本身不保存会话状态，会话状态由检查点负责。
type LLM interface {
	GenerateContent(ctx context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error)
}

// ErrEmptyResponse 表示模型没有返回任何候选内容。
var ErrEmptyResponse = errors.New("模型未返回任何内容")

// NewClient 根据配置创建模型客户端，并按配置套上超时和熔断。
func NewClient(ctx context.Context, cfg config.LLMConfig) (LLM, error) {
	var (
		client LLM
		err    error
	)
	switch cfg.Provider {
	case "gemini":
		client, err = NewGemini(ctx, cfg.Gemini.Model, cfg.Gemini.APIKey)
	case "openai":
		client, err = NewOpenAI(cfg.OpenAI.Model, cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL)
	case "ollama":
		client, err = NewOllama(cfg.Ollama.Model, cfg.Ollama.BaseURL)
	default:
		return nil, fmt.Errorf("不支持的 LLM 提供商: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("创建 %s 客户端失败: %w", cfg.Provider, err)
	}

	var breaker circuitbreaker.CircuitBreaker
	if cfg.Breaker.Enabled {
		breaker = circuitbreaker.New(cfg.Breaker.FailureThreshold, cfg.Breaker.SuccessThreshold,
			config.Duration(cfg.Breaker.Timeout, 30*time.Second))
	}
	return Guard(client, breaker, config.Duration(cfg.Timeout, 0)), nil
}

// Guarded 给模型调用加上超时和熔断。
type Guarded struct {
	next    LLM
	breaker circuitbreaker.CircuitBreaker
	timeout time.Duration
}

// Guard 包装 next。breaker 为 nil 或 timeout 为 0 时对应的保护不生效。
func Guard(next LLM, breaker circuitbreaker.CircuitBreaker, timeout time.Duration) *Guarded {
	return &Guarded{next: next, breaker: breaker, timeout: timeout}
}

func (g *Guarded) GenerateContent(ctx context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	if g.breaker == nil {
		return g.next.GenerateContent(ctx, req)
	}
	return circuitbreaker.Do(g.breaker, func() (*models.GenerateContentResponse, error) {
		return g.next.GenerateContent(ctx, req)
	})
}

// Complete 发送单条用户提示并返回去掉首尾空白的文本回复。
func Complete(ctx context.Context, l LLM, prompt string) (string, error) {
	resp, err := l.GenerateContent(ctx, &models.GenerateContentRequest{
		Contents: []models.Content{models.NewTextContent(models.SpeakerUser, prompt)},
	})
	if err != nil {
		return "", err
	}
	first := resp.First()
	if first == nil {
		return "", ErrEmptyResponse
	}
	return strings.TrimSpace(first.Text()), nil
}
