package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"Giorgio/backend/go/internal/models"

	olla "github.com/ollama/ollama/api"
)

// Ollama 调用本地 Ollama 的 generate 接口。该接口不支持工具调用，
// 请求中的工具定义会被忽略，历史消息拼接为对话文本。
type Ollama struct {
	client *olla.Client
	model  string
}

// NewOllama 创建客户端。baseURL 为空时使用 http://localhost:11434。
func NewOllama(model, baseURL string) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	hc := &http.Client{Timeout: 120 * time.Second}
	return &Ollama{client: olla.NewClient(parsedURL, hc), model: model}, nil
}

func (o *Ollama) GenerateContent(ctx context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error) {
	stream := false
	var result olla.GenerateResponse
	err := o.client.Generate(ctx, &olla.GenerateRequest{
		Model:  o.model,
		System: req.SystemInstruction,
		Prompt: toOllamaPrompt(req.Contents),
		Stream: &stream,
	}, func(resp olla.GenerateResponse) error {
		result = resp
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("调用 Ollama 失败: %w", err)
	}

	return &models.GenerateContentResponse{
		Content: []models.Content{
			models.NewTextContent(models.SpeakerModel, result.Response),
		},
		ModelVersion: result.Model,
	}, nil
}

// toOllamaPrompt 只有一条用户消息时直接发送原文，否则按角色拼接成对话记录。
func toOllamaPrompt(contents []models.Content) string {
	if len(contents) == 1 {
		return contents[0].Text()
	}
	var sb strings.Builder
	for _, c := range contents {
		text := c.Text()
		if c.Role == models.SpeakerTool {
			var outs []string
			for _, p := range c.Parts {
				if p != nil && p.FunctionResponse != nil {
					outs = append(outs, p.FunctionResponse.Name+": "+p.FunctionResponse.Output())
				}
			}
			text = strings.Join(outs, "\n")
		}
		if text == "" {
			continue
		}
		switch c.Role {
		case models.SpeakerModel:
			sb.WriteString("Assistant: ")
		case models.SpeakerTool:
			sb.WriteString("Tool: ")
		default:
			sb.WriteString("User: ")
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	sb.WriteString("Assistant: ")
	return sb.String()
}
