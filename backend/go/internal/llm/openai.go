package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"Giorgio/backend/go/internal/models"

	openai "github.com/meguminnnnnnnnn/go-openai"
)

// OpenAI 是 OpenAI 兼容接口的客户端，支持工具调用的往返。
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI 创建客户端。baseURL 为空时使用官方地址。
func NewOpenAI(model, apiKey, baseURL string) (*OpenAI, error) {
	if apiKey == "" {
		return nil, errors.New("缺少 OpenAI API 密钥")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), model: model}, nil
}

func (o *OpenAI) GenerateContent(ctx context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: toOpenAIMessages(req),
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = ConvertMCPToolsToOpenAI(req.Tools)
	}

	resp, err := o.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("调用 OpenAI 失败: %w", err)
	}
	return fromOpenAIResponse(&resp), nil
}

func toOpenAIMessages(req *models.GenerateContentRequest) []openai.ChatCompletionMessage {
	var messages []openai.ChatCompletionMessage
	if req.SystemInstruction != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemInstruction,
		})
	}

	for _, c := range req.Contents {
		switch c.Role {
		case models.SpeakerModel:
			msg := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: c.Text(),
			}
			for i, fc := range c.FunctionCalls() {
				args, _ := json.Marshal(fc.Args)
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   callID(fc.ID, fc.Name, i),
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      fc.Name,
						Arguments: string(args),
					},
				})
			}
			messages = append(messages, msg)
		case models.SpeakerTool:
			i := 0
			for _, p := range c.Parts {
				if p == nil || p.FunctionResponse == nil {
					continue
				}
				messages = append(messages, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    p.FunctionResponse.Output(),
					Name:       p.FunctionResponse.Name,
					ToolCallID: callID(p.FunctionResponse.ID, p.FunctionResponse.Name, i),
				})
				i++
			}
		default:
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: c.Text(),
			})
		}
	}
	return messages
}

// callID 为没有ID的调用生成稳定的ID，保证调用与结果能在下一次请求中对应。
func callID(id, name string, index int) string {
	if id != "" {
		return id
	}
	return fmt.Sprintf("call_%s_%d", name, index)
}

func fromOpenAIResponse(resp *openai.ChatCompletionResponse) *models.GenerateContentResponse {
	content := make([]models.Content, 0, len(resp.Choices))
	for _, choice := range resp.Choices {
		c := models.Content{Role: models.SpeakerModel}
		if choice.Message.Content != "" {
			c.Parts = append(c.Parts, &models.Part{Text: choice.Message.Content})
		}
		for _, tc := range choice.Message.ToolCalls {
			args := map[string]any{}
			if tc.Function.Arguments != "" {
				_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
			}
			c.Parts = append(c.Parts, &models.Part{FunctionCall: &models.FunctionCall{
				ID:   tc.ID,
				Name: tc.Function.Name,
				Args: args,
			}})
		}
		content = append(content, c)
	}
	return &models.GenerateContentResponse{
		Content:      content,
		ResponseID:   resp.ID,
		ModelVersion: resp.Model,
	}
}
