package llm

import (
	"context"
	"errors"
	"fmt"

	"Giorgio/backend/go/internal/models"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini 通过 generative-ai-go 调用 Gemini。每次调用都新建 GenerativeModel 和 ChatSession，
// 系统提示和工具随请求变化，历史由调用方传入。
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini 创建一个新的 Gemini 客户端。
func NewGemini(ctx context.Context, model, apiKey string) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("缺少 Gemini API 密钥")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &Gemini{client: client, model: model}, nil
}

// Close 释放底层连接。
func (g *Gemini) Close() error {
	return g.client.Close()
}

func (g *Gemini) GenerateContent(ctx context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error) {
	if len(req.Contents) == 0 {
		return nil, errors.New("请求内容为空")
	}

	gm := g.client.GenerativeModel(g.model)
	if req.SystemInstruction != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.SystemInstruction)}}
	}
	if len(req.Tools) > 0 {
		decls, err := ConvertMCPToolsToGemini(req.Tools)
		if err != nil {
			return nil, err
		}
		gm.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	history := toGenaiContents(req.Contents[:len(req.Contents)-1])
	last := toGenaiParts(req.Contents[len(req.Contents)-1])
	if len(last) == 0 {
		return nil, errors.New("最后一条消息没有可发送的内容")
	}

	session := gm.StartChat()
	session.History = history
	resp, err := session.SendMessage(ctx, last...)
	if err != nil {
		return nil, fmt.Errorf("调用 Gemini 失败: %w", err)
	}
	return fromGenaiResponse(resp), nil
}

// genaiRole 映射角色。工具结果在 Gemini 中以 user 角色的 FunctionResponse 发送。
func genaiRole(role models.SpeakerRole) string {
	if role == models.SpeakerModel {
		return "model"
	}
	return "user"
}

func toGenaiContents(contents []models.Content) []*genai.Content {
	out := make([]*genai.Content, 0, len(contents))
	for _, c := range contents {
		parts := toGenaiParts(c)
		if len(parts) == 0 {
			continue
		}
		out = append(out, &genai.Content{Role: genaiRole(c.Role), Parts: parts})
	}
	return out
}

func toGenaiParts(c models.Content) []genai.Part {
	var parts []genai.Part
	for _, p := range c.Parts {
		switch {
		case p == nil:
		case p.FunctionCall != nil:
			parts = append(parts, genai.FunctionCall{Name: p.FunctionCall.Name, Args: p.FunctionCall.Args})
		case p.FunctionResponse != nil:
			parts = append(parts, genai.FunctionResponse{Name: p.FunctionResponse.Name, Response: p.FunctionResponse.Response})
		case p.InlineData != nil:
			parts = append(parts, genai.Blob{MIMEType: p.InlineData.MIMEType, Data: p.InlineData.Data})
		case p.FileData != nil:
			parts = append(parts, genai.FileData{MIMEType: p.FileData.MIMEType, URI: p.FileData.FileURI})
		case p.Text != "":
			parts = append(parts, genai.Text(p.Text))
		}
	}
	return parts
}

func fromGenaiResponse(resp *genai.GenerateContentResponse) *models.GenerateContentResponse {
	if resp == nil {
		return &models.GenerateContentResponse{}
	}
	var content []models.Content
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			content = append(content, fromGenaiContent(cand.Content))
		}
	}
	return &models.GenerateContentResponse{Content: content}
}

func fromGenaiContent(content *genai.Content) models.Content {
	parts := make([]*models.Part, 0, len(content.Parts))
	for _, p := range content.Parts {
		if part := fromGenaiPart(p); part != nil {
			parts = append(parts, part)
		}
	}
	return models.Content{Parts: parts, Role: models.SpeakerModel}
}

func fromGenaiPart(part genai.Part) *models.Part {
	switch v := part.(type) {
	case genai.Text:
		return &models.Part{Text: string(v)}
	case genai.Blob:
		return &models.Part{InlineData: &models.Blob{MIMEType: v.MIMEType, Data: v.Data}}
	case genai.FileData:
		return &models.Part{FileData: &models.FileData{FileURI: v.URI, MIMEType: v.MIMEType}}
	case genai.FunctionCall:
		return &models.Part{FunctionCall: &models.FunctionCall{Name: v.Name, Args: v.Args}}
	case *genai.FunctionCall:
		return &models.Part{FunctionCall: &models.FunctionCall{Name: v.Name, Args: v.Args}}
	case genai.FunctionResponse:
		return &models.Part{FunctionResponse: &models.FunctionResponse{Name: v.Name, Response: v.Response}}
	default:
		return nil
	}
}
