// Package llmtest 提供测试用的脚本化模型。
package llmtest

import (
	"context"
	"sync"

	"Giorgio/backend/go/internal/models"
)

// Handler 根据请求决定模型的回复。
type Handler func(ctx context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error)

// Scripted 是由 Handler 驱动的 LLM 实现，并记录收到的所有请求。
type Scripted struct {
	mu       sync.Mutex
	handler  Handler
	requests []*models.GenerateContentRequest
}

// New 创建脚本化模型。
func New(h Handler) *Scripted {
	return &Scripted{handler: h}
}

func (s *Scripted) GenerateContent(ctx context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error) {
	s.mu.Lock()
	cp := *req
	cp.Contents = append([]models.Content(nil), req.Contents...)
	s.requests = append(s.requests, &cp)
	s.mu.Unlock()
	return s.handler(ctx, req)
}

// Requests 返回已收到请求的副本。
func (s *Scripted) Requests() []*models.GenerateContentRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.GenerateContentRequest(nil), s.requests...)
}

// CallCount 返回调用次数。
func (s *Scripted) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Text 构造只含文本的回复。
func Text(text string) *models.GenerateContentResponse {
	return &models.GenerateContentResponse{
		Content: []models.Content{models.NewTextContent(models.SpeakerModel, text)},
	}
}

// Calls 构造只含函数调用的回复。
func Calls(calls ...models.FunctionCall) *models.GenerateContentResponse {
	c := models.Content{Role: models.SpeakerModel}
	for i := range calls {
		fc := calls[i]
		c.Parts = append(c.Parts, &models.Part{FunctionCall: &fc})
	}
	return &models.GenerateContentResponse{Content: []models.Content{c}}
}

// LastUserText 返回请求中最后一条用户消息的文本。
func LastUserText(req *models.GenerateContentRequest) string {
	for i := len(req.Contents) - 1; i >= 0; i-- {
		if req.Contents[i].Role == models.SpeakerUser {
			return req.Contents[i].Text()
		}
	}
	return ""
}

// HasToolResult 判断请求末尾是否是工具结果。
func HasToolResult(req *models.GenerateContentRequest) bool {
	n := len(req.Contents)
	return n > 0 && req.Contents[n-1].Role == models.SpeakerTool
}
