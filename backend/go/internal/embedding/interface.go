package embedding

import (
	"context"
	"errors"
)

// ErrDimensionMismatch 表示模型返回的向量维度与配置不一致。
var ErrDimensionMismatch = errors.New("嵌入向量维度不匹配")

// Embedding 定义了所有 embedding 模型需要实现的接口。
type Embedding interface {
	// Embed 为单个文本生成嵌入向量。
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch 为一批文本生成嵌入向量，顺序与输入一致。
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ModelType 表示不同的模型厂商。
type ModelType string

const (
	Gemini ModelType = "gemini"
	OpenAI ModelType = "openai"
	Ollama ModelType = "ollama"
)
