package embedding

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/meguminnnnnnnnn/go-openai"
)

// OpenAIModel 是 OpenAI 兼容接口的 Embedding 客户端。
type OpenAIModel struct {
	client     *openai.Client
	model      string
	dimensions int
}

// NewOpenAIModel 创建 OpenAIModel。baseURL 为空时使用官方地址；
// dimensions 大于 0 时请求服务端按该维度截断。
func NewOpenAIModel(apiKey, modelName, baseURL string, dimensions int) (*OpenAIModel, error) {
	if apiKey == "" {
		return nil, errors.New("缺少 OpenAI API 密钥")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIModel{
		client:     openai.NewClientWithConfig(cfg),
		model:      modelName,
		dimensions: dimensions,
	}, nil
}

func (m *OpenAIModel) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := m.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

func (m *OpenAIModel) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(m.model),
		Dimensions: m.dimensions,
	}

	resp, err := m.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("no embeddings returned")
	}

	embeddings := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		embeddings[i] = d.Embedding
	}
	return embeddings, nil
}
