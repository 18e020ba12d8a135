package embedding

import (
	"context"
	"errors"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GoogleModel 是 Gemini Embedding API 的客户端。
type GoogleModel struct {
	client *genai.Client
	model  *genai.EmbeddingModel
}

// NewGoogleModel 创建 GoogleModel。
//
// 参数:
//
//	apiKey: Google GenAI 的 API 密钥。
//	modelName: 要使用的 Embedding 模型名称，例如 gemini-embedding-001。
func NewGoogleModel(ctx context.Context, apiKey, modelName string) (*GoogleModel, error) {
	if apiKey == "" {
		return nil, errors.New("缺少 Gemini API 密钥")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	em := client.EmbeddingModel(modelName)
	return &GoogleModel{client: client, model: em}, nil
}

// Close 关闭底层客户端。
func (m *GoogleModel) Close() error {
	return m.client.Close()
}

func (m *GoogleModel) Embed(ctx context.Context, text string) ([]float32, error) {
	res, err := m.model.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, err
	}
	if res.Embedding == nil {
		return nil, errors.New("no embeddings returned")
	}
	return res.Embedding.Values, nil
}

func (m *GoogleModel) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	batch := m.model.NewBatch()
	for _, text := range texts {
		batch.AddContent(genai.Text(text))
	}

	res, err := m.model.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, err
	}

	embeddings := make([][]float32, 0, len(res.Embeddings))
	for _, emb := range res.Embeddings {
		embeddings = append(embeddings, emb.Values)
	}
	return embeddings, nil
}
