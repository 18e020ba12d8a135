package embedding

import (
	"context"
	"fmt"

	"Giorgio/backend/go/internal/config"
)

// New 根据配置创建 Embedding 模型；CacheSize 大于 0 时外层包装一层 ristretto 缓存。
func New(ctx context.Context, cfg config.EmbeddingConfig) (Embedding, error) {
	var (
		model Embedding
		err   error
	)
	switch ModelType(cfg.Provider) {
	case Gemini:
		model, err = NewGoogleModel(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
	case OpenAI:
		model, err = NewOpenAIModel(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.BaseURL, cfg.Dimension)
	case Ollama:
		model, err = NewOllamaModel(cfg.Ollama.Model, cfg.Ollama.BaseURL)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	model = WithDimension(model, cfg.Dimension)
	if cfg.CacheSize > 0 {
		return NewCached(model, cfg.CacheSize)
	}
	return model, nil
}

// dimensionChecked 校验每个返回向量的长度。
type dimensionChecked struct {
	next Embedding
	dim  int
}

// WithDimension 返回校验向量维度的包装；dim 小于等于 0 时原样返回。
func WithDimension(next Embedding, dim int) Embedding {
	if dim <= 0 {
		return next
	}
	return &dimensionChecked{next: next, dim: dim}
}

func (d *dimensionChecked) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := d.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) != d.dim {
		return nil, fmt.Errorf("%w: 期望 %d，实际 %d", ErrDimensionMismatch, d.dim, len(vec))
	}
	return vec, nil
}

func (d *dimensionChecked) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := d.next.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("批量嵌入返回 %d 个向量，期望 %d 个", len(vecs), len(texts))
	}
	for _, v := range vecs {
		if len(v) != d.dim {
			return nil, fmt.Errorf("%w: 期望 %d，实际 %d", ErrDimensionMismatch, d.dim, len(v))
		}
	}
	return vecs, nil
}
