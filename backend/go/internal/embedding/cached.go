package embedding

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"
)

// Cached 在 Embedding 外层缓存文本到向量的映射，避免重复查询同一段文本。
type Cached struct {
	next  Embedding
	cache *ristretto.Cache
}

// NewCached 创建缓存包装，maxItems 为最多缓存的文本数量。
func NewCached(next Embedding, maxItems int64) (*Cached, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxItems * 10,
		MaxCost:     maxItems,
		BufferItems: 64,
		// 成本按条目计数
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("创建嵌入缓存失败: %w", err)
	}
	return &Cached{next: next, cache: cache}, nil
}

func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.lookup(text); ok {
		return v, nil
	}
	vec, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(text, vec, 1)
	return vec, nil
}

// EmbedBatch 只对未命中的文本发起请求，结果按输入顺序合并。
func (c *Cached) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, t := range texts {
		if v, ok := c.lookup(t); ok {
			out[i] = v
			continue
		}
		missing = append(missing, t)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	vecs, err := c.next.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missing) {
		return nil, fmt.Errorf("批量嵌入返回 %d 个向量，期望 %d 个", len(vecs), len(missing))
	}
	for j, v := range vecs {
		out[missingIdx[j]] = v
		c.cache.Set(missing[j], v, 1)
	}
	return out, nil
}

// Wait 等待缓冲中的写入生效。
func (c *Cached) Wait() {
	c.cache.Wait()
}

// Close 释放缓存。
func (c *Cached) Close() {
	c.cache.Close()
}

func (c *Cached) lookup(text string) ([]float32, bool) {
	v, ok := c.cache.Get(text)
	if !ok {
		return nil, false
	}
	vec, ok := v.([]float32)
	return vec, ok
}
