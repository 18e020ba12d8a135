// Package embeddingtest 提供不依赖外部服务的确定性嵌入模型。
package embeddingtest

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync/atomic"
	"unicode"
)

// Hash 把文本按词哈希到固定维度并归一化。相同词汇越多的文本余弦相似度越高。
type Hash struct {
	Dim   int
	Err   error
	calls atomic.Int64
}

// New 创建指定维度的哈希模型。
func New(dim int) *Hash {
	return &Hash{Dim: dim}
}

// Calls 返回 Embed 和 EmbedBatch 处理过的文本数量。
func (h *Hash) Calls() int64 {
	return h.calls.Load()
}

func (h *Hash) Embed(ctx context.Context, text string) ([]float32, error) {
	if h.Err != nil {
		return nil, h.Err
	}
	h.calls.Add(1)
	return Vector(text, h.Dim), nil
}

func (h *Hash) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, err := h.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Vector 计算文本的哈希向量。
func Vector(text string, dim int) []float32 {
	vec := make([]float32, dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		f := fnv.New32a()
		_, _ = f.Write([]byte(w))
		vec[int(f.Sum32())%dim] += 1
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	n := float32(math.Sqrt(norm))
	for i := range vec {
		vec[i] /= n
	}
	return vec
}
