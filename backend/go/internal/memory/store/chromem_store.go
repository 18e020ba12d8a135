package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"Giorgio/backend/go/internal/models"

	"github.com/philippgille/chromem-go"
)

var errNoEmbeddingFunc = errors.New("chromem 集合只接受预先计算的向量")

// ChromemStore 是基于 chromem-go 的嵌入式向量库，用于本地开发和测试。
type ChromemStore struct {
	db *chromem.DB

	mu   sync.Mutex
	dims map[string]int
}

// NewChromemStore 创建存储。path 为空时只保存在内存中，否则持久化到该目录。
func NewChromemStore(path string) (*ChromemStore, error) {
	var db *chromem.DB
	if path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("打开 chromem 数据库失败: %w", err)
		}
	}
	return &ChromemStore{db: db, dims: make(map[string]int)}, nil
}

func noEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, errNoEmbeddingFunc
}

func (s *ChromemStore) EnsureCollection(ctx context.Context, collection string, dim int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.GetOrCreateCollection(collection, nil, noEmbedding); err != nil {
		return fmt.Errorf("创建集合 '%s' 失败: %w", collection, err)
	}
	if _, ok := s.dims[collection]; !ok {
		s.dims[collection] = dim
	}
	return nil
}

func (s *ChromemStore) collection(name string) *chromem.Collection {
	return s.db.GetCollection(name, noEmbedding)
}

func (s *ChromemStore) Upsert(ctx context.Context, collection string, rec *models.MemoryRecord, vector []float32) error {
	c := s.collection(collection)
	if c == nil {
		return fmt.Errorf("集合 '%s' 不存在", collection)
	}
	return c.AddDocument(ctx, chromem.Document{
		ID:        rec.ID,
		Metadata:  toPayload(rec),
		Embedding: vector,
		Content:   rec.Content,
	})
}

func (s *ChromemStore) Search(ctx context.Context, collection string, vector []float32, q Query) ([]models.ScoredMemory, error) {
	c := s.collection(collection)
	if c == nil {
		return nil, fmt.Errorf("集合 '%s' 不存在", collection)
	}
	where := map[string]string{keyOwnerID: q.OwnerID}
	if q.Category != "" {
		where[keyCategory] = string(q.Category)
	}
	results, err := s.query(ctx, c, vector, q.Limit, where)
	if err != nil {
		return nil, err
	}

	out := make([]models.ScoredMemory, 0, len(results))
	for _, r := range results {
		if float64(r.Similarity) < q.Threshold {
			continue
		}
		out = append(out, models.ScoredMemory{
			MemoryRecord: fromPayload(r.ID, r.Metadata),
			Score:        float64(r.Similarity),
		})
	}
	return out, nil
}

// query 把 nResults 限制在集合文档数以内，chromem 对超出的请求直接报错。
func (s *ChromemStore) query(ctx context.Context, c *chromem.Collection, vector []float32, limit int, where map[string]string) ([]chromem.Result, error) {
	n := c.Count()
	if limit < n {
		n = limit
	}
	if n <= 0 {
		return nil, nil
	}
	results, err := c.QueryEmbedding(ctx, vector, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem 检索失败: %w", err)
	}
	return results, nil
}

// Scroll 用任意单位向量检索全部文档。chromem 没有遍历接口。
func (s *ChromemStore) Scroll(ctx context.Context, collection, ownerID string, limit int) ([]models.MemoryRecord, error) {
	c := s.collection(collection)
	if c == nil {
		return nil, fmt.Errorf("集合 '%s' 不存在", collection)
	}
	s.mu.Lock()
	dim := s.dims[collection]
	s.mu.Unlock()
	if dim <= 0 || c.Count() == 0 {
		return nil, nil
	}

	axis := make([]float32, dim)
	axis[0] = 1
	results, err := s.query(ctx, c, axis, limit, map[string]string{keyOwnerID: ownerID})
	if err != nil {
		return nil, err
	}
	out := make([]models.MemoryRecord, 0, len(results))
	for _, r := range results {
		out = append(out, fromPayload(r.ID, r.Metadata))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Delete 先按ID读取并核对归属。chromem 的 Delete 在带 where 时会忽略 ids，不能用过滤代替核对。
func (s *ChromemStore) Delete(ctx context.Context, collection, ownerID, id string) error {
	c := s.collection(collection)
	if c == nil {
		return ErrNotFound
	}
	doc, err := c.GetByID(ctx, id)
	if err != nil || doc.Metadata[keyOwnerID] != ownerID {
		return ErrNotFound
	}
	return c.Delete(ctx, nil, nil, id)
}
