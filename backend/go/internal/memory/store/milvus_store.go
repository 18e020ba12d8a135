package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"Giorgio/backend/go/internal/database/milvus"
	"Giorgio/backend/go/internal/models"
)

// MilvusStore 把记忆保存在 Milvus 中，载荷以 JSON 字段存放。
type MilvusStore struct {
	client *milvus.MilvusClient
}

// NewMilvusStore 创建存储。
//
// 参数:
//
//	client: 已连接的 Milvus 客户端
//
// 返回值:
//
//	*MilvusStore: 存储实例
func NewMilvusStore(client *milvus.MilvusClient) *MilvusStore {
	return &MilvusStore{client: client}
}

func (s *MilvusStore) EnsureCollection(ctx context.Context, collection string, dim int) error {
	return s.client.EnsureCollection(ctx, collection, dim)
}

func (s *MilvusStore) Upsert(ctx context.Context, collection string, rec *models.MemoryRecord, vector []float32) error {
	payload, err := json.Marshal(toPayload(rec))
	if err != nil {
		return err
	}
	return s.client.Upsert(ctx, collection, []milvus.Point{{ID: rec.ID, Vector: vector, Payload: payload}})
}

func (s *MilvusStore) Search(ctx context.Context, collection string, vector []float32, q Query) ([]models.ScoredMemory, error) {
	expr := payloadEq(keyOwnerID, q.OwnerID)
	if q.Category != "" {
		expr += " && " + payloadEq(keyCategory, string(q.Category))
	}
	hits, err := s.client.Search(ctx, collection, vector, q.Limit, expr)
	if err != nil {
		return nil, fmt.Errorf("failed to search in Milvus: %w", err)
	}

	out := make([]models.ScoredMemory, 0, len(hits))
	for _, h := range hits {
		if float64(h.Score) < q.Threshold {
			continue
		}
		rec, err := decodeHit(h)
		if err != nil {
			return nil, err
		}
		out = append(out, models.ScoredMemory{MemoryRecord: rec, Score: float64(h.Score)})
	}
	return out, nil
}

func (s *MilvusStore) Scroll(ctx context.Context, collection, ownerID string, limit int) ([]models.MemoryRecord, error) {
	hits, err := s.client.Query(ctx, collection, payloadEq(keyOwnerID, ownerID), limit)
	if err != nil {
		return nil, err
	}
	out := make([]models.MemoryRecord, 0, len(hits))
	for _, h := range hits {
		rec, err := decodeHit(h)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *MilvusStore) Delete(ctx context.Context, collection, ownerID, id string) error {
	expr := fmt.Sprintf("%s == %s && %s", milvus.FieldID, strconv.Quote(id), payloadEq(keyOwnerID, ownerID))
	hits, err := s.client.Query(ctx, collection, expr, 1)
	if err != nil {
		return err
	}
	if len(hits) == 0 {
		return ErrNotFound
	}
	return s.client.Delete(ctx, collection, id)
}

// payloadEq 生成 JSON 载荷字段的相等表达式。
func payloadEq(key, value string) string {
	return fmt.Sprintf(`%s["%s"] == %s`, milvus.FieldPayload, key, strconv.Quote(value))
}

func decodeHit(h milvus.Hit) (models.MemoryRecord, error) {
	p := map[string]string{}
	if len(h.Payload) > 0 {
		if err := json.Unmarshal(h.Payload, &p); err != nil {
			return models.MemoryRecord{}, fmt.Errorf("解析记忆载荷失败: %w", err)
		}
	}
	return fromPayload(h.ID, p), nil
}
