package store

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"Giorgio/backend/go/internal/models"
	pkghttp "Giorgio/backend/go/pkg/http"
)

// QdrantStore 通过 Qdrant 的 REST 接口保存记忆。
type QdrantStore struct {
	client  *pkghttp.Client
	baseURL string
}

// NewQdrantStore 创建存储。client 应已通过 WithHeader 设置 api-key。
func NewQdrantStore(client *pkghttp.Client, baseURL string) *QdrantStore {
	return &QdrantStore{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

type qdrantPoint struct {
	ID      string            `json:"id"`
	Vector  []float32         `json:"vector,omitempty"`
	Payload map[string]string `json:"payload,omitempty"`
	Score   float64           `json:"score,omitempty"`
}

type qdrantFilter struct {
	Must []qdrantCondition `json:"must"`
}

type qdrantMatch struct {
	Value string `json:"value"`
}

type qdrantCondition struct {
	Key   string       `json:"key,omitempty"`
	Match *qdrantMatch `json:"match,omitempty"`
	HasID []string     `json:"has_id,omitempty"`
}

func matchCond(key, value string) qdrantCondition {
	return qdrantCondition{Key: key, Match: &qdrantMatch{Value: value}}
}

// ownerFilter 限定 ownerId，其余条件追加在后面。
func ownerFilter(ownerID string, extra ...qdrantCondition) qdrantFilter {
	return qdrantFilter{Must: append([]qdrantCondition{matchCond(keyOwnerID, ownerID)}, extra...)}
}

func (s *QdrantStore) url(collection, suffix string) string {
	return s.baseURL + "/collections/" + url.PathEscape(collection) + suffix
}

func (s *QdrantStore) EnsureCollection(ctx context.Context, collection string, dim int) error {
	err := s.client.DoJSON(ctx, http.MethodGet, s.url(collection, ""), nil, nil)
	if err == nil {
		return nil
	}
	var se *pkghttp.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查集合 '%s' 失败: %w", collection, err)
	}

	body := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     dim,
			"distance": "Cosine",
		},
		"optimizers_config":  map[string]interface{}{"default_segment_number": 2},
		"replication_factor": 1,
	}
	err = s.client.DoJSON(ctx, http.MethodPut, s.url(collection, ""), body, nil)
	if err != nil {
		// 并发创建时后到者收到 409
		if errors.As(err, &se) && se.StatusCode == http.StatusConflict {
			return nil
		}
		return fmt.Errorf("创建集合 '%s' 失败: %w", collection, err)
	}
	return nil
}

func (s *QdrantStore) Upsert(ctx context.Context, collection string, rec *models.MemoryRecord, vector []float32) error {
	body := map[string]interface{}{
		"points": []qdrantPoint{{ID: rec.ID, Vector: vector, Payload: toPayload(rec)}},
	}
	if err := s.client.DoJSON(ctx, http.MethodPut, s.url(collection, "/points?wait=true"), body, nil); err != nil {
		return fmt.Errorf("写入 Qdrant 失败: %w", err)
	}
	return nil
}

func (s *QdrantStore) Search(ctx context.Context, collection string, vector []float32, q Query) ([]models.ScoredMemory, error) {
	body := map[string]interface{}{
		"vector":          vector,
		"limit":           q.Limit,
		"score_threshold": q.Threshold,
		"with_payload":    true,
	}
	if q.Category != "" {
		body["filter"] = ownerFilter(q.OwnerID, matchCond(keyCategory, string(q.Category)))
	} else {
		body["filter"] = ownerFilter(q.OwnerID)
	}

	var resp struct {
		Result []qdrantPoint `json:"result"`
	}
	if err := s.client.DoJSON(ctx, http.MethodPost, s.url(collection, "/points/search"), body, &resp); err != nil {
		return nil, fmt.Errorf("Qdrant 检索失败: %w", err)
	}

	out := make([]models.ScoredMemory, 0, len(resp.Result))
	for _, p := range resp.Result {
		out = append(out, models.ScoredMemory{MemoryRecord: fromPayload(p.ID, p.Payload), Score: p.Score})
	}
	return out, nil
}

func (s *QdrantStore) Scroll(ctx context.Context, collection, ownerID string, limit int) ([]models.MemoryRecord, error) {
	body := map[string]interface{}{
		"limit":        limit,
		"with_payload": true,
		"filter":       ownerFilter(ownerID),
	}
	var resp struct {
		Result struct {
			Points []qdrantPoint `json:"points"`
		} `json:"result"`
	}
	if err := s.client.DoJSON(ctx, http.MethodPost, s.url(collection, "/points/scroll"), body, &resp); err != nil {
		return nil, fmt.Errorf("Qdrant 遍历失败: %w", err)
	}

	out := make([]models.MemoryRecord, 0, len(resp.Result.Points))
	for _, p := range resp.Result.Points {
		out = append(out, fromPayload(p.ID, p.Payload))
	}
	return out, nil
}

// Delete 先用 ID 加 ownerId 的过滤条件确认记录归属，再按 ID 删除。
func (s *QdrantStore) Delete(ctx context.Context, collection, ownerID, id string) error {
	check := map[string]interface{}{
		"limit":        1,
		"with_payload": false,
		"filter":       ownerFilter(ownerID, qdrantCondition{HasID: []string{id}}),
	}
	var resp struct {
		Result struct {
			Points []qdrantPoint `json:"points"`
		} `json:"result"`
	}
	if err := s.client.DoJSON(ctx, http.MethodPost, s.url(collection, "/points/scroll"), check, &resp); err != nil {
		var se *pkghttp.StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return ErrNotFound
		}
		return fmt.Errorf("读取 Qdrant 记录失败: %w", err)
	}
	if len(resp.Result.Points) == 0 {
		return ErrNotFound
	}

	body := map[string]interface{}{"points": []string{id}}
	if err := s.client.DoJSON(ctx, http.MethodPost, s.url(collection, "/points/delete?wait=true"), body, nil); err != nil {
		return fmt.Errorf("删除 Qdrant 记录失败: %w", err)
	}
	return nil
}
