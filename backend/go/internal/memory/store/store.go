package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"Giorgio/backend/go/internal/models"
)

// ErrNotFound 表示记录不存在或不属于该用户。
var ErrNotFound = errors.New("记忆不存在")

// Query 是向量检索的过滤条件。OwnerID 必填，Category 为空表示不过滤。
type Query struct {
	OwnerID   string
	Limit     int
	Category  models.MemoryCategory
	Threshold float64
}

// VectorStore 按集合保存记忆向量及其元数据，每个用户一个集合。
type VectorStore interface {
	// EnsureCollection 在集合不存在时以余弦距离创建，并发调用必须安全。
	EnsureCollection(ctx context.Context, collection string, dim int) error
	// Upsert 按记录ID写入或覆盖。
	Upsert(ctx context.Context, collection string, rec *models.MemoryRecord, vector []float32) error
	// Search 返回 q.OwnerID 名下相似度不低于阈值的记录，按相似度降序。
	Search(ctx context.Context, collection string, vector []float32, q Query) ([]models.ScoredMemory, error)
	// Scroll 返回 ownerID 名下最多 limit 条记录，顺序不保证。
	Scroll(ctx context.Context, collection, ownerID string, limit int) ([]models.MemoryRecord, error)
	// Delete 删除 ownerID 名下的一条记录。记录不存在或属于他人时返回 ErrNotFound。
	Delete(ctx context.Context, collection, ownerID, id string) error
}

// CollectionName 返回用户记忆集合名。
//
// 参数:
//
//	ownerID: 用户ID
//
// 返回值:
//
//	string: 只由字母数字组成的ID直接拼在 "user_memories_" 之后；
//	其他ID使用 "user_memories_h_" 加 SHA-256 十六进制，两种形式互不相交。
func CollectionName(ownerID string) string {
	if ownerID != "" && isAlnum(ownerID) {
		return "user_memories_" + ownerID
	}
	sum := sha256.Sum256([]byte(ownerID))
	return "user_memories_h_" + hex.EncodeToString(sum[:])
}

func isAlnum(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9') {
			return false
		}
	}
	return true
}

// 载荷字段名，各后端共用。
const (
	keyContent      = "content"
	keyCategory     = "category"
	keyImportance   = "importance"
	keySource       = "source"
	keyOwnerID      = "ownerId"
	keyCreatedAt    = "createdAt"
	keyLastAccessed = "lastAccessed"
	keyAccessCount  = "accessCount"
)

// toPayload 把记录转换为字符串载荷。chromem 只支持字符串元数据，其他后端复用同一格式。
func toPayload(rec *models.MemoryRecord) map[string]string {
	return map[string]string{
		keyContent:      rec.Content,
		keyCategory:     string(rec.Category),
		keyImportance:   strconv.Itoa(rec.Importance),
		keySource:       rec.Source,
		keyOwnerID:      rec.OwnerID,
		keyCreatedAt:    rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		keyLastAccessed: rec.LastAccessed.UTC().Format(time.RFC3339Nano),
		keyAccessCount:  strconv.Itoa(rec.AccessCount),
	}
}

// fromPayload 还原记录，缺失或非法字段取默认值。
func fromPayload(id string, p map[string]string) models.MemoryRecord {
	rec := models.MemoryRecord{
		ID:       id,
		OwnerID:  p[keyOwnerID],
		Content:  p[keyContent],
		Category: models.ParseCategory(p[keyCategory]),
		Source:   p[keySource],
	}
	rec.Importance, _ = strconv.Atoi(p[keyImportance])
	rec.Importance = models.ClampImportance(rec.Importance)
	rec.AccessCount, _ = strconv.Atoi(p[keyAccessCount])
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, p[keyCreatedAt])
	rec.LastAccessed, _ = time.Parse(time.RFC3339Nano, p[keyLastAccessed])
	return rec
}
