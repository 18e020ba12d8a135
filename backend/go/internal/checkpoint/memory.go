package checkpoint

import (
	"context"
	"sync"
	"time"

	"Giorgio/backend/go/internal/models"
	"Giorgio/backend/go/pkg/util"
)

// Memory 把检查点保存在带 TTL 的 LRU 中，超出容量时淘汰最久未使用的线程。
type Memory struct {
	mu    sync.Mutex
	cache *util.LRUCache[string, models.Checkpoint]
}

// NewMemory 创建进程内检查点存储。
//
// 参数:
//
//	capacity: 最多保存的线程数，<=0 时为 1000
//	ttl: 检查点存活时间，0 表示不过期
//
// 返回值:
//
//	*Memory: 存储实例
//	error: LRU 配置非法时返回
func NewMemory(capacity int, ttl time.Duration) (*Memory, error) {
	if capacity <= 0 {
		capacity = 1000
	}
	cache, err := util.NewWithConfig(util.CacheConfig[string, models.Checkpoint]{
		Capacity: capacity,
		TTL:      ttl,
	})
	if err != nil {
		return nil, err
	}
	return &Memory{cache: cache}, nil
}

func (m *Memory) Load(ctx context.Context, threadID, ownerID string) (*models.Checkpoint, error) {
	cp, ok := m.cache.Get(threadID)
	if !ok {
		return nil, nil
	}
	cp.Contents = append([]models.Content(nil), cp.Contents...)
	return checkOwner(&cp, ownerID)
}

func (m *Memory) Save(ctx context.Context, cp *models.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.cache.Get(cp.ThreadID); ok && cur.OwnerID != cp.OwnerID {
		return models.ErrNotFound
	}
	stored := *cp
	stored.Contents = append([]models.Content(nil), cp.Contents...)
	m.cache.Put(cp.ThreadID, stored, 1)
	return nil
}

func (m *Memory) Delete(ctx context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Delete(threadID)
	return nil
}
