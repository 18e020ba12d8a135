package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"Giorgio/backend/go/internal/models"

	"github.com/go-redis/redis/v8"
)

const redisKeyPrefix = "giorgio:checkpoint:"

// Redis 把检查点序列化为 JSON 保存，每次写入都会刷新 TTL。
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// saveRetries 是 WATCH 冲突时的最大重试次数。
const saveRetries = 3

// NewRedis 创建 Redis 检查点存储。ttl 为 0 表示不过期。
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func (r *Redis) key(threadID string) string {
	return redisKeyPrefix + threadID
}

func (r *Redis) Load(ctx context.Context, threadID, ownerID string) (*models.Checkpoint, error) {
	raw, err := r.client.Get(ctx, r.key(threadID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取检查点失败: %w", err)
	}
	var cp models.Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, fmt.Errorf("解析检查点失败: %w", err)
	}
	return checkOwner(&cp, ownerID)
}

// Save 在 WATCH 事务中核对已有检查点的归属后写入。
func (r *Redis) Save(ctx context.Context, cp *models.Checkpoint) error {
	raw, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	key := r.key(cp.ThreadID)
	txf := func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			var existing models.Checkpoint
			if err := json.Unmarshal(cur, &existing); err == nil && existing.OwnerID != cp.OwnerID {
				return models.ErrNotFound
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, r.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < saveRetries; i++ {
		err = r.client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("写入检查点冲突: %w", err)
}

func (r *Redis) Delete(ctx context.Context, threadID string) error {
	return r.client.Del(ctx, r.key(threadID)).Err()
}
