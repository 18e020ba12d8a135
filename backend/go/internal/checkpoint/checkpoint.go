// Package checkpoint 保存每个对话线程推理循环的状态，使后续轮次能接着之前的历史继续。
package checkpoint

import (
	"context"
	"fmt"
	"strings"
	"time"

	"Giorgio/backend/go/internal/config"
	"Giorgio/backend/go/internal/models"
)

// Checkpointer 按 threadId 读写检查点。
type Checkpointer interface {
	// Load 在没有检查点时返回 (nil, nil)；检查点属于其他用户时返回 models.ErrNotFound。
	Load(ctx context.Context, threadID, ownerID string) (*models.Checkpoint, error)
	// Save 写入检查点；同一线程已有其他用户的检查点时不写入并返回 models.ErrNotFound。
	Save(ctx context.Context, cp *models.Checkpoint) error
	Delete(ctx context.Context, threadID string) error
}

// Backends 提供可选后端的构造函数。
type Backends struct {
	Mongo func() (Checkpointer, error)
	Redis func(ttl time.Duration) (Checkpointer, error)
}

// New 按 agent.checkpoint 选择后端。
func New(cfg config.AgentConfig, b Backends) (Checkpointer, error) {
	ttl := config.Duration(cfg.CheckpointTTL, 24*time.Hour)
	switch strings.ToLower(cfg.Checkpoint) {
	case "", "memory":
		return NewMemory(cfg.CheckpointCap, ttl)
	case "mongo":
		if b.Mongo == nil {
			return nil, fmt.Errorf("未提供 mongo 检查点后端")
		}
		return b.Mongo()
	case "redis":
		if b.Redis == nil {
			return nil, fmt.Errorf("未提供 redis 检查点后端")
		}
		return b.Redis(ttl)
	default:
		return nil, fmt.Errorf("不支持的检查点后端: %s", cfg.Checkpoint)
	}
}

func checkOwner(cp *models.Checkpoint, ownerID string) (*models.Checkpoint, error) {
	if cp == nil {
		return nil, nil
	}
	if cp.OwnerID != ownerID {
		return nil, models.ErrNotFound
	}
	return cp, nil
}
