// Package todo 保存用户的待办清单，支持 MongoDB、MySQL 和内存三种后端。
package todo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"Giorgio/backend/go/internal/config"
	"Giorgio/backend/go/internal/models"
)

// Store 是待办清单存储。所有操作都按 ownerID 隔离，
// 清单或任务不存在、不属于该用户时返回 models.ErrNotFound。
type Store interface {
	Create(ctx context.Context, ownerID string, in models.NewTodoList) (*models.TodoList, error)
	FindAll(ctx context.Context, ownerID string) ([]models.TodoList, error)
	// FindByName 按名称做不区分大小写的精确匹配。
	FindByName(ctx context.Context, ownerID, name string) (*models.TodoList, error)
	// AddTask 把任务追加到清单末尾，返回更新后的清单。
	AddTask(ctx context.Context, ownerID, listID string, task models.Task) (*models.TodoList, error)
	// ToggleTask 翻转任务完成状态，返回更新后的清单。
	ToggleTask(ctx context.Context, ownerID, listID, taskID string) (*models.TodoList, error)
}

// Backends 汇总可选后端的构造函数，由调用方按需提供。
type Backends struct {
	Mongo func() (Store, error)
	MySQL func() (Store, error)
}

// NewStore 按配置选择后端。
func NewStore(cfg config.TodoConfig, b Backends) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "memory":
		return NewMemoryStore(), nil
	case "mongo":
		if b.Mongo == nil {
			return nil, fmt.Errorf("未提供 mongo 待办后端")
		}
		return b.Mongo()
	case "mysql":
		if b.MySQL == nil {
			return nil, fmt.Errorf("未提供 mysql 待办后端")
		}
		return b.MySQL()
	default:
		return nil, fmt.Errorf("不支持的待办后端: %s", cfg.Backend)
	}
}

// prepareTask 填充新任务的ID、创建时间和默认优先级。新任务总是未完成。
func prepareTask(task models.Task, id string, now time.Time) models.Task {
	task.ID = id
	task.Title = strings.TrimSpace(task.Title)
	task.Priority = models.ParsePriority(string(task.Priority))
	task.Completed = false
	task.CreatedAt = now
	return task
}
