package todo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"Giorgio/backend/go/internal/models"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// todoListRow 是 MySQL 中的一行，任务以 JSON 列保存。
type todoListRow struct {
	ID        string                           `gorm:"primaryKey;size:36"`
	OwnerID   string                           `gorm:"size:64;index:idx_owner_created"`
	Name      string                           `gorm:"size:255"`
	Emoji     string                           `gorm:"size:32"`
	Tasks     datatypes.JSONSlice[models.Task] `gorm:"type:json"`
	CreatedAt time.Time                        `gorm:"index:idx_owner_created"`
	UpdatedAt time.Time
}

func (todoListRow) TableName() string { return collectionName }

func (r *todoListRow) model() *models.TodoList {
	tasks := []models.Task(r.Tasks)
	if tasks == nil {
		tasks = []models.Task{}
	}
	return &models.TodoList{
		ID:        r.ID,
		OwnerID:   r.OwnerID,
		Name:      r.Name,
		Emoji:     r.Emoji,
		Tasks:     tasks,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// MySQLStore 使用 GORM 保存待办清单。
type MySQLStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewMySQLStore 创建存储并自动迁移表结构。
func NewMySQLStore(db *gorm.DB) (*MySQLStore, error) {
	if err := db.AutoMigrate(&todoListRow{}); err != nil {
		return nil, fmt.Errorf("迁移 %s 表失败: %w", collectionName, err)
	}
	return &MySQLStore{db: db, now: time.Now}, nil
}

func (s *MySQLStore) Create(ctx context.Context, ownerID string, in models.NewTodoList) (*models.TodoList, error) {
	now := s.now().UTC()
	row := todoListRow{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Name:      in.Name,
		Emoji:     in.Emoji,
		Tasks:     datatypes.JSONSlice[models.Task]{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, t := range in.Tasks {
		row.Tasks = append(row.Tasks, prepareTask(t, uuid.NewString(), now))
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, err
	}
	return row.model(), nil
}

func (s *MySQLStore) FindAll(ctx context.Context, ownerID string) ([]models.TodoList, error) {
	var rows []todoListRow
	err := s.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("created_at ASC").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]models.TodoList, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].model())
	}
	return out, nil
}

func (s *MySQLStore) FindByName(ctx context.Context, ownerID, name string) (*models.TodoList, error) {
	var row todoListRow
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND LOWER(name) = LOWER(?)", ownerID, name).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return row.model(), nil
}

// mutate 在事务中锁定清单行并应用 fn。
func (s *MySQLStore) mutate(ctx context.Context, ownerID, listID string, fn func(row *todoListRow) error) (*models.TodoList, error) {
	var out *models.TodoList
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row todoListRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND owner_id = ?", listID, ownerID).
			First(&row).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.ErrNotFound
			}
			return err
		}
		if err := fn(&row); err != nil {
			return err
		}
		row.UpdatedAt = s.now().UTC()
		if err := tx.Model(&row).Select("tasks", "updated_at").Updates(&row).Error; err != nil {
			return err
		}
		out = row.model()
		return nil
	})
	return out, err
}

func (s *MySQLStore) AddTask(ctx context.Context, ownerID, listID string, task models.Task) (*models.TodoList, error) {
	return s.mutate(ctx, ownerID, listID, func(row *todoListRow) error {
		row.Tasks = append(row.Tasks, prepareTask(task, uuid.NewString(), s.now().UTC()))
		return nil
	})
}

func (s *MySQLStore) ToggleTask(ctx context.Context, ownerID, listID, taskID string) (*models.TodoList, error) {
	return s.mutate(ctx, ownerID, listID, func(row *todoListRow) error {
		for i := range row.Tasks {
			if row.Tasks[i].ID == taskID {
				row.Tasks[i].Completed = !row.Tasks[i].Completed
				return nil
			}
		}
		return models.ErrNotFound
	})
}
