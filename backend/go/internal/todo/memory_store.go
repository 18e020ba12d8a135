package todo

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"Giorgio/backend/go/internal/models"

	"github.com/google/uuid"
)

// MemoryStore 是进程内的待办存储。
type MemoryStore struct {
	mu    sync.RWMutex
	lists map[string]*models.TodoList
	now   func() time.Time
}

// NewMemoryStore 创建空的内存清单存储。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{lists: make(map[string]*models.TodoList), now: time.Now}
}

func cloneList(l *models.TodoList) *models.TodoList {
	cp := *l
	cp.Tasks = append([]models.Task(nil), l.Tasks...)
	return &cp
}

func (s *MemoryStore) Create(ctx context.Context, ownerID string, in models.NewTodoList) (*models.TodoList, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	l := &models.TodoList{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Name:      in.Name,
		Emoji:     in.Emoji,
		Tasks:     []models.Task{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, t := range in.Tasks {
		l.Tasks = append(l.Tasks, prepareTask(t, uuid.NewString(), now))
	}
	s.lists[l.ID] = l
	return cloneList(l), nil
}

func (s *MemoryStore) FindAll(ctx context.Context, ownerID string) ([]models.TodoList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.TodoList{}
	for _, l := range s.lists {
		if l.OwnerID == ownerID {
			out = append(out, *cloneList(l))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) FindByName(ctx context.Context, ownerID, name string) (*models.TodoList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, l := range s.lists {
		if l.OwnerID == ownerID && strings.EqualFold(l.Name, name) {
			return cloneList(l), nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *MemoryStore) owned(ownerID, listID string) (*models.TodoList, error) {
	l, ok := s.lists[listID]
	if !ok || l.OwnerID != ownerID {
		return nil, models.ErrNotFound
	}
	return l, nil
}

func (s *MemoryStore) AddTask(ctx context.Context, ownerID, listID string, task models.Task) (*models.TodoList, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.owned(ownerID, listID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	l.Tasks = append(l.Tasks, prepareTask(task, uuid.NewString(), now))
	l.UpdatedAt = now
	return cloneList(l), nil
}

func (s *MemoryStore) ToggleTask(ctx context.Context, ownerID, listID, taskID string) (*models.TodoList, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.owned(ownerID, listID)
	if err != nil {
		return nil, err
	}
	t := l.FindTask(taskID)
	if t == nil {
		return nil, models.ErrNotFound
	}
	t.Completed = !t.Completed
	l.UpdatedAt = s.now().UTC()
	return cloneList(l), nil
}
