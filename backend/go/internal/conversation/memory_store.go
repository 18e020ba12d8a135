package conversation

import (
	"context"
	"sort"
	"sync"
	"time"

	"Giorgio/backend/go/internal/models"
)

// MemoryStore 是进程内实现，用于开发和测试。
type MemoryStore struct {
	mu       sync.Mutex
	threads  map[string]*models.Conversation
	describe Describer
	now      func() time.Time
}

// NewMemoryStore 创建空存储。describe 为空时使用兜底描述。
func NewMemoryStore(describe Describer) *MemoryStore {
	if describe == nil {
		describe = StaticDescriber
	}
	return &MemoryStore{threads: make(map[string]*models.Conversation), describe: describe, now: time.Now}
}

func clone(c *models.Conversation) *models.Conversation {
	cp := *c
	cp.Messages = append([]models.ConversationMessage(nil), c.Messages...)
	return &cp
}

func (s *MemoryStore) appendLocked(c *models.Conversation, ownerID, userMessage, reply string) error {
	if c.OwnerID != ownerID {
		return models.ErrNotFound
	}
	now := nextUpdated(s.now().UTC(), c.LastUpdated)
	c.Messages = append(c.Messages, newMessages(userMessage, reply, now)...)
	c.MessageCount += 2
	c.Step++
	c.LastUpdated = now
	return nil
}

func (s *MemoryStore) Append(ctx context.Context, ownerID, threadID, userMessage, reply string) error {
	s.mu.Lock()
	if c, ok := s.threads[threadID]; ok {
		defer s.mu.Unlock()
		return s.appendLocked(c, ownerID, userMessage, reply)
	}
	s.mu.Unlock()

	// 描述生成可能很慢，不持有锁。
	description := s.describe(ctx, userMessage, reply)

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.threads[threadID]; ok {
		return s.appendLocked(c, ownerID, userMessage, reply)
	}
	now := s.now().UTC()
	s.threads[threadID] = &models.Conversation{
		ThreadID:     threadID,
		OwnerID:      ownerID,
		Messages:     newMessages(userMessage, reply, now),
		MessageCount: 2,
		Step:         1,
		Description:  description,
		CreatedAt:    now,
		LastUpdated:  now,
	}
	return nil
}

func (s *MemoryStore) List(ctx context.Context, ownerID string) ([]models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Conversation{}
	for _, c := range s.threads {
		if c.OwnerID == ownerID {
			out = append(out, *clone(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastUpdated.After(out[j].LastUpdated) })
	return out, nil
}

func (s *MemoryStore) Get(ctx context.Context, threadID, ownerID string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.threads[threadID]
	if !ok || c.OwnerID != ownerID {
		return nil, nil
	}
	return clone(c), nil
}

func (s *MemoryStore) Delete(ctx context.Context, threadID, ownerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.threads[threadID]
	if !ok || c.OwnerID != ownerID {
		return false, nil
	}
	delete(s.threads, threadID)
	return true, nil
}

func (s *MemoryStore) Owner(ctx context.Context, threadID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.threads[threadID]; ok {
		return c.OwnerID, nil
	}
	return "", nil
}
