package todo

import (
	"context"
	"errors"
	"testing"
	"time"

	"Giorgio/backend/go/internal/config"
	"Giorgio/backend/go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStoreSelectsBackend(t *testing.T) {
	s, err := NewStore(config.TodoConfig{}, Backends{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	_, err = NewStore(config.TodoConfig{Backend: "mongo"}, Backends{})
	assert.Error(t, err)

	boom := errors.New("down")
	_, err = NewStore(config.TodoConfig{Backend: "MySQL"}, Backends{
		MySQL: func() (Store, error) { return nil, boom },
	})
	assert.ErrorIs(t, err, boom)

	_, err = NewStore(config.TodoConfig{Backend: "postgres"}, Backends{})
	assert.Error(t, err)
}

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	tick := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { tick = tick.Add(time.Second); return tick }

	spesa, err := s.Create(ctx, "u1", models.NewTodoList{Name: "Spesa", Emoji: "🛒", Tasks: []models.Task{
		{Title: "  latte ", Priority: "HIGH", Completed: true},
	}})
	require.NoError(t, err)
	require.Len(t, spesa.Tasks, 1)
	assert.Equal(t, "latte", spesa.Tasks[0].Title)
	assert.Equal(t, models.PriorityHigh, spesa.Tasks[0].Priority)
	assert.False(t, spesa.Tasks[0].Completed)

	_, err = s.Create(ctx, "u1", models.NewTodoList{Name: "Lavoro"})
	require.NoError(t, err)
	_, err = s.Create(ctx, "u2", models.NewTodoList{Name: "Spesa"})
	require.NoError(t, err)

	all, err := s.FindAll(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Spesa", all[0].Name)
	assert.Equal(t, "Lavoro", all[1].Name)

	found, err := s.FindByName(ctx, "u1", "spesa")
	require.NoError(t, err)
	assert.Equal(t, spesa.ID, found.ID)
	_, err = s.FindByName(ctx, "u1", "Spes")
	assert.ErrorIs(t, err, models.ErrNotFound)

	updated, err := s.AddTask(ctx, "u1", spesa.ID, models.Task{Title: "pane", Priority: "boh"})
	require.NoError(t, err)
	require.Len(t, updated.Tasks, 2)
	assert.Equal(t, models.PriorityMedium, updated.Tasks[1].Priority)

	_, err = s.AddTask(ctx, "u2", spesa.ID, models.Task{Title: "intruso"})
	assert.ErrorIs(t, err, models.ErrNotFound)

	toggled, err := s.ToggleTask(ctx, "u1", spesa.ID, updated.Tasks[1].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, toggled.CompletedCount())

	_, err = s.ToggleTask(ctx, "u1", spesa.ID, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
	again, err := s.FindByName(ctx, "u1", "Spesa")
	require.NoError(t, err)
	assert.Equal(t, 1, again.CompletedCount())
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	l, err := s.Create(ctx, "u1", models.NewTodoList{Name: "Casa", Tasks: []models.Task{{Title: "pulire"}}})
	require.NoError(t, err)
	l.Tasks[0].Title = "modificato"

	fresh, err := s.FindByName(ctx, "u1", "casa")
	require.NoError(t, err)
	assert.Equal(t, "pulire", fresh.Tasks[0].Title)
}
