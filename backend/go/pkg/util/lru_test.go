package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	var evicted []string
	c, err := NewWithConfig(CacheConfig[string, int]{
		Capacity: 2,
		OnEvict:  func(k string, _ int) { evicted = append(evicted, k) },
	})
	require.NoError(t, err)

	c.Put("a", 1, 1)
	c.Put("b", 2, 1)
	_, _ = c.Get("a")
	c.Put("c", 3, 1)

	_, ok := c.Get("b")
	assert.False(t, ok)
	assert.Equal(t, []string{"b"}, evicted)
	assert.Equal(t, 2, c.Len())
}

func TestLRUWeightLimit(t *testing.T) {
	c, err := NewWithConfig(CacheConfig[string, string]{MaxWeight: 10})
	require.NoError(t, err)

	c.Put("small", "x", 3)
	c.Put("big", "y", 9)
	_, ok := c.Get("small")
	assert.False(t, ok)
	assert.Equal(t, 9, c.Weight())
}

func TestLRUTTLAndDelete(t *testing.T) {
	c, err := NewWithConfig(CacheConfig[string, int]{Capacity: 10, TTL: time.Minute})
	require.NoError(t, err)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	c.Put("k", 1, 1)
	c.Put("d", 2, 1)
	assert.True(t, c.Delete("d"))
	assert.False(t, c.Delete("d"))

	v, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, c.PurgeExpired())
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestLRURequiresLimit(t *testing.T) {
	_, err := NewWithConfig(CacheConfig[int, int]{})
	assert.Error(t, err)
}
