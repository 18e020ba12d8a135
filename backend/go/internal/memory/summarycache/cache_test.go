package summarycache

import (
	"context"
	"testing"
	"time"

	"Giorgio/backend/go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	at := time.Date(2025, 5, 2, 9, 30, 0, 0, time.UTC)
	in := &models.UserSummary{
		Summary:       "Marco è un ingegnere di Torino.\nAma il caffè.",
		TotalMemories: 3,
		Categories:    map[string]int{"personal": 2, "preferences": 1},
	}
	content := Encode("42", in, at)
	assert.Contains(t, content, "# User Summary - 42\nLast Updated: 2025-05-02T09:30:00Z\n\n## Summary\n")
	assert.Contains(t, content, "- Total Memories: 3\n")

	out, ok := Decode("42", content)
	require.True(t, ok)
	assert.Equal(t, in.Summary, out.Summary)
	assert.Equal(t, 3, out.TotalMemories)
	assert.Equal(t, in.Categories, out.Categories)
	assert.Equal(t, "42", out.OwnerID)
	assert.True(t, at.Equal(out.LastUpdated))
}

func TestDecodeMalformed(t *testing.T) {
	for name, content := range map[string]string{
		"no summary":     "# User Summary - 1\n## Stats\n- Total Memories: 1\n",
		"no stats":       "# User Summary - 1\n## Summary\nciao\n",
		"bad total":      "## Summary\nciao\n## Stats\n- Total Memories: molti\n",
		"bad categories": "## Summary\nciao\n## Stats\n- Total Memories: 1\n- Categories: {rotto\n",
		"empty":          "",
	} {
		t.Run(name, func(t *testing.T) {
			_, ok := Decode("1", content)
			assert.False(t, ok)
		})
	}
}

func TestCacheLifecycle(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	blobs := NewMemoryBlobStore()
	blobs.now = func() time.Time { return now }
	c := New(blobs, time.Hour)
	c.now = func() time.Time { return now }

	assert.False(t, c.IsValid(ctx, "42"))
	_, ok := c.Read(ctx, "42")
	assert.False(t, ok)

	require.NoError(t, c.Write(ctx, "42", &models.UserSummary{
		Summary: "Nessuna informazione memorizzata per questo utente.",
	}))
	assert.True(t, c.IsValid(ctx, "42"))
	got, ok := c.Read(ctx, "42")
	require.True(t, ok)
	assert.Equal(t, 0, got.TotalMemories)
	assert.Empty(t, got.Categories)

	now = now.Add(59 * time.Minute)
	assert.True(t, c.IsValid(ctx, "42"))
	now = now.Add(2 * time.Minute)
	assert.False(t, c.IsValid(ctx, "42"))

	require.NoError(t, c.Invalidate(ctx, "42"))
	require.NoError(t, c.Invalidate(ctx, "42"))
	assert.False(t, c.IsValid(ctx, "42"))
	assert.Equal(t, "user-summaries/42.md", Key("42"))
}

func TestWriteIfCurrent(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryBlobStore(), time.Hour)
	summary := &models.UserSummary{Summary: "Ama la montagna.", TotalMemories: 1, Categories: map[string]int{"preferences": 1}}

	gen, err := c.Generation(ctx, "42")
	require.NoError(t, err)
	assert.Empty(t, gen)

	ok, err := c.WriteIfCurrent(ctx, "42", summary, gen)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, c.IsValid(ctx, "42"))

	require.NoError(t, c.Invalidate(ctx, "42"))
	ok, err = c.WriteIfCurrent(ctx, "42", summary, gen)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, c.IsValid(ctx, "42"))

	fresh, err := c.Generation(ctx, "42")
	require.NoError(t, err)
	assert.NotEqual(t, gen, fresh)
	ok, err = c.WriteIfCurrent(ctx, "42", summary, fresh)
	require.NoError(t, err)
	assert.True(t, ok)
}
