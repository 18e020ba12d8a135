package extractor

import (
	"context"
	"strings"
	"testing"

	"Giorgio/backend/go/internal/llm/llmtest"
	"Giorgio/backend/go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCandidates(t *testing.T) {
	got, err := ParseCandidates("```json\n[{\"content\":\"L'utente si chiama Marco\",\"category\":\"personal\",\"importance\":8}]\n```")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "L'utente si chiama Marco", got[0].Content)
	assert.Equal(t, 8, got[0].Importance)

	got, err = ParseCandidates("[]")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = ParseCandidates("non è json")
	assert.Error(t, err)

	_, err = ParseCandidates(`{"content":"oggetto"}`)
	assert.Error(t, err)
}

func TestParseCandidatesLooseImportance(t *testing.T) {
	got, err := ParseCandidates(`[
		{"content":"Ama il jazz","category":"preferences","importance":7.5},
		{"content":"Vive a Torino","category":"personal","importance":"8"},
		{"content":"Ha un gatto","category":"personal","importance":"molto"},
		{"content":"Corre la domenica","category":"other"}
	]`)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, 8, got[0].Importance)
	assert.Equal(t, 8, got[1].Importance)
	assert.Equal(t, 0, got[2].Importance)
	assert.Equal(t, 0, got[3].Importance)
	assert.Equal(t, "Vive a Torino", got[1].Content)
}

func TestLLMExtractor(t *testing.T) {
	fake := llmtest.New(func(ctx context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error) {
		return llmtest.Text("```\n[{\"content\":\"Lavora come medico\",\"category\":\"work\",\"importance\":6}]\n```"), nil
	})
	got, err := NewLLMExtractor(fake).Extract(context.Background(), "Sono medico da dieci anni")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "work", got[0].Category)

	prompt := llmtest.LastUserText(fake.Requests()[0])
	assert.True(t, strings.Contains(prompt, "Sono medico da dieci anni"))
}
