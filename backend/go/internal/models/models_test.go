package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClampImportance(t *testing.T) {
	cases := map[int]int{0: 5, 15: 10, -3: 1, 1: 1, 10: 10, 7: 7}
	for in, want := range cases {
		assert.Equal(t, want, ClampImportance(in), "input %d", in)
	}
}

func TestParseCategory(t *testing.T) {
	assert.Equal(t, CategoryWork, ParseCategory(" Work "))
	assert.Equal(t, CategoryOther, ParseCategory(""))
	assert.Equal(t, CategoryOther, ParseCategory("hobby"))
}

func TestContentTextAndCalls(t *testing.T) {
	c := Content{Role: SpeakerModel, Parts: []*Part{
		{Text: "Ciao"},
		{Text: "pensiero", Thought: true},
		{FunctionCall: &FunctionCall{Name: "search_memory"}},
		{Text: "Marco"},
	}}
	assert.Equal(t, "Ciao Marco", c.Text())
	calls := c.FunctionCalls()
	if assert.Len(t, calls, 1) {
		assert.Equal(t, "search_memory", calls[0].Name)
	}
}

func TestTodoListCounts(t *testing.T) {
	l := TodoList{Tasks: []Task{{ID: "a", Completed: true}, {ID: "b"}}}
	assert.Equal(t, 1, l.CompletedCount())
	assert.NotNil(t, l.FindTask("b"))
	assert.Nil(t, l.FindTask("zzz"))
	assert.Equal(t, PriorityMedium, ParsePriority("urgent"))
}
