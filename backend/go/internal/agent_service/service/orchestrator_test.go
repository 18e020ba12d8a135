package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"Giorgio/backend/go/internal/checkpoint"
	"Giorgio/backend/go/internal/conversation"
	"Giorgio/backend/go/internal/llm/llmtest"
	"Giorgio/backend/go/internal/models"
	"Giorgio/backend/go/internal/todo"
	"Giorgio/backend/go/internal/tools"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSummary struct{ summary models.UserSummary }

func (f fakeSummary) GetUserSummary(ctx context.Context, ownerID string) models.UserSummary {
	return f.summary
}

type recordingSink struct {
	mu     sync.Mutex
	events []models.TurnEvent
}

func (r *recordingSink) Publish(ctx context.Context, ev models.TurnEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingSink) statuses() []models.TurnStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.TurnStatus
	for _, ev := range r.events {
		out = append(out, ev.Status)
	}
	return out
}

type recordingDispatcher struct {
	mu   sync.Mutex
	jobs []models.ExtractionJob
	err  error
}

func (d *recordingDispatcher) Submit(ctx context.Context, job models.ExtractionJob) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.jobs = append(d.jobs, job)
	return nil
}

type fixture struct {
	orch  *Orchestrator
	todos *todo.MemoryStore
	convs *conversation.MemoryStore
	cps   checkpoint.Checkpointer
	sink  *recordingSink
	jobs  *recordingDispatcher
	model *llmtest.Scripted
}

func newFixture(t *testing.T, h llmtest.Handler, summary models.UserSummary, opts Options) *fixture {
	t.Helper()
	return newFixtureWithCapacity(t, h, summary, opts, 16)
}

func newFixtureWithCapacity(t *testing.T, h llmtest.Handler, summary models.UserSummary, opts Options, capacity int) *fixture {
	t.Helper()
	cps, err := checkpoint.NewMemory(capacity, time.Hour)
	require.NoError(t, err)
	f := &fixture{
		todos: todo.NewMemoryStore(),
		convs: conversation.NewMemoryStore(conversation.StaticDescriber),
		cps:   cps,
		sink:  &recordingSink{},
		jobs:  &recordingDispatcher{},
		model: llmtest.New(h),
	}
	f.orch = NewOrchestrator(Deps{
		LLM:           f.model,
		Tools:         tools.NewRegistry(tools.Deps{Todos: f.todos}),
		Memory:        fakeSummary{summary: summary},
		Checkpoints:   f.cps,
		Conversations: f.convs,
		Dispatcher:    f.jobs,
		Events:        f.sink,
		Locker:        NewLocalLocker(),
	}, opts)
	return f
}

func TestHandleTurnWithToolCall(t *testing.T) {
	f := newFixture(t, func(ctx context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error) {
		if llmtest.HasToolResult(req) {
			return llmtest.Text("Ho creato la lista Spesa."), nil
		}
		return llmtest.Calls(models.FunctionCall{ID: "c1", Name: "create_todo_list", Args: map[string]any{"name": "Spesa"}}), nil
	}, models.UserSummary{}, Options{})

	msg := "Crea una todo list chiamata Spesa per favore"
	res := f.orch.HandleTurn(context.Background(), models.TurnRequest{Message: msg, OwnerID: "u1"})
	assert.Equal(t, "Ho creato la lista Spesa.", res.Reply)
	require.NotEmpty(t, res.ThreadID)

	lists, err := f.todos.FindAll(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, lists, 1)
	assert.Equal(t, "Spesa", lists[0].Name)

	reqs := f.model.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, SystemPrompt, reqs[0].SystemInstruction)
	assert.NotEmpty(t, reqs[0].Tools)
	last := reqs[1].Contents[len(reqs[1].Contents)-1]
	assert.True(t, strings.HasPrefix(last.Parts[0].FunctionResponse.Output(), "✅ Todo list \"Spesa\" creata"))

	conv, err := f.orch.GetConversation(context.Background(), res.ThreadID, "u1")
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, msg, conv.Messages[0].Content)
	assert.Equal(t, "Ho creato la lista Spesa.", conv.Messages[1].Content)

	cp, err := f.cps.Load(context.Background(), res.ThreadID, "u1")
	require.NoError(t, err)
	assert.Len(t, cp.Contents, 4)

	require.Len(t, f.jobs.jobs, 1)
	assert.Equal(t, "conversation_"+res.ThreadID, f.jobs.jobs[0].Source)
	assert.Equal(t, msg, f.jobs.jobs[0].Text)

	assert.Equal(t, []models.TurnStatus{
		models.TurnReceived, models.TurnToolsBound,
		models.TurnReasoning, models.TurnCallingTool, models.TurnObserving,
		models.TurnReasoning, models.TurnReplyExtracted, models.TurnPersisted,
		models.TurnMemorySubmitted, models.TurnDone,
	}, f.sink.statuses())
}

func TestHandleTurnContinuesThread(t *testing.T) {
	f := newFixture(t, func(ctx context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error) {
		return llmtest.Text("eco: " + llmtest.LastUserText(req)), nil
	}, models.UserSummary{}, Options{})

	first := f.orch.HandleTurn(context.Background(), models.TurnRequest{Message: "ciao", OwnerID: "u1"})
	second := f.orch.HandleTurn(context.Background(), models.TurnRequest{Message: "come stai", ThreadID: first.ThreadID, OwnerID: "u1"})
	assert.Equal(t, first.ThreadID, second.ThreadID)
	assert.Equal(t, "eco: come stai", second.Reply)

	reqs := f.model.Requests()
	require.Len(t, reqs, 2)
	assert.Len(t, reqs[1].Contents, 3)

	conv, err := f.orch.GetConversation(context.Background(), first.ThreadID, "u1")
	require.NoError(t, err)
	assert.Len(t, conv.Messages, 4)
	assert.Empty(t, f.jobs.jobs)
}

func TestHandleTurnAugmentsOnlyNewThreads(t *testing.T) {
	summary := models.UserSummary{Summary: "Si chiama Marco.", TotalMemories: 2}
	f := newFixture(t, func(ctx context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error) {
		return llmtest.Text("ok"), nil
	}, summary, Options{})

	first := f.orch.HandleTurn(context.Background(), models.TurnRequest{Message: "ciao", OwnerID: "u1"})
	f.orch.HandleTurn(context.Background(), models.TurnRequest{Message: "ancora", ThreadID: first.ThreadID, OwnerID: "u1"})

	reqs := f.model.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, WithUserContext(SystemPrompt, "Si chiama Marco."), reqs[0].SystemInstruction)
	assert.Equal(t, SystemPrompt, reqs[1].SystemInstruction)
	assert.Contains(t, f.sink.statuses(), models.TurnContextAugmented)
}

func TestHandleTurnSkipsEmptySummary(t *testing.T) {
	f := newFixture(t, func(ctx context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error) {
		return llmtest.Text("ok"), nil
	}, models.UserSummary{Summary: "Nessuna memoria", TotalMemories: 0}, Options{})

	f.orch.HandleTurn(context.Background(), models.TurnRequest{Message: "ciao", OwnerID: "u1"})
	assert.Equal(t, SystemPrompt, f.model.Requests()[0].SystemInstruction)
	assert.NotContains(t, f.sink.statuses(), models.TurnContextAugmented)
}

func TestHandleTurnMaxIterations(t *testing.T) {
	f := newFixture(t, func(ctx context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error) {
		return llmtest.Calls(models.FunctionCall{Name: "get_todo_lists", Args: map[string]any{"request": "tutte"}}), nil
	}, models.UserSummary{}, Options{MaxIterations: 3})

	res := f.orch.HandleTurn(context.Background(), models.TurnRequest{Message: "elenca tutte le mie liste di cose", OwnerID: "u1"})
	assert.Equal(t, ReplyGenerationError, res.Reply)
	assert.NotEmpty(t, res.ThreadID)
	assert.Equal(t, 3, f.model.CallCount())

	statuses := f.sink.statuses()
	assert.Equal(t, models.TurnError, statuses[len(statuses)-1])

	conv, err := f.convs.Get(context.Background(), res.ThreadID, "u1")
	require.NoError(t, err)
	assert.Nil(t, conv)
	assert.Empty(t, f.jobs.jobs)
}

func TestHandleTurnModelFailure(t *testing.T) {
	f := newFixture(t, func(ctx context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error) {
		return nil, errors.New("quota esaurita")
	}, models.UserSummary{}, Options{})

	res := f.orch.HandleTurn(context.Background(), models.TurnRequest{Message: "ciao", ThreadID: "t-1", OwnerID: "u1"})
	assert.Equal(t, ReplyGenerationError, res.Reply)
	assert.Equal(t, "t-1", res.ThreadID)
}

func TestHandleTurnEmptyResponses(t *testing.T) {
	f := newFixture(t, func(ctx context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error) {
		return &models.GenerateContentResponse{}, nil
	}, models.UserSummary{}, Options{})
	res := f.orch.HandleTurn(context.Background(), models.TurnRequest{Message: "ciao", OwnerID: "u1"})
	assert.Equal(t, ReplyNoMessage, res.Reply)

	assert.Equal(t, ReplyNoText, ExtractReply(&models.Content{Role: models.SpeakerModel}))
}

func TestHandleTurnForeignThread(t *testing.T) {
	f := newFixture(t, func(ctx context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error) {
		return llmtest.Text("ok"), nil
	}, models.UserSummary{}, Options{})

	first := f.orch.HandleTurn(context.Background(), models.TurnRequest{Message: "ciao", OwnerID: "u1"})
	res := f.orch.HandleTurn(context.Background(), models.TurnRequest{Message: "ciao", ThreadID: first.ThreadID, OwnerID: "u2"})
	assert.Equal(t, ReplyGenerationError, res.Reply)
	assert.Equal(t, 1, f.model.CallCount())
}

func TestHandleTurnForeignThreadAfterEviction(t *testing.T) {
	f := newFixtureWithCapacity(t, func(ctx context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error) {
		return llmtest.Text("eco: " + llmtest.LastUserText(req)), nil
	}, models.UserSummary{}, Options{}, 1)
	ctx := context.Background()

	first := f.orch.HandleTurn(ctx, models.TurnRequest{Message: "ciao", OwnerID: "anna"})
	// il thread di carla espelle il checkpoint di anna
	f.orch.HandleTurn(ctx, models.TurnRequest{Message: "salve", OwnerID: "carla"})
	cp, err := f.cps.Load(ctx, first.ThreadID, "anna")
	require.NoError(t, err)
	require.Nil(t, cp)

	res := f.orch.HandleTurn(ctx, models.TurnRequest{Message: "rubo", ThreadID: first.ThreadID, OwnerID: "bruno"})
	assert.Equal(t, ReplyGenerationError, res.Reply)
	assert.Equal(t, 2, f.model.CallCount())
	_, err = f.cps.Load(ctx, first.ThreadID, "bruno")
	assert.NoError(t, err)
	foreign, err := f.orch.GetConversation(ctx, first.ThreadID, "bruno")
	assert.Error(t, err)
	assert.Nil(t, foreign)

	again := f.orch.HandleTurn(ctx, models.TurnRequest{Message: "ci sono", ThreadID: first.ThreadID, OwnerID: "anna"})
	assert.Equal(t, "eco: ci sono", again.Reply)
	conv, err := f.orch.GetConversation(ctx, first.ThreadID, "anna")
	require.NoError(t, err)
	assert.Len(t, conv.Messages, 4)
	cp, err = f.cps.Load(ctx, first.ThreadID, "anna")
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, "anna", cp.OwnerID)
}

func TestExtractionLengthGate(t *testing.T) {
	f := newFixture(t, func(ctx context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error) {
		return llmtest.Text("ok"), nil
	}, models.UserSummary{}, Options{MinExtractLength: 10})

	f.orch.HandleTurn(context.Background(), models.TurnRequest{Message: "àèìòùàèì", OwnerID: "u1"})
	assert.Empty(t, f.jobs.jobs)
	f.orch.HandleTurn(context.Background(), models.TurnRequest{Message: "àèìòùàèìòù", OwnerID: "u1"})
	assert.Len(t, f.jobs.jobs, 1)

	f.jobs.err = ErrQueueFull
	res := f.orch.HandleTurn(context.Background(), models.TurnRequest{Message: "un messaggio abbastanza lungo", OwnerID: "u1"})
	assert.Equal(t, "ok", res.Reply)
	assert.NotContains(t, f.sink.statuses()[len(f.sink.statuses())-2:], models.TurnMemorySubmitted)
}

func TestConversationManagement(t *testing.T) {
	f := newFixture(t, func(ctx context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error) {
		return llmtest.Text("ok"), nil
	}, models.UserSummary{}, Options{})
	ctx := context.Background()

	a := f.orch.HandleTurn(ctx, models.TurnRequest{Message: "primo", OwnerID: "u1"})
	f.orch.HandleTurn(ctx, models.TurnRequest{Message: "secondo", OwnerID: "u1"})

	list, err := f.orch.ListConversations(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = f.orch.GetConversation(ctx, a.ThreadID, "u2")
	assert.ErrorIs(t, err, models.ErrNotFound)

	out, err := f.orch.DeleteConversation(ctx, a.ThreadID, "u2")
	require.NoError(t, err)
	assert.Equal(t, models.DeleteOutcome{Success: false, Message: ConversationNotFound}, out)

	out, err = f.orch.DeleteConversation(ctx, a.ThreadID, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.DeleteOutcome{Success: true, Message: ConversationDeleted}, out)

	cp, err := f.cps.Load(ctx, a.ThreadID, "u1")
	require.NoError(t, err)
	assert.Nil(t, cp)

	list, err = f.orch.ListConversations(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
