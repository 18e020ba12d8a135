package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"Giorgio/backend/go/internal/agent_service/publisher"
	"Giorgio/backend/go/internal/memory/service"
	"Giorgio/backend/go/internal/models"
	"Giorgio/backend/go/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "segreto"

type fakeAgent struct {
	lastTurn models.TurnRequest
	convs    map[string]models.Conversation
}

func (f *fakeAgent) HandleTurn(ctx context.Context, req models.TurnRequest) models.TurnResult {
	f.lastTurn = req
	thread := req.ThreadID
	if thread == "" {
		thread = "nuovo"
	}
	return models.TurnResult{Reply: "Ciao!", ThreadID: thread}
}

func (f *fakeAgent) ListConversations(ctx context.Context, ownerID string) ([]models.Conversation, error) {
	var out []models.Conversation
	for _, c := range f.convs {
		if c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeAgent) GetConversation(ctx context.Context, threadID, ownerID string) (*models.Conversation, error) {
	c, ok := f.convs[threadID]
	if !ok || c.OwnerID != ownerID {
		return nil, models.ErrNotFound
	}
	return &c, nil
}

func (f *fakeAgent) DeleteConversation(ctx context.Context, threadID, ownerID string) (models.DeleteOutcome, error) {
	c, ok := f.convs[threadID]
	if !ok || c.OwnerID != ownerID {
		return models.DeleteOutcome{Success: false, Message: "Conversazione non trovata"}, nil
	}
	delete(f.convs, threadID)
	return models.DeleteOutcome{Success: true, Message: "Conversazione eliminata con successo"}, nil
}

type fakeMemories struct {
	stored []models.StoreMemoryInput
	query  models.SearchOptions
}

func (f *fakeMemories) StoreMemory(ctx context.Context, ownerID string, in models.StoreMemoryInput) (*models.MemoryRecord, error) {
	if strings.TrimSpace(in.Content) == "" {
		return nil, service.ErrEmptyContent
	}
	f.stored = append(f.stored, in)
	return &models.MemoryRecord{ID: "m1", OwnerID: ownerID, Content: in.Content}, nil
}

func (f *fakeMemories) SearchMemories(ctx context.Context, ownerID string, opts models.SearchOptions) models.SearchResult {
	f.query = opts
	return models.SearchResult{Query: opts.Query, Memories: []models.ScoredMemory{}}
}

func (f *fakeMemories) GetUserSummary(ctx context.Context, ownerID string) models.UserSummary {
	return models.UserSummary{OwnerID: ownerID, Summary: "Ama il jazz.", TotalMemories: 1}
}

func (f *fakeMemories) ListMemories(ctx context.Context, ownerID string, limit int) ([]models.MemoryRecord, error) {
	return nil, nil
}

func (f *fakeMemories) DeleteMemory(ctx context.Context, ownerID, memoryID string) models.DeleteOutcome {
	return models.DeleteOutcome{Success: true, Message: service.MemoryDeleted}
}

func (f *fakeMemories) ExtractMemoriesFromText(ctx context.Context, ownerID, text, source string) []models.MemoryRecord {
	return []models.MemoryRecord{{ID: "m2", OwnerID: ownerID, Content: text, Source: source}}
}

func token(t *testing.T, sub interface{}) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": sub}).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func newRouter(agent *fakeAgent, mem *fakeMemories, conns *publisher.ConnectionManager, limiter ratelimiter.KeyedRateLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return SetupRouter(NewHandler(agent, mem, conns), secret, limiter)
}

func do(r http.Handler, method, path, tok string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	agent := &fakeAgent{}
	r := newRouter(agent, &fakeMemories{}, nil, nil)

	w := do(r, http.MethodPost, "/api/v1/giorgio/chat", "", ChatRequest{Message: "ciao"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	bad, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1"}).SignedString([]byte("altro"))
	require.NoError(t, err)
	w = do(r, http.MethodPost, "/api/v1/giorgio/chat", bad, ChatRequest{Message: "ciao"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodPost, "/api/v1/giorgio/chat", token(t, 42), ChatRequest{Message: "ciao"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "42", agent.lastTurn.OwnerID)

	w = do(r, http.MethodPost, "/api/v1/giorgio/chat", token(t, ""), ChatRequest{Message: "ciao"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthz(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHandler(&fakeAgent{}, &fakeMemories{}, nil).WithHealthChecks(map[string]func(context.Context) error{
		"mongodb": func(ctx context.Context) error { return nil },
	})
	r := SetupRouter(h, secret, nil)
	w := do(r, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","checks":{"mongodb":"ok"}}`, w.Body.String())

	h.WithHealthChecks(map[string]func(context.Context) error{
		"redis": func(ctx context.Context) error { return errors.New("connection refused") },
	})
	w = do(r, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"degraded","checks":{"redis":"connection refused"}}`, w.Body.String())
}

func TestChat(t *testing.T) {
	agent := &fakeAgent{}
	r := newRouter(agent, &fakeMemories{}, nil, nil)
	tok := token(t, "u1")

	w := do(r, http.MethodPost, "/api/v1/giorgio/chat", tok, ChatRequest{Message: "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/api/v1/giorgio/chat", tok, ChatRequest{Message: "ciao", ThreadID: "t1"})
	require.Equal(t, http.StatusOK, w.Code)
	var resp ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, ChatResponse{Reply: "Ciao!", ThreadID: "t1"}, resp)
	assert.Equal(t, models.TurnRequest{Message: "ciao", ThreadID: "t1", OwnerID: "u1"}, agent.lastTurn)
}

func TestConversationEndpoints(t *testing.T) {
	agent := &fakeAgent{convs: map[string]models.Conversation{
		"t1": {ThreadID: "t1", OwnerID: "u1", Description: "Saluti"},
		"t2": {ThreadID: "t2", OwnerID: "u2"},
	}}
	r := newRouter(agent, &fakeMemories{}, nil, nil)
	tok := token(t, "u1")

	w := do(r, http.MethodGet, "/api/v1/giorgio/conversations", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []models.Conversation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Saluti", list[0].Description)

	w = do(r, http.MethodGet, "/api/v1/giorgio/conversations/t2", tok, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodDelete, "/api/v1/giorgio/conversations/t2", tok, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodDelete, "/api/v1/giorgio/conversations/t1", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"message":"Conversazione eliminata con successo"}`, w.Body.String())

	w = do(r, http.MethodGet, "/api/v1/giorgio/conversations", tok, nil)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestMemoryEndpoints(t *testing.T) {
	mem := &fakeMemories{}
	r := newRouter(&fakeAgent{}, mem, nil, nil)
	tok := token(t, "u1")

	w := do(r, http.MethodPost, "/api/v1/giorgio/memories", tok, models.StoreMemoryInput{Content: " "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(r, http.MethodPost, "/api/v1/giorgio/memories", tok, models.StoreMemoryInput{Content: "Ama il jazz", Category: "preference"})
	assert.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, mem.stored, 1)

	w = do(r, http.MethodPost, "/api/v1/giorgio/memories/search", tok, models.SearchOptions{Query: "musica", Limit: 3})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, mem.query.Limit)
	w = do(r, http.MethodPost, "/api/v1/giorgio/memories/search", tok, models.SearchOptions{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodGet, "/api/v1/giorgio/memories/summary", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var summary models.UserSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, "u1", summary.OwnerID)

	w = do(r, http.MethodGet, "/api/v1/giorgio/memories?limit=5", tok, nil)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = do(r, http.MethodDelete, "/api/v1/giorgio/memories/m1", tok, nil)
	assert.JSONEq(t, `{"success":true,"message":"Memoria eliminata con successo"}`, w.Body.String())

	w = do(r, http.MethodPost, "/api/v1/giorgio/memories/extract", tok, ExtractRequest{Text: "Vivo a Milano", Source: "chat"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)
}

func TestOwnerRateLimit(t *testing.T) {
	r := newRouter(&fakeAgent{}, &fakeMemories{}, nil, ratelimiter.NewKeyedTokenBucket(0.001, 1, 0))

	w := do(r, http.MethodGet, "/api/v1/giorgio/memories/summary", token(t, "u1"), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = do(r, http.MethodGet, "/api/v1/giorgio/memories/summary", token(t, "u1"), nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	w = do(r, http.MethodGet, "/api/v1/giorgio/memories/summary", token(t, "u2"), nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSubscribeStreamsTurnEvents(t *testing.T) {
	conns := publisher.NewConnectionManager()
	srv := httptest.NewServer(newRouter(&fakeAgent{}, &fakeMemories{}, conns, nil))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/subscribe?token=" + token(t, "u1")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	require.Eventually(t, func() bool { return conns.Count("u1") == 1 }, time.Second, 10*time.Millisecond)
	conns.Publish(context.Background(), models.TurnEvent{ThreadID: "t1", OwnerID: "u1", Status: models.TurnDone})

	_ = ws.SetReadDeadline(time.Now().Add(time.Second))
	var ev models.TurnEvent
	require.NoError(t, ws.ReadJSON(&ev))
	assert.Equal(t, models.TurnDone, ev.Status)
	assert.Equal(t, "t1", ev.ThreadID)

	ws.Close()
	require.Eventually(t, func() bool { return conns.Count("u1") == 0 }, time.Second, 10*time.Millisecond)
}
