package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"Giorgio/backend/go/internal/agent_service/publisher"
	"Giorgio/backend/go/internal/memory/service"
	"Giorgio/backend/go/internal/models"
	"Giorgio/backend/go/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const healthTimeout = 3 * time.Second

// Agent 是对话编排器对外暴露的操作。
type Agent interface {
	HandleTurn(ctx context.Context, req models.TurnRequest) models.TurnResult
	ListConversations(ctx context.Context, ownerID string) ([]models.Conversation, error)
	GetConversation(ctx context.Context, threadID, ownerID string) (*models.Conversation, error)
	DeleteConversation(ctx context.Context, threadID, ownerID string) (models.DeleteOutcome, error)
}

// Memories 是记忆服务对外暴露的操作。
type Memories interface {
	StoreMemory(ctx context.Context, ownerID string, in models.StoreMemoryInput) (*models.MemoryRecord, error)
	SearchMemories(ctx context.Context, ownerID string, opts models.SearchOptions) models.SearchResult
	GetUserSummary(ctx context.Context, ownerID string) models.UserSummary
	ListMemories(ctx context.Context, ownerID string, limit int) ([]models.MemoryRecord, error)
	DeleteMemory(ctx context.Context, ownerID, memoryID string) models.DeleteOutcome
	ExtractMemoriesFromText(ctx context.Context, ownerID, text, source string) []models.MemoryRecord
}

// Handler 封装了所有 API endpoint 的处理函数。
type Handler struct {
	agent    Agent
	memories Memories
	conns    *publisher.ConnectionManager
	upgrader websocket.Upgrader
	checks   map[string]func(context.Context) error
}

// NewHandler 创建 Handler。conns 为 nil 时不提供 WebSocket 订阅。
func NewHandler(agent Agent, memories Memories, conns *publisher.ConnectionManager) *Handler {
	return &Handler{
		agent:    agent,
		memories: memories,
		conns:    conns,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// --- Chat ---

// ChatRequest 是 POST /chat 的请求体。
type ChatRequest struct {
	Message  string `json:"message" binding:"required"`
	ThreadID string `json:"threadId"`
}

// ChatResponse 是 POST /chat 的响应体。
type ChatResponse struct {
	Reply    string `json:"reply"`
	ThreadID string `json:"threadId"`
}

// Chat 处理一轮对话。
func (h *Handler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message 不能为空"})
		return
	}
	res := h.agent.HandleTurn(c.Request.Context(), models.TurnRequest{
		Message:  req.Message,
		ThreadID: req.ThreadID,
		OwnerID:  ownerID(c),
	})
	c.JSON(http.StatusOK, ChatResponse{Reply: res.Reply, ThreadID: res.ThreadID})
}

// --- Conversations ---

func (h *Handler) ListConversations(c *gin.Context) {
	convs, err := h.agent.ListConversations(c.Request.Context(), ownerID(c))
	if err != nil {
		h.fail(c, err, "获取对话列表失败")
		return
	}
	if convs == nil {
		convs = []models.Conversation{}
	}
	c.JSON(http.StatusOK, convs)
}

func (h *Handler) GetConversation(c *gin.Context) {
	conv, err := h.agent.GetConversation(c.Request.Context(), c.Param("threadId"), ownerID(c))
	if errors.Is(err, models.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Conversazione non trovata"})
		return
	}
	if err != nil {
		h.fail(c, err, "获取对话失败")
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h *Handler) DeleteConversation(c *gin.Context) {
	out, err := h.agent.DeleteConversation(c.Request.Context(), c.Param("threadId"), ownerID(c))
	if err != nil {
		h.fail(c, err, "删除对话失败")
		return
	}
	status := http.StatusOK
	if !out.Success {
		status = http.StatusNotFound
	}
	c.JSON(status, out)
}

// --- Memories ---

func (h *Handler) StoreMemory(c *gin.Context) {
	var in models.StoreMemoryInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec, err := h.memories.StoreMemory(c.Request.Context(), ownerID(c), in)
	if errors.Is(err, service.ErrEmptyContent) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content 不能为空"})
		return
	}
	if err != nil {
		h.fail(c, err, "保存记忆失败")
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *Handler) SearchMemories(c *gin.Context) {
	var opts models.SearchOptions
	if err := c.ShouldBindJSON(&opts); err != nil || strings.TrimSpace(opts.Query) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query 不能为空"})
		return
	}
	c.JSON(http.StatusOK, h.memories.SearchMemories(c.Request.Context(), ownerID(c), opts))
}

func (h *Handler) ListMemories(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	records, err := h.memories.ListMemories(c.Request.Context(), ownerID(c), limit)
	if err != nil {
		h.fail(c, err, "获取记忆列表失败")
		return
	}
	if records == nil {
		records = []models.MemoryRecord{}
	}
	c.JSON(http.StatusOK, records)
}

func (h *Handler) GetSummary(c *gin.Context) {
	c.JSON(http.StatusOK, h.memories.GetUserSummary(c.Request.Context(), ownerID(c)))
}

func (h *Handler) DeleteMemory(c *gin.Context) {
	out := h.memories.DeleteMemory(c.Request.Context(), ownerID(c), c.Param("id"))
	c.JSON(http.StatusOK, out)
}

// ExtractRequest 是 POST /memories/extract 的请求体。
type ExtractRequest struct {
	Text   string `json:"text" binding:"required"`
	Source string `json:"source"`
}

func (h *Handler) ExtractMemories(c *gin.Context) {
	var req ExtractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	records := h.memories.ExtractMemoriesFromText(c.Request.Context(), ownerID(c), req.Text, req.Source)
	c.JSON(http.StatusOK, gin.H{"memories": records, "count": len(records)})
}

// --- Realtime ---

// Subscribe 把连接升级为 WebSocket，推送该用户的轮次事件，直到客户端断开。
func (h *Handler) Subscribe(c *gin.Context) {
	if h.conns == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "订阅未启用"})
		return
	}
	owner := ownerID(c)
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.New("giorgio_api", "", owner).Err(err).Warn("WebSocket 升级失败")
		return
	}
	h.conns.Add(owner, conn)
	defer func() {
		h.conns.Remove(owner, conn)
		_ = conn.Close()
	}()

	// 客户端只接收事件，读循环用于检测断开
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// WithHealthChecks 设置 /healthz 依次执行的后端检查。
func (h *Handler) WithHealthChecks(checks map[string]func(context.Context) error) *Handler {
	h.checks = checks
	return h
}

// Healthz 在任一后端检查失败时返回 503。
func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	status, code := "ok", http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			results[name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}
	c.JSON(code, gin.H{"status": status, "checks": results})
}

func (h *Handler) fail(c *gin.Context, err error, msg string) {
	logger.New("giorgio_api", "", ownerID(c)).Err(err).Error(msg)
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}
