package api

import (
	"Giorgio/backend/go/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
)

// SetupRouter 配置和返回一个 Gin 引擎实例。limiter 为 nil 时不按用户限流。
func SetupRouter(h *Handler, jwtSecret string, limiter ratelimiter.KeyedRateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", h.Healthz)

	giorgio := r.Group("/api/v1/giorgio")
	giorgio.Use(AuthMiddleware(jwtSecret))
	if limiter != nil {
		giorgio.Use(OwnerRateLimit(limiter))
	}
	{
		giorgio.POST("/chat", h.Chat)

		conversations := giorgio.Group("/conversations")
		{
			conversations.GET("", h.ListConversations)
			conversations.GET("/:threadId", h.GetConversation)
			conversations.DELETE("/:threadId", h.DeleteConversation)
		}

		memories := giorgio.Group("/memories")
		{
			memories.POST("", h.StoreMemory)
			memories.GET("", h.ListMemories)
			memories.POST("/search", h.SearchMemories)
			memories.GET("/summary", h.GetSummary)
			memories.POST("/extract", h.ExtractMemories)
			memories.DELETE("/:id", h.DeleteMemory)
		}
	}

	// WebSocket 订阅不计入限流
	ws := r.Group("/ws")
	ws.Use(AuthMiddleware(jwtSecret))
	ws.GET("/subscribe", h.Subscribe)

	return r
}
