package models

import "time"

// MessageRole 是持久化对话记录中的消息角色。
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// DefaultConversationDescription 是描述生成失败时的兜底值。
const DefaultConversationDescription = "Conversazione generale"

// MaxDescriptionLength 是对话描述的最大字符数。
const MaxDescriptionLength = 255

// ConversationMessage 是对话中的单条消息。
type ConversationMessage struct {
	Content   string      `bson:"content" json:"content"`
	Role      MessageRole `bson:"role" json:"role"`
	Timestamp time.Time   `bson:"timestamp" json:"timestamp"`
}

// Conversation 是按 threadId 持久化的对话记录。
type Conversation struct {
	ThreadID     string                `bson:"threadId" json:"threadId"`
	OwnerID      string                `bson:"ownerId" json:"ownerId"`
	Messages     []ConversationMessage `bson:"messages" json:"messages"`
	MessageCount int                   `bson:"messageCount" json:"messageCount"`
	Step         int                   `bson:"step" json:"step"`
	Description  string                `bson:"description" json:"description"`
	CreatedAt    time.Time             `bson:"createdAt" json:"createdAt"`
	LastUpdated  time.Time             `bson:"lastUpdated" json:"lastUpdated"`
}

// TurnRequest 是一次对话轮次的输入。ThreadID 为空表示新对话。
type TurnRequest struct {
	Message  string `json:"message"`
	ThreadID string `json:"threadId,omitempty"`
	OwnerID  string `json:"-"`
}

// TurnResult 是一次对话轮次的输出，总是带有有效的 threadId。
type TurnResult struct {
	Reply    string `json:"reply"`
	ThreadID string `json:"threadId"`
}

// DeleteOutcome 是删除操作的结果。
type DeleteOutcome struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
