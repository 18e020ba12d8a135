// Package conversation 持久化用户可见的对话记录，与推理检查点相互独立。
package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"Giorgio/backend/go/internal/llm"
	"Giorgio/backend/go/internal/models"
	"Giorgio/backend/go/pkg/logger"
)

// Store 保存对话记录，所有操作都按 (threadId, ownerId) 过滤。
type Store interface {
	// Append 追加一轮用户消息与回复。线程不存在时创建记录并生成描述。
	Append(ctx context.Context, ownerID, threadID, userMessage, reply string) error
	// List 按 lastUpdated 倒序返回用户的全部对话。
	List(ctx context.Context, ownerID string) ([]models.Conversation, error)
	// Get 在对话不存在或不属于该用户时返回 (nil, nil)。
	Get(ctx context.Context, threadID, ownerID string) (*models.Conversation, error)
	// Delete 返回是否删除了记录。
	Delete(ctx context.Context, threadID, ownerID string) (bool, error)
	// Owner 返回线程所属用户，线程不存在时返回空字符串。只用于归属校验，不返回内容。
	Owner(ctx context.Context, threadID string) (string, error)
}

// Describer 为新对话生成简短描述，失败时返回兜底描述。
type Describer func(ctx context.Context, userMessage, reply string) string

const descriptionPrompt = `Generate ONLY a brief description of maximum 10 words for this conversation in the same language as the messages. DO NOT add explanations or other text.
User message: "%s"
Assistant reply: "%s"
Respond ONLY with the description, nothing else`

// LLMDescriber 使用模型生成描述。
func LLMDescriber(l llm.LLM) Describer {
	return func(ctx context.Context, userMessage, reply string) string {
		out, err := llm.Complete(ctx, l, fmt.Sprintf(descriptionPrompt, userMessage, reply))
		if err != nil {
			logger.New("conversation", "", "").Err(err).Warn("生成对话描述失败")
			return models.DefaultConversationDescription
		}
		return NormalizeDescription(out)
	}
}

// StaticDescriber 总是返回兜底描述。
func StaticDescriber(ctx context.Context, userMessage, reply string) string {
	return models.DefaultConversationDescription
}

// NormalizeDescription 去除空白并截断到最大长度，空值使用兜底描述。
func NormalizeDescription(s string) string {
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > models.MaxDescriptionLength {
		s = string(r[:models.MaxDescriptionLength])
	}
	if s == "" {
		return models.DefaultConversationDescription
	}
	return s
}

// nextUpdated 保证同一线程的 lastUpdated 严格递增。
func nextUpdated(now, previous time.Time) time.Time {
	if floor := previous.Add(time.Millisecond); now.Before(floor) {
		return floor
	}
	return now
}

func newMessages(userMessage, reply string, at time.Time) []models.ConversationMessage {
	return []models.ConversationMessage{
		{Content: userMessage, Role: models.RoleUser, Timestamp: at},
		{Content: reply, Role: models.RoleAssistant, Timestamp: at},
	}
}
