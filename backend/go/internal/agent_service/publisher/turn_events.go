// Package publisher 把对话轮次的状态变化发送到 Kafka 和 WebSocket 订阅者。
package publisher

import (
	"context"

	"Giorgio/backend/go/internal/models"
	"Giorgio/backend/go/pkg/logger"
)

// Sink 接收轮次事件。实现不得阻塞轮次太久，发送失败只记录日志。
type Sink interface {
	Publish(ctx context.Context, event models.TurnEvent)
}

// Multi 把事件依次发给所有 Sink。
type Multi []Sink

func (m Multi) Publish(ctx context.Context, event models.TurnEvent) {
	for _, s := range m {
		if s != nil {
			s.Publish(ctx, event)
		}
	}
}

// JSONPublisher 是 Kafka 发布者的最小接口。
type JSONPublisher interface {
	Publish(ctx context.Context, key string, v interface{}) error
	Topic() string
}

// KafkaSink 以 threadId 为分区键发布事件，同一线程的事件保持顺序。
type KafkaSink struct {
	publisher JSONPublisher
}

// NewKafkaSink 创建把轮次事件写入 Kafka 的 sink。
func NewKafkaSink(p JSONPublisher) *KafkaSink {
	return &KafkaSink{publisher: p}
}

func (k *KafkaSink) Publish(ctx context.Context, event models.TurnEvent) {
	if err := k.publisher.Publish(ctx, event.ThreadID, event); err != nil {
		logger.New("turn_events", event.ThreadID, event.OwnerID).
			WithError(models.ErrorInfo{Message: err.Error(), Type: "kafka_error"}).
			WithPayload(map[string]interface{}{"topic": k.publisher.Topic(), "status": event.Status}).
			Error("Failed to publish turn event to Kafka")
	}
}
