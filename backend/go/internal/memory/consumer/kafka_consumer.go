package consumer

import (
	"context"
	"encoding/json"
	"time"

	"Giorgio/backend/go/internal/models"
	"Giorgio/backend/go/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// MessageReader 是 kafka.Reader 中消费所需的部分。
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// JobHandler 处理一条抽取任务。
type JobHandler interface {
	HandleExtractionJob(ctx context.Context, job models.ExtractionJob) int
}

// KafkaConsumer 消费记忆抽取主题并交给 JobHandler 处理。
type KafkaConsumer struct {
	reader  MessageReader
	handler JobHandler
	logger  *logger.Logger
	backoff time.Duration
}

// NewKafkaConsumer 创建抽取任务消费者，失败重试的初始退避为 1 秒。
func NewKafkaConsumer(reader MessageReader, handler JobHandler, log *logger.Logger) *KafkaConsumer {
	return &KafkaConsumer{reader: reader, handler: handler, logger: log, backoff: time.Second}
}

// Run 阻塞消费直到 ctx 结束。无法解析的消息记录日志后直接提交，避免反复投递。
func (c *KafkaConsumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Err(err).Error("failed to fetch message")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.backoff):
			}
			continue
		}

		var job models.ExtractionJob
		if err := json.Unmarshal(msg.Value, &job); err != nil {
			c.logger.Err(err).Error("failed to unmarshal message")
		} else if job.OwnerID != "" {
			c.handler.HandleExtractionJob(ctx, job)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Err(err).Error("failed to commit message")
		}
	}
}
