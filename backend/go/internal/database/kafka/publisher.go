package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// MessageWriter 是 kafka.Writer 中发布所需的部分，测试时可替换。
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// JSONPublisher 把值序列化为 JSON 后写入固定主题。
type JSONPublisher struct {
	writer MessageWriter
	topic  string
}

// NewJSONPublisher 创建发布者。writer 通常是 KafkaClient.Writer。
func NewJSONPublisher(writer MessageWriter, topic string) *JSONPublisher {
	return &JSONPublisher{writer: writer, topic: topic}
}

// Topic 返回目标主题。
func (p *JSONPublisher) Topic() string {
	return p.topic
}

// Publish 以 key 为分区键发送一条消息。同一 key 的消息保持顺序。
func (p *JSONPublisher) Publish(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic: p.topic,
		Key:   []byte(key),
		Value: data,
	})
	if err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}
	return nil
}
