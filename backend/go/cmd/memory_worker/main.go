package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"Giorgio/backend/go/internal/bootstrap"
	"Giorgio/backend/go/internal/memory/consumer"
	"Giorgio/backend/go/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := bootstrap.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	appLogger := logger.New("memory_worker", "", "")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res := &bootstrap.Resources{}
	defer res.Close()

	llmClient, err := bootstrap.LLM(ctx, cfg)
	if err != nil {
		appLogger.Err(err).Fatal("创建 LLM 客户端失败")
	}
	memoryService, err := bootstrap.Memory(ctx, cfg, llmClient, res)
	if err != nil {
		appLogger.Err(err).Fatal("创建记忆服务失败")
	}

	kafkaClient, err := bootstrap.Kafka(cfg, res)
	if err != nil {
		appLogger.Err(err).Fatal("创建 Kafka 客户端失败")
	}

	reader := kafkaClient.NewReader(cfg.Databases.Kafka.ExtractionTopic, cfg.Databases.Kafka.ConsumerGroup)
	res.OnClose(func() { _ = reader.Close() })

	appLogger.WithPayload(map[string]interface{}{
		"topic": cfg.Databases.Kafka.ExtractionTopic,
		"group": cfg.Databases.Kafka.ConsumerGroup,
	}).Info("记忆抽取消费者已启动")

	if err := consumer.NewKafkaConsumer(reader, memoryService, appLogger).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		appLogger.Err(err).Error("消费者异常退出")
	}
	appLogger.Info("记忆抽取消费者已停止")
}
