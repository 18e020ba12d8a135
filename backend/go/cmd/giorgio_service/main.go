package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"Giorgio/backend/go/internal/agent_service/api"
	"Giorgio/backend/go/internal/agent_service/publisher"
	"Giorgio/backend/go/internal/agent_service/service"
	"Giorgio/backend/go/internal/bootstrap"
	"Giorgio/backend/go/internal/checkpoint"
	"Giorgio/backend/go/internal/config"
	"Giorgio/backend/go/internal/conversation"
	"Giorgio/backend/go/internal/database/kafka"
	pkghttp "Giorgio/backend/go/pkg/http"
	"Giorgio/backend/go/pkg/logger"
	"Giorgio/backend/go/pkg/ratelimiter"
	"Giorgio/backend/go/pkg/workerpool"

	"github.com/gin-gonic/gin"
)

func main() {
	configPath := flag.String("config", "config.yaml", "配置文件路径")
	flag.Parse()

	// 1. 加载配置并初始化 Logger
	cfg, err := bootstrap.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	appLogger := logger.New(cfg.App.Name, "", "")
	if cfg.Auth.JwtSecret == "" {
		appLogger.Fatal("未配置 JWT 密钥")
	}
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res := &bootstrap.Resources{}
	defer res.Close()

	// 2. 模型与记忆
	llmClient, err := bootstrap.LLM(ctx, cfg)
	if err != nil {
		appLogger.Err(err).Fatal("创建 LLM 客户端失败")
	}
	memoryService, err := bootstrap.Memory(ctx, cfg, llmClient, res)
	if err != nil {
		appLogger.Err(err).Fatal("创建记忆服务失败")
	}

	// 3. 工具
	todos, err := bootstrap.Todos(ctx, cfg, res)
	if err != nil {
		appLogger.Err(err).Fatal("创建待办清单存储失败")
	}
	registry, err := bootstrap.Registry(ctx, cfg, todos, memoryService, res)
	if err != nil {
		appLogger.Err(err).Fatal("创建工具注册表失败")
	}

	// 4. 对话状态
	checkpoints, err := checkpoint.New(cfg.Agent, checkpoint.Backends{
		Mongo: func() (checkpoint.Checkpointer, error) {
			db, err := bootstrap.Mongo(cfg, res)
			if err != nil {
				return nil, err
			}
			return checkpoint.NewMongo(ctx, db)
		},
		Redis: func(ttl time.Duration) (checkpoint.Checkpointer, error) {
			rdb, err := bootstrap.Redis(cfg, res)
			if err != nil {
				return nil, err
			}
			return checkpoint.NewRedis(rdb, ttl), nil
		},
	})
	if err != nil {
		appLogger.Err(err).Fatal("创建检查点存储失败")
	}

	conversations, err := conversationStore(ctx, cfg, res, conversation.LLMDescriber(llmClient))
	if err != nil {
		appLogger.Err(err).Fatal("创建对话存储失败")
	}

	locker, err := threadLocker(cfg, res)
	if err != nil {
		appLogger.Err(err).Fatal("创建线程锁失败")
	}

	// 5. 事件与后台任务
	conns := publisher.NewConnectionManager()
	res.OnClose(conns.CloseAll)
	events := publisher.Multi{conns}

	var dispatcher service.Dispatcher
	needKafka := cfg.Agent.Dispatch == "kafka" || strings.Contains(cfg.Agent.Events, "kafka")
	if needKafka {
		kafkaClient, err := bootstrap.Kafka(cfg, res)
		if err != nil {
			appLogger.Err(err).Fatal("创建 Kafka 客户端失败")
		}
		if strings.Contains(cfg.Agent.Events, "kafka") {
			events = append(events, publisher.NewKafkaSink(kafka.NewJSONPublisher(kafkaClient.Writer, cfg.Databases.Kafka.TurnEventsTopic)))
		}
		if cfg.Agent.Dispatch == "kafka" {
			dispatcher = service.NewKafkaDispatcher(kafka.NewJSONPublisher(kafkaClient.Writer, cfg.Databases.Kafka.ExtractionTopic))
		}
	}
	if dispatcher == nil {
		pool := workerpool.New("memory_extraction", cfg.Agent.Workers, cfg.Agent.QueueSize)
		res.OnClose(func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := pool.Shutdown(shutdownCtx); err != nil {
				appLogger.Err(err).Warn("后台任务未在超时前完成")
			}
		})
		dispatcher = service.NewPoolDispatcher(pool, memoryService, 2*time.Minute)
	}

	// 6. 编排器
	orchestrator := service.NewOrchestrator(service.Deps{
		LLM:           llmClient,
		Tools:         registry,
		Memory:        memoryService,
		Checkpoints:   checkpoints,
		Conversations: conversations,
		Dispatcher:    dispatcher,
		Events:        events,
		Locker:        locker,
	}, service.Options{
		MaxIterations:    cfg.Agent.MaxIterations,
		ToolTimeout:      config.Duration(cfg.Agent.ToolTimeout, 30*time.Second),
		MinExtractLength: cfg.Agent.MinExtractLength,
	})

	// 7. HTTP 服务
	var ownerLimiter ratelimiter.KeyedRateLimiter
	if rl := cfg.Middleware.RateLimiter; rl.Enabled && rl.PerOwner {
		ownerLimiter = ratelimiter.NewKeyedTokenBucket(rl.TokenBucket.Rate, rl.TokenBucket.Capacity, 0)
	}
	handler := api.NewHandler(orchestrator, memoryService, conns).WithHealthChecks(res.Checks())
	router := api.SetupRouter(handler, cfg.Auth.JwtSecret, ownerLimiter)

	srv, err := pkghttp.NewServer(cfg,
		pkghttp.WithAddress(cfg.Server.Address),
		pkghttp.WithReadHeaderTimeout(config.Duration(cfg.Server.ReadHeaderTimeout, 10*time.Second)),
	)
	if err != nil {
		appLogger.Err(err).Fatal("创建 HTTP 服务失败")
	}
	srv.Handle("/", router)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		appLogger.Info("收到退出信号，开始关闭")
	case err := <-errCh:
		if err != nil {
			appLogger.Err(err).Error("HTTP 服务异常退出")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Duration(cfg.Server.ShutdownTimeout, 5*time.Second))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Err(err).Warn("HTTP 服务关闭超时")
	}
	appLogger.Info("Giorgio 服务已停止")
}

func conversationStore(ctx context.Context, cfg *config.AppConfig, res *bootstrap.Resources, describe conversation.Describer) (conversation.Store, error) {
	if cfg.Agent.Conversations != "mongo" {
		return conversation.NewMemoryStore(describe), nil
	}
	db, err := bootstrap.Mongo(cfg, res)
	if err != nil {
		return nil, err
	}
	return conversation.NewMongoStore(ctx, db, describe)
}

func threadLocker(cfg *config.AppConfig, res *bootstrap.Resources) (service.ThreadLocker, error) {
	ttl := config.Duration(cfg.Agent.ThreadLockTTL, 2*time.Minute)
	if cfg.Agent.ThreadLock != "redis" {
		return service.NewThreadLocker(cfg.Agent.ThreadLock, ttl, nil)
	}
	rdb, err := bootstrap.Redis(cfg, res)
	if err != nil {
		return nil, err
	}
	return service.NewThreadLocker("redis", ttl, rdb)
}
