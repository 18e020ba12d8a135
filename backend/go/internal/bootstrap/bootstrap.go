// Package bootstrap 按配置组装各个后端，供多个可执行程序共用。
package bootstrap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"Giorgio/backend/go/internal/config"
	"Giorgio/backend/go/internal/database/kafka"
	"Giorgio/backend/go/internal/database/milvus"
	"Giorgio/backend/go/internal/database/minio"
	"Giorgio/backend/go/internal/database/mongo"
	"Giorgio/backend/go/internal/database/mysql"
	"Giorgio/backend/go/internal/database/redis"
	"Giorgio/backend/go/internal/embedding"
	"Giorgio/backend/go/internal/llm"
	"Giorgio/backend/go/internal/memory/extractor"
	memsvc "Giorgio/backend/go/internal/memory/service"
	"Giorgio/backend/go/internal/memory/store"
	"Giorgio/backend/go/internal/memory/summarycache"
	"Giorgio/backend/go/internal/todo"
	"Giorgio/backend/go/internal/tools"
	"Giorgio/backend/go/internal/websearch"
	pkghttp "Giorgio/backend/go/pkg/http"
	"Giorgio/backend/go/pkg/logger"
	"Giorgio/backend/go/pkg/mcp_host"

	goredis "github.com/go-redis/redis/v8"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
)

const milvusFlushInterval = 10 * time.Second

// Resources 收集已启用后端的关闭函数和健康检查。
type Resources struct {
	closers []func()
	checks  map[string]func(context.Context) error
}

// OnClose 注册退出时执行的关闭函数，Close 按注册的逆序执行。
func (r *Resources) OnClose(f func()) {
	r.closers = append(r.closers, f)
}

// Check 注册健康检查，同名检查只保留最后一个。
func (r *Resources) Check(name string, f func(context.Context) error) {
	if r.checks == nil {
		r.checks = make(map[string]func(context.Context) error)
	}
	r.checks[name] = f
}

func (r *Resources) Checks() map[string]func(context.Context) error {
	return r.checks
}

func (r *Resources) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
}

// Load 读取配置并初始化日志。
func Load(path string) (*config.AppConfig, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	logger.Init(logger.ParseLevel(cfg.Logger.Level))
	return cfg, nil
}

// LLM 创建模型客户端。
func LLM(ctx context.Context, cfg *config.AppConfig) (llm.LLM, error) {
	return llm.NewClient(ctx, cfg.LLM)
}

// Memory 组装记忆服务：向量存储、嵌入模型、摘要缓存和抽取器。
func Memory(ctx context.Context, cfg *config.AppConfig, l llm.LLM, res *Resources) (*memsvc.MemoryService, error) {
	embedder, err := embedding.New(ctx, cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("创建嵌入模型失败: %w", err)
	}
	if c, ok := embedder.(*embedding.Cached); ok {
		res.OnClose(c.Close)
	}

	vectors, err := vectorStore(ctx, cfg, res)
	if err != nil {
		return nil, err
	}

	blobs, err := blobStore(ctx, cfg, res)
	if err != nil {
		return nil, err
	}
	cache := summarycache.New(blobs, config.Duration(cfg.Memory.SummaryTTL, time.Hour))

	return memsvc.NewMemoryService(vectors, embedder, cache, extractor.NewLLMExtractor(l), l,
		memsvc.OptionsFromConfig(cfg.Memory, cfg.Embedding.Dimension)), nil
}

func vectorStore(ctx context.Context, cfg *config.AppConfig, res *Resources) (store.VectorStore, error) {
	switch strings.ToLower(cfg.Memory.VectorBackend) {
	case "milvus":
		client, err := milvus.GetClient(ctx, &cfg.Databases.Milvus)
		if err != nil {
			return nil, err
		}
		client.StartAutoFlush(milvusFlushInterval)
		res.OnClose(client.Close)
		res.Check("milvus", client.HealthCheck)
		return store.NewMilvusStore(client), nil
	case "qdrant":
		client, err := pkghttp.NewClient(cfg.Middleware.CircuitBreaker, pkghttp.WithTimeout(30*time.Second))
		if err != nil {
			return nil, err
		}
		return store.NewQdrantStore(client, cfg.Databases.Qdrant.URL), nil
	case "", "chromem":
		return store.NewChromemStore(cfg.Memory.ChromemPath)
	default:
		return nil, fmt.Errorf("不支持的向量后端: %s", cfg.Memory.VectorBackend)
	}
}

func blobStore(ctx context.Context, cfg *config.AppConfig, res *Resources) (summarycache.BlobStore, error) {
	switch strings.ToLower(cfg.Memory.BlobBackend) {
	case "minio":
		client, err := minio.GetClient(&cfg.Databases.MinIO)
		if err != nil {
			return nil, err
		}
		if err := minio.EnsureBucket(ctx, client, cfg.Databases.MinIO.Bucket); err != nil {
			return nil, err
		}
		res.Check("minio", minio.HealthCheck)
		return summarycache.NewMinIOBlobStore(client, cfg.Databases.MinIO.Bucket), nil
	case "", "memory":
		return summarycache.NewMemoryBlobStore(), nil
	default:
		return nil, fmt.Errorf("不支持的摘要缓存后端: %s", cfg.Memory.BlobBackend)
	}
}

// Mongo 返回共享的 MongoDB 数据库，首次调用时注册关闭函数和健康检查。
func Mongo(cfg *config.AppConfig, res *Resources) (*mongodriver.Database, error) {
	db, err := mongo.GetDatabase(&cfg.Databases.MongoDB)
	if err != nil {
		return nil, err
	}
	if _, ok := res.Checks()["mongodb"]; !ok {
		res.Check("mongodb", mongo.HealthCheck)
		res.OnClose(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = mongo.Close(ctx)
		})
	}
	return db, nil
}

// Redis 返回共享的 Redis 客户端。
func Redis(cfg *config.AppConfig, res *Resources) (*goredis.Client, error) {
	client, err := redis.GetClient(&cfg.Databases.Redis)
	if err != nil {
		return nil, err
	}
	if _, ok := res.Checks()["redis"]; !ok {
		res.Check("redis", redis.HealthCheck)
		res.OnClose(func() { _ = redis.Close() })
	}
	return client, nil
}

// Kafka 返回共享的 Kafka 客户端。
func Kafka(cfg *config.AppConfig, res *Resources) (*kafka.KafkaClient, error) {
	client, err := kafka.GetClient(&cfg.Databases.Kafka)
	if err != nil {
		return nil, err
	}
	if _, ok := res.Checks()["kafka"]; !ok {
		res.Check("kafka", client.HealthCheck)
		res.OnClose(func() { _ = client.Close() })
	}
	return client, nil
}

// Todos 按 todo.backend 创建待办清单存储。
func Todos(ctx context.Context, cfg *config.AppConfig, res *Resources) (todo.Store, error) {
	return todo.NewStore(cfg.Todo, todo.Backends{
		Mongo: func() (todo.Store, error) {
			db, err := Mongo(cfg, res)
			if err != nil {
				return nil, err
			}
			return todo.NewMongoStore(ctx, db)
		},
		MySQL: func() (todo.Store, error) {
			db, err := mysql.GetDB(&cfg.Databases.MySQL)
			if err != nil {
				return nil, err
			}
			res.Check("mysql", mysql.HealthCheck)
			res.OnClose(func() { _ = mysql.Close() })
			return todo.NewMySQLStore(db)
		},
	})
}

// Registry 创建工具注册表，并连接配置中的外部 MCP 服务器。连接失败的服务器只记录日志。
func Registry(ctx context.Context, cfg *config.AppConfig, todos todo.Store, memory *memsvc.MemoryService, res *Resources) (*tools.Registry, error) {
	log := logger.New(cfg.App.Name, "", "")

	search, err := websearch.NewTavily(cfg.WebSearch, cfg.Middleware.CircuitBreaker)
	if err != nil {
		return nil, fmt.Errorf("创建搜索客户端失败: %w", err)
	}
	pageClient, err := pkghttp.NewClient(cfg.Middleware.CircuitBreaker,
		pkghttp.WithHTTPClient(websearch.NewPublicHTTPClient(20*time.Second)))
	if err != nil {
		return nil, err
	}

	deps := tools.Deps{
		Todos:           todos,
		Search:          search,
		Pages:           websearch.NewPageReader(pageClient),
		SearchLimit:     cfg.Memory.ToolSearchLimit,
		SearchThreshold: cfg.Memory.ToolSearchThresh,
	}
	if memory != nil {
		deps.Memory = memory
	}

	if len(cfg.MCP.Servers) > 0 {
		host := mcp_host.NewHost()
		for _, s := range cfg.MCP.Servers {
			err := host.Connect(ctx, mcp_host.ConnectOptions{
				ServerName:    s.Name,
				TransportType: s.Transport,
				Command:       s.Command,
				Args:          s.Args,
				URL:           s.URL,
				Env:           s.Env,
			})
			if err != nil {
				log.Err(err).WithPayload(map[string]interface{}{"server": s.Name}).Warn("连接外部 MCP 服务器失败")
			}
		}
		res.OnClose(func() { _ = host.CloseAll() })
		deps.External = host
	}

	registry := tools.NewRegistry(deps)
	registry.LoadExternal(ctx)
	return registry, nil
}
