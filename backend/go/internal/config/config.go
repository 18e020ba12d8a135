package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// MilvusConfig 定义了 Milvus 向量库的连接与索引配置。
type MilvusConfig struct {
	Address        string `yaml:"address"`        // Milvus 服务地址
	IndexM         int    `yaml:"indexM"`         // HNSW 参数 M
	EfConstruction int    `yaml:"efConstruction"` // HNSW 构建参数
	SearchEf       int    `yaml:"searchEf"`       // HNSW 检索参数
}

// QdrantConfig 定义了 Qdrant REST 接口的连接配置。
type QdrantConfig struct {
	URL    string `yaml:"url"`    // 例如 "http://localhost:6333"
	APIKey string `yaml:"apiKey"` // 可选
}

// RedisConfig 定义了 Redis 数据库的连接配置。
type RedisConfig struct {
	Address  string `yaml:"address"`  // Redis 服务器地址 (例如: "localhost:6379")
	Password string `yaml:"password"` // Redis 密码
	DB       int    `yaml:"db"`       // Redis 数据库编号
}

// MySQLConfig 定义了 MySQL 数据库的连接配置。
type MySQLConfig struct {
	Address         string `yaml:"address"`         // MySQL 服务器地址
	Username        string `yaml:"username"`        // 用户名
	Password        string `yaml:"password"`        // 密码
	Database        string `yaml:"database"`        // 数据库名称
	MaxOpenConns    int    `yaml:"maxOpenConns"`    // 最大打开连接数
	MaxIdleConns    int    `yaml:"maxIdleConns"`    // 最大空闲连接数
	ConnMaxLifetime int    `yaml:"connMaxLifetime"` // 连接最大生命周期 (秒)
}

// MinIOConfig 定义了 MinIO 对象存储的连接配置。
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`  // MinIO 服务端点
	AccessKey string `yaml:"accessKey"` // 访问密钥
	SecretKey string `yaml:"secretKey"` // Secret 密钥
	Bucket    string `yaml:"bucket"`    // 摘要缓存所在的存储桶
	Secure    bool   `yaml:"secure"`    // 是否使用HTTPS
}

// MongoConfig 定义了 MongoDB 数据库的连接配置。
type MongoConfig struct {
	Address  string `yaml:"address"`  // MongoDB 服务器地址
	Username string `yaml:"username"` // 用户名
	Password string `yaml:"password"` // 密码
	Database string `yaml:"database"` // 数据库名称
}

// KafkaConfig 定义了 Kafka 消息队列的连接配置。
type KafkaConfig struct {
	Brokers         []string `yaml:"brokers"`         // Kafka Broker 地址列表
	TurnEventsTopic string   `yaml:"turnEventsTopic"` // 轮次事件主题
	ExtractionTopic string   `yaml:"extractionTopic"` // 记忆抽取任务主题
	ConsumerGroup   string   `yaml:"consumerGroup"`   // 抽取消费者组
}

// Topics 返回需要自动创建的全部主题。
func (k KafkaConfig) Topics() []string {
	return []string{k.TurnEventsTopic, k.ExtractionTopic}
}

// DatabaseConfigs 包含所有存储后端的配置。
type DatabaseConfigs struct {
	Milvus  MilvusConfig `yaml:"milvus"`
	Qdrant  QdrantConfig `yaml:"qdrant"`
	Redis   RedisConfig  `yaml:"redis"`
	MySQL   MySQLConfig  `yaml:"mysql"`
	MinIO   MinIOConfig  `yaml:"minio"`
	MongoDB MongoConfig  `yaml:"mongodb"`
	Kafka   KafkaConfig  `yaml:"kafka"`
}

// AppInfo 对应 'app' 部分，包含应用程序的基本信息。
type AppInfo struct {
	Name        string `yaml:"name"`        // 应用程序名称
	Version     string `yaml:"version"`     // 应用程序版本
	Environment string `yaml:"environment"` // 运行环境 (例如: "development", "production")
}

// AuthConfig 用于配置 JWT 校验。令牌由外部签发。
type AuthConfig struct {
	JwtSecret string `yaml:"jwtSecret"`
}

// LoggerConfig 定义了日志记录器的配置。
type LoggerConfig struct {
	Level string `yaml:"level"` // 日志级别 (例如: "info", "debug", "warn", "error")
}

// ProviderConfig 是单个模型提供商的配置。
type ProviderConfig struct {
	APIKey  string `yaml:"apiKey"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"baseURL"` // OpenAI 兼容接口或 Ollama 地址
}

// LLMConfig 包含了不同LLM提供商的配置。
type LLMConfig struct {
	Provider string         `yaml:"provider"` // "gemini"、"openai" 或 "ollama"
	Timeout  string         `yaml:"timeout"`  // 单次调用超时，例如 "60s"
	Gemini   ProviderConfig `yaml:"gemini"`
	OpenAI   ProviderConfig `yaml:"openai"`
	Ollama   ProviderConfig `yaml:"ollama"`
	// Breaker 为模型调用加一层熔断。
	Breaker CircuitBreakerConfig `yaml:"breaker"`
}

// EmbeddingConfig 包含了不同Embedding提供商的配置。
type EmbeddingConfig struct {
	Provider  string         `yaml:"provider"`
	Dimension int            `yaml:"dimension"`
	CacheSize int64          `yaml:"cacheSize"` // ristretto 缓存的最大条目数，0 表示不缓存
	Gemini    ProviderConfig `yaml:"gemini"`
	OpenAI    ProviderConfig `yaml:"openai"`
	Ollama    ProviderConfig `yaml:"ollama"`
}

// AgentConfig 控制推理循环和后台分发。
type AgentConfig struct {
	MaxIterations    int    `yaml:"maxIterations"`
	ToolTimeout      string `yaml:"toolTimeout"`
	MinExtractLength int    `yaml:"minExtractLength"` // 触发后台抽取的最小消息长度（字符）
	Dispatch         string `yaml:"dispatch"`         // "pool" 或 "kafka"
	Workers          int    `yaml:"workers"`
	QueueSize        int    `yaml:"queueSize"`
	ThreadLock       string `yaml:"threadLock"` // "none"、"local" 或 "redis"
	ThreadLockTTL    string `yaml:"threadLockTTL"`
	Checkpoint       string `yaml:"checkpoint"` // "memory"、"mongo" 或 "redis"
	CheckpointTTL    string `yaml:"checkpointTTL"`
	CheckpointCap    int    `yaml:"checkpointCap"` // 内存检查点的最大线程数
	Conversations    string `yaml:"conversations"` // 对话记录后端: "memory" 或 "mongo"
	Events           string `yaml:"events"`        // 轮次事件: "websocket" 或 "websocket+kafka"
}

// MemoryConfig 控制长期记忆子系统。
type MemoryConfig struct {
	VectorBackend      string  `yaml:"vectorBackend"` // "milvus"、"qdrant" 或 "chromem"
	BlobBackend        string  `yaml:"blobBackend"`   // "minio" 或 "memory"
	ChromemPath        string  `yaml:"chromemPath"`   // 为空时 chromem 只保存在内存中
	SummaryTTL         string  `yaml:"summaryTTL"`
	SearchLimit        int     `yaml:"searchLimit"`
	SearchThreshold    float64 `yaml:"searchThreshold"`
	ToolSearchLimit    int     `yaml:"toolSearchLimit"`
	ToolSearchThresh   float64 `yaml:"toolSearchThreshold"`
	ScrollLimit        int     `yaml:"scrollLimit"`
	SummaryTopN        int     `yaml:"summaryTopN"`
	MinCandidateLength int     `yaml:"minCandidateLength"`
}

// TodoConfig 选择待办清单存储后端。
type TodoConfig struct {
	Backend string `yaml:"backend"` // "mongo"、"mysql" 或 "memory"
}

// WebSearchConfig 是 Tavily 搜索的配置。
type WebSearchConfig struct {
	APIKey     string `yaml:"apiKey"`
	BaseURL    string `yaml:"baseURL"`
	MaxResults int    `yaml:"maxResults"`
}

// MCPServerConfig 描述一个外部 MCP 服务器。
type MCPServerConfig struct {
	Name      string   `yaml:"name"`
	Transport string   `yaml:"transport"` // "stdio" 或 "http-sse"
	Command   string   `yaml:"command"`
	Args      []string `yaml:"args"`
	URL       string   `yaml:"url"`
	Env       []string `yaml:"env"`
}

// MCPConfig 列出需要连接的外部 MCP 服务器。
type MCPConfig struct {
	Servers []MCPServerConfig `yaml:"servers"`
}

// ServerConfig 定义 HTTP 服务的监听配置。
type ServerConfig struct {
	Address           string `yaml:"address"`
	ShutdownTimeout   string `yaml:"shutdownTimeout"`
	ReadHeaderTimeout string `yaml:"readHeaderTimeout"`
}

// AppConfig 是整个 YAML 文件的根结构，包含了应用程序的所有配置。
type AppConfig struct {
	App        AppInfo          `yaml:"app"`
	Auth       AuthConfig       `yaml:"auth"`
	LLM        LLMConfig        `yaml:"llm"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Logger     LoggerConfig     `yaml:"logger"`
	Databases  DatabaseConfigs  `yaml:"databases"`
	Middleware MiddlewareConfig `yaml:"middleware"`
	Agent      AgentConfig      `yaml:"agent"`
	Memory     MemoryConfig     `yaml:"memory"`
	Todo       TodoConfig       `yaml:"todo"`
	WebSearch  WebSearchConfig  `yaml:"webSearch"`
	MCP        MCPConfig        `yaml:"mcp"`
	Server     ServerConfig     `yaml:"server"`
}

// MiddlewareConfig 包含所有中间件的配置。
type MiddlewareConfig struct {
	RateLimiter    RateLimiterConfig    `yaml:"rateLimiter"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
}

// RateLimiterConfig 定义了限流器的配置。
type RateLimiterConfig struct {
	Enabled     bool              `yaml:"enabled"`
	PerOwner    bool              `yaml:"perOwner"` // 按用户分别限流
	TokenBucket TokenBucketConfig `yaml:"tokenBucket"`
}

// TokenBucketConfig 定义了令牌桶算法的配置。
type TokenBucketConfig struct {
	Rate     float64 `yaml:"rate"` // 每秒速率
	Capacity int     `yaml:"capacity"`
}

// CircuitBreakerConfig 定义了熔断器的配置。
type CircuitBreakerConfig struct {
	Enabled          bool   `yaml:"enabled"`
	FailureThreshold uint32 `yaml:"failureThreshold"`
	SuccessThreshold uint32 `yaml:"successThreshold"`
	Timeout          string `yaml:"timeout"` // 例如: "30s"
}

// LoadConfig 从指定路径加载并解析 YAML 配置文件。
// 解析前先加载同目录或工作目录下可选的 .env 文件，YAML 中的 ${VAR} 会被环境变量替换。
func LoadConfig(path string) (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("加载 .env 文件失败: %w", err)
	}

	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("无法读取 YAML 文件 '%s': %w", path, err)
	}
	return Parse(yamlFile)
}

// Parse 解析 YAML 内容，展开环境变量，应用环境变量覆盖和默认值。
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("解析 YAML 文件失败: %w", err)
	}
	cfg.applyEnvOverrides()
	cfg.ApplyDefaults()
	return &cfg, nil
}

func (c *AppConfig) applyEnvOverrides() {
	override := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	override(&c.LLM.Gemini.APIKey, "GEMINI_API_KEY")
	override(&c.Embedding.Gemini.APIKey, "GEMINI_API_KEY")
	override(&c.LLM.OpenAI.APIKey, "OPENAI_API_KEY")
	override(&c.Embedding.OpenAI.APIKey, "OPENAI_API_KEY")
	override(&c.WebSearch.APIKey, "TAVILY_API_KEY")
	override(&c.Auth.JwtSecret, "JWT_SECRET")
}

// ApplyDefaults 为所有未设置的字段填充默认值。
func (c *AppConfig) ApplyDefaults() {
	setStr := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	setInt := func(dst *int, v int) {
		if *dst == 0 {
			*dst = v
		}
	}
	setFloat := func(dst *float64, v float64) {
		if *dst == 0 {
			*dst = v
		}
	}

	setStr(&c.App.Name, "giorgio")
	setStr(&c.Logger.Level, "info")
	setStr(&c.Server.Address, ":8080")
	setStr(&c.Server.ShutdownTimeout, "5s")
	setStr(&c.Server.ReadHeaderTimeout, "10s")

	setStr(&c.LLM.Provider, "gemini")
	setStr(&c.LLM.Timeout, "60s")
	setStr(&c.LLM.Gemini.Model, "gemini-2.5-flash")
	setStr(&c.LLM.OpenAI.Model, "gpt-4o-mini")
	setStr(&c.LLM.Ollama.BaseURL, "http://localhost:11434")
	setStr(&c.LLM.Ollama.Model, "llama3.1")

	setStr(&c.Embedding.Provider, "gemini")
	setInt(&c.Embedding.Dimension, 3072)
	setStr(&c.Embedding.Gemini.Model, "gemini-embedding-001")
	setStr(&c.Embedding.OpenAI.Model, "text-embedding-3-large")
	setStr(&c.Embedding.Ollama.BaseURL, "http://localhost:11434")
	setStr(&c.Embedding.Ollama.Model, "nomic-embed-text")

	setInt(&c.Agent.MaxIterations, 10)
	setStr(&c.Agent.ToolTimeout, "30s")
	setInt(&c.Agent.MinExtractLength, 20)
	setStr(&c.Agent.Dispatch, "pool")
	setInt(&c.Agent.Workers, 4)
	setInt(&c.Agent.QueueSize, 128)
	setStr(&c.Agent.ThreadLock, "local")
	setStr(&c.Agent.ThreadLockTTL, "2m")
	setStr(&c.Agent.Checkpoint, "memory")
	setStr(&c.Agent.CheckpointTTL, "24h")
	setInt(&c.Agent.CheckpointCap, 1000)
	setStr(&c.Agent.Conversations, "memory")
	setStr(&c.Agent.Events, "websocket")

	setStr(&c.Memory.VectorBackend, "chromem")
	setStr(&c.Memory.BlobBackend, "memory")
	setStr(&c.Memory.SummaryTTL, "1h")
	setInt(&c.Memory.SearchLimit, 10)
	setFloat(&c.Memory.SearchThreshold, 0.7)
	setInt(&c.Memory.ToolSearchLimit, 5)
	setFloat(&c.Memory.ToolSearchThresh, 0.6)
	setInt(&c.Memory.ScrollLimit, 100)
	setInt(&c.Memory.SummaryTopN, 15)
	setInt(&c.Memory.MinCandidateLength, 10)

	setStr(&c.Todo.Backend, "memory")

	setStr(&c.WebSearch.BaseURL, "https://api.tavily.com")
	setInt(&c.WebSearch.MaxResults, 3)

	setInt(&c.Databases.Milvus.IndexM, 16)
	setInt(&c.Databases.Milvus.EfConstruction, 200)
	setInt(&c.Databases.Milvus.SearchEf, 64)
	setStr(&c.Databases.MinIO.Bucket, "giorgio")
	setStr(&c.Databases.MongoDB.Database, "giorgio")
	setStr(&c.Databases.Kafka.TurnEventsTopic, "giorgio.turn_events")
	setStr(&c.Databases.Kafka.ExtractionTopic, "giorgio.memory_extraction")
	setStr(&c.Databases.Kafka.ConsumerGroup, "giorgio-memory-worker")

	setFloat(&c.Middleware.RateLimiter.TokenBucket.Rate, 5)
	setInt(&c.Middleware.RateLimiter.TokenBucket.Capacity, 20)
	if c.Middleware.CircuitBreaker.FailureThreshold == 0 {
		c.Middleware.CircuitBreaker.FailureThreshold = 5
	}
	if c.Middleware.CircuitBreaker.SuccessThreshold == 0 {
		c.Middleware.CircuitBreaker.SuccessThreshold = 2
	}
	setStr(&c.Middleware.CircuitBreaker.Timeout, "30s")
	if c.LLM.Breaker.FailureThreshold == 0 {
		c.LLM.Breaker.FailureThreshold = 5
	}
	if c.LLM.Breaker.SuccessThreshold == 0 {
		c.LLM.Breaker.SuccessThreshold = 1
	}
	setStr(&c.LLM.Breaker.Timeout, "30s")
}

// Duration 解析时长字符串，失败或为空时返回 fallback。
func Duration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
