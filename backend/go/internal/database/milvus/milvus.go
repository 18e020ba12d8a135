package milvus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"Giorgio/backend/go/internal/config"
	"Giorgio/backend/go/pkg/logger"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"golang.org/x/sync/singleflight"
)

// 每个集合的固定字段。
const (
	FieldID      = "id"
	FieldPayload = "payload"
	FieldVector  = "embedding"

	maxIDLength = 64
)

// Point 是一条待写入的向量记录，Payload 为 JSON。
type Point struct {
	ID      string
	Vector  []float32
	Payload []byte
}

// Hit 是检索或查询返回的一条记录。查询结果的 Score 为 0。
type Hit struct {
	ID      string
	Score   float32
	Payload []byte
}

var (
	instance *MilvusClient
	once     sync.Once
	initErr  error
)

// MilvusClient 包含了 Milvus 客户端实例和相关配置。
type MilvusClient struct {
	Client client.Client
	Config *config.MilvusConfig

	ensure singleflight.Group
	mu     sync.RWMutex
	ready  map[string]struct{}

	cancelAutoFlush context.CancelFunc
}

// GetClient 使用单例模式创建并返回一个 Milvus 客户端实例。
func GetClient(ctx context.Context, cfg *config.MilvusConfig) (*MilvusClient, error) {
	once.Do(func() {
		c, err := client.NewClient(ctx, client.Config{Address: cfg.Address})
		if err != nil {
			initErr = fmt.Errorf("无法连接到 Milvus: %w", err)
			return
		}
		logger.New("database", "", "").Info("✅ 成功连接到 Milvus!")
		instance = NewMilvusClient(c, cfg)
	})
	return instance, initErr
}

// NewMilvusClient 包装一个已建立的连接。
func NewMilvusClient(c client.Client, cfg *config.MilvusConfig) *MilvusClient {
	return &MilvusClient{Client: c, Config: cfg, ready: make(map[string]struct{})}
}

// Close 停止自动刷新并关闭连接。
func (c *MilvusClient) Close() {
	if c.Client != nil {
		c.StopAutoFlush(context.Background())
		c.Client.Close()
	}
}

// HealthCheck 检查 Milvus 连接的健康状况。
func (c *MilvusClient) HealthCheck(ctx context.Context) error {
	if c.Client == nil {
		return errors.New("Milvus client is nil")
	}
	if _, err := c.Client.ListCollections(ctx); err != nil {
		return fmt.Errorf("Milvus health check failed: %w", err)
	}
	return nil
}

// EnsureCollection 确保集合存在、建有 HNSW/COSINE 索引并已加载。
// 同一进程内对同一集合的并发调用只执行一次；其他进程抢先创建时视为成功。
func (c *MilvusClient) EnsureCollection(ctx context.Context, name string, dim int) error {
	c.mu.RLock()
	_, ok := c.ready[name]
	c.mu.RUnlock()
	if ok {
		return nil
	}

	_, err, _ := c.ensure.Do(name, func() (interface{}, error) {
		return nil, c.ensureCollection(ctx, name, dim)
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.ready[name] = struct{}{}
	c.mu.Unlock()
	return nil
}

func (c *MilvusClient) ensureCollection(ctx context.Context, name string, dim int) error {
	exists, err := c.Client.HasCollection(ctx, name)
	if err != nil {
		return fmt.Errorf("检查集合是否存在时出错: %w", err)
	}
	if !exists {
		schema := entity.NewSchema().
			WithName(name).
			WithDescription("user memories").
			WithField(entity.NewField().WithName(FieldID).WithDataType(entity.FieldTypeVarChar).
				WithIsPrimaryKey(true).WithMaxLength(maxIDLength)).
			WithField(entity.NewField().WithName(FieldPayload).WithDataType(entity.FieldTypeJSON)).
			WithField(entity.NewField().WithName(FieldVector).WithDataType(entity.FieldTypeFloatVector).
				WithDim(int64(dim)))

		if err := c.Client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
			// 另一个实例可能刚刚创建了同名集合
			again, herr := c.Client.HasCollection(ctx, name)
			if herr != nil || !again {
				return fmt.Errorf("创建集合 '%s' 失败: %w", name, err)
			}
		} else {
			idx, err := c.buildIndex()
			if err != nil {
				return err
			}
			if err := c.Client.CreateIndex(ctx, name, FieldVector, idx, false); err != nil {
				return fmt.Errorf("为字段 '%s' 创建索引失败: %w", FieldVector, err)
			}
		}
	}

	if err := c.Client.LoadCollection(ctx, name, false); err != nil {
		return fmt.Errorf("加载 Milvus 集合 '%s' 失败: %w", name, err)
	}
	return nil
}

func (c *MilvusClient) buildIndex() (entity.Index, error) {
	m, ef := c.Config.IndexM, c.Config.EfConstruction
	if m <= 0 {
		m = 16
	}
	if ef <= 0 {
		ef = 200
	}
	return entity.NewIndexHNSW(entity.COSINE, m, ef)
}

// Upsert 按主键写入或覆盖记录。
func (c *MilvusClient) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	ids := make([]string, len(points))
	payloads := make([][]byte, len(points))
	vectors := make([][]float32, len(points))
	for i, p := range points {
		ids[i] = p.ID
		payloads[i] = p.Payload
		vectors[i] = p.Vector
	}

	_, err := c.Client.Upsert(ctx, collection, "",
		entity.NewColumnVarChar(FieldID, ids),
		entity.NewColumnJSONBytes(FieldPayload, payloads),
		entity.NewColumnFloatVector(FieldVector, len(vectors[0]), vectors),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert data into Milvus: %w", err)
	}
	return nil
}

// Search 执行余弦相似度检索，expr 为可选的标量过滤表达式。
func (c *MilvusClient) Search(ctx context.Context, collection string, vector []float32, topK int, expr string) ([]Hit, error) {
	ef := c.Config.SearchEf
	if ef < topK {
		ef = topK * 4
	}
	sp, err := entity.NewIndexHNSWSearchParam(ef)
	if err != nil {
		return nil, err
	}

	results, err := c.Client.Search(
		ctx,
		collection,
		nil,
		expr,
		[]string{FieldPayload},
		[]entity.Vector{entity.FloatVector(vector)},
		FieldVector,
		entity.COSINE,
		topK,
		sp,
		client.WithSearchQueryConsistencyLevel(entity.ClStrong),
	)
	if err != nil {
		return nil, fmt.Errorf("在集合 '%s' 中搜索失败: %w", collection, err)
	}

	var hits []Hit
	for _, r := range results {
		if r.Err != nil {
			return nil, r.Err
		}
		payloadCol := r.Fields.GetColumn(FieldPayload)
		for i := 0; i < r.ResultCount; i++ {
			id, err := columnString(r.IDs, i)
			if err != nil {
				return nil, err
			}
			payload, err := columnJSON(payloadCol, i)
			if err != nil {
				return nil, err
			}
			hits = append(hits, Hit{ID: id, Score: r.Scores[i], Payload: payload})
		}
	}
	return hits, nil
}

// Query 按标量表达式读取最多 limit 条记录。
func (c *MilvusClient) Query(ctx context.Context, collection, expr string, limit int) ([]Hit, error) {
	if expr == "" {
		expr = FieldID + ` != ""`
	}
	rs, err := c.Client.Query(ctx, collection, nil, expr,
		[]string{FieldID, FieldPayload},
		client.WithLimit(int64(limit)),
		client.WithSearchQueryConsistencyLevel(entity.ClStrong),
	)
	if err != nil {
		return nil, fmt.Errorf("查询集合 '%s' 失败: %w", collection, err)
	}

	idCol := rs.GetColumn(FieldID)
	payloadCol := rs.GetColumn(FieldPayload)
	if idCol == nil {
		return nil, nil
	}
	hits := make([]Hit, 0, idCol.Len())
	for i := 0; i < idCol.Len(); i++ {
		id, err := columnString(idCol, i)
		if err != nil {
			return nil, err
		}
		payload, err := columnJSON(payloadCol, i)
		if err != nil {
			return nil, err
		}
		hits = append(hits, Hit{ID: id, Payload: payload})
	}
	return hits, nil
}

// Delete 按主键删除记录。
func (c *MilvusClient) Delete(ctx context.Context, collection string, ids ...string) error {
	if err := c.Client.DeleteByPks(ctx, collection, "", entity.NewColumnVarChar(FieldID, ids)); err != nil {
		return fmt.Errorf("failed to delete data from Milvus: %w", err)
	}
	return nil
}

func columnString(col entity.Column, i int) (string, error) {
	vc, ok := col.(*entity.ColumnVarChar)
	if !ok {
		return "", fmt.Errorf("字段 '%s' 不是 VarChar", FieldID)
	}
	return vc.ValueByIdx(i)
}

func columnJSON(col entity.Column, i int) ([]byte, error) {
	if col == nil {
		return nil, nil
	}
	jc, ok := col.(*entity.ColumnJSONBytes)
	if !ok {
		return nil, fmt.Errorf("字段 '%s' 不是 JSON", FieldPayload)
	}
	return jc.ValueByIdx(i)
}

// StartAutoFlush 启动后台任务，定期刷新已就绪的集合。
func (c *MilvusClient) StartAutoFlush(interval time.Duration) {
	if c.cancelAutoFlush != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancelAutoFlush = cancel
	log := logger.New("database", "", "")

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := c.flushAll(context.Background()); err != nil {
					log.Err(err).Warn("自动刷新 Milvus 集合失败")
				}
			}
		}
	}()
}

// StopAutoFlush 停止后台刷新，并执行最后一次刷新。
func (c *MilvusClient) StopAutoFlush(ctx context.Context) {
	if c.cancelAutoFlush == nil {
		return
	}
	c.cancelAutoFlush()
	c.cancelAutoFlush = nil
	if err := c.flushAll(ctx); err != nil {
		logger.New("database", "", "").Err(err).Warn("停止自动刷新时，最终刷新失败")
	}
}

func (c *MilvusClient) flushAll(ctx context.Context) error {
	c.mu.RLock()
	names := make([]string, 0, len(c.ready))
	for name := range c.ready {
		names = append(names, name)
	}
	c.mu.RUnlock()

	var errs []error
	for _, name := range names {
		flushCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := c.Client.Flush(flushCtx, name, false); err != nil {
			errs = append(errs, fmt.Errorf("刷新集合 '%s' 失败: %w", name, err))
		}
		cancel()
	}
	return errors.Join(errs...)
}
