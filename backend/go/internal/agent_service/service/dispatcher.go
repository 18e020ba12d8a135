package service

import (
	"context"
	"errors"
	"time"

	"Giorgio/backend/go/internal/models"
	"Giorgio/backend/go/pkg/logger"
	"Giorgio/backend/go/pkg/workerpool"
)

// ErrQueueFull 表示后台队列已满，任务被丢弃。
var ErrQueueFull = errors.New("后台任务队列已满")

// Dispatcher 把记忆抽取任务交给后台，Submit 不等待任务执行。
type Dispatcher interface {
	Submit(ctx context.Context, job models.ExtractionJob) error
}

// JobHandler 执行抽取任务，返回保存的记忆数量。
type JobHandler interface {
	HandleExtractionJob(ctx context.Context, job models.ExtractionJob) int
}

// PoolDispatcher 在进程内的有界工作池中执行任务。
type PoolDispatcher struct {
	pool    *workerpool.Pool
	handler JobHandler
	timeout time.Duration
}

// NewPoolDispatcher 创建基于工作池的抽取分发器。
//
// 参数:
//
//	pool: 执行任务的工作池。
//	handler: 处理单个抽取任务的函数。
//	timeout: 单个任务的超时，<=0 时使用默认值。
//
// 返回值:
//
//	*PoolDispatcher: 分发器实例。
func NewPoolDispatcher(pool *workerpool.Pool, handler JobHandler, timeout time.Duration) *PoolDispatcher {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &PoolDispatcher{pool: pool, handler: handler, timeout: timeout}
}

func (d *PoolDispatcher) Submit(ctx context.Context, job models.ExtractionJob) error {
	ok := d.pool.Submit(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()
		n := d.handler.HandleExtractionJob(ctx, job)
		logger.New("memory_extraction", "", job.OwnerID).
			WithPayload(map[string]interface{}{"source": job.Source, "stored": n}).
			Debug("后台记忆抽取完成")
	})
	if !ok {
		return ErrQueueFull
	}
	return nil
}

// Publisher 是 Kafka JSON 发布者的最小接口。
type Publisher interface {
	Publish(ctx context.Context, key string, v interface{}) error
}

// KafkaDispatcher 把任务写入 Kafka 主题，由 memory_worker 消费。
// 写入在独立协程中完成，不占用轮次的时间。
type KafkaDispatcher struct {
	publisher Publisher
	timeout   time.Duration
}

// NewKafkaDispatcher 创建把抽取任务写入 Kafka 的分发器，单次写入超时 10 秒。
func NewKafkaDispatcher(p Publisher) *KafkaDispatcher {
	return &KafkaDispatcher{publisher: p, timeout: 10 * time.Second}
}

func (d *KafkaDispatcher) Submit(ctx context.Context, job models.ExtractionJob) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	go func() {
		defer cancel()
		if err := d.publisher.Publish(ctx, job.OwnerID, job); err != nil {
			logger.New("memory_extraction", "", job.OwnerID).Err(err).Error("发布记忆抽取任务失败")
		}
	}()
	return nil
}
