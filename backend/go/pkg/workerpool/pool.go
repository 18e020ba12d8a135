package workerpool

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"Giorgio/backend/go/internal/models"
	"Giorgio/backend/go/pkg/logger"
)

// Job 是提交到工作池的任务。ctx 在 Shutdown 超时后被取消。
type Job func(ctx context.Context)

// Pool 是有界队列加固定数量工作协程的后台任务池。
// 队列满时 Submit 立即返回 false，调用方据此做降级而不是阻塞请求路径。
type Pool struct {
	name    string
	jobs    chan Job
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	closed  atomic.Bool
	mu      sync.RWMutex
	log     *logger.Logger
	dropped atomic.Int64
	panics  atomic.Int64
}

// New 创建并启动工作池。
func New(name string, workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		name:   name,
		jobs:   make(chan Job, queueSize),
		ctx:    ctx,
		cancel: cancel,
		log:    logger.New(name, "", ""),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		p.run(job)
	}
}

func (p *Pool) run(job Job) {
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			p.log.WithError(models.ErrorInfo{Message: fmt.Sprint(r), Type: "panic"}).
				WithPayload(map[string]interface{}{"stack": string(debug.Stack())}).
				Error("后台任务发生 panic")
		}
	}()
	job(p.ctx)
}

// Submit 非阻塞地提交任务。队列已满或工作池已关闭时返回 false。
func (p *Pool) Submit(job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed.Load() {
		p.dropped.Add(1)
		return false
	}
	select {
	case p.jobs <- job:
		return true
	default:
		p.dropped.Add(1)
		return false
	}
}

// Dropped 返回被拒绝的任务数。
func (p *Pool) Dropped() int64 { return p.dropped.Load() }

// Panics 返回发生 panic 的任务数。
func (p *Pool) Panics() int64 { return p.panics.Load() }

// Shutdown 停止接收任务并等待队列排空。ctx 到期时取消正在运行的任务并返回 ctx 的错误。
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed.Swap(true) {
		close(p.jobs)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}
