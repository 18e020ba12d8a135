package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"Giorgio/backend/go/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ThreadLocker 串行化同一线程上的轮次。Lock 会等待直到获得锁或 ctx 结束。
type ThreadLocker interface {
	Lock(ctx context.Context, threadID string) (func(), error)
}

// NewThreadLocker 按 agent.threadLock 选择实现。redisClient 只在 "redis" 时使用。
func NewThreadLocker(mode string, ttl time.Duration, redisClient *redis.Client) (ThreadLocker, error) {
	switch strings.ToLower(mode) {
	case "none":
		return NoopLocker{}, nil
	case "", "local":
		return NewLocalLocker(), nil
	case "redis":
		if redisClient == nil {
			return nil, errors.New("线程锁需要 Redis 客户端")
		}
		return NewRedisLocker(redisClient, ttl), nil
	default:
		return nil, fmt.Errorf("不支持的线程锁: %s", mode)
	}
}

// NoopLocker 不做任何串行化。
type NoopLocker struct{}

func (NoopLocker) Lock(ctx context.Context, threadID string) (func(), error) {
	return func() {}, nil
}

type keyedSlot struct {
	ch   chan struct{}
	refs int
}

// LocalLocker 是进程内按线程ID的互斥锁，空闲的锁会被回收。
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*keyedSlot
}

// NewLocalLocker 创建进程内线程锁。
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]*keyedSlot)}
}

func (l *LocalLocker) Lock(ctx context.Context, threadID string) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[threadID]
	if !ok {
		slot = &keyedSlot{ch: make(chan struct{}, 1)}
		l.slots[threadID] = slot
	}
	slot.refs++
	l.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-slot.ch
				l.release(threadID, slot)
			})
		}, nil
	case <-ctx.Done():
		l.release(threadID, slot)
		return nil, fmt.Errorf("%w: %v", models.ErrLocked, ctx.Err())
	}
}

func (l *LocalLocker) release(threadID string, slot *keyedSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, threadID)
	}
}

const lockKeyPrefix = "giorgio:thread-lock:"

// 只删除自己持有的锁。
var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

// RedisLocker 用 SETNX 加 TTL 实现跨实例的线程锁。TTL 防止进程崩溃后锁永不释放。
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
}

// NewRedisLocker 创建基于 Redis 的分布式线程锁。
//
// 参数:
//
//	client: Redis 客户端。
//	ttl: 锁的过期时间，<=0 时使用默认值，防止持有者崩溃后线程永久锁定。
//
// 返回值:
//
//	*RedisLocker: 锁实例。
func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisLocker{client: client, ttl: ttl, retry: 50 * time.Millisecond}
}

func (r *RedisLocker) Lock(ctx context.Context, threadID string) (func(), error) {
	key := lockKeyPrefix + threadID
	token := uuid.NewString()
	ticker := time.NewTicker(r.retry)
	defer ticker.Stop()

	for {
		ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("获取线程锁失败: %w", err)
		}
		if ok {
			return func() {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = unlockScript.Run(ctx, r.client, []string{key}, token).Err()
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", models.ErrLocked, ctx.Err())
		case <-ticker.C:
		}
	}
}
