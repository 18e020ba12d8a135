package ratelimiter

import (
	"sync"
	"time"
)

// TokenBucket 令牌桶限流，允许不超过容量的突发请求。
type TokenBucket struct {
	rate          float64 // 每秒生成的令牌数
	capacity      float64
	tokens        float64
	lastTokenTime time.Time
	now           func() time.Time
	mutex         sync.Mutex
}

// NewTokenBucket 创建一个满桶的令牌桶。
func NewTokenBucket(rate float64, capacity int) *TokenBucket {
	return newTokenBucket(rate, capacity, time.Now)
}

func newTokenBucket(rate float64, capacity int, now func() time.Time) *TokenBucket {
	return &TokenBucket{
		rate:          rate,
		capacity:      float64(capacity),
		tokens:        float64(capacity),
		lastTokenTime: now(),
		now:           now,
	}
}

// Allow 按经过的时间补充令牌，有令牌则消费一个并放行。
func (tb *TokenBucket) Allow() bool {
	tb.mutex.Lock()
	defer tb.mutex.Unlock()

	tb.refill()
	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

func (tb *TokenBucket) refill() {
	now := tb.now()
	if elapsed := now.Sub(tb.lastTokenTime); elapsed > 0 {
		tb.tokens += elapsed.Seconds() * tb.rate
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
		tb.lastTokenTime = now
	}
}

// full 判断令牌桶是否已补满，用于回收空闲的按键令牌桶。
func (tb *TokenBucket) full() bool {
	tb.mutex.Lock()
	defer tb.mutex.Unlock()
	tb.refill()
	return tb.tokens >= tb.capacity
}

// KeyedTokenBucket 为每个键维护独立的令牌桶。
type KeyedTokenBucket struct {
	rate     float64
	capacity int
	maxKeys  int
	now      func() time.Time
	mu       sync.Mutex
	buckets  map[string]*TokenBucket
}

// NewKeyedTokenBucket 创建按键限流器。maxKeys 达到上限时回收已补满的令牌桶。
func NewKeyedTokenBucket(rate float64, capacity, maxKeys int) *KeyedTokenBucket {
	if maxKeys <= 0 {
		maxKeys = 10000
	}
	return &KeyedTokenBucket{
		rate:     rate,
		capacity: capacity,
		maxKeys:  maxKeys,
		now:      time.Now,
		buckets:  make(map[string]*TokenBucket),
	}
}

// AllowKey 对指定键限流。
func (k *KeyedTokenBucket) AllowKey(key string) bool {
	k.mu.Lock()
	b, ok := k.buckets[key]
	if !ok {
		if len(k.buckets) >= k.maxKeys {
			k.evictIdle()
		}
		b = newTokenBucket(k.rate, k.capacity, k.now)
		k.buckets[key] = b
	}
	k.mu.Unlock()
	return b.Allow()
}

func (k *KeyedTokenBucket) evictIdle() {
	for key, b := range k.buckets {
		if b.full() {
			delete(k.buckets, key)
		}
	}
}
