package util

import (
	"container/list"
	"errors"
	"sync"
	"time"
)

// CacheConfig 配置 LRU 缓存。
type CacheConfig[K comparable, V any] struct {
	// Capacity 是最大条目数，0 表示不限。
	Capacity int
	// MaxWeight 是所有条目的权重上限，0 表示不限。
	MaxWeight int
	// TTL 是条目的存活时间，0 表示永不过期。
	TTL time.Duration
	// OnEvict 在条目因容量、权重或过期被移除时回调，Delete 不触发。
	OnEvict func(key K, value V)
}

type entry[K comparable, V any] struct {
	key        K
	value      V
	weight     int
	expiration time.Time
}

// LRUCache 是线程安全的泛型 LRU 缓存，支持容量、权重和 TTL 三种淘汰条件。
type LRUCache[K comparable, V any] struct {
	config        CacheConfig[K, V]
	ll            *list.List
	cache         map[K]*list.Element
	currentWeight int
	now           func() time.Time
	lock          sync.Mutex
}

// NewWithConfig 使用指定的配置创建缓存。
func NewWithConfig[K comparable, V any](config CacheConfig[K, V]) (*LRUCache[K, V], error) {
	if config.Capacity <= 0 && config.MaxWeight <= 0 {
		return nil, errors.New("必须设置 Capacity 或 MaxWeight 中的至少一个")
	}
	return &LRUCache[K, V]{
		config: config,
		ll:     list.New(),
		cache:  make(map[K]*list.Element),
		now:    time.Now,
	}, nil
}

// Get 读取并标记为最近使用，过期条目按未命中处理并被移除。
func (c *LRUCache[K, V]) Get(key K) (V, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	var zero V
	element, ok := c.cache[key]
	if !ok {
		return zero, false
	}
	e := element.Value.(*entry[K, V])
	if c.expired(e) {
		c.removeElement(element, true)
		return zero, false
	}
	c.ll.MoveToFront(element)
	return e.value, true
}

// Put 写入或更新条目。基于容量淘汰时 weight 传 1 即可。
func (c *LRUCache[K, V]) Put(key K, value V, weight int) {
	c.lock.Lock()
	defer c.lock.Unlock()

	var expiration time.Time
	if c.config.TTL > 0 {
		expiration = c.now().Add(c.config.TTL)
	}

	if element, ok := c.cache[key]; ok {
		e := element.Value.(*entry[K, V])
		c.currentWeight += weight - e.weight
		e.weight = weight
		e.value = value
		e.expiration = expiration
		c.ll.MoveToFront(element)
	} else {
		element := c.ll.PushFront(&entry[K, V]{key: key, value: value, weight: weight, expiration: expiration})
		c.cache[key] = element
		c.currentWeight += weight
	}

	for c.isOverCapacity() {
		back := c.ll.Back()
		if back == nil {
			break
		}
		c.removeElement(back, true)
	}
}

// Delete 移除条目，返回条目是否存在。
func (c *LRUCache[K, V]) Delete(key K) bool {
	c.lock.Lock()
	defer c.lock.Unlock()

	element, ok := c.cache[key]
	if !ok {
		return false
	}
	c.removeElement(element, false)
	return true
}

// PurgeExpired 主动清理所有过期条目，返回清理数量。
func (c *LRUCache[K, V]) PurgeExpired() int {
	c.lock.Lock()
	defer c.lock.Unlock()

	n := 0
	for element := c.ll.Back(); element != nil; {
		prev := element.Prev()
		if c.expired(element.Value.(*entry[K, V])) {
			c.removeElement(element, true)
			n++
		}
		element = prev
	}
	return n
}

func (c *LRUCache[K, V]) expired(e *entry[K, V]) bool {
	return c.config.TTL > 0 && c.now().After(e.expiration)
}

func (c *LRUCache[K, V]) isOverCapacity() bool {
	if c.config.Capacity > 0 && c.ll.Len() > c.config.Capacity {
		return true
	}
	return c.config.MaxWeight > 0 && c.currentWeight > c.config.MaxWeight
}

// removeElement 需持有锁。
func (c *LRUCache[K, V]) removeElement(el *list.Element, evicted bool) {
	c.ll.Remove(el)
	e := el.Value.(*entry[K, V])
	delete(c.cache, e.key)
	c.currentWeight -= e.weight
	if evicted && c.config.OnEvict != nil {
		c.config.OnEvict(e.key, e.value)
	}
}

// Len 返回当前条目数（含尚未被动清理的过期条目）。
func (c *LRUCache[K, V]) Len() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.ll.Len()
}

// Weight 返回当前总权重。
func (c *LRUCache[K, V]) Weight() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.currentWeight
}
