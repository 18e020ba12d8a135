package ratelimiter

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestTokenBucketBurstAndRefill(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	tb := newTokenBucket(1, 2, clock.now)

	if !tb.Allow() || !tb.Allow() {
		t.Fatal("满桶应允许两次突发请求")
	}
	if tb.Allow() {
		t.Fatal("令牌耗尽后应拒绝")
	}
	clock.t = clock.t.Add(time.Second)
	if !tb.Allow() {
		t.Fatal("一秒后应补充一个令牌")
	}
}

func TestKeyedTokenBucketIsolatesKeys(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	k := NewKeyedTokenBucket(1, 1, 10)
	k.now = clock.now

	if !k.AllowKey("alice") {
		t.Fatal("alice 首次请求应放行")
	}
	if k.AllowKey("alice") {
		t.Fatal("alice 第二次请求应被限流")
	}
	if !k.AllowKey("bob") {
		t.Fatal("bob 不应受 alice 影响")
	}
}

func TestKeyedTokenBucketEvictsFullBuckets(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	k := NewKeyedTokenBucket(1, 1, 2)
	k.now = clock.now

	k.AllowKey("a")
	k.AllowKey("b")
	clock.t = clock.t.Add(5 * time.Second)
	k.AllowKey("c")
	if len(k.buckets) > 2 {
		t.Fatalf("应回收空闲令牌桶，实际 %d 个", len(k.buckets))
	}
}
