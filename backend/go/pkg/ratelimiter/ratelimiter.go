package ratelimiter

// RateLimiter 是全局限流接口。
type RateLimiter interface {
	Allow() bool
}

// KeyedRateLimiter 按键（通常是用户ID）分别限流。
type KeyedRateLimiter interface {
	AllowKey(key string) bool
}
