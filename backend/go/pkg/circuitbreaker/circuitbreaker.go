package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State 表示熔断器的状态。
type State int

const (
	// Closed 正常放行请求。
	Closed State = iota
	// Open 熔断中，直接拒绝请求。
	Open
	// HalfOpen 放行试探请求，连续成功达到阈值后恢复 Closed。
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "Closed"
	case Open:
		return "Open"
	case HalfOpen:
		return "Half-Open"
	default:
		return "Unknown"
	}
}

// ErrCircuitOpen 在熔断器处于 Open 状态时返回。
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker 是熔断器接口。
type CircuitBreaker interface {
	Execute(req func() (interface{}, error)) (interface{}, error)
	State() State
}

// Option 配置熔断器。
type Option func(*breaker)

// WithFailurePredicate 指定哪些错误计入失败。默认除 context.Canceled 外的所有错误都计入。
func WithFailurePredicate(fn func(error) bool) Option {
	return func(b *breaker) { b.isFailure = fn }
}

// WithStateChange 注册状态变化回调，回调在锁外执行。
func WithStateChange(fn func(from, to State)) Option {
	return func(b *breaker) { b.onStateChange = fn }
}

type breaker struct {
	failureThreshold     uint32
	successThreshold     uint32
	timeout              time.Duration
	consecutiveSuccesses uint32
	consecutiveFailures  uint32
	openedAt             time.Time
	state                State
	isFailure            func(error) bool
	onStateChange        func(from, to State)
	mutex                sync.Mutex
}

// New 创建熔断器。
// failureThreshold: 连续失败多少次后熔断。
// successThreshold: 半开状态下连续成功多少次后恢复。
// timeout: 熔断持续多久后进入半开状态。
func New(failureThreshold, successThreshold uint32, timeout time.Duration, opts ...Option) CircuitBreaker {
	if failureThreshold == 0 {
		failureThreshold = 1
	}
	if successThreshold == 0 {
		successThreshold = 1
	}
	b := &breaker{
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		timeout:          timeout,
		state:            Closed,
		isFailure: func(err error) bool {
			return !errors.Is(err, context.Canceled)
		},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *breaker) State() State {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.currentState(time.Now())
}

// currentState 在超时后把 Open 推进为 HalfOpen，调用方需持有锁。
func (b *breaker) currentState(now time.Time) State {
	if b.state == Open && now.Sub(b.openedAt) > b.timeout {
		b.state = HalfOpen
		b.consecutiveSuccesses = 0
	}
	return b.state
}

func (b *breaker) Execute(req func() (interface{}, error)) (interface{}, error) {
	b.mutex.Lock()
	before := b.state
	state := b.currentState(time.Now())
	b.mutex.Unlock()
	b.notify(before, state)

	if state == Open {
		return nil, ErrCircuitOpen
	}

	res, err := req()
	if err != nil && b.isFailure(err) {
		b.record(false)
		return nil, err
	}
	b.record(true)
	return res, err
}

func (b *breaker) record(success bool) {
	b.mutex.Lock()
	before := b.state
	switch b.state {
	case HalfOpen:
		if !success {
			b.trip()
			break
		}
		b.consecutiveSuccesses++
		if b.consecutiveSuccesses >= b.successThreshold {
			b.reset()
		}
	case Closed:
		if success {
			b.consecutiveFailures = 0
			break
		}
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.failureThreshold {
			b.trip()
		}
	}
	after := b.state
	b.mutex.Unlock()
	b.notify(before, after)
}

func (b *breaker) notify(from, to State) {
	if from != to && b.onStateChange != nil {
		b.onStateChange(from, to)
	}
}

func (b *breaker) trip() {
	b.state = Open
	b.openedAt = time.Now()
	b.consecutiveFailures = 0
	b.consecutiveSuccesses = 0
}

func (b *breaker) reset() {
	b.state = Closed
	b.consecutiveFailures = 0
	b.consecutiveSuccesses = 0
}

// Do 是带类型的 Execute。
func Do[T any](cb CircuitBreaker, fn func() (T, error)) (T, error) {
	res, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})
	var zero T
	if res == nil {
		return zero, err
	}
	v, ok := res.(T)
	if !ok {
		return zero, err
	}
	return v, err
}
