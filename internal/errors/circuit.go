package errors

import (
	"sync"
	"time"
)

// State is the state of a CircuitBreaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// CircuitBreaker guards a flaky collaborator (embedder, vector store) from
// being hammered with calls once it starts failing consistently.
type CircuitBreaker struct {
	mu           sync.Mutex
	state        State
	failures     int
	maxFailures  int
	resetTimeout time.Duration
	openedAt     time.Time
}

type CircuitOption func(*CircuitBreaker)

func WithMaxFailures(n int) CircuitOption {
	return func(c *CircuitBreaker) { c.maxFailures = n }
}

func WithResetTimeout(d time.Duration) CircuitOption {
	return func(c *CircuitBreaker) { c.resetTimeout = d }
}

func NewCircuitBreaker(opts ...CircuitOption) *CircuitBreaker {
	c := &CircuitBreaker{
		maxFailures:  5,
		resetTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Allow reports whether a call should be attempted right now.
func (c *CircuitBreaker) Allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateOpen:
		if time.Since(c.openedAt) >= c.resetTimeout {
			c.state = StateHalfOpen
			return true
		}
		return false
	default:
		return true
	}
}

func (c *CircuitBreaker) RecordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = 0
	c.state = StateClosed
}

func (c *CircuitBreaker) RecordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures++
	if c.state == StateHalfOpen || c.failures >= c.maxFailures {
		c.state = StateOpen
		c.openedAt = time.Now()
	}
}

func (c *CircuitBreaker) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Execute runs fn if the breaker allows it, recording the outcome.
func (c *CircuitBreaker) Execute(fn func() error) error {
	if !c.Allow() {
		return New(ErrCodeNetworkUnavailable, "circuit breaker open")
	}
	err := fn()
	if err != nil {
		c.RecordFailure()
		return err
	}
	c.RecordSuccess()
	return nil
}

// CircuitExecuteWithResult is Execute for functions that also produce a value.
func CircuitExecuteWithResult[T any](c *CircuitBreaker, fn func() (T, error)) (T, error) {
	var zero T
	if !c.Allow() {
		return zero, New(ErrCodeNetworkUnavailable, "circuit breaker open")
	}
	result, err := fn()
	if err != nil {
		c.RecordFailure()
		return zero, err
	}
	c.RecordSuccess()
	return result, nil
}
