package ratelimiter

import (
	"sync"
	"time"
)

// TokenBucket refills linearly up to capacity over each refill interval.
type TokenBucket struct {
	mu             sync.Mutex
	capacity       int
	remaining      float64
	refillInterval time.Duration
	lastRefill     time.Time
	now            func() time.Time
}

// NewTokenBucket creates a bucket holding initialTokens out of capacity.
// A capacity of zero or less means the bucket never limits.
func NewTokenBucket(capacity int, initialTokens int, refillInterval time.Duration) *TokenBucket {
	return newTokenBucket(capacity, initialTokens, refillInterval, time.Now)
}

func newTokenBucket(capacity, initialTokens int, refillInterval time.Duration, now func() time.Time) *TokenBucket {
	return &TokenBucket{
		capacity:       capacity,
		remaining:      float64(initialTokens),
		refillInterval: refillInterval,
		lastRefill:     now(),
		now:            now,
	}
}

func (tb *TokenBucket) unlimited() bool {
	return tb.capacity <= 0
}

// refill must be called with mu held.
func (tb *TokenBucket) refill() {
	now := tb.now()
	elapsed := now.Sub(tb.lastRefill)
	if elapsed <= 0 {
		return
	}
	refilled := float64(tb.capacity) * float64(elapsed) / float64(tb.refillInterval)
	tb.remaining = min(float64(tb.capacity), tb.remaining+refilled)
	tb.lastRefill = now
}

// HasCapacity checks if tokens are available without consuming them.
func (tb *TokenBucket) HasCapacity(tokens int) bool {
	if tb.unlimited() {
		return true
	}
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill()
	return float64(tokens) <= tb.remaining
}

// TryConsume consumes tokens if available.
func (tb *TokenBucket) TryConsume(tokens int) bool {
	if tb.unlimited() {
		return true
	}
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill()
	if float64(tokens) <= tb.remaining {
		tb.remaining -= float64(tokens)
		return true
	}
	return false
}

// refund gives back tokens taken by a TryConsume whose sibling bucket refused.
func (tb *TokenBucket) refund(tokens int) {
	if tb.unlimited() {
		return
	}
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.remaining = min(float64(tb.capacity), tb.remaining+float64(tokens))
}

// Remaining returns the current whole number of tokens.
func (tb *TokenBucket) Remaining() int {
	if tb.unlimited() {
		return 0
	}
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill()
	return int(tb.remaining)
}

// TimeUntilAvailable returns how long until tokens would be available.
// Requests larger than capacity are reported as one full interval.
func (tb *TokenBucket) TimeUntilAvailable(tokens int) time.Duration {
	if tb.unlimited() {
		return 0
	}
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill()

	if float64(tokens) <= tb.remaining {
		return 0
	}
	if tokens > tb.capacity {
		return tb.refillInterval
	}

	needed := float64(tokens) - tb.remaining
	wait := time.Duration(needed * float64(tb.refillInterval) / float64(tb.capacity))

	// 10% buffer so the refill has surely landed
	return wait + wait/10
}
