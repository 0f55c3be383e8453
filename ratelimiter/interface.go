// Package ratelimiter provides per-model token and request budgets for
// provider calls.
package ratelimiter

import (
	"context"
	"time"
)

// Limiter defines the interface for rate limiters.
// Implementations can be local (in-memory) or distributed.
type Limiter interface {
	// TryConsume atomically checks capacity and consumes tokens plus one request if available.
	TryConsume(numTokens int) bool

	// TimeUntilAvailable returns how long until tokens would be available (read-only).
	TimeUntilAvailable(tokens int) time.Duration

	// WaitAndConsume waits until tokens are available, then consumes them.
	// Returns an error if ctx is cancelled or maxWait would be exceeded.
	WaitAndConsume(ctx context.Context, tokens int, maxWait time.Duration) error
}
