package ratelimiter

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrWaitExceeded is returned when the required wait is longer than allowed.
var ErrWaitExceeded = errors.New("rate limit wait exceeds max wait")

// RateLimiter combines a per-minute token budget with a per-minute request budget.
type RateLimiter struct {
	Tokens   *TokenBucket
	Requests *TokenBucket
}

var _ Limiter = (*RateLimiter)(nil)

// New creates a limiter with full buckets refilling every minute.
// Zero for either budget disables that budget.
func New(tokensPerMinute, requestsPerMinute int) *RateLimiter {
	return &RateLimiter{
		Tokens:   NewTokenBucket(tokensPerMinute, tokensPerMinute, time.Minute),
		Requests: NewTokenBucket(requestsPerMinute, requestsPerMinute, time.Minute),
	}
}

// TryConsume takes numTokens and one request, or nothing.
func (rl *RateLimiter) TryConsume(numTokens int) bool {
	if !rl.Tokens.TryConsume(numTokens) {
		return false
	}
	if !rl.Requests.TryConsume(1) {
		rl.Tokens.refund(numTokens)
		return false
	}
	return true
}

// TimeUntilAvailable returns the longer of the token and request waits.
func (rl *RateLimiter) TimeUntilAvailable(tokens int) time.Duration {
	return max(rl.Tokens.TimeUntilAvailable(tokens), rl.Requests.TimeUntilAvailable(1))
}

// WaitAndConsume waits until capacity is available (up to maxWait), then consumes it.
// If maxWait is 0, there is no limit on how long to wait.
func (rl *RateLimiter) WaitAndConsume(ctx context.Context, tokens int, maxWait time.Duration) error {
	deadline := time.Now().Add(maxWait)

	for {
		if rl.TryConsume(tokens) {
			return nil
		}

		wait := rl.TimeUntilAvailable(tokens)
		if wait <= 0 {
			wait = 10 * time.Millisecond
		}
		if maxWait > 0 && time.Now().Add(wait).After(deadline) {
			return fmt.Errorf("%w: need %v, max %v", ErrWaitExceeded, wait, maxWait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
