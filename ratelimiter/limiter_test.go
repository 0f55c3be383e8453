package ratelimiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestTokenBucket_ConsumeAndRefill(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	bucket := newTokenBucket(60, 60, time.Minute, clock.now)

	require.True(t, bucket.TryConsume(50))
	assert.Equal(t, 10, bucket.Remaining())
	assert.False(t, bucket.TryConsume(11), "should not consume more than remaining")

	// one token per second
	clock.advance(5 * time.Second)
	assert.Equal(t, 15, bucket.Remaining())
	assert.True(t, bucket.TryConsume(15))

	clock.advance(10 * time.Minute)
	assert.Equal(t, 60, bucket.Remaining(), "refill is capped at capacity")
}

func TestTokenBucket_TimeUntilAvailable(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	bucket := newTokenBucket(60, 0, time.Minute, clock.now)

	wait := bucket.TimeUntilAvailable(1)
	assert.InDelta(t, float64(1100*time.Millisecond), float64(wait), float64(50*time.Millisecond))

	assert.Equal(t, time.Minute, bucket.TimeUntilAvailable(61), "oversized requests wait one interval")

	clock.advance(2 * time.Second)
	assert.Zero(t, bucket.TimeUntilAvailable(1))
}

func TestTokenBucket_ZeroCapacityNeverLimits(t *testing.T) {
	bucket := NewTokenBucket(0, 0, time.Minute)
	assert.True(t, bucket.TryConsume(1_000_000))
	assert.Zero(t, bucket.TimeUntilAvailable(1_000_000))
}

func TestRateLimiter_TryConsume(t *testing.T) {
	smallTokens := New(10, 100)
	require.True(t, smallTokens.TryConsume(10))
	assert.False(t, smallTokens.TryConsume(1), "tokens exhausted")

	smallRequests := New(100, 1)
	require.True(t, smallRequests.TryConsume(1))
	assert.False(t, smallRequests.TryConsume(1), "requests exhausted")
	assert.Equal(t, 99, smallRequests.Tokens.Remaining(), "refused request refunds its tokens")
}

func TestRateLimiter_WaitAndConsume(t *testing.T) {
	rl := New(60, 60)
	require.True(t, rl.TryConsume(60))

	err := rl.WaitAndConsume(context.Background(), 30, time.Second)
	assert.ErrorIs(t, err, ErrWaitExceeded)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = rl.WaitAndConsume(ctx, 1, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry()

	_, ok := registry.Get("missing")
	assert.False(t, ok)

	limiter := New(10, 10)
	registry.Set("model", limiter)
	got, ok := registry.Get("model")
	require.True(t, ok)
	assert.Same(t, limiter, got)

	replacement := New(20, 20)
	registry.Set("model", replacement)
	got, _ = registry.Get("model")
	assert.Same(t, replacement, got)
}
