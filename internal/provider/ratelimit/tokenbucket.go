package ratelimit

import (
	"context"
	"sync"
	"time"

	"goldprice/internal/provider"
)

// TokenBucket is a small token bucket limiter.
// - rate: tokens per second
// - capacity: maximum tokens the bucket can hold (burst)
type TokenBucket struct {
	rate     float64
	capacity float64

	mu     sync.Mutex
	tokens float64
	last   time.Time
}

func NewTokenBucket(tokensPerSecond float64, burst int) *TokenBucket {
	if tokensPerSecond <= 0 {
		tokensPerSecond = 0.0000001
	}
	if burst <= 0 {
		burst = 1
	}
	return &TokenBucket{
		rate:     tokensPerSecond,
		capacity: float64(burst),
		tokens:   float64(burst), // start full to allow an initial burst
		last:     time.Now(),
	}
}

// Wait blocks until one token is available or the context is canceled.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		tb.mu.Lock()
		now := time.Now()
		if elapsed := now.Sub(tb.last).Seconds(); elapsed > 0 {
			tb.tokens += elapsed * tb.rate
			if tb.tokens > tb.capacity {
				tb.tokens = tb.capacity
			}
			tb.last = now
		}
		if tb.tokens >= 1 {
			tb.tokens--
			tb.mu.Unlock()
			return nil
		}
		deficit := 1 - tb.tokens
		tb.mu.Unlock()

		waitDur := time.Duration(deficit / tb.rate * float64(time.Second))
		if waitDur <= 0 {
			waitDur = time.Millisecond
		}
		timer := time.NewTimer(waitDur)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// TokenBucketAdapter gates an adapter's calls using a token bucket.
type TokenBucketAdapter struct {
	A  provider.Adapter
	TB *TokenBucket
}

func (t *TokenBucketAdapter) Name() string { return t.A.Name() }

func (t *TokenBucketAdapter) Fetch(ctx context.Context) ([]provider.RawSourcePrice, error) {
	if t.TB != nil {
		if err := t.TB.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return t.A.Fetch(ctx)
}
