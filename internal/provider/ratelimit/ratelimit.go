package ratelimit

import (
	"context"
	"sync"
	"time"

	"goldprice/internal/provider"
)

// MinInterval wraps an adapter and enforces a minimum time between upstream calls.
// Concurrent calls wait until the interval has elapsed since the last call,
// or return early if the context is canceled.
type MinInterval struct {
	A        provider.Adapter
	Interval time.Duration

	mu   sync.Mutex
	last time.Time
}

func (m *MinInterval) Name() string { return m.A.Name() }

func (m *MinInterval) Fetch(ctx context.Context) ([]provider.RawSourcePrice, error) {
	if m.Interval > 0 {
		m.mu.Lock()
		wait := time.Until(m.last.Add(m.Interval))
		m.mu.Unlock()
		if wait > 0 {
			t := time.NewTimer(wait)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-t.C:
			}
		}
	}
	ps, err := m.A.Fetch(ctx)
	if m.Interval > 0 {
		m.mu.Lock()
		m.last = time.Now()
		m.mu.Unlock()
	}
	return ps, err
}

// Wrap applies the limiter a configuration asks for: a token bucket when a per-minute
// budget is set, otherwise a minimum interval, otherwise nothing.
func Wrap(a provider.Adapter, perMinute, burst int, minInterval time.Duration) provider.Adapter {
	switch {
	case perMinute > 0:
		if burst <= 0 {
			burst = 1
		}
		return &TokenBucketAdapter{A: a, TB: NewTokenBucket(float64(perMinute)/60.0, burst)}
	case minInterval > 0:
		return &MinInterval{A: a, Interval: minInterval}
	}
	return a
}
