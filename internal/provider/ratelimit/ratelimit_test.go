package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"goldprice/internal/provider"
)

type stubAdapter struct{ calls int }

func (s *stubAdapter) Name() string { return "stub" }

func (s *stubAdapter) Fetch(context.Context) ([]provider.RawSourcePrice, error) {
	s.calls++
	return nil, nil
}

func TestMinInterval_CanceledWhileWaiting(t *testing.T) {
	t.Parallel()

	inner := &stubAdapter{}
	m := &MinInterval{A: inner, Interval: time.Hour}
	_, err := m.Fetch(t.Context())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	_, err = m.Fetch(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 1, inner.calls)
}

func TestTokenBucket_BurstThenBlock(t *testing.T) {
	t.Parallel()

	tb := NewTokenBucket(0.001, 2)
	require.NoError(t, tb.Wait(t.Context()))
	require.NoError(t, tb.Wait(t.Context()))

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, tb.Wait(ctx), context.DeadlineExceeded)
}

func TestWrap(t *testing.T) {
	t.Parallel()

	inner := &stubAdapter{}
	require.IsType(t, &TokenBucketAdapter{}, Wrap(inner, 30, 0, time.Second))
	require.IsType(t, &MinInterval{}, Wrap(inner, 0, 0, time.Second))
	require.Same(t, provider.Adapter(inner), Wrap(inner, 0, 0, 0))
}
