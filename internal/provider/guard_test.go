package provider_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"goldprice/internal/parse"
	"goldprice/internal/provider"
	"goldprice/internal/provider/mocks"
)

func mustPrice(t *testing.T, src string, k int, buy float64) provider.RawSourcePrice {
	t.Helper()
	p, err := provider.NewRawSourcePrice(src, k, buy, nil, time.Now())
	require.NoError(t, err)
	return p
}

func TestNewRawSourcePrice_Validation(t *testing.T) {
	t.Parallel()

	sell := 900000.0
	p, err := provider.NewRawSourcePrice("antam", 24, 1000000, &sell, time.Time{})
	require.NoError(t, err)
	require.Equal(t, provider.UnitGram, p.Unit)
	require.False(t, p.CapturedAt.IsZero())

	bad := -1.0
	for _, tc := range []struct {
		src  string
		k    int
		buy  float64
		sell *float64
	}{
		{"", 24, 1, nil},
		{"x", 0, 1, nil},
		{"x", 25, 1, nil},
		{"x", 24, 0, nil},
		{"x", 24, 1, &bad},
	} {
		_, err := provider.NewRawSourcePrice(tc.src, tc.k, tc.buy, tc.sell, time.Now())
		require.ErrorIs(t, err, provider.ErrInvalidPrice)
	}
}

func TestGuard_PassesThroughAndFiltersBand(t *testing.T) {
	t.Parallel()

	// Arrange: an adapter returning one in-band and one out-of-band price
	ctrl := gomock.NewController(t)
	a := mocks.NewMockAdapter(ctrl)
	a.EXPECT().Name().Return("site").AnyTimes()
	a.EXPECT().Fetch(gomock.Any()).Return([]provider.RawSourcePrice{
		mustPrice(t, "site", 24, 1100000),
		mustPrice(t, "site", 22, 5000),
	}, nil).Times(1)

	// Act
	got := provider.NewGuard(a, time.Second, parse.DefaultBand, nil).FetchPrices(t.Context())

	// Assert
	require.Len(t, got, 1)
	require.Equal(t, 24, got[0].Karat)
}

func TestGuard_ErrorBecomesEmpty(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	a := mocks.NewMockAdapter(ctrl)
	a.EXPECT().Name().Return("down").AnyTimes()
	a.EXPECT().Fetch(gomock.Any()).Return(nil, errors.New("connection refused")).Times(1)

	got, err := provider.NewGuard(a, time.Second, parse.DefaultBand, nil).Fetch(t.Context())
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestGuard_PanicBecomesEmpty(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	a := mocks.NewMockAdapter(ctrl)
	a.EXPECT().Name().Return("broken").AnyTimes()
	a.EXPECT().Fetch(gomock.Any()).DoAndReturn(func(context.Context) ([]provider.RawSourcePrice, error) {
		panic("nil map")
	}).Times(1)

	require.NotPanics(t, func() {
		require.Empty(t, provider.NewGuard(a, time.Second, parse.DefaultBand, nil).FetchPrices(t.Context()))
	})
}

func TestGuard_TimeoutReturnsPromptly(t *testing.T) {
	t.Parallel()

	// Arrange: an adapter that ignores its context for far longer than the timeout
	ctrl := gomock.NewController(t)
	a := mocks.NewMockAdapter(ctrl)
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	a.EXPECT().Name().Return("slow").AnyTimes()
	a.EXPECT().Fetch(gomock.Any()).DoAndReturn(func(context.Context) ([]provider.RawSourcePrice, error) {
		<-release
		return nil, nil
	}).Times(1)

	// Act
	start := time.Now()
	got := provider.NewGuard(a, 50*time.Millisecond, parse.DefaultBand, nil).FetchPrices(t.Context())

	// Assert
	require.Empty(t, got)
	require.Less(t, time.Since(start), time.Second)
}
