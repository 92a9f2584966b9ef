package aggregate_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"goldprice/internal/aggregate"
	"goldprice/internal/karat"
	"goldprice/internal/model"
	"goldprice/internal/parse"
	"goldprice/internal/provider"
	"goldprice/internal/provider/estimate"
	"goldprice/internal/provider/mocks"
	"goldprice/internal/store"
	"goldprice/internal/store/memory"
)

func price(t *testing.T, src string, k int, buy float64) provider.RawSourcePrice {
	t.Helper()
	p, err := provider.NewRawSourcePrice(src, k, buy, nil, time.Now())
	require.NoError(t, err)
	return p
}

func adapter(ctrl *gomock.Controller, name string, prices []provider.RawSourcePrice, err error) *mocks.MockAdapter {
	a := mocks.NewMockAdapter(ctrl)
	a.EXPECT().Name().Return(name).AnyTimes()
	a.EXPECT().Fetch(gomock.Any()).Return(prices, err).AnyTimes()
	return a
}

func options(prev aggregate.PreviousSource) aggregate.Options {
	band := parse.DefaultBand
	return aggregate.Options{
		Band:      band,
		Karats:    karat.MustTable(karat.Standard),
		Currency:  "IDR",
		Estimator: estimate.New(estimate.Config{}, band),
		Previous:  prev,
		Timeout:   time.Second,
	}
}

func karatsOf(prices []model.GoldPriceData) []int {
	out := make([]int, len(prices))
	for i, p := range prices {
		out[i] = p.Karat
	}
	return out
}

func byKarat(prices []model.GoldPriceData) map[int]model.GoldPriceData {
	out := make(map[int]model.GoldPriceData, len(prices))
	for _, p := range prices {
		out[p.Karat] = p
	}
	return out
}

func TestAggregate_AllSourcesEmptyStillCoversTrackedKarats(t *testing.T) {
	t.Parallel()

	// Arrange: every adapter fails or returns nothing
	ctrl := gomock.NewController(t)
	opts := options(nil)
	opts.Primary = adapter(ctrl, "goldapi", nil, errors.New("503"))
	opts.Scrapers = []provider.Adapter{
		adapter(ctrl, "harga-emas", nil, nil),
		adapter(ctrl, "antam", nil, errors.New("dns")),
	}
	agg, err := aggregate.New(opts)
	require.NoError(t, err)

	// Act
	res := agg.Run(t.Context())

	// Assert
	require.Equal(t, aggregate.TierEstimate, res.Tier)
	require.Equal(t, []int{24, 22, 20, 18, 16, 14, 10}, karatsOf(res.Prices))
	require.ElementsMatch(t, karat.Standard, res.Estimated)
	require.Equal(t, 1_125_000.0, res.Prices[0].PricePerGram)
	for _, p := range res.Prices {
		require.True(t, opts.Band.Contains(p.PricePerGram), "karat %d price %.0f", p.Karat, p.PricePerGram)
		require.Equal(t, "IDR", p.Currency)
		require.NotEmpty(t, p.Name)
		require.NotEmpty(t, p.Purity)
	}
	require.Empty(t, res.Violations)
}

func TestAggregate_PricesStayInsideBand(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	opts := options(nil)
	opts.Scrapers = []provider.Adapter{
		adapter(ctrl, "a", []provider.RawSourcePrice{
			price(t, "a", 24, 1_100_000),
			price(t, "a", 22, 95_000), // under-scaled, dropped
			price(t, "a", 18, 9_000_000),
		}, nil),
	}
	agg, err := aggregate.New(opts)
	require.NoError(t, err)

	got := agg.Aggregate(t.Context())

	require.Len(t, got, 7)
	for _, p := range got {
		require.True(t, opts.Band.Contains(p.PricePerGram), "karat %d price %.0f", p.Karat, p.PricePerGram)
	}
	require.Equal(t, 1_100_000.0, byKarat(got)[24].PricePerGram)
}

func TestAggregate_AveragesAgreeingSources(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	opts := options(nil)
	opts.Scrapers = []provider.Adapter{
		adapter(ctrl, "a", []provider.RawSourcePrice{price(t, "a", 24, 1_100_000), price(t, "a", 22, 1_000_000)}, nil),
		adapter(ctrl, "b", []provider.RawSourcePrice{price(t, "b", 24, 1_120_000)}, nil),
		adapter(ctrl, "c", []provider.RawSourcePrice{price(t, "c", 24, 1_105_001)}, nil),
	}
	agg, err := aggregate.New(opts)
	require.NoError(t, err)

	res := agg.Run(t.Context())

	require.Equal(t, aggregate.TierScrape, res.Tier)
	got := byKarat(res.Prices)
	require.Equal(t, 1_108_334.0, got[24].PricePerGram)
	require.Equal(t, 1_000_000.0, got[22].PricePerGram)
	require.NotContains(t, res.Estimated, 24)
	require.NotContains(t, res.Estimated, 22)
	require.Contains(t, res.Estimated, 10)
}

func TestAggregate_PrimaryShortCircuitsScrapers(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	opts := options(nil)
	opts.Primary = adapter(ctrl, "goldapi", []provider.RawSourcePrice{
		price(t, "goldapi", 24, 1_150_000),
		price(t, "goldapi", 22, 1_054_000),
	}, nil)
	scraper := mocks.NewMockAdapter(ctrl)
	scraper.EXPECT().Name().Return("never").AnyTimes()
	scraper.EXPECT().Fetch(gomock.Any()).Times(0)
	opts.Scrapers = []provider.Adapter{scraper}
	agg, err := aggregate.New(opts)
	require.NoError(t, err)

	res := agg.Run(t.Context())

	require.Equal(t, aggregate.TierAPI, res.Tier)
	got := byKarat(res.Prices)
	require.Equal(t, 1_150_000.0, got[24].PricePerGram)
	require.Equal(t, 1_054_000.0, got[22].PricePerGram)
	require.Len(t, res.Prices, 7)
}

func TestAggregate_EstimatesFromLive24K(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	opts := options(nil)
	opts.Scrapers = []provider.Adapter{
		adapter(ctrl, "a", []provider.RawSourcePrice{price(t, "a", 24, 1_200_000)}, nil),
	}
	agg, err := aggregate.New(opts)
	require.NoError(t, err)

	got := byKarat(agg.Aggregate(t.Context()))

	require.Equal(t, opts.Estimator.Price(1_200_000, 22), got[22].PricePerGram)
	require.Equal(t, opts.Estimator.Price(1_200_000, 10), got[10].PricePerGram)
}

func TestAggregate_EstimatesFromStored24KWhenNoLiveBase(t *testing.T) {
	t.Parallel()

	mem := memory.New()
	_, err := mem.UpsertLatest(t.Context(), model.GoldPriceRecord{Karat: 24, PricePerGram: 1_300_000, Currency: "IDR"})
	require.NoError(t, err)
	prev := store.NewResilient(mem, karat.MustTable(karat.Standard), "IDR", nil)

	agg, err := aggregate.New(options(prev))
	require.NoError(t, err)

	got := byKarat(agg.Aggregate(t.Context()))
	require.Equal(t, 1_300_000.0, got[24].PricePerGram)
	require.Equal(t, 0.0, got[24].Change)
}

func TestAggregate_ChangeAgainstPrevious(t *testing.T) {
	t.Parallel()

	// Arrange: 24K was 1,000,000 and the source now reports 1,050,000
	mem := memory.New()
	_, err := mem.UpsertLatest(t.Context(), model.GoldPriceRecord{Karat: 24, PricePerGram: 1_000_000, Currency: "IDR"})
	require.NoError(t, err)
	prev := store.NewResilient(mem, karat.MustTable(karat.Standard), "IDR", nil)

	ctrl := gomock.NewController(t)
	opts := options(prev)
	opts.Scrapers = []provider.Adapter{
		adapter(ctrl, "a", []provider.RawSourcePrice{price(t, "a", 24, 1_050_000)}, nil),
	}
	agg, err := aggregate.New(opts)
	require.NoError(t, err)

	// Act
	got := byKarat(agg.Aggregate(t.Context()))

	// Assert
	require.Equal(t, 50_000.0, got[24].Change)
	require.Equal(t, 5.0, got[24].ChangePercent)
	require.Equal(t, 0.0, got[22].Change)
	require.Equal(t, 0.0, got[22].ChangePercent)
}

type failingPrevious struct{}

func (failingPrevious) Previous(context.Context) ([]model.GoldPriceRecord, error) {
	return nil, store.ErrUnavailable
}

func TestAggregate_PreviousUnavailableReadsAsNoChange(t *testing.T) {
	t.Parallel()

	agg, err := aggregate.New(options(failingPrevious{}))
	require.NoError(t, err)

	for _, p := range agg.Aggregate(t.Context()) {
		require.Zero(t, p.Change)
		require.Zero(t, p.ChangePercent)
	}
}

func TestDelta(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name        string
		price, prev float64
		change, pct float64
	}{
		{"rise", 1_050_000, 1_000_000, 50_000, 5},
		{"fall", 990_000, 1_000_000, -10_000, -1},
		{"rounded", 1_000_001, 3_000_000, -1_999_999, -66.67},
		{"no previous", 1_050_000, 0, 0, 0},
		{"negative previous", 1_050_000, -5, 0, 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			change, pct := aggregate.Delta(tc.price, tc.prev)
			require.Equal(t, tc.change, change)
			require.Equal(t, tc.pct, pct)
		})
	}
}

func TestAggregate_HangingAdapterDoesNotBlockOthers(t *testing.T) {
	t.Parallel()

	// Arrange: one adapter blocks well past the timeout and ignores its context
	ctrl := gomock.NewController(t)
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	slow := mocks.NewMockAdapter(ctrl)
	slow.EXPECT().Name().Return("slow").AnyTimes()
	slow.EXPECT().Fetch(gomock.Any()).DoAndReturn(func(context.Context) ([]provider.RawSourcePrice, error) {
		<-release
		return nil, nil
	}).AnyTimes()

	opts := options(nil)
	opts.Timeout = 50 * time.Millisecond
	opts.Scrapers = []provider.Adapter{
		slow,
		adapter(ctrl, "fast", []provider.RawSourcePrice{price(t, "fast", 24, 1_111_000)}, nil),
	}
	agg, err := aggregate.New(opts)
	require.NoError(t, err)

	// Act
	start := time.Now()
	res := agg.Run(t.Context())

	// Assert
	require.Less(t, time.Since(start), time.Second)
	require.Equal(t, aggregate.TierScrape, res.Tier)
	require.Equal(t, 1_111_000.0, byKarat(res.Prices)[24].PricePerGram)
}

func TestAggregate_FlagsPurityInversionWithoutRejecting(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	opts := options(nil)
	opts.Scrapers = []provider.Adapter{
		adapter(ctrl, "a", []provider.RawSourcePrice{
			price(t, "a", 24, 1_000_000),
			price(t, "a", 18, 1_200_000),
		}, nil),
	}
	agg, err := aggregate.New(opts)
	require.NoError(t, err)

	res := agg.Run(t.Context())

	require.Equal(t, 1_200_000.0, byKarat(res.Prices)[18].PricePerGram)
	require.Contains(t, res.Violations, aggregate.Violation{Lower: 18, LowerPrice: 1_200_000, Higher: 24, HigherPrice: 1_000_000})
}

func TestCheckMonotonic(t *testing.T) {
	t.Parallel()

	prices := []model.GoldPriceData{
		{Karat: 24, PricePerGram: 1_000_000},
		{Karat: 22, PricePerGram: 1_040_000}, // within 5%
		{Karat: 18, PricePerGram: 800_000},
	}
	require.Empty(t, aggregate.CheckMonotonic(prices, 0.05))

	prices[1].PricePerGram = 1_060_000
	require.Equal(t, []aggregate.Violation{{Lower: 22, LowerPrice: 1_060_000, Higher: 24, HigherPrice: 1_000_000}},
		aggregate.CheckMonotonic(prices, 0.05))
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	opts := options(nil)
	opts.Estimator = nil
	_, err := aggregate.New(opts)
	require.ErrorIs(t, err, aggregate.ErrNoEstimator)

	opts = options(nil)
	opts.Band = parse.Band{Min: 10, Max: 5}
	_, err = aggregate.New(opts)
	require.ErrorIs(t, err, aggregate.ErrInvalidBand)

	// low karats cannot be estimated inside a band that starts at 1,000,000
	opts = options(nil)
	opts.Band = parse.Band{Min: 1_000_000, Max: 2_000_000}
	opts.Estimator = estimate.New(estimate.Config{}, opts.Band)
	_, err = aggregate.New(opts)
	require.ErrorContains(t, err, "outside band")
}
