// Package aggregate merges adapter output into one price per tracked karat.
//
// Tiers, each tried only when the one before produced nothing:
//   - the priced API adapter;
//   - every scraping adapter, run concurrently and averaged per karat.
//
// Karats still missing afterwards are synthesized by the estimator, so the result
// always covers the tracked set. Aggregation has no side effects besides metrics.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"goldprice/internal/karat"
	"goldprice/internal/logging"
	"goldprice/internal/metrics"
	"goldprice/internal/model"
	"goldprice/internal/parse"
	"goldprice/internal/provider"
	"goldprice/internal/provider/estimate"
)

// Tier names reported in Result and metrics.
const (
	TierAPI      = "api"
	TierScrape   = "scrape"
	TierEstimate = "estimate"
)

// DefaultTolerance is the slack allowed when comparing neighbouring karats.
const DefaultTolerance = 0.05

// PreviousSource supplies the last stored value per karat.
type PreviousSource interface {
	Previous(ctx context.Context) ([]model.GoldPriceRecord, error)
}

type Options struct {
	Band     parse.Band
	Karats   karat.Table
	Currency string

	// Primary is the priced API adapter. It may be nil.
	Primary  provider.Adapter
	Scrapers []provider.Adapter
	// Estimator fills karats no live source covered. Required.
	Estimator *estimate.Estimator
	// Previous may be nil, in which case every change is 0.
	Previous PreviousSource

	// Timeout bounds each adapter call individually.
	Timeout time.Duration
	// Concurrency caps scraping adapters in flight; 0 runs them all at once.
	Concurrency int
	Tolerance   float64

	Log *logging.Logger
}

type Aggregator struct {
	opts     Options
	primary  *provider.Guard
	scrapers []*provider.Guard
	log      *logging.Logger
	now      func() time.Time
}

// Result is one aggregation run with the detail the refresher logs.
type Result struct {
	Prices     []model.GoldPriceData
	Tier       string
	Estimated  []int
	Violations []Violation
	Elapsed    time.Duration
}

var (
	ErrNoEstimator = errors.New("aggregate: estimator is required")
	ErrInvalidBand = errors.New("aggregate: invalid plausibility band")
)

// New validates opts and wraps every adapter in a provider.Guard.
// It fails when the estimator cannot price a tracked karat inside the band, since
// that karat could then go missing when every source is down.
func New(opts Options) (*Aggregator, error) {
	if opts.Estimator == nil {
		return nil, ErrNoEstimator
	}
	if !opts.Band.Valid() {
		return nil, ErrInvalidBand
	}
	if len(opts.Karats.Tracked()) == 0 {
		return nil, errors.New("aggregate: no tracked karats")
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = DefaultTolerance
	}
	if opts.Log == nil {
		opts.Log = logging.NewNop()
	}

	for _, k := range opts.Karats.Tracked() {
		if p := opts.Estimator.Price(opts.Estimator.Reference(), k); !opts.Band.Contains(p) {
			return nil, fmt.Errorf("aggregate: reference estimate %.0f for %dK is outside band [%.0f, %.0f]",
				p, k, opts.Band.Min, opts.Band.Max)
		}
	}

	a := &Aggregator{opts: opts, log: opts.Log, now: time.Now}
	if opts.Primary != nil {
		a.primary = provider.NewGuard(opts.Primary, opts.Timeout, opts.Band, opts.Log)
	}
	for _, s := range opts.Scrapers {
		a.scrapers = append(a.scrapers, provider.NewGuard(s, opts.Timeout, opts.Band, opts.Log))
	}
	return a, nil
}

// Aggregate returns one price per tracked karat, highest karat first. It never
// returns an empty list.
func (a *Aggregator) Aggregate(ctx context.Context) []model.GoldPriceData {
	return a.Run(ctx).Prices
}

// Run performs one aggregation and reports how it was answered.
func (a *Aggregator) Run(ctx context.Context) Result {
	start := time.Now()
	res := Result{Tier: TierEstimate}

	var raw []provider.RawSourcePrice
	if a.primary != nil {
		raw = a.tracked(a.primary.FetchPrices(ctx))
		if len(raw) > 0 {
			res.Tier = TierAPI
		}
	}
	if len(raw) == 0 && len(a.scrapers) > 0 {
		raw = a.tracked(a.fanOut(ctx))
		if len(raw) > 0 {
			res.Tier = TierScrape
		}
	}

	prices := a.mean(raw)
	previous := a.previous(ctx)
	res.Estimated = a.fill(prices, previous)

	at := a.now().UTC()
	out := make([]model.GoldPriceData, 0, len(prices))
	for _, k := range a.opts.Karats.Tracked() {
		price, ok := prices[k]
		if !ok {
			continue
		}
		rec := model.GoldPriceRecord{
			Karat:        k,
			PricePerGram: price,
			Currency:     a.opts.Currency,
			UpdatedAt:    at,
		}
		change, pct := Delta(price, previous[k])
		rec.Change, rec.ChangePercent = &change, &pct
		out = append(out, model.Join(rec, a.opts.Karats.Info(k)))
		metrics.RecordPrice(k, a.opts.Currency, price)
	}
	slices.SortFunc(out, func(x, y model.GoldPriceData) int { return y.Karat - x.Karat })

	res.Violations = CheckMonotonic(out, a.opts.Tolerance)
	for _, v := range res.Violations {
		a.log.Warn("karat priced against purity order",
			"lower_karat", v.Lower, "lower_price", v.LowerPrice,
			"higher_karat", v.Higher, "higher_price", v.HigherPrice)
		metrics.RecordPurityViolation()
	}

	res.Prices = out
	res.Elapsed = time.Since(start)
	metrics.RecordAggregation(res.Tier, res.Elapsed)
	a.log.Debug("aggregation finished", "tier", res.Tier, "karats", len(out),
		"estimated", len(res.Estimated), "elapsed", res.Elapsed.String())
	return res
}

// fanOut runs every scraper and joins once all settle. Each guard enforces its own
// timeout and never returns an error, so one slow source cannot hold back the rest.
func (a *Aggregator) fanOut(ctx context.Context) []provider.RawSourcePrice {
	results := make([][]provider.RawSourcePrice, len(a.scrapers))
	g, gctx := errgroup.WithContext(ctx)
	if a.opts.Concurrency > 0 {
		g.SetLimit(a.opts.Concurrency)
	}
	for i, s := range a.scrapers {
		g.Go(func() error {
			results[i] = s.FetchPrices(gctx)
			return nil
		})
	}
	_ = g.Wait()

	var out []provider.RawSourcePrice
	for _, r := range results {
		out = append(out, r...)
	}
	return out
}

func (a *Aggregator) tracked(in []provider.RawSourcePrice) []provider.RawSourcePrice {
	out := in[:0:0]
	for _, p := range in {
		if a.opts.Karats.Tracks(p.Karat) {
			out = append(out, p)
		}
	}
	return out
}

// mean groups by karat, drops anything outside the band and averages what is left.
func (a *Aggregator) mean(raw []provider.RawSourcePrice) map[int]float64 {
	sums := make(map[int]decimal.Decimal)
	counts := make(map[int]int64)
	for _, p := range raw {
		if !a.opts.Band.Contains(p.BuyPrice) {
			continue
		}
		sums[p.Karat] = sums[p.Karat].Add(decimal.NewFromFloat(p.BuyPrice))
		counts[p.Karat]++
	}

	out := make(map[int]float64, len(sums))
	for k, sum := range sums {
		avg := sum.Div(decimal.NewFromInt(counts[k])).Round(0).InexactFloat64()
		if a.opts.Band.Contains(avg) {
			out[k] = avg
		}
	}
	return out
}

func (a *Aggregator) previous(ctx context.Context) map[int]float64 {
	out := make(map[int]float64)
	if a.opts.Previous == nil {
		return out
	}
	recs, err := a.opts.Previous.Previous(ctx)
	if err != nil {
		a.log.Warn("previous prices unavailable, changes will read 0", "error", err)
		return out
	}
	for _, r := range recs {
		out[r.Karat] = r.PricePerGram
	}
	return out
}

// fill estimates every tracked karat missing from prices and returns those karats.
// The 24K base is the live price if there is one, then the stored one, then the
// estimator's reference. Estimates from a live base that fall outside the band are
// retried from the reference.
func (a *Aggregator) fill(prices map[int]float64, previous map[int]float64) []int {
	var missing []int
	for _, k := range a.opts.Karats.Tracked() {
		if _, ok := prices[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	est := a.opts.Estimator
	base, ok := prices[24]
	if !ok {
		base, ok = previous[24]
	}
	if !ok || !a.opts.Band.Contains(base) {
		base = est.Reference()
	}

	for _, p := range est.Estimate(base, missing) {
		prices[p.Karat] = p.BuyPrice
	}
	if base != est.Reference() {
		var retry []int
		for _, k := range missing {
			if _, ok := prices[k]; !ok {
				retry = append(retry, k)
			}
		}
		for _, p := range est.Estimate(est.Reference(), retry) {
			prices[p.Karat] = p.BuyPrice
		}
	}

	filled := make([]int, 0, len(missing))
	for _, k := range missing {
		if _, ok := prices[k]; ok {
			filled = append(filled, k)
			metrics.RecordEstimate(k)
		}
	}
	a.log.Info("estimated missing karats", "karats", filled, "base", base)
	return filled
}

// Delta returns the change against prev and the change in percent rounded to two
// decimals. Without a positive previous price both are 0.
func Delta(price, prev float64) (change, percent float64) {
	if prev <= 0 {
		return 0, 0
	}
	d := decimal.NewFromFloat(price).Sub(decimal.NewFromFloat(prev))
	p := d.Div(decimal.NewFromFloat(prev)).Mul(decimal.NewFromInt(100)).Round(2)
	return d.InexactFloat64(), p.InexactFloat64()
}

// Violation is a lower karat priced above a higher karat beyond tolerance.
type Violation struct {
	Lower       int
	LowerPrice  float64
	Higher      int
	HigherPrice float64
}

// CheckMonotonic compares every karat pair and reports those where the lower karat
// costs more than the higher one by more than tol.
func CheckMonotonic(prices []model.GoldPriceData, tol float64) []Violation {
	var out []Violation
	for i := range prices {
		for j := range prices {
			lo, hi := prices[i], prices[j]
			if lo.Karat >= hi.Karat {
				continue
			}
			if lo.PricePerGram > hi.PricePerGram*(1+tol) {
				out = append(out, Violation{
					Lower: lo.Karat, LowerPrice: lo.PricePerGram,
					Higher: hi.Karat, HigherPrice: hi.PricePerGram,
				})
			}
		}
	}
	return out
}
