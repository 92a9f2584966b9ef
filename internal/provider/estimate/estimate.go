// Package estimate derives per-karat prices from a 24K base using purity ratios and a
// workmanship markup table. It is the last tier of the fallback chain and never fails.
package estimate

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"goldprice/internal/karat"
	"goldprice/internal/parse"
	"goldprice/internal/provider"
)

// SourceID tags every estimated price.
const SourceID = "estimate"

// DefaultMarkups is the jewelry workmanship markup per karat.
var DefaultMarkups = map[int]float64{
	10: 0.30,
	14: 0.25,
	16: 0.22,
	18: 0.20,
	20: 0.18,
	22: 0.15,
	24: 0.10,
}

type Config struct {
	// ReferencePrice is the 24K price per gram used when no verified base is known.
	ReferencePrice float64
	// BuybackRatio prices the sell side from material value alone.
	BuybackRatio float64
	Markups      map[int]float64
	Karats       []int
}

// Estimator computes deterministic estimates.
type Estimator struct {
	cfg  Config
	band parse.Band
	now  func() time.Time
}

func New(cfg Config, band parse.Band) *Estimator {
	if cfg.ReferencePrice <= 0 {
		cfg.ReferencePrice = 1_125_000
	}
	if cfg.BuybackRatio <= 0 || cfg.BuybackRatio > 1 {
		cfg.BuybackRatio = 0.85
	}
	if len(cfg.Markups) == 0 {
		cfg.Markups = DefaultMarkups
	}
	if len(cfg.Karats) == 0 {
		cfg.Karats = karat.Standard
	}
	return &Estimator{cfg: cfg, band: band, now: time.Now}
}

// Reference returns the configured 24K reference price.
func (e *Estimator) Reference() float64 { return e.cfg.ReferencePrice }

func (e *Estimator) markup(k int) decimal.Decimal {
	if m, ok := e.cfg.Markups[k]; ok {
		return decimal.NewFromFloat(m)
	}
	return e.markup24()
}

func (e *Estimator) markup24() decimal.Decimal {
	if m, ok := e.cfg.Markups[24]; ok {
		return decimal.NewFromFloat(m)
	}
	return decimal.Zero
}

// Price estimates the buy price of karat k given a 24K base. Markups are taken relative
// to the 24K markup so that Price(base, 24) == base.
func (e *Estimator) Price(base float64, k int) float64 {
	one := decimal.NewFromInt(1)
	v := decimal.NewFromFloat(base).
		Mul(decimal.NewFromFloat(karat.Ratio(k))).
		Mul(one.Add(e.markup(k))).
		Div(one.Add(e.markup24())).
		Round(0)
	return v.InexactFloat64()
}

// Buyback is the material value of karat k times the buyback ratio.
func (e *Estimator) Buyback(base float64, k int) float64 {
	return decimal.NewFromFloat(base).
		Mul(decimal.NewFromFloat(karat.Ratio(k))).
		Mul(decimal.NewFromFloat(e.cfg.BuybackRatio)).
		Round(0).
		InexactFloat64()
}

// Estimate returns one price per karat from base. Estimates outside the band are left out.
func (e *Estimator) Estimate(base float64, karats []int) []provider.RawSourcePrice {
	if base <= 0 {
		return nil
	}
	at := e.now()
	out := make([]provider.RawSourcePrice, 0, len(karats))
	for _, k := range karats {
		buy := e.Price(base, k)
		if e.band.Valid() && !e.band.Contains(buy) {
			continue
		}
		sell := e.Buyback(base, k)
		p, err := provider.NewRawSourcePrice(SourceID, k, buy, &sell, at)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (e *Estimator) Name() string { return SourceID }

// Fetch estimates every configured karat from the reference price.
func (e *Estimator) Fetch(context.Context) ([]provider.RawSourcePrice, error) {
	return e.Estimate(e.cfg.ReferencePrice, e.cfg.Karats), nil
}
