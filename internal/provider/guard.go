package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"goldprice/internal/logging"
	"goldprice/internal/metrics"
	"goldprice/internal/parse"
)

// Guard runs an adapter so that it can never fail its caller. Errors, panics and
// timeouts become an empty result and a log line; prices outside Band are dropped.
type Guard struct {
	A       Adapter
	Timeout time.Duration
	Band    parse.Band
	Log     *logging.Logger
}

// NewGuard wraps a with a per-call timeout and band filter.
func NewGuard(a Adapter, timeout time.Duration, band parse.Band, log *logging.Logger) *Guard {
	if log == nil {
		log = logging.NewNop()
	}
	return &Guard{A: a, Timeout: timeout, Band: band, Log: log}
}

func (g *Guard) Name() string { return g.A.Name() }

// Fetch satisfies Adapter; the error is always nil.
func (g *Guard) Fetch(ctx context.Context) ([]RawSourcePrice, error) {
	return g.FetchPrices(ctx), nil
}

type outcome struct {
	prices []RawSourcePrice
	err    error
}

// FetchPrices returns whatever the adapter produced within the timeout.
func (g *Guard) FetchPrices(ctx context.Context) []RawSourcePrice {
	name := g.A.Name()
	start := time.Now()
	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: fmt.Errorf("%w: %v", errPanic, rec)}
			}
		}()
		prices, err := g.A.Fetch(ctx)
		done <- outcome{prices: prices, err: err}
	}()

	var res outcome
	select {
	case res = <-done:
	case <-ctx.Done():
		g.Log.Warn("adapter timed out", "adapter", name, "timeout", g.Timeout.String(), "error", ctx.Err())
		metrics.RecordAdapterFetch(name, "timeout", 0, time.Since(start))
		return nil
	}

	if res.err != nil {
		label := "error"
		if errors.Is(res.err, errPanic) {
			label = "panic"
			g.Log.Error("adapter panicked", "adapter", name, "error", res.err)
		} else {
			g.Log.Warn("adapter failed", "adapter", name, "error", res.err)
		}
		metrics.RecordAdapterFetch(name, label, 0, time.Since(start))
		return nil
	}

	kept := make([]RawSourcePrice, 0, len(res.prices))
	for _, p := range res.prices {
		if p.SourceID == "" || p.Unit != UnitGram || !positive(p.BuyPrice) {
			g.Log.Debug("dropping malformed price", "adapter", name, "karat", p.Karat)
			continue
		}
		if g.Band.Valid() && !g.Band.Contains(p.BuyPrice) {
			g.Log.Debug("dropping out-of-band price", "adapter", name, "karat", p.Karat, "price", p.BuyPrice)
			continue
		}
		kept = append(kept, p)
	}
	label := "ok"
	if len(kept) == 0 {
		label = "empty"
	}
	metrics.RecordAdapterFetch(name, label, len(kept), time.Since(start))
	g.Log.Debug("adapter finished", "adapter", name, "prices", len(kept), "elapsed", time.Since(start).String())
	return kept
}

var errPanic = errors.New("adapter panic")
