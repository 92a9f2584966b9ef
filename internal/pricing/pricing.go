// Package pricing is the read side served to the HTTP layer: latest prices joined with
// karat info, history and chart series.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"goldprice/internal/karat"
	"goldprice/internal/model"
)

var (
	ErrUnknownKarat     = errors.New("unknown karat")
	ErrUnknownTimeframe = errors.New("unknown timeframe")
)

// History window bounds in days.
const (
	DefaultHistoryDays = 7
	MaxHistoryDays     = 365
)

type Aggregator interface {
	Aggregate(ctx context.Context) []model.GoldPriceData
}

// Store is the never-failing read side of the price store.
type Store interface {
	Latest(ctx context.Context) []model.GoldPriceRecord
	History(ctx context.Context, k, sinceDays int) []model.PriceHistoryEntry
}

type Service struct {
	agg    Aggregator
	store  Store
	karats karat.Table
}

func New(agg Aggregator, store Store, karats karat.Table) *Service {
	return &Service{agg: agg, store: store, karats: karats}
}

// Karats returns the tracked karat table.
func (s *Service) Karats() karat.Table { return s.karats }

// Aggregate runs a live aggregation without persisting it.
func (s *Service) Aggregate(ctx context.Context) []model.GoldPriceData {
	return s.agg.Aggregate(ctx)
}

// Latest returns the stored price of every tracked karat, highest first.
func (s *Service) Latest(ctx context.Context) []model.GoldPriceData {
	recs := s.store.Latest(ctx)
	out := make([]model.GoldPriceData, 0, len(recs))
	for _, rec := range recs {
		out = append(out, model.Join(rec, s.karats.Info(rec.Karat)))
	}
	slices.SortFunc(out, func(a, b model.GoldPriceData) int { return b.Karat - a.Karat })
	return out
}

// Price returns the latest stored price for a tracked karat.
func (s *Service) Price(ctx context.Context, k int) (model.GoldPriceData, error) {
	if !s.karats.Tracks(k) {
		return model.GoldPriceData{}, fmt.Errorf("%w: %d", ErrUnknownKarat, k)
	}
	for _, p := range s.Latest(ctx) {
		if p.Karat == k {
			return p, nil
		}
	}
	return model.GoldPriceData{}, fmt.Errorf("%w: %d", ErrUnknownKarat, k)
}

// History returns entries for k over the last days days, oldest first. Non-positive
// days read as DefaultHistoryDays; larger windows are capped at MaxHistoryDays.
func (s *Service) History(ctx context.Context, k, days int) ([]model.PriceHistoryEntry, error) {
	if !karat.Valid(k) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKarat, k)
	}
	switch {
	case days <= 0:
		days = DefaultHistoryDays
	case days > MaxHistoryDays:
		days = MaxHistoryDays
	}
	return s.store.History(ctx, k, days), nil
}

// ChartDays maps a chart timeframe to a history window. 1H and 1D both read a one
// day window since history is recorded per refresh, not per minute.
func ChartDays(timeframe string) (int, error) {
	switch strings.ToUpper(strings.TrimSpace(timeframe)) {
	case "1H", "1D":
		return 1, nil
	case "1W":
		return 7, nil
	case "1M":
		return 30, nil
	case "1Y":
		return MaxHistoryDays, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownTimeframe, timeframe)
}

// ChartSeries returns the history of k for a chart timeframe.
func (s *Service) ChartSeries(ctx context.Context, k int, timeframe string) ([]model.PriceHistoryEntry, error) {
	days, err := ChartDays(timeframe)
	if err != nil {
		return nil, err
	}
	return s.History(ctx, k, days)
}
