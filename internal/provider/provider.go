package provider

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"goldprice/internal/karat"
)

// ErrInvalidPrice is returned when a raw price fails construction checks.
var ErrInvalidPrice = errors.New("invalid source price")

// UnitGram is the only unit adapters emit; per-weight quotes are normalised before emission.
const UnitGram = "gram"

// RawSourcePrice is the normalized shape returned by all adapters.
type RawSourcePrice struct {
	SourceID   string    `json:"source"`
	Karat      int       `json:"karat"`
	BuyPrice   float64   `json:"buyPrice"`
	SellPrice  *float64  `json:"sellPrice,omitempty"`
	Unit       string    `json:"unit"`
	CapturedAt time.Time `json:"capturedAt"`
}

// NewRawSourcePrice validates and builds a RawSourcePrice. sell may be nil.
func NewRawSourcePrice(sourceID string, k int, buy float64, sell *float64, capturedAt time.Time) (RawSourcePrice, error) {
	if sourceID == "" {
		return RawSourcePrice{}, fmt.Errorf("%w: empty source id", ErrInvalidPrice)
	}
	if !karat.Valid(k) {
		return RawSourcePrice{}, fmt.Errorf("%w: karat %d", ErrInvalidPrice, k)
	}
	if !positive(buy) {
		return RawSourcePrice{}, fmt.Errorf("%w: buy price %v", ErrInvalidPrice, buy)
	}
	if sell != nil && !positive(*sell) {
		return RawSourcePrice{}, fmt.Errorf("%w: sell price %v", ErrInvalidPrice, *sell)
	}
	if capturedAt.IsZero() {
		capturedAt = time.Now()
	}
	return RawSourcePrice{
		SourceID:   sourceID,
		Karat:      k,
		BuyPrice:   buy,
		SellPrice:  sell,
		Unit:       UnitGram,
		CapturedAt: capturedAt.UTC(),
	}, nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Adapter fetches gold prices from one upstream source.
//
//go:generate mockgen -package=mocks -destination=mocks/mock_adapter.go -source=provider.go Adapter
type Adapter interface {
	Name() string
	Fetch(ctx context.Context) ([]RawSourcePrice, error)
}
