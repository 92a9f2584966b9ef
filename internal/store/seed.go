package store

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"goldprice/internal/karat"
	"goldprice/internal/model"
)

// SeedVariance is the maximum relative deviation of a seeded history point.
const SeedVariance = 0.025

// SeedResult counts what Seed wrote.
type SeedResult struct {
	Latest  int
	History int
}

// Seed writes the fallback snapshot for every tracked karat that has no record yet,
// then one jittered history entry per karat per day for the last days days and today.
func Seed(ctx context.Context, s Store, karats karat.Table, currency string, days int, rng *rand.Rand, now time.Time) (SeedResult, error) {
	var res SeedResult
	existing, err := s.Latest(ctx)
	if err != nil {
		return res, fmt.Errorf("read latest: %w", err)
	}
	have := make(map[int]bool, len(existing))
	for _, rec := range existing {
		have[rec.Karat] = true
	}

	for _, k := range karats.Tracked() {
		if have[k] {
			continue
		}
		if _, err := s.UpsertLatest(ctx, Fallback(k, currency, now, karat.Ratio(k))); err != nil {
			return res, fmt.Errorf("seed latest %dK: %w", k, err)
		}
		res.Latest++
	}

	for i := days; i >= 0; i-- {
		at := now.AddDate(0, 0, -i).UTC()
		for _, k := range karats.Tracked() {
			base := Fallback(k, currency, at, karat.Ratio(k)).PricePerGram
			variance := (rng.Float64() - 0.5) * 2 * SeedVariance
			_, err := s.AppendHistory(ctx, model.PriceHistoryEntry{
				Karat:        k,
				PricePerGram: math.Round(base * (1 + variance)),
				Currency:     currency,
				CapturedAt:   at,
			})
			if err != nil {
				return res, fmt.Errorf("seed history %dK: %w", k, err)
			}
			res.History++
		}
	}
	return res, nil
}
