package store

import (
	"context"
	"slices"
	"time"

	"goldprice/internal/karat"
	"goldprice/internal/logging"
	"goldprice/internal/metrics"
	"goldprice/internal/model"
)

// Resilient fronts a Store so that reads never fail. A nil backend behaves as
// permanently unavailable.
type Resilient struct {
	backend  Store
	karats   karat.Table
	currency string
	log      *logging.Logger
	now      func() time.Time
}

// NewResilient wraps backend. karats decides which records Latest guarantees.
func NewResilient(backend Store, karats karat.Table, currency string, log *logging.Logger) *Resilient {
	if log == nil {
		log = logging.NewNop()
	}
	return &Resilient{backend: backend, karats: karats, currency: currency, log: log, now: time.Now}
}

// Backend exposes the wrapped store, or nil.
func (r *Resilient) Backend() Store { return r.backend }

// Previous returns what the backend holds without any fallback. Callers use it to
// compute deltas and treat an error as "no previous value".
func (r *Resilient) Previous(ctx context.Context) ([]model.GoldPriceRecord, error) {
	if r.backend == nil {
		return nil, ErrUnavailable
	}
	return r.backend.Latest(ctx)
}

// Latest returns one record per tracked karat, highest first. Karats the backend
// cannot supply come from the built-in snapshot.
func (r *Resilient) Latest(ctx context.Context) []model.GoldPriceRecord {
	stored, err := r.Previous(ctx)
	if err != nil {
		r.log.Warn("price store read failed, serving fallback snapshot", "error", err)
		metrics.RecordStoreFallback("latest")
		stored = nil
	}

	byKarat := make(map[int]model.GoldPriceRecord, len(stored))
	for _, rec := range stored {
		if r.karats.Tracks(rec.Karat) {
			byKarat[rec.Karat] = rec
		}
	}

	now := r.now()
	tracked := r.karats.Tracked()
	out := make([]model.GoldPriceRecord, 0, len(tracked))
	filled := 0
	for _, k := range tracked {
		rec, ok := byKarat[k]
		if !ok {
			rec = Fallback(k, r.currency, now, karat.Ratio(k))
			filled++
		}
		out = append(out, rec)
	}
	if filled > 0 && err == nil {
		r.log.Debug("filled missing karats from snapshot", "count", filled)
	}
	slices.SortFunc(out, func(a, b model.GoldPriceRecord) int { return b.Karat - a.Karat })
	return out
}

// Record persists rec and its history entry. Failures are logged and returned so
// the caller can count them; they never panic.
func (r *Resilient) Record(ctx context.Context, rec model.GoldPriceRecord, capturedAt time.Time) error {
	if r.backend == nil {
		metrics.RecordStoreFallback("record")
		return ErrUnavailable
	}
	if _, _, err := r.backend.Record(ctx, rec, capturedAt); err != nil {
		r.log.Warn("price store write failed", "karat", rec.Karat, "error", err)
		metrics.RecordStoreFallback("record")
		return err
	}
	return nil
}

// History returns the entries for k over the last sinceDays days, oldest first.
// An unavailable store yields an empty series.
func (r *Resilient) History(ctx context.Context, k, sinceDays int) []model.PriceHistoryEntry {
	if r.backend == nil {
		metrics.RecordStoreFallback("history")
		return []model.PriceHistoryEntry{}
	}
	since := r.now().AddDate(0, 0, -sinceDays)
	entries, err := r.backend.History(ctx, k, since)
	if err != nil {
		r.log.Warn("price history read failed", "karat", k, "error", err)
		metrics.RecordStoreFallback("history")
		return []model.PriceHistoryEntry{}
	}
	if entries == nil {
		entries = []model.PriceHistoryEntry{}
	}
	return entries
}

// Close releases the backend.
func (r *Resilient) Close() {
	if r.backend != nil {
		r.backend.Close()
	}
}
