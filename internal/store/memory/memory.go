// Package memory is an in-process price store, used when no database is configured
// and in tests.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"goldprice/internal/model"
	"goldprice/internal/store"
)

type Store struct {
	mu      sync.RWMutex
	latest  map[int]model.GoldPriceRecord
	history []model.PriceHistoryEntry
	nextID  int64
	now     func() time.Time
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{latest: make(map[int]model.GoldPriceRecord), now: time.Now}
}

// WithClock replaces the time source used for UpdatedAt.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Latest(context.Context) ([]model.GoldPriceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.GoldPriceRecord, 0, len(s.latest))
	for _, rec := range s.latest {
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b model.GoldPriceRecord) int { return b.Karat - a.Karat })
	return out, nil
}

func (s *Store) UpsertLatest(_ context.Context, rec model.GoldPriceRecord) (model.GoldPriceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsert(rec), nil
}

func (s *Store) AppendHistory(_ context.Context, e model.PriceHistoryEntry) (model.PriceHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.append(e), nil
}

func (s *Store) History(_ context.Context, k int, since time.Time) ([]model.PriceHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.PriceHistoryEntry, 0)
	for _, e := range s.history {
		if e.Karat == k && !e.CapturedAt.Before(since) {
			out = append(out, e)
		}
	}
	slices.SortStableFunc(out, func(a, b model.PriceHistoryEntry) int { return a.CapturedAt.Compare(b.CapturedAt) })
	return out, nil
}

func (s *Store) Record(_ context.Context, rec model.GoldPriceRecord, capturedAt time.Time) (model.GoldPriceRecord, model.PriceHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	saved := s.upsert(rec)
	return saved, s.append(store.HistoryEntry(saved, capturedAt)), nil
}

func (s *Store) Close() {}

func (s *Store) upsert(rec model.GoldPriceRecord) model.GoldPriceRecord {
	rec.UpdatedAt = s.now().UTC()
	s.latest[rec.Karat] = rec
	return rec
}

func (s *Store) append(e model.PriceHistoryEntry) model.PriceHistoryEntry {
	s.nextID++
	e.ID = s.nextID
	if e.CapturedAt.IsZero() {
		e.CapturedAt = s.now().UTC()
	}
	s.history = append(s.history, e)
	return e
}
