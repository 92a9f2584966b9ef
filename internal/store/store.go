// Package store keeps the latest price per karat and the append-only price history.
package store

import (
	"context"
	"errors"
	"time"

	"goldprice/internal/model"
)

// ErrUnavailable is returned when no backend is configured or reachable.
var ErrUnavailable = errors.New("price store unavailable")

// Store is implemented by each persistence backend.
type Store interface {
	// Latest returns one record per karat, highest karat first.
	Latest(ctx context.Context) ([]model.GoldPriceRecord, error)
	// UpsertLatest replaces the record for rec.Karat and stamps UpdatedAt with now.
	UpsertLatest(ctx context.Context, rec model.GoldPriceRecord) (model.GoldPriceRecord, error)
	// AppendHistory stores e under the next id.
	AppendHistory(ctx context.Context, e model.PriceHistoryEntry) (model.PriceHistoryEntry, error)
	// History returns entries for k captured at or after since, oldest first.
	History(ctx context.Context, k int, since time.Time) ([]model.PriceHistoryEntry, error)
	// Record upserts rec and appends its history entry as one unit.
	Record(ctx context.Context, rec model.GoldPriceRecord, capturedAt time.Time) (model.GoldPriceRecord, model.PriceHistoryEntry, error)
	Close()
}

// HistoryEntry builds the history entry that accompanies rec.
func HistoryEntry(rec model.GoldPriceRecord, capturedAt time.Time) model.PriceHistoryEntry {
	return model.PriceHistoryEntry{
		Karat:        rec.Karat,
		PricePerGram: rec.PricePerGram,
		Currency:     rec.Currency,
		CapturedAt:   capturedAt.UTC(),
	}
}
