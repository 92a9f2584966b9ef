// Package postgres stores gold prices in PostgreSQL through a pgx connection pool.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"goldprice/internal/model"
	"goldprice/internal/store"
)

// Connect creates a pool and verifies it with a ping.
func Connect(ctx context.Context, url string, maxConns int) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var _ store.Store = (*Store)(nil)

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, now: time.Now}
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	selectLatest = `
		SELECT karat, price_per_gram, currency, change, change_percent, updated_at
		FROM gold_prices
		ORDER BY karat DESC`

	upsertLatest = `
		INSERT INTO gold_prices (karat, price_per_gram, currency, change, change_percent, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (karat) DO UPDATE SET
			price_per_gram = EXCLUDED.price_per_gram,
			currency       = EXCLUDED.currency,
			change         = EXCLUDED.change,
			change_percent = EXCLUDED.change_percent,
			updated_at     = EXCLUDED.updated_at
		RETURNING karat, price_per_gram, currency, change, change_percent, updated_at`

	insertHistory = `
		INSERT INTO price_history (karat, price_per_gram, currency, captured_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, karat, price_per_gram, currency, captured_at`

	selectHistory = `
		SELECT id, karat, price_per_gram, currency, captured_at
		FROM price_history
		WHERE karat = $1 AND captured_at >= $2
		ORDER BY captured_at ASC, id ASC`
)

func (s *Store) Latest(ctx context.Context) ([]model.GoldPriceRecord, error) {
	rows, err := s.pool.Query(ctx, selectLatest)
	if err != nil {
		return nil, fmt.Errorf("query latest prices: %w", err)
	}
	defer rows.Close()

	var out []model.GoldPriceRecord
	for rows.Next() {
		var rec model.GoldPriceRecord
		if err := rows.Scan(&rec.Karat, &rec.PricePerGram, &rec.Currency, &rec.Change, &rec.ChangePercent, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan latest price: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate latest prices: %w", err)
	}
	return out, nil
}

func (s *Store) UpsertLatest(ctx context.Context, rec model.GoldPriceRecord) (model.GoldPriceRecord, error) {
	return s.upsert(ctx, s.pool, rec)
}

func (s *Store) AppendHistory(ctx context.Context, e model.PriceHistoryEntry) (model.PriceHistoryEntry, error) {
	return s.append(ctx, s.pool, e)
}

func (s *Store) History(ctx context.Context, k int, since time.Time) ([]model.PriceHistoryEntry, error) {
	rows, err := s.pool.Query(ctx, selectHistory, k, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("query price history: %w", err)
	}
	defer rows.Close()

	out := make([]model.PriceHistoryEntry, 0)
	for rows.Next() {
		var e model.PriceHistoryEntry
		if err := rows.Scan(&e.ID, &e.Karat, &e.PricePerGram, &e.Currency, &e.CapturedAt); err != nil {
			return nil, fmt.Errorf("scan price history: %w", err)
		}
		e.CapturedAt = e.CapturedAt.UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price history: %w", err)
	}
	return out, nil
}

// Record runs the upsert and the history insert in one transaction.
func (s *Store) Record(ctx context.Context, rec model.GoldPriceRecord, capturedAt time.Time) (model.GoldPriceRecord, model.PriceHistoryEntry, error) {
	var (
		saved model.GoldPriceRecord
		entry model.PriceHistoryEntry
	)
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		if saved, err = s.upsert(ctx, tx, rec); err != nil {
			return err
		}
		entry, err = s.append(ctx, tx, store.HistoryEntry(saved, capturedAt))
		return err
	})
	if err != nil {
		return model.GoldPriceRecord{}, model.PriceHistoryEntry{}, fmt.Errorf("record karat %d: %w", rec.Karat, err)
	}
	return saved, entry, nil
}

func (s *Store) Close() { s.pool.Close() }

func (s *Store) upsert(ctx context.Context, q rowQuerier, rec model.GoldPriceRecord) (model.GoldPriceRecord, error) {
	var out model.GoldPriceRecord
	err := q.QueryRow(ctx, upsertLatest,
		rec.Karat, rec.PricePerGram, rec.Currency, rec.Change, rec.ChangePercent, s.now().UTC(),
	).Scan(&out.Karat, &out.PricePerGram, &out.Currency, &out.Change, &out.ChangePercent, &out.UpdatedAt)
	if err != nil {
		return model.GoldPriceRecord{}, fmt.Errorf("upsert karat %d: %w", rec.Karat, err)
	}
	out.UpdatedAt = out.UpdatedAt.UTC()
	return out, nil
}

func (s *Store) append(ctx context.Context, q rowQuerier, e model.PriceHistoryEntry) (model.PriceHistoryEntry, error) {
	captured := e.CapturedAt
	if captured.IsZero() {
		captured = s.now()
	}
	var out model.PriceHistoryEntry
	err := q.QueryRow(ctx, insertHistory, e.Karat, e.PricePerGram, e.Currency, captured.UTC()).
		Scan(&out.ID, &out.Karat, &out.PricePerGram, &out.Currency, &out.CapturedAt)
	if err != nil {
		return model.PriceHistoryEntry{}, fmt.Errorf("append history for karat %d: %w", e.Karat, err)
	}
	out.CapturedAt = out.CapturedAt.UTC()
	return out, nil
}
