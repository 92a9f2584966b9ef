// Package model holds the persisted and served gold price records.
package model

import (
	"time"

	"goldprice/internal/karat"
)

// GoldPriceRecord is the latest known price for one karat.
type GoldPriceRecord struct {
	Karat         int       `json:"karat"`
	PricePerGram  float64   `json:"pricePerGram"`
	Currency      string    `json:"currency"`
	Change        *float64  `json:"change"`
	ChangePercent *float64  `json:"changePercent"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// PriceHistoryEntry is one append-only history point.
type PriceHistoryEntry struct {
	ID           int64     `json:"id"`
	Karat        int       `json:"karat"`
	PricePerGram float64   `json:"pricePerGram"`
	Currency     string    `json:"currency"`
	CapturedAt   time.Time `json:"timestamp"`
}

// GoldPriceData is a GoldPriceRecord joined with its karat info, as served to clients.
type GoldPriceData struct {
	Karat         int       `json:"karat" yaml:"karat"`
	Name          string    `json:"name" yaml:"name"`
	Purity        string    `json:"purity" yaml:"purity"`
	PricePerGram  float64   `json:"pricePerGram" yaml:"price_per_gram"`
	Currency      string    `json:"currency" yaml:"currency"`
	Change        float64   `json:"change" yaml:"change"`
	ChangePercent float64   `json:"changePercent" yaml:"change_percent"`
	Timestamp     time.Time `json:"timestamp" yaml:"timestamp"`
}

// Record converts served data back into a storable record.
func (d GoldPriceData) Record() GoldPriceRecord {
	change, pct := d.Change, d.ChangePercent
	return GoldPriceRecord{
		Karat:         d.Karat,
		PricePerGram:  d.PricePerGram,
		Currency:      d.Currency,
		Change:        &change,
		ChangePercent: &pct,
		UpdatedAt:     d.Timestamp,
	}
}

// Join builds served data from a record and its karat info. Missing deltas read as 0.
func Join(rec GoldPriceRecord, info karat.Info) GoldPriceData {
	d := GoldPriceData{
		Karat:        rec.Karat,
		Name:         info.Name,
		Purity:       info.PurityLabel,
		PricePerGram: rec.PricePerGram,
		Currency:     rec.Currency,
		Timestamp:    rec.UpdatedAt,
	}
	if rec.Change != nil {
		d.Change = *rec.Change
	}
	if rec.ChangePercent != nil {
		d.ChangePercent = *rec.ChangePercent
	}
	return d
}
