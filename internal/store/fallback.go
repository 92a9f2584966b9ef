package store

import (
	"time"

	"goldprice/internal/model"
)

type snapshotRow struct {
	price, change, pct float64
}

// fallbackRows is the last-known-good reference list served when nothing else is.
var fallbackRows = map[int]snapshotRow{
	24: {1_125_000, 15_000, 1.4},
	22: {1_030_000, 12_500, 1.3},
	20: {937_500, 8_000, 0.9},
	18: {843_750, -5_750, -0.7},
	16: {750_000, -3_200, -0.4},
	14: {656_250, 2_100, 0.3},
	10: {468_750, -1_800, -0.4},
}

// Reference24K is the 24K price of the fallback snapshot.
const Reference24K = 1_125_000

// Fallback returns the built-in record for k. Karats outside the snapshot are priced
// from 24K by purity share with no change.
func Fallback(k int, currency string, at time.Time, purityRatio float64) model.GoldPriceRecord {
	row, ok := fallbackRows[k]
	if !ok {
		row = snapshotRow{price: float64(int64(Reference24K*purityRatio + 0.5))}
	}
	change, pct := row.change, row.pct
	return model.GoldPriceRecord{
		Karat:         k,
		PricePerGram:  row.price,
		Currency:      currency,
		Change:        &change,
		ChangePercent: &pct,
		UpdatedAt:     at.UTC(),
	}
}
