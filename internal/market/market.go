// Package market reports trading hours and values amounts of gold.
package market

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"goldprice/internal/model"
)

// Hours is the weekly trading window in a local timezone.
type Hours struct {
	Location string
	TZ       *time.Location
	Open     int
	Close    int
}

// LoadHours resolves timezone, falling back to a fixed UTC+7 zone when the tz database
// is unavailable.
func LoadHours(location, timezone string, open, closeHour int) Hours {
	tz, err := time.LoadLocation(timezone)
	if err != nil {
		tz = time.FixedZone("WIB", 7*60*60)
	}
	return Hours{Location: location, TZ: tz, Open: open, Close: closeHour}
}

// DefaultHours is Jakarta, 09:00 to 17:00.
func DefaultHours() Hours { return LoadHours("Jakarta", "Asia/Jakarta", 9, 17) }

// IsOpen reports whether t falls on a weekday within [Open, Close) local time.
func (h Hours) IsOpen(t time.Time) bool {
	local := t.In(h.TZ)
	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	return local.Hour() >= h.Open && local.Hour() < h.Close
}

type Status struct {
	IsOpen               bool      `json:"isOpen"`
	Location             string    `json:"location"`
	OverallChange        float64   `json:"overallChange"`
	OverallChangePercent float64   `json:"overallChangePercent"`
	LocalTime            time.Time `json:"localTime"`
}

// NewStatus takes the headline change from the 24K price, or the highest karat
// present when 24K is not tracked.
func NewStatus(h Hours, prices []model.GoldPriceData, now time.Time) Status {
	s := Status{IsOpen: h.IsOpen(now), Location: h.Location, LocalTime: now.In(h.TZ)}
	best := -1
	for _, p := range prices {
		if p.Karat > best {
			best = p.Karat
			s.OverallChange, s.OverallChangePercent = p.Change, p.ChangePercent
		}
	}
	return s
}

var ErrUnknownUnit = errors.New("unknown unit")

var ErrInvalidAmount = errors.New("amount must be positive")

// gramsPer maps a unit to its weight in grams.
var gramsPer = map[string]decimal.Decimal{
	"gram":    decimal.NewFromInt(1),
	"ons":     decimal.RequireFromString("28.35"),
	"troy_oz": decimal.RequireFromString("31.1035"),
	"kg":      decimal.NewFromInt(1000),
}

// Valuation is the value of an amount of gold at a per-gram price.
type Valuation struct {
	Karat        int     `json:"karat"`
	Amount       float64 `json:"amount"`
	Unit         string  `json:"unit"`
	Grams        float64 `json:"grams"`
	PricePerGram float64 `json:"pricePerGram"`
	Total        float64 `json:"total"`
	Currency     string  `json:"currency"`
}

// Calculate values amount of unit at price. Grams keep four decimals and the total
// is rounded to whole currency units.
func Calculate(price model.GoldPriceData, amount float64, unit string) (Valuation, error) {
	unit = strings.ToLower(strings.TrimSpace(unit))
	if unit == "" {
		unit = "gram"
	}
	per, ok := gramsPer[unit]
	if !ok {
		return Valuation{}, fmt.Errorf("%w: %q", ErrUnknownUnit, unit)
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return Valuation{}, ErrInvalidAmount
	}

	grams := decimal.NewFromFloat(amount).Mul(per)
	total := grams.Mul(decimal.NewFromFloat(price.PricePerGram)).Round(0)
	return Valuation{
		Karat:        price.Karat,
		Amount:       amount,
		Unit:         unit,
		Grams:        grams.Round(4).InexactFloat64(),
		PricePerGram: price.PricePerGram,
		Total:        total.InexactFloat64(),
		Currency:     price.Currency,
	}, nil
}
