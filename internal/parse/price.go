// Package parse turns scraped price text into validated numbers.
package parse

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Band is an inclusive plausibility range for a price per gram.
type Band struct {
	Min float64 `json:"min" mapstructure:"min"`
	Max float64 `json:"max" mapstructure:"max"`
}

// DefaultBand is the IDR per gram range gold prices are expected to fall into.
var DefaultBand = Band{Min: 400_000, Max: 2_000_000}

// Contains reports whether v is a finite value inside the band.
func (b Band) Contains(v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	return v >= b.Min && v <= b.Max
}

// Times scales both bounds, used for prices quoted per several grams.
func (b Band) Times(f float64) Band { return Band{Min: b.Min * f, Max: b.Max * f} }

// Valid reports whether the band is usable.
func (b Band) Valid() bool { return b.Min > 0 && b.Max > b.Min }

var numberToken = regexp.MustCompile(`\d[\d.,]*`)

// Price extracts a price from text using b as plausibility range. It returns nil when no
// reading of the text lands inside the band.
//
// Each numeric token is read twice, once with dots as thousands separators and once with
// commas. A reading inside b/1000 is scaled up by 1000 once. If both readings qualify with
// different values, the one that consumed more grouping separators wins; a tie yields nil.
// Among tokens with an in-band reading, the one with the most grouping separators wins,
// then the one with the most digits, then the first.
func Price(text string, b Band) *float64 {
	if !b.Valid() {
		return nil
	}
	compact := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, text)

	var (
		best      float64
		bestScore [2]int
		found     bool
	)
	for _, tok := range numberToken.FindAllString(compact, -1) {
		tok = strings.TrimRight(tok, ".,")
		v, ok := resolve(tok, b)
		if !ok {
			continue
		}
		score := grouping(tok)
		if !found || score[0] > bestScore[0] || (score[0] == bestScore[0] && score[1] > bestScore[1]) {
			best, bestScore, found = v, score, true
		}
	}
	if !found {
		return nil
	}
	return &best
}

// grouping counts the separators and digits of tok. Tokens with more of either carry a
// stronger thousands-grouping signal than short marks such as "999.9".
func grouping(tok string) [2]int {
	digits := 0
	for _, r := range tok {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return [2]int{strings.Count(tok, ".") + strings.Count(tok, ","), digits}
}

// Between is Price with explicit bounds.
func Between(text string, minPlausible, maxPlausible float64) *float64 {
	return Price(text, Band{Min: minPlausible, Max: maxPlausible})
}

func resolve(tok string, b Band) (float64, bool) {
	dotted, dotOK := reading(strings.ReplaceAll(strings.ReplaceAll(tok, ".", ""), ",", "."), b)
	comma, commaOK := reading(strings.ReplaceAll(tok, ",", ""), b)

	switch {
	case dotOK && commaOK:
		if dotted == comma {
			return dotted, true
		}
		dots, commas := strings.Count(tok, "."), strings.Count(tok, ",")
		switch {
		case dots > commas:
			return dotted, true
		case commas > dots:
			return comma, true
		}
		return 0, false
	case dotOK:
		return dotted, true
	case commaOK:
		return comma, true
	}
	return 0, false
}

func reading(s string, b Band) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if b.Contains(v) {
		return v, true
	}
	if b.Times(0.001).Contains(v) && b.Contains(v*1000) {
		return v * 1000, true
	}
	return 0, false
}
