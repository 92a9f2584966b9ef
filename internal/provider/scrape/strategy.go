package scrape

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"goldprice/internal/karat"
)

// Candidate is a price text found on a page together with what it prices.
type Candidate struct {
	// Karat is 0 when the page did not say; the source's default karat applies.
	Karat int
	Text  string
	// SellText is an optional buyback price found next to Text.
	SellText string
	// Grams is the weight Text is quoted for. 0 means one gram.
	Grams float64
}

// Strategy extracts price candidates from a parsed page.
type Strategy interface {
	Name() string
	Extract(doc *goquery.Document) []Candidate
}

var (
	karatPattern  = regexp.MustCompile(`(?i)\b(\d{1,2})\s*(?:k|kt|karat)\b`)
	weightPattern = regexp.MustCompile(`(?i)^\s*(\d+(?:[.,]\d+)?)\s*(?:gram|gr|g)\b`)
	bareNumber    = regexp.MustCompile(`^\s*(\d{1,2})\s*$`)
	goldKeyword   = regexp.MustCompile(`(?i)\b(?:emas|gold|logam mulia)\b`)
)

// karatIn returns the karat mentioned in s, or 0.
func karatIn(s string) int {
	m := karatPattern.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	k, _ := strconv.Atoi(m[1])
	if !karat.Valid(k) {
		return 0
	}
	return k
}

// gramsIn returns the weight s starts with, or 0.
func gramsIn(s string) float64 {
	m := weightPattern.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	g, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
	if err != nil || g <= 0 {
		return 0
	}
	return g
}

func clean(s string) string { return strings.Join(strings.Fields(s), " ") }

// TableRows reads `table tr` rows whose first cell names a karat, a weight or gold,
// taking the second cell as buy price and an optional third as sell price.
type TableRows struct{}

func (TableRows) Name() string { return "table" }

func (TableRows) Extract(doc *goquery.Document) []Candidate {
	var out []Candidate
	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}
		label := clean(cells.Eq(0).Text())
		c := Candidate{Text: clean(cells.Eq(1).Text())}
		if cells.Length() >= 3 {
			c.SellText = clean(cells.Eq(2).Text())
		}
		switch {
		case gramsIn(label) > 0:
			c.Grams = gramsIn(label)
			c.Karat = karatIn(label)
		case karatIn(label) > 0:
			c.Karat = karatIn(label)
		case bareNumber.MatchString(label):
			k, _ := strconv.Atoi(strings.TrimSpace(label))
			if !karat.Valid(k) {
				return
			}
			c.Karat = k
		case goldKeyword.MatchString(label):
		default:
			return
		}
		out = append(out, c)
	})
	return out
}

// priceSelector matches elements styled as prices.
const priceSelector = `.price, .harga, [class*="price"], [class*="harga"], [data-price]`

// PriceElements reads leaf elements whose class marks them as a price. The karat is
// taken from the element or, failing that, its parent.
type PriceElements struct{}

func (PriceElements) Name() string { return "elements" }

func (PriceElements) Extract(doc *goquery.Document) []Candidate {
	var out []Candidate
	doc.Find(priceSelector).Each(func(_ int, el *goquery.Selection) {
		if el.Find(priceSelector).Length() > 0 || el.Closest("table").Length() > 0 {
			return
		}
		text := clean(el.Text())
		if v, ok := el.Attr("data-price"); ok && strings.TrimSpace(v) != "" {
			text = v
		}
		if text == "" {
			return
		}
		k := karatIn(text)
		if k == 0 {
			if parent := clean(el.Parent().Text()); len(parent) <= 200 {
				k = karatIn(parent)
			}
		}
		out = append(out, Candidate{Karat: k, Text: text})
	})
	return out
}

var scriptPatterns = []*regexp.Regexp{
	// "price_gram_24k": 1125000 / price24k = '1.125.000'
	regexp.MustCompile(`(?i)price_?(?:gram_?)?(\d{1,2})k["']?\s*[:=]\s*["']?(\d[\d.,]*)`),
	// "24K" ... "Rp 1.125.000"
	regexp.MustCompile(`(?i)\b(\d{1,2})\s*(?:k|karat)\b[^\d]{0,40}?(\d{1,3}(?:[.,]\d{3})+(?:[.,]\d+)?)`),
}

// InlineScripts scans inline script bodies for karat/price pairs.
type InlineScripts struct{}

func (InlineScripts) Name() string { return "script" }

func (InlineScripts) Extract(doc *goquery.Document) []Candidate {
	var out []Candidate
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if _, external := s.Attr("src"); external {
			return
		}
		body := s.Text()
		for _, re := range scriptPatterns {
			for _, m := range re.FindAllStringSubmatch(body, -1) {
				k, _ := strconv.Atoi(m[1])
				if !karat.Valid(k) {
					continue
				}
				out = append(out, Candidate{Karat: k, Text: m[2]})
			}
		}
	})
	return out
}

// DefaultStrategies is every strategy in the order they are tried.
func DefaultStrategies() []Strategy {
	return []Strategy{TableRows{}, PriceElements{}, InlineScripts{}}
}

// StrategiesByName resolves configured strategy names. An empty list means all.
func StrategiesByName(names []string) ([]Strategy, error) {
	if len(names) == 0 {
		return DefaultStrategies(), nil
	}
	all := map[string]Strategy{}
	for _, s := range DefaultStrategies() {
		all[s.Name()] = s
	}
	out := make([]Strategy, 0, len(names))
	for _, n := range names {
		s, ok := all[strings.ToLower(strings.TrimSpace(n))]
		if !ok {
			return nil, fmt.Errorf("unknown extraction strategy %q", n)
		}
		out = append(out, s)
	}
	return out, nil
}
