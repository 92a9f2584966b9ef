// Package scrape implements the HTML scraping adapter. One adapter serves any page; what
// differs between sites is the list of extraction strategies and a few defaults.
package scrape

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"time"

	"github.com/PuerkitoBio/goquery"

	"goldprice/internal/karat"
	"goldprice/internal/logging"
	"goldprice/internal/parse"
	"goldprice/internal/provider"
)

// PageFetcher downloads a page body.
type PageFetcher interface {
	GetPage(ctx context.Context, url string) ([]byte, error)
}

// Source describes one scraped site.
type Source struct {
	ID  string
	URL string
	// DefaultKarat prices candidates that do not name a karat. 0 drops them.
	DefaultKarat int
	// SellRatio derives a sell price from the buy price when the page lists none.
	SellRatio float64
	// Band narrows the plausibility band for this site. Zero means the adapter's band.
	Band       parse.Band
	Strategies []Strategy
}

// Adapter scrapes one Source.
type Adapter struct {
	src     Source
	fetcher PageFetcher
	band    parse.Band
	log     *logging.Logger
	now     func() time.Time
}

func New(src Source, fetcher PageFetcher, band parse.Band, log *logging.Logger) *Adapter {
	if len(src.Strategies) == 0 {
		src.Strategies = DefaultStrategies()
	}
	if src.Band.Valid() {
		band = src.Band
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Adapter{src: src, fetcher: fetcher, band: band, log: log.With("adapter", src.ID), now: time.Now}
}

func (a *Adapter) Name() string { return a.src.ID }

func (a *Adapter) Fetch(ctx context.Context) ([]provider.RawSourcePrice, error) {
	body, err := a.fetcher.GetPage(ctx, a.src.URL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.src.ID, err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: parsing html: %w", a.src.ID, err)
	}
	return a.Extract(doc), nil
}

// Extract runs every strategy over doc and converts accepted candidates. Repeated
// readings for a karat are all kept; the aggregator averages them.
func (a *Adapter) Extract(doc *goquery.Document) []provider.RawSourcePrice {
	captured := a.now()
	var out []provider.RawSourcePrice
	for _, s := range a.src.Strategies {
		cands := s.Extract(doc)
		accepted := 0
		for _, c := range cands {
			p, ok := a.convert(c, captured)
			if !ok {
				continue
			}
			out = append(out, p)
			accepted++
		}
		a.log.Debug("strategy finished", "strategy", s.Name(), "candidates", len(cands), "accepted", accepted)
	}
	return out
}

func (a *Adapter) convert(c Candidate, captured time.Time) (provider.RawSourcePrice, bool) {
	k := c.Karat
	if k == 0 {
		k = a.src.DefaultKarat
	}
	if !karat.Valid(k) {
		return provider.RawSourcePrice{}, false
	}
	grams := c.Grams
	if grams <= 0 {
		grams = 1
	}
	total := parse.Price(c.Text, a.band.Times(grams))
	if total == nil {
		return provider.RawSourcePrice{}, false
	}
	buy := math.Round(*total / grams)

	var sell *float64
	if c.SellText != "" {
		sellBand := parse.Band{Min: a.band.Min * grams / 2, Max: a.band.Max * grams}
		if v := parse.Price(c.SellText, sellBand); v != nil {
			s := math.Round(*v / grams)
			if s <= buy {
				sell = &s
			}
		}
	}
	if sell == nil && a.src.SellRatio > 0 {
		s := math.Round(buy * a.src.SellRatio)
		sell = &s
	}

	p, err := provider.NewRawSourcePrice(a.src.ID, k, buy, sell, captured)
	if err != nil {
		return provider.RawSourcePrice{}, false
	}
	return p, true
}
