package goldapiadapter

import (
	"context"
	"fmt"
	"math"
	"slices"

	"golang.org/x/sync/singleflight"

	"goldprice/internal/provider"
	"goldprice/internal/provider/goldapi"
)

// TroyOunceGrams converts the feed's per-ounce bid to a per-gram figure.
const TroyOunceGrams = 31.1034768

// PriceGetter is the slice of the GoldAPI client the adapter needs.
type PriceGetter interface {
	GetPrice(ctx context.Context, metal, currency string, opts ...goldapi.ClientOption) (*goldapi.Quote, error)
}

type Config struct {
	Name     string // display name, default: goldapi
	Metal    string // default: XAU
	Currency string // currency requested from the feed, default: IDR
	// ConversionRate multiplies every feed price into the target currency.
	// Use 1 when the feed already quotes the target currency.
	ConversionRate float64
}

// Adapter maps the feed's per-karat gram prices into raw source prices.
// Concurrent fetches share one upstream request.
type Adapter struct {
	cfg    Config
	client PriceGetter
	sf     singleflight.Group
}

func New(cfg Config, client PriceGetter) *Adapter {
	if cfg.Name == "" {
		cfg.Name = "goldapi"
	}
	if cfg.Metal == "" {
		cfg.Metal = "XAU"
	}
	if cfg.Currency == "" {
		cfg.Currency = "IDR"
	}
	if cfg.ConversionRate <= 0 {
		cfg.ConversionRate = 1
	}
	return &Adapter{cfg: cfg, client: client}
}

func (a *Adapter) Name() string { return a.cfg.Name }

func (a *Adapter) Fetch(ctx context.Context) ([]provider.RawSourcePrice, error) {
	v, err, _ := a.sf.Do(a.cfg.Metal+"/"+a.cfg.Currency, func() (any, error) {
		return a.client.GetPrice(ctx, a.cfg.Metal, a.cfg.Currency)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.cfg.Name, err)
	}
	q := v.(*goldapi.Quote)

	karats := make([]int, 0, len(q.PerGram))
	for k := range q.PerGram {
		karats = append(karats, k)
	}
	slices.Sort(karats)
	slices.Reverse(karats)

	rate := a.cfg.ConversionRate
	out := make([]provider.RawSourcePrice, 0, len(karats))
	for _, k := range karats {
		var sell *float64
		if k == 24 && q.Bid != nil && *q.Bid > 0 {
			s := math.Round(*q.Bid / TroyOunceGrams * rate)
			sell = &s
		}
		p, err := provider.NewRawSourcePrice(a.cfg.Name, k, math.Round(q.PerGram[k]*rate), sell, q.Timestamp)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: no per-gram prices in response", a.cfg.Name)
	}
	return out, nil
}

var _ provider.Adapter = (*Adapter)(nil)
