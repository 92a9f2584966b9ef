// Package app builds the pipeline from configuration. The server, fetch and seed
// commands share it.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"goldprice/internal/aggregate"
	"goldprice/internal/config"
	"goldprice/internal/httpx"
	"goldprice/internal/karat"
	"goldprice/internal/logging"
	"goldprice/internal/market"
	"goldprice/internal/pricing"
	"goldprice/internal/provider"
	"goldprice/internal/provider/cache"
	"goldprice/internal/provider/estimate"
	"goldprice/internal/provider/goldapi"
	"goldprice/internal/provider/goldapiadapter"
	"goldprice/internal/provider/ratelimit"
	"goldprice/internal/provider/scrape"
	"goldprice/internal/refresh"
	"goldprice/internal/store"
	"goldprice/internal/store/memory"
	"goldprice/internal/store/postgres"
)

// staleFactor sets how long cached adapter results may be served after expiry,
// as a multiple of their TTL.
const staleFactor = 10

type App struct {
	Config     config.Config
	Log        *logging.Logger
	Karats     karat.Table
	Store      *store.Resilient
	Estimator  *estimate.Estimator
	Aggregator *aggregate.Aggregator
	Refresher  *refresh.Refresher
	Scheduler  *refresh.Scheduler
	Pricing    *pricing.Service
	Hours      market.Hours
}

// New validates cfg and wires every component. A store that cannot be opened is
// logged and replaced by the built-in snapshot; it does not fail New.
func New(ctx context.Context, cfg config.Config, log *logging.Logger) (*App, error) {
	if log == nil {
		log = logging.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	table, err := karat.NewTable(cfg.Karats)
	if err != nil {
		return nil, err
	}

	backend, err := OpenStore(ctx, cfg.Store, log)
	if err != nil {
		log.Error("price store unavailable, serving fallback snapshot", "driver", cfg.Store.Driver, "error", err)
		backend = nil
	}
	st := store.NewResilient(backend, table, cfg.Currency, log.With("component", "store"))

	primary, scrapers, err := Adapters(cfg, log)
	if err != nil {
		st.Close()
		return nil, err
	}

	est := estimate.New(estimate.Config{
		ReferencePrice: cfg.Estimator.ReferencePrice,
		BuybackRatio:   cfg.Estimator.BuybackRatio,
		Markups:        cfg.Estimator.Markups,
		Karats:         table.Tracked(),
	}, cfg.Band)

	agg, err := aggregate.New(aggregate.Options{
		Band:        cfg.Band,
		Karats:      table,
		Currency:    cfg.Currency,
		Primary:     primary,
		Scrapers:    scrapers,
		Estimator:   est,
		Previous:    st,
		Timeout:     time.Duration(cfg.Refresh.AdapterTimeoutMs) * time.Millisecond,
		Concurrency: cfg.Refresh.Concurrency,
		Log:         log.With("component", "aggregate"),
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	r := refresh.New(agg, st, log.With("component", "refresh"))
	return &App{
		Config:     cfg,
		Log:        log,
		Karats:     table,
		Store:      st,
		Estimator:  est,
		Aggregator: agg,
		Refresher:  r,
		Scheduler:  refresh.NewScheduler(r, time.Duration(cfg.Refresh.IntervalSec)*time.Second, log.With("component", "scheduler")),
		Pricing:    pricing.New(agg, st, table),
		Hours:      market.LoadHours(cfg.Market.Location, cfg.Market.Timezone, cfg.Market.OpenHour, cfg.Market.CloseHour),
	}, nil
}

func (a *App) Close() { a.Store.Close() }

// OpenStore returns the configured backend, applying migrations first when asked.
func OpenStore(ctx context.Context, cfg config.Store, log *logging.Logger) (store.Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return memory.New(), nil
	case "postgres":
		if cfg.Migrate {
			version, err := postgres.Migrate(cfg.DatabaseURL)
			if err != nil {
				return nil, err
			}
			log.Info("database migrations applied", "version", version)
		}
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.MaxConns)
		if err != nil {
			return nil, err
		}
		return postgres.New(pool), nil
	}
	return nil, fmt.Errorf("%w: %q", config.ErrUnknownDriver, cfg.Driver)
}

// Adapters builds the priced API adapter (nil when disabled) and every enabled
// scraper, each wrapped in its rate limit and cache.
func Adapters(cfg config.Config, log *logging.Logger) (provider.Adapter, []provider.Adapter, error) {
	if log == nil {
		log = logging.NewNop()
	}
	var primary provider.Adapter
	if g := cfg.GoldAPI; g.Enabled {
		if g.APIKey == "" {
			log.Warn("goldapi enabled without an api key")
		}
		client, err := goldapi.NewClient(g.APIKey,
			goldapi.WithBaseURL(g.Endpoint),
			goldapi.WithHTTPClient(httpx.New(time.Duration(g.TimeoutMs)*time.Millisecond).HTTP),
			goldapi.WithHeader(http.Header{"User-Agent": []string{"goldprice/1.0"}}),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("goldapi client: %w", err)
		}
		var a provider.Adapter = goldapiadapter.New(goldapiadapter.Config{
			Name:           "goldapi",
			Metal:          g.Symbol,
			Currency:       g.Currency,
			ConversionRate: g.ConversionRate,
		}, client)
		a = ratelimit.Wrap(a, g.MaxRequestsPerMinute, g.Burst, time.Duration(g.MinRequestIntervalSec)*time.Second)
		primary = withCache(a, g.CacheTTLSeconds)
	}

	var scrapers []provider.Adapter
	for _, s := range cfg.Scrapers {
		if !s.Enabled {
			continue
		}
		strategies, err := scrape.StrategiesByName(s.Strategies)
		if err != nil {
			return nil, nil, fmt.Errorf("scraper %s: %w", s.ID, err)
		}
		var a provider.Adapter = scrape.New(scrape.Source{
			ID:           s.ID,
			URL:          s.URL,
			DefaultKarat: s.DefaultKarat,
			SellRatio:    s.SellRatio,
			Band:         s.Band,
			Strategies:   strategies,
		}, httpx.New(time.Duration(s.TimeoutMs)*time.Millisecond), cfg.Band, log)
		a = ratelimit.Wrap(a, 0, 0, time.Duration(s.MinRequestIntervalSec)*time.Second)
		scrapers = append(scrapers, withCache(a, s.CacheTTLSeconds))
	}
	return primary, scrapers, nil
}

func withCache(a provider.Adapter, ttlSec int) provider.Adapter {
	if ttlSec <= 0 {
		return a
	}
	ttl := time.Duration(ttlSec) * time.Second
	return &cache.Adapter{A: a, TTL: ttl, Stale: staleFactor * ttl}
}
