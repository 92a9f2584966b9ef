package cache

import (
	"context"
	"slices"
	"sync"
	"time"

	"goldprice/internal/provider"
)

// entry stores cached prices for a single karat with expiry.
type entry struct {
	expiresAt time.Time
	prices    []provider.RawSourcePrice
}

// Adapter caches results per karat for a TTL.
// While every cached karat is fresh the underlying adapter is not called. When a refresh
// fails or comes back empty, entries younger than TTL+Stale are served instead.
type Adapter struct {
	A     provider.Adapter
	TTL   time.Duration
	Stale time.Duration

	mu    sync.RWMutex
	items map[int]entry // key: karat
	now   func() time.Time
}

func (c *Adapter) Name() string { return c.A.Name() }

func (c *Adapter) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}

// Fetch returns cached prices when valid, otherwise refreshes from the wrapped adapter.
func (c *Adapter) Fetch(ctx context.Context) ([]provider.RawSourcePrice, error) {
	if c.TTL <= 0 {
		return c.A.Fetch(ctx)
	}

	now := c.clock()
	if cached, ok := c.collect(now, 0); ok {
		return cached, nil
	}

	fresh, err := c.A.Fetch(ctx)
	if err != nil || len(fresh) == 0 {
		// Serve stale data rather than nothing
		if stale, ok := c.collect(now, c.Stale); ok {
			return stale, nil
		}
		return fresh, err
	}

	byKarat := make(map[int][]provider.RawSourcePrice)
	for _, p := range fresh {
		byKarat[p.Karat] = append(byKarat[p.Karat], p)
	}

	expiry := now.Add(c.TTL)
	c.mu.Lock()
	c.items = make(map[int]entry, len(byKarat))
	for k, ps := range byKarat {
		c.items[k] = entry{expiresAt: expiry, prices: ps}
	}
	c.mu.Unlock()
	return fresh, nil
}

// collect returns all cached prices if every entry is valid at now-grace.
func (c *Adapter) collect(now time.Time, grace time.Duration) ([]provider.RawSourcePrice, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.items) == 0 {
		return nil, false
	}
	karats := make([]int, 0, len(c.items))
	for k, e := range c.items {
		if !now.Before(e.expiresAt.Add(grace)) {
			return nil, false
		}
		karats = append(karats, k)
	}
	slices.Sort(karats)
	out := make([]provider.RawSourcePrice, 0, len(karats))
	for _, k := range karats {
		out = append(out, c.items[k].prices...)
	}
	return out, true
}
