package goldapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var (
	// ErrUnauthorized is returned for a missing or rejected access token.
	ErrUnauthorized = errors.New("goldapi: unauthorized")
	// ErrRateLimited is returned when the plan's request quota is exhausted.
	ErrRateLimited = errors.New("goldapi: rate limited")
)

// Quote is one spot quote for a metal in a currency.
type Quote struct {
	Metal     string
	Currency  string
	Price     float64
	Bid       *float64
	Ask       *float64
	Timestamp time.Time
	// PerGram maps karat to price per gram.
	PerGram map[int]float64
}

// gramFields lists the per-gram fields the feed publishes.
var gramFields = map[string]int{
	"price_gram_24k": 24,
	"price_gram_22k": 22,
	"price_gram_21k": 21,
	"price_gram_20k": 20,
	"price_gram_18k": 18,
	"price_gram_16k": 16,
	"price_gram_14k": 14,
	"price_gram_10k": 10,
}

// GetPrice retrieves the latest quote for metal (e.g. XAU) in currency.
func (c *Client) GetPrice(ctx context.Context, metal, currency string, opts ...ClientOption) (*Quote, error) {
	var override = &Client{
		baseURL:    c.baseURL,
		httpClient: c.httpClient,
		header:     c.header.Clone(),
	}
	for _, opt := range opts {
		opt(override)
	}

	url := fmt.Sprintf("%s/%s/%s", override.baseURL, metal, currency)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header = override.header
	req.Header.Set("Accept", "application/json")

	res, err := override.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		break

	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, ErrUnauthorized

	case http.StatusTooManyRequests:
		return nil, ErrRateLimited

	default:
		b, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, fmt.Errorf("unexpected status code: %d: %s", res.StatusCode, string(b))
	}

	var body map[string]any
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding price response: %w", err)
	}
	// Errors are sometimes reported with a 200 status.
	if msg, ok := body["error"].(string); ok && msg != "" {
		return nil, fmt.Errorf("goldapi error: %s", msg)
	}

	// {
	//   "metal": "XAU",
	//   "currency": "IDR",
	//   "price": 34987123.4,
	//   "bid": 34980000.1,
	//   "ask": 34994000.7,
	//   "price_gram_24k": 1124870.3,
	//   "timestamp": 1717000000
	// }
	price, err := parseNullableValue[float64](body, "price")
	if err != nil {
		return nil, fmt.Errorf("decoding price: %w", err)
	}
	bid, err := parseNullableValue[float64](body, "bid")
	if err != nil {
		return nil, fmt.Errorf("decoding bid: %w", err)
	}
	ask, err := parseNullableValue[float64](body, "ask")
	if err != nil {
		return nil, fmt.Errorf("decoding ask: %w", err)
	}
	ts, err := parseNullableValue[float64](body, "timestamp")
	if err != nil {
		return nil, fmt.Errorf("decoding timestamp: %w", err)
	}

	q := &Quote{
		Metal:     metal,
		Currency:  currency,
		Bid:       bid,
		Ask:       ask,
		Timestamp: time.Now().UTC(),
		PerGram:   make(map[int]float64, len(gramFields)),
	}
	if price != nil {
		q.Price = *price
	}
	if ts != nil && *ts > 0 {
		q.Timestamp = time.Unix(int64(*ts), 0).UTC()
	}
	for field, k := range gramFields {
		v, err := parseNullableValue[float64](body, field)
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", field, err)
		}
		if v != nil && *v > 0 {
			q.PerGram[k] = *v
		}
	}
	return q, nil
}

// parseNullableValue is a helper function to parse a nullable value.
func parseNullableValue[T any](data map[string]any, key string) (*T, error) {
	v, ok := data[key]
	if !ok || v == nil {
		return nil, nil
	}
	if v, ok := v.(T); ok {
		return &v, nil
	}
	return nil, fmt.Errorf("unexpected type: %T", v)
}
