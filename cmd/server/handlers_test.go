package main

import (
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"goldprice/internal/app"
	"goldprice/internal/config"
	"goldprice/internal/logging"
	"goldprice/internal/market"
	"goldprice/internal/model"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := config.Default()
	cfg.Scrapers = nil
	a, err := app.New(t.Context(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	h := &handlers{
		prices:    a.Pricing,
		refresher: a.Refresher,
		hours:     a.Hours,
		log:       logging.NewNop(),
		// a Monday, 10:00 in Jakarta
		now: func() time.Time { return time.Date(2025, 3, 3, 3, 0, 0, 0, time.UTC) },
	}
	log := logging.NewNop()
	srv := httptest.NewServer(withMetrics(log, withJSONHeaders(withGzip(recoverPanic(log, limitBody(0, h.routes()))))))
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, code int, v any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, code, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "application/json")
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
}

func TestServer_GoldPricesServesSnapshotBeforeFirstRefresh(t *testing.T) {
	srv := newTestServer(t)

	var prices []model.GoldPriceData
	getJSON(t, srv.URL+"/api/gold-prices", http.StatusOK, &prices)

	require.Len(t, prices, 7)
	require.Equal(t, 24, prices[0].Karat)
	require.Equal(t, "Emas 24 Karat", prices[0].Name)
	require.Equal(t, 1_125_000.0, prices[0].PricePerGram)
}

func TestServer_RefreshThenHistory(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/refresh-prices", "application/json", nil)
	require.NoError(t, err)
	var body struct {
		RunID     string `json:"runId"`
		Tier      string `json:"tier"`
		Persisted int    `json:"persisted"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, body.RunID)
	require.Equal(t, "estimate", body.Tier)
	require.Equal(t, 7, body.Persisted)

	var hist []model.PriceHistoryEntry
	getJSON(t, srv.URL+"/api/price-history/24?days=7", http.StatusOK, &hist)
	require.Len(t, hist, 1)

	var chart []model.PriceHistoryEntry
	getJSON(t, srv.URL+"/api/chart-data/22?timeframe=1W", http.StatusOK, &chart)
	require.Len(t, chart, 1)
}

func TestServer_BadRequests(t *testing.T) {
	srv := newTestServer(t)

	for path, code := range map[string]int{
		"/api/price-history/abc":              http.StatusBadRequest,
		"/api/price-history/24?days=-1":       http.StatusBadRequest,
		"/api/price-history/40":               http.StatusNotFound,
		"/api/chart-data/24?timeframe=5Y":     http.StatusBadRequest,
		"/api/calculate?karat=24&unit=tael":   http.StatusBadRequest,
		"/api/calculate?karat=21":             http.StatusNotFound,
		"/api/calculate?karat=24&amount=lots": http.StatusBadRequest,
		"/api/calculate?karat=24&amount=0":    http.StatusBadRequest,
		"/api/calculate?karat=24&amount=NaN":  http.StatusBadRequest,
		"/api/calculate?karat=24&amount=Inf":  http.StatusBadRequest,
	} {
		t.Run(path, func(t *testing.T) {
			var e map[string]string
			getJSON(t, srv.URL+path, code, &e)
			require.NotEmpty(t, e["error"])
		})
	}
}

func TestServer_CalculateAndMarketStatus(t *testing.T) {
	srv := newTestServer(t)

	var v market.Valuation
	getJSON(t, srv.URL+"/api/calculate?karat=24&amount=2&unit=gram", http.StatusOK, &v)
	require.Equal(t, 2_250_000.0, v.Total)

	var s market.Status
	getJSON(t, srv.URL+"/api/market-status", http.StatusOK, &s)
	require.True(t, s.IsOpen)
	require.Equal(t, "Jakarta", s.Location)
	require.Equal(t, 15_000.0, s.OverallChange)
}

func TestServer_GzipAndMethodRouting(t *testing.T) {
	srv := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/gold-prices/live", nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Encoding", "gzip")
	resp, err := http.DefaultTransport.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))
	zr, err := gzip.NewReader(resp.Body)
	require.NoError(t, err)
	raw, err := io.ReadAll(zr)
	require.NoError(t, err)
	var prices []model.GoldPriceData
	require.NoError(t, json.Unmarshal(raw, &prices))
	require.Len(t, prices, 7)

	wrong, err := http.Post(srv.URL+"/api/gold-prices", "application/json", nil)
	require.NoError(t, err)
	wrong.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, wrong.StatusCode)
}
