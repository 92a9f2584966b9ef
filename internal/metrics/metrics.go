// Package metrics provides Prometheus metrics for the gold price pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// AdapterFetchTotal counts adapter runs by outcome (ok, empty, error, timeout, panic).
	AdapterFetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goldprice_adapter_fetch_total",
			Help: "Adapter runs by outcome",
		},
		[]string{"adapter", "outcome"},
	)

	// AdapterFetchDuration observes adapter latency.
	AdapterFetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "goldprice_adapter_fetch_duration_seconds",
			Help:    "Duration of adapter fetches",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"adapter"},
	)

	// AdapterPricesTotal counts raw prices accepted from an adapter.
	AdapterPricesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goldprice_adapter_prices_total",
			Help: "Raw source prices accepted per adapter",
		},
		[]string{"adapter"},
	)

	// AggregationDuration observes a full aggregation run, labelled by the tier that answered.
	AggregationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "goldprice_aggregation_duration_seconds",
			Help:    "Duration of aggregation runs",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tier"},
	)

	// EstimatedKaratsTotal counts karats synthesized by the estimator.
	EstimatedKaratsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goldprice_estimated_karats_total",
			Help: "Karats filled from the estimator",
		},
		[]string{"karat"},
	)

	// PurityViolationsTotal counts karat pairs whose prices contradict purity ordering.
	PurityViolationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "goldprice_purity_violations_total",
			Help: "Karat pairs priced against purity order",
		},
	)

	// PricePerGram is the latest aggregated price per karat.
	PricePerGram = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "goldprice_price_per_gram",
			Help: "Latest aggregated price per gram",
		},
		[]string{"karat", "currency"},
	)

	// StoreFallbackTotal counts store operations that degraded to fallback behaviour.
	StoreFallbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goldprice_store_fallback_total",
			Help: "Store operations that degraded",
		},
		[]string{"op"},
	)

	// RefreshRunsTotal counts refresh runs by trigger and outcome.
	RefreshRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goldprice_refresh_runs_total",
			Help: "Refresh runs by trigger and outcome",
		},
		[]string{"trigger", "outcome"},
	)

	// HTTPRequestsTotal counts served HTTP requests.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goldprice_http_requests_total",
			Help: "HTTP requests served",
		},
		[]string{"route", "code"},
	)

	// HTTPRequestDuration observes HTTP request latency.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "goldprice_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

var initOnce sync.Once

// Init registers all collectors with the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			AdapterFetchTotal,
			AdapterFetchDuration,
			AdapterPricesTotal,
			AggregationDuration,
			EstimatedKaratsTotal,
			PurityViolationsTotal,
			PricePerGram,
			StoreFallbackTotal,
			RefreshRunsTotal,
			HTTPRequestsTotal,
			HTTPRequestDuration,
		)
	})
}

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }

// RecordAdapterFetch records one adapter run.
func RecordAdapterFetch(adapter, outcome string, prices int, d time.Duration) {
	AdapterFetchTotal.WithLabelValues(adapter, outcome).Inc()
	AdapterFetchDuration.WithLabelValues(adapter).Observe(d.Seconds())
	if prices > 0 {
		AdapterPricesTotal.WithLabelValues(adapter).Add(float64(prices))
	}
}

// RecordAggregation records an aggregation run.
func RecordAggregation(tier string, d time.Duration) {
	AggregationDuration.WithLabelValues(tier).Observe(d.Seconds())
}

// RecordEstimate records a karat synthesized by the estimator.
func RecordEstimate(karat int) {
	EstimatedKaratsTotal.WithLabelValues(strconv.Itoa(karat)).Inc()
}

// RecordPrice publishes the latest price for a karat.
func RecordPrice(karat int, currency string, price float64) {
	PricePerGram.WithLabelValues(strconv.Itoa(karat), currency).Set(price)
}

// RecordStoreFallback records a degraded store operation.
func RecordStoreFallback(op string) {
	StoreFallbackTotal.WithLabelValues(op).Inc()
}

// RecordRefresh records a refresh run.
func RecordRefresh(trigger, outcome string) {
	RefreshRunsTotal.WithLabelValues(trigger, outcome).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(route string, code int, d time.Duration) {
	HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
	HTTPRequestDuration.WithLabelValues(route).Observe(d.Seconds())
}

// RecordPurityViolation records a lower karat priced above a higher one.
func RecordPurityViolation() {
	PurityViolationsTotal.Inc()
}
