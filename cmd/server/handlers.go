package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"goldprice/internal/logging"
	"goldprice/internal/market"
	"goldprice/internal/pricing"
	"goldprice/internal/refresh"
)

type handlers struct {
	prices    *pricing.Service
	refresher *refresh.Refresher
	hours     market.Hours
	log       *logging.Logger
	now       func() time.Time
}

func (h *handlers) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /api/gold-prices", h.getPrices)
	mux.HandleFunc("GET /api/gold-prices/live", h.getLivePrices)
	mux.HandleFunc("GET /api/market-status", h.getMarketStatus)
	mux.HandleFunc("GET /api/price-history/{karat}", h.getHistory)
	mux.HandleFunc("GET /api/chart-data/{karat}", h.getChartData)
	mux.HandleFunc("GET /api/calculate", h.getCalculate)
	mux.HandleFunc("POST /api/refresh-prices", h.postRefresh)
	return mux
}

func (h *handlers) getPrices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.prices.Latest(r.Context()))
}

// getLivePrices aggregates without persisting.
func (h *handlers) getLivePrices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.prices.Aggregate(r.Context()))
}

func (h *handlers) getMarketStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, market.NewStatus(h.hours, h.prices.Latest(r.Context()), h.now()))
}

func (h *handlers) getHistory(w http.ResponseWriter, r *http.Request) {
	k, ok := pathKarat(w, r)
	if !ok {
		return
	}
	days := pricing.DefaultHistoryDays
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		days = n
	}
	entries, err := h.prices.History(r.Context(), k, days)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *handlers) getChartData(w http.ResponseWriter, r *http.Request) {
	k, ok := pathKarat(w, r)
	if !ok {
		return
	}
	tf := r.URL.Query().Get("timeframe")
	if tf == "" {
		tf = "1D"
	}
	entries, err := h.prices.ChartSeries(r.Context(), k, tf)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *handlers) getCalculate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	k, err := strconv.Atoi(q.Get("karat"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "karat must be an integer")
		return
	}
	amount := 1.0
	if v := q.Get("amount"); v != "" {
		if amount, err = strconv.ParseFloat(v, 64); err != nil {
			writeError(w, http.StatusBadRequest, "amount must be a number")
			return
		}
	}
	price, err := h.prices.Price(r.Context(), k)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	v, err := market.Calculate(price, amount, q.Get("unit"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *handlers) postRefresh(w http.ResponseWriter, r *http.Request) {
	res := h.refresher.Run(r.Context(), refresh.TriggerManual)
	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "Prices updated successfully",
		"runId":     res.RunID,
		"tier":      res.Tier,
		"outcome":   res.Outcome,
		"persisted": res.Persisted,
		"prices":    res.Prices,
	})
}

func pathKarat(w http.ResponseWriter, r *http.Request) (int, bool) {
	k, err := strconv.Atoi(r.PathValue("karat"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "karat must be an integer")
		return 0, false
	}
	return k, true
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pricing.ErrUnknownKarat):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, pricing.ErrUnknownTimeframe),
		errors.Is(err, market.ErrUnknownUnit),
		errors.Is(err, market.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
