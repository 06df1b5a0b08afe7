package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts HTTP requests by method, route pattern, and status code.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradeindia_proxy_requests_total",
		Help: "Total HTTP requests processed.",
	}, []string{"method", "route", "status"})

	// RateLimited counts requests rejected by the per-client limiter.
	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tradeindia_proxy_rate_limited_total",
		Help: "Requests rejected with 429 by the rate limiter.",
	})

	// RateLimitClients tracks how many client windows the limiter holds.
	RateLimitClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tradeindia_proxy_rate_limit_clients",
		Help: "Client keys currently tracked by the rate limiter.",
	})

	// UpstreamDuration tracks TradeIndia call latency by outcome (ok, error).
	UpstreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tradeindia_proxy_upstream_duration_seconds",
		Help:    "Time spent waiting on the TradeIndia API.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
	}, []string{"outcome"})
)
