// Package metrics holds the Prometheus collectors for the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	FetchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sureodds_fetches_total",
		Help: "Prediction fetches by outcome (cache_hit, live, error).",
	}, []string{"outcome"})

	FetchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sureodds_fetch_duration_seconds",
		Help:    "Duration of live prediction fetches.",
		Buckets: prometheus.DefBuckets,
	})

	CacheCorruptionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sureodds_cache_corruptions_total",
		Help: "Cache entries deleted because they failed to decode.",
	})

	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sureodds_rate_limited_total",
		Help: "Fetch attempts rejected upstream with a rate limit.",
	})
)

// Register installs all collectors on the default registry. Call once at startup.
func Register() {
	prometheus.MustRegister(FetchesTotal, FetchDuration, CacheCorruptionsTotal, RateLimitedTotal)
}
