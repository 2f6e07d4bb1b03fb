package fetcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mmgamerag",
			Name:      "fetch_total",
			Help:      "Total fetches by outcome",
		},
		[]string{"outcome"}, // "ok", "cache_hit", "failed"
	)

	fetchAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mmgamerag",
			Name:      "fetch_attempts_total",
			Help:      "HTTP attempts including retries",
		},
	)

	fetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "mmgamerag",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of fetches including retries in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		},
	)
)
