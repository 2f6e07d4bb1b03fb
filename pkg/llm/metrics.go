package llm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	llmCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mmgamerag",
			Name:      "llm_calls_total",
			Help:      "Total LLM API calls",
		},
		[]string{"model", "status"},
	)

	llmDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mmgamerag",
			Name:      "llm_duration_seconds",
			Help:      "Time to first byte of LLM API calls in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~50s
		},
		[]string{"model"},
	)

	embeddingInputsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mmgamerag",
			Name:      "embedding_inputs_total",
			Help:      "Texts sent to the embedding endpoint",
		},
	)
)
