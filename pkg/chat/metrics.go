package chat

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	questionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mmgamerag",
			Name:      "chat_questions_total",
			Help:      "Questions answered by the assistant",
		},
		[]string{"mode", "outcome"},
	)

	questionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mmgamerag",
			Name:      "chat_question_duration_seconds",
			Help:      "End to end time to answer a question",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		},
		[]string{"mode"},
	)
)
