package crawler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mmgamerag",
			Name:      "crawl_pages_total",
			Help:      "Crawled pages by final state",
		},
		[]string{"state"},
	)

	pagesExtracted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mmgamerag",
			Name:      "crawl_pages_extracted_total",
			Help:      "Pages whose content was extracted and persisted",
		},
	)

	frontierSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mmgamerag",
			Name:      "crawl_frontier_size",
			Help:      "URLs queued at the current depth",
		},
	)
)
