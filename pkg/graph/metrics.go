package graph

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	nodesUpserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mmgamerag",
			Name:      "graph_nodes_upserted_total",
			Help:      "Graph nodes written by the writer",
		},
		[]string{"kind"},
	)

	orphansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mmgamerag",
			Name:      "graph_orphans_total",
			Help:      "Relationships and images dropped because an endpoint was missing",
		},
		[]string{"type"}, // "edge", "image"
	)
)
