package impl

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	nodesCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "opdag",
			Subsystem: "replica",
			Name:      "nodes_created_total",
			Help:      "Total operations created locally",
		},
	)

	// nodesGauge tracks the operations each replica holds.
	//
	// Labels:
	//   - replica: the replica id
	nodesGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "opdag",
			Subsystem: "replica",
			Name:      "nodes",
			Help:      "Operations held by a replica",
		},
		[]string{"replica"},
	)

	// mergesTotal counts merges by outcome.
	//
	// Labels:
	//   - status: "merged", "noop" or "failed"
	mergesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "opdag",
			Subsystem: "replica",
			Name:      "merges_total",
			Help:      "Total merges of remote snapshots by outcome",
		},
		[]string{"status"},
	)

	mergedNodesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "opdag",
			Subsystem: "replica",
			Name:      "merged_nodes_total",
			Help:      "Total operations learned from remote snapshots",
		},
	)

	traversalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "opdag",
			Subsystem: "replica",
			Name:      "traversals_total",
			Help:      "Total topological traversals by cache outcome",
		},
		[]string{"cache"},
	)
)
