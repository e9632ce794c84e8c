// Package metrics exposes Prometheus collectors for the enhancement engine.
// The engine registers and updates them; serving the scrape endpoint is the
// embedding application's concern.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "docengine"

var (
	// UnitsProcessed counts units by terminal state ("done", "failed").
	UnitsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "units_total",
			Help:      "Total units processed, by outcome",
		},
		[]string{"outcome"},
	)

	// UnitFailures counts failed units by failure kind.
	UnitFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "unit_failures_total",
			Help:      "Total failed units, by failure kind",
		},
		[]string{"kind"},
	)

	// LLMAttempts counts llm call attempts by phase and result kind
	// ("ok" for the successful attempt).
	LLMAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "attempts_total",
			Help:      "Total LLM call attempts, by phase and result",
		},
		[]string{"phase", "result"},
	)

	// OutputTokens tracks generated tokens per phase.
	OutputTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "output_tokens_total",
			Help:      "Total output tokens consumed, by phase",
		},
		[]string{"phase"},
	)

	// CacheLookups counts cache lookups by phase and result ("hit", "miss").
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Total enhancement cache lookups, by phase and result",
		},
		[]string{"phase", "result"},
	)

	// UnitDuration tracks wall time per fully processed unit.
	UnitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "unit_duration_seconds",
			Help:      "Wall time per processed unit",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		},
	)
)
