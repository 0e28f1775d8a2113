// Package metrics holds the per-day learning rollup and the Prometheus
// instrumentation for the engine's serving surfaces.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "failure_engine_cycles_total",
			Help: "Total failure analysis cycles processed",
		},
		[]string{"status"}, // ok / persistence_error
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "failure_engine_cycle_duration_seconds",
			Help:    "End to end duration of one analysis cycle",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
	)

	AnalyzerFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "failure_engine_analyzer_fallbacks_total",
			Help: "Cycles classified by the heuristic fallback instead of the analyzer",
		},
		[]string{"reason"}, // unavailable / malformed
	)

	AnalyzerTokens = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "failure_engine_analyzer_tokens_total",
			Help: "Total tokens reported by the analyzer service",
		},
	)

	ScenariosDeduplicated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "failure_engine_scenarios_deduplicated_total",
			Help: "Captures folded into an existing scenario by hash",
		},
	)

	RecommendationsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "failure_engine_recommendations_total",
			Help: "Recommendations emitted, by type",
		},
		[]string{"type"},
	)
)
