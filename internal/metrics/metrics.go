// Package metrics exposes the process-wide Prometheus counters for the
// domain jobs. Repository-level metrics live alongside the repository
// decorator (internal/repository/instrumented.go); this package covers
// the analyzer, janitor, and HTTP surface.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attest_http_requests_total",
			Help: "Total HTTP requests by route and status class.",
		},
		[]string{"route", "status"},
	)

	AnalyzerGroupsProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "attest_analyzer_groups_processed_total",
			Help: "Total (class, session_date) groups successfully processed by the analyzer.",
		},
	)

	AnalyzerPairsFlagged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attest_analyzer_pairs_flagged_total",
			Help: "Total stream pairs flagged suspicious by the correlation engine.",
		},
		[]string{"severity"},
	)

	AnalyzerGroupSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "attest_analyzer_group_seconds",
			Help:    "Wall time spent correlating one (class, session_date) group.",
			Buckets: prometheus.DefBuckets,
		},
	)

	JanitorExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "attest_janitor_expired_total",
			Help: "Total provisional attendance records auto-cancelled by the janitor.",
		},
	)

	JanitorPrunedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "attest_janitor_pruned_total",
			Help: "Total cancelled attendance records pruned by the janitor.",
		},
	)
)
