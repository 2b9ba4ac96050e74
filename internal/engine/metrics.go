package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IngestedItems counts per-item ingestion outcomes.
	// Labels: kind (evidence, calendar, activity), result (accepted, rejected)
	IngestedItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "insightd",
			Subsystem: "engine",
			Name:      "ingested_items_total",
			Help:      "Total ingested items by kind and outcome",
		},
		[]string{"kind", "result"},
	)

	// RecomputeDuration tracks how long a single-user recompute takes.
	RecomputeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "insightd",
			Subsystem: "engine",
			Name:      "recompute_duration_seconds",
			Help:      "Duration of single-user recompute passes in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// RecomputeTotal counts recompute passes.
	// Labels: result (success, error)
	RecomputeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "insightd",
			Subsystem: "engine",
			Name:      "recomputes_total",
			Help:      "Total recompute passes by result",
		},
		[]string{"result"},
	)

	// PatternsDetected counts newly materialized behavioral patterns.
	PatternsDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "insightd",
			Subsystem: "engine",
			Name:      "patterns_detected_total",
			Help:      "Total behavioral patterns created by detection passes",
		},
	)

	// ActivePatternCount tracks the number of active patterns per user as of
	// the user's most recent recompute.
	ActivePatternCount = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "insightd",
			Subsystem: "engine",
			Name:      "active_patterns",
			Help:      "Active behavioral patterns per user after the last recompute",
		},
		[]string{"user_id"},
	)

	// StoreConflicts counts optimistic-concurrency conflicts that forced a
	// retry.
	StoreConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "insightd",
			Subsystem: "engine",
			Name:      "store_conflicts_total",
			Help:      "Total compare-and-swap conflicts retried against the store",
		},
	)

	// EventsPublished counts outbound event publications.
	// Labels: subject, result (success, error)
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "insightd",
			Subsystem: "engine",
			Name:      "events_published_total",
			Help:      "Total outbound events by subject and result",
		},
		[]string{"subject", "result"},
	)
)
