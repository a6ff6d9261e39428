// Package telemetry holds the process's Prometheus metrics and OpenTelemetry
// tracer setup.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ─── Scheduler ───────────────────────────────────────────────────────────────

	TasksSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "scry",
		Subsystem: "scheduler",
		Name:      "tasks_submitted_total",
		Help:      "Total tasks accepted by the scheduler.",
	})

	TasksRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scry",
		Subsystem: "scheduler",
		Name:      "tasks_rejected_total",
		Help:      "Total submissions refused, labelled by reason (validation, admission).",
	}, []string{"reason"})

	TasksFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scry",
		Subsystem: "scheduler",
		Name:      "tasks_finished_total",
		Help:      "Total tasks that reached a terminal status.",
	}, []string{"status"})

	TasksRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "scry",
		Subsystem: "scheduler",
		Name:      "tasks_running",
		Help:      "Tasks currently executing the pipeline.",
	})

	TasksReaped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "scry",
		Subsystem: "scheduler",
		Name:      "tasks_reaped_total",
		Help:      "Total tasks evicted after the retention window.",
	})

	// ─── Pipeline ────────────────────────────────────────────────────────────────

	StageDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "scry",
		Subsystem: "pipeline",
		Name:      "stage_duration_seconds",
		Help:      "Pipeline stage execution time in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"stage"})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scry",
		Subsystem: "pipeline",
		Name:      "cache_lookups_total",
		Help:      "Result cache lookups, labelled by artifact kind and outcome (hit, miss, error).",
	}, []string{"kind", "outcome"})

	ProviderRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "scry",
		Subsystem: "pipeline",
		Name:      "provider_retries_total",
		Help:      "Total provider retry attempts during correction.",
	})

	Reconciliations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scry",
		Subsystem: "pipeline",
		Name:      "reconciliations_total",
		Help:      "Confidence checks on composite summaries, labelled by outcome.",
	}, []string{"outcome"})
)
