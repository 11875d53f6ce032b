// Package metrics provides Prometheus metrics collectors for the harvest
// engine.
//
// Purpose:
//   This package defines and exports Prometheus metrics for harvest runs,
//   per-job outcomes and row-level sink results. The control API serves
//   them on /metrics; the CLI can expose them on an optional side listener.
//
// Dependencies:
//   - github.com/prometheus/client_golang/prometheus: Prometheus Go client
//
// Key Responsibilities:
//   - Define metric collectors (counters, gauges, histograms)
//   - Register metrics with the default Prometheus registry
//   - Provide helper functions to record metric values
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "harvester"
	subsystem = "harvest"
)

var (
	// RowsCollectedTotal counts pricing rows extracted from the page.
	RowsCollectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rows_collected_total",
			Help:      "Total number of pricing rows extracted from the pricing table",
		},
	)

	// RowsStoredTotal counts rows newly written to the database.
	RowsStoredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rows_stored_total",
			Help:      "Total number of pricing rows newly stored in the database",
		},
	)

	// RowsDuplicateTotal counts rows skipped because their key already
	// existed.
	RowsDuplicateTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rows_duplicate_total",
			Help:      "Total number of pricing rows skipped as already stored",
		},
	)

	// JobsTotal counts finished (operating system, region) jobs by result.
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "jobs_total",
			Help:      "Total number of harvest jobs by result",
		},
		[]string{"result"}, // result: success, failure
	)

	// ErrorsTotal counts job-level and sink-level failures.
	ErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "errors_total",
			Help:      "Total number of job-level and sink-level harvest failures",
		},
	)

	// RunsTotal counts completed harvest runs by result.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "runs_total",
			Help:      "Total number of harvest runs by result",
		},
		[]string{"result"}, // result: completed, refused, failed
	)

	// RunInitDurationSeconds measures time from run start to worker pool
	// readiness.
	RunInitDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "init_duration_seconds",
			Help:      "Time from run start until the worker pool is ready",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	// RunDurationSeconds measures total run wall time.
	RunDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "duration_seconds",
			Help:      "Total harvest run wall time in seconds",
			Buckets:   prometheus.ExponentialBuckets(10, 2, 10),
		},
	)

	// WorkersReady tracks how many browser workers the current run holds.
	WorkersReady = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "workers_ready",
			Help:      "Number of live browser workers in the current run",
		},
	)
)

// RecordRowCollected records one extracted pricing row.
func RecordRowCollected() {
	RowsCollectedTotal.Inc()
}

// RecordRowStored records one row newly written to the database.
func RecordRowStored() {
	RowsStoredTotal.Inc()
}

// RecordRowDuplicate records one row skipped as already stored.
func RecordRowDuplicate() {
	RowsDuplicateTotal.Inc()
}

// RecordJobSuccess records one completed harvest job.
func RecordJobSuccess() {
	JobsTotal.WithLabelValues("success").Inc()
}

// RecordJobFailure records one failed harvest job.
func RecordJobFailure() {
	JobsTotal.WithLabelValues("failure").Inc()
}

// RecordError records one job-level or sink-level failure.
func RecordError() {
	ErrorsTotal.Inc()
}

// RecordRun records a finished run with its init and total durations.
func RecordRun(result string, initSeconds, runSeconds float64) {
	RunsTotal.WithLabelValues(result).Inc()
	if result == "completed" {
		RunInitDurationSeconds.Observe(initSeconds)
		RunDurationSeconds.Observe(runSeconds)
	}
}

// SetWorkersReady tracks the live worker count of the current run.
func SetWorkersReady(n int) {
	WorkersReady.Set(float64(n))
}
