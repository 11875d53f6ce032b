package harvest

import (
	"sync/atomic"

	"github.com/Zeebrow/ec2-price-tracker/internal/metrics"
)

// Reporter receives row and job outcomes from workers. All methods must be
// safe for concurrent use.
type Reporter interface {
	RecordCollected()
	RecordStored()
	RecordDuplicate()
	RecordError()
	JobSucceeded()
	JobFailed()
}

// RunStats tallies one run's outcomes. It implements Reporter with atomic
// counters and mirrors every event into the Prometheus collectors.
type RunStats struct {
	collected  atomic.Int64
	stored     atomic.Int64
	duplicates atomic.Int64
	errors     atomic.Int64
	succeeded  atomic.Int64
	failed     atomic.Int64
}

// NewRunStats returns a zeroed tally.
func NewRunStats() *RunStats {
	return &RunStats{}
}

func (s *RunStats) RecordCollected() {
	s.collected.Add(1)
	metrics.RecordRowCollected()
}

func (s *RunStats) RecordStored() {
	s.stored.Add(1)
	metrics.RecordRowStored()
}

func (s *RunStats) RecordDuplicate() {
	s.duplicates.Add(1)
	metrics.RecordRowDuplicate()
}

func (s *RunStats) RecordError() {
	s.errors.Add(1)
	metrics.RecordError()
}

func (s *RunStats) JobSucceeded() {
	s.succeeded.Add(1)
	metrics.RecordJobSuccess()
}

func (s *RunStats) JobFailed() {
	s.failed.Add(1)
	metrics.RecordJobFailure()
}

// Collected reports how many table rows were extracted.
func (s *RunStats) Collected() int64 { return s.collected.Load() }

// Stored reports how many rows were newly written to the database.
func (s *RunStats) Stored() int64 { return s.stored.Load() }

// Duplicates reports how many rows already existed in the database.
func (s *RunStats) Duplicates() int64 { return s.duplicates.Load() }

// Errors reports job-level and sink-level failures. This is the count the
// run's metrics row records.
func (s *RunStats) Errors() int64 { return s.errors.Load() }

// JobsSucceeded reports completed jobs.
func (s *RunStats) JobsSucceeded() int64 { return s.succeeded.Load() }

// JobsFailed reports failed jobs.
func (s *RunStats) JobsFailed() int64 { return s.failed.Load() }
