package harvest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Zeebrow/ec2-price-tracker/internal/browser"
	"github.com/Zeebrow/ec2-price-tracker/internal/pricing"
	"github.com/Zeebrow/ec2-price-tracker/internal/storage/postgres"
)

// PageDriver is the browser session contract a worker drives. *browser.Driver
// satisfies it; tests substitute fakes.
type PageDriver interface {
	ListRegions(ctx context.Context) ([]string, error)
	ListOperatingSystems(ctx context.Context) ([]string, error)
	SelectOperatingSystem(ctx context.Context, name string) error
	SelectRegion(ctx context.Context, name string) error
	Rows(ctx context.Context, fn func(cells []string) error) error
	Close() error
}

// RecordSink is the database sink contract. *postgres.Store satisfies it.
type RecordSink interface {
	InsertPricingRecord(ctx context.Context, rec pricing.Record) (postgres.InsertOutcome, error)
}

// CSVSink is the file sink contract. *exports.Sink satisfies it.
type CSVSink interface {
	Write(date, operatingSystem, region string, records []pricing.Record) error
}

// Worker owns one browser session and executes one job at a time. The lock
// documents and enforces the dispatch discipline: the pool hands a worker
// to at most one job, so acquiring the lock never contends.
type Worker struct {
	id     int
	date   string
	driver PageDriver
	db     RecordSink
	csv    CSVSink
	stats  Reporter
	logger *zap.Logger

	mu        sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool
}

func newWorker(id int, date string, driver PageDriver, db RecordSink, csv CSVSink, stats Reporter, logger *zap.Logger) *Worker {
	return &Worker{
		id:     id,
		date:   date,
		driver: driver,
		db:     db,
		csv:    csv,
		stats:  stats,
		logger: logger.With(zap.Int("worker_id", id)),
	}
}

// RunJob filters the pricing table to the job's combination, walks every
// page, and feeds the normalized records to the enabled sinks. It reports
// the job outcome as a bool; errors never escape to the pool.
func (w *Worker) RunJob(ctx context.Context, job Job) bool {
	if !w.mu.TryLock() {
		w.logger.Error("worker dispatched while busy",
			zap.String("operating_system", job.OperatingSystem),
			zap.String("region", job.Region))
		w.stats.RecordError()
		w.stats.JobFailed()
		return false
	}
	defer w.mu.Unlock()

	log := w.logger.With(
		zap.String("operating_system", job.OperatingSystem),
		zap.String("region", job.Region),
	)
	log.Info("job started")

	if err := w.driver.SelectOperatingSystem(ctx, job.OperatingSystem); err != nil {
		return w.failJob(log, "select operating system", err)
	}
	if err := w.driver.SelectRegion(ctx, job.Region); err != nil {
		return w.failJob(log, "select region", err)
	}

	var (
		batch      []pricing.Record
		duplicates int
		malformed  int
	)
	err := w.driver.Rows(ctx, func(cells []string) error {
		rec, err := pricing.FromCells(w.date, job.Region, job.OperatingSystem, cells)
		if err != nil {
			malformed++
			log.Warn("skipping malformed row", zap.Strings("cells", cells), zap.Error(err))
			return nil
		}
		w.stats.RecordCollected()

		if w.db != nil {
			outcome, err := w.db.InsertPricingRecord(ctx, rec)
			switch {
			case err != nil:
				w.stats.RecordError()
				log.Error("database insert failed",
					zap.String("instance_type", rec.InstanceType), zap.Error(err))
			case outcome == postgres.OutcomeDuplicate:
				duplicates++
				w.stats.RecordDuplicate()
			default:
				w.stats.RecordStored()
			}
		}

		batch = append(batch, rec)
		return nil
	})
	if err != nil {
		return w.failJob(log, "walk table", err)
	}

	if w.csv != nil {
		if err := w.csv.Write(w.date, job.OperatingSystem, job.Region, batch); err != nil {
			w.stats.RecordError()
			w.stats.JobFailed()
			log.Error("csv write failed", zap.Error(err))
			return false
		}
	}

	if duplicates > 0 {
		log.Warn("records already existed in database and were not stored",
			zap.Int("count", duplicates))
	}

	w.stats.JobSucceeded()
	log.Info("job finished",
		zap.Int("rows", len(batch)),
		zap.Int("duplicates", duplicates),
		zap.Int("malformed", malformed))
	return true
}

// failJob tallies a failed job. A broken browser session is torn down so
// the pool can retire the worker; unknown filter selections and context
// cancellations leave the session alone.
func (w *Worker) failJob(log *zap.Logger, op string, err error) bool {
	w.stats.RecordError()
	w.stats.JobFailed()

	var de *browser.DriverError
	if errors.As(err, &de) {
		log.Error("browser session failed, tearing it down",
			zap.String("op", op), zap.Error(err))
		w.teardown()
		return false
	}

	log.Error("job failed", zap.String("op", op), zap.Error(err))
	return false
}

func (w *Worker) teardown() {
	w.closeOnce.Do(func() {
		w.closed.Store(true)
		if err := w.driver.Close(); err != nil {
			w.logger.Warn("browser close failed", zap.Error(err))
		}
	})
}

// Closed reports whether the worker's browser session has been torn down.
func (w *Worker) Closed() bool {
	return w.closed.Load()
}

// Close tears down the worker's browser session. Idempotent.
func (w *Worker) Close() {
	w.teardown()
}
