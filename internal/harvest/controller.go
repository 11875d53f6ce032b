// Package harvest implements the harvest engine: the run controller, the
// fixed worker pool and the per-job scrape/sink loop.
//
// Purpose:
//   One run turns the pricing page's current offering into rows. The
//   controller owns the run lifecycle (status transitions, catalog
//   collection, job list construction, pool setup, archival, accounting);
//   the pool drains the job list through workers; each worker drives one
//   browser session and feeds the database and CSV sinks.
//
// Key Responsibilities:
//   - Refuse concurrent runs via the shared lifecycle status
//   - Resolve catalogs and validate allow-lists before any worker starts
//   - Clamp the worker count to the host CPU count
//   - Tally run outcomes and append the per-run metrics row
package harvest

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Zeebrow/ec2-price-tracker/internal/events"
	"github.com/Zeebrow/ec2-price-tracker/internal/exports"
	"github.com/Zeebrow/ec2-price-tracker/internal/metrics"
	"github.com/Zeebrow/ec2-price-tracker/internal/pricing"
	"github.com/Zeebrow/ec2-price-tracker/internal/status"
	"github.com/Zeebrow/ec2-price-tracker/internal/storage/postgres"
)

// DriverFactory opens one fresh browser session against the pricing page.
type DriverFactory func(ctx context.Context) (PageDriver, error)

// Database is the persistence surface a run needs. *postgres.Store
// satisfies it.
type Database interface {
	RecordSink
	InsertRunMetrics(ctx context.Context, row postgres.RunMetricsRow) error
	PricingTableSize(ctx context.Context) (int64, error)
}

// CatalogWriter caches discovered catalogs for the control API.
// *pricing.CatalogCache satisfies it.
type CatalogWriter interface {
	Set(ctx context.Context, catalogs *pricing.CachedCatalogs) error
}

// RunPublisher emits the run-completed event. *events.Publisher satisfies
// it.
type RunPublisher interface {
	PublishRunCompleted(ctx context.Context, event events.RunCompleted) error
}

// ArchiveDeliverer ships the day's archive to object storage.
// *exports.ArchiveDelivery satisfies it.
type ArchiveDeliverer interface {
	UploadArchive(ctx context.Context, archivePath string) (string, error)
}

// ControllerConfig wires one run's collaborators. Status and NewDriver are
// required; everything else degrades to "feature off" when nil.
type ControllerConfig struct {
	Options   Options
	Status    status.Store
	NewDriver DriverFactory

	// DB enables the database sink, the metrics row and the size delta.
	DB Database

	// CSV enables the per-region file sink and the archive step.
	CSV *exports.Sink

	// Catalogs, Events and Delivery are best-effort integrations; their
	// failures are logged, never fatal to a run.
	Catalogs CatalogWriter
	Events   RunPublisher
	Delivery ArchiveDeliverer

	Logger *zap.Logger

	// CommandLine is recorded verbatim in the run's metrics row.
	CommandLine string

	// Now is the clock, replaceable in tests.
	Now func() time.Time
}

// Controller executes harvest runs.
type Controller struct {
	opts        Options
	status      status.Store
	newDriver   DriverFactory
	db          Database
	csv         *exports.Sink
	catalogs    CatalogWriter
	events      RunPublisher
	delivery    ArchiveDeliverer
	logger      *zap.Logger
	commandLine string
	now         func() time.Time
	stats       *RunStats
}

// NewController validates the wiring and returns a controller ready to run.
func NewController(cfg ControllerConfig) (*Controller, error) {
	if cfg.Status == nil {
		return nil, errors.New("harvest: status store is required")
	}
	if cfg.NewDriver == nil {
		return nil, errors.New("harvest: driver factory is required")
	}
	if err := cfg.Options.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Controller{
		opts:        cfg.Options,
		status:      cfg.Status,
		newDriver:   cfg.NewDriver,
		db:          cfg.DB,
		csv:         cfg.CSV,
		catalogs:    cfg.Catalogs,
		events:      cfg.Events,
		delivery:    cfg.Delivery,
		logger:      cfg.Logger,
		commandLine: cfg.CommandLine,
		now:         cfg.Now,
		stats:       NewRunStats(),
	}, nil
}

// Stats exposes the run tally, populated once Run has executed.
func (c *Controller) Stats() *RunStats {
	return c.stats
}

// Run executes one full harvest. It refuses to start unless the engine is
// idle, and restores idle unconditionally on the way out. Job failures do
// not fail the run; only a refused start, unreachable catalogs, a bad
// allow-list or a dead pool do.
func (c *Controller) Run(ctx context.Context) error {
	started := c.now()
	date := started.Format("2006-01-02")
	runID := uuid.NewString()
	log := c.logger.With(zap.String("run_id", runID), zap.String("date", date))

	st, err := c.status.Read(ctx)
	if err != nil {
		return fmt.Errorf("read engine status: %w", err)
	}
	if st != status.StateIdle {
		metrics.RecordRun("refused", 0, 0)
		return fmt.Errorf("%w: currently %q", status.ErrNotIdle, st)
	}

	c.setStatus(ctx, status.StateStarting)
	defer func() {
		// Whatever happened above, the engine must come back to idle or
		// every later run would be refused.
		c.setStatus(context.Background(), status.StateIdle)
	}()

	c.setStatus(ctx, status.StateCollecting)
	regions, oses, err := c.collectCatalogs(ctx)
	if err != nil {
		metrics.RecordRun("failed", 0, 0)
		return err
	}
	log.Info("catalogs collected",
		zap.Int("regions", len(regions)),
		zap.Int("operating_systems", len(oses)))

	if c.catalogs != nil {
		cached := &pricing.CachedCatalogs{
			Regions:          regions,
			OperatingSystems: oses,
			CollectedAt:      c.now().UTC(),
		}
		if err := c.catalogs.Set(ctx, cached); err != nil {
			log.Warn("catalog cache update failed", zap.Error(err))
		}
	}

	targetRegions, err := pricing.FilterCatalog(regions, c.opts.Regions)
	if err != nil {
		metrics.RecordRun("failed", 0, 0)
		return fmt.Errorf("region allow-list: %w", err)
	}
	targetOSes, err := pricing.FilterCatalog(oses, c.opts.OperatingSystems)
	if err != nil {
		metrics.RecordRun("failed", 0, 0)
		return fmt.Errorf("operating system allow-list: %w", err)
	}

	jobs := BuildJobs(targetOSes, targetRegions)
	log.Info("job list built",
		zap.Int("jobs", len(jobs)),
		zap.Int("operating_systems", len(targetOSes)),
		zap.Int("regions", len(targetRegions)))

	csvStart := c.csvTreeSize()
	dbStart := c.dbSize(ctx)

	n := ResolveWorkerCount(c.opts.ThreadCount, c.opts.Overdrive, c.logger)

	c.setStatus(ctx, status.StateRunning)
	pool, err := NewPool(ctx, n, c.workerFactory(date), c.logger)
	if err != nil {
		metrics.RecordRun("failed", 0, 0)
		return err
	}
	initSeconds := c.now().Sub(started).Seconds()
	log.Info("worker pool ready",
		zap.Int("workers", pool.Size()),
		zap.Float64("init_seconds", initSeconds))

	pool.Run(ctx, jobs)

	c.setStatus(ctx, status.StateCleaningUp)
	pool.Close()

	var archiveKey string
	if c.opts.Compress && c.csv != nil {
		archiveKey = c.archive(ctx, date, log)
	}

	runSeconds := c.now().Sub(started).Seconds()
	csvDelta := c.csvTreeSize() - csvStart
	dbDelta := c.dbSize(ctx) - dbStart

	if c.db != nil {
		row := postgres.RunMetricsRow{
			Date:          date,
			ThreadCount:   n,
			OSCount:       len(targetOSes),
			RegionCount:   len(targetRegions),
			InitSeconds:   initSeconds,
			RunSeconds:    runSeconds,
			CSVBytesDelta: csvDelta,
			DBBytesDelta:  dbDelta,
			ErrorCount:    int(c.stats.Errors()),
			CommandLine:   c.commandLine,
		}
		if err := c.db.InsertRunMetrics(ctx, row); err != nil {
			log.Error("run metrics append failed", zap.Error(err))
		}
	}

	if c.events != nil {
		event := events.RunCompleted{
			RunID:            runID,
			Date:             date,
			ThreadCount:      n,
			OSCount:          len(targetOSes),
			RegionCount:      len(targetRegions),
			RowsCollected:    c.stats.Collected(),
			RowsStored:       c.stats.Stored(),
			RowsDuplicate:    c.stats.Duplicates(),
			JobsSucceeded:    c.stats.JobsSucceeded(),
			JobsFailed:       c.stats.JobsFailed(),
			ErrorCount:       c.stats.Errors(),
			InitSeconds:      initSeconds,
			RunSeconds:       runSeconds,
			ArchiveObjectKey: archiveKey,
			CompletedAt:      c.now().UTC(),
		}
		if err := c.events.PublishRunCompleted(ctx, event); err != nil {
			log.Warn("run event publish failed", zap.Error(err))
		}
	}

	metrics.RecordRun("completed", initSeconds, runSeconds)
	log.Info("run complete",
		zap.Int64("rows_collected", c.stats.Collected()),
		zap.Int64("rows_stored", c.stats.Stored()),
		zap.Int64("rows_duplicate", c.stats.Duplicates()),
		zap.Int64("jobs_succeeded", c.stats.JobsSucceeded()),
		zap.Int64("jobs_failed", c.stats.JobsFailed()),
		zap.Int64("errors", c.stats.Errors()),
		zap.Float64("run_seconds", runSeconds))
	return nil
}

// Catalogs opens one short-lived session and returns the page's current
// offering. Used by the catalog listing commands; no lifecycle transitions
// happen here.
func (c *Controller) Catalogs(ctx context.Context) (*pricing.CachedCatalogs, error) {
	regions, oses, err := c.collectCatalogs(ctx)
	if err != nil {
		return nil, err
	}
	return &pricing.CachedCatalogs{
		Regions:          regions,
		OperatingSystems: oses,
		CollectedAt:      c.now().UTC(),
	}, nil
}

func (c *Controller) collectCatalogs(ctx context.Context) (regions, oses []string, err error) {
	driver, err := c.newDriver(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("catalog session: %w", err)
	}
	defer func() {
		if cerr := driver.Close(); cerr != nil {
			c.logger.Warn("catalog session close failed", zap.Error(cerr))
		}
	}()

	regions, err = driver.ListRegions(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list regions: %w", err)
	}
	oses, err = driver.ListOperatingSystems(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list operating systems: %w", err)
	}
	return regions, oses, nil
}

// archive zips the day's CSV tree and, when a deliverer is wired, ships the
// zip to object storage. Returns the object key, empty on any failure.
func (c *Controller) archive(ctx context.Context, date string, log *zap.Logger) string {
	zipPath, err := exports.Archive(c.csv.Root, c.csv.DataType, date, c.logger)
	if err != nil {
		c.stats.RecordError()
		log.Error("archive failed", zap.Error(err))
		return ""
	}
	log.Info("csv tree archived", zap.String("zip", zipPath))

	if c.delivery == nil {
		return ""
	}
	key, err := c.delivery.UploadArchive(ctx, zipPath)
	if err != nil {
		log.Warn("archive delivery failed", zap.Error(err))
		return ""
	}
	log.Info("archive delivered", zap.String("object_key", key))
	return key
}

func (c *Controller) workerFactory(date string) WorkerFactory {
	return func(ctx context.Context, id int) (*Worker, error) {
		driver, err := c.newDriver(ctx)
		if err != nil {
			return nil, err
		}
		var db RecordSink
		if c.db != nil {
			db = c.db
		}
		var csv CSVSink
		if c.csv != nil {
			csv = c.csv
		}
		return newWorker(id, date, driver, db, csv, c.stats, c.logger), nil
	}
}

func (c *Controller) csvTreeSize() int64 {
	if c.csv == nil {
		return 0
	}
	size, err := exports.TreeSize(c.csv.Root)
	if err != nil {
		c.logger.Warn("csv tree size unavailable", zap.Error(err))
		return 0
	}
	return size
}

func (c *Controller) dbSize(ctx context.Context) int64 {
	if c.db == nil {
		return 0
	}
	size, err := c.db.PricingTableSize(ctx)
	if err != nil {
		c.logger.Warn("database size unavailable", zap.Error(err))
		return 0
	}
	return size
}

func (c *Controller) setStatus(ctx context.Context, s status.State) {
	if err := c.status.Write(ctx, s); err != nil {
		c.logger.Warn("status write failed",
			zap.String("state", string(s)), zap.Error(err))
		return
	}
	c.logger.Debug("status", zap.String("state", string(s)))
}

// ResolveWorkerCount clamps the requested worker count to the host CPU
// count unless overdrive lifts the clamp, and floors the result at one.
// Each worker is a whole browser, so oversubscribing CPUs mostly buys swap.
func ResolveWorkerCount(requested int, overdrive bool, logger *zap.Logger) int {
	n := requested
	if !overdrive && n > runtime.NumCPU() {
		logger.Warn("clamping worker count to host CPUs",
			zap.Int("requested", requested),
			zap.Int("cpus", runtime.NumCPU()))
		n = runtime.NumCPU()
	}
	if n < 1 {
		logger.Warn("worker count floored at one", zap.Int("requested", requested))
		n = 1
	}
	return n
}
