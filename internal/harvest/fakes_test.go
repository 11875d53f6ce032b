package harvest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Zeebrow/ec2-price-tracker/internal/events"
	"github.com/Zeebrow/ec2-price-tracker/internal/pricing"
	"github.com/Zeebrow/ec2-price-tracker/internal/status"
	"github.com/Zeebrow/ec2-price-tracker/internal/storage/postgres"
)

// fakeDriver is an in-memory PageDriver. Every worker gets its own, so
// per-driver overlap detection doubles as the one-job-per-worker check.
type fakeDriver struct {
	regions []string
	oses    []string
	rows    [][]string

	selectOSErr     error
	selectRegionErr error
	rowsErr         error
	rowsBeforeErr   int // rows delivered before rowsErr fires

	mu             sync.Mutex
	selectedOS     string
	selectedRegion string
	closeCalls     int

	inUse      atomic.Int32
	overlapped atomic.Bool

	// onJob observes each table walk as (operating system, region).
	onJob func(job Job)
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		regions: []string{"us-east-1", "eu-west-1"},
		oses:    []string{"Linux", "Windows"},
		rows: [][]string{
			{"t3.nano", "$0.0052", "2", "0.5 GiB", "EBS Only", "Up to 5 Gigabit"},
			{"t3.micro", "$0.0104", "2", "1 GiB", "EBS Only", "Up to 5 Gigabit"},
		},
	}
}

func (d *fakeDriver) enter() func() {
	if d.inUse.Add(1) != 1 {
		d.overlapped.Store(true)
	}
	return func() { d.inUse.Add(-1) }
}

func (d *fakeDriver) ListRegions(ctx context.Context) ([]string, error) {
	return append([]string(nil), d.regions...), nil
}

func (d *fakeDriver) ListOperatingSystems(ctx context.Context) ([]string, error) {
	return append([]string(nil), d.oses...), nil
}

func (d *fakeDriver) SelectOperatingSystem(ctx context.Context, name string) error {
	defer d.enter()()
	if d.selectOSErr != nil {
		return d.selectOSErr
	}
	d.mu.Lock()
	d.selectedOS = name
	d.mu.Unlock()
	return nil
}

func (d *fakeDriver) SelectRegion(ctx context.Context, name string) error {
	defer d.enter()()
	if d.selectRegionErr != nil {
		return d.selectRegionErr
	}
	d.mu.Lock()
	d.selectedRegion = name
	d.mu.Unlock()
	return nil
}

func (d *fakeDriver) Rows(ctx context.Context, fn func(cells []string) error) error {
	defer d.enter()()
	d.mu.Lock()
	job := Job{OperatingSystem: d.selectedOS, Region: d.selectedRegion}
	d.mu.Unlock()
	if d.onJob != nil {
		d.onJob(job)
	}

	// Let concurrent jobs interleave so overlap detection means something.
	time.Sleep(time.Millisecond)

	for i, cells := range d.rows {
		if d.rowsErr != nil && i == d.rowsBeforeErr {
			return d.rowsErr
		}
		if err := fn(cells); err != nil {
			return err
		}
	}
	if d.rowsErr != nil && d.rowsBeforeErr >= len(d.rows) {
		return d.rowsErr
	}
	return nil
}

func (d *fakeDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeCalls++
	return nil
}

func (d *fakeDriver) closedOnce() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closeCalls == 1
}

// fakeDB implements Database in memory.
type fakeDB struct {
	mu          sync.Mutex
	inserted    []pricing.Record
	existing    map[string]bool // primary keys treated as already stored
	failType    string          // instance type whose insert errors
	metricsRows []postgres.RunMetricsRow
	size        int64
	sizeStep    int64 // added to size on every PricingTableSize call
}

func newFakeDB() *fakeDB {
	return &fakeDB{existing: make(map[string]bool)}
}

func (f *fakeDB) InsertPricingRecord(ctx context.Context, rec pricing.Record) (postgres.InsertOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failType != "" && rec.InstanceType == f.failType {
		return postgres.OutcomeStored, fmt.Errorf("insert pricing record: connection reset")
	}
	if f.existing[rec.PrimaryKey()] {
		return postgres.OutcomeDuplicate, nil
	}
	f.existing[rec.PrimaryKey()] = true
	f.inserted = append(f.inserted, rec)
	return postgres.OutcomeStored, nil
}

func (f *fakeDB) InsertRunMetrics(ctx context.Context, row postgres.RunMetricsRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metricsRows = append(f.metricsRows, row)
	return nil
}

func (f *fakeDB) PricingTableSize(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.size += f.sizeStep
	return f.size, nil
}

// fakeCSV implements CSVSink in memory.
type fakeCSV struct {
	mu     sync.Mutex
	writes []csvWrite
	err    error
}

type csvWrite struct {
	date, operatingSystem, region string
	records                       []pricing.Record
}

func (f *fakeCSV) Write(date, operatingSystem, region string, records []pricing.Record) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, csvWrite{date, operatingSystem, region, records})
	return nil
}

// statusRecorder is a status.Store that remembers every write.
type statusRecorder struct {
	mu      sync.Mutex
	current status.State
	writes  []status.State
}

func newStatusRecorder() *statusRecorder {
	return &statusRecorder{current: status.StateIdle}
}

func (s *statusRecorder) Read(ctx context.Context) (status.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, nil
}

func (s *statusRecorder) Write(ctx context.Context, st status.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = st
	s.writes = append(s.writes, st)
	return nil
}

func (s *statusRecorder) history() []status.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]status.State(nil), s.writes...)
}

// fakeCatalogWriter captures the cached catalogs.
type fakeCatalogWriter struct {
	mu  sync.Mutex
	got *pricing.CachedCatalogs
}

func (f *fakeCatalogWriter) Set(ctx context.Context, catalogs *pricing.CachedCatalogs) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = catalogs
	return nil
}

// fakePublisher captures published run events.
type fakePublisher struct {
	mu     sync.Mutex
	events []events.RunCompleted
}

func (f *fakePublisher) PublishRunCompleted(ctx context.Context, event events.RunCompleted) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

// fakeDeliverer captures archive uploads.
type fakeDeliverer struct {
	mu  sync.Mutex
	got string
	key string
	err error
}

func (f *fakeDeliverer) UploadArchive(ctx context.Context, archivePath string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.got = archivePath
	return f.key, nil
}
