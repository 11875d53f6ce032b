package harvest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Zeebrow/ec2-price-tracker/internal/browser"
)

// jobLog records the jobs a set of fake drivers actually executed.
type jobLog struct {
	mu   sync.Mutex
	jobs []Job
}

func (l *jobLog) record(job Job) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.jobs = append(l.jobs, job)
}

func (l *jobLog) seen() []Job {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Job(nil), l.jobs...)
}

// testFactory builds workers over fake drivers and keeps every driver it
// handed out.
type testFactory struct {
	mu      sync.Mutex
	stats   *RunStats
	log     *jobLog
	drivers []*fakeDriver
	prepare func(id int, d *fakeDriver)
	failIDs map[int]bool
}

func newTestFactory(stats *RunStats) *testFactory {
	return &testFactory{stats: stats, log: &jobLog{}}
}

func (f *testFactory) factory(t *testing.T) WorkerFactory {
	return func(ctx context.Context, id int) (*Worker, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.failIDs[id] {
			return nil, fmt.Errorf("browser: navigate: chrome failed to start")
		}
		d := newFakeDriver()
		d.onJob = f.log.record
		if f.prepare != nil {
			f.prepare(id, d)
		}
		f.drivers = append(f.drivers, d)
		return newWorker(id, "2026-08-25", d, nil, nil, f.stats, zaptest.NewLogger(t)), nil
	}
}

func TestNewPoolDropsFailedWorkers(t *testing.T) {
	f := newTestFactory(NewRunStats())
	f.failIDs = map[int]bool{1: true, 3: true}

	pool, err := NewPool(context.Background(), 4, f.factory(t), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer pool.Close()

	assert.Equal(t, 2, pool.Size())
}

func TestNewPoolAllWorkersFailed(t *testing.T) {
	f := newTestFactory(NewRunStats())
	f.failIDs = map[int]bool{0: true, 1: true}

	_, err := NewPool(context.Background(), 2, f.factory(t), zaptest.NewLogger(t))
	require.ErrorIs(t, err, ErrNoWorkers)
}

func TestPoolRunDrainsEveryJobOnce(t *testing.T) {
	stats := NewRunStats()
	f := newTestFactory(stats)

	pool, err := NewPool(context.Background(), 3, f.factory(t), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer pool.Close()

	jobs := BuildJobs(
		[]string{"Linux", "Windows"},
		[]string{"us-east-1", "eu-west-1", "ap-southeast-3"},
	)
	pool.Run(context.Background(), jobs)

	seen := f.log.seen()
	require.Len(t, seen, len(jobs))
	assert.ElementsMatch(t, jobs, seen)
	assert.Equal(t, int64(len(jobs)), stats.JobsSucceeded())

	for _, d := range f.drivers {
		assert.False(t, d.overlapped.Load(), "worker ran two jobs at once")
	}
}

func TestPoolRunDispatchesFromEndOfList(t *testing.T) {
	f := newTestFactory(NewRunStats())

	pool, err := NewPool(context.Background(), 1, f.factory(t), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer pool.Close()

	jobs := []Job{
		{OperatingSystem: "Linux", Region: "us-east-1"},
		{OperatingSystem: "Linux", Region: "eu-west-1"},
		{OperatingSystem: "Linux", Region: "ap-southeast-3"},
	}
	pool.Run(context.Background(), jobs)

	seen := f.log.seen()
	require.Len(t, seen, 3)
	assert.Equal(t, "ap-southeast-3", seen[0].Region)
	assert.Equal(t, "eu-west-1", seen[1].Region)
	assert.Equal(t, "us-east-1", seen[2].Region)
}

func TestPoolSurplusWorkersStayIdle(t *testing.T) {
	stats := NewRunStats()
	f := newTestFactory(stats)

	pool, err := NewPool(context.Background(), 3, f.factory(t), zaptest.NewLogger(t))
	require.NoError(t, err)

	pool.Run(context.Background(), []Job{{OperatingSystem: "Linux", Region: "us-east-1"}})
	assert.Equal(t, int64(1), stats.JobsSucceeded())

	pool.Close()
	for _, d := range f.drivers {
		assert.True(t, d.closedOnce(), "every session is torn down exactly once")
	}
}

func TestPoolRetiresDeadWorkerAndFinishesRun(t *testing.T) {
	stats := NewRunStats()
	f := newTestFactory(stats)
	f.prepare = func(id int, d *fakeDriver) {
		if id == 0 {
			d.rowsErr = &browser.DriverError{Op: "extract rows", Err: errors.New("tab crashed")}
			d.rowsBeforeErr = 0
		}
	}

	pool, err := NewPool(context.Background(), 2, f.factory(t), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer pool.Close()

	jobs := BuildJobs([]string{"Linux"}, []string{"us-east-1", "eu-west-1", "ap-southeast-3", "us-west-2"})
	pool.Run(context.Background(), jobs)

	// Exactly one job died with the broken session; the healthy worker
	// finished the rest.
	assert.Equal(t, int64(1), stats.JobsFailed())
	assert.Equal(t, int64(len(jobs)-1), stats.JobsSucceeded())
	assert.Equal(t, 1, pool.Size())
}

func TestPoolAllWorkersDeadStopsDispatch(t *testing.T) {
	stats := NewRunStats()
	f := newTestFactory(stats)
	f.prepare = func(id int, d *fakeDriver) {
		d.rowsErr = &browser.DriverError{Op: "extract rows", Err: errors.New("tab crashed")}
		d.rowsBeforeErr = 0
	}

	pool, err := NewPool(context.Background(), 2, f.factory(t), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer pool.Close()

	jobs := BuildJobs([]string{"Linux", "Windows"}, []string{"us-east-1", "eu-west-1", "ap-southeast-3"})

	// Run must return rather than wait forever on a drained pool; the
	// test timeout is the backstop if dispatch fails to stop.
	pool.Run(context.Background(), jobs)

	// Both workers died on their first job; the remaining jobs are
	// dropped rather than waited on forever.
	assert.Equal(t, int64(2), stats.JobsFailed())
	assert.Equal(t, int64(0), stats.JobsSucceeded())
	assert.Equal(t, 0, pool.Size())
}

func TestPoolRunHonorsCancel(t *testing.T) {
	stats := NewRunStats()
	f := newTestFactory(stats)

	pool, err := NewPool(context.Background(), 1, f.factory(t), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer pool.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pool.Run(ctx, BuildJobs([]string{"Linux"}, []string{"us-east-1", "eu-west-1"}))

	// Nothing was dispatched after the cancel; Run still returned.
	assert.Equal(t, int64(0), stats.JobsSucceeded()+stats.JobsFailed())
}

func TestPoolCloseIdempotent(t *testing.T) {
	f := newTestFactory(NewRunStats())

	pool, err := NewPool(context.Background(), 2, f.factory(t), zaptest.NewLogger(t))
	require.NoError(t, err)

	pool.Close()
	pool.Close()

	for _, d := range f.drivers {
		assert.True(t, d.closedOnce())
	}
}
