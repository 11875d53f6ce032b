package harvest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Zeebrow/ec2-price-tracker/internal/browser"
)

func TestWorkerRunJobHappyPath(t *testing.T) {
	driver := newFakeDriver()
	db := newFakeDB()
	csv := &fakeCSV{}
	stats := NewRunStats()
	w := newWorker(0, "2026-08-25", driver, db, csv, stats, zaptest.NewLogger(t))

	ok := w.RunJob(context.Background(), Job{OperatingSystem: "Linux", Region: "us-east-1"})
	require.True(t, ok)

	assert.Equal(t, "Linux", driver.selectedOS)
	assert.Equal(t, "us-east-1", driver.selectedRegion)

	assert.Equal(t, int64(2), stats.Collected())
	assert.Equal(t, int64(2), stats.Stored())
	assert.Equal(t, int64(0), stats.Duplicates())
	assert.Equal(t, int64(0), stats.Errors())
	assert.Equal(t, int64(1), stats.JobsSucceeded())

	require.Len(t, csv.writes, 1)
	write := csv.writes[0]
	assert.Equal(t, "2026-08-25", write.date)
	assert.Equal(t, "Linux", write.operatingSystem)
	assert.Equal(t, "us-east-1", write.region)
	require.Len(t, write.records, 2)
	assert.Equal(t, "t3.nano", write.records[0].InstanceType)

	assert.False(t, w.Closed())
	assert.Equal(t, 0, driver.closeCalls)
}

func TestWorkerDuplicatesAggregatedNotFatal(t *testing.T) {
	driver := newFakeDriver()
	db := newFakeDB()
	db.existing["2026-08-25-us-east-1-Linux-t3.nano"] = true
	db.existing["2026-08-25-us-east-1-Linux-t3.micro"] = true
	stats := NewRunStats()
	w := newWorker(0, "2026-08-25", driver, db, &fakeCSV{}, stats, zaptest.NewLogger(t))

	ok := w.RunJob(context.Background(), Job{OperatingSystem: "Linux", Region: "us-east-1"})
	require.True(t, ok)

	assert.Equal(t, int64(2), stats.Collected())
	assert.Equal(t, int64(0), stats.Stored())
	assert.Equal(t, int64(2), stats.Duplicates())
	assert.Equal(t, int64(0), stats.Errors())
	assert.Equal(t, int64(1), stats.JobsSucceeded())
}

func TestWorkerUnknownOSLeavesSessionOpen(t *testing.T) {
	driver := newFakeDriver()
	driver.selectOSErr = fmt.Errorf("%w: %q", browser.ErrUnknownOS, "TempleOS")
	stats := NewRunStats()
	w := newWorker(0, "2026-08-25", driver, newFakeDB(), &fakeCSV{}, stats, zaptest.NewLogger(t))

	ok := w.RunJob(context.Background(), Job{OperatingSystem: "TempleOS", Region: "us-east-1"})
	require.False(t, ok)

	assert.False(t, w.Closed())
	assert.Equal(t, 0, driver.closeCalls)
	assert.Equal(t, int64(1), stats.Errors())
	assert.Equal(t, int64(1), stats.JobsFailed())
	assert.Equal(t, int64(0), stats.Collected())
}

func TestWorkerUnknownRegionLeavesSessionOpen(t *testing.T) {
	driver := newFakeDriver()
	driver.selectRegionErr = fmt.Errorf("%w: %q", browser.ErrUnknownRegion, "mars-north-1")
	stats := NewRunStats()
	w := newWorker(0, "2026-08-25", driver, newFakeDB(), &fakeCSV{}, stats, zaptest.NewLogger(t))

	ok := w.RunJob(context.Background(), Job{OperatingSystem: "Linux", Region: "mars-north-1"})
	require.False(t, ok)

	assert.False(t, w.Closed())
	assert.Equal(t, int64(1), stats.JobsFailed())
}

func TestWorkerDriverErrorTearsDownSession(t *testing.T) {
	driver := newFakeDriver()
	driver.selectRegionErr = &browser.DriverError{Op: "select region", Err: errors.New("target crashed")}
	stats := NewRunStats()
	w := newWorker(0, "2026-08-25", driver, newFakeDB(), &fakeCSV{}, stats, zaptest.NewLogger(t))

	ok := w.RunJob(context.Background(), Job{OperatingSystem: "Linux", Region: "us-east-1"})
	require.False(t, ok)

	assert.True(t, w.Closed())
	assert.True(t, driver.closedOnce())
	assert.Equal(t, int64(1), stats.Errors())
	assert.Equal(t, int64(1), stats.JobsFailed())
}

func TestWorkerMidTableDriverErrorSkipsCSV(t *testing.T) {
	driver := newFakeDriver()
	driver.rowsErr = &browser.DriverError{Op: "paginate", Err: errors.New("frame detached")}
	driver.rowsBeforeErr = 1
	csv := &fakeCSV{}
	stats := NewRunStats()
	w := newWorker(0, "2026-08-25", driver, newFakeDB(), csv, stats, zaptest.NewLogger(t))

	ok := w.RunJob(context.Background(), Job{OperatingSystem: "Linux", Region: "us-east-1"})
	require.False(t, ok)

	// One row made it through before the failure; no file is written for
	// the aborted job.
	assert.Equal(t, int64(1), stats.Collected())
	assert.Empty(t, csv.writes)
	assert.True(t, w.Closed())
}

func TestWorkerMalformedRowsSkipped(t *testing.T) {
	driver := newFakeDriver()
	driver.rows = [][]string{
		{"t3.nano", "$0.0052", "2", "0.5 GiB", "EBS Only", "Up to 5 Gigabit"},
		{"not enough cells"},
		{"t3.micro", "contact sales", "2", "1 GiB", "EBS Only", "Up to 5 Gigabit"},
	}
	csv := &fakeCSV{}
	stats := NewRunStats()
	w := newWorker(0, "2026-08-25", driver, newFakeDB(), csv, stats, zaptest.NewLogger(t))

	ok := w.RunJob(context.Background(), Job{OperatingSystem: "Linux", Region: "us-east-1"})
	require.True(t, ok)

	// Malformed rows are dropped without counting as errors.
	assert.Equal(t, int64(1), stats.Collected())
	assert.Equal(t, int64(0), stats.Errors())
	require.Len(t, csv.writes, 1)
	assert.Len(t, csv.writes[0].records, 1)
}

func TestWorkerDBErrorContinuesJob(t *testing.T) {
	driver := newFakeDriver()
	db := newFakeDB()
	db.failType = "t3.nano"
	csv := &fakeCSV{}
	stats := NewRunStats()
	w := newWorker(0, "2026-08-25", driver, db, csv, stats, zaptest.NewLogger(t))

	ok := w.RunJob(context.Background(), Job{OperatingSystem: "Linux", Region: "us-east-1"})
	require.True(t, ok)

	assert.Equal(t, int64(1), stats.Errors())
	assert.Equal(t, int64(1), stats.Stored())
	assert.Equal(t, int64(1), stats.JobsSucceeded())

	// The failed insert does not evict the record from the CSV batch.
	require.Len(t, csv.writes, 1)
	assert.Len(t, csv.writes[0].records, 2)
}

func TestWorkerCSVErrorFailsJob(t *testing.T) {
	driver := newFakeDriver()
	csv := &fakeCSV{err: errors.New("disk full")}
	stats := NewRunStats()
	w := newWorker(0, "2026-08-25", driver, newFakeDB(), csv, stats, zaptest.NewLogger(t))

	ok := w.RunJob(context.Background(), Job{OperatingSystem: "Linux", Region: "us-east-1"})
	require.False(t, ok)

	assert.Equal(t, int64(1), stats.Errors())
	assert.Equal(t, int64(1), stats.JobsFailed())
	assert.False(t, w.Closed())
}

func TestWorkerNilSinksStillWalkTable(t *testing.T) {
	driver := newFakeDriver()
	stats := NewRunStats()
	w := newWorker(0, "2026-08-25", driver, nil, nil, stats, zaptest.NewLogger(t))

	ok := w.RunJob(context.Background(), Job{OperatingSystem: "Linux", Region: "us-east-1"})
	require.True(t, ok)

	assert.Equal(t, int64(2), stats.Collected())
	assert.Equal(t, int64(0), stats.Stored())
}

func TestWorkerRefusesDoubleDispatch(t *testing.T) {
	driver := newFakeDriver()
	stats := NewRunStats()
	w := newWorker(0, "2026-08-25", driver, nil, nil, stats, zaptest.NewLogger(t))

	w.mu.Lock()
	defer w.mu.Unlock()

	ok := w.RunJob(context.Background(), Job{OperatingSystem: "Linux", Region: "us-east-1"})
	require.False(t, ok)
	assert.Equal(t, int64(1), stats.Errors())
	assert.Equal(t, int64(1), stats.JobsFailed())
}

func TestWorkerCloseIdempotent(t *testing.T) {
	driver := newFakeDriver()
	w := newWorker(0, "2026-08-25", driver, nil, nil, NewRunStats(), zaptest.NewLogger(t))

	w.Close()
	w.Close()

	assert.True(t, driver.closedOnce())
	assert.True(t, w.Closed())
}
