package harvest

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunStatsConcurrentTally(t *testing.T) {
	stats := NewRunStats()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				stats.RecordCollected()
				stats.RecordStored()
			}
			stats.RecordDuplicate()
			stats.RecordError()
			stats.JobSucceeded()
			stats.JobFailed()
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(800), stats.Collected())
	assert.Equal(t, int64(800), stats.Stored())
	assert.Equal(t, int64(8), stats.Duplicates())
	assert.Equal(t, int64(8), stats.Errors())
	assert.Equal(t, int64(8), stats.JobsSucceeded())
	assert.Equal(t, int64(8), stats.JobsFailed())
}

func TestRunStatsStartZeroed(t *testing.T) {
	stats := NewRunStats()
	assert.Zero(t, stats.Collected())
	assert.Zero(t, stats.Stored())
	assert.Zero(t, stats.Duplicates())
	assert.Zero(t, stats.Errors())
	assert.Zero(t, stats.JobsSucceeded())
	assert.Zero(t, stats.JobsFailed())
}
