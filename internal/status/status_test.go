package status

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStartsIdle(t *testing.T) {
	s := NewMemory()
	got, err := s.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateIdle, got)
}

func TestMemoryReadAfterWrite(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	require.NoError(t, s.Write(ctx, StateRunning))
	got, err := s.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateRunning, got)
}

func TestMemoryConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	states := []State{StateStarting, StateCollecting, StateRunning, StateCleaningUp, StateIdle}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.Write(ctx, states[i%len(states)])
			_, _ = s.Read(ctx)
		}(i)
	}
	wg.Wait()

	got, err := s.Read(ctx)
	require.NoError(t, err)
	assert.Contains(t, states, got)
}
