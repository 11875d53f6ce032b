// Package status holds the process-wide run lifecycle state behind a
// narrow read/write contract so that an in-process value and a shared
// database row are interchangeable.
package status

import (
	"context"
	"errors"
	"sync"
)

// State is the coarse lifecycle of the harvest engine.
type State string

const (
	StateExited     State = "exited"
	StateIdle       State = "idle"
	StateStarting   State = "starting"
	StateCollecting State = "collecting available regions and operating systems"
	StateRunning    State = "running"
	StateCleaningUp State = "cleaning up"
)

// ErrNotIdle is returned when a run is refused because another run holds
// the lifecycle.
var ErrNotIdle = errors.New("status: engine is not idle")

// Store is the two-operation lifecycle contract. Reads and writes are each
// atomic; callers compose them (read, refuse, write) the same way against
// every implementation.
type Store interface {
	Read(ctx context.Context) (State, error)
	Write(ctx context.Context, s State) error
}

// Memory is a mutex-guarded in-process Store. It backs tests and CLI runs
// that have no database configured.
type Memory struct {
	mu sync.Mutex
	s  State
}

// NewMemory returns a Memory store starting at idle.
func NewMemory() *Memory {
	return &Memory{s: StateIdle}
}

func (m *Memory) Read(ctx context.Context) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s, nil
}

func (m *Memory) Write(ctx context.Context, s State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = s
	return nil
}
