package harvest

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/Zeebrow/ec2-price-tracker/internal/metrics"
)

// ErrNoWorkers reports that not a single browser session could be
// initialized, which makes a run impossible.
var ErrNoWorkers = errors.New("harvest: no workers could be initialized")

// WorkerFactory builds one worker with its own browser session.
type WorkerFactory func(ctx context.Context, id int) (*Worker, error)

// Pool owns a fixed set of workers and drains a job list through them.
// Idle workers sit in a buffered channel; possession of a worker taken
// from the channel is exclusive, so each worker runs at most one job at a
// time.
type Pool struct {
	available chan *Worker
	logger    *zap.Logger

	mu   sync.Mutex
	live int

	// depleted closes when every worker has lost its browser session.
	depleted  chan struct{}
	closeOnce sync.Once
}

// NewPool initializes size workers in parallel. Workers whose browser
// session fails to come up are logged and dropped; the pool proceeds with
// however many made it, and errors only when none did.
func NewPool(ctx context.Context, size int, factory WorkerFactory, logger *zap.Logger) (*Pool, error) {
	results := make(chan *Worker, size)
	var wg sync.WaitGroup
	for i := 0; i < size; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w, err := factory(ctx, id)
			if err != nil {
				logger.Error("worker initialization failed",
					zap.Int("worker_id", id), zap.Error(err))
				return
			}
			results <- w
		}(i)
	}
	wg.Wait()
	close(results)

	p := &Pool{
		available: make(chan *Worker, size),
		logger:    logger,
		depleted:  make(chan struct{}),
	}
	for w := range results {
		p.available <- w
		p.live++
	}
	if p.live == 0 {
		return nil, ErrNoWorkers
	}
	if p.live < size {
		logger.Warn("continuing with fewer workers than requested",
			zap.Int("requested", size), zap.Int("ready", p.live))
	}
	metrics.SetWorkersReady(p.live)
	return p, nil
}

// Size reports how many workers hold a live browser session.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.live
}

// Run drains the job list, dispatching from the end so the most recently
// built combination is harvested first. Failed jobs are not retried. Run
// returns once every dispatched job has returned; jobs left undispatched
// because the context was cancelled or every worker died are dropped.
func (p *Pool) Run(ctx context.Context, jobs []Job) {
	var wg sync.WaitGroup
	for i := len(jobs) - 1; i >= 0; i-- {
		w, ok := p.acquire(ctx)
		if !ok {
			p.logger.Warn("stopping dispatch early", zap.Int("jobs_remaining", i+1))
			break
		}
		job := jobs[i]
		wg.Add(1)
		go func(w *Worker, job Job) {
			defer wg.Done()
			w.RunJob(ctx, job)
			p.release(w)
		}(w, job)
	}
	wg.Wait()
}

func (p *Pool) acquire(ctx context.Context) (*Worker, bool) {
	if ctx.Err() != nil {
		return nil, false
	}
	select {
	case w := <-p.available:
		return w, true
	case <-p.depleted:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}

// release returns a worker to the idle set, or retires it when its browser
// session died during the job.
func (p *Pool) release(w *Worker) {
	if !w.Closed() {
		p.available <- w
		return
	}

	p.mu.Lock()
	p.live--
	live := p.live
	if live == 0 {
		close(p.depleted)
	}
	p.mu.Unlock()

	metrics.SetWorkersReady(live)
	p.logger.Warn("worker retired after losing its browser session",
		zap.Int("worker_id", w.id), zap.Int("live", live))
}

// Close tears down every idle worker. Safe to call more than once; callers
// must not call it while Run is still dispatching.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.logger.Info("tearing down worker pool")
		for {
			select {
			case w := <-p.available:
				w.Close()
			default:
				metrics.SetWorkersReady(0)
				return
			}
		}
	})
}
