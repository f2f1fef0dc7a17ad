package server

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/thruflo/reachy-remix/internal/logging"
)

const defaultQueueSize = 32

var (
	// ErrQueueFull is returned when too many jobs are waiting.
	ErrQueueFull = errors.New("job queue full")
	// ErrQueueClosed is returned when submitting after Close.
	ErrQueueClosed = errors.New("job queue closed")
)

type job struct {
	id  string
	run func(ctx context.Context) error
}

// jobQueue runs jobs one at a time in FIFO order on a single worker.
type jobQueue struct {
	logger *logging.Logger
	jobs   chan job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func newJobQueue(logger *logging.Logger, size int) *jobQueue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &jobQueue{
		logger: logger,
		jobs:   make(chan job, size),
		ctx:    ctx,
		cancel: cancel,
	}
	q.wg.Add(1)
	go q.worker()
	return q
}

func (q *jobQueue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case j := <-q.jobs:
			if err := j.run(q.ctx); err != nil && !errors.Is(err, context.Canceled) {
				q.logger.Warn("Job failed", "job_id", j.id, "error", err)
			}
		}
	}
}

// submit enqueues run and returns its job ID.
func (q *jobQueue) submit(run func(ctx context.Context) error) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return "", ErrQueueClosed
	}

	j := job{id: uuid.NewString(), run: run}
	select {
	case q.jobs <- j:
		return j.id, nil
	default:
		return "", ErrQueueFull
	}
}

// pending returns the number of jobs waiting to start.
func (q *jobQueue) pending() int {
	return len(q.jobs)
}

// close cancels the running job, drops waiting jobs and waits for the
// worker to exit.
func (q *jobQueue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
}
