package async

import (
	"context"
	"sync"
	"time"

	"log/slog"
)

// Handler processes one job. Errors are logged by the queue; handlers that need
// to report results do so through their own channels.
type Handler[J any] func(ctx context.Context, job J) error

// Queue is a bounded pool of workers draining a buffered channel of jobs.
type Queue[J any] struct {
	handle  Handler[J]
	base    context.Context
	logger  *slog.Logger
	workers int
	timeout time.Duration
	size    int

	ch   chan J
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

type config struct {
	workers int
	size    int
	timeout time.Duration
}

type Option func(*config)

func WithWorkers(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.size = n
		}
	}
}

// WithProcessTimeout bounds every job; zero leaves jobs bounded only by the base context.
func WithProcessTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewQueue starts the workers. Jobs run under base, so cancelling base reaches
// every in-flight handler.
func NewQueue[J any](base context.Context, handle Handler[J], logger *slog.Logger, opts ...Option) *Queue[J] {
	if logger == nil {
		logger = slog.Default()
	}
	c := config{workers: 4, size: 256}
	for _, o := range opts {
		o(&c)
	}
	q := &Queue[J]{
		handle:  handle,
		base:    base,
		logger:  logger,
		workers: c.workers,
		timeout: c.timeout,
		size:    c.size,
		ch:      make(chan J, c.size),
	}
	q.start()
	return q
}

func (q *Queue[J]) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Debug("worker started", "worker_id", workerID)

				for job := range q.ch {
					ctx, cancel := q.jobContext()
					err := q.handle(ctx, job)
					cancel()

					if err != nil {
						q.logger.Debug("job failed", "worker_id", workerID, "error", err)
					}
				}

				q.logger.Debug("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *Queue[J]) jobContext() (context.Context, context.CancelFunc) {
	if q.timeout > 0 {
		return context.WithTimeout(q.base, q.timeout)
	}
	return context.WithCancel(q.base)
}

// Enqueue blocks while the buffer is full. It returns ctx.Err() if ctx ends first
// and ErrClosed after Shutdown.
func (q *Queue[J]) Enqueue(ctx context.Context, job J) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down")
		return ErrClosed
	}
	select {
	case q.ch <- job:
		return nil
	default:
	}
	q.logger.Debug("queue full, applying backpressure", "size", q.size)
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops intake and waits for queued jobs to drain or ctx to end.
func (q *Queue[J]) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Debug("queue drained, shutdown complete")
	}
}
