package async

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestQueue_DrainsAllJobs(t *testing.T) {
	var (
		mu   sync.Mutex
		seen = map[int]bool{}
	)
	q := NewQueue(context.Background(), func(_ context.Context, n int) error {
		mu.Lock()
		seen[n] = true
		mu.Unlock()
		return nil
	}, nil, WithWorkers(3), WithQueueSize(2))

	for i := 0; i < 20; i++ {
		if err := q.Enqueue(context.Background(), i); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	q.Shutdown(context.Background())

	if len(seen) != 20 {
		t.Fatalf("expected 20 jobs processed, got %d", len(seen))
	}
	if err := q.Enqueue(context.Background(), 99); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after shutdown, got %v", err)
	}
}

func TestQueue_BoundedWorkers(t *testing.T) {
	var inFlight, peak int32
	q := NewQueue(context.Background(), func(_ context.Context, _ int) error {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return nil
	}, nil, WithWorkers(2))

	for i := 0; i < 10; i++ {
		_ = q.Enqueue(context.Background(), i)
	}
	q.Shutdown(context.Background())

	if peak > 2 {
		t.Fatalf("expected at most 2 concurrent jobs, got %d", peak)
	}
}

func TestQueue_BaseCancellationReachesHandlers(t *testing.T) {
	base, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	var cancelled atomic.Bool
	q := NewQueue(base, func(ctx context.Context, _ int) error {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	}, nil, WithWorkers(1))

	_ = q.Enqueue(context.Background(), 1)
	<-started
	cancel()
	q.Shutdown(context.Background())

	if !cancelled.Load() {
		t.Fatal("expected handler to observe cancellation")
	}
}
