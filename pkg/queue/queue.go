// Package queue serializes persistence writes per project. All saves
// for one project flow through a single worker goroutine, so log
// appends and index updates for that project never interleave, while
// different projects proceed in parallel.
package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"colloquy/pkg/logger"
)

const defaultCapacity = 1024

var (
	ErrQueueFull   = errors.New("queue: full")
	ErrQueueClosed = errors.New("queue: closed")
)

// Counters for instrumentation.
var (
	enqueueTotal     uint64
	enqueueFailTotal uint64
)

// job is one unit of serialized work.
type job struct {
	run  func() error
	done chan error
}

// worker owns the ordered channel for one project.
type worker struct {
	ch chan job
}

// Queue fans writes out to per-project workers.
type Queue struct {
	mu       sync.Mutex
	workers  map[string]*worker
	capacity int
	closed   int32
	wg       sync.WaitGroup
	enqWg    sync.WaitGroup

	inFlight int64
}

// NewQueue creates a queue whose per-project channels hold capacity
// pending jobs (>0).
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Queue{workers: map[string]*worker{}, capacity: capacity}
}

func (q *Queue) workerFor(project string) *worker {
	q.mu.Lock()
	defer q.mu.Unlock()
	if w, ok := q.workers[project]; ok {
		return w
	}
	w := &worker{ch: make(chan job, q.capacity)}
	q.workers[project] = w
	q.wg.Add(1)
	go q.run(project, w)
	return w
}

func (q *Queue) run(project string, w *worker) {
	defer q.wg.Done()
	for j := range w.ch {
		err := j.run()
		atomic.AddInt64(&q.inFlight, -1)
		if err != nil {
			logger.Error("queue_job_failed", "project", project, "error", err)
		}
		if j.done != nil {
			j.done <- err
		}
	}
}

// Do enqueues run on the project's worker and waits for its result.
// Jobs for one project execute in submission order.
func (q *Queue) Do(ctx context.Context, project string, run func() error) error {
	atomic.AddUint64(&enqueueTotal, 1)
	if atomic.LoadInt32(&q.closed) == 1 {
		atomic.AddUint64(&enqueueFailTotal, 1)
		return ErrQueueClosed
	}

	q.enqWg.Add(1)
	defer q.enqWg.Done()
	if atomic.LoadInt32(&q.closed) == 1 {
		atomic.AddUint64(&enqueueFailTotal, 1)
		return ErrQueueClosed
	}

	j := job{run: run, done: make(chan error, 1)}
	select {
	case q.workerFor(project).ch <- j:
		atomic.AddInt64(&q.inFlight, 1)
	case <-ctx.Done():
		atomic.AddUint64(&enqueueFailTotal, 1)
		return ctx.Err()
	}

	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		// The job still runs; only the wait is abandoned.
		return ctx.Err()
	}
}

// TryEnqueue submits run without blocking and without waiting for the
// result; failures are logged by the worker.
func (q *Queue) TryEnqueue(project string, run func() error) error {
	atomic.AddUint64(&enqueueTotal, 1)
	if atomic.LoadInt32(&q.closed) == 1 {
		atomic.AddUint64(&enqueueFailTotal, 1)
		return ErrQueueClosed
	}

	q.enqWg.Add(1)
	defer q.enqWg.Done()
	if atomic.LoadInt32(&q.closed) == 1 {
		atomic.AddUint64(&enqueueFailTotal, 1)
		return ErrQueueClosed
	}

	select {
	case q.workerFor(project).ch <- job{run: run}:
		atomic.AddInt64(&q.inFlight, 1)
		return nil
	default:
		atomic.AddUint64(&enqueueFailTotal, 1)
		return ErrQueueFull
	}
}

// InFlight reports jobs submitted but not yet finished.
func (q *Queue) InFlight() int64 { return atomic.LoadInt64(&q.inFlight) }

// Close stops accepting jobs and waits for pending ones to drain.
func (q *Queue) Close() {
	if !atomic.CompareAndSwapInt32(&q.closed, 0, 1) {
		return
	}
	q.enqWg.Wait()
	q.mu.Lock()
	for _, w := range q.workers {
		close(w.ch)
	}
	q.mu.Unlock()
	q.wg.Wait()
}

// Stats is a point-in-time snapshot of the counters.
func Stats() (total, failed uint64) {
	return atomic.LoadUint64(&enqueueTotal), atomic.LoadUint64(&enqueueFailTotal)
}
