package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/T1murKa41/pixilgnang/internal/types"
)

const laneBuffer = 100

// failureNotice is sent to the sender when processing returns an error.
const failureNotice = "Sorry, something went wrong. Please try again later."

// Queue manages per-user lanes with a global concurrency semaphore.
// Each lane is a FIFO channel drained by its own goroutine, so one user's
// events are processed in order while the semaphore bounds how many lanes
// run at once.
type Queue struct {
	lanes     map[types.LaneKey]chan *Run
	semaphore *semaphore.Weighted
	processor func(*Run) error
	// active counts runs enqueued but not yet finished.
	active atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
}

// NewQueue creates a Queue that allows up to maxConcurrent runs to execute
// simultaneously across all lanes.
func NewQueue(maxConcurrent int64) *Queue {
	return &Queue{
		lanes:     make(map[types.LaneKey]chan *Run),
		semaphore: semaphore.NewWeighted(maxConcurrent),
	}
}

// Start initialises the queue's context. Must be called before Enqueue.
func (q *Queue) Start(ctx context.Context) {
	q.ctx, q.cancel = context.WithCancel(ctx)
}

// Stop cancels the queue context, closes all lanes, and waits for in-flight
// processors to finish.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	q.mu.Lock()
	for key, lane := range q.lanes {
		close(lane)
		delete(q.lanes, key)
	}
	q.mu.Unlock()
	q.wg.Wait()
}

// Enqueue adds a Run to its lane, creating the lane (and its goroutine) on
// first use. Returns an error if the lane's buffer is full.
func (q *Queue) Enqueue(run *Run) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ctx == nil || q.ctx.Err() != nil {
		return fmt.Errorf("queue not running")
	}

	lane, exists := q.lanes[run.Lane]
	if !exists {
		lane = make(chan *Run, laneBuffer)
		q.lanes[run.Lane] = lane
		q.wg.Add(1)
		go q.processLane(lane)
	}

	q.active.Add(1)
	select {
	case lane <- run:
		queueDepth.Inc()
		return nil
	default:
		q.active.Add(-1)
		return fmt.Errorf("queue full for lane %s", run.Lane)
	}
}

// processLane drains a single lane, acquiring a semaphore slot before
// running the processor synchronously.
func (q *Queue) processLane(lane chan *Run) {
	defer q.wg.Done()
	for {
		select {
		case run, ok := <-lane:
			if !ok {
				return
			}
			queueDepth.Dec()
			if err := q.semaphore.Acquire(q.ctx, 1); err != nil {
				q.active.Add(-1)
				return
			}
			q.execute(run)
			q.semaphore.Release(1)
			q.active.Add(-1)
		case <-q.ctx.Done():
			return
		}
	}
}

func (q *Queue) execute(run *Run) {
	if q.processor == nil {
		return
	}

	started := time.Now()
	run.StartedAt = &started
	run.Status = RunStatusRunning
	run.Ctx = q.ctx

	err := q.processor(run)

	ended := time.Now()
	run.EndedAt = &ended
	runDuration.Observe(ended.Sub(started).Seconds())
	if err != nil {
		run.Status = RunStatusFailed
		run.Error = err
		runsProcessed.WithLabelValues(string(RunStatusFailed)).Inc()
		slog.Error("run failed", "run_id", string(run.ID), "lane", string(run.Lane), "error", err)
		run.complete(failureNotice)
		return
	}
	run.Status = RunStatusComplete
	runsProcessed.WithLabelValues(string(RunStatusComplete)).Inc()
}

// WaitIdle blocks until no runs are queued or being processed, or the
// timeout expires. Returns true if idle, false if timed out.
func (q *Queue) WaitIdle(timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if q.active.Load() == 0 {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// SetProcessor sets the function invoked for each dequeued Run.
func (q *Queue) SetProcessor(fn func(*Run) error) {
	q.processor = fn
}
