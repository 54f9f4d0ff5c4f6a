package lifecycle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segarro/cachegate/pkg/log"
)

var (
	// ErrShutdownTimeout is returned when tasks do not finish in time.
	ErrShutdownTimeout = errors.New("shutdown timeout")

	// ErrTrackerClosed is reported for tasks handed to a closed tracker.
	ErrTrackerClosed = errors.New("tracker closed")
)

// ShutdownTimeout is the default maximum time to wait for detached tasks.
const ShutdownTimeout = 30 * time.Second

// TaskFunc is a unit of detached work.
type TaskFunc func(ctx context.Context) error

// TaskObserver is notified when a detached task finishes.
type TaskObserver func(name string, err error, elapsed time.Duration)

// Tracker runs detached tasks and lets callers wait for them.
type Tracker struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger log.Logger

	mu        sync.Mutex
	observer  TaskObserver
	closed    bool
	completed int
	failed    int
	dropped   int
}

// NewTracker creates a tracker whose tasks run on a context derived from ctx.
// Cancelling ctx or calling Cancel cancels every running task.
func NewTracker(ctx context.Context, logger log.Logger) *Tracker {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	runCtx, cancel := context.WithCancel(ctx)
	return &Tracker{ctx: runCtx, cancel: cancel, logger: logger}
}

// SetObserver installs the completion callback.
func (t *Tracker) SetObserver(o TaskObserver) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observer = o
}

// Go starts fn in the background. The caller does not wait for it and its
// error is only reported to the observer and the debug log. After Close the
// task is not run and the observer sees ErrTrackerClosed.
func (t *Tracker) Go(name string, fn TaskFunc) {
	t.mu.Lock()
	if t.closed {
		t.dropped++
		observer := t.observer
		t.mu.Unlock()
		t.logger.Debug("detached task dropped after close", log.String("task", name))
		if observer != nil {
			observer(name, ErrTrackerClosed, 0)
		}
		return
	}
	t.wg.Add(1)
	t.mu.Unlock()

	go func() {
		defer t.wg.Done()
		start := time.Now()
		err := fn(t.ctx)
		elapsed := time.Since(start)

		t.mu.Lock()
		if err != nil {
			t.failed++
		} else {
			t.completed++
		}
		observer := t.observer
		t.mu.Unlock()

		if err != nil {
			t.logger.Debug("detached task failed",
				log.String("task", name),
				log.Duration("elapsed", elapsed),
				log.Err(err),
			)
		}
		if observer != nil {
			observer(name, err, elapsed)
		}
	}()
}

// Close stops the tracker from accepting tasks. Tasks already started keep
// running; call Wait or WaitWithTimeout afterwards to drain them.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
}

// Wait blocks until every started task has finished.
func (t *Tracker) Wait() {
	t.wg.Wait()
}

// WaitWithTimeout waits for all tasks to finish with a timeout.
// Returns ErrShutdownTimeout if the timeout expires.
func (t *Tracker) WaitWithTimeout(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		t.logger.Warn("detached tasks still running at shutdown",
			log.Duration("timeout", timeout),
		)
		return ErrShutdownTimeout
	}
}

// Cancel cancels the context of running tasks.
func (t *Tracker) Cancel() {
	t.cancel()
}

// Stats returns the number of tasks that completed and failed.
func (t *Tracker) Stats() (completed, failed int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completed, t.failed
}

// Dropped returns the number of tasks refused after Close.
func (t *Tracker) Dropped() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropped
}
