// Package shutdown coordinates graceful shutdown: signal handling, ordered
// cleanup handlers and tracking of in-flight background workers.
package shutdown

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrTrackerClosed is returned when trying to start an operation on a closed tracker.
var ErrTrackerClosed = errors.New("operation tracker is closed")

// ErrWaitTimeout is returned when Wait times out before all operations complete.
var ErrWaitTimeout = errors.New("wait timeout: operations did not complete in time")

// OperationTracker counts in-flight operations and lets shutdown wait for
// them. The background controller starts one operation per dispatched
// worker, including workers the watchdog has abandoned.
//
//	if !tracker.Start() {
//	    return // shutting down
//	}
//	defer tracker.Done()
type OperationTracker struct {
	wg     sync.WaitGroup
	mu     sync.RWMutex
	active atomic.Int64
	total  atomic.Int64
	closed bool
}

// NewOperationTracker creates a new OperationTracker ready to track operations.
func NewOperationTracker() *OperationTracker {
	return &OperationTracker{}
}

// Start registers one operation. It returns false once the tracker is
// closed; otherwise the caller must call Done exactly once.
func (t *OperationTracker) Start() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.wg.Add(1)
	t.active.Add(1)
	t.total.Add(1)
	return true
}

// Done marks an operation as complete.
func (t *OperationTracker) Done() {
	t.active.Add(-1)
	t.wg.Done()
}

// Wait blocks until all tracked operations complete or the timeout is reached.
func (t *OperationTracker) Wait(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := t.WaitContext(ctx); err != nil {
		return ErrWaitTimeout
	}
	return nil
}

// WaitContext blocks until all tracked operations complete or ctx is done.
func (t *OperationTracker) WaitContext(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close rejects new operations. Running ones continue until Done.
func (t *OperationTracker) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

// ActiveCount returns the current number of active operations.
func (t *OperationTracker) ActiveCount() int64 {
	return t.active.Load()
}

// TotalCount returns how many operations were ever started.
func (t *OperationTracker) TotalCount() int64 {
	return t.total.Load()
}

// IsClosed returns true if the tracker has been closed.
func (t *OperationTracker) IsClosed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closed
}
