package history

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"aiclock/logging"
)

// DefaultChannelCapacity is the default buffer size for pending writes.
const DefaultChannelCapacity = 100

// WriteHandler persists one record.
type WriteHandler func(ctx context.Context, rec Record) error

// AsyncWriter queues records on a buffered channel and persists them from
// one background goroutine. Write never blocks.
type AsyncWriter struct {
	records chan Record
	handler WriteHandler
	logger  *logging.Logger

	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	started bool
	stopped bool

	dropped atomic.Int64
	failed  atomic.Int64
}

// NewAsyncWriter returns a stopped writer. capacity <= 0 uses
// DefaultChannelCapacity.
func NewAsyncWriter(handler WriteHandler, capacity int, logger *logging.Logger) *AsyncWriter {
	if capacity <= 0 {
		capacity = DefaultChannelCapacity
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &AsyncWriter{
		records: make(chan Record, capacity),
		handler: handler,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the background goroutine. Calling it twice is a no-op.
func (w *AsyncWriter) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.stopped {
		return
	}
	w.started = true
	w.wg.Add(1)
	go w.process()
}

func (w *AsyncWriter) process() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			w.drain()
			return
		case rec := <-w.records:
			w.handle(rec)
		}
	}
}

// drain flushes what is already buffered.
func (w *AsyncWriter) drain() {
	for {
		select {
		case rec := <-w.records:
			w.handle(rec)
		default:
			return
		}
	}
}

func (w *AsyncWriter) handle(rec Record) {
	// Writes still in the buffer at shutdown must land, so they do not
	// inherit the cancelled writer context.
	if err := w.handler(context.Background(), rec); err != nil {
		w.failed.Add(1)
		w.logger.Warn("failed to persist generation record",
			zap.String("correlation_id", rec.CorrelationID),
			zap.String("outcome", rec.Outcome),
			zap.Error(err))
	}
}

// Write queues rec. It returns false when the buffer is full or the writer
// has been stopped.
func (w *AsyncWriter) Write(rec Record) bool {
	w.mu.Lock()
	stopped := w.stopped
	w.mu.Unlock()
	if stopped {
		w.dropped.Add(1)
		return false
	}

	select {
	case w.records <- rec:
		return true
	default:
		w.dropped.Add(1)
		return false
	}
}

// Pending returns the number of buffered records.
func (w *AsyncWriter) Pending() int {
	return len(w.records)
}

// Dropped returns how many records were rejected by Write.
func (w *AsyncWriter) Dropped() int64 {
	return w.dropped.Load()
}

// Failed returns how many records the handler could not persist.
func (w *AsyncWriter) Failed() int64 {
	return w.failed.Load()
}

// Stop drains the buffer and waits for the goroutine, at most timeout.
// It reports whether the drain finished in time.
func (w *AsyncWriter) Stop(timeout time.Duration) bool {
	w.mu.Lock()
	w.stopped = true
	started := w.started
	w.mu.Unlock()

	w.cancel()
	if !started {
		return true
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// IsStarted reports whether the background goroutine was launched.
func (w *AsyncWriter) IsStarted() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.started
}
