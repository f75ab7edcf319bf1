package background

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"aiclock/logging"
	"aiclock/palette"
	"aiclock/shutdown"
)

// Controller decides when a new background is generated and owns the state
// the renderer reads every frame. All methods are safe for concurrent use;
// none of them block on the backend.
type Controller struct {
	cfg       Config
	backend   Backend
	prompts   PromptSource
	logger    *logging.Logger
	surface   Surface
	observers []Observer
	now       func() time.Time
	newID     func() string

	tracker *shutdown.OperationTracker
	ctx     context.Context
	cancel  context.CancelFunc

	mu                  sync.Mutex
	isUpdating          bool
	worker              *workerHandle
	lastAttemptTime     time.Time
	workerStartTime     time.Time
	generationCount     int
	consecutiveFailures int
	currentColor        palette.Color
	previousColor       *palette.Color
	transitionStart     time.Time
	epoch               uint64
	reloading           bool
	stats               Stats
}

// workerHandle identifies one dispatched worker. done is closed when the
// worker goroutine exits.
type workerHandle struct {
	epoch         uint64
	correlationID string
	done          chan struct{}
}

func (h *workerHandle) alive() bool {
	if h == nil {
		return false
	}
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// WithSurface sets the consumer of finished backgrounds.
func WithSurface(s Surface) Option {
	return func(c *Controller) {
		c.surface = s
	}
}

// WithObserver adds an attempt observer. May be repeated.
func WithObserver(o Observer) Option {
	return func(c *Controller) {
		c.observers = append(c.observers, o)
	}
}

// WithTracker tracks workers on an existing tracker instead of a private one.
func WithTracker(t *shutdown.OperationTracker) Option {
	return func(c *Controller) {
		c.tracker = t
	}
}

// NewController creates an idle controller. The first RequestUpdate
// dispatches immediately.
func NewController(cfg Config, backend Backend, prompts PromptSource, logger *logging.Logger, opts ...Option) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		cfg:          cfg,
		backend:      backend,
		prompts:      prompts,
		logger:       logger.Named("background"),
		now:          time.Now,
		newID:        uuid.NewString,
		tracker:      shutdown.NewOperationTracker(),
		ctx:          ctx,
		cancel:       cancel,
		currentColor: palette.White(cfg.OverlayAlpha),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ShouldUpdate reports whether the effective interval has passed since the
// last dispatched attempt. It has no side effects.
func (c *Controller) ShouldUpdate() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now().Sub(c.lastAttemptTime) >= c.cfg.effectiveInterval(c.consecutiveFailures)
}

// RequestUpdate is called once per frame with the current control image.
// It runs the watchdog, then dispatches a worker unless one is running, the
// backend is reloading, or the effective interval has not passed. It
// reports whether a worker was dispatched.
func (c *Controller) RequestUpdate(control image.Image) bool {
	c.mu.Lock()
	now := c.now()
	_, abandoned := c.checkAndRecoverStuckWorker(now)

	var h *workerHandle
	if c.canDispatchLocked(now) && c.tracker.Start() {
		c.epoch++
		h = &workerHandle{epoch: c.epoch, correlationID: c.newID(), done: make(chan struct{})}
		c.worker = h
		c.isUpdating = true
		c.lastAttemptTime = now
		c.workerStartTime = now
		c.stats.Dispatched++
	}
	c.mu.Unlock()

	if abandoned != nil {
		c.emergencyEmptyCache()
		c.notify(*abandoned)
	}
	if h == nil {
		return false
	}

	c.logger.Debug("dispatching background worker",
		zap.Uint64("epoch", h.epoch), zap.String("correlation_id", h.correlationID))
	go c.runWorker(h, now, control)
	return true
}

func (c *Controller) canDispatchLocked(now time.Time) bool {
	if c.isUpdating || c.reloading || c.backend.IsLoading() {
		return false
	}
	return now.Sub(c.lastAttemptTime) >= c.cfg.effectiveInterval(c.consecutiveFailures)
}

// ReloadBackend swaps the backend model without blocking. No worker is
// dispatched from the moment ReloadBackend is called until one of the
// callbacks fires (and, for a failed reload, for as long as the backend
// keeps reporting IsLoading).
func (c *Controller) ReloadBackend(onComplete func(), onError func(error)) error {
	c.mu.Lock()
	switch {
	case c.tracker.IsClosed():
		c.mu.Unlock()
		return ErrClosed
	case c.reloading:
		c.mu.Unlock()
		return ErrReloadInProgress
	}
	c.reloading = true
	c.mu.Unlock()

	c.logger.Info("reloading generation backend")
	c.backend.Reload(
		func() {
			c.finishReload()
			c.logger.Info("generation backend reloaded")
			if onComplete != nil {
				onComplete()
			}
		},
		func(err error) {
			c.finishReload()
			c.logger.Error("generation backend reload failed", zap.Error(err))
			if onError != nil {
				onError(err)
			}
		},
	)
	return nil
}

func (c *Controller) finishReload() {
	c.mu.Lock()
	c.reloading = false
	c.mu.Unlock()
}

// Wait blocks until every dispatched worker, abandoned ones included, has
// returned or timeout passes.
func (c *Controller) Wait(timeout time.Duration) error {
	return c.tracker.Wait(timeout)
}

// Close stops dispatching, cancels running workers and waits up to timeout
// for them to return.
func (c *Controller) Close(timeout time.Duration) error {
	c.tracker.Close()
	c.cancel()
	return c.tracker.Wait(timeout)
}

func (c *Controller) notify(a Attempt) {
	for _, o := range c.observers {
		o.OnAttempt(a)
	}
}
