package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"aiclock/core"
	"aiclock/logging"
)

// Manager ties signal handling, the worker tracker and the cleanup registry
// together.
//
//	manager := shutdown.NewManager(logger)
//	controller := background.NewController(cfg, pipeline, prompts, logger,
//		background.WithTracker(manager.Tracker()))
//	manager.Register("pipeline", shutdown.PriorityPipeline, pipeline.Close)
//	manager.Start()
//	<-manager.Context().Done()
//	err := manager.Shutdown()
type Manager struct {
	logger       *logging.Logger
	timeout      time.Duration
	drainTimeout time.Duration
	exit         func(code int)

	mu       sync.Mutex
	started  bool
	shutdown bool

	ctx    context.Context
	cancel context.CancelFunc

	tracker  *OperationTracker
	registry *ShutdownRegistry
	signals  *SignalCounter

	sigChan chan os.Signal
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithTimeout sets the total shutdown budget. Default 60s.
func WithTimeout(timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		m.timeout = timeout
	}
}

// WithDrainTimeout caps how long Shutdown waits for in-flight workers
// before running handlers. A worker stuck in native code may never finish,
// so this is kept well below the total budget. Default 10s.
func WithDrainTimeout(timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		m.drainTimeout = timeout
	}
}

// WithExitFunc replaces os.Exit for the forced exit on a second signal.
func WithExitFunc(exit func(code int)) ManagerOption {
	return func(m *Manager) {
		m.exit = exit
	}
}

// NewManager creates a Manager. A nil logger discards output.
func NewManager(logger *logging.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		logger:       logger.Named("shutdown"),
		timeout:      60 * time.Second,
		drainTimeout: 10 * time.Second,
		exit:         os.Exit,
		ctx:          ctx,
		cancel:       cancel,
		tracker:      NewOperationTracker(),
		registry:     NewShutdownRegistry(),
		sigChan:      make(chan os.Signal, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.drainTimeout > m.timeout {
		m.drainTimeout = m.timeout
	}

	m.signals = NewSignalCounter(2, func(sig os.Signal) {
		m.logger.Warn("Received second signal, forcing immediate shutdown",
			zap.String("signal", sig.String()),
			zap.Int64("active_workers", m.tracker.ActiveCount()),
		)
		_ = m.logger.Sync()
		m.exit(core.ExitCodeError)
	})
	return m
}

// Context is cancelled when shutdown is requested.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Tracker is shared with the background controller so Shutdown can wait
// for its workers.
func (m *Manager) Tracker() *OperationTracker {
	return m.tracker
}

// Register adds a cleanup handler. Lower priority runs first; see the
// Priority constants.
func (m *Manager) Register(name string, priority int, fn core.ShutdownFunc) {
	m.registry.Register(name, priority, fn)
	m.logger.Debug("Registered shutdown handler",
		zap.String("name", name),
		zap.Int("priority", priority),
	)
}

// Start listens for SIGINT and SIGTERM. The first signal cancels Context,
// the second exits immediately. Calling Start twice is a no-op.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return
	}
	m.started = true

	signal.Notify(m.sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		for sig := range m.sigChan {
			m.handleSignal(sig)
		}
	}()

	m.logger.Info("Shutdown manager started, listening for signals")
}

func (m *Manager) handleSignal(sig os.Signal) {
	if m.signals.Observe(sig) == 1 {
		m.logger.Info("Received shutdown signal, initiating graceful shutdown",
			zap.String("signal", sig.String()),
		)
		m.cancel()
	}
}

// Trigger requests shutdown without a signal, e.g. from a service stop.
func (m *Manager) Trigger(reason string) {
	m.logger.Info("Shutdown requested", zap.String("reason", reason))
	m.cancel()
}

// ExitCode is the process exit code matching how shutdown was requested.
func (m *Manager) ExitCode() int {
	return m.signals.ExitCode()
}

// Shutdown closes the tracker, waits up to the drain timeout for running
// workers, then runs the handlers with the remaining budget. It is
// idempotent.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return nil
	}
	m.shutdown = true
	started := m.started
	m.mu.Unlock()

	m.cancel()
	startTime := time.Now()
	m.logger.Info("Initiating graceful shutdown",
		zap.Duration("timeout", m.timeout),
		zap.Int("registered_handlers", m.registry.Count()),
	)

	m.tracker.Close()
	if active := m.tracker.ActiveCount(); active > 0 {
		m.logger.Info("Waiting for background workers",
			zap.Int64("active_count", active),
			zap.Duration("drain_timeout", m.drainTimeout),
		)
	}
	if err := m.tracker.Wait(m.drainTimeout); err != nil {
		m.logger.Warn("Background workers still running, continuing shutdown",
			zap.Duration("waited", time.Since(startTime)),
			zap.Int64("remaining", m.tracker.ActiveCount()),
		)
	}

	remaining := m.timeout - time.Since(startTime)
	if remaining < time.Second {
		remaining = time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), remaining)
	defer cancel()

	m.logger.Info("Executing cleanup functions",
		zap.Strings("handlers", m.registry.Names()),
	)

	var failed int
	for _, res := range m.registry.Shutdown(ctx) {
		if res.Err != nil {
			failed++
			m.logger.Error("Cleanup function failed",
				zap.String("name", res.Name),
				zap.Duration("duration", res.Duration),
				zap.Error(res.Err),
			)
			continue
		}
		m.logger.Debug("Cleanup function completed",
			zap.String("name", res.Name),
			zap.Duration("duration", res.Duration),
		)
	}

	if started {
		signal.Stop(m.sigChan)
		close(m.sigChan)
	}

	duration := time.Since(startTime)
	if failed > 0 {
		m.logger.Error("Shutdown completed with errors",
			zap.Duration("duration", duration),
			zap.Int("error_count", failed),
		)
		return fmt.Errorf("shutdown had %d errors", failed)
	}
	m.logger.Info("Graceful shutdown completed", zap.Duration("duration", duration))
	return nil
}

// IsShuttingDown returns true if shutdown has been initiated.
func (m *Manager) IsShuttingDown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shutdown || m.ctx.Err() != nil
}

// RegisteredHandlers returns handler names in execution order.
func (m *Manager) RegisteredHandlers() []string {
	return m.registry.Names()
}
