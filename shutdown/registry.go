package shutdown

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"aiclock/core"
)

// Shutdown priorities used by main. Lower runs first.
const (
	PriorityController = 10 // stop dispatching, wait for workers
	PriorityObservers  = 20 // metrics reporter, history writer
	PriorityPipeline   = 30 // free the diffusion model
	PriorityFiles      = 40 // temp snapshot files
	PriorityLogger     = 90 // flush logs last
)

type shutdownEntry struct {
	name     string
	fn       core.ShutdownFunc
	priority int
	order    int
}

// HandlerResult reports one executed handler.
type HandlerResult struct {
	Name     string
	Duration time.Duration
	Err      error
}

// ShutdownRegistry runs registered cleanup handlers in priority order.
// Handlers with equal priority run in registration order.
type ShutdownRegistry struct {
	mu      sync.Mutex
	entries []shutdownEntry
	closed  bool
}

// NewShutdownRegistry creates a new ShutdownRegistry ready to accept registrations.
func NewShutdownRegistry() *ShutdownRegistry {
	return &ShutdownRegistry{}
}

// Register adds a handler. Registration after Shutdown is a no-op.
func (r *ShutdownRegistry) Register(name string, priority int, fn core.ShutdownFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.entries = append(r.entries, shutdownEntry{
		name:     name,
		fn:       fn,
		priority: priority,
		order:    len(r.entries),
	})
}

// Shutdown runs every handler once, even if earlier ones fail or panic,
// and returns one result per handler. Later calls return nil.
func (r *ShutdownRegistry) Shutdown(ctx context.Context) []HandlerResult {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	sorted := r.sortedLocked()
	r.mu.Unlock()

	results := make([]HandlerResult, 0, len(sorted))
	for _, entry := range sorted {
		start := time.Now()
		err := runHandler(ctx, entry)
		results = append(results, HandlerResult{
			Name:     entry.name,
			Duration: time.Since(start),
			Err:      err,
		})
	}
	return results
}

func runHandler(ctx context.Context, entry shutdownEntry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", entry.name, r)
		}
	}()
	if err := entry.fn(ctx); err != nil {
		return fmt.Errorf("%s: %w", entry.name, err)
	}
	return nil
}

// Names returns handler names in execution order.
func (r *ShutdownRegistry) Names() []string {
	r.mu.Lock()
	sorted := r.sortedLocked()
	r.mu.Unlock()

	names := make([]string, len(sorted))
	for i, entry := range sorted {
		names[i] = entry.name
	}
	return names
}

func (r *ShutdownRegistry) sortedLocked() []shutdownEntry {
	sorted := make([]shutdownEntry, len(r.entries))
	copy(sorted, r.entries)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].priority != sorted[j].priority {
			return sorted[i].priority < sorted[j].priority
		}
		return sorted[i].order < sorted[j].order
	})
	return sorted
}

// Count returns the number of registered shutdown functions.
func (r *ShutdownRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// IsClosed returns true if Shutdown has been called.
func (r *ShutdownRegistry) IsClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
