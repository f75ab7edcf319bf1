// Package background schedules background regeneration for the clock.
//
// Controller throttles and single-flights calls into a Backend, recovers
// from hung or failing attempts, and publishes the accent color transition
// the renderer draws with. Finished backgrounds are handed to a Surface.
package background

import (
	"context"
	"errors"
	"image"
	"time"

	"aiclock/core"
	"aiclock/palette"
)

// Backend runs generations against a single shared model. Generate is never
// called concurrently by the Controller.
type Backend interface {
	// Generate renders one background conditioned on control. It must not
	// return a partially valid image.
	Generate(ctx context.Context, control image.Image, prompt string) (image.Image, int64, error)
	// Reload swaps the model asynchronously and reports through the
	// callbacks. IsLoading is true while it runs.
	Reload(onComplete func(), onError func(error))
	IsLoading() bool
	// EmptyCache releases cached buffers. Best effort, must not block.
	EmptyCache()
}

// PromptSource produces the prompt for one attempt and the time spent
// enhancing it.
type PromptSource interface {
	Generate(ctx context.Context) (string, time.Duration, error)
}

// Surface consumes finished backgrounds. Calls are fire-and-forget.
type Surface interface {
	UpdateBackground(img image.Image)
	UpdateRenderRequest(req RenderRequest)
}

// Observer is told about every finished, failed or abandoned attempt.
// OnAttempt is called without the controller lock held and must not block.
type Observer interface {
	OnAttempt(a Attempt)
}

// checkpointer is implemented by backends that can name their model.
type checkpointer interface {
	Checkpoint() string
}

// Errors
var (
	ErrNoImage          = errors.New("background: backend returned no image")
	ErrWorkerPanic      = errors.New("background: worker panicked")
	ErrWorkerHung       = errors.New("background: worker exceeded the watchdog timeout")
	ErrReloadInProgress = errors.New("background: backend reload already in progress")
	ErrClosed           = errors.New("background: controller is closed")
)

// RenderRequest describes a successful generation.
type RenderRequest struct {
	Epoch              uint64                  `json:"epoch"`
	CorrelationID      string                  `json:"correlation_id"`
	Prompt             string                  `json:"prompt"`
	Seed               int64                   `json:"seed"`
	Checkpoint         string                  `json:"checkpoint,omitempty"`
	Timestamp          time.Time               `json:"timestamp"`
	EnhancementSeconds float64                 `json:"enhancement_seconds"`
	GenerationSeconds  float64                 `json:"generation_seconds"`
	Settings           core.GenerationSettings `json:"settings"`
	DominantColor      palette.Color           `json:"dominant_color"`
}

// Outcome classifies an attempt.
type Outcome string

// Attempt outcomes
const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	// OutcomeHung is reported when the watchdog abandons a worker.
	OutcomeHung Outcome = "hung"
	// OutcomeStale is reported when an abandoned worker finally returns.
	OutcomeStale Outcome = "stale"
)

// Attempt is what observers see for each dispatched worker.
type Attempt struct {
	Epoch         uint64
	CorrelationID string
	Outcome       Outcome
	Prompt        string
	Seed          int64
	Err           error
	Started       time.Time
	Duration      time.Duration
	Enhancement   time.Duration
	// ConsecutiveFailures is the counter after this attempt was applied.
	ConsecutiveFailures int
	// Request is set for successful attempts.
	Request *RenderRequest
}
