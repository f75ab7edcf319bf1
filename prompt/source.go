// Package prompt produces the text prompts the background updater renders.
//
// Two strategies implement Source: ClassicSource assembles a prompt from
// curated word lists, EnhancedSource asks an OpenAI-compatible LLM to
// rewrite a classic prompt. Switcher picks between them at runtime.
package prompt

import (
	"context"
	"errors"
	"time"
)

// Source produces one prompt per call. The duration is the time spent on
// enhancement (zero when none happened). Generate may block.
type Source interface {
	Generate(ctx context.Context) (string, time.Duration, error)
}

// Errors
var (
	ErrEmptyCompletion     = errors.New("prompt: LLM returned an empty completion")
	ErrEnhancerUnavailable = errors.New("prompt: AI mode requested but no LLM is configured")
	ErrUnknownMode         = errors.New("prompt: unknown prompt mode")
)
