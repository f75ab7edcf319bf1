package prompt

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"aiclock/core"
	"aiclock/logging"
)

// Switcher is the Source the updater holds. It delegates to the classic or
// the enhanced strategy and can change mode while running.
type Switcher struct {
	classic  *ClassicSource
	enhanced *EnhancedSource
	logger   *logging.Logger

	mu   sync.RWMutex
	mode string
}

// NewSource builds a Switcher for cfg. The enhancer is created whenever an
// LLM endpoint is configured so that switching to AI mode later works; it
// is only required when cfg starts in AI mode.
func NewSource(cfg core.PromptConfig, rng *rand.Rand, logger *logging.Logger) (*Switcher, error) {
	classic := NewClassicSource(rng)
	s := &Switcher{classic: classic, logger: logger.Named("prompt")}

	enhanced, err := NewEnhancedSource(cfg.LLM, classic, logger)
	if err == nil {
		s.enhanced = enhanced
	}

	if err := s.SetMode(cfg.Mode); err != nil {
		return nil, err
	}
	return s, nil
}

// Generate delegates to the current mode.
func (s *Switcher) Generate(ctx context.Context) (string, time.Duration, error) {
	s.mu.RLock()
	mode := s.mode
	s.mu.RUnlock()

	if mode == core.PromptModeAI {
		return s.enhanced.Generate(ctx)
	}
	return s.classic.Generate(ctx)
}

// SetMode switches strategy. AI mode fails with ErrEnhancerUnavailable if no
// LLM was configured.
func (s *Switcher) SetMode(mode string) error {
	switch mode {
	case core.PromptModeClassic:
	case core.PromptModeAI:
		if s.enhanced == nil {
			return ErrEnhancerUnavailable
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}

	s.mu.Lock()
	prev := s.mode
	s.mode = mode
	s.mu.Unlock()

	if prev != "" && prev != mode {
		s.logger.Info("prompt mode changed", zap.String("from", prev), zap.String("to", mode))
	}
	return nil
}

// Mode returns the active mode.
func (s *Switcher) Mode() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}
