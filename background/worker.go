package background

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"aiclock/logging"
	"aiclock/palette"
)

type generation struct {
	prompt      string
	enhancement time.Duration
	image       image.Image
	seed        int64
	duration    time.Duration
}

// runWorker is the body of one dispatched attempt. It never holds the lock
// while calling the prompt source or the backend.
func (c *Controller) runWorker(h *workerHandle, started time.Time, control image.Image) {
	defer c.tracker.Done()
	defer close(h.done)
	defer c.finishWorker(h.epoch)

	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.WatchdogTimeout)
	defer cancel()

	attempt := Attempt{Epoch: h.epoch, CorrelationID: h.correlationID, Started: started}
	gen, err := c.generate(ctx, control)
	if gen != nil {
		attempt.Prompt = gen.prompt
		attempt.Enhancement = gen.enhancement
		attempt.Duration = gen.duration
		attempt.Seed = gen.seed
	}

	fields := logging.GenerationFields(logging.GenerationAttempt{
		Epoch:         h.epoch,
		CorrelationID: h.correlationID,
		Prompt:        attempt.Prompt,
		Seed:          attempt.Seed,
		Enhancement:   attempt.Enhancement,
		Duration:      attempt.Duration,
	})

	if err != nil {
		attempt.Err = err
		if applied, failures := c.applyFailure(h.epoch); applied {
			attempt.Outcome = OutcomeFailure
			attempt.ConsecutiveFailures = failures
			c.logger.Warn("background generation failed", fields, zap.Error(err), zap.Int("consecutive_failures", failures))
		} else {
			attempt.Outcome = OutcomeStale
			c.logger.Info("abandoned worker finished with error", fields, zap.Error(err))
		}
		c.notify(attempt)
		return
	}

	accent, _ := palette.DominantColor(gen.image, c.overlayAlpha())
	req := RenderRequest{
		Epoch:              h.epoch,
		CorrelationID:      h.correlationID,
		Prompt:             gen.prompt,
		Seed:               gen.seed,
		Checkpoint:         c.checkpointName(),
		EnhancementSeconds: gen.enhancement.Seconds(),
		GenerationSeconds:  gen.duration.Seconds(),
		Settings:           c.cfg.Generation,
		DominantColor:      accent,
	}

	applied, count, cleanup := c.applySuccess(h.epoch, accent, &req)
	if !applied {
		attempt.Outcome = OutcomeStale
		c.logger.Info("discarding result of abandoned worker", fields)
		c.notify(attempt)
		return
	}

	if c.surface != nil {
		c.surface.UpdateBackground(gen.image)
		c.surface.UpdateRenderRequest(req)
	}
	c.logger.Info("background generated", fields,
		zap.Int("generation_count", count), zap.Stringer("accent", accent))

	if cleanup {
		c.emptyCache(count)
	}

	attempt.Outcome = OutcomeSuccess
	attempt.Request = &req
	c.notify(attempt)
}

// generate fetches a prompt and runs the backend. Panics from either are
// turned into errors.
func (c *Controller) generate(ctx context.Context, control image.Image) (gen *generation, err error) {
	gen = &generation{}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrWorkerPanic, r)
		}
	}()

	gen.prompt, gen.enhancement, err = c.prompts.Generate(ctx)
	if err != nil {
		return gen, fmt.Errorf("background: prompt: %w", err)
	}

	start := time.Now()
	gen.image, gen.seed, err = c.backend.Generate(ctx, control, gen.prompt)
	gen.duration = time.Since(start)
	if err != nil {
		return gen, fmt.Errorf("background: generate: %w", err)
	}
	if gen.image == nil || gen.image.Bounds().Empty() {
		return gen, ErrNoImage
	}
	return gen, nil
}

// applySuccess shifts the color pair and counters if epoch is still
// current. It reports whether the result was applied, the new generation
// count and whether a cache cleanup is due.
func (c *Controller) applySuccess(epoch uint64, accent palette.Color, req *RenderRequest) (applied bool, count int, cleanup bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch || !c.isUpdating {
		c.stats.StaleResults++
		return false, c.generationCount, false
	}

	// SetOverlayAlpha may have run while the image was sampled.
	accent.A = c.cfg.OverlayAlpha
	req.DominantColor = accent

	prev := c.currentColor
	c.previousColor = &prev
	c.currentColor = accent
	c.transitionStart = c.now()
	c.generationCount++
	c.consecutiveFailures = 0
	c.stats.Successes++
	req.Timestamp = c.transitionStart

	cleanup = c.cfg.CacheCleanupInterval > 0 && c.generationCount%c.cfg.CacheCleanupInterval == 0
	return true, c.generationCount, cleanup
}

func (c *Controller) applyFailure(epoch uint64) (applied bool, failures int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch || !c.isUpdating {
		c.stats.StaleResults++
		return false, c.consecutiveFailures
	}
	c.consecutiveFailures++
	c.stats.Failures++
	return true, c.consecutiveFailures
}

// finishWorker releases the single-flight gate, unless the watchdog already
// did and another worker owns it now.
func (c *Controller) finishWorker(epoch uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch {
		return
	}
	c.isUpdating = false
	c.worker = nil
	c.workerStartTime = time.Time{}
}

func (c *Controller) emptyCache(count int) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("cache cleanup panicked", zap.Any("panic", r))
		}
	}()
	c.backend.EmptyCache()

	c.mu.Lock()
	c.stats.CacheCleanups++
	c.mu.Unlock()
	c.logger.Debug("released backend cache", zap.Int("generation_count", count))
}

func (c *Controller) checkpointName() string {
	if cp, ok := c.backend.(checkpointer); ok {
		if name := cp.Checkpoint(); name != "" {
			return filepath.Base(name)
		}
	}
	return ""
}
