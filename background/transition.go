package background

import (
	"time"

	"aiclock/palette"
)

// TransitionState is a snapshot of the accent color pair. Previous is nil
// until the first background has been generated, in which case Progress
// is 1.
type TransitionState struct {
	Current  palette.Color
	Previous *palette.Color
	Progress float64
}

// DominantColorWithTransition returns the accent to draw this frame: the
// previous color blended toward the current one by transition progress.
// It blends one Transition snapshot, so the pair is never torn.
func (c *Controller) DominantColorWithTransition() palette.Color {
	ts := c.Transition()
	accent, _ := palette.Interpolate(ts.Previous, &ts.Current, ts.Progress)
	return accent
}

// SetOverlayAlpha changes the alpha of every accent color, including the
// pair already in transition.
func (c *Controller) SetOverlayAlpha(alpha uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.OverlayAlpha = alpha
	c.currentColor.A = alpha
	if c.previousColor != nil {
		prev := *c.previousColor
		prev.A = alpha
		c.previousColor = &prev
	}
}

func (c *Controller) overlayAlpha() uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.OverlayAlpha
}

// Transition returns the color pair and progress in one consistent read.
func (c *Controller) Transition() TransitionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts := TransitionState{Current: c.currentColor, Progress: 1}
	if c.previousColor != nil {
		prev := *c.previousColor
		ts.Previous = &prev
		ts.Progress = c.progressLocked(c.now())
	}
	return ts
}

func (c *Controller) progressLocked(now time.Time) float64 {
	if c.cfg.TransitionDuration <= 0 {
		return 1
	}
	return palette.Clamp01(float64(now.Sub(c.transitionStart)) / float64(c.cfg.TransitionDuration))
}

// Stats are cumulative controller counters plus the live state.
type Stats struct {
	Epoch               uint64
	Dispatched          int
	Successes           int
	Failures            int
	GenerationCount     int
	ConsecutiveFailures int
	WatchdogRecoveries  int
	InconsistentResets  int
	StaleResults        int
	CacheCleanups       int
	Updating            bool
	Reloading           bool
	EffectiveInterval   time.Duration
	LastAttempt         time.Time
}

// Stats returns a snapshot of the counters.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Epoch = c.epoch
	s.GenerationCount = c.generationCount
	s.ConsecutiveFailures = c.consecutiveFailures
	s.Updating = c.isUpdating
	s.Reloading = c.reloading
	s.EffectiveInterval = c.cfg.effectiveInterval(c.consecutiveFailures)
	s.LastAttempt = c.lastAttemptTime
	return s
}
