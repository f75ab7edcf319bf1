package background

import (
	"time"

	"aiclock/core"
)

// Config tunes the controller. Durations must be positive.
type Config struct {
	UpdateInterval           time.Duration
	TransitionDuration       time.Duration
	WatchdogTimeout          time.Duration
	CacheCleanupInterval     int // successes between EmptyCache calls, 0 disables
	MaxConsecutiveFailures   int
	FailureBackoffMultiplier float64

	// OverlayAlpha is the fixed alpha of every accent color.
	OverlayAlpha uint8

	// Generation is recorded with each RenderRequest.
	Generation core.GenerationSettings
}

// DefaultConfig mirrors core.DefaultConfig.
func DefaultConfig() Config {
	return ConfigFrom(core.DefaultConfig())
}

// ConfigFrom extracts the controller settings from the resolved config.
func ConfigFrom(cfg *core.Config) Config {
	return Config{
		UpdateInterval:           cfg.Animation.UpdateInterval(),
		TransitionDuration:       cfg.Animation.TransitionDuration(),
		WatchdogTimeout:          cfg.Updater.WatchdogTimeout(),
		CacheCleanupInterval:     cfg.Updater.CacheCleanupInterval,
		MaxConsecutiveFailures:   cfg.Updater.MaxConsecutiveFailures,
		FailureBackoffMultiplier: cfg.Updater.FailureBackoffMultiplier,
		OverlayAlpha:             uint8(cfg.Clock.OverlayOpacity),
		Generation:               cfg.Render.Generation,
	}
}

// effectiveInterval is the base interval, stretched by the backoff
// multiplier once failures reach the limit.
func (c Config) effectiveInterval(consecutiveFailures int) time.Duration {
	if c.MaxConsecutiveFailures > 0 && consecutiveFailures >= c.MaxConsecutiveFailures {
		return time.Duration(float64(c.UpdateInterval) * c.FailureBackoffMultiplier)
	}
	return c.UpdateInterval
}
