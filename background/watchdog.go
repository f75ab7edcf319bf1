package background

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// checkAndRecoverStuckWorker must be called with c.mu held. It frees the
// single-flight gate when the running worker has exceeded the watchdog
// timeout, or when the gate is set with no live worker behind it. The
// abandoned worker keeps running; bumping the epoch makes its eventual
// result stale. abandoned is set only for a hung worker: the caller should
// then release the backend cache and notify observers once unlocked.
func (c *Controller) checkAndRecoverStuckWorker(now time.Time) (recovered bool, abandoned *Attempt) {
	if !c.isUpdating {
		return false, nil
	}

	h := c.worker
	if h.alive() {
		elapsed := now.Sub(c.workerStartTime)
		if elapsed <= c.cfg.WatchdogTimeout {
			return false, nil
		}

		c.logger.Warn("background worker exceeded watchdog timeout, abandoning it",
			zap.Uint64("epoch", h.epoch),
			zap.String("correlation_id", h.correlationID),
			zap.Duration("elapsed", elapsed),
			zap.Duration("timeout", c.cfg.WatchdogTimeout),
		)
		c.resetWorkerLocked()
		c.consecutiveFailures++
		c.stats.WatchdogRecoveries++
		return true, &Attempt{
			Epoch:               h.epoch,
			CorrelationID:       h.correlationID,
			Outcome:             OutcomeHung,
			Err:                 fmt.Errorf("%w after %s", ErrWorkerHung, elapsed.Round(time.Second)),
			Started:             now.Add(-elapsed),
			Duration:            elapsed,
			ConsecutiveFailures: c.consecutiveFailures,
		}
	}

	c.logger.Warn("update flag set without a live worker, resetting",
		zap.Uint64("epoch", c.epoch), zap.Bool("has_handle", h != nil))
	c.resetWorkerLocked()
	c.stats.InconsistentResets++
	return true, nil
}

func (c *Controller) resetWorkerLocked() {
	c.isUpdating = false
	c.worker = nil
	c.workerStartTime = time.Time{}
	c.epoch++
}

// emergencyEmptyCache runs after a watchdog recovery, without the lock.
func (c *Controller) emergencyEmptyCache() {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("emergency cache release panicked", zap.Any("panic", r))
		}
	}()
	c.backend.EmptyCache()
}
