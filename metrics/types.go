// Package metrics keeps in-memory statistics about background generation
// attempts for health reporting.
package metrics

import "time"

// AttemptRecord is one finished, failed or abandoned attempt.
type AttemptRecord struct {
	CorrelationID string        `json:"correlation_id"`
	Epoch         uint64        `json:"epoch"`
	Outcome       string        `json:"outcome"`
	Started       time.Time     `json:"started"`
	Duration      time.Duration `json:"duration"`
	Enhancement   time.Duration `json:"enhancement"`
	ErrorMsg      string        `json:"error_msg,omitempty"`
}

// OutcomeMetrics aggregates attempts with one outcome.
type OutcomeMetrics struct {
	Count       int64         `json:"count"`
	AvgDuration time.Duration `json:"avg_duration"`
}

// AttemptMetrics aggregates every attempt seen since start.
type AttemptMetrics struct {
	Total int64 `json:"total"`

	// SuccessRate is successes over successes plus failures and hangs, in
	// percent. Stale results are not counted either way.
	SuccessRate float64 `json:"success_rate"`

	ByOutcome      map[string]*OutcomeMetrics `json:"by_outcome"`
	AvgEnhancement time.Duration              `json:"avg_enhancement"`
	LastSuccess    time.Time                  `json:"last_success,omitempty"`
	LastError      string                     `json:"last_error,omitempty"`
}

// SystemStatus is the overall health derived from recent attempts.
type SystemStatus struct {
	// Health is one of the SystemHealth constants
	Health              string        `json:"health"`
	Version             string        `json:"version"`
	Uptime              time.Duration `json:"uptime"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	LastCheck           time.Time     `json:"last_check"`
}

// Health constants for SystemStatus
const (
	SystemHealthRunning = "running"
	// SystemHealthDegraded means the latest attempts failed but backoff has
	// not kicked in yet.
	SystemHealthDegraded = "degraded"
	SystemHealthError    = "error"
)
