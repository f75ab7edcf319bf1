package metrics

import "aiclock/background"

// Collector is the read and write surface of the metrics store.
// Implementations are safe for concurrent use.
type Collector interface {
	background.Observer

	// Summary returns aggregated attempt statistics.
	Summary() AttemptMetrics

	// Recent returns the N most recent attempts, newest first.
	Recent(limit int) []AttemptRecord

	// Status derives overall health from the latest attempts.
	Status() SystemStatus
}
