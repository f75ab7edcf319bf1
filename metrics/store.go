package metrics

import (
	"sync"
	"time"

	"aiclock/background"
)

// Store is an in-memory ring of recent attempts plus running totals.
//
//	store := NewStore(DefaultStoreConfig(), time.Now())
//	controller := background.NewController(cfg, backend, prompts, logger,
//		background.WithObserver(store))
type Store struct {
	mu sync.RWMutex

	history []AttemptRecord
	histCap int
	head    int
	size    int

	total            int64
	byOutcome        map[string]*outcomeStats
	totalEnhancement time.Duration
	enhanced         int64
	lastSuccess      time.Time
	lastError        string
	failures         int

	maxFailures int
	startTime   time.Time
	version     string
	now         func() time.Time
}

type outcomeStats struct {
	count         int64
	totalDuration time.Duration
}

// StoreConfig configures the Store.
type StoreConfig struct {
	// HistoryCapacity is the max number of attempts to retain
	HistoryCapacity int
	// MaxConsecutiveFailures is where health turns from degraded to error,
	// matching the controller's backoff threshold.
	MaxConsecutiveFailures int
	Version                string
}

// DefaultStoreConfig returns a default configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		HistoryCapacity:        100,
		MaxConsecutiveFailures: 3,
		Version:                "0.0.0",
	}
}

// NewStore creates a Store. startTime is used for uptime.
func NewStore(config StoreConfig, startTime time.Time) *Store {
	capacity := config.HistoryCapacity
	if capacity < 1 {
		capacity = 100
	}
	maxFailures := config.MaxConsecutiveFailures
	if maxFailures < 1 {
		maxFailures = 3
	}
	return &Store{
		history:     make([]AttemptRecord, capacity),
		histCap:     capacity,
		byOutcome:   make(map[string]*outcomeStats),
		maxFailures: maxFailures,
		startTime:   startTime,
		version:     config.Version,
		now:         time.Now,
	}
}

// OnAttempt records a. It implements background.Observer.
func (s *Store) OnAttempt(a background.Attempt) {
	rec := AttemptRecord{
		CorrelationID: a.CorrelationID,
		Epoch:         a.Epoch,
		Outcome:       string(a.Outcome),
		Started:       a.Started,
		Duration:      a.Duration,
		Enhancement:   a.Enhancement,
	}
	if a.Err != nil {
		rec.ErrorMsg = a.Err.Error()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.history[s.head] = rec
	s.head = (s.head + 1) % s.histCap
	if s.size < s.histCap {
		s.size++
	}

	s.total++
	stats, ok := s.byOutcome[rec.Outcome]
	if !ok {
		stats = &outcomeStats{}
		s.byOutcome[rec.Outcome] = stats
	}
	stats.count++
	stats.totalDuration += rec.Duration

	if rec.Enhancement > 0 {
		s.totalEnhancement += rec.Enhancement
		s.enhanced++
	}

	switch a.Outcome {
	case background.OutcomeSuccess:
		s.lastSuccess = a.Started.Add(a.Duration)
		s.failures = 0
	case background.OutcomeFailure, background.OutcomeHung:
		s.lastError = rec.ErrorMsg
		s.failures = a.ConsecutiveFailures
	}
}

// Summary returns aggregated attempt statistics.
func (s *Store) Summary() AttemptMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := AttemptMetrics{
		Total:       s.total,
		ByOutcome:   make(map[string]*OutcomeMetrics, len(s.byOutcome)),
		LastSuccess: s.lastSuccess,
		LastError:   s.lastError,
	}
	for outcome, stats := range s.byOutcome {
		om := &OutcomeMetrics{Count: stats.count}
		if stats.count > 0 {
			om.AvgDuration = stats.totalDuration / time.Duration(stats.count)
		}
		m.ByOutcome[outcome] = om
	}
	if s.enhanced > 0 {
		m.AvgEnhancement = s.totalEnhancement / time.Duration(s.enhanced)
	}

	var success, decided int64
	for outcome, stats := range s.byOutcome {
		switch outcome {
		case string(background.OutcomeSuccess):
			success += stats.count
			decided += stats.count
		case string(background.OutcomeFailure), string(background.OutcomeHung):
			decided += stats.count
		}
	}
	if decided > 0 {
		m.SuccessRate = float64(success) / float64(decided) * 100
	}
	return m
}

// Recent returns the N most recent attempts, newest first.
func (s *Store) Recent(limit int) []AttemptRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || s.size == 0 {
		return []AttemptRecord{}
	}
	if limit > s.size {
		limit = s.size
	}

	result := make([]AttemptRecord, limit)
	for i := 0; i < limit; i++ {
		idx := (s.head - 1 - i + s.histCap) % s.histCap
		result[i] = s.history[idx]
	}
	return result
}

// Status derives health from the consecutive failure count.
func (s *Store) Status() SystemStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	health := SystemHealthRunning
	switch {
	case s.failures >= s.maxFailures:
		health = SystemHealthError
	case s.failures > 0:
		health = SystemHealthDegraded
	}

	now := s.now()
	return SystemStatus{
		Health:              health,
		Version:             s.version,
		Uptime:              now.Sub(s.startTime),
		ConsecutiveFailures: s.failures,
		LastCheck:           now,
	}
}

var _ Collector = (*Store)(nil)
