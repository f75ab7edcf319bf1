package metrics

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"aiclock/background"
	"aiclock/logging"
)

// StatsFunc returns the controller's current counters.
type StatsFunc func() background.Stats

// Sample is one periodic health snapshot.
type Sample struct {
	Time       time.Time
	Status     SystemStatus
	Controller background.Stats
	Attempts   AttemptMetrics
}

// ReporterConfig configures the Reporter.
type ReporterConfig struct {
	Interval time.Duration
	// HistorySize is the number of samples to retain
	HistorySize int
}

// DefaultReporterConfig logs once a minute and keeps an hour of samples.
func DefaultReporterConfig() ReporterConfig {
	return ReporterConfig{
		Interval:    time.Minute,
		HistorySize: 60,
	}
}

// Reporter periodically combines controller stats with the Store and logs
// the result.
type Reporter struct {
	mu sync.RWMutex

	config ReporterConfig
	store  Collector
	stats  StatsFunc
	logger *logging.Logger

	history  []Sample
	histHead int
	histSize int
	histCap  int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewReporter returns a stopped Reporter. stats may be nil.
func NewReporter(config ReporterConfig, store Collector, stats StatsFunc, logger *logging.Logger) *Reporter {
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}
	if config.HistorySize < 1 {
		config.HistorySize = 60
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Reporter{
		config:  config,
		store:   store,
		stats:   stats,
		logger:  logger.Named("metrics"),
		history: make([]Sample, config.HistorySize),
		histCap: config.HistorySize,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins periodic reporting in a background goroutine.
func (r *Reporter) Start() {
	r.wg.Add(1)
	go r.loop()
}

// Stop halts reporting and waits for the goroutine. It matches
// core.ShutdownFunc.
func (r *Reporter) Stop(ctx context.Context) error {
	r.once.Do(r.cancel)

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Reporter) loop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.CollectOnce()
		}
	}
}

// CollectOnce takes, stores and logs one sample.
func (r *Reporter) CollectOnce() Sample {
	s := Sample{
		Time:     time.Now(),
		Status:   r.store.Status(),
		Attempts: r.store.Summary(),
	}
	if r.stats != nil {
		s.Controller = r.stats()
	}

	r.mu.Lock()
	r.history[r.histHead] = s
	r.histHead = (r.histHead + 1) % r.histCap
	if r.histSize < r.histCap {
		r.histSize++
	}
	r.mu.Unlock()

	fields := []zap.Field{
		zap.String("health", s.Status.Health),
		zap.Int64("attempts", s.Attempts.Total),
		zap.Float64("success_rate", s.Attempts.SuccessRate),
		zap.Int("generations", s.Controller.GenerationCount),
		zap.Int("consecutive_failures", s.Controller.ConsecutiveFailures),
		zap.Int("watchdog_recoveries", s.Controller.WatchdogRecoveries),
		zap.Int("stale_results", s.Controller.StaleResults),
		zap.Duration("effective_interval", s.Controller.EffectiveInterval),
	}
	if s.Status.Health == SystemHealthRunning {
		r.logger.Info("background health", fields...)
	} else {
		r.logger.Warn("background health", append(fields, zap.String("last_error", s.Attempts.LastError))...)
	}
	return s
}

// History returns up to limit samples, oldest first.
func (r *Reporter) History(limit int) []Sample {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 || r.histSize == 0 {
		return []Sample{}
	}
	if limit > r.histSize {
		limit = r.histSize
	}

	result := make([]Sample, limit)
	for i := 0; i < limit; i++ {
		idx := (r.histHead - limit + i + r.histCap) % r.histCap
		result[i] = r.history[idx]
	}
	return result
}
