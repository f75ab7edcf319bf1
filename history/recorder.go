package history

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"aiclock/background"
	"aiclock/logging"
)

// Recorder persists controller attempts. It implements background.Observer.
type Recorder struct {
	db     *Database
	repo   *Repository
	writer *AsyncWriter
	logger *logging.Logger
}

// NewRecorder opens the database at path and starts the async writer.
func NewRecorder(path string, logger *logging.Logger) (*Recorder, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.Named("history")

	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	repo := NewRepository(db)
	writer := NewAsyncWriter(func(ctx context.Context, rec Record) error {
		_, err := repo.Insert(ctx, rec)
		return err
	}, DefaultChannelCapacity, logger)
	writer.Start()

	logger.Info("generation history opened", zap.String("path", path))
	return &Recorder{db: db, repo: repo, writer: writer, logger: logger}, nil
}

var _ background.Observer = (*Recorder)(nil)

// OnAttempt queues a for persistence without blocking.
func (r *Recorder) OnAttempt(a background.Attempt) {
	if !r.writer.Write(RecordFromAttempt(a)) {
		r.logger.Warn("history buffer full, dropping record",
			zap.String("correlation_id", a.CorrelationID),
			zap.String("outcome", string(a.Outcome)))
	}
}

// Repository exposes read queries.
func (r *Recorder) Repository() *Repository {
	return r.repo
}

// Dropped returns how many attempts never reached the database.
func (r *Recorder) Dropped() int64 {
	return r.writer.Dropped() + r.writer.Failed()
}

// Close drains pending writes and closes the database. It matches
// core.ShutdownFunc.
func (r *Recorder) Close(ctx context.Context) error {
	timeout := 5 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if !r.writer.Stop(timeout) {
		r.logger.Warn("history writer did not drain before shutdown",
			zap.Int("pending", r.writer.Pending()))
	}
	if err := r.db.Close(); err != nil {
		return fmt.Errorf("history: %w", err)
	}
	return nil
}

// RecordFromAttempt flattens a into a row.
func RecordFromAttempt(a background.Attempt) Record {
	rec := Record{
		CorrelationID:       a.CorrelationID,
		Epoch:               a.Epoch,
		Outcome:             string(a.Outcome),
		Prompt:              a.Prompt,
		Seed:                a.Seed,
		Enhancement:         a.Enhancement,
		Duration:            a.Duration,
		ConsecutiveFailures: a.ConsecutiveFailures,
		StartedAt:           a.Started,
	}
	if a.Err != nil {
		rec.ErrorMessage = logging.RedactSensitiveData(a.Err.Error())
	}
	if req := a.Request; req != nil {
		rec.Checkpoint = req.Checkpoint
		color := req.DominantColor
		rec.DominantColor = &color
		settings := req.Settings
		rec.Settings = &settings
		if !req.Timestamp.IsZero() {
			rec.CreatedAt = req.Timestamp
		}
	}
	return rec
}
