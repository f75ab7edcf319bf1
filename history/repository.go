package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"aiclock/core"
	"aiclock/palette"
)

// Record is one row of the generations table.
type Record struct {
	ID                  int64
	CorrelationID       string
	Epoch               uint64
	Outcome             string
	Prompt              string
	Seed                int64
	Checkpoint          string
	ErrorMessage        string
	Enhancement         time.Duration
	Duration            time.Duration
	ConsecutiveFailures int

	// DominantColor and Settings are only set for successful attempts.
	DominantColor *palette.Color
	Settings      *core.GenerationSettings
	StartedAt     time.Time
	CreatedAt     time.Time
}

// Counts summarizes the table by outcome.
type Counts struct {
	Total       int64
	ByOutcome   map[string]int64
	LastSuccess time.Time
}

// Repository runs typed queries against a Database.
type Repository struct {
	db  *Database
	now func() time.Time
}

// NewRepository returns a Repository on db.
func NewRepository(db *Database) *Repository {
	return &Repository{db: db, now: time.Now}
}

const insertGeneration = `
	INSERT INTO generations (
		correlation_id, epoch, outcome, prompt, seed, checkpoint,
		error_message, enhancement_ms, duration_ms, consecutive_failures,
		dominant_color, settings, started_at, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Insert stores rec and returns its row id. CreatedAt defaults to now.
func (r *Repository) Insert(ctx context.Context, rec Record) (int64, error) {
	color, err := encodeJSON(rec.DominantColor)
	if err != nil {
		return 0, fmt.Errorf("history: failed to encode dominant color: %w", err)
	}
	settings, err := encodeJSON(rec.Settings)
	if err != nil {
		return 0, fmt.Errorf("history: failed to encode settings: %w", err)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.now()
	}

	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	conn, err := r.db.conn()
	if err != nil {
		return 0, err
	}

	res, err := conn.ExecContext(ctx, insertGeneration,
		rec.CorrelationID,
		int64(rec.Epoch),
		rec.Outcome,
		rec.Prompt,
		rec.Seed,
		rec.Checkpoint,
		rec.ErrorMessage,
		rec.Enhancement.Milliseconds(),
		rec.Duration.Milliseconds(),
		rec.ConsecutiveFailures,
		color,
		settings,
		rec.StartedAt.UnixMilli(),
		rec.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("history: failed to insert generation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("history: failed to get insert id: %w", err)
	}
	return id, nil
}

// Recent returns up to limit records, newest first.
func (r *Repository) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		return nil, nil
	}

	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	conn, err := r.db.conn()
	if err != nil {
		return nil, err
	}

	rows, err := conn.QueryContext(ctx, `
		SELECT id, correlation_id, epoch, outcome, prompt, seed, checkpoint,
			error_message, enhancement_ms, duration_ms, consecutive_failures,
			dominant_color, settings, started_at, created_at
		FROM generations
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: failed to query generations: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: failed to iterate generations: %w", err)
	}
	return out, nil
}

// ByCorrelationID returns every record for one dispatched attempt, oldest
// first. An abandoned attempt has a hung row followed by its stale row.
func (r *Repository) ByCorrelationID(ctx context.Context, id string) ([]Record, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	conn, err := r.db.conn()
	if err != nil {
		return nil, err
	}

	rows, err := conn.QueryContext(ctx, `
		SELECT id, correlation_id, epoch, outcome, prompt, seed, checkpoint,
			error_message, enhancement_ms, duration_ms, consecutive_failures,
			dominant_color, settings, started_at, created_at
		FROM generations
		WHERE correlation_id = ?
		ORDER BY id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("history: failed to query generations: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: failed to iterate generations: %w", err)
	}
	return out, nil
}

// Counts returns per-outcome totals and the time of the newest success.
func (r *Repository) Counts(ctx context.Context) (Counts, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	conn, err := r.db.conn()
	if err != nil {
		return Counts{}, err
	}

	counts := Counts{ByOutcome: make(map[string]int64)}
	rows, err := conn.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM generations GROUP BY outcome`)
	if err != nil {
		return Counts{}, fmt.Errorf("history: failed to count generations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var outcome string
		var n int64
		if err := rows.Scan(&outcome, &n); err != nil {
			return Counts{}, fmt.Errorf("history: failed to scan count: %w", err)
		}
		counts.ByOutcome[outcome] = n
		counts.Total += n
	}
	if err := rows.Err(); err != nil {
		return Counts{}, fmt.Errorf("history: failed to iterate counts: %w", err)
	}

	var last sql.NullInt64
	err = conn.QueryRowContext(ctx,
		`SELECT MAX(created_at) FROM generations WHERE outcome = 'success'`).Scan(&last)
	if err != nil {
		return Counts{}, fmt.Errorf("history: failed to query last success: %w", err)
	}
	if last.Valid {
		counts.LastSuccess = time.UnixMilli(last.Int64)
	}
	return counts, nil
}

// Cleanup deletes rows older than retentionDays and returns how many went.
// Zero retention keeps everything.
func (r *Repository) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays < 0 {
		return 0, fmt.Errorf("history: retentionDays must be non-negative, got %d", retentionDays)
	}
	if retentionDays == 0 {
		return 0, nil
	}
	cutoff := r.now().AddDate(0, 0, -retentionDays).UnixMilli()

	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	conn, err := r.db.conn()
	if err != nil {
		return 0, err
	}

	res, err := conn.ExecContext(ctx, `DELETE FROM generations WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("history: failed to delete old generations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("history: failed to count deleted rows: %w", err)
	}
	if n > 0 {
		if _, err := conn.ExecContext(ctx, "VACUUM"); err != nil {
			return n, fmt.Errorf("history: vacuum failed: %w", err)
		}
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(s scanner) (Record, error) {
	var (
		rec                        Record
		epoch                      int64
		prompt, checkpoint, errMsg sql.NullString
		color, settings            sql.NullString
		enhancementMS, durationMS  int64
		startedAt, createdAt       int64
	)
	err := s.Scan(
		&rec.ID, &rec.CorrelationID, &epoch, &rec.Outcome, &prompt, &rec.Seed, &checkpoint,
		&errMsg, &enhancementMS, &durationMS, &rec.ConsecutiveFailures,
		&color, &settings, &startedAt, &createdAt,
	)
	if err != nil {
		return Record{}, fmt.Errorf("history: failed to scan generation: %w", err)
	}

	rec.Epoch = uint64(epoch)
	rec.Prompt = prompt.String
	rec.Checkpoint = checkpoint.String
	rec.ErrorMessage = errMsg.String
	rec.Enhancement = time.Duration(enhancementMS) * time.Millisecond
	rec.Duration = time.Duration(durationMS) * time.Millisecond
	rec.StartedAt = time.UnixMilli(startedAt)
	rec.CreatedAt = time.UnixMilli(createdAt)

	if color.Valid && color.String != "" {
		rec.DominantColor = new(palette.Color)
		if err := json.Unmarshal([]byte(color.String), rec.DominantColor); err != nil {
			return Record{}, fmt.Errorf("history: bad dominant color in row %d: %w", rec.ID, err)
		}
	}
	if settings.Valid && settings.String != "" {
		rec.Settings = new(core.GenerationSettings)
		if err := json.Unmarshal([]byte(settings.String), rec.Settings); err != nil {
			return Record{}, fmt.Errorf("history: bad settings in row %d: %w", rec.ID, err)
		}
	}
	return rec, nil
}

// encodeJSON returns nil for a nil pointer so the column stays NULL.
func encodeJSON(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case *palette.Color:
		if t == nil {
			return nil, nil
		}
	case *core.GenerationSettings:
		if t == nil {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
