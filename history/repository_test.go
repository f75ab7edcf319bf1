package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"aiclock/core"
	"aiclock/palette"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	repo := NewRepository(openTestDB(t))
	repo.now = func() time.Time { return baseTime }
	return repo
}

func successRecord(id string, created time.Time) Record {
	return Record{
		CorrelationID: id,
		Epoch:         3,
		Outcome:       "success",
		Prompt:        "a clockwork forest",
		Seed:          42,
		Checkpoint:    "dreamshaper.safetensors",
		Enhancement:   1500 * time.Millisecond,
		Duration:      12 * time.Second,
		DominantColor: &palette.Color{R: 200, G: 180, B: 50, A: 75},
		Settings: &core.GenerationSettings{
			Steps:                       20,
			GuidanceScale:               7,
			ControlNetConditioningScale: 0.9,
			ControlGuidanceEnd:          1,
		},
		StartedAt: created.Add(-12 * time.Second),
		CreatedAt: created,
	}
}

func TestRepository_InsertAndRecent(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	want := successRecord("corr-1", baseTime)
	id, err := repo.Insert(ctx, want)
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if id <= 0 {
		t.Errorf("Insert() id = %d, want > 0", id)
	}

	got, err := repo.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Recent() returned %d records, want 1", len(got))
	}

	rec := got[0]
	if rec.ID != id || rec.CorrelationID != "corr-1" || rec.Epoch != 3 || rec.Seed != 42 {
		t.Errorf("Recent()[0] = %+v", rec)
	}
	if rec.Enhancement != want.Enhancement || rec.Duration != want.Duration {
		t.Errorf("durations = %v/%v, want %v/%v", rec.Enhancement, rec.Duration, want.Enhancement, want.Duration)
	}
	if !rec.CreatedAt.Equal(baseTime) || !rec.StartedAt.Equal(want.StartedAt) {
		t.Errorf("times = %v/%v", rec.StartedAt, rec.CreatedAt)
	}
	if rec.DominantColor == nil || *rec.DominantColor != *want.DominantColor {
		t.Errorf("DominantColor = %v, want %v", rec.DominantColor, want.DominantColor)
	}
	if rec.Settings == nil || *rec.Settings != *want.Settings {
		t.Errorf("Settings = %+v, want %+v", rec.Settings, want.Settings)
	}
}

func TestRepository_FailureHasNoColor(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.Insert(ctx, Record{
		CorrelationID:       "corr-f",
		Epoch:               1,
		Outcome:             "failure",
		ErrorMessage:        "pipeline is loading",
		ConsecutiveFailures: 2,
		StartedAt:           baseTime,
	})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	got, err := repo.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Recent() returned %d records, want 1", len(got))
	}
	if got[0].DominantColor != nil || got[0].Settings != nil {
		t.Errorf("failure record has color/settings: %+v", got[0])
	}
	if got[0].ErrorMessage != "pipeline is loading" || got[0].ConsecutiveFailures != 2 {
		t.Errorf("failure record = %+v", got[0])
	}
	if !got[0].CreatedAt.Equal(baseTime) {
		t.Errorf("CreatedAt = %v, want repository clock %v", got[0].CreatedAt, baseTime)
	}
}

func TestRepository_RecentOrderAndLimit(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	for i, id := range []string{"a", "b", "c"} {
		if _, err := repo.Insert(ctx, successRecord(id, baseTime.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Insert(%s) error = %v", id, err)
		}
	}

	tests := []struct {
		limit int
		want  []string
	}{
		{limit: 0, want: nil},
		{limit: 2, want: []string{"c", "b"}},
		{limit: 10, want: []string{"c", "b", "a"}},
	}
	for _, tt := range tests {
		got, err := repo.Recent(ctx, tt.limit)
		if err != nil {
			t.Fatalf("Recent(%d) error = %v", tt.limit, err)
		}
		if len(got) != len(tt.want) {
			t.Fatalf("Recent(%d) returned %d records, want %d", tt.limit, len(got), len(tt.want))
		}
		for i := range got {
			if got[i].CorrelationID != tt.want[i] {
				t.Errorf("Recent(%d)[%d] = %s, want %s", tt.limit, i, got[i].CorrelationID, tt.want[i])
			}
		}
	}
}

func TestRepository_ByCorrelationID(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	hung := Record{CorrelationID: "corr-h", Epoch: 1, Outcome: "hung", StartedAt: baseTime, CreatedAt: baseTime}
	stale := successRecord("corr-h", baseTime.Add(time.Minute))
	stale.Outcome = "stale"
	other := successRecord("corr-o", baseTime)

	for _, rec := range []Record{hung, other, stale} {
		if _, err := repo.Insert(ctx, rec); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}

	got, err := repo.ByCorrelationID(ctx, "corr-h")
	if err != nil {
		t.Fatalf("ByCorrelationID() error = %v", err)
	}
	if len(got) != 2 || got[0].Outcome != "hung" || got[1].Outcome != "stale" {
		t.Errorf("ByCorrelationID() = %+v, want hung then stale", got)
	}
}

func TestRepository_Counts(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	empty, err := repo.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts() on empty table error = %v", err)
	}
	if empty.Total != 0 || !empty.LastSuccess.IsZero() {
		t.Errorf("Counts() on empty table = %+v", empty)
	}

	latest := baseTime.Add(2 * time.Minute)
	records := []Record{
		successRecord("s1", baseTime),
		successRecord("s2", latest),
		{CorrelationID: "f1", Outcome: "failure", StartedAt: baseTime, CreatedAt: baseTime.Add(5 * time.Minute)},
	}
	for _, rec := range records {
		if _, err := repo.Insert(ctx, rec); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}

	got, err := repo.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts() error = %v", err)
	}
	if got.Total != 3 || got.ByOutcome["success"] != 2 || got.ByOutcome["failure"] != 1 {
		t.Errorf("Counts() = %+v", got)
	}
	if !got.LastSuccess.Equal(latest) {
		t.Errorf("LastSuccess = %v, want %v", got.LastSuccess, latest)
	}
}

func TestRepository_Cleanup(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	old := successRecord("old", baseTime.AddDate(0, 0, -40))
	recent := successRecord("recent", baseTime.AddDate(0, 0, -1))
	for _, rec := range []Record{old, recent} {
		if _, err := repo.Insert(ctx, rec); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}

	if n, err := repo.Cleanup(ctx, 0); err != nil || n != 0 {
		t.Errorf("Cleanup(0) = %d, %v; want 0, nil", n, err)
	}
	if _, err := repo.Cleanup(ctx, -1); err == nil {
		t.Error("Cleanup(-1) expected error")
	}

	n, err := repo.Cleanup(ctx, 30)
	if err != nil {
		t.Fatalf("Cleanup(30) error = %v", err)
	}
	if n != 1 {
		t.Errorf("Cleanup(30) deleted %d, want 1", n)
	}

	got, err := repo.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 1 || got[0].CorrelationID != "recent" {
		t.Errorf("after cleanup Recent() = %+v", got)
	}
}

func TestRepository_ClosedDatabase(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepository(db)
	db.Close()

	if _, err := repo.Insert(context.Background(), successRecord("x", baseTime)); !errors.Is(err, ErrClosed) {
		t.Errorf("Insert() error = %v, want ErrClosed", err)
	}
	if _, err := repo.Recent(context.Background(), 1); !errors.Is(err, ErrClosed) {
		t.Errorf("Recent() error = %v, want ErrClosed", err)
	}
}
