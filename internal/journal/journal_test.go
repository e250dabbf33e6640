package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ewoodhouse/vitalsync/internal/infrastructure/database"
	"github.com/ewoodhouse/vitalsync/internal/poller"

	_ "github.com/ewoodhouse/vitalsync/migrations" // registers embedded migrations
)

// openTestRepo opens a migrated SQLite database in a temp directory.
func openTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "journal.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func testSummary(start time.Time) poller.PassSummary {
	return poller.PassSummary{
		StartedAt:  start,
		FinishedAt: start.Add(90 * time.Second),
		Series: []poller.SeriesResult{
			{
				Family:      "activities",
				Series:      "steps",
				Intervals:   2,
				GapDetected: true,
				Written:     48,
				Deduped:     1,
				Duration:    40 * time.Second,
			},
			{
				Family:   "sleep",
				Series:   "sleep",
				Skipped:  true,
				Duration: 3 * time.Second,
			},
		},
	}
}

func TestRecordPass(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	start := time.Date(2026, 8, 15, 4, 0, 0, 0, time.UTC)
	if err := repo.RecordPass(ctx, testSummary(start)); err != nil {
		t.Fatalf("RecordPass() error = %v", err)
	}

	passes, err := repo.RecentPasses(ctx, 10)
	if err != nil {
		t.Fatalf("RecentPasses() error = %v", err)
	}
	if len(passes) != 1 {
		t.Fatalf("expected 1 pass, got %d", len(passes))
	}

	p := passes[0]
	if !p.StartedAt.Equal(start) {
		t.Errorf("StartedAt = %v, want %v", p.StartedAt, start)
	}
	if p.PointsWritten != 48 {
		t.Errorf("PointsWritten = %d, want 48", p.PointsWritten)
	}
	if len(p.Series) != 2 {
		t.Fatalf("expected 2 series results, got %d", len(p.Series))
	}
	if p.Series[0].Family != "activities" || p.Series[0].Written != 48 || !p.Series[0].GapDetected {
		t.Errorf("unexpected first series result: %+v", p.Series[0])
	}
	if !p.Series[1].Skipped {
		t.Errorf("expected sleep series to be marked skipped: %+v", p.Series[1])
	}
	if p.Series[0].Duration != 40*time.Second {
		t.Errorf("Duration = %v, want 40s", p.Series[0].Duration)
	}
	if p.Error != "" {
		t.Errorf("completed pass has error %q, want empty", p.Error)
	}
}

func TestRecordPass_Aborted(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	start := time.Date(2026, 8, 16, 4, 0, 0, 0, time.UTC)
	summary := poller.PassSummary{
		StartedAt:  start,
		FinishedAt: start.Add(12 * time.Second),
		Error:      "writing activities/steps (5 points): influxdb: write failed",
		Series: []poller.SeriesResult{
			{
				Family:      "activities",
				Series:      "steps",
				Intervals:   1,
				GapDetected: true,
				Duration:    12 * time.Second,
				Error:       "writing activities/steps (5 points): influxdb: write failed",
			},
		},
	}
	if err := repo.RecordPass(ctx, summary); err != nil {
		t.Fatalf("RecordPass() error = %v", err)
	}

	passes, err := repo.RecentPasses(ctx, 10)
	if err != nil {
		t.Fatalf("RecentPasses() error = %v", err)
	}
	if len(passes) != 1 {
		t.Fatalf("expected 1 pass, got %d", len(passes))
	}

	p := passes[0]
	if p.Error != summary.Error {
		t.Errorf("pass error = %q, want %q", p.Error, summary.Error)
	}
	if p.PointsWritten != 0 {
		t.Errorf("PointsWritten = %d for aborted pass, want 0", p.PointsWritten)
	}
	if len(p.Series) != 1 {
		t.Fatalf("expected 1 series result, got %d", len(p.Series))
	}
	if p.Series[0].Error != summary.Series[0].Error {
		t.Errorf("series error = %q, want %q", p.Series[0].Error, summary.Series[0].Error)
	}
}

func TestRecentPasses_OrderAndLimit(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		if err := repo.RecordPass(ctx, testSummary(base.Add(time.Duration(i)*4*time.Hour))); err != nil {
			t.Fatalf("RecordPass() error = %v", err)
		}
	}

	passes, err := repo.RecentPasses(ctx, 2)
	if err != nil {
		t.Fatalf("RecentPasses() error = %v", err)
	}
	if len(passes) != 2 {
		t.Fatalf("expected 2 passes, got %d", len(passes))
	}
	if !passes[0].StartedAt.After(passes[1].StartedAt) {
		t.Errorf("passes not ordered newest first: %v then %v",
			passes[0].StartedAt, passes[1].StartedAt)
	}
}

func TestRecentPasses_Empty(t *testing.T) {
	repo := openTestRepo(t)

	passes, err := repo.RecentPasses(context.Background(), 0)
	if err != nil {
		t.Fatalf("RecentPasses() error = %v", err)
	}
	if len(passes) != 0 {
		t.Errorf("expected no passes, got %d", len(passes))
	}
}
