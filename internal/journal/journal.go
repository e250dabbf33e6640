// Package journal persists sync pass history to SQLite for diagnostics.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ewoodhouse/vitalsync/internal/poller"
)

// PassRecord is one recorded sync pass with its per-series results.
// Error is non-empty for passes that aborted instead of completing.
type PassRecord struct {
	ID            int64                 `json:"id"`
	StartedAt     time.Time             `json:"started_at"`
	FinishedAt    time.Time             `json:"finished_at"`
	PointsWritten int                   `json:"points_written"`
	Error         string                `json:"error,omitempty"`
	Series        []poller.SeriesResult `json:"series"`
}

// SQLiteRepository records pass history in SQLite. It implements
// poller.PassRecorder.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new pass history repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// RecordPass inserts a pass and its per-series rows in one transaction.
func (r *SQLiteRepository) RecordPass(ctx context.Context, summary poller.PassSummary) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting journal transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	res, err := tx.ExecContext(ctx,
		`INSERT INTO sync_passes (started_at, finished_at, points_written, error)
		 VALUES (?, ?, ?, ?)`,
		summary.StartedAt.UTC().Format(time.RFC3339),
		summary.FinishedAt.UTC().Format(time.RFC3339),
		summary.Written(),
		summary.Error,
	)
	if err != nil {
		return fmt.Errorf("inserting sync pass: %w", err)
	}

	passID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading pass id: %w", err)
	}

	for _, s := range summary.Series {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO sync_series (pass_id, family, series, intervals, gap_detected, written, deduped, skipped, duration_ms, error)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			passID, s.Family, s.Series, s.Intervals, s.GapDetected,
			s.Written, s.Deduped, s.Skipped, s.Duration.Milliseconds(), s.Error,
		)
		if err != nil {
			return fmt.Errorf("inserting series result %s/%s: %w", s.Family, s.Series, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing journal transaction: %w", err)
	}
	return nil
}

// RecentPasses returns the most recent passes, newest first.
// Limit defaults to 20 and is capped at 200.
func (r *SQLiteRepository) RecentPasses(ctx context.Context, limit int) ([]PassRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 200 { //nolint:mnd // max page size for history queries
		limit = 200
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, points_written, error
		 FROM sync_passes ORDER BY started_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying sync passes: %w", err)
	}
	defer rows.Close()

	var passes []PassRecord
	for rows.Next() {
		var p PassRecord
		var startedAt, finishedAt string
		if err := rows.Scan(&p.ID, &startedAt, &finishedAt, &p.PointsWritten, &p.Error); err != nil {
			return nil, fmt.Errorf("scanning sync pass: %w", err)
		}
		if p.StartedAt, err = time.Parse(time.RFC3339, startedAt); err != nil {
			return nil, fmt.Errorf("parsing pass start %q: %w", startedAt, err)
		}
		if p.FinishedAt, err = time.Parse(time.RFC3339, finishedAt); err != nil {
			return nil, fmt.Errorf("parsing pass finish %q: %w", finishedAt, err)
		}
		passes = append(passes, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sync passes: %w", err)
	}

	for i := range passes {
		series, err := r.seriesForPass(ctx, passes[i].ID)
		if err != nil {
			return nil, err
		}
		passes[i].Series = series
	}

	if passes == nil {
		passes = []PassRecord{}
	}
	return passes, nil
}

func (r *SQLiteRepository) seriesForPass(ctx context.Context, passID int64) ([]poller.SeriesResult, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT family, series, intervals, gap_detected, written, deduped, skipped, duration_ms, error
		 FROM sync_series WHERE pass_id = ? ORDER BY id`,
		passID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying series for pass %d: %w", passID, err)
	}
	defer rows.Close()

	var results []poller.SeriesResult
	for rows.Next() {
		var s poller.SeriesResult
		var durationMS int64
		if err := rows.Scan(&s.Family, &s.Series, &s.Intervals, &s.GapDetected,
			&s.Written, &s.Deduped, &s.Skipped, &durationMS, &s.Error); err != nil {
			return nil, fmt.Errorf("scanning series result: %w", err)
		}
		s.Duration = time.Duration(durationMS) * time.Millisecond
		results = append(results, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating series results: %w", err)
	}
	return results, nil
}
