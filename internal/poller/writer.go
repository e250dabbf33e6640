package poller

import (
	"context"
	"fmt"
	"time"

	"github.com/ewoodhouse/vitalsync/internal/infrastructure/influxdb"
)

// SeriesStore is the capability the sync engine needs from the
// time-series sink. *influxdb.Client satisfies it.
type SeriesStore interface {
	FirstTimestamp(ctx context.Context, measurement, series string) (time.Time, bool, error)
	LastTimestamp(ctx context.Context, measurement, series string) (time.Time, bool, error)
	CountValues(ctx context.Context, measurement, series string, start, stop time.Time) (int64, error)
	WriteBatch(ctx context.Context, points []influxdb.Point, precision time.Duration) error
}

// WriteResult summarizes one series write for logging and the journal.
type WriteResult struct {
	// Written is the number of points handed to the store.
	Written int

	// Deduped is the number of points dropped as identity duplicates.
	Deduped int

	// Skipped reports that the count-skip heuristic suppressed the
	// whole write.
	Skipped bool
}

// Writer performs deduplicated, idempotent writes into the store.
type Writer struct {
	store  SeriesStore
	logger Logger
}

// NewWriter creates a Writer around a series store.
func NewWriter(store SeriesStore, logger Logger) *Writer {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Writer{store: store, logger: logger}
}

// Dedup collapses points sharing a (measurement, series, timestamp)
// identity, keeping the last one seen so later transform output wins.
// First-seen order is preserved; duplicates occur because interval
// fetches can be re-requested after a restart.
func Dedup(points []influxdb.Point) []influxdb.Point {
	type identity struct {
		measurement string
		series      string
		ts          int64
	}

	index := make(map[identity]int, len(points))
	out := make([]influxdb.Point, 0, len(points))
	for _, p := range points {
		id := identity{p.Measurement, p.Series, p.Time.UnixNano()}
		if at, seen := index[id]; seen {
			out[at] = p
			continue
		}
		index[id] = len(out)
		out = append(out, p)
	}
	return out
}

// Write stores one series' worth of points for a pass.
//
// Points are deduplicated first. When the pass detected no gap for the
// series, the write is skipped entirely if the store already holds as
// many key-series values over the candidate range as the pass produced —
// a restart-cost optimization, not a correctness guarantee: matching
// counts do not prove matching content, and the overwrite semantics of
// the store make a spurious skip harmless only because the next genuine
// change breaks the count.
//
// A batch failure is fatal for the pass and surfaced to the caller.
//
// Parameters:
//   - ctx: Context for cancellation
//   - family: Family being written (supplies write precision)
//   - series: Series the points came from (supplies the key series)
//   - points: Transformed points, pre-dedup
//   - gapDetected: Whether the pass plan covered missing history
//
// Returns:
//   - WriteResult: Write statistics
//   - error: Store write failure
func (w *Writer) Write(ctx context.Context, family Family, series Series, points []influxdb.Point, gapDetected bool) (WriteResult, error) {
	deduped := Dedup(points)
	result := WriteResult{
		Written: len(deduped),
		Deduped: len(points) - len(deduped),
	}

	if len(deduped) == 0 {
		result.Written = 0
		return result, nil
	}

	if !gapDetected {
		skip, err := w.countMatches(ctx, family, series, deduped)
		if err != nil {
			return result, err
		}
		if skip {
			w.logger.Debug("store already current, skipping write",
				"family", family.Name, "series", series.Name, "points", len(deduped))
			result.Written = 0
			result.Skipped = true
			return result, nil
		}
	}

	if err := w.store.WriteBatch(ctx, deduped, family.Precision); err != nil {
		return result, fmt.Errorf("writing %s/%s (%d points): %w",
			family.Name, series.Name, len(deduped), err)
	}
	return result, nil
}

// countMatches reports whether the store's key-series count over the
// candidate range equals the candidate count.
func (w *Writer) countMatches(ctx context.Context, family Family, series Series, points []influxdb.Point) (bool, error) {
	key := series.Key()

	var (
		candidates int64
		min, max   time.Time
	)
	for _, p := range points {
		if p.Series != key {
			continue
		}
		ts := p.Time
		if family.Precision > 0 {
			ts = ts.Truncate(family.Precision)
		}
		if candidates == 0 || ts.Before(min) {
			min = ts
		}
		if candidates == 0 || ts.After(max) {
			max = ts
		}
		candidates++
	}
	if candidates == 0 {
		return false, nil
	}

	// The key series shares one measurement across all of the family's
	// points (plain series store under the family name, composite
	// transforms pin their key to a fixed measurement).
	measurement := keyMeasurement(family, points, key)

	stored, err := w.store.CountValues(ctx, measurement, key, min, max.Add(family.Precision))
	if err != nil {
		return false, fmt.Errorf("counting %s/%s: %w", measurement, key, err)
	}
	return stored == candidates, nil
}

// keyMeasurement finds the measurement the key series is stored under.
func keyMeasurement(family Family, points []influxdb.Point, key string) string {
	for _, p := range points {
		if p.Series == key {
			return p.Measurement
		}
	}
	return family.Name
}
