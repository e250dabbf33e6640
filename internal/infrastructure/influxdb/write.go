package influxdb

import (
	"context"
	"fmt"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Point is a single series value bound for storage.
//
// Each point becomes one field write: the field key is the series name
// and the field value is the observation. Grouping related series under
// a shared measurement keeps the schema flat and queryable per series.
type Point struct {
	// Measurement groups related series (e.g. "activities", "sleep").
	Measurement string

	// Series is the field key within the measurement (e.g. "steps").
	Series string

	// Time is the observation timestamp. WriteBatch truncates it to the
	// caller's precision before writing.
	Time time.Time

	// Value is the observation. Numeric values are stored as floats;
	// strings pass through unchanged.
	Value any

	// Tags are indexed key-value pairs attached to the point.
	Tags map[string]string
}

// WriteBatch writes points synchronously in batches.
//
// Timestamps are truncated to the given precision before writing, which
// is what makes repeated syncs of the same range idempotent: a re-fetched
// observation lands on the same timestamp and overwrites rather than
// duplicates.
//
// The write only returns once every batch has been acknowledged. Any
// failure is wrapped in ErrWriteFailed; the sync engine treats that as
// fatal because continuing would record progress for data never stored.
//
// Parameters:
//   - ctx: Context for cancellation
//   - points: Points to write (may be empty)
//   - precision: Timestamp truncation unit (e.g. time.Hour, time.Second)
//
// Returns:
//   - error: nil on success, ErrWriteFailed-wrapped error otherwise
func (c *Client) WriteBatch(ctx context.Context, points []Point, precision time.Duration) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if len(points) == 0 {
		return nil
	}

	for start := 0; start < len(points); start += c.batchSize {
		end := start + c.batchSize
		if end > len(points) {
			end = len(points)
		}

		batch := make([]*write.Point, 0, end-start)
		for _, p := range points[start:end] {
			ts := p.Time
			if precision > 0 {
				ts = ts.Truncate(precision)
			}
			batch = append(batch, write.NewPoint(
				p.Measurement,
				p.Tags,
				map[string]interface{}{p.Series: p.Value},
				ts,
			))
		}

		if err := c.writeAPI.WritePoint(ctx, batch...); err != nil {
			return fmt.Errorf("%w: batch of %d points: %w", ErrWriteFailed, end-start, err)
		}
	}

	return nil
}
