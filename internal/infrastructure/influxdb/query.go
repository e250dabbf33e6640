package influxdb

import (
	"context"
	"fmt"
	"time"
)

// FirstTimestamp returns the timestamp of the oldest stored value for a
// series.
//
// Parameters:
//   - ctx: Context for cancellation
//   - measurement: Measurement name
//   - series: Field key within the measurement
//
// Returns:
//   - time.Time: Timestamp of the first value (zero when absent)
//   - bool: Whether any value exists for the series
//   - error: Query failure
func (c *Client) FirstTimestamp(ctx context.Context, measurement, series string) (time.Time, bool, error) {
	flux := fmt.Sprintf(`from(bucket: %q)
  |> range(start: 0)
  |> filter(fn: (r) => r._measurement == %q)
  |> filter(fn: (r) => r._field == %q)
  |> first()`, c.cfg.Bucket, measurement, series)

	return c.queryTimestamp(ctx, flux)
}

// LastTimestamp returns the timestamp of the newest stored value for a
// series.
//
// Parameters:
//   - ctx: Context for cancellation
//   - measurement: Measurement name
//   - series: Field key within the measurement
//
// Returns:
//   - time.Time: Timestamp of the last value (zero when absent)
//   - bool: Whether any value exists for the series
//   - error: Query failure
func (c *Client) LastTimestamp(ctx context.Context, measurement, series string) (time.Time, bool, error) {
	flux := fmt.Sprintf(`from(bucket: %q)
  |> range(start: 0)
  |> filter(fn: (r) => r._measurement == %q)
  |> filter(fn: (r) => r._field == %q)
  |> last()`, c.cfg.Bucket, measurement, series)

	return c.queryTimestamp(ctx, flux)
}

// CountValues counts stored values for a series within [start, stop).
//
// The bulk loader uses this to skip ranges that are already fully
// imported without re-reading the stored values themselves.
//
// Parameters:
//   - ctx: Context for cancellation
//   - measurement: Measurement name
//   - series: Field key within the measurement
//   - start, stop: Half-open time range
//
// Returns:
//   - int64: Number of stored values in the range
//   - error: Query failure
func (c *Client) CountValues(ctx context.Context, measurement, series string, start, stop time.Time) (int64, error) {
	if !c.IsConnected() {
		return 0, ErrNotConnected
	}

	flux := fmt.Sprintf(`from(bucket: %q)
  |> range(start: %s, stop: %s)
  |> filter(fn: (r) => r._measurement == %q)
  |> filter(fn: (r) => r._field == %q)
  |> count()`,
		c.cfg.Bucket,
		start.UTC().Format(time.RFC3339),
		stop.UTC().Format(time.RFC3339),
		measurement, series)

	result, err := c.queryAPI.Query(ctx, flux)
	if err != nil {
		return 0, fmt.Errorf("influxdb: count query failed: %w", err)
	}

	var total int64
	for result.Next() {
		if n, ok := result.Record().Value().(int64); ok {
			total += n
		}
	}
	if err := result.Err(); err != nil {
		return 0, fmt.Errorf("influxdb: reading count result: %w", err)
	}
	return total, nil
}

// ListMeasurements returns every measurement present in the bucket.
//
// Parameters:
//   - ctx: Context for cancellation
//
// Returns:
//   - []string: Measurement names (empty for a fresh bucket)
//   - error: Query failure
func (c *Client) ListMeasurements(ctx context.Context) ([]string, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}

	flux := fmt.Sprintf(`import "influxdata/influxdb/schema"
schema.measurements(bucket: %q)`, c.cfg.Bucket)

	result, err := c.queryAPI.Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("influxdb: listing measurements: %w", err)
	}

	var names []string
	for result.Next() {
		if name, ok := result.Record().Value().(string); ok {
			names = append(names, name)
		}
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("influxdb: reading measurement list: %w", err)
	}
	return names, nil
}

// queryTimestamp runs a Flux query expected to yield at most one record
// and returns that record's timestamp.
func (c *Client) queryTimestamp(ctx context.Context, flux string) (time.Time, bool, error) {
	if !c.IsConnected() {
		return time.Time{}, false, ErrNotConnected
	}

	result, err := c.queryAPI.Query(ctx, flux)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("influxdb: timestamp query failed: %w", err)
	}

	var (
		ts    time.Time
		found bool
	)
	for result.Next() {
		ts = result.Record().Time()
		found = true
	}
	if err := result.Err(); err != nil {
		return time.Time{}, false, fmt.Errorf("influxdb: reading timestamp result: %w", err)
	}
	return ts, found, nil
}
