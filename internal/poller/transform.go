package poller

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ewoodhouse/vitalsync/internal/fitbit"
	"github.com/ewoodhouse/vitalsync/internal/infrastructure/influxdb"
)

// Source timestamp layouts. Daily series carry bare dates, sleep records
// and stage segments carry millisecond-resolution local timestamps.
const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02T15:04:05.000"
)

// sourceTag marks every synced point so API-synced data can be told apart
// from bulk-imported dumps in the store.
var sourceTag = map[string]string{"imported_from": "API"}

// TransformFunc converts one raw source item into zero or more stored
// points. Transforms are pure: no I/O, no retained state, and absent
// optional structure suppresses points rather than failing.
type TransformFunc func(raw json.RawMessage) ([]influxdb.Point, error)

// defaultTransform maps a plain {dateTime, value} item to a single point
// under the given measurement and series.
func defaultTransform(measurement, series string) TransformFunc {
	return func(raw json.RawMessage) ([]influxdb.Point, error) {
		var item fitbit.TimeSeriesValue
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, fmt.Errorf("poller: decoding %s/%s item: %w", measurement, series, err)
		}

		ts, err := parseSourceTime(item.DateTime)
		if err != nil {
			return nil, err
		}

		var value any
		if len(item.Value) > 0 {
			if err := json.Unmarshal(item.Value, &value); err != nil {
				return nil, fmt.Errorf("poller: decoding %s/%s value: %w", measurement, series, err)
			}
		}

		return []influxdb.Point{newPoint(measurement, series, ts, value)}, nil
	}
}

// transformHeart fans one activities/heart day out into a resting heart
// rate point plus four points per reported zone. Zone series names are
// the lower-cased, underscore-joined zone name prefixed with "hrz_"
// ("Out of Range" minutes becomes "hrz_out_of_range_minutes").
func transformHeart(raw json.RawMessage) ([]influxdb.Point, error) {
	var item fitbit.TimeSeriesValue
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, fmt.Errorf("poller: decoding heart item: %w", err)
	}

	ts, err := parseSourceTime(item.DateTime)
	if err != nil {
		return nil, err
	}

	var value fitbit.HeartValue
	if err := json.Unmarshal(item.Value, &value); err != nil {
		return nil, fmt.Errorf("poller: decoding heart value: %w", err)
	}

	points := []influxdb.Point{
		newPoint("activities", "restingHeartRate", ts, value.RestingHeartRate),
	}
	for _, zone := range value.HeartRateZones {
		prefix := "hrz_" + strings.ToLower(strings.ReplaceAll(zone.Name, " ", "_"))
		points = append(points,
			newPoint("activities", prefix+"_caloriesOut", ts, zone.CaloriesOut),
			newPoint("activities", prefix+"_max", ts, zone.Max),
			newPoint("activities", prefix+"_min", ts, zone.Min),
			newPoint("activities", prefix+"_minutes", ts, zone.Minutes),
		)
	}
	return points, nil
}

// transformBodyLogWeight emits bmi, fat and weight points for one weight
// log entry, all timestamped by the entry's creation time.
func transformBodyLogWeight(raw json.RawMessage) ([]influxdb.Point, error) {
	var entry fitbit.BodyLogEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("poller: decoding weight log entry: %w", err)
	}

	ts := time.UnixMilli(entry.LogID).UTC()
	return []influxdb.Point{
		newPoint("body_log", "weight_bmi", ts, entry.BMI),
		newPoint("body_log", "weight_fat", ts, entry.Fat),
		newPoint("body_log", "weight_weight", ts, entry.Weight),
	}, nil
}

// transformBodyLogFat emits one fat point per fat log entry.
func transformBodyLogFat(raw json.RawMessage) ([]influxdb.Point, error) {
	var entry fitbit.BodyLogEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("poller: decoding fat log entry: %w", err)
	}

	ts := time.UnixMilli(entry.LogID).UTC()
	return []influxdb.Point{
		newPoint("body_log", "fat_fat", ts, entry.Fat),
	}, nil
}

// transformSleep fans one sleep session out into:
//   - eight scalar points under "sleep" at the session start (duration
//     converted from milliseconds to seconds),
//   - per-stage summary points under "sleep_levels" at the session start,
//   - one point per stage segment under "sleep_data" / "sleep_shortData",
//     each timestamped by the segment's own start.
//
// Sessions without a levels breakdown yield only the scalar points.
func transformSleep(raw json.RawMessage) ([]influxdb.Point, error) {
	var record fitbit.SleepRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("poller: decoding sleep record: %w", err)
	}

	start, err := parseSourceTime(record.StartTime)
	if err != nil {
		return nil, err
	}

	points := []influxdb.Point{
		newPoint("sleep", "duration", start, float64(record.Duration)/1000),
		newPoint("sleep", "efficiency", start, record.Efficiency),
		newPoint("sleep", "isMainSleep", start, record.IsMainSleep),
		newPoint("sleep", "timeInBed", start, record.TimeInBed),
		newPoint("sleep", "minutesAfterWakeup", start, record.MinutesAfterWakeup),
		newPoint("sleep", "minutesAsleep", start, record.MinutesAsleep),
		newPoint("sleep", "minutesAwake", start, record.MinutesAwake),
		newPoint("sleep", "minutesToFallAsleep", start, record.MinutesToFallAsleep),
	}

	if record.Levels == nil {
		return points, nil
	}

	for level, summary := range record.Levels.Summary {
		series := strings.ToLower(level)
		points = append(points,
			newPoint("sleep_levels", series+"_count", start, summary.Count),
			newPoint("sleep_levels", series+"_minutes", start, summary.Minutes),
			newPoint("sleep_levels", series+"_thirtyDayAvgMinutes", start, summary.ThirtyDayAvgMinutes),
		)
	}

	for _, measurement := range []string{"sleep_data", "sleep_shortData"} {
		segments := record.Levels.Data
		if measurement == "sleep_shortData" {
			segments = record.Levels.ShortData
		}
		for _, segment := range segments {
			ts, err := parseSourceTime(segment.DateTime)
			if err != nil {
				return nil, err
			}
			points = append(points, newPoint(measurement, "level_"+segment.Level, ts, segment.Seconds))
		}
	}

	return points, nil
}

// newPoint builds a stored point, applying the value normalization every
// synced point goes through: a missing or falsy value becomes 0.0 and
// everything else is coerced to a float where possible. Coercion never
// fails; a value that cannot be read as a number passes through as-is.
func newPoint(measurement, series string, ts time.Time, value any) influxdb.Point {
	return influxdb.Point{
		Measurement: measurement,
		Series:      series,
		Time:        ts,
		Value:       coerceValue(value),
		Tags:        sourceTag,
	}
}

// coerceValue normalizes a decoded JSON value for storage.
func coerceValue(value any) any {
	switch v := value.(type) {
	case nil:
		return 0.0
	case bool:
		if v {
			return 1.0
		}
		return 0.0
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		if v == "" {
			return 0.0
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		return v
	default:
		return v
	}
}

// parseSourceTime parses the two timestamp layouts the source emits.
// Timestamps carry no zone; they are taken as UTC so stored instants are
// stable across deployments.
func parseSourceTime(s string) (time.Time, error) {
	if ts, err := time.Parse(dateTimeLayout, s); err == nil {
		return ts, nil
	}
	if ts, err := time.Parse(dateLayout, s); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("poller: unrecognized timestamp %q", s)
}
