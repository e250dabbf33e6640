package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ewoodhouse/vitalsync/internal/infrastructure/influxdb"
)

const (
	// dumpSubdir is the directory inside a data export that holds the
	// per-measurement JSON files.
	dumpSubdir = "user-site-export"

	// chunkSize is the number of dump rows written per batch.
	chunkSize = 5000

	// sourceTag marks bulk-loaded points so they can be told apart from
	// live API syncs.
	sourceTag = "data_dump"
)

// Store is the subset of the time-series store the loader needs.
// *influxdb.Client satisfies it.
type Store interface {
	ListMeasurements(ctx context.Context) ([]string, error)
	LastTimestamp(ctx context.Context, measurement, series string) (time.Time, bool, error)
	CountValues(ctx context.Context, measurement, series string, start, stop time.Time) (int64, error)
	WriteBatch(ctx context.Context, points []influxdb.Point, precision time.Duration) error
}

// Logger is the minimal logging interface the loader needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Result summarises the load of one measurement.
type Result struct {
	Measurement string `json:"measurement"`
	Rows        int    `json:"rows"`
	Deduped     int    `json:"deduped"`
	Written     int    `json:"written"`
	Skipped     bool   `json:"skipped"`
}

// Loader bulk-loads a data export dump into the time-series store.
//
// Loading is resumable: rows older than the measurement's stored last
// timestamp are filtered out, and a measurement whose stored value count
// already matches the dump is skipped entirely.
type Loader struct {
	store  Store
	logger Logger
	now    func() time.Time
}

// NewLoader creates a dump loader. logger may be nil.
func NewLoader(store Store, logger Logger) *Loader {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Loader{store: store, logger: logger, now: time.Now}
}

// LoadDump loads every known measurement from the dump directory.
//
// dumpDir is the root of an unpacked data export; it must contain a
// user-site-export directory. Measurements are processed in name order
// and the first failure aborts the load.
func (l *Loader) LoadDump(ctx context.Context, dumpDir string) ([]Result, error) {
	dir := filepath.Join(dumpDir, dumpSubdir)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("dump folder %s does not contain a %s directory", dumpDir, dumpSubdir)
	}

	table := Measurements()
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]Result, 0, len(names))
	for _, name := range names {
		res, err := l.loadMeasurement(ctx, dir, name, table[name])
		if err != nil {
			return results, fmt.Errorf("loading %s: %w", name, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// row is one deduplicated dump record before flattening into points.
type row struct {
	ts     time.Time
	values []fieldValue
}

type fieldValue struct {
	name  string
	value any
}

func (l *Loader) loadMeasurement(ctx context.Context, dir, name string, spec Measurement) (Result, error) {
	res := Result{Measurement: name}

	files, err := filepath.Glob(filepath.Join(dir, name+"-*.json"))
	if err != nil {
		return res, fmt.Errorf("globbing dump files: %w", err)
	}
	sort.Strings(files)
	if len(files) == 0 {
		l.logger.Debug("no dump files for measurement", "measurement", name)
		res.Skipped = true
		return res, nil
	}

	items, err := mergeFiles(files)
	if err != nil {
		return res, err
	}

	rows, deduped, err := buildRows(name, spec, items)
	if err != nil {
		return res, err
	}
	res.Rows = len(rows)
	res.Deduped = deduped
	l.logger.Info("read dump files",
		"measurement", name, "files", len(files), "rows", len(rows), "deduped", deduped)

	firstField := spec.Fields[0].Name

	// Resume: drop rows strictly before what the store already holds.
	last, found, err := l.store.LastTimestamp(ctx, name, firstField)
	if err != nil {
		return res, fmt.Errorf("reading last timestamp: %w", err)
	}
	if found {
		kept := rows[:0]
		for _, r := range rows {
			if !r.ts.Before(last) {
				kept = append(kept, r)
			}
		}
		rows = kept
		if len(rows) == 0 {
			l.logger.Info("measurement already loaded", "measurement", name)
			res.Skipped = true
			return res, nil
		}
	}

	skip, err := l.alreadyLoaded(ctx, name, firstField, len(rows))
	if err != nil {
		return res, err
	}
	if skip {
		l.logger.Info("stored count matches dump, skipping", "measurement", name)
		res.Skipped = true
		return res, nil
	}

	l.logger.Info("writing dump rows", "measurement", name, "rows", len(rows))
	for start := 0; start < len(rows); start += chunkSize {
		end := start + chunkSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := l.store.WriteBatch(ctx, flatten(name, rows[start:end]), time.Second); err != nil {
			return res, fmt.Errorf("writing rows %d..%d: %w", start, end, err)
		}
	}
	res.Written = len(rows)
	return res, nil
}

// alreadyLoaded reports whether the store already holds exactly as many
// values as the dump would write. Counting the first field mirrors how
// rows are flattened: every row carries every field.
func (l *Loader) alreadyLoaded(ctx context.Context, name, firstField string, pending int) (bool, error) {
	existing, err := l.store.ListMeasurements(ctx)
	if err != nil {
		return false, fmt.Errorf("listing measurements: %w", err)
	}
	known := false
	for _, m := range existing {
		if m == name {
			known = true
			break
		}
	}
	if !known {
		return false, nil
	}

	count, err := l.store.CountValues(ctx, name, firstField, time.Unix(0, 0), l.now().UTC())
	if err != nil {
		return false, fmt.Errorf("counting stored values: %w", err)
	}
	return count == int64(pending), nil
}

// mergeFiles concatenates the items of every dump file. Each file holds
// either a JSON array of items or a single item.
func mergeFiles(files []string) ([]json.RawMessage, error) {
	var merged []json.RawMessage
	for _, path := range files {
		data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator's dump directory
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		var list []json.RawMessage
		if err := json.Unmarshal(data, &list); err == nil {
			merged = append(merged, list...)
			continue
		}
		var single json.RawMessage
		if err := json.Unmarshal(data, &single); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		merged = append(merged, single)
	}
	return merged, nil
}

// buildRows casts raw dump items into rows and deduplicates them by
// timestamp. The first occurrence of a timestamp wins.
func buildRows(name string, spec Measurement, items []json.RawMessage) ([]row, int, error) {
	rows := make([]row, 0, len(items))
	seen := make(map[int64]struct{}, len(items))
	deduped := 0

	for _, raw := range items {
		fields, err := decodeItem(spec, raw)
		if err != nil {
			return nil, 0, err
		}
		if len(fields) == 0 {
			continue // dropped by extract (e.g. header row)
		}

		timeRaw, ok := fields[spec.TimeField].(string)
		if !ok {
			return nil, 0, fmt.Errorf("%s item missing %s", name, spec.TimeField)
		}
		ts, err := parseDumpTime(timeRaw)
		if err != nil {
			return nil, 0, fmt.Errorf("%s item: %w", name, err)
		}

		// Some dumps nest the fields under a value object.
		src := fields
		if nested, ok := fields["value"].(map[string]any); ok {
			src = nested
		}

		values := make([]fieldValue, 0, len(spec.Fields))
		for _, f := range spec.Fields {
			cast, err := f.Cast(src[f.Name]) // absent fields cast from nil to zero
			if err != nil {
				return nil, 0, fmt.Errorf("%s field %s: %w", name, f.Name, err)
			}
			values = append(values, fieldValue{name: f.Name, value: cast})
		}

		key := ts.UnixNano()
		if _, dup := seen[key]; dup {
			deduped++
			continue
		}
		seen[key] = struct{}{}
		rows = append(rows, row{ts: ts, values: values})
	}
	return rows, deduped, nil
}

func decodeItem(spec Measurement, raw json.RawMessage) (map[string]any, error) {
	if spec.Extract != nil {
		return spec.Extract(raw)
	}
	var item map[string]any
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, fmt.Errorf("decoding dump item: %w", err)
	}
	return item, nil
}

// flatten turns rows into store points, one point per field.
// Fields sharing a timestamp land in the same stored record.
func flatten(name string, rows []row) []influxdb.Point {
	points := make([]influxdb.Point, 0, len(rows))
	for _, r := range rows {
		for _, v := range r.values {
			points = append(points, influxdb.Point{
				Measurement: name,
				Series:      v.name,
				Time:        r.ts,
				Value:       v.value,
				Tags:        map[string]string{"imported_from": sourceTag},
			})
		}
	}
	return points
}

// dumpTimeLayouts are the timestamp formats seen across export dumps.
var dumpTimeLayouts = []string{
	"01/02/06 15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02",
}

func parseDumpTime(raw string) (time.Time, error) {
	for _, layout := range dumpTimeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", raw)
}
