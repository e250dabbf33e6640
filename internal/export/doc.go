// Package export bulk-loads Fitbit account data exports into the
// time-series store.
//
// # Purpose
//
// The live sync only reaches data the web API exposes. An account data
// export (Google Takeout style) carries intraday series the API does
// not: per-minute heart rate, calories, altitude, oxygen variation and
// similar. This package reads the dump's user-site-export directory,
// casts each measurement's fields per a fixed table, and writes the
// result tagged imported_from=data_dump.
//
// # Resumability
//
// Loading a multi-year dump can be interrupted. Three checks make a
// re-run cheap:
//
//   - rows before the measurement's stored last timestamp are dropped
//   - a measurement whose stored value count matches the dump is skipped
//   - duplicate timestamps within the dump itself are deduplicated
//
// # Usage
//
//	loader := export.NewLoader(store, log)
//	results, err := loader.LoadDump(ctx, "/dump")
//
// # Thread Safety
//
// A Loader is not safe for concurrent use. Run one LoadDump at a time.
package export
