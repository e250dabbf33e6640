// Package influxdb provides InfluxDB connectivity for VitalSync.
//
// It wraps the official influxdb-client-go v2 library with the patterns
// the sync engine relies on: synchronous batched writes, gap-detection
// queries and connection health monitoring.
//
// # Purpose
//
// This package handles time-series storage for:
//   - Synced health observations (activity, body, sleep series)
//   - Watermark queries (first/last stored timestamp per series)
//   - Bulk-import bookkeeping (value counts, measurement listing)
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "vitalsync",
//	    Bucket: "health",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.WriteBatch(ctx, points, time.Hour)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
//
// # Error Handling
//
// Writes are synchronous: WriteBatch returns only after the server has
// acknowledged every batch, and any failure is wrapped in ErrWriteFailed.
// The sync engine depends on this to keep its stored watermarks honest,
// so there is no fire-and-forget write path here.
package influxdb
