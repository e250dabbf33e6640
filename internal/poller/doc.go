// Package poller implements the incremental synchronization engine.
//
// # Purpose
//
// The engine keeps a time-series store current with a rate-limited
// remote health API: it detects which date ranges are missing per
// series, fetches them in bounded chunks, normalizes the heterogeneous
// payloads into flat points, and writes them idempotently. It is built
// to run forever as a background service and to be killed and restarted
// at any point without losing or duplicating data.
//
// # Pipeline
//
// For every configured family and series, one pass runs:
//
//	PlanIntervals -> Fetcher.Fetch -> transform -> Writer.Write
//
// Progress state is never persisted by the engine itself. Gap detection
// queries the store's first/last stored timestamp each pass, so the
// store is the single source of truth and restarts simply re-derive
// where to resume.
//
// # Sequential By Design
//
// Fetches and writes are serialized. The binding resource is the
// source's global request budget; concurrency would hit the rate limit
// faster without finishing a pass sooner, and a rate-limit backoff can
// block for over an hour. No lock or store connection is held across
// those sleeps.
//
// # Usage
//
//	engine := poller.NewEngine(source, store, poller.Config{
//	    MaxSpan:      27 * 24 * time.Hour,
//	    PassInterval: 4 * time.Hour,
//	}, logger)
//	err := engine.Run(ctx)
//
// # Thread Safety
//
// An Engine drives one sequential loop; its methods are not intended
// for concurrent use. Transforms are pure functions and safe to call
// from anywhere.
package poller
