package poller

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ewoodhouse/vitalsync/internal/infrastructure/influxdb"
)

// defaultMemberSince bounds backfill when the profile omits the account
// creation date.
const defaultMemberSince = "1970-01-01"

// PassRecorder persists pass history for diagnostics. The engine treats
// recording failures as non-fatal: the journal is never a checkpoint,
// and sync progress is always re-derived from the store.
type PassRecorder interface {
	RecordPass(ctx context.Context, summary PassSummary) error
}

// StatusNotifier announces pass completion to external observers.
// Failures are non-fatal.
type StatusNotifier interface {
	PublishStatus(ctx context.Context, summary PassSummary) error
}

// SeriesResult summarizes the sync of one series within a pass.
type SeriesResult struct {
	Family      string        `json:"family"`
	Series      string        `json:"series"`
	Intervals   int           `json:"intervals"`
	GapDetected bool          `json:"gap_detected"`
	Written     int           `json:"written"`
	Deduped     int           `json:"deduped"`
	Skipped     bool          `json:"skipped"`
	Duration    time.Duration `json:"duration_ns"`

	// Error is the fatal error that aborted the pass at this series,
	// empty when the series synced cleanly.
	Error string `json:"error,omitempty"`
}

// PassSummary summarizes one full sync pass.
type PassSummary struct {
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Series     []SeriesResult `json:"series"`

	// Error is set when the pass aborted instead of completing.
	Error string `json:"error,omitempty"`
}

// Written totals the points written across all series of the pass.
func (s PassSummary) Written() int {
	var total int
	for _, r := range s.Series {
		total += r.Written
	}
	return total
}

// Config carries the engine's tunables.
type Config struct {
	// MaxSpan caps the width of one fetch interval.
	MaxSpan time.Duration

	// PassInterval is the sleep between full passes in Run.
	PassInterval time.Duration

	// Families overrides the built-in family table. Nil uses Families().
	Families []Family
}

// Engine orchestrates the sync pipeline: plan intervals per series,
// fetch them sequentially, transform, and write — for every family, on
// a fixed cadence, forever.
//
// Everything is deliberately sequential. The dominant shared resource is
// the source's global rate limit; parallel fetches would only multiply
// the pressure on it without finishing a pass sooner.
type Engine struct {
	fetcher  *Fetcher
	writer   *Writer
	store    SeriesStore
	families []Family

	maxSpan      time.Duration
	passInterval time.Duration

	journal  PassRecorder
	notifier StatusNotifier

	logger Logger

	// now is replaced in tests.
	now func() time.Time
}

// NewEngine wires the sync pipeline around a source and a store.
//
// Parameters:
//   - source: Remote API capability
//   - store: Time-series sink capability
//   - cfg: Engine tunables
//   - logger: Structured logger (nil for silent operation)
//
// Returns:
//   - *Engine: Ready engine; call Run or RunPass
func NewEngine(source SourceClient, store SeriesStore, cfg Config, logger Logger) *Engine {
	if logger == nil {
		logger = noopLogger{}
	}
	families := cfg.Families
	if families == nil {
		families = Families()
	}
	return &Engine{
		fetcher:      NewFetcher(source, logger),
		writer:       NewWriter(store, logger),
		store:        store,
		families:     families,
		maxSpan:      cfg.MaxSpan,
		passInterval: cfg.PassInterval,
		logger:       logger,
		now:          time.Now,
	}
}

// SetJournal attaches a pass-history recorder.
func (e *Engine) SetJournal(journal PassRecorder) {
	e.journal = journal
}

// SetNotifier attaches a status notifier.
func (e *Engine) SetNotifier(notifier StatusNotifier) {
	e.notifier = notifier
}

// Run executes sync passes forever, sleeping PassInterval between them.
//
// It returns nil when the context is cancelled (clean shutdown) and the
// pass error otherwise; the process exits on error and relies on the
// supervisor to restart it, with gap detection resuming from the store.
func (e *Engine) Run(ctx context.Context) error {
	for {
		summary, err := e.RunPass(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		e.logger.Info("pass complete, sleeping",
			"written", summary.Written(),
			"series", len(summary.Series),
			"sleep", e.passInterval.String())

		if err := sleepCtx(ctx, e.passInterval); err != nil {
			return nil
		}
	}
}

// RunPass executes one full sync pass over every family and series.
//
// Within one series, intervals are fetched and applied oldest-first, so
// the store's watermarks only ever grow outward. Series are independent;
// no cross-series ordering is guaranteed.
//
// Parameters:
//   - ctx: Context; cancellation interrupts fetch backoff and writes
//
// Returns:
//   - PassSummary: Per-series statistics for the pass so far
//   - error: First fatal error (fetch abort or write failure)
func (e *Engine) RunPass(ctx context.Context) (PassSummary, error) {
	summary := PassSummary{StartedAt: e.now().UTC()}

	profile, err := e.fetcher.Profile(ctx)
	if err != nil {
		err = fmt.Errorf("fetching profile: %w", err)
		e.recordAborted(ctx, &summary, err)
		return summary, err
	}

	memberSince, err := parseMemberSince(profile.MemberSince)
	if err != nil {
		e.recordAborted(ctx, &summary, err)
		return summary, err
	}
	e.logger.Info("starting pass", "member_since", memberSince.Format(dateLayout))

	for _, family := range e.families {
		for _, series := range family.Series {
			result, err := e.syncSeries(ctx, family, series, memberSince)
			if err != nil {
				result.Error = err.Error()
			}
			summary.Series = append(summary.Series, result)
			if err != nil {
				e.recordAborted(ctx, &summary, err)
				return summary, err
			}
		}
	}

	summary.FinishedAt = e.now().UTC()

	if e.journal != nil {
		if err := e.journal.RecordPass(ctx, summary); err != nil {
			e.logger.Warn("recording pass history failed", "error", err.Error())
		}
	}
	if e.notifier != nil {
		if err := e.notifier.PublishStatus(ctx, summary); err != nil {
			e.logger.Warn("publishing pass status failed", "error", err.Error())
		}
	}

	return summary, nil
}

// recordAborted journals a pass that ended in a fatal error. The failed
// pass is the one an operator most needs to see in history, so it is
// recorded before the error propagates — detached from ctx so shutdown
// cancellation cannot suppress the record.
func (e *Engine) recordAborted(ctx context.Context, summary *PassSummary, cause error) {
	summary.FinishedAt = e.now().UTC()
	summary.Error = cause.Error()

	if e.journal == nil {
		return
	}
	if err := e.journal.RecordPass(context.WithoutCancel(ctx), *summary); err != nil {
		e.logger.Warn("recording aborted pass failed", "error", err.Error())
	}
}

// syncSeries brings one series up to date: plan, fetch, transform, write.
func (e *Engine) syncSeries(ctx context.Context, family Family, series Series, memberSince time.Time) (SeriesResult, error) {
	started := e.now()
	now := started.UTC()
	result := SeriesResult{Family: family.Name, Series: series.Name}

	// Watermarks come from the store every pass; there is no separate
	// checkpoint, which is what makes restarts safe at any point.
	first, found, err := e.store.FirstTimestamp(ctx, family.Name, series.Key())
	if err != nil {
		return result, fmt.Errorf("querying first timestamp for %s/%s: %w", family.Name, series.Key(), err)
	}
	if !found {
		first = now
	}
	last, found, err := e.store.LastTimestamp(ctx, family.Name, series.Key())
	if err != nil {
		return result, fmt.Errorf("querying last timestamp for %s/%s: %w", family.Name, series.Key(), err)
	}
	if !found {
		last = now
	}

	plan := PlanIntervals(memberSince, first, last, now, e.maxSpan)
	result.Intervals = len(plan.Intervals)
	result.GapDetected = plan.GapDetected

	resource := family.ResourcePath(series)
	transform := series.Transform
	if transform == nil {
		transform = defaultTransform(family.Name, series.Name)
	}

	e.logger.Debug("syncing series",
		"family", family.Name, "series", series.Name,
		"resource", resource, "intervals", len(plan.Intervals),
		"gap", plan.GapDetected)

	var points []influxdb.Point
	for _, iv := range plan.Intervals {
		items, err := e.fetcher.Fetch(ctx, resource, iv)
		if err != nil {
			return result, fmt.Errorf("fetching %s [%s, %s]: %w",
				resource, iv.Start.Format(dateLayout), iv.End.Format(dateLayout), err)
		}
		for _, item := range items {
			if isNullItem(item) {
				continue
			}
			transformed, err := transform(item)
			if err != nil {
				return result, err
			}
			points = append(points, transformed...)
		}
	}

	write, err := e.writer.Write(ctx, family, series, points, plan.GapDetected)
	if err != nil {
		return result, err
	}
	result.Written = write.Written
	result.Deduped = write.Deduped
	result.Skipped = write.Skipped
	result.Duration = e.now().Sub(started)

	e.logger.Info("series synced",
		"family", family.Name, "series", series.Name,
		"intervals", result.Intervals, "written", result.Written,
		"deduped", result.Deduped, "skipped", result.Skipped)

	return result, nil
}

// parseMemberSince parses the profile's account creation date.
func parseMemberSince(s string) (time.Time, error) {
	if s == "" {
		s = defaultMemberSince
	}
	ts, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing member-since date %q: %w", s, err)
	}
	return ts, nil
}

// isNullItem reports whether a raw item is absent or JSON null.
func isNullItem(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
