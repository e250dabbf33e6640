package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ewoodhouse/vitalsync/internal/fitbit"
)

// dailySource serves one synthetic {dateTime, value} item per requested
// day for every resource.
type dailySource struct {
	memberSince string
	value       string
	fetchErr    error
	resources   []string
}

func (d *dailySource) Profile(context.Context) (fitbit.Profile, error) {
	return fitbit.Profile{MemberSince: d.memberSince}, nil
}

func (d *dailySource) TimeSeries(_ context.Context, resource string, start, end time.Time) ([]json.RawMessage, error) {
	if d.fetchErr != nil {
		return nil, d.fetchErr
	}
	d.resources = append(d.resources, resource)

	var items []json.RawMessage
	for cur := start.Truncate(day); !cur.After(end); cur = cur.Add(day) {
		items = append(items, json.RawMessage(
			fmt.Sprintf(`{"dateTime":%q,"value":%q}`, cur.Format(dateLayout), d.value)))
	}
	return items, nil
}

type recordedPass struct {
	summaries []PassSummary
	err       error
}

func (r *recordedPass) RecordPass(_ context.Context, summary PassSummary) error {
	r.summaries = append(r.summaries, summary)
	return r.err
}

func (r *recordedPass) PublishStatus(_ context.Context, summary PassSummary) error {
	r.summaries = append(r.summaries, summary)
	return r.err
}

func stepsOnly() []Family {
	return []Family{
		{Name: "activities", Precision: time.Hour, Series: []Series{{Name: "steps"}}},
	}
}

func testEngine(source SourceClient, store SeriesStore, now time.Time) *Engine {
	e := NewEngine(source, store, Config{
		MaxSpan:      27 * day,
		PassInterval: 4 * time.Hour,
		Families:     stepsOnly(),
	}, nil)
	e.now = func() time.Time { return now }
	return e
}

func TestRunPass_Backfill(t *testing.T) {
	source := &dailySource{memberSince: "2020-01-01", value: "100"}
	store := newFakeStore()
	now := time.Date(2020, 1, 5, 12, 0, 0, 0, time.UTC)

	engine := testEngine(source, store, now)
	summary, err := engine.RunPass(context.Background())
	if err != nil {
		t.Fatalf("RunPass() error = %v", err)
	}

	if len(summary.Series) != 1 {
		t.Fatalf("summary covers %d series, want 1", len(summary.Series))
	}
	result := summary.Series[0]
	if result.Intervals != 1 {
		t.Errorf("Intervals = %d, want 1 (gap below max span)", result.Intervals)
	}
	if !result.GapDetected {
		t.Error("GapDetected = false for empty store")
	}
	if result.Written != 5 {
		t.Errorf("Written = %d, want 5 daily points", result.Written)
	}

	first, found, _ := store.FirstTimestamp(context.Background(), "activities", "steps")
	if !found || !first.Equal(date(2020, 1, 1)) {
		t.Errorf("store first = %v (found=%v), want 2020-01-01", first, found)
	}
	last, found, _ := store.LastTimestamp(context.Background(), "activities", "steps")
	if !found || !last.Equal(date(2020, 1, 5)) {
		t.Errorf("store last = %v (found=%v), want 2020-01-05", last, found)
	}
}

func TestRunPass_SecondPassWritesNothing(t *testing.T) {
	source := &dailySource{memberSince: "2020-01-01", value: "100"}
	store := newFakeStore()
	now := time.Date(2020, 1, 5, 12, 0, 0, 0, time.UTC)
	engine := testEngine(source, store, now)

	if _, err := engine.RunPass(context.Background()); err != nil {
		t.Fatalf("first RunPass() error = %v", err)
	}
	batchesAfterFirst := store.batches

	summary, err := engine.RunPass(context.Background())
	if err != nil {
		t.Fatalf("second RunPass() error = %v", err)
	}

	// No new source data: the keep-alive fetch dedups against itself
	// and the count-skip heuristic suppresses the write entirely.
	if got := summary.Written(); got != 0 {
		t.Errorf("second pass wrote %d points, want 0", got)
	}
	if !summary.Series[0].Skipped {
		t.Error("second pass write not skipped")
	}
	if store.batches != batchesAfterFirst {
		t.Errorf("store batches grew from %d to %d on an idempotent pass", batchesAfterFirst, store.batches)
	}
}

func TestRunPass_FatalFetchAborts(t *testing.T) {
	fatal := errors.New("auth defect")
	source := &dailySource{memberSince: "2020-01-01", fetchErr: fatal}
	store := newFakeStore()
	engine := testEngine(source, store, time.Date(2020, 1, 5, 12, 0, 0, 0, time.UTC))

	_, err := engine.RunPass(context.Background())
	if !errors.Is(err, fatal) {
		t.Fatalf("RunPass() error = %v, want the fatal fetch error", err)
	}
	if store.batches != 0 {
		t.Errorf("store received %d batches after an aborted pass, want 0", store.batches)
	}
}

func TestRunPass_JournalAndNotifier(t *testing.T) {
	source := &dailySource{memberSince: "2020-01-01", value: "1"}
	store := newFakeStore()
	engine := testEngine(source, store, time.Date(2020, 1, 5, 12, 0, 0, 0, time.UTC))

	journal := &recordedPass{}
	notifier := &recordedPass{}
	engine.SetJournal(journal)
	engine.SetNotifier(notifier)

	if _, err := engine.RunPass(context.Background()); err != nil {
		t.Fatalf("RunPass() error = %v", err)
	}
	if len(journal.summaries) != 1 {
		t.Errorf("journal recorded %d passes, want 1", len(journal.summaries))
	}
	if len(notifier.summaries) != 1 {
		t.Errorf("notifier published %d passes, want 1", len(notifier.summaries))
	}
}

func TestRunPass_AbortedPassIsJournaled(t *testing.T) {
	source := &dailySource{memberSince: "2020-01-01", value: "1"}
	store := newFakeStore()
	store.writeErr = errors.New("bucket gone")
	engine := testEngine(source, store, time.Date(2020, 1, 5, 12, 0, 0, 0, time.UTC))

	journal := &recordedPass{}
	engine.SetJournal(journal)

	_, err := engine.RunPass(context.Background())
	if !errors.Is(err, store.writeErr) {
		t.Fatalf("RunPass() error = %v, want the store failure", err)
	}

	// The pass that failed is exactly the one history must show.
	if len(journal.summaries) != 1 {
		t.Fatalf("journal recorded %d passes for an aborted pass, want 1", len(journal.summaries))
	}
	recorded := journal.summaries[0]
	if recorded.Error == "" {
		t.Error("recorded aborted pass has no error")
	}
	if recorded.FinishedAt.IsZero() {
		t.Error("recorded aborted pass has no finish time")
	}
	if len(recorded.Series) != 1 {
		t.Fatalf("recorded aborted pass covers %d series, want 1", len(recorded.Series))
	}
	if recorded.Series[0].Error == "" {
		t.Error("failing series result has no error")
	}
}

// ctxCheckRecorder captures the context state seen by RecordPass.
type ctxCheckRecorder struct {
	ctxErrs []error
}

func (r *ctxCheckRecorder) RecordPass(ctx context.Context, _ PassSummary) error {
	r.ctxErrs = append(r.ctxErrs, ctx.Err())
	return nil
}

func TestRunPass_AbortedPassJournaledAfterCancel(t *testing.T) {
	source := &dailySource{memberSince: "2020-01-01", fetchErr: context.Canceled}
	store := newFakeStore()
	engine := testEngine(source, store, time.Date(2020, 1, 5, 12, 0, 0, 0, time.UTC))

	journal := &ctxCheckRecorder{}
	engine.SetJournal(journal)

	// Shutdown cancels the pass context; the aborted pass must still
	// reach the journal, so the record runs detached from that context.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := engine.RunPass(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("RunPass() error = %v, want context.Canceled", err)
	}
	if len(journal.ctxErrs) != 1 {
		t.Fatalf("journal recorded %d passes after cancellation, want 1", len(journal.ctxErrs))
	}
	if journal.ctxErrs[0] != nil {
		t.Errorf("journal saw context error %v, want detached context", journal.ctxErrs[0])
	}
}

func TestRunPass_JournalFailureIsNonFatal(t *testing.T) {
	source := &dailySource{memberSince: "2020-01-01", value: "1"}
	store := newFakeStore()
	engine := testEngine(source, store, time.Date(2020, 1, 5, 12, 0, 0, 0, time.UTC))

	engine.SetJournal(&recordedPass{err: errors.New("disk full")})

	if _, err := engine.RunPass(context.Background()); err != nil {
		t.Errorf("RunPass() error = %v, journal failures must not abort the pass", err)
	}
}

func TestRunPass_EmptyMemberSinceDefaults(t *testing.T) {
	source := &dailySource{memberSince: "", value: "1"}
	store := newFakeStore()
	engine := testEngine(source, store, time.Date(1970, 1, 3, 0, 0, 0, 0, time.UTC))

	summary, err := engine.RunPass(context.Background())
	if err != nil {
		t.Fatalf("RunPass() error = %v", err)
	}
	if !summary.Series[0].GapDetected {
		t.Error("expected backfill gap from the epoch default")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	source := &dailySource{memberSince: "2020-01-01", value: "1"}
	store := newFakeStore()
	engine := testEngine(source, store, time.Date(2020, 1, 5, 12, 0, 0, 0, time.UTC))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- engine.Run(ctx) }()

	// Let the first pass complete, then cancel during the inter-pass
	// sleep.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v, want nil on cancellation", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not stop after cancellation")
	}
}
