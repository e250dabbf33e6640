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

// scriptedSource returns one queued response per call.
type scriptedSource struct {
	errs  []error
	items []json.RawMessage
	calls int
}

func (s *scriptedSource) Profile(context.Context) (fitbit.Profile, error) {
	defer func() { s.calls++ }()
	if s.calls < len(s.errs) && s.errs[s.calls] != nil {
		return fitbit.Profile{}, s.errs[s.calls]
	}
	return fitbit.Profile{MemberSince: "2020-01-01"}, nil
}

func (s *scriptedSource) TimeSeries(_ context.Context, _ string, _, _ time.Time) ([]json.RawMessage, error) {
	defer func() { s.calls++ }()
	if s.calls < len(s.errs) && s.errs[s.calls] != nil {
		return nil, s.errs[s.calls]
	}
	return s.items, nil
}

// recordSleeps replaces the fetcher's sleep with one that only records.
func recordSleeps(f *Fetcher) *[]time.Duration {
	var slept []time.Duration
	f.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return &slept
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Decision
	}{
		{"timeout", fitbit.ErrTimeout, Decision{Retry: true, Wait: 15 * time.Second}},
		{"wrapped timeout", fmt.Errorf("request: %w", fitbit.ErrTimeout), Decision{Retry: true, Wait: 15 * time.Second}},
		{"server error", fitbit.ErrServerError, Decision{Retry: true, Wait: 15 * time.Second}},
		{"rate limited", fitbit.ErrRateLimited, Decision{Retry: true, Wait: 3610 * time.Second}},
		{"unexpected is fatal", errors.New("token revoked"), Decision{}},
		{"context cancellation is fatal", context.Canceled, Decision{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFetch_RetriesTransientsThenSucceeds(t *testing.T) {
	payload := []json.RawMessage{json.RawMessage(`{"dateTime":"2020-01-01","value":"1"}`)}
	source := &scriptedSource{
		errs:  []error{fitbit.ErrTimeout, fitbit.ErrServerError, fitbit.ErrRateLimited, nil},
		items: payload,
	}
	f := NewFetcher(source, nil)
	slept := recordSleeps(f)

	items, err := f.Fetch(context.Background(), "activities/steps", Interval{date(2020, 1, 1), date(2020, 1, 5)})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(items) != 1 {
		t.Errorf("Fetch() returned %d items, want 1", len(items))
	}

	// One sleep before each retry, none after the success.
	want := []time.Duration{15 * time.Second, 15 * time.Second, 3610 * time.Second}
	if len(*slept) != len(want) {
		t.Fatalf("slept %d times (%v), want %d", len(*slept), *slept, len(want))
	}
	for i, d := range want {
		if (*slept)[i] != d {
			t.Errorf("sleep %d = %v, want %v", i, (*slept)[i], d)
		}
	}
	if source.calls != 4 {
		t.Errorf("source called %d times, want 4", source.calls)
	}
}

func TestFetch_FatalErrorAborts(t *testing.T) {
	fatal := errors.New("invalid resource")
	source := &scriptedSource{errs: []error{fatal}}
	f := NewFetcher(source, nil)
	slept := recordSleeps(f)

	_, err := f.Fetch(context.Background(), "activities/nope", Interval{date(2020, 1, 1), date(2020, 1, 1)})
	if !errors.Is(err, fatal) {
		t.Fatalf("Fetch() error = %v, want the fatal error", err)
	}
	if len(*slept) != 0 {
		t.Errorf("slept %d times before a fatal error, want 0", len(*slept))
	}
	if source.calls != 1 {
		t.Errorf("source called %d times, want 1", source.calls)
	}
}

func TestFetch_CancelledDuringBackoff(t *testing.T) {
	source := &scriptedSource{errs: []error{fitbit.ErrTimeout, fitbit.ErrTimeout}}
	f := NewFetcher(source, nil)
	f.sleep = func(ctx context.Context, _ time.Duration) error {
		return context.Canceled
	}

	_, err := f.Fetch(context.Background(), "activities/steps", Interval{date(2020, 1, 1), date(2020, 1, 1)})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Fetch() error = %v, want context.Canceled", err)
	}
	if source.calls != 1 {
		t.Errorf("source called %d times after cancellation, want 1", source.calls)
	}
}

func TestProfile_Retries(t *testing.T) {
	source := &scriptedSource{errs: []error{fitbit.ErrServerError, nil}}
	f := NewFetcher(source, nil)
	slept := recordSleeps(f)

	profile, err := f.Profile(context.Background())
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if profile.MemberSince != "2020-01-01" {
		t.Errorf("MemberSince = %q", profile.MemberSince)
	}
	if len(*slept) != 1 {
		t.Errorf("slept %d times, want 1", len(*slept))
	}
}

func TestSleepCtx(t *testing.T) {
	if err := sleepCtx(context.Background(), time.Millisecond); err != nil {
		t.Errorf("sleepCtx() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepCtx(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("sleepCtx() with cancelled context error = %v, want context.Canceled", err)
	}
}
