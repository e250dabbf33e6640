package poller

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ewoodhouse/vitalsync/internal/fitbit"
)

// Retry delays. The source does not expose a reliable rate-limit reset
// header, so the rate-limit sleep conservatively covers the full rolling
// window plus a safety margin.
const (
	transientRetryDelay = 15 * time.Second
	rateLimitDelay      = 3610 * time.Second
)

// SourceClient is the capability the fetcher needs from the remote API.
// *fitbit.Client satisfies it.
type SourceClient interface {
	Profile(ctx context.Context) (fitbit.Profile, error)
	TimeSeries(ctx context.Context, resource string, start, end time.Time) ([]json.RawMessage, error)
}

// Logger is the minimal logging capability the sync packages need.
// *logging.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Decision is the outcome of classifying one failed fetch attempt.
type Decision struct {
	// Retry reports whether the attempt should be repeated. False means
	// the error is fatal for the pass.
	Retry bool

	// Wait is how long to sleep before the retry. Zero when Retry is
	// false.
	Wait time.Duration
}

// Classify maps a fetch error onto a retry decision.
//
// Timeouts and server-side errors retry after a short fixed delay,
// indefinitely: the service is meant to outlast source outages. Hitting
// the rate limit pauses for the full reset window. Anything else is not
// transience but a logic or auth defect, and aborts the pass so the
// operator sees it.
func Classify(err error) Decision {
	switch {
	case errors.Is(err, fitbit.ErrTimeout), errors.Is(err, fitbit.ErrServerError):
		return Decision{Retry: true, Wait: transientRetryDelay}
	case errors.Is(err, fitbit.ErrRateLimited):
		return Decision{Retry: true, Wait: rateLimitDelay}
	default:
		return Decision{}
	}
}

// Fetcher wraps a SourceClient with the retry policy. Callers never see
// transient failures: Fetch blocks, possibly for over an hour under
// rate-limit backoff, until it has a payload or a fatal error.
//
// The sleeps happen inside the fetcher with no lock or store connection
// held; the sync engine acquires store connections per query, after the
// fetch has completed.
type Fetcher struct {
	source SourceClient
	logger Logger

	// sleep is the blocking wait between retries. Tests replace it to
	// observe delays without real time passing.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewFetcher creates a Fetcher around a source client.
func NewFetcher(source SourceClient, logger Logger) *Fetcher {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Fetcher{
		source: source,
		logger: logger,
		sleep:  sleepCtx,
	}
}

// Fetch retrieves one resource over one interval, retrying transient
// failures per Classify until it succeeds or hits a fatal error.
//
// Parameters:
//   - ctx: Context; cancellation interrupts both requests and backoff
//   - resource: Source API resource path
//   - iv: Inclusive date range to fetch
//
// Returns:
//   - []json.RawMessage: Raw items for the interval (may be empty)
//   - error: Fatal fetch error or context cancellation
func (f *Fetcher) Fetch(ctx context.Context, resource string, iv Interval) ([]json.RawMessage, error) {
	for {
		items, err := f.source.TimeSeries(ctx, resource, iv.Start, iv.End)
		if err == nil {
			return items, nil
		}
		if waitErr := f.backoff(ctx, err, "resource", resource,
			"start", iv.Start.Format(dateLayout), "end", iv.End.Format(dateLayout)); waitErr != nil {
			return nil, waitErr
		}
	}
}

// Profile retrieves the user profile with the same retry policy as
// Fetch. The profile bounds historical backfill, so a pass cannot start
// without it.
func (f *Fetcher) Profile(ctx context.Context) (fitbit.Profile, error) {
	for {
		profile, err := f.source.Profile(ctx)
		if err == nil {
			return profile, nil
		}
		if waitErr := f.backoff(ctx, err, "resource", "profile"); waitErr != nil {
			return fitbit.Profile{}, waitErr
		}
	}
}

// backoff classifies err and performs the retry sleep. A non-nil return
// means the caller must stop: either the error was fatal or the context
// ended during the wait.
func (f *Fetcher) backoff(ctx context.Context, err error, logArgs ...any) error {
	decision := Classify(err)
	if !decision.Retry {
		return err
	}

	f.logger.Warn("transient fetch failure, retrying",
		append(logArgs, "reason", err.Error(), "wait", decision.Wait.String())...)

	return f.sleep(ctx, decision.Wait)
}

// sleepCtx blocks for d or until the context is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
