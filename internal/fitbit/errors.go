package fitbit

import "errors"

// Sentinel errors for source API failures.
//
// The first three are the transient conditions the fetch retry loop
// handles; anything else coming out of this package is treated as fatal
// by the caller. Check with errors.Is():
//
//	if errors.Is(err, fitbit.ErrRateLimited) {
//	    // back off until the rate-limit window resets
//	}
var (
	// ErrTimeout indicates the request timed out at the transport level.
	ErrTimeout = errors.New("fitbit: request timed out")

	// ErrServerError indicates the source responded with a 5xx status.
	ErrServerError = errors.New("fitbit: server error")

	// ErrRateLimited indicates the source rejected the request because the
	// per-user hourly request quota is exhausted (HTTP 429).
	ErrRateLimited = errors.New("fitbit: rate limit exceeded")
)
