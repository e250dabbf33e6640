package credentials

import "errors"

// Sentinel errors for credential operations.
//
// These errors can be checked using errors.Is() for specific handling:
//
//	if errors.Is(err, credentials.ErrMissing) {
//	    // configuration error: exit before doing any sync work
//	}
var (
	// ErrMissing indicates one or more required credential values are absent
	// from both the store and the environment. This is a startup
	// configuration error, not a transient condition.
	ErrMissing = errors.New("credentials: required value missing")

	// ErrInvalidPath indicates the store directory path is unusable.
	ErrInvalidPath = errors.New("credentials: invalid store path")
)
