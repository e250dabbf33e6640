// Package fitbit provides the Fitbit Web API client for VitalSync.
//
// It wraps golang.org/x/oauth2 for token refresh and golang.org/x/time/rate
// for a client-side request budget, and exposes the two calls the sync
// engine needs: the user profile and date-ranged time-series fetches.
//
// # Error Classification
//
// Transport and HTTP failures are mapped onto three sentinel errors the
// fetch retry loop understands:
//
//   - ErrTimeout: request timed out
//   - ErrServerError: 5xx response
//   - ErrRateLimited: 429 response (hourly quota exhausted)
//
// Anything else (auth failures, decode errors, unexpected statuses) is
// returned as a plain error and treated as fatal by the caller — masking
// an unknown failure risks silent data gaps.
//
// # Credential Rotation
//
// The OAuth2 transport refreshes the access token automatically. Every
// rotation is passed to the RotationFunc supplied at construction, which
// persists the new tokens before the rotated token is used for a request.
//
// # Usage
//
//	client := fitbit.NewClient(fitbit.Config{
//	    ClientID:     creds.ClientID,
//	    ClientSecret: creds.ClientSecret,
//	    AccessToken:  creds.AccessToken,
//	    RefreshToken: creds.RefreshToken,
//	    Expiry:       creds.Expiry(),
//	}, store.SaveTokens)
//
//	items, err := client.TimeSeries(ctx, "activities/steps", start, end)
package fitbit
