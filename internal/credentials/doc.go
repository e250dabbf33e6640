// Package credentials persists OAuth2 credential material for the data
// source as one value per named file in a configured directory.
//
// # Layout
//
// Five files inside the store directory:
//
//	client_id
//	client_secret
//	access_token
//	refresh_token
//	expires_at      (Unix timestamp)
//
// # Seeding
//
// On first run, any value missing from disk is read from the matching
// environment variable (CLIENT_ID, CLIENT_SECRET, ACCESS_TOKEN,
// REFRESH_TOKEN, EXPIRES_AT) and written back, so the environment is only
// needed once. A value missing from both places is a fatal configuration
// error surfaced as ErrMissing.
//
// # Rotation
//
// SaveTokens is wired as the source client's token-rotation hook. It writes
// the new access token, refresh token and expiry to disk before the next
// request is issued, so a process restart after a rotation never presents a
// revoked token.
package credentials
