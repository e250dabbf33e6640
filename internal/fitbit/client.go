package fitbit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// Default endpoints and limits for the Fitbit Web API.
const (
	defaultBaseURL = "https://api.fitbit.com"
	authPath       = "https://www.fitbit.com/oauth2/authorize"
	tokenPath      = "/oauth2/token"

	// The API allows 150 requests per user per rolling hour. The local
	// limiter stays just under that so a healthy pass never trips 429;
	// the fetch retry loop still handles it when shared usage does.
	requestsPerHour = 150

	defaultTimeout = 30 * time.Second

	// maxResponseSize bounds response bodies. Even a 27-day sleep range
	// stays far below this.
	maxResponseSize = 16 << 20 // 16 MB

	dateFormat = "2006-01-02"
)

// RotationFunc is invoked whenever the OAuth2 transport rotates the access
// token. It must persist the new material durably before returning; the
// next API request is not issued until it succeeds.
type RotationFunc func(accessToken, refreshToken string, expiry time.Time) error

// Config contains everything needed to construct a Client.
type Config struct {
	ClientID     string
	ClientSecret string
	AccessToken  string
	RefreshToken string

	// Expiry of the access token. The zero time forces a refresh on the
	// first request, which is harmless.
	Expiry time.Time

	// RedirectURL is the OAuth2 callback registered with the application.
	RedirectURL string

	// Units selects the unit system via the Accept-Language header
	// (empty sends none, which yields metric).
	Units string

	// Timeout is the per-request HTTP timeout. Zero uses the default.
	Timeout time.Duration

	// BaseURL overrides the API host. Used by tests.
	BaseURL string
}

// Client talks to the Fitbit Web API with OAuth2 token refresh, durable
// credential rotation and a client-side request budget.
//
// Thread Safety: all methods are safe for concurrent use, although the
// sync engine deliberately issues requests sequentially.
type Client struct {
	baseURL    string
	units      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a Client from stored credential material.
//
// Token refresh is handled transparently by the OAuth2 transport; every
// rotation is reported through onRotate before the rotated token is used,
// so a crash between rotation and persistence can never strand a revoked
// refresh token on disk.
//
// Parameters:
//   - cfg: Credential material and connection settings
//   - onRotate: Persistence hook for rotated tokens (may be nil)
//
// Returns:
//   - *Client: Ready API client
func NewClient(cfg Config, onRotate RotationFunc) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:   authPath,
			TokenURL:  baseURL + tokenPath,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
	token := &oauth2.Token{
		AccessToken:  cfg.AccessToken,
		RefreshToken: cfg.RefreshToken,
		Expiry:       cfg.Expiry,
	}

	// The refresh requests issued by the token source go through a plain
	// client with the same timeout as API calls.
	refreshCtx := context.WithValue(context.Background(),
		oauth2.HTTPClient, &http.Client{Timeout: timeout})

	source := &rotatingTokenSource{
		source:   oauthCfg.TokenSource(refreshCtx, token),
		lastSeen: cfg.AccessToken,
		onRotate: onRotate,
	}

	httpClient := oauth2.NewClient(refreshCtx, source)
	httpClient.Timeout = timeout

	return &Client{
		baseURL:    baseURL,
		units:      cfg.Units,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Every(time.Hour/requestsPerHour), 1),
	}
}

// Profile fetches the user profile.
//
// Parameters:
//   - ctx: Context for cancellation
//
// Returns:
//   - Profile: Profile fields used by the sync engine
//   - error: Classified API error (see errors.go) or decode failure
func (c *Client) Profile(ctx context.Context) (Profile, error) {
	body, err := c.get(ctx, c.baseURL+"/1/user/-/profile.json")
	if err != nil {
		return Profile{}, err
	}

	var payload struct {
		User Profile `json:"user"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return Profile{}, fmt.Errorf("fitbit: decoding profile: %w", err)
	}
	return payload.User, nil
}

// TimeSeries fetches one resource over an inclusive date range.
//
// The resource path follows the API layout, e.g. "activities/steps" or
// "sleep". The sleep resource is served by API version 1.2; everything
// else by version 1.
//
// The response envelope is a single-key object whose value is the array
// of items ({"activities-steps": [...]}); the items are returned raw so
// the transform layer can decode each family's shape.
//
// Parameters:
//   - ctx: Context for cancellation
//   - resource: API resource path without version or user prefix
//   - start, end: Inclusive date range
//
// Returns:
//   - []json.RawMessage: Raw items for the range (may be empty)
//   - error: Classified API error or decode failure
func (c *Client) TimeSeries(ctx context.Context, resource string, start, end time.Time) ([]json.RawMessage, error) {
	version := "1"
	if resource == "sleep" {
		version = "1.2"
	}

	url := fmt.Sprintf("%s/%s/user/-/%s/date/%s/%s.json",
		c.baseURL, version, resource,
		start.Format(dateFormat), end.Format(dateFormat))

	body, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("fitbit: decoding %s response: %w", resource, err)
	}

	// The sleep envelope carries extra non-array keys (summary,
	// pagination); the item list is the only non-null array value. A
	// null value also unmarshals cleanly into a slice, so it must be
	// skipped explicitly or map iteration order decides which key wins.
	for _, raw := range envelope {
		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
			continue
		}
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err == nil {
			return items, nil
		}
	}
	return nil, fmt.Errorf("fitbit: no item list in %s response", resource)
}

// get performs one rate-limited GET and classifies failures.
func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("fitbit: waiting for request budget: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fitbit: creating request: %w", err)
	}
	if c.units != "" {
		req.Header.Set("Accept-Language", c.units)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("fitbit: reading response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w (HTTP %d)", ErrRateLimited, resp.StatusCode)
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w (HTTP %d)", ErrServerError, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("fitbit: unexpected status %d: %s", resp.StatusCode, truncate(body, 256))
	}

	return body, nil
}

// classifyTransportError maps transport failures onto the sentinel errors
// the retry loop understands. Anything unrecognised stays fatal.
func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("fitbit: request failed: %w", err)
}

// truncate clips a response body for error messages.
func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// rotatingTokenSource wraps an oauth2.TokenSource and reports every token
// rotation through onRotate before handing the token to the transport.
// The persistence hook therefore completes before any request can use the
// new token.
type rotatingTokenSource struct {
	mu       sync.Mutex
	source   oauth2.TokenSource
	lastSeen string
	onRotate RotationFunc
}

// Token implements oauth2.TokenSource.
func (s *rotatingTokenSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, err := s.source.Token()
	if err != nil {
		return nil, err
	}

	if token.AccessToken != s.lastSeen {
		if s.onRotate != nil {
			if err := s.onRotate(token.AccessToken, token.RefreshToken, token.Expiry); err != nil {
				return nil, fmt.Errorf("fitbit: persisting rotated credentials: %w", err)
			}
		}
		s.lastSeen = token.AccessToken
	}

	return token, nil
}
