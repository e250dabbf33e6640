package credentials

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// File permissions for the credential directory and files.
// Tokens grant full API access to the account, keep them owner-only.
const (
	dirPermissions  = 0700
	filePermissions = 0600
)

// Credential file names inside the store directory, one value per file.
const (
	fileClientID     = "client_id"
	fileClientSecret = "client_secret"
	fileAccessToken  = "access_token"
	fileRefreshToken = "refresh_token"
	fileExpiresAt    = "expires_at"
)

// Environment variables used to seed missing credential files on first run.
const (
	envClientID     = "CLIENT_ID"
	envClientSecret = "CLIENT_SECRET"
	envAccessToken  = "ACCESS_TOKEN"
	envRefreshToken = "REFRESH_TOKEN"
	envExpiresAt    = "EXPIRES_AT"
)

// Credentials holds the OAuth2 credential material for the data source.
type Credentials struct {
	ClientID     string
	ClientSecret string
	AccessToken  string
	RefreshToken string

	// ExpiresAt is the access token expiry as a Unix timestamp.
	// Zero means unknown; the source will refresh on first use.
	ExpiresAt int64
}

// Expiry returns the access token expiry as a time.Time.
// Returns the zero time when the expiry is unknown.
func (c Credentials) Expiry() time.Time {
	if c.ExpiresAt == 0 {
		return time.Time{}
	}
	return time.Unix(c.ExpiresAt, 0)
}

// Validate checks that all required credential values are present.
//
// Returns:
//   - error: ErrMissing wrapped with the missing field names, or nil
func (c Credentials) Validate() error {
	var missing []string
	if c.ClientID == "" {
		missing = append(missing, fileClientID)
	}
	if c.ClientSecret == "" {
		missing = append(missing, fileClientSecret)
	}
	if c.AccessToken == "" {
		missing = append(missing, fileAccessToken)
	}
	if c.RefreshToken == "" {
		missing = append(missing, fileRefreshToken)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissing, strings.Join(missing, ", "))
	}
	return nil
}

// Store persists credential material as one value per named file
// in a configured directory.
//
// The layout is deliberately simple so credentials can be inspected
// and seeded by hand or by container tooling.
type Store struct {
	dir string
}

// Open creates a Store rooted at dir, creating the directory if needed.
//
// Parameters:
//   - dir: Directory to hold the credential files
//
// Returns:
//   - *Store: Ready credential store
//   - error: If the directory cannot be created
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: empty directory", ErrInvalidPath)
	}
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("creating credential directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the store's directory path.
func (s *Store) Dir() string {
	return s.dir
}

// Load reads all credential values from the store, seeding any value
// missing on disk from its environment variable and writing the seeded
// value back so later runs no longer need the environment.
//
// Returns:
//   - Credentials: Loaded credential material (fields may be empty)
//   - error: If a file exists but cannot be read, or a seed write fails
func (s *Store) Load() (Credentials, error) {
	var creds Credentials
	var err error

	if creds.ClientID, err = s.loadOrSeed(fileClientID, envClientID); err != nil {
		return Credentials{}, err
	}
	if creds.ClientSecret, err = s.loadOrSeed(fileClientSecret, envClientSecret); err != nil {
		return Credentials{}, err
	}
	if creds.AccessToken, err = s.loadOrSeed(fileAccessToken, envAccessToken); err != nil {
		return Credentials{}, err
	}
	if creds.RefreshToken, err = s.loadOrSeed(fileRefreshToken, envRefreshToken); err != nil {
		return Credentials{}, err
	}

	expires, err := s.loadOrSeed(fileExpiresAt, envExpiresAt)
	if err != nil {
		return Credentials{}, err
	}
	if expires != "" {
		// A malformed expiry is not fatal: the OAuth transport treats an
		// unknown expiry as already expired and refreshes on first use.
		creds.ExpiresAt, _ = strconv.ParseInt(strings.TrimSpace(expires), 10, 64)
	}

	return creds, nil
}

// SaveTokens persists rotated token material (access token, refresh token,
// expiry). Called from the source client's rotation hook; it must complete
// before the next API request so a restart never reuses a revoked token.
//
// Parameters:
//   - accessToken: New access token
//   - refreshToken: New refresh token
//   - expiry: New expiry time (zero time writes 0)
//
// Returns:
//   - error: If any file write fails
func (s *Store) SaveTokens(accessToken, refreshToken string, expiry time.Time) error {
	if err := s.writeValue(fileAccessToken, accessToken); err != nil {
		return err
	}
	if err := s.writeValue(fileRefreshToken, refreshToken); err != nil {
		return err
	}
	var unix int64
	if !expiry.IsZero() {
		unix = expiry.Unix()
	}
	return s.writeValue(fileExpiresAt, strconv.FormatInt(unix, 10))
}

// loadOrSeed reads a value file, falling back to the environment variable
// and persisting the seeded value when the file is absent.
func (s *Store) loadOrSeed(name, envName string) (string, error) {
	value, err := s.readValue(name)
	if err != nil {
		return "", err
	}
	if value != "" {
		return value, nil
	}

	value = strings.TrimSpace(os.Getenv(envName))
	if value == "" {
		return "", nil
	}
	if err := s.writeValue(name, value); err != nil {
		return "", err
	}
	return value, nil
}

// readValue reads one credential file. A missing file is not an error.
func (s *Store) readValue(name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading credential %s: %w", name, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// writeValue writes one credential file with restricted permissions.
func (s *Store) writeValue(name, value string) error {
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, []byte(value), filePermissions); err != nil {
		return fmt.Errorf("writing credential %s: %w", name, err)
	}
	return nil
}
