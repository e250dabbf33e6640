package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ewoodhouse/vitalsync/internal/credentials"
)

// TestGetConfigPath verifies config path resolution.
func TestGetConfigPath(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		t.Setenv("VITALSYNC_CONFIG", "")
		if got := getConfigPath(); got != defaultConfigPath {
			t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
		}
	})

	t.Run("env override", func(t *testing.T) {
		t.Setenv("VITALSYNC_CONFIG", "/etc/vitalsync/config.yaml")
		if got := getConfigPath(); got != "/etc/vitalsync/config.yaml" {
			t.Errorf("getConfigPath() = %q", got)
		}
	})
}

// TestRun_InvalidConfig verifies run fails with a configuration error
// when the config file is unreadable.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("VITALSYNC_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
	if !errors.Is(err, errConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

// TestRun_MissingCredentials verifies run fails before touching the
// network when the credential store is empty and nothing is seeded.
func TestRun_MissingCredentials(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
credentials:
  path: "` + filepath.Join(tmpDir, "creds") + `"

influxdb:
  url: "http://127.0.0.1:8086"
  org: "vitalsync"
  bucket: "fitbit"

journal:
  enabled: false

logging:
  level: error
  format: text
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	t.Setenv("VITALSYNC_CONFIG", configPath)
	// Make sure nothing is seeded from the environment.
	for _, name := range []string{"CLIENT_ID", "CLIENT_SECRET", "ACCESS_TOKEN", "REFRESH_TOKEN", "EXPIRES_AT"} {
		t.Setenv(name, "")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with empty credential store")
	}
	if !errors.Is(err, credentials.ErrMissing) {
		t.Errorf("expected missing-credentials error, got %v", err)
	}
}
