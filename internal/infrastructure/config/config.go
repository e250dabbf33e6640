package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for VitalSync.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Source      SourceConfig      `yaml:"source"`
	Credentials CredentialsConfig `yaml:"credentials"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	Sync        SyncConfig        `yaml:"sync"`
	Journal     JournalConfig     `yaml:"journal"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// SourceConfig contains settings for the remote data source (Fitbit Web API).
type SourceConfig struct {
	// RedirectURL is the OAuth2 callback URL registered with the source.
	RedirectURL string `yaml:"redirect_url"`

	// Units selects the unit system via the Accept-Language header
	// (e.g. "en_US" for US units, anything else for metric).
	Units string `yaml:"units"`

	// Timeout is the per-request HTTP timeout in seconds.
	Timeout int `yaml:"timeout"`
}

// CredentialsConfig contains settings for the on-disk credential store.
type CredentialsConfig struct {
	// Path is the directory holding one file per credential value
	// (client_id, client_secret, access_token, refresh_token, expires_at).
	Path string `yaml:"path"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	URL       string `yaml:"url"`
	Token     string `yaml:"token"`
	Org       string `yaml:"org"`
	Bucket    string `yaml:"bucket"`
	BatchSize int    `yaml:"batch_size"`
}

// SyncConfig contains settings for the sync loop.
type SyncConfig struct {
	// PassInterval is how long to sleep between full sync passes.
	PassInterval time.Duration `yaml:"pass_interval"`

	// MaxSpanDays caps the date range of a single source request.
	// Body endpoints reject ranges over 31 days; stay under that.
	MaxSpanDays int `yaml:"max_span_days"`
}

// JournalConfig contains settings for the local pass-history journal.
type JournalConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains settings for the optional status publisher.
type MQTTConfig struct {
	Enabled     bool             `yaml:"enabled"`
	Broker      MQTTBrokerConfig `yaml:"broker"`
	Auth        MQTTAuthConfig   `yaml:"auth"`
	QoS         int              `yaml:"qos"`
	TopicPrefix string           `yaml:"topic_prefix"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: VITALSYNC_SECTION_KEY
// For example: VITALSYNC_INFLUXDB_TOKEN, VITALSYNC_CREDENTIALS_PATH
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Source: SourceConfig{
			Units:   "en_US",
			Timeout: 30,
		},
		Credentials: CredentialsConfig{
			Path: "./data/credentials",
		},
		InfluxDB: InfluxDBConfig{
			URL:       "http://localhost:8086",
			Org:       "vitalsync",
			Bucket:    "fitbit",
			BatchSize: 2500,
		},
		Sync: SyncConfig{
			PassInterval: 4 * time.Hour,
			MaxSpanDays:  27,
		},
		Journal: JournalConfig{
			Enabled:     true,
			Path:        "./data/vitalsync.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "vitalsync",
			},
			QoS:         1,
			TopicPrefix: "vitalsync",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: VITALSYNC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Credentials
	if v := os.Getenv("VITALSYNC_CREDENTIALS_PATH"); v != "" {
		cfg.Credentials.Path = v
	}

	// Source
	if v := os.Getenv("VITALSYNC_SOURCE_REDIRECT_URL"); v != "" {
		cfg.Source.RedirectURL = v
	}
	if v := os.Getenv("VITALSYNC_SOURCE_UNITS"); v != "" {
		cfg.Source.Units = v
	}

	// InfluxDB
	if v := os.Getenv("VITALSYNC_INFLUXDB_URL"); v != "" {
		cfg.InfluxDB.URL = v
	}
	if v := os.Getenv("VITALSYNC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
	if v := os.Getenv("VITALSYNC_INFLUXDB_ORG"); v != "" {
		cfg.InfluxDB.Org = v
	}
	if v := os.Getenv("VITALSYNC_INFLUXDB_BUCKET"); v != "" {
		cfg.InfluxDB.Bucket = v
	}

	// Journal
	if v := os.Getenv("VITALSYNC_JOURNAL_PATH"); v != "" {
		cfg.Journal.Path = v
	}

	// MQTT
	if v := os.Getenv("VITALSYNC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("VITALSYNC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("VITALSYNC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Sync
	if v := os.Getenv("VITALSYNC_SYNC_PASS_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Sync.PassInterval = d
		}
	}
	if v := os.Getenv("VITALSYNC_SYNC_MAX_SPAN_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sync.MaxSpanDays = n
		}
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Credentials.Path == "" {
		errs = append(errs, "credentials.path is required")
	}

	if c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required")
	}
	if c.InfluxDB.Org == "" {
		errs = append(errs, "influxdb.org is required")
	}
	if c.InfluxDB.Bucket == "" {
		errs = append(errs, "influxdb.bucket is required")
	}
	if c.InfluxDB.BatchSize < 0 {
		errs = append(errs, "influxdb.batch_size must not be negative")
	}

	if c.Sync.PassInterval <= 0 {
		errs = append(errs, "sync.pass_interval must be positive")
	}
	// The source rejects body time-series requests spanning more than 31 days.
	if c.Sync.MaxSpanDays < 1 || c.Sync.MaxSpanDays > 31 {
		errs = append(errs, "sync.max_span_days must be between 1 and 31")
	}

	if c.Journal.Enabled && c.Journal.Path == "" {
		errs = append(errs, "journal.path is required when journal is enabled")
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
		if c.MQTT.TopicPrefix == "" {
			errs = append(errs, "mqtt.topic_prefix is required when mqtt is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// MaxSpan returns the maximum request span as a Duration.
func (c *Config) MaxSpan() time.Duration {
	return time.Duration(c.Sync.MaxSpanDays) * 24 * time.Hour
}

// SourceTimeout returns the source HTTP timeout as a Duration.
func (c *Config) SourceTimeout() time.Duration {
	return time.Duration(c.Source.Timeout) * time.Second
}
