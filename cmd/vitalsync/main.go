// VitalSync - incremental Fitbit to InfluxDB sync service
//
// VitalSync keeps a personal time-series store current with a Fitbit
// account: it discovers what each series already holds, fetches only the
// missing date ranges, and repeats on a fixed cadence, forever. Bulk
// history from account data exports is loaded by the companion
// vitalsync-load binary.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/ewoodhouse/vitalsync/migrations"

	"github.com/ewoodhouse/vitalsync/internal/credentials"
	"github.com/ewoodhouse/vitalsync/internal/fitbit"
	"github.com/ewoodhouse/vitalsync/internal/infrastructure/config"
	"github.com/ewoodhouse/vitalsync/internal/infrastructure/database"
	"github.com/ewoodhouse/vitalsync/internal/infrastructure/influxdb"
	"github.com/ewoodhouse/vitalsync/internal/infrastructure/logging"
	"github.com/ewoodhouse/vitalsync/internal/infrastructure/mqtt"
	"github.com/ewoodhouse/vitalsync/internal/journal"
	"github.com/ewoodhouse/vitalsync/internal/poller"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// Exit codes. Configuration problems (bad config file, missing
// credentials) exit 2 so supervisors can tell them from runtime failures.
const (
	exitFailure = 1
	exitConfig  = 2
)

// errConfiguration marks failures an operator must fix before a restart
// can possibly succeed.
var errConfiguration = errors.New("configuration error")

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, errConfiguration) || errors.Is(err, credentials.ErrMissing) {
			os.Exit(exitConfig)
		}
		os.Exit(exitFailure)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup wiring
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting VitalSync",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("%w: loading %s: %w", errConfiguration, configPath, err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Load API credentials, seeding missing values from the environment
	credStore, err := credentials.Open(cfg.Credentials.Path)
	if err != nil {
		return fmt.Errorf("%w: opening credential store: %w", errConfiguration, err)
	}
	creds, err := credStore.Load()
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}
	if err := creds.Validate(); err != nil {
		return fmt.Errorf("credentials in %s: %w", credStore.Dir(), err)
	}
	log.Info("credentials loaded", "dir", credStore.Dir())

	// API client: rotated tokens are persisted before first use
	source := fitbit.NewClient(fitbit.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		Expiry:       creds.Expiry(),
		RedirectURL:  cfg.Source.RedirectURL,
		Units:        cfg.Source.Units,
		Timeout:      cfg.SourceTimeout(),
	}, credStore.SaveTokens)

	// Connect to the time-series store
	store, err := influxdb.Connect(cfg.InfluxDB)
	if err != nil {
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	defer func() {
		log.Info("closing InfluxDB connection")
		if closeErr := store.Close(); closeErr != nil {
			log.Error("error closing InfluxDB", "error", closeErr)
		}
	}()
	if err := store.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("ensuring bucket: %w", err)
	}
	log.Info("InfluxDB connected",
		"url", cfg.InfluxDB.URL,
		"org", cfg.InfluxDB.Org,
		"bucket", cfg.InfluxDB.Bucket,
	)

	engine := poller.NewEngine(source, store, poller.Config{
		MaxSpan:      cfg.MaxSpan(),
		PassInterval: cfg.Sync.PassInterval,
	}, log.Component("poller"))

	// Pass-history journal (optional)
	var db *database.DB
	if cfg.Journal.Enabled {
		db, err = database.Open(database.Config{
			Path:        cfg.Journal.Path,
			WALMode:     cfg.Journal.WALMode,
			BusyTimeout: cfg.Journal.BusyTimeout,
		})
		if err != nil {
			return fmt.Errorf("opening journal database: %w", err)
		}
		defer func() {
			log.Info("closing journal database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing journal database", "error", closeErr)
			}
		}()
		if migrateErr := db.Migrate(ctx); migrateErr != nil {
			return fmt.Errorf("running journal migrations: %w", migrateErr)
		}
		engine.SetJournal(journal.NewSQLiteRepository(db.DB))
		log.Info("pass journal enabled", "path", cfg.Journal.Path)
	}

	// MQTT status publisher (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		engine.SetNotifier(&statusPublisher{
			client: mqttClient,
			topic:  mqtt.StatusTopic(cfg.MQTT.TopicPrefix),
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	}

	// Verify all connections are healthy before the first pass
	if err := healthCheck(ctx, store, db, mqttClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed, starting sync loop",
		"pass_interval", cfg.Sync.PassInterval,
		"max_span_days", cfg.Sync.MaxSpanDays,
	)

	// Sync forever; returns nil when ctx is cancelled.
	if err := engine.Run(ctx); err != nil {
		return fmt.Errorf("sync loop: %w", err)
	}

	log.Info("VitalSync stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses VITALSYNC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("VITALSYNC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// db and mqttClient may be nil when their features are disabled.
func healthCheck(ctx context.Context, store *influxdb.Client, db *database.DB, mqttClient *mqtt.Client) error {
	if err := store.HealthCheck(ctx); err != nil {
		return fmt.Errorf("influxdb: %w", err)
	}
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("journal: %w", err)
		}
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	return nil
}

// statusPublisher adapts the MQTT client to the engine's notifier
// interface, publishing each pass summary as retained JSON.
type statusPublisher struct {
	client *mqtt.Client
	topic  string
}

// PublishStatus implements poller.StatusNotifier.
func (p *statusPublisher) PublishStatus(_ context.Context, summary poller.PassSummary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encoding pass summary: %w", err)
	}
	return p.client.PublishRetained(p.topic, payload)
}
