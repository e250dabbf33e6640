// VitalSync Load - bulk loader for Fitbit account data exports
//
// Loads the intraday measurements of an unpacked account data export
// (the directory containing user-site-export/) into the same InfluxDB
// bucket the live sync writes to. Safe to re-run: already-loaded rows
// are filtered out or skipped wholesale.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ewoodhouse/vitalsync/internal/export"
	"github.com/ewoodhouse/vitalsync/internal/infrastructure/config"
	"github.com/ewoodhouse/vitalsync/internal/infrastructure/influxdb"
	"github.com/ewoodhouse/vitalsync/internal/infrastructure/logging"
)

var version = "dev" // set at build time via ldflags

const defaultConfigPath = "configs/config.yaml"

const (
	exitFailure = 1
	exitConfig  = 2
)

var errConfiguration = errors.New("configuration error")

func main() {
	dumpDir := flag.String("dump", "/dump", "path to the unpacked data export (contains user-site-export/)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *dumpDir); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, errConfiguration) {
			os.Exit(exitConfig)
		}
		os.Exit(exitFailure)
	}
}

func run(ctx context.Context, dumpDir string) error {
	log := logging.Default()

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("%w: loading %s: %w", errConfiguration, configPath, err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("starting bulk load", "dump", dumpDir)

	store, err := influxdb.Connect(cfg.InfluxDB)
	if err != nil {
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Error("error closing InfluxDB", "error", closeErr)
		}
	}()
	if err := store.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("ensuring bucket: %w", err)
	}

	loader := export.NewLoader(store, log.Component("export"))
	results, err := loader.LoadDump(ctx, dumpDir)

	// Log whatever completed, even on failure.
	var written int
	for _, res := range results {
		written += res.Written
		log.Info("measurement loaded",
			"measurement", res.Measurement,
			"rows", res.Rows,
			"deduped", res.Deduped,
			"written", res.Written,
			"skipped", res.Skipped,
		)
	}
	if err != nil {
		return fmt.Errorf("bulk load: %w", err)
	}

	log.Info("bulk load complete", "measurements", len(results), "points_written", written)
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
