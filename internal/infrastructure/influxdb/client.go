package influxdb

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/ewoodhouse/vitalsync/internal/infrastructure/config"
)

// Default timeouts and batch settings for InfluxDB operations.
const (
	defaultConnectTimeout = 10 * time.Second
	defaultPingTimeout    = 5 * time.Second

	// defaultBatchSize matches the write batching used by the sync
	// engine: large enough to absorb a multi-year backfill chunk,
	// small enough to keep individual requests bounded.
	defaultBatchSize = 2500
)

// Client wraps the InfluxDB v2 client for health time-series storage.
//
// It provides connection management, synchronous batched writes, and the
// range queries the sync engine uses to detect gaps in stored history.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Writes are blocking: WriteBatch returns only after the server has
//     acknowledged the batch, so callers can trust stored watermarks.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	queryAPI api.QueryAPI
	cfg      config.InfluxDBConfig

	batchSize int

	// connected tracks current connection state.
	connected bool
	mu        sync.RWMutex
}

// Connect establishes a connection to the InfluxDB server.
//
// It performs the following setup:
//  1. Creates the client with token authentication
//  2. Verifies connectivity with a ping
//  3. Configures the blocking write API and the query API
//
// Parameters:
//   - cfg: InfluxDB configuration from config.yaml
//
// Returns:
//   - *Client: Connected client ready for use
//   - error: If the connection attempt fails
func Connect(cfg config.InfluxDBConfig) (*Client, error) {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	// Verify connectivity
	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	return &Client{
		client:    client,
		writeAPI:  client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		queryAPI:  client.QueryAPI(cfg.Org),
		cfg:       cfg,
		batchSize: batchSize,
		connected: true,
	}, nil
}

// EnsureBucket creates the configured bucket if it does not exist yet.
//
// The sync engine calls this once at startup so a fresh deployment does
// not need manual bucket provisioning.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if the bucket exists or was created
func (c *Client) EnsureBucket(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	bucketsAPI := c.client.BucketsAPI()
	if _, err := bucketsAPI.FindBucketByName(ctx, c.cfg.Bucket); err == nil {
		return nil
	}

	org, err := c.client.OrganizationsAPI().FindOrganizationByName(ctx, c.cfg.Org)
	if err != nil {
		return fmt.Errorf("influxdb: looking up organization %q: %w", c.cfg.Org, err)
	}

	if _, err := bucketsAPI.CreateBucketWithName(ctx, org, c.cfg.Bucket); err != nil {
		return fmt.Errorf("influxdb: creating bucket %q: %w", c.cfg.Bucket, err)
	}
	return nil
}

// Close shuts down the InfluxDB connection.
//
// Returns:
//   - error: nil (the underlying client Close doesn't return errors)
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	c.client.Close()
	return nil
}

// HealthCheck verifies the InfluxDB connection is alive and functioning.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	checkCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	healthy, err := c.client.Ping(checkCtx)
	if err != nil {
		return fmt.Errorf("influxdb health check failed: %w", err)
	}
	if !healthy {
		return fmt.Errorf("influxdb health check failed: server not healthy")
	}

	return nil
}

// IsConnected returns the current connection state.
//
// Note: This reflects the last known state. For reliability,
// use HealthCheck which performs an active ping.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}
