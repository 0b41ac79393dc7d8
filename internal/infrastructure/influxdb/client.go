package influxdb

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/attendai-core/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second

	// tagInstance names the daemon that wrote a point, so several session
	// daemons can share one bucket.
	tagInstance = "instance"
)

// Client writes session telemetry to InfluxDB v2.
//
// Every point carries the instance tag. Writes are batched and never block
// the session path; after Close they are dropped.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	instance string

	closed  atomic.Bool
	onError atomic.Pointer[func(error)]
}

// Connect pings the server and prepares a batching, non-blocking writer.
//
// Parameters:
//   - ctx: bounds the initial ping together with an internal timeout
//   - cfg: InfluxDB section of config.yaml; an empty Instance falls back
//     to the host name
//
// Returns:
//   - *Client: ready to accept session events
//   - error: ErrDisabled when cfg.Enabled is false, ErrConnectionFailed
//     when the server cannot be reached or reports unhealthy
func Connect(ctx context.Context, cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	instance := cfg.Instance
	if instance == "" {
		instance, _ = os.Hostname() //nolint:errcheck // an untagged instance is acceptable
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, writeOptions(cfg, instance))

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	healthy, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	c := &Client{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
		instance: instance,
	}
	go c.drainErrors(c.writeAPI.Errors())
	return c, nil
}

// writeOptions maps the config onto client options. Session events are
// sparse, so millisecond precision is plenty.
func writeOptions(cfg config.InfluxDBConfig, instance string) *influxdb2.Options {
	batch := defaultBatchSize
	if cfg.BatchSize > 0 {
		batch = cfg.BatchSize
	}
	flush := defaultFlushInterval
	if cfg.FlushInterval > 0 {
		flush = time.Duration(cfg.FlushInterval) * time.Second
	}

	opts := influxdb2.DefaultOptions().
		SetBatchSize(uint(batch)). // #nosec G115 -- positive by construction
		SetFlushInterval(uint(flush.Milliseconds())).
		SetPrecision(time.Millisecond)
	if instance != "" {
		opts.AddDefaultTag(tagInstance, instance)
	}
	return opts
}

func (c *Client) drainErrors(errs <-chan error) {
	for err := range errs {
		if fn := c.onError.Load(); fn != nil {
			(*fn)(err)
		}
	}
}

// Close flushes pending points and releases the client. Later calls are no-ops.
func (c *Client) Close() error {
	if c.client == nil || c.closed.Swap(true) {
		return nil
	}
	c.writeAPI.Flush()
	c.client.Close()
	return nil
}

// HealthCheck pings the server.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: ErrNotConnected after Close, otherwise nil if the ping succeeds
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	checkCtx, cancel := context.WithTimeout(ctx, pingTimeout)
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

// IsConnected reports whether the client was connected and not yet closed.
func (c *Client) IsConnected() bool {
	return c.client != nil && !c.closed.Load()
}

// Instance returns the value of the instance tag written on every point.
func (c *Client) Instance() string {
	return c.instance
}

// SetOnError sets the callback for asynchronous write failures.
func (c *Client) SetOnError(callback func(err error)) {
	if callback == nil {
		c.onError.Store(nil)
		return
	}
	c.onError.Store(&callback)
}

// Flush blocks until buffered points are sent. It is a no-op after Close.
func (c *Client) Flush() {
	if c.IsConnected() {
		c.writeAPI.Flush()
	}
}
