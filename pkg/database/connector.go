package database

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/forgeworks/draftforge/ent"
)

// Mode identifies which connection strategy a Connector is currently using.
type Mode string

// Connector modes.
const (
	ModePooled Mode = "pooled"
	ModeDirect Mode = "direct" // no-pool fallback: one-shot connection per acquisition
)

// Acquire retry schedule on pool failure.
var acquireBackoff = []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}

// pooledRetryInterval is how often the direct mode re-probes the pool.
const pooledRetryInterval = 15 * time.Second

// Connector is the storage capability held by workers and services: acquire a
// usable client, report health. The pooled connector and the no-pool fallback
// are two strategies behind the same capability — callers never hold the pool
// directly.
type Connector interface {
	// Acquire returns a usable Ent client and a release function that must be
	// called when the request finishes.
	Acquire(ctx context.Context) (*ent.Client, func(), error)

	// Health pings the current backend.
	Health(ctx context.Context) error

	// Mode reports the strategy currently in use.
	Mode() Mode
}

// FailoverConnector serves from the bounded pool, retrying acquisition with
// exponential backoff, and falls back to one-shot direct connections for the
// duration of a pool incident. Pooled mode is re-probed periodically.
type FailoverConnector struct {
	client *Client

	mu            sync.Mutex
	mode          Mode
	degradedSince time.Time
	lastProbe     time.Time
}

// NewFailoverConnector creates a connector over the pooled client.
func NewFailoverConnector(client *Client) *FailoverConnector {
	return &FailoverConnector{client: client, mode: ModePooled}
}

// Acquire returns a client backed by the pool when healthy, or a one-shot
// direct connection during a pool incident.
func (c *FailoverConnector) Acquire(ctx context.Context) (*ent.Client, func(), error) {
	if c.Mode() == ModePooled {
		if err := c.acquirePooled(ctx); err == nil {
			return c.client.Client, func() {}, nil
		} else {
			c.downgrade(err)
		}
	}

	// Direct mode. Periodically re-probe the pool first.
	if c.shouldProbePool() && c.probePool(ctx) {
		return c.client.Client, func() {}, nil
	}

	entClient, db, err := OpenDirect(ctx, c.client.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("all connection modes failed: %w", err)
	}
	release := func() {
		_ = entClient.Close()
		_ = db.Close()
	}
	return entClient, release, nil
}

// acquirePooled pre-pings the pool, retrying with backoff.
func (c *FailoverConnector) acquirePooled(ctx context.Context) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		lastErr = c.client.DB().PingContext(pingCtx)
		cancel()
		if lastErr == nil {
			return nil
		}
		if attempt >= len(acquireBackoff) {
			return lastErr
		}
		select {
		case <-time.After(acquireBackoff[attempt]):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *FailoverConnector) downgrade(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode == ModeDirect {
		return
	}
	c.mode = ModeDirect
	c.degradedSince = time.Now()
	c.lastProbe = time.Now()
	slog.Warn("Connection pool unavailable, falling back to direct mode", "error", err)
}

func (c *FailoverConnector) shouldProbePool() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != ModeDirect {
		return false
	}
	if time.Since(c.lastProbe) < pooledRetryInterval {
		return false
	}
	c.lastProbe = time.Now()
	return true
}

func (c *FailoverConnector) probePool(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.client.DB().PingContext(pingCtx); err != nil {
		return false
	}

	c.mu.Lock()
	outage := time.Since(c.degradedSince)
	c.mode = ModePooled
	c.degradedSince = time.Time{}
	c.mu.Unlock()

	slog.Info("Connection pool recovered, resuming pooled mode", "outage", outage)
	return true
}

// Health pings the pool regardless of mode, so recovery is observable.
func (c *FailoverConnector) Health(ctx context.Context) error {
	_, err := Health(ctx, c.client.DB())
	return err
}

// Mode reports the current connection strategy.
func (c *FailoverConnector) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// DegradedSince returns when the connector entered direct mode, or the zero
// time when pooled.
func (c *FailoverConnector) DegradedSince() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.degradedSince
}

// StaticConnector always returns the same client. Used in tests and by
// startup code paths that must not trigger fallback.
type StaticConnector struct {
	Ent *ent.Client
	DB  interface {
		PingContext(ctx context.Context) error
	}
}

// Acquire returns the wrapped client.
func (c *StaticConnector) Acquire(context.Context) (*ent.Client, func(), error) {
	return c.Ent, func() {}, nil
}

// Health pings the wrapped database when available.
func (c *StaticConnector) Health(ctx context.Context) error {
	if c.DB == nil {
		return nil
	}
	return c.DB.PingContext(ctx)
}

// Mode always reports pooled.
func (c *StaticConnector) Mode() Mode { return ModePooled }
