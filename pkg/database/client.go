// Package database provides the PostgreSQL client, migrations, health checks,
// and the pooled/direct connector used by the rest of the system.
package database

import (
	"context"
	stdsql "database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strings"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/forgeworks/draftforge/ent"
)

//go:embed migrations
var migrationsFS embed.FS

// TCP keepalive settings: evict half-open connections promptly after a peer
// or middlebox drops them silently.
var keepAliveConfig = net.KeepAliveConfig{
	Enable:   true,
	Idle:     30 * time.Second,
	Interval: 10 * time.Second,
	Count:    3,
}

// Config holds database connection settings.
type Config struct {
	// DSN is the PostgreSQL connection string (DATABASE_URL).
	DSN string

	// Pool sizing. MaxOpenConns = PoolSize + PoolOverflow; idle connections
	// are kept at PoolSize.
	PoolSize     int
	PoolOverflow int

	// AcquireTimeout bounds a single connection acquisition (pre-ping).
	AcquireTimeout time.Duration

	// Recycle is the maximum lifetime of a pooled connection.
	Recycle time.Duration
}

// DefaultConfig returns the conservative production pool settings.
func DefaultConfig(dsn string) Config {
	return Config{
		DSN:            dsn,
		PoolSize:       2,
		PoolOverflow:   3,
		AcquireTimeout: 10 * time.Second,
		Recycle:        15 * time.Minute,
	}
}

// Client wraps the Ent client and exposes the underlying pooled database.
type Client struct {
	*ent.Client
	db  *stdsql.DB
	dsn string
}

// DB returns the underlying pooled database for health checks and stats.
func (c *Client) DB() *stdsql.DB {
	return c.db
}

// DSN returns the connection string (used by the direct connector fallback).
func (c *Client) DSN() string {
	return c.dsn
}

// NewClientFromEnt wraps an existing Ent client (useful for testing).
func NewClientFromEnt(entClient *ent.Client, db *stdsql.DB) *Client {
	return &Client{Client: entClient, db: db}
}

// NewClient opens the pooled database, applies migrations, and returns the
// wrapped client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	db, err := openDB(cfg.DSN)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.PoolSize + cfg.PoolOverflow)
	db.SetMaxIdleConns(cfg.PoolSize)
	db.SetConnMaxLifetime(cfg.Recycle)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.AcquireTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	drv := entsql.OpenDB(dialect.Postgres, db)
	entClient := ent.NewClient(ent.Driver(drv))

	if err := runMigrations(db); err != nil {
		_ = entClient.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Client{Client: entClient, db: db, dsn: cfg.DSN}, nil
}

// openDB opens a database handle with the pgx driver and TCP keepalives.
func openDB(dsn string) (*stdsql.DB, error) {
	connCfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	dialer := &net.Dialer{KeepAliveConfig: keepAliveConfig}
	connCfg.DialFunc = dialer.DialContext

	db, err := stdsql.Open("pgx", stdlib.RegisterConnConfig(connCfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// OpenDirect opens a one-shot, unpooled connection handle for the no-pool
// fallback mode. The caller must Close it after the request.
func OpenDirect(ctx context.Context, dsn string) (*ent.Client, *stdsql.DB, error) {
	db, err := openDB(dsn)
	if err != nil {
		return nil, nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("direct connection failed: %w", err)
	}

	drv := entsql.OpenDB(dialect.Postgres, db)
	return ent.NewClient(ent.Driver(drv)), db, nil
}

// Close closes the ent client and the pooled database.
func (c *Client) Close() error {
	err := c.Client.Close()
	if dbErr := c.db.Close(); dbErr != nil && !strings.Contains(dbErr.Error(), "already closed") {
		if err == nil {
			err = dbErr
		}
	}
	return err
}

// runMigrations applies embedded SQL migrations with golang-migrate.
//
// Workflow: schema changes are made in ent/schema/*.go, the corresponding SQL
// is written to pkg/database/migrations/*.sql, embedded at compile time, and
// auto-applied here on startup.
func runMigrations(db *stdsql.DB) error {
	hasMigrations, err := hasEmbeddedMigrations()
	if err != nil {
		return fmt.Errorf("failed to check embedded migrations: %w", err)
	}
	if !hasMigrations {
		return fmt.Errorf("no embedded migration files found — binary may be built incorrectly")
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "draftforge", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	// Close only the migration source. m.Close() would also close the shared
	// *sql.DB handed to postgres.WithInstance, breaking the Ent client.
	if err := sourceDriver.Close(); err != nil {
		return fmt.Errorf("failed to close migration source: %w", err)
	}

	return nil
}

func hasEmbeddedMigrations() (bool, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read embedded migrations: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			return true, nil
		}
	}
	return false, nil
}
