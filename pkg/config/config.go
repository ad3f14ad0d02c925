// Package config loads and validates service configuration: environment-driven
// runtime settings plus the YAML tier definitions.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config is the umbrella configuration object returned by Load and threaded
// through the application.
type Config struct {
	// DatabaseURL is the PostgreSQL connection string. Required.
	DatabaseURL string

	// Port is the HTTP listen port.
	Port string

	// SecretKey signs and verifies bearer tokens. Must be at least 32 bytes.
	SecretKey []byte

	// ModelEndpoint is the base URL of the external generation pipeline.
	// Empty selects the deterministic in-process stub.
	ModelEndpoint string

	// MaxGlobalWorkers bounds concurrently running jobs across all users.
	MaxGlobalWorkers int

	// KeepAliveInterval is the idle period after which the stream writer
	// synthesizes a keep-alive comment.
	KeepAliveInterval time.Duration

	// JobTimeout is the overall per-job deadline.
	JobTimeout time.Duration

	// StageTimeout is the per-stage progress deadline; a job silent for this
	// long is marked failed with reason StageTimeout.
	StageTimeout time.Duration

	// CacheMaxEntries is the soft LRU cap on content cache entries.
	CacheMaxEntries int

	// PoolSize and PoolOverflow size the database connection pool:
	// MaxOpenConns = PoolSize + PoolOverflow, MaxIdleConns = PoolSize.
	PoolSize     int
	PoolOverflow int

	// JobRetention is how long terminal jobs are kept before the cleanup
	// sweeper purges them. Zero disables cleanup.
	JobRetention time.Duration

	// CleanupInterval is the period between retention sweeps.
	CleanupInterval time.Duration

	// TierConfigPath points at the tiers YAML file. Empty means built-in
	// defaults only.
	TierConfigPath string

	// Tiers is the loaded tier registry.
	Tiers *TierRegistry
}

// Load reads configuration from the environment, loads the tier registry,
// and validates the result. It is called once at startup; a returned error
// is fatal.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		Port:              getEnv("PORT", "8080"),
		SecretKey:         []byte(os.Getenv("SECRET_KEY")),
		ModelEndpoint:     os.Getenv("MODEL_ENDPOINT"),
		MaxGlobalWorkers:  getEnvInt("MAX_GLOBAL_WORKERS", 8),
		KeepAliveInterval: time.Duration(getEnvInt("KEEP_ALIVE_INTERVAL_MS", 5000)) * time.Millisecond,
		JobTimeout:        time.Duration(getEnvInt("JOB_TIMEOUT_SEC", 600)) * time.Second,
		StageTimeout:      time.Duration(getEnvInt("STAGE_TIMEOUT_SEC", 180)) * time.Second,
		CacheMaxEntries:   getEnvInt("CACHE_MAX_ENTRIES", 1024),
		PoolSize:          getEnvInt("POOL_SIZE", 2),
		PoolOverflow:      getEnvInt("POOL_OVERFLOW", 3),
		JobRetention:      time.Duration(getEnvInt("JOB_RETENTION_DAYS", 30)) * 24 * time.Hour,
		CleanupInterval:   time.Duration(getEnvInt("CLEANUP_INTERVAL_MIN", 60)) * time.Minute,
		TierConfigPath:    os.Getenv("TIER_CONFIG_PATH"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if len(cfg.SecretKey) < 32 {
		return nil, fmt.Errorf("SECRET_KEY must be at least 32 bytes, got %d", len(cfg.SecretKey))
	}
	if cfg.MaxGlobalWorkers < 1 {
		return nil, fmt.Errorf("MAX_GLOBAL_WORKERS must be positive, got %d", cfg.MaxGlobalWorkers)
	}
	if cfg.PoolSize < 1 {
		return nil, fmt.Errorf("POOL_SIZE must be positive, got %d", cfg.PoolSize)
	}

	tiers, err := LoadTierRegistry(cfg.TierConfigPath)
	if err != nil {
		return nil, fmt.Errorf("loading tier registry: %w", err)
	}
	cfg.Tiers = tiers

	slog.Info("Configuration loaded",
		"port", cfg.Port,
		"max_global_workers", cfg.MaxGlobalWorkers,
		"pool_size", cfg.PoolSize,
		"pool_overflow", cfg.PoolOverflow,
		"tier_config", cfg.TierConfigPath)

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("Invalid integer environment variable, using default",
			"key", key, "value", v, "default", defaultValue)
		return defaultValue
	}
	return n
}
