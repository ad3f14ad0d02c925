// DraftForge content generation server — accepts generation jobs over HTTP,
// drives the external pipeline, and pushes staged results to clients.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/forgeworks/draftforge/pkg/api"
	"github.com/forgeworks/draftforge/pkg/auth"
	"github.com/forgeworks/draftforge/pkg/cache"
	"github.com/forgeworks/draftforge/pkg/cleanup"
	"github.com/forgeworks/draftforge/pkg/config"
	"github.com/forgeworks/draftforge/pkg/database"
	"github.com/forgeworks/draftforge/pkg/events"
	"github.com/forgeworks/draftforge/pkg/pipeline"
	"github.com/forgeworks/draftforge/pkg/scheduler"
	"github.com/forgeworks/draftforge/pkg/services"
	"github.com/forgeworks/draftforge/pkg/tier"
	"github.com/forgeworks/draftforge/pkg/version"
)

const shutdownTimeout = 30 * time.Second

func main() {
	envPath := flag.String("env-file", ".env", "Path to environment file")
	flag.Parse()

	if err := godotenv.Load(*envPath); err != nil {
		slog.Warn("Could not load env file, continuing with existing environment",
			"path", *envPath, "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting DraftForge", "version", version.Full(), "port", cfg.Port)

	ctx := context.Background()

	// Database: bounded pool plus the no-pool fallback behind one connector.
	dbCfg := database.DefaultConfig(cfg.DatabaseURL)
	dbCfg.PoolSize = cfg.PoolSize
	dbCfg.PoolOverflow = cfg.PoolOverflow
	dbClient, err := database.NewClient(ctx, dbCfg)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL database")

	connector := database.NewFailoverConnector(dbClient)

	jobService := services.NewJobService(connector)
	artifactService := services.NewArtifactService(connector)
	userService := services.NewUserService(connector)
	settingsService := services.NewSettingsService(connector)

	// Jobs left non-terminal by a previous run lost their event streams; fail
	// them before workers start.
	if _, err := jobService.RecoverOrphans(ctx); err != nil {
		slog.Error("Failed to recover orphaned jobs", "error", err)
		// Non-fatal — continue
	}

	retention := cleanup.NewService(cleanup.Config{
		Retention: cfg.JobRetention,
		Interval:  cfg.CleanupInterval,
	}, jobService)
	retention.Start(ctx)
	defer retention.Stop()

	contentCache, err := cache.New(cfg.CacheMaxEntries)
	if err != nil {
		slog.Error("Failed to initialize content cache", "error", err)
		os.Exit(1)
	}

	bus := events.NewBus()
	bus.Start(ctx)
	defer bus.Stop()

	policy := tier.NewPolicy(cfg.Tiers, userService)

	var runner pipeline.Runner
	if cfg.ModelEndpoint == "" {
		slog.Warn("MODEL_ENDPOINT not set, using deterministic stub pipeline")
		runner = &pipeline.StubRunner{Delay: 100 * time.Millisecond}
	} else {
		runner = pipeline.NewHTTPRunner(cfg.ModelEndpoint)
	}
	adapter := pipeline.NewAdapter(runner, artifactService, bus, contentCache, cfg.StageTimeout)

	sched := scheduler.New(scheduler.Config{
		MaxGlobalWorkers: cfg.MaxGlobalWorkers,
		JobTimeout:       cfg.JobTimeout,
		StageTimeout:     cfg.StageTimeout,
	}, policy, contentCache, bus, jobService, settingsService, adapter)

	server := api.NewServer(
		cfg,
		auth.NewResolver(cfg.SecretKey),
		sched,
		bus,
		contentCache,
		policy,
		connector,
		jobService,
		artifactService,
		userService,
		settingsService,
	)
	httpServer := server.NewHTTPServer()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// Stop intake first so streams can finish, then drain workers.
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	done := make(chan struct{})
	go func() {
		sched.Stop()
		close(done)
	}()
	select {
	case <-done:
		slog.Info("Scheduler stopped gracefully")
	case <-shutdownCtx.Done():
		slog.Warn("Shutdown timeout exceeded — unfinished jobs will be orphan-recovered on restart")
	}

	slog.Info("Shutdown complete")
}
