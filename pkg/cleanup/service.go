// Package cleanup provides data retention: terminal jobs (and their
// artifacts, via cascade) are purged after a configurable age.
package cleanup

import (
	"context"
	"log/slog"
	"time"
)

// JobPurger is the subset of the job service the cleanup loop needs.
type JobPurger interface {
	PurgeTerminalBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Config tunes the retention loop.
type Config struct {
	// Retention is how long terminal jobs are kept. Zero disables cleanup.
	Retention time.Duration

	// Interval between sweeps.
	Interval time.Duration
}

// Service periodically purges terminal jobs past retention. Operations are
// idempotent and safe to run from multiple replicas.
type Service struct {
	cfg  Config
	jobs JobPurger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a cleanup service.
func NewService(cfg Config, jobs JobPurger) *Service {
	return &Service{cfg: cfg, jobs: jobs}
}

// Start launches the background cleanup loop. No-op when retention is
// disabled or Start was already called.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil || s.cfg.Retention <= 0 {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started",
		"retention", s.cfg.Retention,
		"interval", s.cfg.Interval)
}

// Stop signals the loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.sweep(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Service) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.Retention)
	n, err := s.jobs.PurgeTerminalBefore(ctx, cutoff)
	if err != nil {
		slog.Error("Retention sweep failed", "error", err)
		return
	}
	if n > 0 {
		slog.Info("Purged expired jobs", "count", n, "cutoff", cutoff)
	}
}
