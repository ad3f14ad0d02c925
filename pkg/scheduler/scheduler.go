// Package scheduler owns the job lifecycle: admission, the global worker
// slot pool, the status FSM, and cancellation. It is the only component that
// starts pipeline executions and the only writer of job status rows.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/forgeworks/draftforge/ent/job"
	"github.com/forgeworks/draftforge/pkg/auth"
	"github.com/forgeworks/draftforge/pkg/cache"
	"github.com/forgeworks/draftforge/pkg/events"
	"github.com/forgeworks/draftforge/pkg/models"
	"github.com/forgeworks/draftforge/pkg/pipeline"
	"github.com/forgeworks/draftforge/pkg/services"
	"github.com/forgeworks/draftforge/pkg/tier"
)

// Scheduler errors.
var (
	// ErrTooManyInFlight rejects a submission over the per-user concurrency
	// cap. Retriable once one of the user's jobs finishes.
	ErrTooManyInFlight = errors.New("too many jobs in flight")

	errStopped = errors.New("scheduler stopped")
)

// Config tunes the scheduler.
type Config struct {
	MaxGlobalWorkers int
	JobTimeout       time.Duration
	StageTimeout     time.Duration
}

// ModerationVersionSource provides the current moderation version for
// fingerprinting.
type ModerationVersionSource interface {
	ModerationVersion(ctx context.Context) (int, error)
}

// Scheduler admits submissions and runs them to a terminal state.
type Scheduler struct {
	cfg      Config
	policy   *tier.Policy
	cache    *cache.Cache
	bus      *events.Bus
	jobs     *services.JobService
	settings ModerationVersionSource
	adapter  *pipeline.Adapter

	slots *slotPool

	// Cancel registry: job_id → in-memory cancel state for jobs owned by this
	// process.
	mu     sync.RWMutex
	active map[string]*activeJob

	// Per-user admission serialization: the cap check and the job insert must
	// not interleave between two submissions for the same user.
	admitMu    sync.Mutex
	admitLocks map[string]*admitLock

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// activeJob is the in-memory cancel state of one non-terminal job.
type activeJob struct {
	cancelRequested atomic.Bool
	cancelCh        chan struct{}
	cancelOnce      sync.Once
}

func newActiveJob() *activeJob {
	return &activeJob{cancelCh: make(chan struct{})}
}

// requestCancel flips the flag and releases anyone blocked on cancelCh.
func (a *activeJob) requestCancel() {
	a.cancelRequested.Store(true)
	a.cancelOnce.Do(func() { close(a.cancelCh) })
}

// admitLock is one user's admission mutex, refcounted so idle entries leave
// the map.
type admitLock struct {
	mu   sync.Mutex
	refs int
}

// lockUser serializes admission for one user. The returned func releases the
// lock and drops the map entry once unused.
func (s *Scheduler) lockUser(userID string) func() {
	s.admitMu.Lock()
	l := s.admitLocks[userID]
	if l == nil {
		l = &admitLock{}
		s.admitLocks[userID] = l
	}
	l.refs++
	s.admitMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.admitMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.admitLocks, userID)
		}
		s.admitMu.Unlock()
	}
}

// New creates a Scheduler.
func New(cfg Config, policy *tier.Policy, c *cache.Cache, bus *events.Bus, jobs *services.JobService, settings ModerationVersionSource, adapter *pipeline.Adapter) *Scheduler {
	return &Scheduler{
		cfg:        cfg,
		policy:     policy,
		cache:      c,
		bus:        bus,
		jobs:       jobs,
		settings:   settings,
		adapter:    adapter,
		slots:      newSlotPool(cfg.MaxGlobalWorkers),
		active:     make(map[string]*activeJob),
		admitLocks: make(map[string]*admitLock),
		stopCh:     make(chan struct{}),
	}
}

// Stop rejects new submissions and waits for running workers to finish their
// jobs. Safe to call multiple times.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// Submission is one generate request after authentication.
type Submission struct {
	Principal      *auth.Principal
	Topic          string
	RequestedTypes []models.ContentType
}

// Ticket is the admission result a subscriber needs to attach to the stream.
type Ticket struct {
	JobID         string
	CacheHit      bool
	MediaFastLane bool
}

// Submit admits a request, creates the job row, and either serves it from the
// cache or hands it to a worker. Denials surface as *tier.DenialError; the
// concurrency cap as ErrTooManyInFlight.
func (s *Scheduler) Submit(ctx context.Context, sub Submission) (*Ticket, error) {
	select {
	case <-s.stopCh:
		return nil, errStopped
	default:
	}

	admission, err := s.policy.Admit(ctx, sub.Principal, tier.AdmitRequest{
		Topic:          sub.Topic,
		RequestedTypes: sub.RequestedTypes,
	})
	if err != nil {
		return nil, err
	}

	modVersion, err := s.settings.ModerationVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving moderation version: %w", err)
	}
	normalized := cache.NormalizeTopic(sub.Topic)
	fingerprint := cache.Fingerprint(normalized, admission.EffectiveTypes, admission.Model, modVersion)

	jobID := uuid.New().String()
	mediaFastLane := hasMediaType(admission.EffectiveTypes)
	log := slog.With("job_id", jobID, "user_id", sub.Principal.UserID, "tier", admission.Tier)

	// Cache probe: a hit is answered with a synthesized stream, recorded as an
	// already-completed job for audit.
	if bundle, state := s.cache.Lookup(fingerprint); state == cache.Hit {
		if _, err := s.jobs.CreateJob(ctx, s.createInput(jobID, sub, normalized, admission, fingerprint, true)); err != nil {
			return nil, err
		}
		s.bus.Register(jobID)
		s.publishStarted(jobID, admission.EffectiveTypes)
		seq, err := s.bus.Terminate(jobID, events.KindComplete, events.NewCompletePayload(jobID, bundle, nil))
		if err != nil {
			log.Warn("Failed to publish cache-hit complete", "error", err)
		} else if err := s.jobs.SetLastEventSeq(ctx, jobID, seq); err != nil {
			log.Warn("Failed to backfill last event seq", "error", err)
		}
		log.Info("Job served from cache", "fingerprint", fingerprint)
		return &Ticket{JobID: jobID, CacheHit: true, MediaFastLane: mediaFastLane}, nil
	}

	if err := s.admitWithinCap(ctx, jobID, sub, normalized, admission, fingerprint); err != nil {
		return nil, err
	}
	s.bus.Register(jobID)
	s.publishStarted(jobID, admission.EffectiveTypes)

	state := newActiveJob()
	s.mu.Lock()
	s.active[jobID] = state
	s.mu.Unlock()

	// Single-flight claim. Losers become followers of the in-progress build
	// and never run the pipeline.
	leader, follower := s.cache.Begin(fingerprint)

	s.wg.Add(1)
	if follower != nil {
		go s.runFollower(jobID, sub.Principal.UserID, admission, follower, state, log)
	} else {
		go s.runLeader(jobID, sub, normalized, admission, fingerprint, leader, state, log)
	}

	return &Ticket{JobID: jobID, CacheHit: false, MediaFastLane: mediaFastLane}, nil
}

// admitWithinCap checks the per-user concurrency cap and inserts the job row
// under the user's admission lock, so two concurrent submissions cannot both
// observe a free slot and both insert.
func (s *Scheduler) admitWithinCap(ctx context.Context, jobID string, sub Submission, normalized string, admission *tier.Admission, fingerprint string) error {
	unlock := s.lockUser(sub.Principal.UserID)
	defer unlock()

	activeCount, err := s.jobs.CountActive(ctx, sub.Principal.UserID)
	if err != nil {
		return err
	}
	if activeCount >= admission.MaxParallelStages {
		return ErrTooManyInFlight
	}

	_, err = s.jobs.CreateJob(ctx, s.createInput(jobID, sub, normalized, admission, fingerprint, false))
	return err
}

func (s *Scheduler) createInput(jobID string, sub Submission, normalized string, admission *tier.Admission, fingerprint string, cacheHit bool) services.CreateJobInput {
	return services.CreateJobInput{
		JobID:           jobID,
		UserID:          sub.Principal.UserID,
		Topic:           sub.Topic,
		NormalizedTopic: normalized,
		RequestedTypes:  admission.EffectiveTypes,
		ModelID:         admission.Model,
		Fingerprint:     fingerprint,
		CacheHit:        cacheHit,
	}
}

// runLeader executes the pipeline for a job that won the single-flight build.
func (s *Scheduler) runLeader(jobID string, sub Submission, normalized string, admission *tier.Admission, fingerprint string, leader *cache.LeaderToken, state *activeJob, log *slog.Logger) {
	defer s.wg.Done()
	defer s.unregister(jobID)

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.JobTimeout)
	defer cancel()

	if err := s.slots.Acquire(ctx, admission.Tier, s.stopCh); err != nil {
		s.cache.Abort(leader, err)
		if errors.Is(err, errStopped) {
			s.failJob(jobID, "server shutting down", string(pipeline.FailurePipelineError), log)
			return
		}
		s.failJob(jobID, "timed out waiting for a worker slot", string(pipeline.FailurePipelineError), log)
		return
	}
	defer s.slots.Release()

	started, err := s.jobs.MarkRunning(ctx, jobID)
	if err != nil {
		s.cache.Abort(leader, err)
		s.failJob(jobID, "failed to start job", string(pipeline.FailurePipelineError), log)
		return
	}
	if !started {
		// Cancelled while pending; the cancel path already emitted the
		// terminal event.
		s.cache.Abort(leader, pipeline.ErrCancelled)
		log.Info("Job no longer pending, worker exiting")
		return
	}

	result, err := s.adapter.Execute(ctx, &pipeline.Job{
		ID:              jobID,
		UserID:          sub.Principal.UserID,
		Topic:           sub.Topic,
		Types:           admission.EffectiveTypes,
		Model:           admission.Model,
		MaxParallel:     admission.MaxParallelStages,
		Fingerprint:     fingerprint,
		CacheTTL:        admission.CacheTTL,
		Leader:          leader,
		CancelRequested: state.cancelRequested.Load,
	})

	switch {
	case err == nil:
		s.markTerminal(jobID, services.TerminalInput{
			Status:       job.StatusCompleted,
			LastEventSeq: result.LastEventSeq,
		}, log)
		return
	case errors.Is(err, pipeline.ErrCancelled):
		s.markTerminal(jobID, services.TerminalInput{Status: job.StatusCancelled}, log)
		return
	}

	// Worker boundary: the single place internal errors become user-facing
	// error events.
	message, errType := "content generation failed", string(pipeline.FailurePipelineError)
	var stageErr *pipeline.StageError
	if errors.As(err, &stageErr) {
		errType = string(stageErr.Kind)
		message = fmt.Sprintf("stage %s failed", stageErr.Stage)
	}
	if ctx.Err() != nil {
		message = "job exceeded its time budget"
	}
	log.Error("Job pipeline failed", "error", err, "error_kind", errType)
	s.failJob(jobID, message, errType, log)
}

// runFollower waits for the leader's build and serves its bundle. Follower
// jobs never consume worker slots.
func (s *Scheduler) runFollower(jobID, userID string, admission *tier.Admission, follower *cache.Follower, state *activeJob, log *slog.Logger) {
	defer s.wg.Done()
	defer s.unregister(jobID)

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.JobTimeout)
	defer cancel()

	if started, err := s.jobs.MarkRunning(ctx, jobID); err != nil || !started {
		if err != nil {
			log.Error("Failed to start follower job", "error", err)
		}
		return
	}

	// Cancellation must not wait out the leader's whole build: cut the wait
	// context as soon as the cancel flag flips.
	waitCtx, stopWait := context.WithCancel(ctx)
	defer stopWait()
	go func() {
		select {
		case <-state.cancelCh:
			stopWait()
		case <-waitCtx.Done():
		}
	}()

	bundle, err := follower.Wait(waitCtx)
	if state.cancelRequested.Load() {
		if _, terr := s.bus.Terminate(jobID, events.KindCancelled, events.CancelledPayload{JobID: jobID, Message: "generation cancelled"}); terr != nil {
			log.Warn("Failed to publish cancelled event", "error", terr)
		}
		s.markTerminal(jobID, services.TerminalInput{Status: job.StatusCancelled}, log)
		return
	}
	if err != nil {
		log.Warn("Leader build failed, failing follower", "error", err)
		s.failJob(jobID, "content generation failed", string(pipeline.FailurePipelineError), log)
		return
	}

	seq, err := s.bus.Terminate(jobID, events.KindComplete, events.NewCompletePayload(jobID, bundle, nil))
	if err != nil {
		log.Warn("Failed to publish follower complete", "error", err)
	}
	s.markTerminal(jobID, services.TerminalInput{Status: job.StatusCompleted, LastEventSeq: seq}, log)
	log.Info("Follower job served from leader build")
}

// Cancel requests cancellation of a job on behalf of its owner or an admin.
// Pending jobs transition to cancelled immediately; running jobs observe the
// flag at the next pipeline checkpoint.
func (s *Scheduler) Cancel(ctx context.Context, jobID string, principal *auth.Principal) error {
	j, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if j.UserID != principal.UserID && !principal.IsAdmin {
		return services.ErrForbidden
	}

	if _, err := s.jobs.RequestCancel(ctx, jobID); err != nil {
		return err
	}

	s.mu.RLock()
	state := s.active[jobID]
	s.mu.RUnlock()
	if state != nil {
		state.requestCancel()
	}

	// A job still pending has no worker narrative to wind down: finish it
	// here. The conditional transition loses gracefully if the worker started
	// in the meantime.
	if j.Status == job.StatusPending {
		done, err := s.jobs.MarkTerminal(ctx, jobID, services.TerminalInput{Status: job.StatusCancelled})
		if err != nil {
			return err
		}
		if done {
			if _, err := s.bus.Terminate(jobID, events.KindCancelled, events.CancelledPayload{JobID: jobID, Message: "generation cancelled"}); err != nil && !errors.Is(err, events.ErrLogClosed) {
				slog.Warn("Failed to publish cancelled event", "job_id", jobID, "error", err)
			}
		}
	}

	slog.Info("Job cancellation requested", "job_id", jobID, "requested_by", principal.UserID)
	return nil
}

// Status is a point-in-time snapshot for /health.
type Status struct {
	ActiveJobs int `json:"active_jobs"`
	FreeSlots  int `json:"free_slots"`
}

// Status reports scheduler occupancy.
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	active := len(s.active)
	s.mu.RUnlock()
	return Status{ActiveJobs: active, FreeSlots: s.slots.Free()}
}

// failJob emits the terminal error event and marks the row failed.
func (s *Scheduler) failJob(jobID, message, errType string, log *slog.Logger) {
	seq, err := s.bus.Terminate(jobID, events.KindError, events.ErrorPayload{
		Message:   message,
		ErrorType: errType,
	})
	if err != nil && !errors.Is(err, events.ErrLogClosed) {
		log.Warn("Failed to publish error event", "error", err)
	}
	s.markTerminal(jobID, services.TerminalInput{
		Status:       job.StatusFailed,
		ErrorMessage: message,
		LastEventSeq: seq,
	}, log)
}

// markTerminal persists a terminal transition with its own timeout so
// shutdown or a dead request context cannot strand the row.
func (s *Scheduler) markTerminal(jobID string, input services.TerminalInput, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if input.LastEventSeq == 0 {
		if seq, ok := s.bus.LastEventID(jobID); ok {
			input.LastEventSeq = seq
		}
	}
	if _, err := s.jobs.MarkTerminal(ctx, jobID, input); err != nil {
		log.Error("Failed to persist terminal status", "status", input.Status, "error", err)
	}
}

func (s *Scheduler) unregister(jobID string) {
	s.mu.Lock()
	delete(s.active, jobID)
	s.mu.Unlock()
}

// publishStarted emits the job_started event.
func (s *Scheduler) publishStarted(jobID string, types []models.ContentType) {
	display := make([]string, len(types))
	for i, t := range types {
		display[i] = t.Display()
	}
	if _, err := s.bus.Publish(jobID, events.KindJobStarted, events.JobStartedPayload{
		JobID:              jobID,
		ContentTypeDisplay: strings.Join(display, " + "),
	}); err != nil {
		slog.Warn("Failed to publish job_started", "job_id", jobID, "error", err)
	}
}

func hasMediaType(types []models.ContentType) bool {
	for _, t := range types {
		if t.IsMedia() {
			return true
		}
	}
	return false
}
