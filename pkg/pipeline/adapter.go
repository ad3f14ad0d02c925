package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/forgeworks/draftforge/ent"
	"github.com/forgeworks/draftforge/pkg/cache"
	"github.com/forgeworks/draftforge/pkg/events"
	"github.com/forgeworks/draftforge/pkg/models"
	"github.com/forgeworks/draftforge/pkg/services"
)

// previewLength bounds the optimistic content_preview emitted before
// validation.
const previewLength = 500

// ErrCancelled reports that a cancellation request was observed at a
// checkpoint. Not an error condition for the caller; it maps to the cancelled
// terminal state.
var ErrCancelled = errors.New("job cancelled")

// FailureKind classifies adapter failures for the client-facing error_type.
type FailureKind string

// Failure kinds.
const (
	FailureStageTimeout     FailureKind = "StageTimeout"
	FailurePipelineError    FailureKind = "PipelineError"
	FailureValidationFailed FailureKind = "ValidationFailed"
)

// StageError is a fatal stage failure. The worker boundary translates it into
// the user-facing error event.
type StageError struct {
	Stage string
	Kind  FailureKind
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %s: %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// ArtifactPersister is the subset of the artifact service the adapter needs.
type ArtifactPersister interface {
	Persist(ctx context.Context, input services.PersistInput) (*ent.Artifact, error)
}

// Job is the execution order handed to the adapter by the scheduler.
type Job struct {
	ID          string
	UserID      string
	Topic       string
	Types       []models.ContentType
	Model       string
	MaxParallel int
	Fingerprint string
	CacheTTL    time.Duration

	// Leader is non-nil when this job won the single-flight build for its
	// fingerprint; the adapter publishes or aborts it exactly once.
	Leader *cache.LeaderToken

	// CancelRequested is polled at every checkpoint: stage boundaries and
	// before each artifact persist.
	CancelRequested func() bool
}

// Result reports a completed run.
type Result struct {
	Bundle models.Bundle

	// Missing lists optional types whose artifacts failed validation twice.
	Missing []models.ContentType

	// LastEventSeq is the sequence of the terminal complete event.
	LastEventSeq int
}

// Adapter executes one job's stage graph end to end. It is the only writer on
// the job's event log and enforces the event ordering contract: every
// artifact is durable before its artifact_ready event, and complete follows
// every artifact_ready.
type Adapter struct {
	runner       Runner
	artifacts    ArtifactPersister
	bus          *events.Bus
	cache        *cache.Cache
	stageTimeout time.Duration
}

// NewAdapter creates an Adapter.
func NewAdapter(runner Runner, artifacts ArtifactPersister, bus *events.Bus, c *cache.Cache, stageTimeout time.Duration) *Adapter {
	return &Adapter{
		runner:       runner,
		artifacts:    artifacts,
		bus:          bus,
		cache:        c,
		stageTimeout: stageTimeout,
	}
}

// Execute runs the job's stage graph and emits the terminal complete event.
// On cancellation it emits the terminal cancelled event and returns
// ErrCancelled. On failure it returns a *StageError without emitting a
// terminal event: the worker boundary owns the error event. The cache leader
// token is always resolved, exactly once, on every path.
func (a *Adapter) Execute(ctx context.Context, job *Job) (*Result, error) {
	log := slog.With("job_id", job.ID)

	graph := BuildGraph(job.Types, job.MaxParallel)
	run := &jobRun{
		adapter: a,
		job:     job,
		log:     log,
		outputs: make(map[string]string),
		bundle:  models.Bundle{},
	}

	for _, level := range graph.Levels() {
		if job.CancelRequested() {
			return nil, a.finishCancelled(job, log)
		}
		if err := run.executeLevel(ctx, level, graph.MaxParallel); err != nil {
			if errors.Is(err, ErrCancelled) {
				return nil, a.finishCancelled(job, log)
			}
			a.cache.Abort(job.Leader, err)
			return nil, err
		}
	}

	if job.CancelRequested() {
		return nil, a.finishCancelled(job, log)
	}

	seq, err := a.bus.Terminate(job.ID, events.KindComplete,
		events.NewCompletePayload(job.ID, run.bundle, run.missing))
	if err != nil {
		a.cache.Abort(job.Leader, err)
		return nil, fmt.Errorf("publishing complete event: %w", err)
	}

	// Write-through only for a full bundle; a partial one would serve
	// followers less than they asked for.
	if len(run.missing) == 0 {
		a.cache.Publish(job.Leader, run.bundle, job.CacheTTL)
	} else {
		a.cache.Abort(job.Leader, fmt.Errorf("incomplete bundle: %d artifact(s) missing", len(run.missing)))
	}

	log.Info("Job pipeline completed", "artifacts", len(run.bundle), "missing", len(run.missing))
	return &Result{Bundle: run.bundle, Missing: run.missing, LastEventSeq: seq}, nil
}

// finishCancelled emits the terminal cancelled event and releases the cache
// build.
func (a *Adapter) finishCancelled(job *Job, log *slog.Logger) error {
	a.cache.Abort(job.Leader, ErrCancelled)
	if _, err := a.bus.Terminate(job.ID, events.KindCancelled, events.CancelledPayload{
		JobID:   job.ID,
		Message: "generation cancelled",
	}); err != nil && !errors.Is(err, events.ErrLogClosed) {
		log.Warn("Failed to publish cancelled event", "error", err)
	}
	log.Info("Job pipeline cancelled")
	return ErrCancelled
}

// jobRun is the mutable state of one Execute call. Stage outputs and the
// bundle are guarded by mu because optional stages may run as siblings.
type jobRun struct {
	adapter *Adapter
	job     *Job
	log     *slog.Logger

	mu      sync.Mutex
	outputs map[string]string
	bundle  models.Bundle
	missing []models.ContentType
}

// executeLevel runs one batch of stages, concurrently when the batch has
// siblings.
func (r *jobRun) executeLevel(ctx context.Context, level []Stage, maxParallel int) error {
	if len(level) == 1 {
		return r.executeStage(ctx, level[0])
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)
	for _, stage := range level {
		g.Go(func() error {
			return r.executeStage(gctx, stage)
		})
	}
	return g.Wait()
}

// executeStage runs one stage through the full contract: status entry, progress
// bounds, optimistic preview, validation (with one repair pass for optional
// deliverables), persist, artifact_ready, and post-hoc chunk streaming.
func (r *jobRun) executeStage(ctx context.Context, stage Stage) error {
	if r.job.CancelRequested() {
		return ErrCancelled
	}

	if _, err := r.adapter.bus.Publish(r.job.ID, events.KindStatus, events.StatusPayload{
		Message: fmt.Sprintf("Starting %s", stage.Name),
		Stage:   stage.Name,
	}); err != nil {
		return fmt.Errorf("publishing stage status: %w", err)
	}
	r.publishProgress(stage.Name, stage.ProgressStart)

	result, err := r.runStage(ctx, stage, false)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if result.Content != "" {
		r.outputs[stage.Name] = result.Content
	}
	r.mu.Unlock()

	if stage.Produces != "" {
		if err := r.deliverArtifact(ctx, stage, result); err != nil {
			return err
		}
	}

	r.publishProgress(stage.Name, stage.ProgressEnd)
	return nil
}

// runStage invokes the runner under the stage timeout and classifies
// failures.
func (r *jobRun) runStage(ctx context.Context, stage Stage, repair bool) (*StageResult, error) {
	stageCtx, cancel := context.WithTimeout(ctx, r.adapter.stageTimeout)
	defer cancel()

	r.mu.Lock()
	inputs := make(map[string]string, len(r.outputs))
	for k, v := range r.outputs {
		inputs[k] = v
	}
	r.mu.Unlock()

	result, err := r.adapter.runner.RunStage(stageCtx, StageRequest{
		JobID:       r.job.ID,
		Stage:       stage.Name,
		Topic:       r.job.Topic,
		Model:       r.job.Model,
		ContentType: stage.Produces,
		Inputs:      inputs,
		Repair:      repair,
	})
	if err != nil {
		if r.job.CancelRequested() {
			return nil, ErrCancelled
		}
		kind := FailurePipelineError
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			kind = FailureStageTimeout
		}
		return nil, &StageError{Stage: stage.Name, Kind: kind, Err: err}
	}
	return result, nil
}

// deliverArtifact validates, persists, and announces one stage deliverable.
func (r *jobRun) deliverArtifact(ctx context.Context, stage Stage, result *StageResult) error {
	t := stage.Produces

	// Optimistic preview before validation; UI material only.
	if result.Content != "" {
		preview := truncatePreview(result.Content, previewLength)
		if _, err := r.adapter.bus.Publish(r.job.ID, events.KindContentPreview, events.ContentPreviewPayload{
			ArtifactType: t,
			Preview:      preview,
			TotalLength:  len(result.Content),
		}); err != nil {
			return fmt.Errorf("publishing preview: %w", err)
		}
	}

	if err := ValidateArtifact(t, result); err != nil {
		if t == models.ContentTypeBlog {
			// The editor stage guarantees structure; no repair pass for blog.
			return &StageError{Stage: stage.Name, Kind: FailureValidationFailed, Err: err}
		}
		r.log.Warn("Artifact failed validation, attempting repair", "stage", stage.Name, "error", err)
		repaired, runErr := r.runStage(ctx, stage, true)
		if runErr == nil {
			if valErr := ValidateArtifact(t, repaired); valErr == nil {
				result = repaired
			} else {
				runErr = valErr
			}
		}
		if runErr != nil {
			if errors.Is(runErr, ErrCancelled) {
				return ErrCancelled
			}
			// Optional deliverable: omit the artifact, keep the job alive.
			r.log.Warn("Artifact omitted after failed repair", "stage", stage.Name, "error", runErr)
			r.mu.Lock()
			r.missing = append(r.missing, t)
			r.mu.Unlock()
			return nil
		}
	}

	// Checkpoint before the persist: a cancelled job must not commit further
	// artifacts.
	if r.job.CancelRequested() {
		return ErrCancelled
	}

	var metrics *models.QualityMetrics
	if result.Content != "" {
		metrics = ComputeMetrics(result.Content)
	}
	payload := models.ArtifactPayload{
		Type:     t,
		Content:  result.Content,
		AssetURI: result.AssetURI,
		Metrics:  metrics,
	}

	// Durability before announcement: a fresh subscriber sees either no
	// artifact and no event, or both.
	stored, err := r.adapter.artifacts.Persist(ctx, services.PersistInput{
		JobID:       r.job.ID,
		UserID:      r.job.UserID,
		Fingerprint: r.job.Fingerprint,
		Payload:     payload,
	})
	if err != nil {
		return &StageError{Stage: stage.Name, Kind: FailurePipelineError, Err: fmt.Errorf("persisting artifact: %w", err)}
	}
	payload.ArtifactID = stored.ID

	if _, err := r.adapter.bus.Publish(r.job.ID, events.KindArtifactReady, events.ArtifactReadyPayload{
		ArtifactID:     stored.ID,
		ArtifactType:   t,
		QualityMetrics: metrics,
	}); err != nil {
		return fmt.Errorf("publishing artifact_ready: %w", err)
	}

	// Post-hoc chunk streaming for textual deliverables.
	if result.Content != "" {
		for _, chunk := range SplitChunks(result.Content) {
			if _, err := r.adapter.bus.Publish(r.job.ID, events.KindContentChunk, events.ContentChunkPayload{
				ArtifactType: t,
				Chunk:        chunk.Text,
				Progress:     chunk.Progress,
			}); err != nil {
				return fmt.Errorf("publishing content chunk: %w", err)
			}
		}
	}

	r.mu.Lock()
	r.bundle[t] = payload
	r.mu.Unlock()
	return nil
}

// truncatePreview cuts s to at most max bytes on a rune boundary.
func truncatePreview(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// publishProgress emits a stage_progress event; failures are logged, not
// fatal, because progress is advisory.
func (r *jobRun) publishProgress(stage string, percent int) {
	if _, err := r.adapter.bus.Publish(r.job.ID, events.KindStageProgress, events.StageProgressPayload{
		Stage:   stage,
		Percent: percent,
	}); err != nil && !errors.Is(err, events.ErrLogClosed) {
		r.log.Warn("Failed to publish stage progress", "stage", stage, "error", err)
	}
}
