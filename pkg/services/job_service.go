package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/forgeworks/draftforge/ent"
	"github.com/forgeworks/draftforge/ent/job"
	"github.com/forgeworks/draftforge/pkg/database"
	"github.com/forgeworks/draftforge/pkg/models"
)

// JobService persists job rows and drives their status FSM. All transitions
// are conditional UPDATEs guarded by the current status, so a losing
// concurrent writer becomes a no-op.
type JobService struct {
	conn database.Connector
}

// NewJobService creates a JobService.
func NewJobService(conn database.Connector) *JobService {
	return &JobService{conn: conn}
}

// CreateJobInput contains fields for creating a job row.
type CreateJobInput struct {
	JobID           string
	UserID          string
	Topic           string
	NormalizedTopic string
	RequestedTypes  []models.ContentType
	ModelID         string
	Fingerprint     string
	// CacheHit records an audit-only row for a request served from the cache;
	// the row is created directly in completed status.
	CacheHit bool
}

// CreateJob inserts a new job row. Cache hits are recorded as already
// completed for audit purposes.
func (s *JobService) CreateJob(ctx context.Context, input CreateJobInput) (*ent.Job, error) {
	client, release, err := s.conn.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}
	defer release()

	types := make([]string, len(input.RequestedTypes))
	for i, t := range input.RequestedTypes {
		types[i] = string(t)
	}

	create := client.Job.Create().
		SetID(input.JobID).
		SetUserID(input.UserID).
		SetTopic(input.Topic).
		SetNormalizedTopic(input.NormalizedTopic).
		SetRequestedTypes(types).
		SetModelID(input.ModelID).
		SetFingerprint(input.Fingerprint).
		SetCacheHit(input.CacheHit)

	if input.CacheHit {
		now := time.Now()
		create = create.
			SetStatus(job.StatusCompleted).
			SetStartedAt(now).
			SetFinishedAt(now)
	}

	created, err := create.Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating job: %w", err)
	}
	return created, nil
}

// GetJob fetches a job by ID.
func (s *JobService) GetJob(ctx context.Context, jobID string) (*ent.Job, error) {
	client, release, err := s.conn.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}
	defer release()

	j, err := client.Job.Get(ctx, jobID)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetching job: %w", err)
	}
	return j, nil
}

// JobFilters contains filtering options for listing jobs.
type JobFilters struct {
	Status string
	Limit  int
	Offset int
}

// ListJobs returns the user's jobs, newest first.
func (s *JobService) ListJobs(ctx context.Context, userID string, filters JobFilters) ([]*ent.Job, int, error) {
	client, release, err := s.conn.Acquire(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("acquiring connection: %w", err)
	}
	defer release()

	q := client.Job.Query().Where(job.UserIDEQ(userID))
	if filters.Status != "" {
		q = q.Where(job.StatusEQ(job.Status(filters.Status)))
	}

	total, err := q.Clone().Count(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("counting jobs: %w", err)
	}

	limit := filters.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	jobs, err := q.
		Order(ent.Desc(job.FieldCreatedAt)).
		Limit(limit).
		Offset(filters.Offset).
		All(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("listing jobs: %w", err)
	}
	return jobs, total, nil
}

// CountActive returns the user's jobs currently pending or running. Used by
// the per-user concurrency cap at admission.
func (s *JobService) CountActive(ctx context.Context, userID string) (int, error) {
	client, release, err := s.conn.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquiring connection: %w", err)
	}
	defer release()

	n, err := client.Job.Query().
		Where(
			job.UserIDEQ(userID),
			job.StatusIn(job.StatusPending, job.StatusRunning),
		).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("counting active jobs: %w", err)
	}
	return n, nil
}

// MarkRunning transitions pending → running. Returns false when the job was
// no longer pending (e.g. cancelled before a worker picked it up).
func (s *JobService) MarkRunning(ctx context.Context, jobID string) (bool, error) {
	client, release, err := s.conn.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquiring connection: %w", err)
	}
	defer release()

	n, err := client.Job.Update().
		Where(job.IDEQ(jobID), job.StatusEQ(job.StatusPending)).
		SetStatus(job.StatusRunning).
		SetStartedAt(time.Now()).
		Save(ctx)
	if err != nil {
		return false, fmt.Errorf("marking job running: %w", err)
	}
	return n == 1, nil
}

// TerminalInput carries the terminal transition fields.
type TerminalInput struct {
	Status       job.Status // completed, failed, or cancelled
	ErrorMessage string
	LastEventSeq int
}

// MarkTerminal freezes a job into a terminal status. Allowed from pending
// (direct cancellation) and running; a job already terminal is left untouched
// and false is returned.
func (s *JobService) MarkTerminal(ctx context.Context, jobID string, input TerminalInput) (bool, error) {
	client, release, err := s.conn.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquiring connection: %w", err)
	}
	defer release()

	update := client.Job.Update().
		Where(
			job.IDEQ(jobID),
			job.StatusIn(job.StatusPending, job.StatusRunning),
		).
		SetStatus(input.Status).
		SetFinishedAt(time.Now()).
		SetLastEventSeq(input.LastEventSeq)
	if input.ErrorMessage != "" {
		update = update.SetErrorMessage(input.ErrorMessage)
	}

	n, err := update.Save(ctx)
	if err != nil {
		return false, fmt.Errorf("marking job terminal: %w", err)
	}
	return n == 1, nil
}

// SetLastEventSeq backfills the stream cursor on a job row. Used for cache
// hits, whose rows are created terminal before their synthetic events exist.
func (s *JobService) SetLastEventSeq(ctx context.Context, jobID string, seq int) error {
	client, release, err := s.conn.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}
	defer release()

	_, err = client.Job.Update().
		Where(job.IDEQ(jobID)).
		SetLastEventSeq(seq).
		Save(ctx)
	if err != nil {
		return fmt.Errorf("setting last event seq: %w", err)
	}
	return nil
}

// RequestCancel sets the monotonic cancel flag. Idempotent; returns the job
// so callers can check ownership and current status.
func (s *JobService) RequestCancel(ctx context.Context, jobID string) (*ent.Job, error) {
	client, release, err := s.conn.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}
	defer release()

	j, err := client.Job.Get(ctx, jobID)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetching job: %w", err)
	}

	switch j.Status {
	case job.StatusCompleted, job.StatusFailed, job.StatusCancelled:
		return j, ErrNotCancellable
	}

	if !j.CancelRequested {
		_, err = client.Job.Update().
			Where(job.IDEQ(jobID)).
			SetCancelRequested(true).
			Save(ctx)
		if err != nil {
			return nil, fmt.Errorf("setting cancel flag: %w", err)
		}
		j.CancelRequested = true
	}
	return j, nil
}

// PurgeTerminalBefore deletes terminal jobs that finished before the cutoff.
// Artifacts are removed by the cascade on the job edge.
func (s *JobService) PurgeTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	client, release, err := s.conn.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquiring connection: %w", err)
	}
	defer release()

	n, err := client.Job.Delete().
		Where(
			job.StatusIn(job.StatusCompleted, job.StatusFailed, job.StatusCancelled),
			job.FinishedAtLT(cutoff),
		).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("purging expired jobs: %w", err)
	}
	return n, nil
}

// RecoverOrphans marks jobs left non-terminal by a previous process as
// failed. Called once at startup, before workers start: any pending/running
// row at that point belongs to a dead run and its event stream is gone.
func (s *JobService) RecoverOrphans(ctx context.Context) (int, error) {
	client, release, err := s.conn.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquiring connection: %w", err)
	}
	defer release()

	n, err := client.Job.Update().
		Where(job.StatusIn(job.StatusPending, job.StatusRunning)).
		SetStatus(job.StatusFailed).
		SetErrorMessage("orphaned by server restart").
		SetFinishedAt(time.Now()).
		Save(ctx)
	if err != nil {
		return 0, fmt.Errorf("recovering orphaned jobs: %w", err)
	}
	if n > 0 {
		slog.Warn("Recovered orphaned jobs from previous run", "count", n)
	}
	return n, nil
}
