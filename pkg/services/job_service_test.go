package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeworks/draftforge/ent/job"
	"github.com/forgeworks/draftforge/pkg/config"
	"github.com/forgeworks/draftforge/pkg/models"
	"github.com/forgeworks/draftforge/test/util"
)

type serviceEnv struct {
	jobs      *JobService
	artifacts *ArtifactService
	users     *UserService
	settings  *SettingsService
}

func newServiceEnv(t *testing.T) *serviceEnv {
	t.Helper()
	conn := util.NewTestConnector(t)
	return &serviceEnv{
		jobs:      NewJobService(conn),
		artifacts: NewArtifactService(conn),
		users:     NewUserService(conn),
		settings:  NewSettingsService(conn),
	}
}

func (e *serviceEnv) seedUser(t *testing.T, id string) {
	t.Helper()
	_, err := e.users.CreateUser(t.Context(), id, id+"@example.com", config.TierPro, true, false)
	require.NoError(t, err)
}

func (e *serviceEnv) seedJob(t *testing.T, jobID, userID string) {
	t.Helper()
	_, err := e.jobs.CreateJob(t.Context(), CreateJobInput{
		JobID:           jobID,
		UserID:          userID,
		Topic:           "AI in Healthcare",
		NormalizedTopic: "ai in healthcare",
		RequestedTypes:  []models.ContentType{models.ContentTypeBlog},
		ModelID:         "forge-pro-1",
		Fingerprint:     "fp-" + jobID,
	})
	require.NoError(t, err)
}

func TestCreateAndGetJob(t *testing.T) {
	env := newServiceEnv(t)
	env.seedUser(t, "user-1")
	env.seedJob(t, "job-1", "user-1")

	j, err := env.jobs.GetJob(t.Context(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, job.StatusPending, j.Status)
	assert.Equal(t, []string{"blog"}, j.RequestedTypes)
	assert.False(t, j.CacheHit)
	assert.Nil(t, j.StartedAt)

	_, err = env.jobs.GetJob(t.Context(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateCacheHitJob(t *testing.T) {
	env := newServiceEnv(t)
	env.seedUser(t, "user-1")

	_, err := env.jobs.CreateJob(t.Context(), CreateJobInput{
		JobID:           "job-1",
		UserID:          "user-1",
		Topic:           "AI in Healthcare",
		NormalizedTopic: "ai in healthcare",
		RequestedTypes:  []models.ContentType{models.ContentTypeBlog},
		ModelID:         "forge-pro-1",
		Fingerprint:     "fp-1",
		CacheHit:        true,
	})
	require.NoError(t, err)

	j, err := env.jobs.GetJob(t.Context(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, j.Status, "cache hits are recorded already completed")
	assert.True(t, j.CacheHit)
	assert.NotNil(t, j.FinishedAt)
}

func TestJobStatusTransitions(t *testing.T) {
	env := newServiceEnv(t)
	env.seedUser(t, "user-1")
	env.seedJob(t, "job-1", "user-1")

	started, err := env.jobs.MarkRunning(t.Context(), "job-1")
	require.NoError(t, err)
	assert.True(t, started)

	// Second claim loses the conditional update.
	started, err = env.jobs.MarkRunning(t.Context(), "job-1")
	require.NoError(t, err)
	assert.False(t, started)

	done, err := env.jobs.MarkTerminal(t.Context(), "job-1", TerminalInput{
		Status:       job.StatusCompleted,
		LastEventSeq: 12,
	})
	require.NoError(t, err)
	assert.True(t, done)

	// Terminal is frozen: no further transitions.
	done, err = env.jobs.MarkTerminal(t.Context(), "job-1", TerminalInput{Status: job.StatusFailed})
	require.NoError(t, err)
	assert.False(t, done)
	started, err = env.jobs.MarkRunning(t.Context(), "job-1")
	require.NoError(t, err)
	assert.False(t, started)

	j, err := env.jobs.GetJob(t.Context(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, j.Status)
	assert.Equal(t, 12, j.LastEventSeq)
}

func TestSetLastEventSeq(t *testing.T) {
	env := newServiceEnv(t)
	env.seedUser(t, "user-1")
	env.seedJob(t, "job-1", "user-1")

	// Works on terminal rows too: cache-hit rows are born completed and get
	// their cursor backfilled afterwards.
	done, err := env.jobs.MarkTerminal(t.Context(), "job-1", TerminalInput{Status: job.StatusCompleted})
	require.NoError(t, err)
	require.True(t, done)

	require.NoError(t, env.jobs.SetLastEventSeq(t.Context(), "job-1", 2))

	j, err := env.jobs.GetJob(t.Context(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, 2, j.LastEventSeq)
}

func TestMarkTerminalFromPending(t *testing.T) {
	env := newServiceEnv(t)
	env.seedUser(t, "user-1")
	env.seedJob(t, "job-1", "user-1")

	done, err := env.jobs.MarkTerminal(t.Context(), "job-1", TerminalInput{Status: job.StatusCancelled})
	require.NoError(t, err)
	assert.True(t, done, "pending jobs cancel directly")
}

func TestMarkTerminalRecordsError(t *testing.T) {
	env := newServiceEnv(t)
	env.seedUser(t, "user-1")
	env.seedJob(t, "job-1", "user-1")

	_, err := env.jobs.MarkRunning(t.Context(), "job-1")
	require.NoError(t, err)
	_, err = env.jobs.MarkTerminal(t.Context(), "job-1", TerminalInput{
		Status:       job.StatusFailed,
		ErrorMessage: "stage write failed",
	})
	require.NoError(t, err)

	j, err := env.jobs.GetJob(t.Context(), "job-1")
	require.NoError(t, err)
	require.NotNil(t, j.ErrorMessage)
	assert.Equal(t, "stage write failed", *j.ErrorMessage)
}

func TestRequestCancel(t *testing.T) {
	env := newServiceEnv(t)
	env.seedUser(t, "user-1")
	env.seedJob(t, "job-1", "user-1")

	j, err := env.jobs.RequestCancel(t.Context(), "job-1")
	require.NoError(t, err)
	assert.True(t, j.CancelRequested)

	// Idempotent.
	j, err = env.jobs.RequestCancel(t.Context(), "job-1")
	require.NoError(t, err)
	assert.True(t, j.CancelRequested)

	_, err = env.jobs.MarkTerminal(t.Context(), "job-1", TerminalInput{Status: job.StatusCancelled})
	require.NoError(t, err)
	_, err = env.jobs.RequestCancel(t.Context(), "job-1")
	assert.ErrorIs(t, err, ErrNotCancellable)

	_, err = env.jobs.RequestCancel(t.Context(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListJobs(t *testing.T) {
	env := newServiceEnv(t)
	env.seedUser(t, "user-1")
	env.seedUser(t, "user-2")
	for _, id := range []string{"job-1", "job-2", "job-3"} {
		env.seedJob(t, id, "user-1")
	}
	env.seedJob(t, "job-other", "user-2")

	_, err := env.jobs.MarkRunning(t.Context(), "job-2")
	require.NoError(t, err)

	jobs, total, err := env.jobs.ListJobs(t.Context(), "user-1", JobFilters{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, jobs, 3)

	jobs, total, err = env.jobs.ListJobs(t.Context(), "user-1", JobFilters{Status: "running"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, jobs, 1)
	assert.Equal(t, "job-2", jobs[0].ID)

	jobs, total, err = env.jobs.ListJobs(t.Context(), "user-1", JobFilters{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, jobs, 2)
}

func TestCountActive(t *testing.T) {
	env := newServiceEnv(t)
	env.seedUser(t, "user-1")
	env.seedJob(t, "job-1", "user-1")
	env.seedJob(t, "job-2", "user-1")

	n, err := env.jobs.CountActive(t.Context(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = env.jobs.MarkTerminal(t.Context(), "job-1", TerminalInput{Status: job.StatusCompleted})
	require.NoError(t, err)

	n, err = env.jobs.CountActive(t.Context(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRecoverOrphans(t *testing.T) {
	env := newServiceEnv(t)
	env.seedUser(t, "user-1")
	env.seedJob(t, "job-pending", "user-1")
	env.seedJob(t, "job-running", "user-1")
	env.seedJob(t, "job-done", "user-1")

	_, err := env.jobs.MarkRunning(t.Context(), "job-running")
	require.NoError(t, err)
	_, err = env.jobs.MarkTerminal(t.Context(), "job-done", TerminalInput{Status: job.StatusCompleted})
	require.NoError(t, err)

	n, err := env.jobs.RecoverOrphans(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, id := range []string{"job-pending", "job-running"} {
		j, err := env.jobs.GetJob(t.Context(), id)
		require.NoError(t, err)
		assert.Equal(t, job.StatusFailed, j.Status)
		require.NotNil(t, j.ErrorMessage)
		assert.Equal(t, "orphaned by server restart", *j.ErrorMessage)
	}
	j, err := env.jobs.GetJob(t.Context(), "job-done")
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, j.Status)
}

func TestPurgeTerminalBefore(t *testing.T) {
	env := newServiceEnv(t)
	env.seedUser(t, "user-1")
	env.seedJob(t, "job-old", "user-1")
	env.seedJob(t, "job-new", "user-1")
	env.seedJob(t, "job-live", "user-1")

	_, err := env.jobs.MarkTerminal(t.Context(), "job-old", TerminalInput{Status: job.StatusCompleted})
	require.NoError(t, err)

	// Attach an artifact to the old job; the purge must cascade it away.
	_, err = env.artifacts.Persist(t.Context(), PersistInput{
		JobID:       "job-old",
		UserID:      "user-1",
		Fingerprint: "fp-job-old",
		Payload:     models.ArtifactPayload{Type: models.ContentTypeBlog, Content: "old content"},
	})
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	cutoff := time.Now()
	time.Sleep(10 * time.Millisecond)

	_, err = env.jobs.MarkTerminal(t.Context(), "job-new", TerminalInput{Status: job.StatusCompleted})
	require.NoError(t, err)

	n, err := env.jobs.PurgeTerminalBefore(t.Context(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = env.jobs.GetJob(t.Context(), "job-old")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = env.jobs.GetJob(t.Context(), "job-new")
	assert.NoError(t, err)
	_, err = env.jobs.GetJob(t.Context(), "job-live")
	assert.NoError(t, err, "non-terminal jobs are never purged")

	arts, err := env.artifacts.ListByJob(t.Context(), "job-old")
	require.NoError(t, err)
	assert.Empty(t, arts, "artifacts cascade with their job")
}
