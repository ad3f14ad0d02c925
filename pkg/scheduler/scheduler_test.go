package scheduler

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeworks/draftforge/ent/job"
	"github.com/forgeworks/draftforge/pkg/auth"
	"github.com/forgeworks/draftforge/pkg/cache"
	"github.com/forgeworks/draftforge/pkg/config"
	"github.com/forgeworks/draftforge/pkg/events"
	"github.com/forgeworks/draftforge/pkg/models"
	"github.com/forgeworks/draftforge/pkg/pipeline"
	"github.com/forgeworks/draftforge/pkg/services"
	"github.com/forgeworks/draftforge/pkg/tier"
	"github.com/forgeworks/draftforge/test/util"
)

// testEnv wires a scheduler over a per-test database and an in-process stub
// pipeline.
type testEnv struct {
	sched *Scheduler
	jobs  *services.JobService
	users *services.UserService
	cache *cache.Cache
	bus   *events.Bus
}

func newTestEnv(t *testing.T, workers int, stageDelay time.Duration) *testEnv {
	t.Helper()
	conn := util.NewTestConnector(t)

	jobs := services.NewJobService(conn)
	artifacts := services.NewArtifactService(conn)
	users := services.NewUserService(conn)
	settings := services.NewSettingsService(conn)

	reg, err := config.LoadTierRegistry("")
	require.NoError(t, err)
	policy := tier.NewPolicy(reg, users)

	c, err := cache.New(64)
	require.NoError(t, err)
	bus := events.NewBus()

	adapter := pipeline.NewAdapter(&pipeline.StubRunner{Delay: stageDelay}, artifacts, bus, c, 5*time.Second)
	sched := New(Config{
		MaxGlobalWorkers: workers,
		JobTimeout:       30 * time.Second,
		StageTimeout:     5 * time.Second,
	}, policy, c, bus, jobs, settings, adapter)
	t.Cleanup(sched.Stop)

	return &testEnv{sched: sched, jobs: jobs, users: users, cache: c, bus: bus}
}

func (e *testEnv) createUser(t *testing.T, id string, tr config.Tier) *auth.Principal {
	t.Helper()
	_, err := e.users.CreateUser(t.Context(), id, id+"@example.com", tr, true, false)
	require.NoError(t, err)
	return &auth.Principal{UserID: id, Tier: tr, EmailVerified: true}
}

// waitTerminal polls the job row until it reaches a terminal status.
func (e *testEnv) waitTerminal(t *testing.T, jobID string) job.Status {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		j, err := e.jobs.GetJob(t.Context(), jobID)
		require.NoError(t, err)
		switch j.Status {
		case job.StatusCompleted, job.StatusFailed, job.StatusCancelled:
			return j.Status
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal status", jobID)
	return ""
}

func TestSubmitRunsJobToCompletion(t *testing.T) {
	env := newTestEnv(t, 2, 0)
	p := env.createUser(t, "user-1", config.TierPro)

	ticket, err := env.sched.Submit(t.Context(), Submission{
		Principal:      p,
		Topic:          "AI in Healthcare",
		RequestedTypes: []models.ContentType{models.ContentTypeBlog},
	})
	require.NoError(t, err)
	assert.False(t, ticket.CacheHit)
	assert.False(t, ticket.MediaFastLane)

	assert.Equal(t, job.StatusCompleted, env.waitTerminal(t, ticket.JobID))

	j, err := env.jobs.GetJob(t.Context(), ticket.JobID)
	require.NoError(t, err)
	assert.Equal(t, "ai in healthcare", j.NormalizedTopic)
	assert.Positive(t, j.LastEventSeq)
	require.NotNil(t, j.FinishedAt)

	// The stream ends with complete.
	sub, err := env.bus.Subscribe(ticket.JobID, 0)
	require.NoError(t, err)
	defer sub.Close()
	evs, ended := sub.Drain()
	require.True(t, ended)
	assert.Equal(t, events.KindJobStarted, evs[0].Kind)
	assert.Equal(t, events.KindComplete, evs[len(evs)-1].Kind)
}

func TestSubmitCacheHit(t *testing.T) {
	env := newTestEnv(t, 2, 0)
	p := env.createUser(t, "user-1", config.TierPro)

	first, err := env.sched.Submit(t.Context(), Submission{Principal: p, Topic: "AI in Healthcare"})
	require.NoError(t, err)
	require.Equal(t, job.StatusCompleted, env.waitTerminal(t, first.JobID))

	// Topic differs only in case and spacing; normalization makes it the same
	// fingerprint.
	second, err := env.sched.Submit(t.Context(), Submission{Principal: p, Topic: "  ai  IN healthcare "})
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.NotEqual(t, first.JobID, second.JobID, "cache hits still get their own job row")

	j, err := env.jobs.GetJob(t.Context(), second.JobID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, j.Status)
	assert.True(t, j.CacheHit)
	assert.Equal(t, 2, j.LastEventSeq, "synthetic job_started + complete")

	// Synthesized stream: job_started then complete carrying the bundle.
	sub, err := env.bus.Subscribe(second.JobID, 0)
	require.NoError(t, err)
	defer sub.Close()
	evs, ended := sub.Drain()
	require.True(t, ended)
	require.Len(t, evs, 2)
	assert.Equal(t, events.KindJobStarted, evs[0].Kind)
	require.Equal(t, events.KindComplete, evs[1].Kind)
	payload := evs[1].Payload.(events.CompletePayload)
	assert.NotEmpty(t, payload.Content)
}

func TestSubmitFollowerJoinsLeaderBuild(t *testing.T) {
	env := newTestEnv(t, 1, 50*time.Millisecond)
	p1 := env.createUser(t, "user-1", config.TierPro)
	p2 := env.createUser(t, "user-2", config.TierPro)

	leader, err := env.sched.Submit(t.Context(), Submission{Principal: p1, Topic: "AI in Healthcare"})
	require.NoError(t, err)
	follower, err := env.sched.Submit(t.Context(), Submission{Principal: p2, Topic: "ai in healthcare"})
	require.NoError(t, err)
	assert.False(t, follower.CacheHit)

	// Both complete even though only one worker slot exists: the follower
	// rides the leader's build instead of taking a slot.
	assert.Equal(t, job.StatusCompleted, env.waitTerminal(t, leader.JobID))
	assert.Equal(t, job.StatusCompleted, env.waitTerminal(t, follower.JobID))

	sub, err := env.bus.Subscribe(follower.JobID, 0)
	require.NoError(t, err)
	defer sub.Close()
	evs, _ := sub.Drain()
	require.NotEmpty(t, evs)
	last := evs[len(evs)-1]
	require.Equal(t, events.KindComplete, last.Kind)
	assert.NotEmpty(t, last.Payload.(events.CompletePayload).Content)
}

func TestSubmitPerUserCap(t *testing.T) {
	env := newTestEnv(t, 4, 300*time.Millisecond)
	// Free tier: MaxParallelStages 1, so one active job at a time.
	p := env.createUser(t, "user-1", config.TierFree)

	first, err := env.sched.Submit(t.Context(), Submission{Principal: p, Topic: "first topic"})
	require.NoError(t, err)

	_, err = env.sched.Submit(t.Context(), Submission{Principal: p, Topic: "second topic"})
	assert.ErrorIs(t, err, ErrTooManyInFlight)

	require.Equal(t, job.StatusCompleted, env.waitTerminal(t, first.JobID))

	// Cap clears once the first job finishes.
	second, err := env.sched.Submit(t.Context(), Submission{Principal: p, Topic: "second topic"})
	require.NoError(t, err)
	env.waitTerminal(t, second.JobID)
}

func TestSubmitConcurrentCapRace(t *testing.T) {
	env := newTestEnv(t, 4, 300*time.Millisecond)
	// Free tier: MaxParallelStages 1. Concurrent submissions race the cap
	// check against the insert; at most one may land.
	p := env.createUser(t, "user-1", config.TierFree)

	const attempts = 6
	var wg sync.WaitGroup
	var admitted atomic.Int32
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := env.sched.Submit(t.Context(), Submission{
				Principal: p,
				Topic:     fmt.Sprintf("racing topic %d", i),
			})
			if err == nil {
				admitted.Add(1)
			} else {
				errs[i] = err
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, int32(1), admitted.Load())
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, ErrTooManyInFlight)
		}
	}

	n, err := env.jobs.CountActive(t.Context(), "user-1")
	require.NoError(t, err)
	assert.LessOrEqual(t, n, 1)
}

func TestCancelFollowerPromptly(t *testing.T) {
	env := newTestEnv(t, 2, 400*time.Millisecond)
	p1 := env.createUser(t, "user-1", config.TierPro)
	p2 := env.createUser(t, "user-2", config.TierPro)

	leader, err := env.sched.Submit(t.Context(), Submission{Principal: p1, Topic: "shared topic"})
	require.NoError(t, err)
	follower, err := env.sched.Submit(t.Context(), Submission{Principal: p2, Topic: "shared topic"})
	require.NoError(t, err)

	// Let the follower row leave pending so cancellation exercises the
	// wait-on-leader path, not the direct pending transition.
	require.Eventually(t, func() bool {
		j, err := env.jobs.GetJob(t.Context(), follower.JobID)
		return err == nil && j.Status == job.StatusRunning
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, env.sched.Cancel(t.Context(), follower.JobID, p2))
	assert.Equal(t, job.StatusCancelled, env.waitTerminal(t, follower.JobID))

	// The leader's build is still in flight: the follower did not wait it out.
	j, err := env.jobs.GetJob(t.Context(), leader.JobID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusRunning, j.Status)

	assert.Equal(t, job.StatusCompleted, env.waitTerminal(t, leader.JobID))
}

func TestSubmitDenial(t *testing.T) {
	env := newTestEnv(t, 2, 0)
	p := env.createUser(t, "user-1", config.TierFree)

	_, err := env.sched.Submit(t.Context(), Submission{
		Principal:      p,
		Topic:          "AI in Healthcare",
		RequestedTypes: []models.ContentType{models.ContentTypeVideo},
	})
	var denial *tier.DenialError
	require.ErrorAs(t, err, &denial)
	assert.Equal(t, tier.DenialTypeNotAllowed, denial.Kind)

	_, err = env.sched.Submit(t.Context(), Submission{Principal: p, Topic: "   "})
	require.ErrorAs(t, err, &denial)
	assert.Equal(t, tier.DenialEmptyTopic, denial.Kind)
}

func TestCancelPendingJob(t *testing.T) {
	// One slot, held by a slow job; the second job waits pending.
	env := newTestEnv(t, 1, 300*time.Millisecond)
	p1 := env.createUser(t, "user-1", config.TierPro)
	p2 := env.createUser(t, "user-2", config.TierPro)

	running, err := env.sched.Submit(t.Context(), Submission{Principal: p1, Topic: "long running topic"})
	require.NoError(t, err)

	pending, err := env.sched.Submit(t.Context(), Submission{Principal: p2, Topic: "queued topic"})
	require.NoError(t, err)

	require.NoError(t, env.sched.Cancel(t.Context(), pending.JobID, p2))
	assert.Equal(t, job.StatusCancelled, env.waitTerminal(t, pending.JobID))

	// The cancelled stream carries a terminal cancelled event.
	sub, err := env.bus.Subscribe(pending.JobID, 0)
	require.NoError(t, err)
	defer sub.Close()
	evs, ended := sub.Drain()
	require.True(t, ended)
	assert.Equal(t, events.KindCancelled, evs[len(evs)-1].Kind)

	// The slot holder is unaffected.
	assert.Equal(t, job.StatusCompleted, env.waitTerminal(t, running.JobID))
}

func TestCancelRunningJob(t *testing.T) {
	env := newTestEnv(t, 2, 200*time.Millisecond)
	p := env.createUser(t, "user-1", config.TierPro)

	ticket, err := env.sched.Submit(t.Context(), Submission{Principal: p, Topic: "slow topic"})
	require.NoError(t, err)

	// Let the worker pick it up, then cancel mid-pipeline.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		j, err := env.jobs.GetJob(t.Context(), ticket.JobID)
		require.NoError(t, err)
		if j.Status == job.StatusRunning {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.NoError(t, env.sched.Cancel(t.Context(), ticket.JobID, p))

	assert.Equal(t, job.StatusCancelled, env.waitTerminal(t, ticket.JobID))

	// Cancelling a terminal job is rejected.
	err = env.sched.Cancel(t.Context(), ticket.JobID, p)
	assert.ErrorIs(t, err, services.ErrNotCancellable)
}

func TestCancelOwnership(t *testing.T) {
	env := newTestEnv(t, 2, 200*time.Millisecond)
	owner := env.createUser(t, "user-1", config.TierPro)
	stranger := env.createUser(t, "user-2", config.TierPro)

	ticket, err := env.sched.Submit(t.Context(), Submission{Principal: owner, Topic: "private topic"})
	require.NoError(t, err)

	err = env.sched.Cancel(t.Context(), ticket.JobID, stranger)
	assert.ErrorIs(t, err, services.ErrForbidden)

	admin := &auth.Principal{UserID: "admin-1", Tier: config.TierEnterprise, IsAdmin: true}
	assert.NoError(t, env.sched.Cancel(t.Context(), ticket.JobID, admin))
	env.waitTerminal(t, ticket.JobID)
}

func TestCancelUnknownJob(t *testing.T) {
	env := newTestEnv(t, 1, 0)
	p := env.createUser(t, "user-1", config.TierFree)
	err := env.sched.Cancel(t.Context(), "no-such-job", p)
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestSchedulerStatus(t *testing.T) {
	env := newTestEnv(t, 3, 0)
	st := env.sched.Status()
	assert.Equal(t, 0, st.ActiveJobs)
	assert.Equal(t, 3, st.FreeSlots)
}

func TestMediaFastLaneTicket(t *testing.T) {
	env := newTestEnv(t, 2, 0)
	p := env.createUser(t, "user-1", config.TierEnterprise)

	ticket, err := env.sched.Submit(t.Context(), Submission{
		Principal:      p,
		Topic:          "AI in Healthcare",
		RequestedTypes: []models.ContentType{models.ContentTypeBlog, models.ContentTypeAudio},
	})
	require.NoError(t, err)
	assert.True(t, ticket.MediaFastLane)
	env.waitTerminal(t, ticket.JobID)
}
