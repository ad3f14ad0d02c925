package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeworks/draftforge/ent"
	"github.com/forgeworks/draftforge/pkg/cache"
	"github.com/forgeworks/draftforge/pkg/events"
	"github.com/forgeworks/draftforge/pkg/models"
	"github.com/forgeworks/draftforge/pkg/services"
)

// fakeArtifacts records persisted artifacts in memory.
type fakeArtifacts struct {
	mu      sync.Mutex
	stored  []services.PersistInput
	nextID  int
	failFor models.ContentType
}

func (f *fakeArtifacts) Persist(_ context.Context, input services.PersistInput) (*ent.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor != "" && input.Payload.Type == f.failFor {
		return nil, errors.New("db write failed")
	}
	f.nextID++
	f.stored = append(f.stored, input)
	return &ent.Artifact{ID: fmt.Sprintf("artifact-%d", f.nextID)}, nil
}

func (f *fakeArtifacts) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.stored)
}

// scriptedRunner delegates to StubRunner except for scripted stage failures.
type scriptedRunner struct {
	stub     StubRunner
	failures map[string]error // stage name -> error (consumed per call when repair succeeds)
	mu       sync.Mutex
	calls    []StageRequest
}

func (r *scriptedRunner) RunStage(ctx context.Context, req StageRequest) (*StageResult, error) {
	r.mu.Lock()
	r.calls = append(r.calls, req)
	r.mu.Unlock()
	if err, ok := r.failures[req.Stage]; ok && err != nil {
		return nil, err
	}
	return r.stub.RunStage(ctx, req)
}

func newTestAdapter(t *testing.T, runner Runner, artifacts ArtifactPersister) (*Adapter, *events.Bus, *cache.Cache) {
	t.Helper()
	bus := events.NewBus()
	c, err := cache.New(16)
	require.NoError(t, err)
	return NewAdapter(runner, artifacts, bus, c, 5*time.Second), bus, c
}

func never() bool { return false }

func newTestJob(c *cache.Cache, types ...models.ContentType) *Job {
	leader, _ := c.Begin("fp-test")
	return &Job{
		ID:              "job-1",
		UserID:          "user-1",
		Topic:           "ai in healthcare",
		Types:           types,
		Model:           "forge-pro-1",
		MaxParallel:     4,
		Fingerprint:     "fp-test",
		CacheTTL:        time.Hour,
		Leader:          leader,
		CancelRequested: never,
	}
}

func collectEvents(t *testing.T, bus *events.Bus, jobID string) []events.Event {
	t.Helper()
	sub, err := bus.Subscribe(jobID, 0)
	require.NoError(t, err)
	defer sub.Close()
	evs, _ := sub.Drain()
	return evs
}

func TestAdapterExecuteBlogJob(t *testing.T) {
	artifacts := &fakeArtifacts{}
	adapter, bus, c := newTestAdapter(t, &StubRunner{}, artifacts)

	job := newTestJob(c, models.ContentTypeBlog)
	bus.Register(job.ID)

	result, err := adapter.Execute(t.Context(), job)
	require.NoError(t, err)
	require.Contains(t, result.Bundle, models.ContentTypeBlog)
	assert.Empty(t, result.Missing)
	assert.Equal(t, 1, artifacts.count())
	assert.NotEmpty(t, result.Bundle[models.ContentTypeBlog].ArtifactID)
	assert.NotNil(t, result.Bundle[models.ContentTypeBlog].Metrics)

	// Cache write-through: the leader published the full bundle.
	got, state := c.Lookup("fp-test")
	require.Equal(t, cache.Hit, state)
	assert.Equal(t, result.Bundle[models.ContentTypeBlog].Content, got[models.ContentTypeBlog].Content)
}

func TestAdapterEventOrdering(t *testing.T) {
	artifacts := &fakeArtifacts{}
	adapter, bus, c := newTestAdapter(t, &StubRunner{}, artifacts)

	job := newTestJob(c, models.ContentTypeBlog)
	bus.Register(job.ID)

	result, err := adapter.Execute(t.Context(), job)
	require.NoError(t, err)

	evs := collectEvents(t, bus, job.ID)
	require.NotEmpty(t, evs)

	// artifact_ready precedes every content_chunk for its artifact, and
	// complete is strictly last.
	readyAt, firstChunkAt, completeAt := -1, -1, -1
	for i, ev := range evs {
		switch ev.Kind {
		case events.KindArtifactReady:
			readyAt = i
		case events.KindContentChunk:
			if firstChunkAt == -1 {
				firstChunkAt = i
			}
		case events.KindComplete:
			completeAt = i
		}
	}
	require.GreaterOrEqual(t, readyAt, 0)
	require.GreaterOrEqual(t, firstChunkAt, 0)
	assert.Less(t, readyAt, firstChunkAt, "chunks stream after the artifact is durable")
	assert.Equal(t, len(evs)-1, completeAt, "complete closes the stream")
	assert.Equal(t, result.LastEventSeq, evs[completeAt].ID)

	// Chunks reassemble into the persisted content.
	var rebuilt string
	for _, ev := range evs {
		if ev.Kind == events.KindContentChunk {
			rebuilt += ev.Payload.(events.ContentChunkPayload).Chunk
		}
	}
	assert.Equal(t, result.Bundle[models.ContentTypeBlog].Content, rebuilt)
}

func TestAdapterMultiTypeJob(t *testing.T) {
	artifacts := &fakeArtifacts{}
	adapter, bus, c := newTestAdapter(t, &StubRunner{}, artifacts)

	job := newTestJob(c, models.ContentTypeBlog, models.ContentTypeSocial, models.ContentTypeAudio)
	bus.Register(job.ID)

	result, err := adapter.Execute(t.Context(), job)
	require.NoError(t, err)
	assert.Len(t, result.Bundle, 3)
	assert.Empty(t, result.Missing)
	assert.NotEmpty(t, result.Bundle[models.ContentTypeAudio].AssetURI)
	assert.Equal(t, 3, artifacts.count())
}

func TestAdapterCoreStageFailureFailsJob(t *testing.T) {
	runner := &scriptedRunner{failures: map[string]error{
		StageWrite: fmt.Errorf("%w: model unavailable", ErrPipeline),
	}}
	artifacts := &fakeArtifacts{}
	adapter, bus, c := newTestAdapter(t, runner, artifacts)

	job := newTestJob(c, models.ContentTypeBlog)
	bus.Register(job.ID)

	_, err := adapter.Execute(t.Context(), job)
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageWrite, stageErr.Stage)
	assert.Equal(t, FailurePipelineError, stageErr.Kind)
	assert.Zero(t, artifacts.count())

	// Failure path never emits the terminal event; that belongs to the worker
	// boundary. The cache build is aborted.
	last, ok := bus.LastEventID(job.ID)
	require.True(t, ok)
	evs := collectEvents(t, bus, job.ID)
	require.Len(t, evs, last)
	for _, ev := range evs {
		assert.False(t, ev.Kind.Terminal())
	}
	_, state := c.Lookup("fp-test")
	assert.Equal(t, cache.Miss, state)
}

func TestAdapterStageTimeoutClassification(t *testing.T) {
	runner := &StubRunner{Delay: time.Second}
	artifacts := &fakeArtifacts{}
	bus := events.NewBus()
	c, err := cache.New(16)
	require.NoError(t, err)
	adapter := NewAdapter(runner, artifacts, bus, c, 20*time.Millisecond)

	job := newTestJob(c, models.ContentTypeBlog)
	bus.Register(job.ID)

	_, err = adapter.Execute(t.Context(), job)
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, FailureStageTimeout, stageErr.Kind)
}

func TestTruncatePreview(t *testing.T) {
	assert.Equal(t, "short", truncatePreview("short", 10))
	assert.Equal(t, "exact", truncatePreview("exact", 5))

	// "é" is two bytes; a cut inside it must back up to the rune start.
	assert.Equal(t, "aé", truncatePreview("aéé", 4))
	assert.Equal(t, "aé", truncatePreview("aéé", 3))

	long := truncatePreview(strings.Repeat("日", 400), previewLength)
	assert.True(t, utf8.ValidString(long))
	assert.LessOrEqual(t, len(long), previewLength)
}

func TestAdapterStageTimeoutOverHTTP(t *testing.T) {
	// The deadline fires inside the HTTP transport, not the runner's own
	// select loop; the classification must still be a stage timeout.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	artifacts := &fakeArtifacts{}
	bus := events.NewBus()
	c, err := cache.New(16)
	require.NoError(t, err)
	adapter := NewAdapter(NewHTTPRunner(srv.URL), artifacts, bus, c, 50*time.Millisecond)

	job := newTestJob(c, models.ContentTypeBlog)
	bus.Register(job.ID)

	_, err = adapter.Execute(t.Context(), job)
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, FailureStageTimeout, stageErr.Kind)
}

func TestAdapterOptionalRunErrorIsFatal(t *testing.T) {
	// A runner failure (as opposed to a validation failure) is fatal even on
	// an optional stage; only validation failures get the repair/omit path.
	runner := &scriptedRunner{failures: map[string]error{
		StageSocial: fmt.Errorf("%w: social generator down", ErrPipeline),
	}}
	artifacts := &fakeArtifacts{}
	adapter, bus, c := newTestAdapter(t, runner, artifacts)

	job := newTestJob(c, models.ContentTypeBlog, models.ContentTypeSocial)
	bus.Register(job.ID)

	_, err := adapter.Execute(t.Context(), job)
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageSocial, stageErr.Stage)
	assert.Equal(t, FailurePipelineError, stageErr.Kind)
}

// invalidSocialRunner returns structurally invalid social content on the first
// pass and keeps returning it on repair, forcing the omit path.
type invalidSocialRunner struct {
	stub    StubRunner
	repairs atomic.Int32
}

func (r *invalidSocialRunner) RunStage(ctx context.Context, req StageRequest) (*StageResult, error) {
	if req.Stage == StageSocial {
		if req.Repair {
			r.repairs.Add(1)
		}
		return &StageResult{Content: "   "}, nil
	}
	return r.stub.RunStage(ctx, req)
}

func TestAdapterOptionalValidationOmitsAfterOneRepair(t *testing.T) {
	runner := &invalidSocialRunner{}
	artifacts := &fakeArtifacts{}
	adapter, bus, c := newTestAdapter(t, runner, artifacts)

	job := newTestJob(c, models.ContentTypeBlog, models.ContentTypeSocial)
	bus.Register(job.ID)

	result, err := adapter.Execute(t.Context(), job)
	require.NoError(t, err, "optional validation failure keeps the job alive")
	assert.Equal(t, []models.ContentType{models.ContentTypeSocial}, result.Missing)
	assert.Equal(t, int32(1), runner.repairs.Load(), "exactly one repair pass")
	assert.NotContains(t, result.Bundle, models.ContentTypeSocial)
	assert.Contains(t, result.Bundle, models.ContentTypeBlog)

	// Partial bundles are never cached.
	_, state := c.Lookup("fp-test")
	assert.Equal(t, cache.Miss, state)

	// The complete payload names the missing type.
	evs := collectEvents(t, bus, job.ID)
	last := evs[len(evs)-1]
	require.Equal(t, events.KindComplete, last.Kind)
	payload := last.Payload.(events.CompletePayload)
	assert.Equal(t, []string{"social"}, payload.MissingTypes)
}

// invalidBlogRunner returns a structurally broken blog from the edit stage.
type invalidBlogRunner struct {
	stub StubRunner
}

func (r *invalidBlogRunner) RunStage(ctx context.Context, req StageRequest) (*StageResult, error) {
	if req.Stage == StageEdit {
		return &StageResult{Content: "Too short."}, nil
	}
	return r.stub.RunStage(ctx, req)
}

func TestAdapterBlogValidationFailureIsFatal(t *testing.T) {
	artifacts := &fakeArtifacts{}
	adapter, bus, c := newTestAdapter(t, &invalidBlogRunner{}, artifacts)

	job := newTestJob(c, models.ContentTypeBlog)
	bus.Register(job.ID)

	_, err := adapter.Execute(t.Context(), job)
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, FailureValidationFailed, stageErr.Kind)
	assert.ErrorIs(t, err, ErrValidationFailed)
	assert.Zero(t, artifacts.count())
}

func TestAdapterCancellationAtCheckpoint(t *testing.T) {
	artifacts := &fakeArtifacts{}
	adapter, bus, c := newTestAdapter(t, &StubRunner{}, artifacts)

	var calls atomic.Int32
	job := newTestJob(c, models.ContentTypeBlog)
	// Cancel observed after the first checkpoint poll.
	job.CancelRequested = func() bool { return calls.Add(1) > 1 }
	bus.Register(job.ID)

	_, err := adapter.Execute(t.Context(), job)
	require.ErrorIs(t, err, ErrCancelled)
	assert.Zero(t, artifacts.count(), "no artifact persists after cancellation")

	evs := collectEvents(t, bus, job.ID)
	require.NotEmpty(t, evs)
	assert.Equal(t, events.KindCancelled, evs[len(evs)-1].Kind)

	// Followers of the aborted build observe the abort.
	_, state := c.Lookup("fp-test")
	assert.Equal(t, cache.Miss, state)
}

func TestAdapterPersistFailure(t *testing.T) {
	artifacts := &fakeArtifacts{failFor: models.ContentTypeBlog}
	adapter, bus, c := newTestAdapter(t, &StubRunner{}, artifacts)

	job := newTestJob(c, models.ContentTypeBlog)
	bus.Register(job.ID)

	_, err := adapter.Execute(t.Context(), job)
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, FailurePipelineError, stageErr.Kind)

	// No artifact_ready announced for the failed persist.
	for _, ev := range collectEvents(t, bus, job.ID) {
		assert.NotEqual(t, events.KindArtifactReady, ev.Kind)
	}
}
