package pipeline

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeworks/draftforge/pkg/models"
)

func TestStubRunnerDeterministic(t *testing.T) {
	r := &StubRunner{}
	req := StageRequest{Stage: StageWrite, Topic: "ai in healthcare", Model: "forge-pro-1"}

	a, err := r.RunStage(t.Context(), req)
	require.NoError(t, err)
	b, err := r.RunStage(t.Context(), req)
	require.NoError(t, err)
	assert.Equal(t, a.Content, b.Content, "identical requests yield identical output")

	other, err := r.RunStage(t.Context(), StageRequest{Stage: StageWrite, Topic: "ai in healthcare", Model: "forge-lite-1"})
	require.NoError(t, err)
	assert.NotEqual(t, a.Content, other.Content, "model participates in the output")
}

func TestStubRunnerProducesValidDeliverables(t *testing.T) {
	r := &StubRunner{}
	topic := "ai in healthcare"

	write, err := r.RunStage(t.Context(), StageRequest{Stage: StageWrite, Topic: topic, Model: "m"})
	require.NoError(t, err)
	edit, err := r.RunStage(t.Context(), StageRequest{
		Stage: StageEdit, Topic: topic, Model: "m",
		Inputs: map[string]string{StageWrite: write.Content},
	})
	require.NoError(t, err)
	assert.NoError(t, ValidateArtifact(models.ContentTypeBlog, edit))

	audio, err := r.RunStage(t.Context(), StageRequest{Stage: StageAudio, Topic: topic, Model: "m"})
	require.NoError(t, err)
	assert.NoError(t, ValidateArtifact(models.ContentTypeAudio, audio))
}

func TestStubRunnerUnknownStage(t *testing.T) {
	r := &StubRunner{}
	_, err := r.RunStage(t.Context(), StageRequest{Stage: "daydream"})
	assert.ErrorIs(t, err, ErrPipeline)
}

func TestHTTPRunner(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/stages/write", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req StageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "job-1", req.JobID)
		assert.Equal(t, "notes", req.Inputs[StageResearch])

		json.NewEncoder(w).Encode(StageResult{Content: "draft"})
	}))
	defer srv.Close()

	r := NewHTTPRunner(srv.URL + "/")
	result, err := r.RunStage(t.Context(), StageRequest{
		JobID:  "job-1",
		Stage:  StageWrite,
		Topic:  "t",
		Model:  "m",
		Inputs: map[string]string{StageResearch: "notes"},
	})
	require.NoError(t, err)
	assert.Equal(t, "draft", result.Content)
}

func TestHTTPRunnerErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	r := NewHTTPRunner(srv.URL)
	_, err := r.RunStage(t.Context(), StageRequest{Stage: StageWrite})
	require.ErrorIs(t, err, ErrPipeline)
	assert.ErrorContains(t, err, "503")
	assert.ErrorContains(t, err, "model overloaded")
}

func TestHTTPRunnerConnectionRefused(t *testing.T) {
	r := NewHTTPRunner("http://127.0.0.1:1")
	_, err := r.RunStage(t.Context(), StageRequest{Stage: StageWrite})
	assert.ErrorIs(t, err, ErrPipeline)
}
