package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeworks/draftforge/ent/artifact"
	"github.com/forgeworks/draftforge/pkg/models"
)

func TestPersistAndListArtifacts(t *testing.T) {
	env := newServiceEnv(t)
	env.seedUser(t, "user-1")
	env.seedJob(t, "job-1", "user-1")

	blog, err := env.artifacts.Persist(t.Context(), PersistInput{
		JobID:       "job-1",
		UserID:      "user-1",
		Fingerprint: "fp-job-1",
		Payload: models.ArtifactPayload{
			Type:    models.ContentTypeBlog,
			Content: "The Title\n\nBody paragraph.",
			Metrics: &models.QualityMetrics{WordCount: 4, CharCount: 26, ReadMinutes: 1},
		},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, blog.ID)

	audio, err := env.artifacts.Persist(t.Context(), PersistInput{
		JobID:       "job-1",
		UserID:      "user-1",
		Fingerprint: "fp-job-1",
		Payload: models.ArtifactPayload{
			Type:     models.ContentTypeAudio,
			AssetURI: "asset://audio/abc.mp3",
		},
	})
	require.NoError(t, err)

	arts, err := env.artifacts.ListByJob(t.Context(), "job-1")
	require.NoError(t, err)
	require.Len(t, arts, 2)
	assert.Equal(t, blog.ID, arts[0].ID)
	assert.Equal(t, artifact.ArtifactTypeBlog, arts[0].ArtifactType)
	assert.EqualValues(t, 4, arts[0].QualityMetrics["word_count"])
	assert.Equal(t, audio.ID, arts[1].ID)
	assert.Equal(t, "asset://audio/abc.mp3", arts[1].AssetURI)
	assert.Empty(t, arts[1].Content)
	assert.Nil(t, arts[1].QualityMetrics, "media artifacts carry no metrics")
}

func TestPersistRejectsUnknownJob(t *testing.T) {
	env := newServiceEnv(t)
	env.seedUser(t, "user-1")

	_, err := env.artifacts.Persist(t.Context(), PersistInput{
		JobID:       "missing",
		UserID:      "user-1",
		Fingerprint: "fp",
		Payload:     models.ArtifactPayload{Type: models.ContentTypeBlog, Content: "x"},
	})
	assert.Error(t, err, "artifacts are owned by an existing job")
}

func TestFingerprintsByUser(t *testing.T) {
	env := newServiceEnv(t)
	env.seedUser(t, "user-1")
	env.seedUser(t, "user-2")
	env.seedJob(t, "job-1", "user-1")
	env.seedJob(t, "job-2", "user-1")
	env.seedJob(t, "job-3", "user-2")

	persist := func(jobID, userID, fp string) {
		_, err := env.artifacts.Persist(t.Context(), PersistInput{
			JobID:       jobID,
			UserID:      userID,
			Fingerprint: fp,
			Payload:     models.ArtifactPayload{Type: models.ContentTypeBlog, Content: "x"},
		})
		require.NoError(t, err)
	}
	persist("job-1", "user-1", "fp-a")
	persist("job-1", "user-1", "fp-a") // duplicate fingerprint
	persist("job-2", "user-1", "fp-b")
	persist("job-3", "user-2", "fp-c")

	fps, err := env.artifacts.FingerprintsByUser(t.Context(), "user-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"fp-a", "fp-b"}, fps, "distinct fingerprints, own user only")

	fps, err = env.artifacts.FingerprintsByUser(t.Context(), "user-absent")
	require.NoError(t, err)
	assert.Empty(t, fps)
}
