package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeworks/draftforge/pkg/models"
)

func validBlog() string {
	paragraph := strings.Repeat("practical observations about the field under discussion ", 8)
	return "The State of the Field\n\n" + paragraph + "\n\n" + paragraph
}

func TestValidateBlog(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		err := ValidateArtifact(models.ContentTypeBlog, &StageResult{Content: validBlog()})
		assert.NoError(t, err)
	})

	t.Run("no title", func(t *testing.T) {
		err := ValidateArtifact(models.ContentTypeBlog, &StageResult{Content: "   \n\n  "})
		assert.ErrorIs(t, err, ErrValidationFailed)
	})

	t.Run("title but no body", func(t *testing.T) {
		err := ValidateArtifact(models.ContentTypeBlog, &StageResult{Content: "Just a Title\n"})
		assert.ErrorIs(t, err, ErrValidationFailed)
	})

	t.Run("too short", func(t *testing.T) {
		err := ValidateArtifact(models.ContentTypeBlog, &StageResult{
			Content: "Title\n\nShort body paragraph.",
		})
		require.ErrorIs(t, err, ErrValidationFailed)
		assert.ErrorContains(t, err, "too short")
	})
}

func TestValidateSocial(t *testing.T) {
	assert.NoError(t, ValidateArtifact(models.ContentTypeSocial, &StageResult{Content: "hot take"}))
	assert.ErrorIs(t,
		ValidateArtifact(models.ContentTypeSocial, &StageResult{Content: "  \n "}),
		ErrValidationFailed)
}

func TestValidateMedia(t *testing.T) {
	assert.NoError(t, ValidateArtifact(models.ContentTypeAudio, &StageResult{AssetURI: "s3://bucket/a.mp3"}))
	assert.ErrorIs(t,
		ValidateArtifact(models.ContentTypeVideo, &StageResult{Content: "script without asset"}),
		ErrValidationFailed)
}

func TestValidateUnknownType(t *testing.T) {
	assert.ErrorIs(t,
		ValidateArtifact(models.ContentType("hologram"), &StageResult{Content: "x"}),
		ErrValidationFailed)
}

func TestComputeMetrics(t *testing.T) {
	m := ComputeMetrics("one two three four")
	assert.Equal(t, 4, m.WordCount)
	assert.Equal(t, 18, m.CharCount)
	assert.Equal(t, 1.0, m.ReadMinutes)

	long := strings.Repeat("word ", 450)
	m = ComputeMetrics(long)
	assert.Equal(t, 450, m.WordCount)
	assert.Equal(t, 3.0, m.ReadMinutes, "reading time rounds up")
}
