package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseContentTypes(t *testing.T) {
	t.Run("preserves order and drops duplicates", func(t *testing.T) {
		got, err := ParseContentTypes([]string{"social", "blog", "social"})
		require.NoError(t, err)
		assert.Equal(t, []ContentType{ContentTypeSocial, ContentTypeBlog}, got)
	})

	t.Run("empty input", func(t *testing.T) {
		got, err := ParseContentTypes(nil)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := ParseContentTypes([]string{"blog", "hologram"})
		assert.ErrorContains(t, err, "hologram")
	})
}

func TestContentTypeIsMedia(t *testing.T) {
	assert.False(t, ContentTypeBlog.IsMedia())
	assert.False(t, ContentTypeSocial.IsMedia())
	assert.True(t, ContentTypeAudio.IsMedia())
	assert.True(t, ContentTypeVideo.IsMedia())
}

func TestContentTypeDisplay(t *testing.T) {
	assert.Equal(t, "Blog Post", ContentTypeBlog.Display())
	assert.Equal(t, "Audio Narration", ContentTypeAudio.Display())
	assert.Equal(t, "mystery", ContentType("mystery").Display())
}

func TestBundleClone(t *testing.T) {
	b := Bundle{
		ContentTypeBlog: {Type: ContentTypeBlog, Content: "original"},
	}
	c := b.Clone()

	entry := c[ContentTypeBlog]
	entry.Content = "mutated"
	c[ContentTypeBlog] = entry

	assert.Equal(t, "original", b[ContentTypeBlog].Content)
}
