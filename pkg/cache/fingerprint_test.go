package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/forgeworks/draftforge/pkg/models"
)

func TestNormalizeTopic(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercases", "AI In Healthcare", "ai in healthcare"},
		{"collapses whitespace", "ai \t in\n\nhealthcare", "ai in healthcare"},
		{"trims", "  ai in healthcare  ", "ai in healthcare"},
		{"nfkc folds width variants", "ＡＩ", "ai"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeTopic(tt.input))
		})
	}
}

func TestFingerprint(t *testing.T) {
	blog := []models.ContentType{models.ContentTypeBlog}
	blogAudio := []models.ContentType{models.ContentTypeBlog, models.ContentTypeAudio}

	t.Run("deterministic", func(t *testing.T) {
		a := Fingerprint("ai in healthcare", blog, "forge-standard-1", 1)
		b := Fingerprint("ai in healthcare", blog, "forge-standard-1", 1)
		assert.Equal(t, a, b)
		assert.Len(t, a, 64) // 256-bit hex
	})

	t.Run("type order does not split the cache", func(t *testing.T) {
		a := Fingerprint("topic", blogAudio, "m", 1)
		b := Fingerprint("topic", []models.ContentType{models.ContentTypeAudio, models.ContentTypeBlog}, "m", 1)
		assert.Equal(t, a, b)
	})

	t.Run("each tuple field participates", func(t *testing.T) {
		base := Fingerprint("topic", blog, "m", 1)
		assert.NotEqual(t, base, Fingerprint("other", blog, "m", 1))
		assert.NotEqual(t, base, Fingerprint("topic", blogAudio, "m", 1))
		assert.NotEqual(t, base, Fingerprint("topic", blog, "m2", 1))
		assert.NotEqual(t, base, Fingerprint("topic", blog, "m", 2))
	})
}
