package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/forgeworks/draftforge/pkg/models"
)

// Blog structure thresholds.
const (
	blogMinWords      = 100
	readingWordsPerMn = 200
)

// ErrValidationFailed wraps structural validation failures. Failures on core
// deliverables fail the job; failures on optional deliverables omit the
// artifact after one repair pass.
var ErrValidationFailed = errors.New("validation failed")

// ValidateArtifact checks a stage deliverable for structural soundness.
func ValidateArtifact(t models.ContentType, result *StageResult) error {
	switch t {
	case models.ContentTypeBlog:
		return validateBlog(result.Content)
	case models.ContentTypeSocial:
		if strings.TrimSpace(result.Content) == "" {
			return fmt.Errorf("%w: empty social content", ErrValidationFailed)
		}
		return nil
	case models.ContentTypeAudio, models.ContentTypeVideo:
		if strings.TrimSpace(result.AssetURI) == "" {
			return fmt.Errorf("%w: %s artifact missing asset URI", ErrValidationFailed, t)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown artifact type %q", ErrValidationFailed, t)
	}
}

// validateBlog requires a title line, at least one body paragraph, and a
// minimum word count.
func validateBlog(content string) error {
	lines := strings.Split(content, "\n")
	title := ""
	for _, line := range lines {
		if s := strings.TrimSpace(line); s != "" {
			title = s
			break
		}
	}
	if title == "" {
		return fmt.Errorf("%w: blog has no title", ErrValidationFailed)
	}

	paragraphs := 0
	for _, block := range strings.Split(content, "\n\n") {
		block = strings.TrimSpace(block)
		if block != "" && block != title {
			paragraphs++
		}
	}
	if paragraphs < 1 {
		return fmt.Errorf("%w: blog has no body paragraphs", ErrValidationFailed)
	}

	if words := len(strings.Fields(content)); words < blogMinWords {
		return fmt.Errorf("%w: blog too short (%d words, need %d)", ErrValidationFailed, words, blogMinWords)
	}
	return nil
}

// ComputeMetrics derives quality metrics for a textual artifact.
func ComputeMetrics(content string) *models.QualityMetrics {
	words := len(strings.Fields(content))
	minutes := (words + readingWordsPerMn - 1) / readingWordsPerMn
	if minutes < 1 {
		minutes = 1
	}
	return &models.QualityMetrics{
		WordCount:   words,
		CharCount:   utf8.RuneCountInString(content),
		ReadMinutes: float64(minutes),
	}
}
