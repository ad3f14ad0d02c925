// Package models contains shared domain types passed between the API,
// scheduler, pipeline, cache, and services layers.
package models

import "fmt"

// ContentType identifies one deliverable kind a job can produce.
type ContentType string

// Supported content types. These mirror the artifact_type enum in the
// artifacts table.
const (
	ContentTypeBlog   ContentType = "blog"
	ContentTypeSocial ContentType = "social"
	ContentTypeAudio  ContentType = "audio"
	ContentTypeVideo  ContentType = "video"
)

// AllContentTypes lists every supported type in canonical order.
var AllContentTypes = []ContentType{
	ContentTypeBlog,
	ContentTypeSocial,
	ContentTypeAudio,
	ContentTypeVideo,
}

// Valid reports whether t is one of the supported content types.
func (t ContentType) Valid() bool {
	switch t {
	case ContentTypeBlog, ContentTypeSocial, ContentTypeAudio, ContentTypeVideo:
		return true
	}
	return false
}

// IsMedia reports whether t is a media type (audio/video). Media artifacts
// carry an asset URI instead of inline text and arrive near the end of a run,
// which makes their streams eligible for the fast-lane drain interval.
func (t ContentType) IsMedia() bool {
	return t == ContentTypeAudio || t == ContentTypeVideo
}

// Display returns the human-readable label used in job_started events.
func (t ContentType) Display() string {
	switch t {
	case ContentTypeBlog:
		return "Blog Post"
	case ContentTypeSocial:
		return "Social Media Content"
	case ContentTypeAudio:
		return "Audio Narration"
	case ContentTypeVideo:
		return "Video Script"
	default:
		return string(t)
	}
}

// ParseContentTypes validates raw strings into content types, preserving
// request order and dropping duplicates.
func ParseContentTypes(raw []string) ([]ContentType, error) {
	out := make([]ContentType, 0, len(raw))
	seen := make(map[ContentType]bool, len(raw))
	for _, r := range raw {
		t := ContentType(r)
		if !t.Valid() {
			return nil, fmt.Errorf("unknown content type %q", r)
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out, nil
}

// ContainsContentType reports whether ts contains t.
func ContainsContentType(ts []ContentType, t ContentType) bool {
	for _, x := range ts {
		if x == t {
			return true
		}
	}
	return false
}
