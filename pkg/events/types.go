// Package events provides the per-job streaming event bus: bounded in-memory
// append-only logs feeding one-way push subscriptions, with ordered delivery,
// bounded retention, and race-free terminal handover.
//
// Keep-alives are synthetic: they exist only in the subscriber stream (written
// by the SSE layer), never in the per-job log, and always carry event_id 0 so
// they can never advance a client cursor.
package events

import (
	"time"

	"github.com/forgeworks/draftforge/pkg/models"
)

// Kind identifies an event type on a job stream.
type Kind string

// Event kinds. Complete, Cancelled, and Error are terminal: exactly one of
// them closes every job log, and it is the last persisted event.
const (
	KindStatus         Kind = "status"
	KindJobStarted     Kind = "job_started"
	KindStageProgress  Kind = "stage_progress"
	KindContentPreview Kind = "content_preview"
	KindContentChunk   Kind = "content_chunk"
	KindArtifactReady  Kind = "artifact_ready"
	KindComplete       Kind = "complete"
	KindCancelled      Kind = "cancelled"
	KindError          Kind = "error"
	KindKeepAlive      Kind = "keep_alive"
)

// Terminal reports whether the kind closes a job stream.
func (k Kind) Terminal() bool {
	return k == KindComplete || k == KindCancelled || k == KindError
}

// Event is one unit of the push stream.
type Event struct {
	ID        int       `json:"event_id"` // monotonic per job from 1; 0 for synthetic events
	Kind      Kind      `json:"kind"`
	Payload   any       `json:"payload,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// --- Well-known payload schemas (wire contract) ---

// JobStartedPayload announces an accepted job.
type JobStartedPayload struct {
	JobID              string `json:"job_id"`
	ContentTypeDisplay string `json:"content_type_display"`
}

// StatusPayload carries free-form progress messages, including stage entry
// announcements and subscriber-side gap markers.
type StatusPayload struct {
	Message     string `json:"message"`
	ContentType string `json:"content_type,omitempty"`
	Stage       string `json:"stage,omitempty"`
	Gap         bool   `json:"gap,omitempty"` // subscriber buffer overflowed; events were dropped
}

// StageProgressPayload reports pipeline progress as a percentage.
type StageProgressPayload struct {
	Stage   string `json:"stage"`
	Percent int    `json:"percent"`
}

// ContentPreviewPayload is optimistic UI material emitted before validation;
// never the final artifact.
type ContentPreviewPayload struct {
	ArtifactType models.ContentType `json:"artifact_type"`
	Preview      string             `json:"preview"`
	TotalLength  int                `json:"total_length"`
}

// ContentChunkPayload streams validated textual content in adaptive chunks.
type ContentChunkPayload struct {
	ArtifactType models.ContentType `json:"artifact_type"`
	Chunk        string             `json:"chunk"`
	Progress     int                `json:"progress"` // percent of the artifact streamed so far
}

// ArtifactReadyPayload announces a durable artifact. Always emitted after the
// artifact row is committed and always before the job's complete event.
type ArtifactReadyPayload struct {
	ArtifactID     string                 `json:"artifact_id"`
	ArtifactType   models.ContentType     `json:"artifact_type"`
	QualityMetrics *models.QualityMetrics `json:"quality_metrics,omitempty"`
}

// CompletePayload is the terminal snapshot of the full bundle. Redundant with
// the per-artifact events on purpose: subscribers that missed intermediate
// events recover from it, synchronized subscribers ignore the duplication.
type CompletePayload struct {
	JobID              string   `json:"job_id"`
	Content            string   `json:"content,omitempty"`
	SocialMediaContent string   `json:"social_media_content,omitempty"`
	AudioContent       string   `json:"audio_content,omitempty"`
	VideoContent       string   `json:"video_content,omitempty"`
	MissingTypes       []string `json:"missing_types,omitempty"` // optional types that failed validation
}

// NewCompletePayload maps a bundle into the wire snapshot. Media artifacts
// contribute their asset URI.
func NewCompletePayload(jobID string, bundle models.Bundle, missing []models.ContentType) CompletePayload {
	p := CompletePayload{JobID: jobID}
	for t, a := range bundle {
		v := a.Content
		if v == "" {
			v = a.AssetURI
		}
		switch t {
		case models.ContentTypeBlog:
			p.Content = v
		case models.ContentTypeSocial:
			p.SocialMediaContent = v
		case models.ContentTypeAudio:
			p.AudioContent = v
		case models.ContentTypeVideo:
			p.VideoContent = v
		}
	}
	for _, t := range missing {
		p.MissingTypes = append(p.MissingTypes, string(t))
	}
	return p
}

// CancelledPayload is the terminal event of a cancelled job.
type CancelledPayload struct {
	JobID   string `json:"job_id"`
	Message string `json:"message"`
}

// ErrorPayload is the terminal event of a failed job.
type ErrorPayload struct {
	Message   string `json:"message"`
	ErrorType string `json:"error_type"`
	Hint      string `json:"hint,omitempty"`
}
