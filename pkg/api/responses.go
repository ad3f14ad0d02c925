package api

import (
	"time"

	"github.com/forgeworks/draftforge/ent"
	"github.com/forgeworks/draftforge/pkg/cache"
	"github.com/forgeworks/draftforge/pkg/scheduler"
)

// JobResponse is the wire shape of a job row.
type JobResponse struct {
	JobID          string     `json:"job_id"`
	Status         string     `json:"status"`
	Topic          string     `json:"topic"`
	RequestedTypes []string   `json:"requested_types"`
	ModelID        string     `json:"model_id"`
	CacheHit       bool       `json:"cache_hit"`
	CancelFlag     bool       `json:"cancel_flag"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

// newJobResponse maps an ent row onto the wire shape.
func newJobResponse(j *ent.Job) JobResponse {
	resp := JobResponse{
		JobID:          j.ID,
		Status:         string(j.Status),
		Topic:          j.Topic,
		RequestedTypes: j.RequestedTypes,
		ModelID:        j.ModelID,
		CacheHit:       j.CacheHit,
		CancelFlag:     j.CancelRequested,
		CreatedAt:      j.CreatedAt,
		StartedAt:      j.StartedAt,
		FinishedAt:     j.FinishedAt,
	}
	if j.ErrorMessage != nil {
		resp.ErrorMessage = *j.ErrorMessage
	}
	return resp
}

// JobListResponse is returned by GET /api/jobs.
type JobListResponse struct {
	Jobs  []JobResponse `json:"jobs"`
	Total int           `json:"total"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status    string           `json:"status"`
	Database  DatabaseHealth   `json:"database"`
	Cache     cache.Stats      `json:"cache"`
	Scheduler scheduler.Status `json:"scheduler"`
}

// DatabaseHealth reports store reachability and the connector mode.
type DatabaseHealth struct {
	Status        string `json:"status"`
	Mode          string `json:"mode"`
	DegradedSince string `json:"degraded_since,omitempty"`
	Error         string `json:"error,omitempty"`
}

// MetaResponse is returned by GET /meta.
type MetaResponse struct {
	Service           string `json:"service"`
	Version           string `json:"version"`
	ModerationVersion int    `json:"moderation_version"`
}

// InvalidateCacheResponse reports how many entries an admin invalidation
// removed.
type InvalidateCacheResponse struct {
	Removed int    `json:"removed"`
	Scope   string `json:"scope"`
}

// BumpModerationResponse carries the new moderation version.
type BumpModerationResponse struct {
	ModerationVersion int `json:"moderation_version"`
}

// SetTierResponse confirms an admin tier mutation.
type SetTierResponse struct {
	UserID string `json:"user_id"`
	Tier   string `json:"tier"`
}
