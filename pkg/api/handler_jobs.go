package api

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/forgeworks/draftforge/ent"
	"github.com/forgeworks/draftforge/ent/job"
	"github.com/forgeworks/draftforge/pkg/models"
	"github.com/forgeworks/draftforge/pkg/services"
)

// listJobsHandler handles GET /api/jobs.
func (s *Server) listJobsHandler(c *echo.Context) error {
	principal := principalFrom(c)

	filters := services.JobFilters{}
	if v := c.QueryParam("status"); v != "" {
		if err := job.StatusValidator(job.Status(v)); err != nil {
			return httpError(http.StatusBadRequest, "ValidationFailed", "invalid status: "+v)
		}
		filters.Status = v
	}
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filters.Limit = n
		}
	}
	if v := c.QueryParam("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			filters.Offset = n
		}
	}

	jobs, total, err := s.jobs.ListJobs(c.Request().Context(), principal.UserID, filters)
	if err != nil {
		return mapServiceError(err)
	}

	resp := JobListResponse{Jobs: make([]JobResponse, len(jobs)), Total: total}
	for i, j := range jobs {
		resp.Jobs[i] = newJobResponse(j)
	}
	return c.JSON(http.StatusOK, resp)
}

// JobDetailResponse is returned by GET /api/jobs/:id.
type JobDetailResponse struct {
	JobResponse
	Artifacts []ArtifactResponse `json:"artifacts"`
}

// ArtifactResponse is the wire shape of an artifact row.
type ArtifactResponse struct {
	ArtifactID     string         `json:"artifact_id"`
	Type           string         `json:"artifact_type"`
	Content        string         `json:"content,omitempty"`
	AssetURI       string         `json:"asset_uri,omitempty"`
	QualityMetrics map[string]any `json:"quality_metrics,omitempty"`
}

// getJobHandler handles GET /api/jobs/:id.
func (s *Server) getJobHandler(c *echo.Context) error {
	j, err := s.ownedJob(c)
	if err != nil {
		return mapServiceError(err)
	}

	artifacts, err := s.artifacts.ListByJob(c.Request().Context(), j.ID)
	if err != nil {
		return mapServiceError(err)
	}

	resp := JobDetailResponse{
		JobResponse: newJobResponse(j),
		Artifacts:   make([]ArtifactResponse, len(artifacts)),
	}
	for i, a := range artifacts {
		resp.Artifacts[i] = ArtifactResponse{
			ArtifactID:     a.ID,
			Type:           string(a.ArtifactType),
			Content:        a.Content,
			AssetURI:       a.AssetURI,
			QualityMetrics: a.QualityMetrics,
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// cancelJobHandler handles POST /api/jobs/:id/cancel. 204 on success, 409 for
// already-terminal jobs.
func (s *Server) cancelJobHandler(c *echo.Context) error {
	jobID := c.Param("id")
	if jobID == "" {
		return httpError(http.StatusBadRequest, "ValidationFailed", "job id is required")
	}

	if err := s.scheduler.Cancel(c.Request().Context(), jobID, principalFrom(c)); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// streamJobHandler handles GET /api/jobs/:id/stream: re-attach to a live or
// recently finished job. since_event_id resumes after the client's cursor.
// 404 for unknown jobs, 410 once the stream has been garbage-collected.
func (s *Server) streamJobHandler(c *echo.Context) error {
	j, err := s.ownedJob(c)
	if err != nil {
		return mapServiceError(err)
	}

	sinceID := 0
	if v := c.QueryParam("since_event_id"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return httpError(http.StatusBadRequest, "ValidationFailed", "invalid since_event_id")
		}
		sinceID = n
	}

	sub, err := s.bus.Subscribe(j.ID, sinceID)
	if err != nil {
		// The job row survived but its log is gone: terminal and past the
		// retention window.
		switch j.Status {
		case job.StatusCompleted, job.StatusFailed, job.StatusCancelled:
			return httpError(http.StatusGone, "StreamClosed", "job stream has ended and been discarded")
		}
		return httpError(http.StatusNotFound, "NotFound", "no stream for this job")
	}

	mediaFastLane := false
	for _, t := range j.RequestedTypes {
		if models.ContentType(t).IsMedia() {
			mediaFastLane = true
		}
	}
	return s.streamEvents(c, sub, mediaFastLane)
}

// ownedJob fetches the path job and enforces owner-or-admin access.
func (s *Server) ownedJob(c *echo.Context) (*ent.Job, error) {
	jobID := c.Param("id")
	if jobID == "" {
		return nil, services.NewValidationError("id", "job id is required")
	}
	j, err := s.jobs.GetJob(c.Request().Context(), jobID)
	if err != nil {
		return nil, err
	}
	principal := principalFrom(c)
	if j.UserID != principal.UserID && !principal.IsAdmin {
		return nil, services.ErrForbidden
	}
	return j, nil
}
