package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/forgeworks/draftforge/pkg/models"
	"github.com/forgeworks/draftforge/pkg/scheduler"
)

// generateHandler handles POST /api/generate. On admission the response turns
// into the job's event stream; denials are plain JSON errors.
func (s *Server) generateHandler(c *echo.Context) error {
	var req GenerateRequest
	if err := c.Bind(&req); err != nil {
		return httpError(http.StatusBadRequest, "ValidationFailed", "invalid request body")
	}

	types, err := models.ParseContentTypes(req.ContentTypes)
	if err != nil {
		return httpError(http.StatusUnprocessableEntity, "ValidationFailed", err.Error())
	}

	ticket, err := s.scheduler.Submit(c.Request().Context(), scheduler.Submission{
		Principal:      principalFrom(c),
		Topic:          req.Topic,
		RequestedTypes: types,
	})
	if err != nil {
		return mapServiceError(err)
	}

	sub, err := s.bus.Subscribe(ticket.JobID, 0)
	if err != nil {
		// The job raced to terminal and past retention between submit and
		// subscribe; nothing left to stream.
		return mapServiceError(err)
	}
	return s.streamEvents(c, sub, ticket.MediaFastLane)
}
