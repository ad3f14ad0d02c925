package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/forgeworks/draftforge/pkg/database"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusDegraded  = "degraded"
	healthStatusUnhealthy = "unhealthy"
)

// healthHandler handles GET /health. Degraded means the connection pool is
// down but the no-pool fallback and the in-memory layers still serve; the
// process only reports unhealthy when every storage mode is unreachable.
func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	status := healthStatusHealthy
	db := DatabaseHealth{Status: healthStatusHealthy, Mode: string(s.connector.Mode())}

	if err := s.connector.Health(reqCtx); err != nil {
		db.Error = err.Error()
		if s.connector.Mode() == database.ModeDirect {
			db.Status = healthStatusDegraded
			status = healthStatusDegraded
		} else {
			db.Status = healthStatusUnhealthy
			status = healthStatusUnhealthy
		}
	} else if s.connector.Mode() == database.ModeDirect {
		db.Status = healthStatusDegraded
		status = healthStatusDegraded
	}

	if fc, ok := s.connector.(*database.FailoverConnector); ok {
		if since := fc.DegradedSince(); !since.IsZero() {
			db.DegradedSince = since.Format(time.RFC3339)
		}
	}

	httpStatus := http.StatusOK
	if status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	return c.JSON(httpStatus, &HealthResponse{
		Status:    status,
		Database:  db,
		Cache:     s.cache.Stats(),
		Scheduler: s.scheduler.Status(),
	})
}
