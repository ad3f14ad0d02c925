package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/forgeworks/draftforge/pkg/version"
)

// metaHandler handles GET /meta.
func (s *Server) metaHandler(c *echo.Context) error {
	modVersion, err := s.settings.ModerationVersion(c.Request().Context())
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, &MetaResponse{
		Service:           version.AppName,
		Version:           version.Full(),
		ModerationVersion: modVersion,
	})
}
