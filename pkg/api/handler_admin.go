package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/forgeworks/draftforge/pkg/config"
)

// invalidateCacheHandler handles POST /api/admin/cache/invalidate. Scope is
// one fingerprint, one user (resolved to fingerprints through their
// artifacts), or everything.
func (s *Server) invalidateCacheHandler(c *echo.Context) error {
	var req InvalidateCacheRequest
	if err := c.Bind(&req); err != nil {
		return httpError(http.StatusBadRequest, "ValidationFailed", "invalid request body")
	}

	switch {
	case req.All:
		removed := s.cache.InvalidateAll()
		return c.JSON(http.StatusOK, &InvalidateCacheResponse{Removed: removed, Scope: "all"})

	case req.Fingerprint != "":
		removed := s.cache.Invalidate(req.Fingerprint)
		return c.JSON(http.StatusOK, &InvalidateCacheResponse{Removed: removed, Scope: "fingerprint"})

	case req.UserID != "":
		fps, err := s.artifacts.FingerprintsByUser(c.Request().Context(), req.UserID)
		if err != nil {
			return mapServiceError(err)
		}
		removed := s.cache.Invalidate(fps...)
		return c.JSON(http.StatusOK, &InvalidateCacheResponse{Removed: removed, Scope: "user"})

	default:
		return httpError(http.StatusBadRequest, "ValidationFailed", "one of all, fingerprint, or user_id is required")
	}
}

// bumpModerationHandler handles POST /api/admin/moderation/bump-version. The
// version participates in every fingerprint, so the bump is a global soft
// invalidation: prior entries become unreachable without being touched.
func (s *Server) bumpModerationHandler(c *echo.Context) error {
	next, err := s.settings.BumpModerationVersion(c.Request().Context())
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, &BumpModerationResponse{ModerationVersion: next})
}

// setUserTierHandler handles POST /api/admin/users/:id/tier.
func (s *Server) setUserTierHandler(c *echo.Context) error {
	userID := c.Param("id")
	if userID == "" {
		return httpError(http.StatusBadRequest, "ValidationFailed", "user id is required")
	}

	var req SetTierRequest
	if err := c.Bind(&req); err != nil {
		return httpError(http.StatusBadRequest, "ValidationFailed", "invalid request body")
	}

	if err := s.users.SetTier(c.Request().Context(), userID, config.Tier(req.Tier)); err != nil {
		return mapServiceError(err)
	}
	s.policy.Invalidate(userID)

	return c.JSON(http.StatusOK, &SetTierResponse{UserID: userID, Tier: req.Tier})
}
