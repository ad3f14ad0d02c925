// Package api is the HTTP surface: authentication, the generate/stream/cancel
// endpoints, health and meta, and the admin plane.
package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/forgeworks/draftforge/pkg/auth"
	"github.com/forgeworks/draftforge/pkg/cache"
	"github.com/forgeworks/draftforge/pkg/config"
	"github.com/forgeworks/draftforge/pkg/database"
	"github.com/forgeworks/draftforge/pkg/events"
	"github.com/forgeworks/draftforge/pkg/scheduler"
	"github.com/forgeworks/draftforge/pkg/services"
	"github.com/forgeworks/draftforge/pkg/tier"
)

// Server wires the HTTP handlers to the application components.
type Server struct {
	cfg       *config.Config
	resolver  *auth.Resolver
	scheduler *scheduler.Scheduler
	bus       *events.Bus
	cache     *cache.Cache
	policy    *tier.Policy
	connector database.Connector

	jobs      *services.JobService
	artifacts *services.ArtifactService
	users     *services.UserService
	settings  *services.SettingsService
}

// NewServer creates a Server.
func NewServer(
	cfg *config.Config,
	resolver *auth.Resolver,
	sched *scheduler.Scheduler,
	bus *events.Bus,
	c *cache.Cache,
	policy *tier.Policy,
	connector database.Connector,
	jobs *services.JobService,
	artifacts *services.ArtifactService,
	users *services.UserService,
	settings *services.SettingsService,
) *Server {
	return &Server{
		cfg:       cfg,
		resolver:  resolver,
		scheduler: sched,
		bus:       bus,
		cache:     c,
		policy:    policy,
		connector: connector,
		jobs:      jobs,
		artifacts: artifacts,
		users:     users,
		settings:  settings,
	}
}

// Handler builds the Echo engine with all routes registered.
func (s *Server) Handler() *echo.Echo {
	e := echo.New()
	e.Use(securityHeaders())

	// Unauthenticated operational endpoints.
	e.GET("/health", s.healthHandler)
	e.GET("/meta", s.metaHandler)

	// Authenticated API.
	api := e.Group("/api", s.authMiddleware())
	api.POST("/generate", s.generateHandler)
	api.GET("/jobs", s.listJobsHandler)
	api.GET("/jobs/:id", s.getJobHandler)
	api.POST("/jobs/:id/cancel", s.cancelJobHandler)
	api.GET("/jobs/:id/stream", s.streamJobHandler)

	// Admin plane.
	admin := api.Group("/admin", s.requireAdmin())
	admin.POST("/cache/invalidate", s.invalidateCacheHandler)
	admin.POST("/moderation/bump-version", s.bumpModerationHandler)
	admin.POST("/users/:id/tier", s.setUserTierHandler)

	return e
}

// NewHTTPServer wraps the handler in a configured http.Server. Write timeout
// is unset on purpose: streams stay open for the life of a job.
func (s *Server) NewHTTPServer() *http.Server {
	return &http.Server{
		Addr:    ":" + s.cfg.Port,
		Handler: s.Handler(),
	}
}
