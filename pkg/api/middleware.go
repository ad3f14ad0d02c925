package api

import (
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v5"

	"github.com/forgeworks/draftforge/pkg/auth"
)

// principalContextKey stores the resolved principal on the request context.
const principalContextKey = "principal"

// securityHeaders returns middleware that sets standard security response headers.
func securityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			return next(c)
		}
	}
}

// tokenCookieName carries the credential for browser EventSource clients,
// which cannot set an Authorization header.
const tokenCookieName = "draftforge_token"

// authMiddleware verifies the bearer token and stores the principal on the
// request context.
func (s *Server) authMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			credential := credentialFrom(c)
			principal, err := s.resolver.Resolve(credential)
			if err != nil {
				return mapAuthError(err)
			}
			c.Set(principalContextKey, principal)
			return next(c)
		}
	}
}

// requireAdmin gates the admin plane. Runs after authMiddleware.
func (s *Server) requireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			if !principalFrom(c).IsAdmin {
				return httpError(http.StatusForbidden, "Forbidden", "admin access required")
			}
			return next(c)
		}
	}
}

// credentialFrom extracts the token from the Authorization header, falling
// back to the token cookie. The header wins when both are present.
func credentialFrom(c *echo.Context) string {
	header := c.Request().Header.Get("Authorization")
	const prefix = "Bearer "
	if strings.HasPrefix(header, prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	if cookie, err := c.Request().Cookie(tokenCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// principalFrom returns the principal stored by authMiddleware. Only valid on
// authenticated routes.
func principalFrom(c *echo.Context) *auth.Principal {
	p, _ := c.Get(principalContextKey).(*auth.Principal)
	return p
}
