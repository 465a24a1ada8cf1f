package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"flightledger/internal/auth"
	"flightledger/internal/logging"
)

const userKey = "auth.user"

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		logging.Debug("request", logging.Server,
			"method", c.Request().Method,
			"path", c.Request().URL.Path,
			"status", c.Response().Status,
			"duration_ms", time.Since(start).Milliseconds())
		return err
	}
}

// requireAuth resolves the bearer token to a user and stashes it in the
// request context.
func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := bearerToken(c)
		if token == "" {
			return errJSON(c, http.StatusUnauthorized, "missing token")
		}
		user, ok := s.users.Lookup(token)
		if !ok {
			return errJSON(c, http.StatusUnauthorized, "invalid or expired token")
		}
		c.Set(userKey, user)
		return next(c)
	}
}

func (s *Server) requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if currentUser(c).Role != auth.RoleAdmin {
			return errJSON(c, http.StatusForbidden, "admin access required")
		}
		return next(c)
	}
}

// currentUser is only valid behind requireAuth.
func currentUser(c echo.Context) *auth.User {
	return c.Get(userKey).(*auth.User)
}

func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	// Websocket clients cannot set headers from the browser API.
	return c.QueryParam("token")
}
