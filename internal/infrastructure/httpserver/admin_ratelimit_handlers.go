package httpserver

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/avatarctic/scripture-cache/internal/core/domain/ratelimit"
	"github.com/avatarctic/scripture-cache/internal/core/ports"
	"github.com/avatarctic/scripture-cache/internal/infrastructure/httpserver/helpers"
	customMiddleware "github.com/avatarctic/scripture-cache/internal/infrastructure/httpserver/middleware"
)

func (s *Server) lookupLimiter(c echo.Context) (ports.RateLimiterService, error) {
	class := ratelimit.Class(c.Param("class"))
	l, ok := s.limiters[class]
	if !ok || l == nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("unknown rate limit class %q", class))
	}
	return l, nil
}

// getRateLimit reports the remaining quota of ?client=, or of the caller
// when no client key is given.
func (s *Server) getRateLimit(c echo.Context) error {
	l, err := s.lookupLimiter(c)
	if err != nil {
		return err
	}
	client := strings.TrimSpace(c.QueryParam("client"))
	if client == "" {
		client = s.clientKey(helpers.ClientIdentityFromRequest(c))
	}
	d, err := l.Peek(c.Request().Context(), client)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	customMiddleware.SetHeaders(c, d)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"class":     l.Class(),
		"client":    client,
		"limit":     d.Limit,
		"remaining": d.Remaining,
		"reset_at":  d.ResetAt,
	})
}

func (s *Server) resetRateLimit(c echo.Context) error {
	l, err := s.lookupLimiter(c)
	if err != nil {
		return err
	}
	client := strings.TrimSpace(c.QueryParam("client"))
	if client == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "client is required")
	}
	if err := l.Reset(c.Request().Context(), client); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if s.logger != nil {
		s.logger.WithFields(logFields(c)).WithField("class", l.Class()).WithField("client", client).Info("Rate limit window reset")
	}
	return c.NoContent(http.StatusNoContent)
}
