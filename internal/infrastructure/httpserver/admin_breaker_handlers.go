package httpserver

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/avatarctic/scripture-cache/internal/infrastructure/breaker"
)

func (s *Server) lookupBreaker(c echo.Context) (*breaker.Breaker, error) {
	name := c.Param("name")
	b, ok := s.breakers.Get(name)
	if !ok {
		return nil, echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("unknown circuit breaker %q", name))
	}
	return b, nil
}

func (s *Server) listBreakers(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{"breakers": s.breakers.Stats()})
}

func (s *Server) getBreaker(c echo.Context) error {
	b, err := s.lookupBreaker(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, b.Stats())
}

// controlBreaker applies a manual override: open, close, half-open or reset.
func (s *Server) controlBreaker(c echo.Context) error {
	b, err := s.lookupBreaker(c)
	if err != nil {
		return err
	}
	action := c.Param("action")
	switch action {
	case "open":
		b.ForceOpen()
	case "close":
		b.ForceClose()
	case "half-open":
		b.ForceHalfOpen()
	case "reset":
		b.Reset()
	default:
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unsupported breaker action %q", action))
	}
	if s.logger != nil {
		s.logger.WithFields(logFields(c)).WithField("breaker", b.Name()).WithField("action", action).Warn("Circuit breaker overridden")
	}
	return c.JSON(http.StatusOK, b.Stats())
}
