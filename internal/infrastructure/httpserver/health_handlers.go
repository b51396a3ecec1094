package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

const healthCheckTimeout = 2 * time.Second

// healthCheck reports every dependency plus the cache and circuit state. Any
// unhealthy dependency, an open circuit included, answers 503.
func (s *Server) healthCheck(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthCheckTimeout)
	defer cancel()

	deps := make(map[string]string, len(s.healthCheckers))
	overall := "healthy"
	for _, hc := range s.healthCheckers {
		if hc == nil {
			continue
		}
		if err := hc.Check(ctx); err != nil {
			deps[hc.Name()] = "unhealthy"
			overall = "degraded"
			if s.logger != nil {
				s.logger.WithError(err).WithField("dependency", hc.Name()).Warn("health check failed")
			}
			continue
		}
		deps[hc.Name()] = "healthy"
	}

	circuits := make(map[string]string)
	for _, st := range s.breakers.Stats() {
		circuits[st.Name] = st.State
	}

	body := echo.Map{
		"status":       overall,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
		"service":      "scripture-cache",
		"dependencies": deps,
		"circuits":     circuits,
	}
	if s.cache != nil {
		st := s.cache.CacheStats()
		body["cache"] = echo.Map{
			"entries":  st.Size,
			"max_size": st.MaxSize,
			"hit_rate": st.HitRate,
		}
	}

	code := http.StatusOK
	if overall != "healthy" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, body)
}
