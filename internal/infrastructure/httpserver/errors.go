package httpserver

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/scripture-cache/internal/core/domain/scripture"
	"github.com/avatarctic/scripture-cache/internal/infrastructure/breaker"
	"github.com/avatarctic/scripture-cache/internal/infrastructure/cacheaside"
	"github.com/avatarctic/scripture-cache/internal/infrastructure/repositories"
)

// upstreamError maps provider and resilience errors onto HTTP responses.
func (s *Server) upstreamError(c echo.Context, err error) error {
	var openErr *breaker.OpenError
	switch {
	case errors.As(err, &openErr):
		c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(time.Until(openErr.NextAttemptAt))))
		return echo.NewHTTPError(http.StatusServiceUnavailable, "scripture provider unavailable")
	case errors.Is(err, breaker.ErrOpen), errors.Is(err, repositories.ErrNoData):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "scripture provider unavailable")
	case errors.Is(err, scripture.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case errors.Is(err, cacheaside.ErrUnknownCategory), errors.Is(err, cacheaside.ErrNoFetcher):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusGatewayTimeout, "scripture provider timed out")
	}
	if s.logger != nil {
		s.logger.WithError(err).WithField("path", c.Path()).Error("upstream request failed")
	}
	return echo.NewHTTPError(http.StatusBadGateway, "scripture provider error")
}

func retryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 1
	}
	return int(math.Ceil(d.Seconds()))
}

func logFields(c echo.Context) logrus.Fields {
	return logrus.Fields{"path": c.Path(), "request_id": c.Response().Header().Get(echo.HeaderXRequestID)}
}
