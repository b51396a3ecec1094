package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/scripture-cache/internal/infrastructure/httpserver/helpers"
)

type LoggingMiddleware struct {
	logger *logrus.Logger
}

func NewLoggingMiddleware(logger *logrus.Logger) *LoggingMiddleware {
	return &LoggingMiddleware{logger: logger}
}

func (m *LoggingMiddleware) RequestLogging() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m.logger == nil {
				return next(c)
			}
			start := time.Now()
			err := next(c)

			fields := logrus.Fields{
				"method":     c.Request().Method,
				"path":       c.Path(),
				"status":     responseStatus(c, err),
				"latency":    time.Since(start).String(),
				"request_id": c.Response().Header().Get(echo.HeaderXRequestID),
			}
			if key, ok := helpers.GetClientKeyRaw(c); ok {
				fields["client"] = key
			}
			if cached := c.Response().Header().Get(CacheHeader); cached != "" {
				fields["cache"] = cached
			}
			m.logger.WithFields(fields).Debug("request handled")
			return err
		}
	}
}
