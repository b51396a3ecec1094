package middleware

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/scripture-cache/internal/core/domain/ratelimit"
	"github.com/avatarctic/scripture-cache/internal/core/ports"
	"github.com/avatarctic/scripture-cache/internal/infrastructure/httpserver/helpers"
)

// KeyFunc derives the rate limiting key from a caller identity.
type KeyFunc func(ratelimit.ClientIdentity) string

// DecisionObserver is notified of every admission decision.
type DecisionObserver interface {
	ObserveDecision(class ratelimit.Class, d ratelimit.Decision)
}

type RateLimitMiddleware struct {
	limiters map[ratelimit.Class]ports.RateLimiterService
	keyFunc  KeyFunc
	observer DecisionObserver
	logger   *logrus.Logger
}

func NewRateLimitMiddleware(limiters map[ratelimit.Class]ports.RateLimiterService, keyFunc KeyFunc, observer DecisionObserver, logger *logrus.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{limiters: limiters, keyFunc: keyFunc, observer: observer, logger: logger}
}

// SetHeaders writes the X-RateLimit-* headers for d.
func SetHeaders(c echo.Context, d ratelimit.Decision) {
	h := c.Response().Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
}

// Handler limits the wrapped routes with the limiter of class. Routes pass
// through untouched when no limiter is configured for class.
func (r *RateLimitMiddleware) Handler(class ratelimit.Class) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		limiter, ok := r.limiters[class]
		if !ok || limiter == nil {
			return next
		}
		return func(c echo.Context) error {
			key := r.keyFunc(helpers.ClientIdentityFromRequest(c))
			helpers.SetClientKey(c, key)
			ctx := c.Request().Context()

			adm, err := limiter.Admit(ctx, key)
			if err != nil {
				if r.logger != nil {
					r.logger.WithError(err).WithFields(logrus.Fields{"class": class, "client": key}).Warn("rate limiter error; allowing request (fail-open)")
				}
				return next(c)
			}

			d := adm.Decision()
			SetHeaders(c, d)
			helpers.SetRateDecision(c, d)
			if r.observer != nil {
				r.observer.ObserveDecision(class, d)
			}
			if !d.Allowed {
				c.Response().Header().Set("Retry-After", strconv.Itoa(d.RetryAfterSeconds()))
				if r.logger != nil {
					r.logger.WithFields(logrus.Fields{"class": class, "client": key, "retry_after": d.RetryAfter}).Info("rate limit exceeded")
				}
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}

			err = next(c)
			adm.Complete(ctx, responseStatus(c, err) < http.StatusBadRequest)
			return err
		}
	}
}

// responseStatus is the status the client will see. Errors are rendered by
// echo after the middleware chain returns, so they are inspected directly.
func responseStatus(c echo.Context, err error) int {
	if err == nil {
		return c.Response().Status
	}
	if he, ok := err.(*echo.HTTPError); ok {
		return he.Code
	}
	return http.StatusInternalServerError
}
