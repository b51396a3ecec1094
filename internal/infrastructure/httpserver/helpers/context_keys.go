package helpers

import (
	"github.com/labstack/echo/v4"

	"github.com/avatarctic/scripture-cache/internal/core/domain/ratelimit"
)

type ctxKey string

const (
	keyClientKey    ctxKey = "client_key"
	keyRateDecision ctxKey = "rate_decision"
)

func SetClientKey(c echo.Context, key string) { c.Set(string(keyClientKey), key) }
func GetClientKeyRaw(c echo.Context) (string, bool) {
	v := c.Get(string(keyClientKey))
	s, ok := v.(string)
	return s, ok
}

func SetRateDecision(c echo.Context, d ratelimit.Decision) { c.Set(string(keyRateDecision), d) }
func GetRateDecisionRaw(c echo.Context) (ratelimit.Decision, bool) {
	v := c.Get(string(keyRateDecision))
	d, ok := v.(ratelimit.Decision)
	return d, ok
}
