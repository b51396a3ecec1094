package health_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"

	"github.com/avatarctic/scripture-cache/internal/infrastructure/breaker"
	"github.com/avatarctic/scripture-cache/internal/infrastructure/health"
)

func TestRedisHealthChecker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()

	hc := health.NewRedisHealthChecker(client)
	require.Equal(t, "redis", hc.Name())
	require.NoError(t, hc.Check(context.Background()))

	mr.Close()
	require.Error(t, hc.Check(context.Background()))
}

func TestBreakerHealthChecker(t *testing.T) {
	reg := breaker.NewRegistry()
	b := breaker.New(breaker.Config{Name: "scripture-api"})
	require.NoError(t, reg.Register(b))

	checkers := health.BreakerCheckers(reg)
	require.Len(t, checkers, 1)
	hc := checkers[0]
	require.Equal(t, "breaker:scripture-api", hc.Name())
	require.NoError(t, hc.Check(context.Background()))

	b.ForceOpen()
	require.Error(t, hc.Check(context.Background()))

	b.ForceHalfOpen()
	require.NoError(t, hc.Check(context.Background()))
}
