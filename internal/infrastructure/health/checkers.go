package health

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/avatarctic/scripture-cache/internal/core/ports"
	"github.com/avatarctic/scripture-cache/internal/infrastructure/breaker"
)

// redisHealthChecker wraps the redis client for health checks.
type redisHealthChecker struct{ client redis.Cmdable }

func (r *redisHealthChecker) Name() string                    { return "redis" }
func (r *redisHealthChecker) Check(ctx context.Context) error { return r.client.Ping(ctx).Err() }

// NewRedisHealthChecker creates a health checker for Redis.
func NewRedisHealthChecker(client redis.Cmdable) ports.HealthChecker {
	return &redisHealthChecker{client: client}
}

// breakerHealthChecker reports a dependency as unhealthy while its circuit is open.
type breakerHealthChecker struct{ b *breaker.Breaker }

func (c *breakerHealthChecker) Name() string { return "breaker:" + c.b.Name() }
func (c *breakerHealthChecker) Check(context.Context) error {
	if st := c.b.State(); st == breaker.StateOpen {
		return fmt.Errorf("circuit %s is %s", c.b.Name(), st)
	}
	return nil
}

// NewBreakerHealthChecker creates a health checker for a circuit breaker.
func NewBreakerHealthChecker(b *breaker.Breaker) ports.HealthChecker {
	return &breakerHealthChecker{b: b}
}

// BreakerCheckers returns one checker per registered breaker.
func BreakerCheckers(r *breaker.Registry) []ports.HealthChecker {
	all := r.All()
	out := make([]ports.HealthChecker, 0, len(all))
	for _, b := range all {
		out = append(out, NewBreakerHealthChecker(b))
	}
	return out
}
