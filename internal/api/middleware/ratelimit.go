package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/fightclaw/backend/pkg/ratelimit"
)

// RedisRateLimitConfig configures one Redis-backed token-bucket limit.
type RedisRateLimitConfig struct {
	Limiter *ratelimit.RedisRateLimiter
	Limit   int
	Window  time.Duration
	KeyFunc func(*gin.Context) string
}

// IPKeyFunc uses only the client IP (for routes with no authenticated agent).
func IPKeyFunc(c *gin.Context) string {
	return fmt.Sprintf("ip:%s", c.ClientIP())
}

// AgentKeyFunc uses the authenticated agent set by Auth, falling back to IP.
func AgentKeyFunc(c *gin.Context) string {
	if agent, exists := CurrentAgent(c); exists {
		return fmt.Sprintf("agent:%s", agent.ID)
	}
	return fmt.Sprintf("ip:%s", c.ClientIP())
}

// RedisRateLimitMiddleware is a Redis-backed token-bucket rate limiter,
// fail-open on Redis errors so an outage degrades to unlimited rather than
// locking every agent out.
func RedisRateLimitMiddleware(config RedisRateLimitConfig) gin.HandlerFunc {
	if config.KeyFunc == nil {
		config.KeyFunc = IPKeyFunc
	}
	if config.Limit <= 0 {
		config.Limit = 60
	}
	if config.Window <= 0 {
		config.Window = time.Minute
	}

	return func(c *gin.Context) {
		key := config.KeyFunc(c)

		ctx := context.Background()
		allowed, info, err := config.Limiter.AllowWithInfo(ctx, key, config.Limit, config.Window)
		if err != nil {
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime.Unix(), 10))

		if !allowed {
			retryAfter := int(time.Until(info.ResetTime).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"ok":          false,
				"error":       "rate limit exceeded",
				"code":        "rate_limited",
				"retryAfter":  retryAfter,
				"requestId":   RequestIDFrom(c),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// RedisRegisterRateLimit bounds POST /v1/auth/register per IP (10/min), the
// one unauthenticated write route an agent could otherwise hammer to mint
// spare identities.
func RedisRegisterRateLimit(limiter *ratelimit.RedisRateLimiter) gin.HandlerFunc {
	return RedisRateLimitMiddleware(RedisRateLimitConfig{
		Limiter: limiter,
		Limit:   10,
		Window:  time.Minute,
		KeyFunc: IPKeyFunc,
	})
}

// RedisQueueJoinRateLimit bounds POST /v1/queue/join per agent (20/min).
func RedisQueueJoinRateLimit(limiter *ratelimit.RedisRateLimiter) gin.HandlerFunc {
	return RedisRateLimitMiddleware(RedisRateLimitConfig{
		Limiter: limiter,
		Limit:   20,
		Window:  time.Minute,
		KeyFunc: AgentKeyFunc,
	})
}

// RedisMoveRateLimit bounds POST /v1/matches/:id/move per agent (120/min) —
// generous enough for the fastest legitimate turn-timeout cadence while
// still capping a misbehaving client hammering the endpoint.
func RedisMoveRateLimit(limiter *ratelimit.RedisRateLimiter) gin.HandlerFunc {
	return RedisRateLimitMiddleware(RedisRateLimitConfig{
		Limiter: limiter,
		Limit:   120,
		Window:  time.Minute,
		KeyFunc: AgentKeyFunc,
	})
}
