package middleware

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/contentforge/api/pkg/response"
)

// RateLimiter is a fixed-window per-user limiter backed by Redis counters
type RateLimiter struct {
	redis *redis.Client
	log   *slog.Logger
}

func NewRateLimiter(redisClient *redis.Client, log *slog.Logger) *RateLimiter {
	return &RateLimiter{redis: redisClient, log: log.With("component", "ratelimit")}
}

// Limit creates a rate limiting middleware. A limit of zero or less disables it.
func (rl *RateLimiter) Limit(keyPrefix string, maxRequests int, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := GetUserID(c)
		if userID == "" || maxRequests <= 0 {
			return c.Next()
		}

		key := fmt.Sprintf("ratelimit:%s:%s", keyPrefix, userID)
		ctx := c.UserContext()

		count, err := rl.redis.Incr(ctx, key).Result()
		if err != nil {
			// Fail open
			rl.log.Warn("Rate limiter unavailable", "key", key, "error", err)
			return c.Next()
		}

		if count == 1 {
			rl.redis.Expire(ctx, key, window)
		}

		if count > int64(maxRequests) {
			ttl, _ := rl.redis.TTL(ctx, key).Result()
			c.Set("Retry-After", strconv.Itoa(int(ttl.Seconds())))
			return response.RateLimited(c)
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(maxRequests))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(maxRequests-int(count)))
		return c.Next()
	}
}

// GenerateLimit limits generation and regeneration requests per hour
func (rl *RateLimiter) GenerateLimit(maxPerHour int) fiber.Handler {
	return rl.Limit("generate", maxPerHour, time.Hour)
}

// ExportLimit limits export requests per hour
func (rl *RateLimiter) ExportLimit(maxPerHour int) fiber.Handler {
	return rl.Limit("export", maxPerHour, time.Hour)
}

// ReadLimit limits read requests per minute
func (rl *RateLimiter) ReadLimit(maxPerMin int) fiber.Handler {
	return rl.Limit("read", maxPerMin, time.Minute)
}
