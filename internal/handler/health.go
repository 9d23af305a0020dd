package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// HealthCheck reports whether one dependency is reachable
type HealthCheck func(ctx context.Context) error

// RedisCheck pings Redis
func RedisCheck(client *redis.Client) HealthCheck {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}

// MongoCheck pings the MongoDB primary
func MongoCheck(client *mongo.Client) HealthCheck {
	return func(ctx context.Context) error {
		return client.Ping(ctx, nil)
	}
}

type HealthHandler struct {
	service string
	checks  map[string]HealthCheck
}

func NewHealthHandler(service string, checks map[string]HealthCheck) *HealthHandler {
	return &HealthHandler{service: service, checks: checks}
}

// Health handles GET /health. Any failed check turns the response into a 503.
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	status := "ok"
	deps := make(fiber.Map, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			deps[name] = err.Error()
			status = "degraded"
			continue
		}
		deps[name] = "ok"
	}

	code := fiber.StatusOK
	if status != "ok" {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{
		"status":       status,
		"service":      h.service,
		"dependencies": deps,
	})
}
