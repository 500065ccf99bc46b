package handler

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const readinessTimeout = 2 * time.Second

var errBrokerDisconnected = errors.New("broker connection is down")

// BrokerHealth reports queue broker connectivity without dialing.
type BrokerHealth interface {
	Connected() bool
}

type readinessCheck struct {
	name  string
	probe func(ctx context.Context) error
}

func RegisterHealthRoutes(app fiber.Router, sqlDB *sql.DB, rdb *redis.Client, broker BrokerHealth) {
	app.Get("/livez", LivezHandler())
	app.Get("/readyz", ReadyzHandler(sqlDB, rdb, broker))
}

func LivezHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ok",
		})
	}
}

// ReadyzHandler probes every backend the intake path depends on. Any
// failing check flips the response to 503 so the load balancer stops
// routing before requests start landing on a broken dependency.
func ReadyzHandler(sqlDB *sql.DB, rdb *redis.Client, broker BrokerHealth) fiber.Handler {
	checks := []readinessCheck{
		{
			name: "postgres",
			probe: func(ctx context.Context) error {
				return sqlDB.PingContext(ctx)
			},
		},
		{
			name: "redis",
			probe: func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			},
		},
	}
	if broker != nil {
		checks = append(checks, readinessCheck{
			name: "rabbitmq",
			probe: func(context.Context) error {
				if !broker.Connected() {
					return errBrokerDisconnected
				}
				return nil
			},
		})
	}

	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), readinessTimeout)
		defer cancel()

		results := fiber.Map{}
		ready := true
		for _, check := range checks {
			state := "ok"
			if err := check.probe(ctx); err != nil {
				state = "down"
				ready = false
			}
			results[check.name] = state
		}

		status := "ready"
		statusCode := fiber.StatusOK
		if !ready {
			status = "not_ready"
			statusCode = fiber.StatusServiceUnavailable
		}

		return c.Status(statusCode).JSON(fiber.Map{
			"status": status,
			"checks": results,
		})
	}
}
