package http

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Version is reported by the health endpoint; set at build time with -ldflags.
var Version = "dev"

const readyTimeout = 3 * time.Second

var errNotConfigured = errors.New("not configured")

// HealthHandler returns a basic liveness check.
func HealthHandler(deps *Dependencies) fiber.Handler {
	startedAt := time.Now()

	return func(c *fiber.Ctx) error {
		resp := fiber.Map{
			"status":  "healthy",
			"uptime":  time.Since(startedAt).Round(time.Second).String(),
			"version": Version,
		}
		if deps.Hooks != nil {
			resp["hooks"] = len(deps.Hooks.Names())
		}
		return c.JSON(resp)
	}
}

// readinessProbe checks one backend. Optional backends that are not
// configured do not fail readiness.
type readinessProbe struct {
	name     string
	required bool
	check    func(ctx context.Context) error
}

func readinessProbes(deps *Dependencies) []readinessProbe {
	return []readinessProbe{
		{name: "database", required: true, check: func(ctx context.Context) error {
			if deps.DB == nil {
				return errNotConfigured
			}
			return deps.DB.Ping(ctx)
		}},
		{name: "nats", check: func(context.Context) error {
			if deps.NATS == nil {
				return errNotConfigured
			}
			if !deps.NATS.IsConnected() {
				return errors.New("disconnected")
			}
			return nil
		}},
		{name: "cache", check: func(ctx context.Context) error {
			if deps.Cache == nil {
				return errNotConfigured
			}
			return deps.Cache.Ping(ctx)
		}},
	}
}

// ReadyHandler reports per-backend readiness. The database is required; NATS
// and Valkey only fail readiness when configured and unhealthy.
func ReadyHandler(deps *Dependencies) fiber.Handler {
	probes := readinessProbes(deps)

	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), readyTimeout)
		defer cancel()

		checks := make(map[string]string, len(probes))
		ready := true
		for _, p := range probes {
			err := p.check(ctx)
			switch {
			case err == nil:
				checks[p.name] = "ok"
			case errors.Is(err, errNotConfigured):
				checks[p.name] = err.Error()
				if p.required {
					ready = false
				}
			default:
				checks[p.name] = "error: " + err.Error()
				ready = false
			}
		}

		status, code := "ready", fiber.StatusOK
		if !ready {
			status, code = "not ready", fiber.StatusServiceUnavailable
		}
		return c.Status(code).JSON(fiber.Map{
			"status": status,
			"checks": checks,
		})
	}
}
