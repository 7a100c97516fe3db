package http

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/loadgen/internal/core/domain"
	"github.com/samirrijal/loadgen/internal/pkg/config"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
	maxScriptBytes  = 1 << 20
)

// ListRunsHandler returns runs newest first.
func ListRunsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		offset := c.QueryInt("offset", 0)
		limit := c.QueryInt("limit", defaultPageSize)
		if offset < 0 {
			offset = 0
		}
		if limit <= 0 || limit > maxPageSize {
			limit = defaultPageSize
		}

		runs, total, err := deps.Runs.List(c.UserContext(), offset, limit)
		if err != nil {
			LoggerFromCtx(c.UserContext()).Error("list runs", "error", err)
			return errInternal(c, "could not list runs")
		}
		if runs == nil {
			runs = []domain.Run{}
		}

		pg := Pagination{Offset: offset, Limit: limit, Total: total}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: runs, Pagination: pg})
	}
}

// GetRunHandler returns one run with its summary.
func GetRunHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "run id is required")
		}

		run, err := deps.Runs.Get(c.UserContext(), id)
		if err != nil {
			return domainError(c, err, "could not load run")
		}

		if run.Status == domain.RunStatusRunning {
			c.Set("Cache-Control", "no-cache")
		}
		return c.JSON(run)
	}
}

// ListHooksHandler returns the names of the hooks scripts may reference.
func ListHooksHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"hooks": deps.Hooks.Names()})
	}
}

// ValidateScriptHandler parses a YAML script from the request body and checks
// that every hook it names is registered.
func ValidateScriptHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		body := c.Body()
		if len(body) == 0 {
			return errBadRequest(c, "request body must contain a YAML script")
		}
		if len(body) > maxScriptBytes {
			return errBadRequest(c, "script too large (max 1 MiB)")
		}

		script, err := config.ParseScript(body)
		if err == nil {
			err = deps.Hooks.Check(script)
		}
		if err != nil {
			if errors.Is(err, domain.ErrInvalidScript) || errors.Is(err, domain.ErrUnknownHook) {
				return domainError(c, err, "could not validate script")
			}
			return errBadRequest(c, strings.TrimSpace(err.Error()))
		}

		return c.JSON(fiber.Map{
			"valid":     true,
			"target":    script.Config.Target,
			"phases":    len(script.Config.Phases),
			"scenarios": len(script.Scenarios),
			"duration":  script.TotalDuration().String(),
			"hooks":     script.HookNames(),
		})
	}
}
