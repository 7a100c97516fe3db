package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/loadgen/internal/core/domain"
)

// APIError is the JSON body of every error response.
type APIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"` // bad_request, not_found, unprocessable, rate_limited, internal_error
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func newError(c *fiber.Ctx, status int, code string, message string) error {
	reqID, _ := c.Locals("requestid").(string)
	return c.Status(status).JSON(APIError{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: reqID,
	})
}

func errBadRequest(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusBadRequest, "bad_request", msg)
}

func errInternal(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusInternalServerError, "internal_error", msg)
}

// domainError maps the domain sentinels to 404 or 422. Anything else is
// logged and reported as a 500 carrying fallback.
func domainError(c *fiber.Ctx, err error, fallback string) error {
	switch {
	case errors.Is(err, domain.ErrRunNotFound):
		return newError(c, fiber.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrInvalidScript), errors.Is(err, domain.ErrUnknownHook):
		return newError(c, fiber.StatusUnprocessableEntity, "unprocessable", err.Error())
	default:
		LoggerFromCtx(c.UserContext()).Error(fallback, "path", c.Path(), "error", err)
		return errInternal(c, fallback)
	}
}
