// Package response writes the JSON bodies returned by the HTTP surface.
package response

import (
	"github.com/gofiber/fiber/v2"

	"triage_worker/pkg/apperr"
)

// ErrorBody is the error shape every endpoint returns.
type ErrorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// Response Builders
// =============================================================================

func OK(c *fiber.Ctx, body any) error {
	return c.Status(fiber.StatusOK).JSON(body)
}

func Error(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(ErrorBody{Error: message})
}

// FromAppError renders an AppError with its status and code. The wrapped
// cause, if any, becomes the details field.
func FromAppError(c *fiber.Ctx, e *apperr.AppError) error {
	body := ErrorBody{Error: e.Message, Code: e.Code}
	if e.Err != nil {
		body.Details = e.Err.Error()
	}
	return c.Status(e.Status).JSON(body)
}
