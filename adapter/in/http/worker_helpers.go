package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/oauth2"

	"triage_worker/core/port/out"
	"triage_worker/pkg/logger"
)

// isAuthFailure reports whether err means the stored credential was rejected.
func isAuthFailure(err error) bool {
	var pe *out.ProviderError
	if errors.As(err, &pe) && pe.IsAuth() {
		return true
	}
	var re *oauth2.RetrieveError
	return errors.As(err, &re)
}

// requestLogger returns the logger tagged with this request's id.
func requestLogger(c *fiber.Ctx) *logger.Logger {
	return logger.WithContext(c.UserContext())
}

func chain(guards []fiber.Handler, h fiber.Handler) []fiber.Handler {
	handlers := make([]fiber.Handler, 0, len(guards)+1)
	handlers = append(handlers, guards...)
	return append(handlers, h)
}
