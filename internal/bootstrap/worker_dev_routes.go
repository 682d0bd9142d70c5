package bootstrap

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"triage_worker/core/domain"
	"triage_worker/core/service/classification"
	"triage_worker/pkg/apperr"
	"triage_worker/pkg/logger"
	"triage_worker/pkg/response"
)

type classifyRequest struct {
	From    string `json:"from"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// RegisterDevRoutes registers development-only routes without signature checks.
// WARNING: Only enable in development environment!
func RegisterDevRoutes(app *fiber.App, deps *Dependencies) {
	dev := app.Group("/dev")

	// Classify an ad-hoc email without touching any mailbox
	dev.Post("/classify", func(c *fiber.Ctx) error {
		var req classifyRequest
		if err := c.BodyParser(&req); err != nil {
			return response.FromAppError(c, apperr.BadRequest("invalid body: "+err.Error()))
		}
		email := &domain.Email{From: req.From, Subject: req.Subject, Text: req.Body}

		result, err := deps.Classifier.Classify(c.UserContext(), email)
		if err != nil {
			logger.WithError(err).Warn("[Dev] classify failed")
			return response.FromAppError(c, apperr.ExternalError("Classification", err))
		}
		return c.JSON(fiber.Map{
			"label":     result.Label,
			"reasoning": result.Reasoning,
		})
	})

	// Run the labelled fixture suite
	dev.Get("/eval", func(c *fiber.Ctx) error {
		report, err := deps.Classifier.Evaluate(c.UserContext(), classification.EvalCases())
		if err != nil {
			return response.FromAppError(c, apperr.InternalWithError(err))
		}
		rows := make([]fiber.Map, 0, len(report.Rows))
		for _, r := range report.Rows {
			rows = append(rows, fiber.Map{
				"input":    r.Input,
				"output":   r.Output,
				"expected": r.Expected,
				"match":    r.Match,
			})
		}
		return c.JSON(fiber.Map{"score": report.Score, "rows": rows})
	})

	// Inspect scan state
	dev.Get("/state", func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		wm, err := deps.Watermark.Read(ctx, time.Time{})
		if err != nil {
			return response.FromAppError(c, apperr.InternalWithError(err))
		}
		_, err = deps.Credentials.RefreshToken(ctx)
		if err != nil && !errors.Is(err, apperr.ErrNoCredential) {
			return response.FromAppError(c, apperr.InternalWithError(err))
		}

		body := fiber.Map{
			"environment":    deps.Config.Environment,
			"dry_run":        deps.Config.DryRun,
			"has_credential": err == nil,
			"gmail_breaker":  deps.GmailProvider.GetCircuitBreakerState(),
			"last_processed": nil,
			"thread_policy":  deps.Config.ThreadPolicy,
			"llm_cache":      deps.Config.LLMCacheBackend,
		}
		if !wm.IsZero() {
			body["last_processed"] = wm.UTC().Format(time.RFC3339)
		}
		return c.JSON(body)
	})
}
