package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"triage_worker/core/domain"
	"triage_worker/core/port/in"
	"triage_worker/pkg/apperr"
	"triage_worker/pkg/response"
)

const (
	msgNoRefreshToken = "No refresh token. Visit /api/auth to login."
	msgAuthFailed     = "Authentication failed. Token might be expired."
)

type TriageHandler struct {
	scans      in.ScanService
	allowReset bool
}

// NewTriageHandler wires the trigger and reset endpoints. allowReset is false in production.
func NewTriageHandler(scans in.ScanService, allowReset bool) *TriageHandler {
	return &TriageHandler{scans: scans, allowReset: allowReset}
}

// Register mounts the routes on api. verify guards the trigger; nil disables it.
func (h *TriageHandler) Register(api fiber.Router, verify fiber.Handler) {
	if verify != nil {
		api.Post("/webhook", verify, h.Webhook)
	} else {
		api.Post("/webhook", h.Webhook)
	}
	if h.allowReset {
		api.Post("/reset", h.Reset)
	}
}

type scanResult struct {
	ID      string         `json:"id"`
	Outcome domain.Outcome `json:"outcome"`
	Label   string         `json:"label,omitempty"`
}

type scanResponse struct {
	Success        bool         `json:"success"`
	Message        string       `json:"message,omitempty"`
	ScanID         string       `json:"scanId,omitempty"`
	ProcessedCount int          `json:"processedCount"`
	DryRunCount    int          `json:"dryRunCount,omitempty"`
	SkippedCount   int          `json:"skippedCount"`
	FailedCount    int          `json:"failedCount"`
	Results        []scanResult `json:"results,omitempty"`
}

// Webhook runs one scan.
// POST /api/webhook
func (h *TriageHandler) Webhook(c *fiber.Ctx) error {
	log := requestLogger(c)

	summary, err := h.scans.RunScan(c.UserContext())
	switch {
	case errors.Is(err, apperr.ErrNoCredential):
		log.Warn("No refresh token stored")
		return response.FromAppError(c, apperr.Unauthorized(msgNoRefreshToken))
	case err != nil && isAuthFailure(err):
		log.WithError(err).Warn("Mailbox rejected the stored credential")
		return response.FromAppError(c, apperr.Unauthorized(msgAuthFailed))
	case err != nil:
		log.WithError(err).Error("Scan failed")
		return response.FromAppError(c, apperr.InternalWithError(err))
	}

	if summary.Candidates == 0 {
		return response.OK(c, scanResponse{Success: true, Message: "No new emails", ScanID: summary.ScanID})
	}

	body := scanResponse{
		Success:        true,
		ScanID:         summary.ScanID,
		ProcessedCount: summary.ProcessedCount,
		DryRunCount:    summary.DryRunCount,
		SkippedCount:   summary.SkippedCount,
		FailedCount:    summary.FailedCount,
		Results:        make([]scanResult, 0, len(summary.Results)),
	}
	for _, r := range summary.Results {
		res := scanResult{ID: r.MessageID, Outcome: r.Outcome}
		if r.Label.Valid() {
			res.Label = r.Label.String()
		}
		body.Results = append(body.Results, res)
	}
	return response.OK(c, body)
}

// Reset clears the watermark and every dedup key.
// POST /api/reset
func (h *TriageHandler) Reset(c *fiber.Ctx) error {
	n, err := h.scans.Reset(c.UserContext())
	if err != nil {
		requestLogger(c).WithError(err).Error("Reset failed")
		return response.FromAppError(c, apperr.InternalWithError(err))
	}
	return response.OK(c, fiber.Map{
		"success":          true,
		"message":          "Last processed timestamp and dedup keys reset",
		"deletedDedupKeys": n,
	})
}
