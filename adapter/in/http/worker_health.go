package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"triage_worker/pkg/metrics"
)

type HealthChecker interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	store   HealthChecker
	metrics *metrics.TriageMetrics
}

func NewHealthHandler(store HealthChecker, m *metrics.TriageMetrics) *HealthHandler {
	return &HealthHandler{store: store, metrics: m}
}

func (h *HealthHandler) Register(app *fiber.App) {
	app.Get("/health", h.Health)
	app.Get("/ready", h.Ready)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	body := fiber.Map{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.metrics != nil {
		body["scan_latency"] = h.metrics.ScanLatency().ToMap()
	}
	return c.JSON(body)
}

func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	status, statusCode := "ready", fiber.StatusOK

	if h.store == nil {
		checks["kv"] = "not configured"
	} else if err := h.store.Ping(ctx); err != nil {
		checks["kv"] = "unhealthy: " + err.Error()
		status, statusCode = "not ready", fiber.StatusServiceUnavailable
	} else {
		checks["kv"] = "healthy"
	}

	return c.Status(statusCode).JSON(fiber.Map{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
