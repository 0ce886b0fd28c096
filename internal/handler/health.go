package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"devcamper-api/internal/config"
)

// Version is a string type for dependency injection of the build version.
type Version string

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StageNames lists the request pipeline stages in execution order.
type StageNames []string

const pingTimeout = 2 * time.Second

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	version Version
	db      Pinger
	stages  StageNames
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, v Version, db Pinger, stages StageNames) *HealthHandler {
	return &HealthHandler{cfg: cfg, version: v, db: db, stages: stages}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status reports the build version, environment, database reachability and
// the request pipeline order. An unreachable database yields 503.
func (h *HealthHandler) Status(c echo.Context) error {
	status, database := "ok", "ok"
	code := http.StatusOK

	ctx, cancel := context.WithTimeout(c.Request().Context(), pingTimeout)
	defer cancel()
	if err := h.db.Ping(ctx); err != nil {
		status, database = "degraded", "unavailable"
		code = http.StatusServiceUnavailable
	}

	return c.JSON(code, map[string]any{
		"status":      status,
		"version":     string(h.version),
		"environment": h.cfg.Environment,
		"database":    database,
		"pipeline":    []string(h.stages),
	})
}
