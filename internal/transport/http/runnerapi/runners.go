package runnerapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/agentfleet/agentfleet/internal/domain"
)

// RegisterRunner registers a new runner.
// POST /runner/runners
func (h *Handler) RegisterRunner(c echo.Context) error {
	ctx := c.Request().Context()

	var req domain.RegisterRunnerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Hostname == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "hostname is required"})
	}

	runner, err := h.service.RegisterRunner(ctx, req)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, runner)
}

// ListRunners lists all runners with derived statuses.
// GET /runner/runners
func (h *Handler) ListRunners(c echo.Context) error {
	ctx := c.Request().Context()

	runners, err := h.service.ListRunners(ctx)
	if err != nil {
		return errorJSON(c, err)
	}
	if runners == nil {
		runners = []domain.Runner{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"runners": runners,
	})
}

// Heartbeat records runner liveness.
// POST /runner/runners/:runner_id/heartbeat
func (h *Handler) Heartbeat(c echo.Context) error {
	ctx := c.Request().Context()
	runnerID := c.Param("runner_id")

	if err := h.service.Heartbeat(ctx, runnerID); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"ok": true})
}

// UnregisterRunner logically retires a runner.
// DELETE /runner/runners/:runner_id
func (h *Handler) UnregisterRunner(c echo.Context) error {
	ctx := c.Request().Context()
	runnerID := c.Param("runner_id")

	if err := h.service.UnregisterRunner(ctx, runnerID); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"ok": true})
}
