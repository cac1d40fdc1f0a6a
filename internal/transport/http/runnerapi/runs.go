package runnerapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/agentfleet/agentfleet/internal/domain"
)

// PollRun claims at most one eligible pending run for the calling runner.
// Returns 204 when nothing is available; a lost claim race is not an error.
// GET /runner/runs?runner_id=&tags=&wait_ms=
func (h *Handler) PollRun(c echo.Context) error {
	ctx := c.Request().Context()

	runnerID := c.QueryParam("runner_id")
	if runnerID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "runner_id is required"})
	}

	var tags []string
	if raw := c.QueryParam("tags"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
	}

	waitMs, _ := strconv.Atoi(c.QueryParam("wait_ms"))
	wait := time.Duration(waitMs) * time.Millisecond

	run, err := h.service.PollRun(ctx, runnerID, tags, wait)
	if err != nil {
		return errorJSON(c, err)
	}
	if run == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, run)
}

// ReportStarted records that the executor began the run.
// POST /runner/runs/:run_id/started
func (h *Handler) ReportStarted(c echo.Context) error {
	return h.report(c, h.service.ReportStarted)
}

// ReportCompleted records a successful completion.
// POST /runner/runs/:run_id/completed
func (h *Handler) ReportCompleted(c echo.Context) error {
	return h.report(c, h.service.ReportCompleted)
}

// ReportFailed records a failure with an optional reason.
// POST /runner/runs/:run_id/failed
func (h *Handler) ReportFailed(c echo.Context) error {
	ctx := c.Request().Context()
	runID := c.Param("run_id")

	var req domain.ReportFailedRequest
	// Body is optional.
	_ = c.Bind(&req)

	if err := h.service.ReportFailed(ctx, runID, req.Reason); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"ok": true})
}

// ReportStopped records the executor's acknowledgement of a stop request.
// POST /runner/runs/:run_id/stopped
func (h *Handler) ReportStopped(c echo.Context) error {
	return h.report(c, h.service.ReportStopped)
}

func (h *Handler) report(c echo.Context, fn func(ctx context.Context, runID string) error) error {
	ctx := c.Request().Context()
	runID := c.Param("run_id")

	if err := fn(ctx, runID); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"ok": true})
}

// ListOrphanedRuns surfaces claimed/running runs held by offline runners.
// GET /runner/runs/orphaned
func (h *Handler) ListOrphanedRuns(c echo.Context) error {
	ctx := c.Request().Context()

	runs, err := h.service.ListOrphanedRuns(ctx)
	if err != nil {
		return errorJSON(c, err)
	}
	if runs == nil {
		runs = []domain.Run{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"runs": runs,
	})
}
