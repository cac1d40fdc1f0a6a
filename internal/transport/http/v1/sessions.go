package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/agentfleet/agentfleet/internal/domain"
)

// CreateRun creates a session-starting or session-resuming run.
// POST /v1/runs
func (h *Handler) CreateRun(c echo.Context) error {
	ctx := c.Request().Context()

	var req domain.CreateRunRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Type == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "type is required"})
	}

	_, run, err := h.service.CreateRun(ctx, req)
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusOK, domain.CreateRunResponse{
		RunID:     run.RunID,
		SessionID: run.SessionID,
		Status:    run.Status,
	})
}

// ListSessions lists all sessions.
// GET /v1/sessions
func (h *Handler) ListSessions(c echo.Context) error {
	ctx := c.Request().Context()

	sessions, err := h.service.ListSessions(ctx)
	if err != nil {
		return errorJSON(c, err)
	}
	if sessions == nil {
		sessions = []domain.Session{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"sessions": sessions,
	})
}

// GetSessionStatus returns the simplified client-facing status.
// GET /v1/sessions/:session_id/status
func (h *Handler) GetSessionStatus(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("session_id")

	status, err := h.service.GetSessionStatus(ctx, sessionID)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"status": status})
}

// GetSessionResult returns the latest result event, or 404 if no result
// exists yet.
// GET /v1/sessions/:session_id/result
func (h *Handler) GetSessionResult(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("session_id")

	result, err := h.service.GetSessionResult(ctx, sessionID)
	if err != nil {
		return errorJSON(c, err)
	}
	if result == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "no result yet"})
	}
	return c.JSON(http.StatusOK, result)
}

// GetSessionEvents replays a session's event log.
// GET /v1/sessions/:session_id/events?since_id=&limit=
func (h *Handler) GetSessionEvents(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("session_id")

	sinceID, _ := strconv.ParseInt(c.QueryParam("since_id"), 10, 64)
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	events, err := h.service.ListEvents(ctx, sessionID, sinceID, limit)
	if err != nil {
		return errorJSON(c, err)
	}
	if events == nil {
		events = []domain.Event{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"events": events,
	})
}

// StopSession requests a stop of the session's active run.
// POST /v1/sessions/:session_id/stop
func (h *Handler) StopSession(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("session_id")

	result, err := h.service.StopSession(ctx, sessionID)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// DeleteSession is the explicit administrative delete.
// DELETE /v1/sessions/:session_id
func (h *Handler) DeleteSession(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("session_id")

	if err := h.service.DeleteSession(ctx, sessionID); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"ok": true})
}
