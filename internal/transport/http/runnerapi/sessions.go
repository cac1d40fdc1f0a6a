package runnerapi

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/agentfleet/agentfleet/internal/domain"
)

// BindSession links a coordinator session to the executor's own session
// identity. The gateway has already injected hostname and executor
// profile; the executor's word alone is never trusted for those.
// POST /runner/sessions/:session_id/bind
func (h *Handler) BindSession(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("session_id")

	var req domain.BindSessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.ExecutorSessionID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "executor_session_id is required"})
	}

	if err := h.service.BindSession(ctx, sessionID, &req); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"ok": true})
}

// AppendEvent appends an executor event to the session's log.
// POST /runner/sessions/:session_id/events
func (h *Handler) AppendEvent(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("session_id")

	var req domain.AppendEventRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Type == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "event_type is required"})
	}

	event, err := h.service.AppendEvent(ctx, sessionID, req)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"event_id": event.EventID,
	})
}

// PatchMetadata replaces the session's metadata blob.
// PATCH /runner/sessions/:session_id/metadata
func (h *Handler) PatchMetadata(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("session_id")

	var patch json.RawMessage
	if err := c.Bind(&patch); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	if err := h.service.PatchSessionMetadata(ctx, sessionID, patch); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"ok": true})
}
