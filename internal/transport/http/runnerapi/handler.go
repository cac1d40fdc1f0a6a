// Package runnerapi provides the runner-facing HTTP handlers: registration,
// heartbeat, the poll/claim protocol, status reports, and the endpoints the
// runner gateway forwards executor traffic to.
package runnerapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/agentfleet/agentfleet/internal/domain"
	"github.com/agentfleet/agentfleet/internal/service"
)

// Handler handles runner-facing HTTP requests.
type Handler struct {
	service *service.Service
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service) *Handler {
	return &Handler{
		service: service,
	}
}

// RegisterRoutes registers runner routes on the given group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/runners", h.RegisterRunner)
	g.GET("/runners", h.ListRunners)
	g.POST("/runners/:runner_id/heartbeat", h.Heartbeat)
	g.DELETE("/runners/:runner_id", h.UnregisterRunner)

	g.GET("/runs", h.PollRun)
	g.GET("/runs/orphaned", h.ListOrphanedRuns)
	g.POST("/runs/:run_id/started", h.ReportStarted)
	g.POST("/runs/:run_id/completed", h.ReportCompleted)
	g.POST("/runs/:run_id/failed", h.ReportFailed)
	g.POST("/runs/:run_id/stopped", h.ReportStopped)

	g.POST("/sessions/:session_id/bind", h.BindSession)
	g.POST("/sessions/:session_id/events", h.AppendEvent)
	g.PATCH("/sessions/:session_id/metadata", h.PatchMetadata)
}

func errorJSON(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrRunNotFound),
		errors.Is(err, domain.ErrUnknownRunner):
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	case domain.IsInvalidTransition(err):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}
