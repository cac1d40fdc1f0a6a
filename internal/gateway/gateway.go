// Package gateway implements the per-runner enrichment proxy. Executor
// subprocesses talk only to this local endpoint; the gateway injects the
// runner-owned facts (hostname, executor profile) and the runner's
// credentials before forwarding to the coordinator, so an executor cannot
// misreport which host or capability profile executed it.
package gateway

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/agentfleet/agentfleet/internal/config"
	"github.com/agentfleet/agentfleet/internal/domain"
	"github.com/agentfleet/agentfleet/internal/policy"
)

// Gateway hosts the executor-facing local endpoints.
type Gateway struct {
	cfg      *config.GatewayConfig
	client   *Client
	engine   *policy.Engine
	hostname string

	mu      sync.RWMutex
	allowed map[string]bool
}

// New creates a gateway around a coordinator client.
func New(cfg *config.GatewayConfig, client *Client, engine *policy.Engine) *Gateway {
	hostname, err := os.Hostname()
	if err != nil {
		log.Printf("WARN: failed to resolve hostname: %v", err)
		hostname = "unknown"
	}
	return &Gateway{
		cfg:      cfg,
		client:   client,
		engine:   engine,
		hostname: hostname,
		allowed:  make(map[string]bool),
	}
}

// AllowSession marks a session as bound to this runner. The runner loop
// calls this when it claims a run, before launching the executor.
func (g *Gateway) AllowSession(sessionID string) {
	g.mu.Lock()
	g.allowed[sessionID] = true
	g.mu.Unlock()
}

// RevokeSession removes a session from the allowed set once its run ends.
func (g *Gateway) RevokeSession(sessionID string) {
	g.mu.Lock()
	delete(g.allowed, sessionID)
	g.mu.Unlock()
}

func (g *Gateway) allowedSessions() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	sessions := make([]string, 0, len(g.allowed))
	for id := range g.allowed {
		sessions = append(sessions, id)
	}
	return sessions
}

// NewServer creates the local echo server for executor traffic.
func (g *Gateway) NewServer() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	e.POST("/bind", g.Bind)
	e.POST("/events", g.Events)
	e.PATCH("/metadata", g.Metadata)
	e.Any("/*", g.Proxy)

	return e
}

func (g *Gateway) authorize(c echo.Context, sessionID string) error {
	decision, err := g.engine.Evaluate(c.Request().Context(), policy.Input{
		Method:          c.Request().Method,
		Path:            c.Request().URL.Path,
		SessionID:       sessionID,
		AllowedSessions: g.allowedSessions(),
	})
	if err != nil {
		log.Printf("ERROR: policy evaluation failed: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "policy evaluation failed"})
	}
	if decision != "allow" {
		return c.JSON(http.StatusForbidden, map[string]string{"error": "session not bound to this runner"})
	}
	return nil
}

type bindBody struct {
	SessionID         string `json:"session_id"`
	ExecutorSessionID string `json:"executor_session_id"`
	ProjectDir        string `json:"project_dir,omitempty"`
}

// Bind forwards the executor's session bind with hostname and executor
// profile injected. Those two fields are runner-owned facts, anything the
// executor put there is discarded.
// POST /bind
func (g *Gateway) Bind(c echo.Context) error {
	var body bindBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if body.SessionID == "" || body.ExecutorSessionID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "session_id and executor_session_id are required"})
	}
	if err := g.authorize(c, body.SessionID); err != nil {
		return err
	}

	req := domain.BindSessionRequest{
		ExecutorSessionID: body.ExecutorSessionID,
		ProjectDir:        body.ProjectDir,
		Hostname:          g.hostname,
		ExecutorProfile:   g.cfg.ExecutorProfile,
	}
	if err := g.client.BindSession(c.Request().Context(), body.SessionID, req); err != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"ok": true})
}

type eventBody struct {
	SessionID string           `json:"session_id"`
	RunID     string           `json:"run_id,omitempty"`
	Type      domain.EventType `json:"event_type"`
	Payload   json.RawMessage  `json:"payload,omitempty"`
}

// Events forwards an executor event verbatim with credentials attached.
// POST /events
func (g *Gateway) Events(c echo.Context) error {
	var body eventBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if body.SessionID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "session_id is required"})
	}
	if err := g.authorize(c, body.SessionID); err != nil {
		return err
	}

	req := domain.AppendEventRequest{RunID: body.RunID, Type: body.Type, Payload: body.Payload}
	if err := g.client.AppendEvent(c.Request().Context(), body.SessionID, req); err != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"ok": true})
}

type metadataBody struct {
	SessionID string          `json:"session_id"`
	Patch     json.RawMessage `json:"patch"`
}

// Metadata forwards a session metadata patch.
// PATCH /metadata
func (g *Gateway) Metadata(c echo.Context) error {
	var body metadataBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if body.SessionID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "session_id is required"})
	}
	if err := g.authorize(c, body.SessionID); err != nil {
		return err
	}

	if err := g.client.PatchMetadata(c.Request().Context(), body.SessionID, body.Patch); err != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"ok": true})
}

// Proxy transparently forwards any other path to the coordinator with the
// runner's credentials attached. The policy engine still gates it.
func (g *Gateway) Proxy(c echo.Context) error {
	if err := g.authorize(c, ""); err != nil {
		return err
	}

	req := c.Request()
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "failed to read request body"})
	}

	status, respBody, err := g.client.Forward(req.Context(), req.Method, req.URL.RequestURI(), body)
	if err != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
	return c.Blob(status, echo.MIMEApplicationJSON, respBody)
}
