package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/agentfleet/agentfleet/internal/config"
	"github.com/agentfleet/agentfleet/internal/domain"
	"github.com/agentfleet/agentfleet/internal/policy"
)

// fakeCoordinator captures the runner-API requests the gateway forwards
// upstream.
type fakeCoordinator struct {
	server   *httptest.Server
	requests []capturedRequest
}

type capturedRequest struct {
	Method string
	Path   string
	Auth   string
	Body   []byte
}

func newFakeCoordinator(t *testing.T) *fakeCoordinator {
	t.Helper()
	fc := &fakeCoordinator{}
	fc.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)
		fc.requests = append(fc.requests, capturedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Auth:   r.Header.Get("Authorization"),
			Body:   body.Bytes(),
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(fc.server.Close)
	return fc
}

func newTestGateway(t *testing.T, coordinatorURL string) *Gateway {
	t.Helper()
	engine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	assert.NoError(t, err)

	cfg := &config.GatewayConfig{
		CoordinatorURL:  coordinatorURL,
		RunnerToken:     "secret-token",
		ExecutorProfile: "claude-code",
	}
	client := NewClient(cfg.CoordinatorURL, cfg.RunnerToken)
	return New(cfg, client, engine)
}

func TestBindInjectsRunnerFacts(t *testing.T) {
	fc := newFakeCoordinator(t)
	gw := newTestGateway(t, fc.server.URL)
	gw.AllowSession("sess_1")
	e := gw.NewServer()

	// The executor tries to claim a different hostname; the gateway
	// overwrites it with its own.
	body := []byte(`{"session_id":"sess_1","executor_session_id":"exec-1","hostname":"spoofed-host","executor_profile":"root"}`)
	req := httptest.NewRequest(http.MethodPost, "/bind", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, fc.requests, 1)
	assert.Equal(t, "/runner/sessions/sess_1/bind", fc.requests[0].Path)
	assert.Equal(t, "Bearer secret-token", fc.requests[0].Auth)

	var forwarded domain.BindSessionRequest
	json.Unmarshal(fc.requests[0].Body, &forwarded)
	assert.Equal(t, "exec-1", forwarded.ExecutorSessionID)
	assert.Equal(t, gw.hostname, forwarded.Hostname)
	assert.Equal(t, "claude-code", forwarded.ExecutorProfile)
	assert.NotEqual(t, "spoofed-host", forwarded.Hostname)
}

func TestBindUnboundSessionForbidden(t *testing.T) {
	fc := newFakeCoordinator(t)
	gw := newTestGateway(t, fc.server.URL)
	e := gw.NewServer()

	body := []byte(`{"session_id":"sess_other","executor_session_id":"exec-1"}`)
	req := httptest.NewRequest(http.MethodPost, "/bind", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, fc.requests)
}

func TestEventsForwardedForBoundSession(t *testing.T) {
	fc := newFakeCoordinator(t)
	gw := newTestGateway(t, fc.server.URL)
	gw.AllowSession("sess_1")
	e := gw.NewServer()

	body := []byte(`{"session_id":"sess_1","event_type":"message","payload":{"role":"assistant","content":"hi"}}`)
	req := httptest.NewRequest(http.MethodPost, "/events", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, fc.requests, 1)
	assert.Equal(t, "/runner/sessions/sess_1/events", fc.requests[0].Path)

	var forwarded domain.AppendEventRequest
	json.Unmarshal(fc.requests[0].Body, &forwarded)
	assert.Equal(t, domain.EventTypeMessage, forwarded.Type)
}

func TestRevokeSessionClosesAccess(t *testing.T) {
	fc := newFakeCoordinator(t)
	gw := newTestGateway(t, fc.server.URL)
	gw.AllowSession("sess_1")
	gw.RevokeSession("sess_1")
	e := gw.NewServer()

	body := []byte(`{"session_id":"sess_1","event_type":"message"}`)
	req := httptest.NewRequest(http.MethodPost, "/events", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, fc.requests)
}

func TestProxyAllowsReadOnlyQueries(t *testing.T) {
	fc := newFakeCoordinator(t)
	gw := newTestGateway(t, fc.server.URL)
	e := gw.NewServer()

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, fc.requests, 1)
	assert.Equal(t, "/v1/sessions", fc.requests[0].Path)
	assert.Equal(t, "Bearer secret-token", fc.requests[0].Auth)
}

func TestProxyDeniesWrites(t *testing.T) {
	fc := newFakeCoordinator(t)
	gw := newTestGateway(t, fc.server.URL)
	e := gw.NewServer()

	req := httptest.NewRequest(http.MethodPost, "/v1/runs", bytes.NewReader([]byte(`{}`)))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, fc.requests)
}
