package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/agentfleet/agentfleet/internal/config"
	"github.com/agentfleet/agentfleet/internal/domain"
	"github.com/agentfleet/agentfleet/internal/hub"
	"github.com/agentfleet/agentfleet/internal/service"
	"github.com/agentfleet/agentfleet/tests/helpers"
)

func newTestHandler(t *testing.T) (*Handler, *service.Service) {
	t.Helper()
	db := helpers.NewTestSQLiteStore(t)
	cfg := &config.Config{
		StaleAfter:     30 * time.Second,
		OfflineAfter:   120 * time.Second,
		PollWait:       time.Second,
		EventPageLimit: 200,
	}
	svc := service.New(db, hub.New(), cfg)
	return NewHandler(svc), svc
}

func createSessionViaAPI(t *testing.T, handler *Handler, e *echo.Echo) domain.CreateRunResponse {
	t.Helper()
	body, _ := json.Marshal(domain.CreateRunRequest{
		Type:      domain.RunTypeStartSession,
		AgentName: "researcher",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/runs", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := handler.CreateRun(c)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp domain.CreateRunResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	assert.NotEmpty(t, resp.RunID)
	assert.NotEmpty(t, resp.SessionID)
	assert.Equal(t, domain.RunStatusPending, resp.Status)
	return resp
}

func TestCreateRunValidation(t *testing.T) {
	e := echo.New()
	handler, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/runs", bytes.NewReader([]byte(`{}`)))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := handler.CreateRun(c)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateRunResumeBusyConflict(t *testing.T) {
	e := echo.New()
	handler, _ := newTestHandler(t)
	created := createSessionViaAPI(t, handler, e)

	body, _ := json.Marshal(domain.CreateRunRequest{
		Type:      domain.RunTypeResumeSession,
		SessionID: created.SessionID,
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/runs", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := handler.CreateRun(c)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestListSessionsEmpty(t *testing.T) {
	e := echo.New()
	handler, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := handler.ListSessions(c)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"sessions":[]}`, rec.Body.String())
}

func TestGetSessionStatus(t *testing.T) {
	e := echo.New()
	handler, _ := newTestHandler(t)
	created := createSessionViaAPI(t, handler, e)

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/"+created.SessionID+"/status", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/v1/sessions/:session_id/status")
	c.SetParamNames("session_id")
	c.SetParamValues(created.SessionID)

	err := handler.GetSessionStatus(c)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	json.Unmarshal(rec.Body.Bytes(), &resp)
	assert.Equal(t, string(domain.ClientStatusPending), resp["status"])
}

func TestGetSessionStatusUnknownSession(t *testing.T) {
	e := echo.New()
	handler, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/sess_ghost/status", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/v1/sessions/:session_id/status")
	c.SetParamNames("session_id")
	c.SetParamValues("sess_ghost")

	err := handler.GetSessionStatus(c)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	json.Unmarshal(rec.Body.Bytes(), &resp)
	assert.Equal(t, string(domain.ClientStatusNotExistent), resp["status"])
}

func TestGetSessionResultNotReady(t *testing.T) {
	e := echo.New()
	handler, _ := newTestHandler(t)
	created := createSessionViaAPI(t, handler, e)

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/"+created.SessionID+"/result", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/v1/sessions/:session_id/result")
	c.SetParamNames("session_id")
	c.SetParamValues(created.SessionID)

	err := handler.GetSessionResult(c)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetSessionResult(t *testing.T) {
	ctx := context.Background()
	e := echo.New()
	handler, svc := newTestHandler(t)
	created := createSessionViaAPI(t, handler, e)

	payload, _ := json.Marshal(domain.ResultPayload{ResultText: "the answer"})
	_, err := svc.AppendEvent(ctx, created.SessionID, domain.AppendEventRequest{
		Type:    domain.EventTypeResult,
		Payload: payload,
	})
	assert.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/"+created.SessionID+"/result", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/v1/sessions/:session_id/result")
	c.SetParamNames("session_id")
	c.SetParamValues(created.SessionID)

	err = handler.GetSessionResult(c)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp domain.SessionResult
	json.Unmarshal(rec.Body.Bytes(), &resp)
	assert.Equal(t, "the answer", resp.ResultText)
}

func TestGetSessionEventsSinceID(t *testing.T) {
	ctx := context.Background()
	e := echo.New()
	handler, svc := newTestHandler(t)
	created := createSessionViaAPI(t, handler, e)

	for i := 0; i < 3; i++ {
		_, err := svc.AppendEvent(ctx, created.SessionID, domain.AppendEventRequest{
			Type:    domain.EventTypeMessage,
			Payload: json.RawMessage(`{"role":"assistant","content":"hi"}`),
		})
		assert.NoError(t, err)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/"+created.SessionID+"/events?since_id=1", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/v1/sessions/:session_id/events")
	c.SetParamNames("session_id")
	c.SetParamValues(created.SessionID)

	err := handler.GetSessionEvents(c)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Events []domain.Event `json:"events"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	assert.Len(t, resp.Events, 2)
	assert.Equal(t, int64(2), resp.Events[0].EventID)
	assert.Equal(t, int64(3), resp.Events[1].EventID)
}

func TestGetSessionEventsUnknownSession(t *testing.T) {
	e := echo.New()
	handler, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/sess_ghost/events", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/v1/sessions/:session_id/events")
	c.SetParamNames("session_id")
	c.SetParamValues("sess_ghost")

	err := handler.GetSessionEvents(c)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStopSessionEndpoint(t *testing.T) {
	e := echo.New()
	handler, _ := newTestHandler(t)
	created := createSessionViaAPI(t, handler, e)

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/"+created.SessionID+"/stop", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/v1/sessions/:session_id/stop")
	c.SetParamNames("session_id")
	c.SetParamValues(created.SessionID)

	err := handler.StopSession(c)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp domain.StopResult
	json.Unmarshal(rec.Body.Bytes(), &resp)
	assert.True(t, resp.OK)
}

func TestDeleteSessionEndpoint(t *testing.T) {
	e := echo.New()
	handler, _ := newTestHandler(t)
	created := createSessionViaAPI(t, handler, e)

	req := httptest.NewRequest(http.MethodDelete, "/v1/sessions/"+created.SessionID, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/v1/sessions/:session_id")
	c.SetParamNames("session_id")
	c.SetParamValues(created.SessionID)

	err := handler.DeleteSession(c)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Second delete of the same session is a 404.
	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodDelete, "/v1/sessions/"+created.SessionID, nil), rec)
	c.SetPath("/v1/sessions/:session_id")
	c.SetParamNames("session_id")
	c.SetParamValues(created.SessionID)

	err = handler.DeleteSession(c)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
