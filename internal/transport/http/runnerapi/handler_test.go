package runnerapi

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

func registerRunnerViaAPI(t *testing.T, handler *Handler, e *echo.Echo) domain.Runner {
	t.Helper()
	body, _ := json.Marshal(domain.RegisterRunnerRequest{Hostname: "host-a"})
	req := httptest.NewRequest(http.MethodPost, "/runner/runners", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := handler.RegisterRunner(c)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)

	var runner domain.Runner
	json.Unmarshal(rec.Body.Bytes(), &runner)
	assert.NotEmpty(t, runner.RunnerID)
	assert.Equal(t, domain.RunnerStatusOnline, runner.Status)
	return runner
}

func enqueueRun(t *testing.T, svc *service.Service) (*domain.Session, *domain.Run) {
	t.Helper()
	session, run, err := svc.CreateRun(context.Background(), domain.CreateRunRequest{
		Type: domain.RunTypeStartSession,
	})
	assert.NoError(t, err)
	return session, run
}

func TestRegisterRunnerRequiresHostname(t *testing.T) {
	e := echo.New()
	handler, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/runner/runners", bytes.NewReader([]byte(`{}`)))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := handler.RegisterRunner(c)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHeartbeatUnknownRunner(t *testing.T) {
	e := echo.New()
	handler, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/runner/runners/rnr_ghost/heartbeat", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/runner/runners/:runner_id/heartbeat")
	c.SetParamNames("runner_id")
	c.SetParamValues("rnr_ghost")

	err := handler.Heartbeat(c)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPollRunEmptyQueue(t *testing.T) {
	e := echo.New()
	handler, _ := newTestHandler(t)
	runner := registerRunnerViaAPI(t, handler, e)

	req := httptest.NewRequest(http.MethodGet, "/runner/runs?runner_id="+runner.RunnerID, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := handler.PollRun(c)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestPollRunRequiresRunnerID(t *testing.T) {
	e := echo.New()
	handler, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/runner/runs", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := handler.PollRun(c)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPollRunClaims(t *testing.T) {
	e := echo.New()
	handler, svc := newTestHandler(t)
	runner := registerRunnerViaAPI(t, handler, e)
	_, pending := enqueueRun(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/runner/runs?runner_id="+runner.RunnerID, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := handler.PollRun(c)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)

	var run domain.Run
	json.Unmarshal(rec.Body.Bytes(), &run)
	assert.Equal(t, pending.RunID, run.RunID)
	assert.Equal(t, domain.RunStatusClaimed, run.Status)
	assert.Equal(t, runner.RunnerID, run.ClaimedBy)
}

func reportVia(t *testing.T, handler *Handler, e *echo.Echo, runID, verb string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/runner/runs/"+runID+"/"+verb, bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/runner/runs/:run_id/" + verb)
	c.SetParamNames("run_id")
	c.SetParamValues(runID)

	var err error
	switch verb {
	case "started":
		err = handler.ReportStarted(c)
	case "completed":
		err = handler.ReportCompleted(c)
	case "failed":
		err = handler.ReportFailed(c)
	case "stopped":
		err = handler.ReportStopped(c)
	default:
		t.Fatalf("unknown report verb %q", verb)
	}
	assert.NoError(t, err)
	return rec
}

func TestReportCompletedOnPendingRunConflicts(t *testing.T) {
	e := echo.New()
	handler, svc := newTestHandler(t)
	_, pending := enqueueRun(t, svc)

	rec := reportVia(t, handler, e, pending.RunID, "completed", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestReportUnknownRun(t *testing.T) {
	e := echo.New()
	handler, _ := newTestHandler(t)

	rec := reportVia(t, handler, e, "run_ghost", "completed", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReportFailedWithReason(t *testing.T) {
	ctx := context.Background()
	e := echo.New()
	handler, svc := newTestHandler(t)
	runner := registerRunnerViaAPI(t, handler, e)
	_, pending := enqueueRun(t, svc)

	run, err := svc.PollRun(ctx, runner.RunnerID, nil, 0)
	assert.NoError(t, err)
	assert.NotNil(t, run)

	body, _ := json.Marshal(domain.ReportFailedRequest{Reason: "executor crashed"})
	rec := reportVia(t, handler, e, pending.RunID, "failed", body)
	assert.Equal(t, http.StatusOK, rec.Code)

	status, err := svc.GetSessionStatus(ctx, run.SessionID)
	assert.NoError(t, err)
	assert.Equal(t, domain.ClientStatusFinished, status)

	// A duplicate terminal report is absorbed with 200.
	rec = reportVia(t, handler, e, pending.RunID, "completed", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListOrphanedRunsEndpoint(t *testing.T) {
	ctx := context.Background()
	e := echo.New()
	handler, svc := newTestHandler(t)
	runner := registerRunnerViaAPI(t, handler, e)
	enqueueRun(t, svc)

	_, err := svc.PollRun(ctx, runner.RunnerID, nil, 0)
	assert.NoError(t, err)

	// The runner just heartbeat via the poll, so nothing is orphaned.
	req := httptest.NewRequest(http.MethodGet, "/runner/runs/orphaned", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err = handler.ListOrphanedRuns(c)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"runs":[]}`, rec.Body.String())
}

func TestBindSessionEndpoint(t *testing.T) {
	ctx := context.Background()
	e := echo.New()
	handler, svc := newTestHandler(t)
	session, _ := enqueueRun(t, svc)

	body, _ := json.Marshal(domain.BindSessionRequest{ExecutorSessionID: "exec-1"})
	req := httptest.NewRequest(http.MethodPost, "/runner/sessions/"+session.SessionID+"/bind", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/runner/sessions/:session_id/bind")
	c.SetParamNames("session_id")
	c.SetParamValues(session.SessionID)

	err := handler.BindSession(c)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)

	got, err := svc.GetSession(ctx, session.SessionID)
	assert.NoError(t, err)
	assert.Equal(t, "exec-1", got.ExecutorSessionID)
}

func TestAppendEventEndpoint(t *testing.T) {
	ctx := context.Background()
	e := echo.New()
	handler, svc := newTestHandler(t)
	session, _ := enqueueRun(t, svc)

	body, _ := json.Marshal(domain.AppendEventRequest{
		Type:    domain.EventTypeMessage,
		Payload: json.RawMessage(`{"role":"assistant","content":"hello"}`),
	})
	req := httptest.NewRequest(http.MethodPost, "/runner/sessions/"+session.SessionID+"/events", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/runner/sessions/:session_id/events")
	c.SetParamNames("session_id")
	c.SetParamValues(session.SessionID)

	err := handler.AppendEvent(c)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]int64
	json.Unmarshal(rec.Body.Bytes(), &resp)
	assert.Equal(t, int64(1), resp["event_id"])

	events, err := svc.ListEvents(ctx, session.SessionID, 0, 0)
	assert.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Equal(t, domain.EventTypeMessage, events[0].Type)
}

func TestAppendEventUnknownSession(t *testing.T) {
	e := echo.New()
	handler, _ := newTestHandler(t)

	body, _ := json.Marshal(domain.AppendEventRequest{Type: domain.EventTypeMessage})
	req := httptest.NewRequest(http.MethodPost, "/runner/sessions/sess_ghost/events", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/runner/sessions/:session_id/events")
	c.SetParamNames("session_id")
	c.SetParamValues("sess_ghost")

	err := handler.AppendEvent(c)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
