package v1

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/agentfleet/agentfleet/internal/config"
	"github.com/agentfleet/agentfleet/internal/domain"
	"github.com/agentfleet/agentfleet/internal/hub"
	"github.com/agentfleet/agentfleet/internal/service"
	"github.com/agentfleet/agentfleet/tests/helpers"
)

func TestStreamInitCarriesFullHistory(t *testing.T) {
	db := helpers.NewTestSQLiteStore(t)
	cfg := &config.Config{
		StaleAfter:     30 * time.Second,
		OfflineAfter:   120 * time.Second,
		PollWait:       time.Second,
		EventPageLimit: 10,
	}
	svc := service.New(db, hub.New(), cfg)
	handler := NewHandler(svc)

	ctx := context.Background()
	session, _, err := svc.CreateRun(ctx, domain.CreateRunRequest{
		Type:      domain.RunTypeStartSession,
		AgentName: "researcher",
	})
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	const total = 25
	for i := 0; i < total; i++ {
		_, err := svc.AppendEvent(ctx, session.SessionID, domain.AppendEventRequest{
			Type:    domain.EventTypeMessage,
			Payload: json.RawMessage(fmt.Sprintf(`{"seq":%d}`, i)),
		})
		if err != nil {
			t.Fatalf("AppendEvent %d: %v", i, err)
		}
	}

	e := echo.New()
	e.GET("/v1/stream", handler.Stream)
	srv := httptest.NewServer(e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/stream?session_id=" + session.SessionID
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var init domain.StreamMessage
	if err := ws.ReadJSON(&init); err != nil {
		t.Fatalf("read init: %v", err)
	}
	assert.Equal(t, domain.StreamTypeInit, init.Type)
	if len(init.Events) != total {
		t.Fatalf("init snapshot has %d events, want %d", len(init.Events), total)
	}
	for i, event := range init.Events {
		assert.Equal(t, int64(i+1), event.EventID)
	}

	// The live feed picks up right where the snapshot ended.
	_, err = svc.AppendEvent(ctx, session.SessionID, domain.AppendEventRequest{
		Type: domain.EventTypeMessage,
	})
	if err != nil {
		t.Fatalf("AppendEvent live: %v", err)
	}

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var live domain.StreamMessage
	if err := ws.ReadJSON(&live); err != nil {
		t.Fatalf("read live event: %v", err)
	}
	assert.Equal(t, domain.StreamTypeEvent, live.Type)
	if live.Event == nil {
		t.Fatal("live message has no event")
	}
	assert.Equal(t, int64(total+1), live.Event.EventID)
}
