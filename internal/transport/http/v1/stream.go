package v1

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/agentfleet/agentfleet/internal/domain"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Dashboards connect cross-origin.
		return true
	},
}

// Stream delivers the live event stream over a websocket. The connection
// first receives an init snapshot, then event and session lifecycle
// messages as they happen. Clients de-duplicate on event_id; a dropped
// connection replays via GET /v1/sessions/:id/events?since_id=.
// GET /v1/stream?session_id=
func (h *Handler) Stream(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.QueryParam("session_id")

	if sessionID != "" {
		session, err := h.service.GetSession(ctx, sessionID)
		if err != nil {
			return errorJSON(c, err)
		}
		if session == nil {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
		}
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("WARN: failed to upgrade stream connection: %v", err)
		return err
	}
	defer ws.Close()

	// Subscribe before snapshotting: anything appended in between shows
	// up in both, and the client drops the duplicate by event_id. The
	// other order would open a gap.
	sub := h.service.Hub().Subscribe(sessionID)
	defer h.service.Hub().Unsubscribe(sub)

	init := domain.StreamMessage{Type: domain.StreamTypeInit}
	if sessionID == "" {
		sessions, err := h.service.ListSessions(ctx)
		if err != nil {
			return err
		}
		if sessions == nil {
			sessions = []domain.Session{}
		}
		init.Sessions = sessions
	} else {
		// The snapshot must carry the whole history; the page limit only
		// bounds one query, so keep paging until the log is exhausted.
		events := []domain.Event{}
		var sinceID int64
		for {
			page, err := h.service.ListEvents(ctx, sessionID, sinceID, 0)
			if err != nil {
				return err
			}
			if len(page) == 0 {
				break
			}
			events = append(events, page...)
			sinceID = page[len(page)-1].EventID
		}
		init.Events = events
	}

	ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := ws.WriteJSON(init); err != nil {
		return nil
	}

	// Reader goroutine only detects the peer going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-sub.Ch:
			if !ok {
				// Dropped by the hub for falling behind.
				return nil
			}
			ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := ws.WriteJSON(msg); err != nil {
				return nil
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		case <-done:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}
