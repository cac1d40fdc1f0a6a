// Package hub fans out newly appended events and session lifecycle changes
// to live stream subscribers.
package hub

import (
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/agentfleet/agentfleet/internal/domain"
)

const subscriberBuffer = 256

// Subscriber is one live stream connection. Ch is drained by the transport
// layer; when the buffer overflows the subscriber is dropped and must
// reconnect and replay via the event list endpoint.
type Subscriber struct {
	ID        string
	SessionID string // empty subscribes to all sessions
	Ch        chan domain.StreamMessage

	closeOnce sync.Once
}

func (s *Subscriber) close() {
	s.closeOnce.Do(func() { close(s.Ch) })
}

// Hub manages stream subscribers. Publish never blocks on a slow consumer.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
}

// New creates a new Hub.
func New() *Hub {
	return &Hub{
		subscribers: make(map[string]*Subscriber),
	}
}

// Subscribe registers a listener for one session, or for all sessions when
// sessionID is empty.
func (h *Hub) Subscribe(sessionID string) *Subscriber {
	sub := &Subscriber{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Ch:        make(chan domain.StreamMessage, subscriberBuffer),
	}
	h.mu.Lock()
	h.subscribers[sub.ID] = sub
	h.mu.Unlock()
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	_, ok := h.subscribers[sub.ID]
	delete(h.subscribers, sub.ID)
	h.mu.Unlock()
	if ok {
		sub.close()
	}
}

// PublishEvent delivers an appended event to matching subscribers.
func (h *Hub) PublishEvent(event domain.Event) {
	ev := event
	h.publish(event.SessionID, domain.StreamMessage{Type: domain.StreamTypeEvent, Event: &ev})
}

// PublishSessionChange delivers a session lifecycle change to all
// subscribers of that session plus the firehose subscribers.
func (h *Hub) PublishSessionChange(msgType domain.StreamMessageType, session domain.Session) {
	sess := session
	h.publish(session.SessionID, domain.StreamMessage{Type: msgType, Session: &sess})
}

func (h *Hub) publish(sessionID string, msg domain.StreamMessage) {
	var dropped []*Subscriber

	h.mu.RLock()
	for _, sub := range h.subscribers {
		if sub.SessionID != "" && sub.SessionID != sessionID {
			continue
		}
		select {
		case sub.Ch <- msg:
		default:
			// Buffer full, the subscriber is too slow. Drop it rather
			// than stall the append path.
			dropped = append(dropped, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range dropped {
		log.Printf("WARN: subscriber %s buffer full, dropping", sub.ID)
		h.Unsubscribe(sub)
	}
}

// SubscriberCount returns the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
