package domain

// StreamMessageType labels messages on the live websocket stream.
type StreamMessageType string

const (
	StreamTypeInit           StreamMessageType = "init"
	StreamTypeEvent          StreamMessageType = "event"
	StreamTypeSessionCreated StreamMessageType = "session_created"
	StreamTypeSessionUpdated StreamMessageType = "session_updated"
	StreamTypeSessionDeleted StreamMessageType = "session_deleted"
)

// StreamMessage is the envelope delivered to stream subscribers. Exactly
// one of the data fields is set depending on Type.
type StreamMessage struct {
	Type     StreamMessageType `json:"type"`
	Event    *Event            `json:"data,omitempty"`
	Session  *Session          `json:"session,omitempty"`
	Sessions []Session         `json:"sessions,omitempty"`
	Events   []Event           `json:"events,omitempty"`
}
