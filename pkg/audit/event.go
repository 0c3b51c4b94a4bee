package audit

import (
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindSessionStart Kind = "session-start"
	KindToolCall     Kind = "tool-call"
	KindToolResult   Kind = "tool-result"
	KindSessionEnd   Kind = "session-end"
	KindError        Kind = "error"
)

// Event is one session-scoped audit record. Fire-and-forget: the emitter
// retains no ownership after hand-off.
type Event struct {
	ID        string                 `json:"id"`
	Kind      Kind                   `json:"kind"`
	SessionID string                 `json:"session_id"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

func NewEvent(kind Kind, sessionID string, payload map[string]interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}
