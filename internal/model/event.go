package model

import (
	"time"
)

// EventType tags the envelope kinds exchanged on the relay and pushed to
// live subscribers.
type EventType string

const (
	EventMessageAppended     EventType = "message_appended"
	EventConversationUpdated EventType = "conversation_updated"
	EventContactUpdated      EventType = "contact_updated"
)

// Event is the envelope published on every state change. Origin identifies
// the emitting instance so the relay can skip echoes of its own writes.
type Event struct {
	ID             string    `json:"id"`
	Type           EventType `json:"type"`
	Origin         string    `json:"origin"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Message        *Message  `json:"message,omitempty"`
	Participants   []string  `json:"participants,omitempty"`
	ContactID      string    `json:"contact_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// ErrorEvent is the payload of an SSE error frame.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HeartbeatEvent keeps long-lived SSE connections alive.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}
