// Package model defines data structures for the messaging core.
package model

import (
	"time"
)

// ConversationType distinguishes the kinds of threads the store manages.
type ConversationType string

const (
	// ConversationDirect is a two-participant thread.
	ConversationDirect ConversationType = "direct"
	// ConversationGroup is a thread with three or more participants.
	ConversationGroup ConversationType = "group"
	// ConversationSaved is the single-participant "Saved Messages" thread
	// created for every profile on first sign-in.
	ConversationSaved ConversationType = "saved"
)

// Conversation represents a thread uniquely identified by its canonical
// participant set. Two conversations with the same participant set always
// resolve to the same ParticipantKey and therefore the same row; uniqueness
// is enforced on the key, not on the id.
type Conversation struct {
	ID             string           `json:"id"`
	Type           ConversationType `json:"type"`
	Participants   []string         `json:"participants"`
	ParticipantKey string           `json:"participant_key"`

	Title       string `json:"title,omitempty"`
	Subtitle    string `json:"subtitle,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	AvatarColor string `json:"avatar_color,omitempty"`

	// LastMessage is a denormalized summary updated best-effort on every
	// append. Nil until the first message; advisory, not authoritative.
	LastMessage *MessageSummary `json:"last_message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MessageSummary is the denormalized last-message preview kept on a
// conversation.
type MessageSummary struct {
	MessageID  string      `json:"message_id"`
	SenderID   string      `json:"sender_id"`
	SenderName string      `json:"sender_name,omitempty"`
	Kind       ContentKind `json:"kind"`
	Preview    string      `json:"preview,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// EnsureConversationRequest is the request to get-or-create a conversation.
type EnsureConversationRequest struct {
	Participants []string `json:"participants"`
	Title        string   `json:"title,omitempty"`
	Subtitle     string   `json:"subtitle,omitempty"`
	AvatarURL    string   `json:"avatar_url,omitempty"`
	AvatarColor  string   `json:"avatar_color,omitempty"`
}

// EnsureConversationResponse reports the resolved conversation and whether
// this call created it.
type EnsureConversationResponse struct {
	Conversation Conversation `json:"conversation"`
	Created      bool         `json:"created"`
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
	Total         int            `json:"total"`
}
