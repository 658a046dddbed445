package model

import (
	"time"
	"unicode/utf8"
)

// ContentKind tags the payload variant a message carries.
type ContentKind string

const (
	KindText  ContentKind = "text"
	KindImage ContentKind = "image"
	KindFile  ContentKind = "file"
)

// RunGap is the maximum gap between two consecutive messages from the same
// sender for them to belong to one visual run. Consumers of the rendering
// contract depend on this exact value.
const RunGap = 5 * time.Minute

// maxTextLength bounds message text, mirroring the composer limit.
const maxTextLength = 100_000

// Message is a single immutable entry in a conversation's append-only log.
// CreatedAt is assigned by the store at write time and is strictly
// increasing within a conversation.
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	SenderName     string `json:"sender_name,omitempty"`

	Kind     ContentKind `json:"kind"`
	Text     string      `json:"text,omitempty"`
	ImageURL string      `json:"image_url,omitempty"`
	FileURL  string      `json:"file_url,omitempty"`
	FileName string      `json:"file_name,omitempty"`

	// Reply is an immutable snapshot of the referenced message captured at
	// send time. It is never re-resolved against the original.
	Reply *Reply `json:"reply,omitempty"`

	// ForwardedFrom marks the message as a forward of someone else's message.
	ForwardedFrom *ForwardedFrom `json:"forwarded_from,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Reply is the embedded point-in-time copy of a referenced message.
type Reply struct {
	MessageID  string      `json:"message_id"`
	SenderID   string      `json:"sender_id"`
	SenderName string      `json:"sender_name,omitempty"`
	Kind       ContentKind `json:"kind"`
	Text       string      `json:"text,omitempty"`
	ImageURL   string      `json:"image_url,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// ForwardedFrom identifies the original author of a forwarded message.
type ForwardedFrom struct {
	OriginalSenderID   string `json:"original_sender_id"`
	OriginalSenderName string `json:"original_sender_name,omitempty"`
}

// Validate checks that the message carries a well-formed payload: exactly the
// fields of its kind, and at least some content.
func (m *Message) Validate() error {
	switch m.Kind {
	case KindText:
		if m.Text == "" {
			return ErrEmptyMessage
		}
	case KindImage:
		if m.ImageURL == "" {
			return ErrEmptyMessage
		}
	case KindFile:
		if m.FileURL == "" {
			return ErrEmptyMessage
		}
	default:
		return ErrEmptyMessage
	}
	if len(m.Text) > maxTextLength || !utf8.ValidString(m.Text) {
		return ErrInvalidContent
	}
	return nil
}

// Preview returns the short text used for last-message summaries.
func (m *Message) Preview() string {
	switch m.Kind {
	case KindImage:
		return "Image"
	case KindFile:
		return m.FileName
	default:
		return m.Text
	}
}

// Summary projects the message into the denormalized conversation preview.
func (m *Message) Summary() *MessageSummary {
	return &MessageSummary{
		MessageID:  m.ID,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		Kind:       m.Kind,
		Preview:    m.Preview(),
		CreatedAt:  m.CreatedAt,
	}
}

// StartsNewRun reports whether cur opens a new visual run after prev: a run
// breaks on a sender change or a gap above RunGap.
func StartsNewRun(prev, cur *Message) bool {
	if prev == nil {
		return true
	}
	if prev.SenderID != cur.SenderID {
		return true
	}
	return cur.CreatedAt.Sub(prev.CreatedAt) > RunGap
}

// SendMessageRequest is the request to send a new message.
type SendMessageRequest struct {
	Text          string   `json:"text,omitempty"`
	AttachmentIDs []string `json:"attachment_ids,omitempty"`
	ReplyTo       string   `json:"reply_to,omitempty"`
}

// ListMessagesResponse is the response for listing recent messages.
type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"has_more"`
}
