package model

import "errors"

// Typed failures surfaced by the core. Callers match with errors.Is; the HTTP
// layer maps them to status codes so transport faults never leak raw.
var (
	// ErrInvalidParticipantSet is returned when fewer than two distinct
	// participants are supplied for a direct or group conversation.
	ErrInvalidParticipantSet = errors.New("participant set needs at least two distinct identities")

	// ErrEmptyMessage is returned for a message with neither text nor an
	// attachment. Nothing is stored.
	ErrEmptyMessage = errors.New("message has no content")

	// ErrInvalidContent is returned for malformed message content.
	ErrInvalidContent = errors.New("message content is invalid")

	// ErrConversationNotFound is returned when a conversation id does not
	// resolve.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrMessageNotFound is returned when a message id does not resolve.
	ErrMessageNotFound = errors.New("message not found")

	// ErrContactNotFound is returned when a profile id does not resolve.
	ErrContactNotFound = errors.New("contact not found")

	// ErrAttachmentTooLarge is returned at stage time for files over the
	// size ceiling. No partial upload is left behind.
	ErrAttachmentTooLarge = errors.New("attachment exceeds size limit")

	// ErrAttachmentNotReady is returned when a send references staged
	// attachments that have not finished uploading. Retryable.
	ErrAttachmentNotReady = errors.New("attachment upload not complete")

	// ErrAttachmentNotFound is returned for an unknown attachment handle.
	ErrAttachmentNotFound = errors.New("attachment not found")
)
