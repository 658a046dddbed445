package middleware

import (
	"errors"
	"unicode/utf8"

	"github.com/google/uuid"
)

// ValidateConversationID validates a conversation ID.
func ValidateConversationID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid conversation ID format")
	}
	return nil
}

// ValidateMessageID validates a message ID.
func ValidateMessageID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid message ID format")
	}
	return nil
}

// ValidateAttachmentID validates an attachment ID.
func ValidateAttachmentID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid attachment ID format")
	}
	return nil
}

// ValidateTitle validates a conversation title.
func ValidateTitle(title string) error {
	if len(title) > 256 {
		return errors.New("title exceeds maximum length")
	}
	if !utf8.ValidString(title) {
		return errors.New("title must be valid UTF-8")
	}
	return nil
}

// ValidateDisplayName validates a contact display name.
func ValidateDisplayName(name string) error {
	if len(name) > 128 {
		return errors.New("display name exceeds maximum length")
	}
	if !utf8.ValidString(name) {
		return errors.New("display name must be valid UTF-8")
	}
	return nil
}
