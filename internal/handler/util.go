package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pichehq/workspace-messaging/internal/model"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// writeServiceError maps domain errors onto HTTP statuses. Unknown errors
// become 500 with a generic message so internals never leak to clients.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidParticipantSet),
		errors.Is(err, model.ErrEmptyMessage),
		errors.Is(err, model.ErrInvalidContent):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrConversationNotFound),
		errors.Is(err, model.ErrMessageNotFound),
		errors.Is(err, model.ErrContactNotFound),
		errors.Is(err, model.ErrAttachmentNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrAttachmentTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, model.ErrAttachmentNotReady):
		// Retryable: the upload has not finished yet.
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
