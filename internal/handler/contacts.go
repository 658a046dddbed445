package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/pichehq/workspace-messaging/internal/middleware"
	"github.com/pichehq/workspace-messaging/internal/model"
	"github.com/pichehq/workspace-messaging/internal/service"
	"github.com/pichehq/workspace-messaging/pkg/logger"
)

// ContactHandler handles contact profile endpoints.
type ContactHandler struct {
	service *service.ConversationService
	logger  *logger.Logger
}

// NewContactHandler creates a new contact handler.
func NewContactHandler(svc *service.ConversationService, log *logger.Logger) *ContactHandler {
	return &ContactHandler{
		service: svc,
		logger:  log,
	}
}

// List handles GET /api/v1/contacts. The caller's own profile is excluded.
func (h *ContactHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	resp, err := h.service.ListContacts(ctx, userID)
	if err != nil {
		h.logger.Error("failed to list contacts", zap.Error(err))
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// UpsertMe handles PUT /api/v1/contacts/me. Called on every sign-in; the
// first call for an identity also provisions its saved-messages thread.
func (h *ContactHandler) UpsertMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req model.UpsertContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.DisplayName == "" {
		req.DisplayName = middleware.GetDisplayName(ctx)
	}
	if err := middleware.ValidateDisplayName(req.DisplayName); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	contact, err := h.service.UpsertContact(ctx, userID, req)
	if err != nil {
		h.logger.Error("failed to upsert contact",
			zap.String("user_id", userID), zap.Error(err))
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, contact)
}
