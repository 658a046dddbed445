package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pichehq/workspace-messaging/internal/middleware"
	"github.com/pichehq/workspace-messaging/internal/model"
	"github.com/pichehq/workspace-messaging/internal/service"
	"github.com/pichehq/workspace-messaging/internal/store"
	"github.com/pichehq/workspace-messaging/pkg/logger"
)

// MessageHandler handles message endpoints.
type MessageHandler struct {
	service *service.MessageService
	forward *service.ForwardService
	logger  *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(svc *service.MessageService, fwd *service.ForwardService, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		service: svc,
		forward: fwd,
		logger:  log,
	}
}

// List handles GET /api/v1/conversations/:id/messages
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit := store.DefaultHistoryLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= store.DefaultHistoryLimit {
			limit = parsed
		}
	}

	resp, err := h.service.Recent(ctx, userID, conversationID, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Send handles POST /api/v1/conversations/:id/messages. The response carries
// every message the request produced; multiple attachments fan out into one
// message each.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.ReplyTo != "" {
		if err := middleware.ValidateMessageID(req.ReplyTo); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	sent, err := h.service.Send(ctx, userID, conversationID, req)
	if err != nil {
		h.logger.Error("failed to send message",
			zap.String("conversation_id", conversationID), zap.Error(err))
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"messages": sent,
	})
}

// Forward handles POST /api/v1/messages/:id/forward. Always 200 when the
// source message resolves; per-target outcomes live in the results.
func (h *MessageHandler) Forward(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	messageID := chi.URLParam(r, "id")

	if err := middleware.ValidateMessageID(messageID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.ForwardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Targets) == 0 {
		writeError(w, http.StatusBadRequest, "at least one target required")
		return
	}

	resp, err := h.forward.Forward(ctx, userID, messageID, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
