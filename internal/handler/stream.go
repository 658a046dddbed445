package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pichehq/workspace-messaging/internal/middleware"
	"github.com/pichehq/workspace-messaging/internal/model"
	"github.com/pichehq/workspace-messaging/internal/service"
	"github.com/pichehq/workspace-messaging/internal/store"
	"github.com/pichehq/workspace-messaging/pkg/logger"
	"github.com/pichehq/workspace-messaging/pkg/metrics"
)

const heartbeatInterval = 30 * time.Second

// StreamHandler handles SSE streaming endpoints.
type StreamHandler struct {
	messageService      *service.MessageService
	conversationService *service.ConversationService
	logger              *logger.Logger
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(
	msgSvc *service.MessageService,
	convSvc *service.ConversationService,
	log *logger.Logger,
) *StreamHandler {
	return &StreamHandler{
		messageService:      msgSvc,
		conversationService: convSvc,
		logger:              log,
	}
}

// snapshotCompleteEvent marks the boundary between the history snapshot and
// live delivery on a message stream.
type snapshotCompleteEvent struct {
	MessageCount int `json:"message_count"`
}

// Messages handles GET /api/v1/conversations/:id/stream. The client gets the
// recent history as individual events, a snapshot_complete marker, then live
// messages until it disconnects.
func (h *StreamHandler) Messages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sub, err := h.messageService.Subscribe(ctx, userID, conversationID, store.DefaultHistoryLimit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	defer sub.Cancel()

	flusher, ok := beginSSE(w)
	if !ok {
		return
	}

	metrics.SSEConnectionsActive.Inc()
	defer metrics.SSEConnectionsActive.Dec()

	sendSSEEvent(w, flusher, "connected", map[string]string{
		"conversation_id": conversationID,
	})

	snapshot := sub.Snapshot()
	for _, msg := range snapshot {
		select {
		case <-ctx.Done():
			return
		default:
		}
		sendSSEEvent(w, flusher, "message", msg)
	}
	sendSSEEvent(w, flusher, "snapshot_complete", &snapshotCompleteEvent{
		MessageCount: len(snapshot),
	})

	// Pump the blocking subscription into a channel the select can watch.
	live := make(chan model.Message)
	go func() {
		defer close(live)
		for {
			msg, ok := sub.Next()
			if !ok {
				return
			}
			select {
			case live <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("message stream client disconnected",
				zap.String("conversation_id", conversationID))
			return

		case msg, ok := <-live:
			if !ok {
				return
			}
			sendSSEEvent(w, flusher, "message", msg)

		case <-heartbeat.C:
			sendSSEEvent(w, flusher, "heartbeat", &model.HeartbeatEvent{
				Timestamp: time.Now(),
			})
		}
	}
}

// Conversations handles GET /api/v1/conversations/stream. Every event is the
// caller's full conversation list; a slow client only ever sees the newest
// state.
func (h *StreamHandler) Conversations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	sub, err := h.conversationService.Subscribe(userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	defer sub.Cancel()

	flusher, ok := beginSSE(w)
	if !ok {
		return
	}

	metrics.SSEConnectionsActive.Inc()
	defer metrics.SSEConnectionsActive.Dec()

	live := make(chan []model.Conversation)
	go func() {
		defer close(live)
		for {
			list, ok := sub.Next()
			if !ok {
				return
			}
			select {
			case live <- list:
			case <-ctx.Done():
				return
			}
		}
	}()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("conversation stream client disconnected",
				zap.String("user_id", userID))
			return

		case list, ok := <-live:
			if !ok {
				return
			}
			sendSSEEvent(w, flusher, "conversations", model.ListConversationsResponse{
				Conversations: list,
				Total:         len(list),
			})

		case <-heartbeat.C:
			sendSSEEvent(w, flusher, "heartbeat", &model.HeartbeatEvent{
				Timestamp: time.Now(),
			})
		}
	}
}

func beginSSE(w http.ResponseWriter) (http.Flusher, bool) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return nil, false
	}
	return flusher, true
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()

	return nil
}
