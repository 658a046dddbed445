package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pichehq/workspace-messaging/internal/attachment"
	"github.com/pichehq/workspace-messaging/internal/middleware"
	"github.com/pichehq/workspace-messaging/pkg/logger"
)

// AttachmentHandler handles attachment upload and download endpoints.
type AttachmentHandler struct {
	pipeline *attachment.Pipeline
	logger   *logger.Logger
}

// NewAttachmentHandler creates a new attachment handler.
func NewAttachmentHandler(pipeline *attachment.Pipeline, log *logger.Logger) *AttachmentHandler {
	return &AttachmentHandler{
		pipeline: pipeline,
		logger:   log,
	}
}

// Upload handles POST /api/v1/attachments. The body is multipart with a
// single "file" part. The upload is staged and written synchronously within
// the request; the returned id is then ready to reference from a message.
func (h *AttachmentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	// The multipart reader streams; no full-body buffering. The +1 leaves
	// room to detect an oversized file rather than silently truncate it.
	r.Body = http.MaxBytesReader(w, r.Body, attachment.MaxAttachmentSize+1<<20)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file part")
		return
	}
	defer file.Close()

	handle, err := h.pipeline.Stage(ctx, header.Filename, header.Size, file)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	// The blob write runs in the background but the part reader dies with
	// this request, so wait for the terminal state before responding.
	if err := handle.Wait(ctx); err != nil {
		writeServiceError(w, err)
		return
	}

	info := handle.Info()
	h.logger.Info("attachment uploaded",
		zap.String("attachment_id", handle.ID),
		zap.String("name", handle.Name),
		zap.Int64("size", info.Size),
		zap.String("content_type", info.ContentType),
		zap.String("user_id", userID),
	)

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":           handle.ID,
		"name":         handle.Name,
		"size":         info.Size,
		"content_type": info.ContentType,
		"url":          handle.URL(),
	})
}

// Download handles GET /api/v1/attachments/:id
func (h *AttachmentHandler) Download(w http.ResponseWriter, r *http.Request) {
	attachmentID := chi.URLParam(r, "id")

	if err := middleware.ValidateAttachmentID(attachmentID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rc, info, err := h.pipeline.Open(attachmentID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", info.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	w.Header().Set("Content-Disposition", `inline; filename="`+info.Name+`"`)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("attachment download interrupted",
			zap.String("attachment_id", attachmentID), zap.Error(err))
	}
}
