package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pichehq/workspace-messaging/internal/attachment"
	"github.com/pichehq/workspace-messaging/internal/middleware"
	"github.com/pichehq/workspace-messaging/internal/model"
	"github.com/pichehq/workspace-messaging/internal/service"
	"github.com/pichehq/workspace-messaging/internal/store"
	"github.com/pichehq/workspace-messaging/internal/stream"
	"github.com/pichehq/workspace-messaging/pkg/logger"
)

// asUser injects the authenticated identity directly; JWT verification has
// its own tests in the middleware package.
func asUser(userID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), middleware.UserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func newTestRouter(t *testing.T, userID string) *chi.Mux {
	t.Helper()
	db, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := logger.NewNop()
	convStore := store.NewConversationStore(db, log)
	msgLog := store.NewMessageLog(db, log)
	contactStore := store.NewContactStore(db, log)
	hub := stream.NewHub(msgLog, convStore, log)

	blobs, err := attachment.NewDiskStore(t.TempDir())
	require.NoError(t, err)
	pipeline := attachment.NewPipeline(blobs, "http://localhost:8080", log)

	convSvc := service.NewConversationService(convStore, contactStore, hub, nil, log)
	msgSvc := service.NewMessageService(msgLog, convStore, contactStore, pipeline, hub, nil, log)
	fwdSvc := service.NewForwardService(msgSvc, msgLog, convStore, contactStore, log)

	conversationHandler := NewConversationHandler(convSvc, log)
	messageHandler := NewMessageHandler(msgSvc, fwdSvc, log)
	attachmentHandler := NewAttachmentHandler(pipeline, log)
	contactHandler := NewContactHandler(convSvc, log)

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(asUser(userID))
		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", conversationHandler.Ensure)
			r.Get("/", conversationHandler.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", conversationHandler.Get)
				r.Get("/messages", messageHandler.List)
				r.Post("/messages", messageHandler.Send)
			})
		})
		r.Post("/messages/{id}/forward", messageHandler.Forward)
		r.Route("/attachments", func(r chi.Router) {
			r.Post("/", attachmentHandler.Upload)
			r.Get("/{id}", attachmentHandler.Download)
		})
		r.Route("/contacts", func(r chi.Router) {
			r.Get("/", contactHandler.List)
			r.Put("/me", contactHandler.UpsertMe)
		})
	})
	return r
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestConversations_EnsureRoundtrip(t *testing.T) {
	req := require.New(t)
	router := newTestRouter(t, "uidA")

	rec := doJSON(t, router, http.MethodPost, "/api/v1/conversations", model.EnsureConversationRequest{
		Participants: []string{"uidB"},
	})
	req.Equal(http.StatusCreated, rec.Code)

	var created model.EnsureConversationResponse
	req.NoError(json.NewDecoder(rec.Body).Decode(&created))
	req.True(created.Created)
	req.Equal("uidA_uidB", created.Conversation.ParticipantKey)

	// Second ensure resolves, 200 instead of 201.
	rec = doJSON(t, router, http.MethodPost, "/api/v1/conversations", model.EnsureConversationRequest{
		Participants: []string{"uidB", "uidA"},
	})
	req.Equal(http.StatusOK, rec.Code)

	var resolved model.EnsureConversationResponse
	req.NoError(json.NewDecoder(rec.Body).Decode(&resolved))
	req.False(resolved.Created)
	req.Equal(created.Conversation.ID, resolved.Conversation.ID)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/conversations/"+created.Conversation.ID, nil)
	req.Equal(http.StatusOK, rec.Code)
}

func TestConversations_ErrorStatuses(t *testing.T) {
	req := require.New(t)
	router := newTestRouter(t, "uidA")

	// Fewer than two distinct participants.
	rec := doJSON(t, router, http.MethodPost, "/api/v1/conversations", model.EnsureConversationRequest{
		Participants: []string{"uidA"},
	})
	req.Equal(http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/conversations/not-a-uuid", nil)
	req.Equal(http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/conversations/"+uuid.NewString(), nil)
	req.Equal(http.StatusNotFound, rec.Code)
}

func TestMessages_SendAndList(t *testing.T) {
	req := require.New(t)
	router := newTestRouter(t, "uidA")

	rec := doJSON(t, router, http.MethodPost, "/api/v1/conversations", model.EnsureConversationRequest{
		Participants: []string{"uidB"},
	})
	req.Equal(http.StatusCreated, rec.Code)
	var created model.EnsureConversationResponse
	req.NoError(json.NewDecoder(rec.Body).Decode(&created))
	convID := created.Conversation.ID

	rec = doJSON(t, router, http.MethodPost, "/api/v1/conversations/"+convID+"/messages", model.SendMessageRequest{
		Text: "hello",
	})
	req.Equal(http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/conversations/"+convID+"/messages", model.SendMessageRequest{
		Text: "  ",
	})
	req.Equal(http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/conversations/"+convID+"/messages", nil)
	req.Equal(http.StatusOK, rec.Code)

	var list model.ListMessagesResponse
	req.NoError(json.NewDecoder(rec.Body).Decode(&list))
	req.Len(list.Messages, 1)
	req.Equal("hello", list.Messages[0].Text)
}

func TestForward_HandlerStatuses(t *testing.T) {
	req := require.New(t)
	router := newTestRouter(t, "uidA")

	rec := doJSON(t, router, http.MethodPost, "/api/v1/messages/"+uuid.NewString()+"/forward", model.ForwardRequest{
		Targets: []string{uuid.NewString()},
	})
	req.Equal(http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/messages/"+uuid.NewString()+"/forward", model.ForwardRequest{})
	req.Equal(http.StatusBadRequest, rec.Code)
}

func TestAttachments_UploadSendDownload(t *testing.T) {
	req := require.New(t)
	router := newTestRouter(t, "uidA")

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "notes.txt")
	req.NoError(err)
	_, err = part.Write([]byte("some plain text content"))
	req.NoError(err)
	req.NoError(mw.Close())

	httpReq := httptest.NewRequest(http.MethodPost, "/api/v1/attachments", &body)
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httpReq)
	req.Equal(http.StatusCreated, rec.Code)

	var uploaded struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		URL  string `json:"url"`
	}
	req.NoError(json.NewDecoder(rec.Body).Decode(&uploaded))
	req.Equal("notes.txt", uploaded.Name)
	req.NotEmpty(uploaded.URL)

	// Reference the upload from a message.
	convRec := doJSON(t, router, http.MethodPost, "/api/v1/conversations", model.EnsureConversationRequest{
		Participants: []string{"uidB"},
	})
	var created model.EnsureConversationResponse
	req.NoError(json.NewDecoder(convRec.Body).Decode(&created))

	sendRec := doJSON(t, router, http.MethodPost, "/api/v1/conversations/"+created.Conversation.ID+"/messages", model.SendMessageRequest{
		AttachmentIDs: []string{uploaded.ID},
	})
	req.Equal(http.StatusCreated, sendRec.Code)

	var sent struct {
		Messages []model.Message `json:"messages"`
	}
	req.NoError(json.NewDecoder(sendRec.Body).Decode(&sent))
	req.Len(sent.Messages, 1)
	req.Equal(model.KindFile, sent.Messages[0].Kind)
	req.Equal("notes.txt", sent.Messages[0].FileName)

	// Download roundtrip.
	dlRec := doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/v1/attachments/%s", uploaded.ID), nil)
	req.Equal(http.StatusOK, dlRec.Code)
	data, err := io.ReadAll(dlRec.Body)
	req.NoError(err)
	req.Equal("some plain text content", string(data))
}

func TestContacts_UpsertAndList(t *testing.T) {
	req := require.New(t)
	router := newTestRouter(t, "uidA")

	rec := doJSON(t, router, http.MethodPut, "/api/v1/contacts/me", model.UpsertContactRequest{
		DisplayName: "Alice",
		Email:       "alice@example.com",
	})
	req.Equal(http.StatusOK, rec.Code)

	var me model.Contact
	req.NoError(json.NewDecoder(rec.Body).Decode(&me))
	req.Equal("uidA", me.ID)
	req.NotEmpty(me.AvatarColor)

	// Own profile is excluded from the listing.
	rec = doJSON(t, router, http.MethodGet, "/api/v1/contacts", nil)
	req.Equal(http.StatusOK, rec.Code)

	var list model.ListContactsResponse
	req.NoError(json.NewDecoder(rec.Body).Decode(&list))
	req.Zero(list.Total)
}
