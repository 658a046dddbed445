package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pichehq/workspace-messaging/internal/attachment"
	"github.com/pichehq/workspace-messaging/internal/model"
	"github.com/pichehq/workspace-messaging/internal/store"
	"github.com/pichehq/workspace-messaging/internal/stream"
	"github.com/pichehq/workspace-messaging/pkg/logger"
	"github.com/pichehq/workspace-messaging/pkg/metrics"
)

// MessageService handles the send path: content construction, the
// attachment gate, reply snapshots, append and live delivery.
type MessageService struct {
	msgs     *store.MessageLog
	convs    *store.ConversationStore
	contacts *store.ContactStore
	pipeline *attachment.Pipeline
	hub      *stream.Hub
	events   EventPublisher
	logger   *logger.Logger
}

// NewMessageService creates a message service.
func NewMessageService(
	msgs *store.MessageLog,
	convs *store.ConversationStore,
	contacts *store.ContactStore,
	pipeline *attachment.Pipeline,
	hub *stream.Hub,
	events EventPublisher,
	log *logger.Logger,
) *MessageService {
	if events == nil {
		events = NopPublisher{}
	}
	return &MessageService{
		msgs:     msgs,
		convs:    convs,
		contacts: contacts,
		pipeline: pipeline,
		hub:      hub,
		events:   events,
		logger:   log,
	}
}

// Send appends the messages described by req: a text message, an attachment
// message, or — for multiple attachments — one message per attachment with
// the text riding as caption on the first. All referenced attachments must
// have finished uploading, otherwise nothing is appended and the caller gets
// ErrAttachmentNotReady to retry.
func (s *MessageService) Send(ctx context.Context, callerID, conversationID string, req model.SendMessageRequest) ([]model.Message, error) {
	conv, err := s.convs.GetByID(conversationID)
	if err != nil {
		return nil, err
	}
	if !isParticipant(conv, callerID) {
		return nil, model.ErrConversationNotFound
	}

	text := strings.TrimSpace(req.Text)
	if text == "" && len(req.AttachmentIDs) == 0 {
		return nil, model.ErrEmptyMessage
	}

	// The gate: every staged attachment must be uploaded before any
	// message is constructed.
	handles, err := s.pipeline.Ready(req.AttachmentIDs)
	if err != nil {
		return nil, err
	}

	senderName := s.senderName(callerID)

	var reply *model.Reply
	if req.ReplyTo != "" {
		original, err := s.msgs.Get(req.ReplyTo)
		if err != nil {
			return nil, err
		}
		snap := SnapshotReply(original, s.senderName(original.SenderID))
		reply = &snap
	}

	drafts := buildDrafts(conversationID, callerID, senderName, text, handles, reply)

	sent := make([]model.Message, 0, len(drafts))
	for _, draft := range drafts {
		msg, err := s.deliver(ctx, conv, draft)
		if err != nil {
			return sent, err
		}
		sent = append(sent, msg)
	}
	for _, h := range handles {
		s.pipeline.Release(h.ID)
	}
	return sent, nil
}

// Recent returns the bounded history window ascending by createdAt.
func (s *MessageService) Recent(ctx context.Context, callerID, conversationID string, limit int) (model.ListMessagesResponse, error) {
	conv, err := s.convs.GetByID(conversationID)
	if err != nil {
		return model.ListMessagesResponse{}, err
	}
	if !isParticipant(conv, callerID) {
		return model.ListMessagesResponse{}, model.ErrConversationNotFound
	}

	msgs, err := s.msgs.Recent(conversationID, limit)
	if err != nil {
		return model.ListMessagesResponse{}, err
	}
	return model.ListMessagesResponse{
		Messages: msgs,
		HasMore:  len(msgs) == store.DefaultHistoryLimit,
	}, nil
}

// Subscribe opens a live message feed for a conversation the caller
// participates in.
func (s *MessageService) Subscribe(ctx context.Context, callerID, conversationID string, limit int) (*stream.MessageSubscription, error) {
	conv, err := s.convs.GetByID(conversationID)
	if err != nil {
		return nil, err
	}
	if !isParticipant(conv, callerID) {
		return nil, model.ErrConversationNotFound
	}
	return s.hub.SubscribeMessages(conversationID, limit)
}

// deliver appends one message, then performs the dependent writes: the
// best-effort summary update, live fan-out and relay publication. Only an
// append failure propagates; the summary is advisory.
func (s *MessageService) deliver(ctx context.Context, conv model.Conversation, draft model.Message) (model.Message, error) {
	msg, err := s.msgs.Append(ctx, draft)
	if err != nil {
		return model.Message{}, err
	}

	if err := s.convs.UpdateLastMessage(conv.ID, msg.Summary()); err != nil {
		metrics.SummaryUpdateFailures.Inc()
		s.logger.Warn("failed to update last-message summary",
			zap.String("conversation_id", conv.ID),
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
	}

	s.hub.PublishMessage(msg)
	s.hub.NotifyConversations(conv.Participants)

	e := &model.Event{
		ID:             uuid.Must(uuid.NewV7()).String(),
		Type:           model.EventMessageAppended,
		ConversationID: conv.ID,
		Message:        &msg,
		Participants:   conv.Participants,
		CreatedAt:      msg.CreatedAt,
	}
	if err := s.events.Publish(ctx, e); err != nil {
		s.logger.Warn("failed to publish message event",
			zap.String("message_id", msg.ID), zap.Error(err))
	}

	return msg, nil
}

func (s *MessageService) senderName(id string) string {
	contact, err := s.contacts.Get(id)
	if err != nil {
		if !errors.Is(err, model.ErrContactNotFound) {
			s.logger.Warn("failed to resolve sender profile",
				zap.String("sender_id", id), zap.Error(err))
		}
		return ""
	}
	return contact.Name()
}

// buildDrafts turns the request parts into concrete messages. Content kind
// is resolved here, at construction time: one tagged variant per message.
func buildDrafts(conversationID, senderID, senderName, text string, handles []*attachment.Handle, reply *model.Reply) []model.Message {
	base := model.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		SenderName:     senderName,
	}

	if len(handles) == 0 {
		msg := base
		msg.Kind = model.KindText
		msg.Text = text
		msg.Reply = reply
		return []model.Message{msg}
	}

	drafts := make([]model.Message, 0, len(handles))
	for i, h := range handles {
		msg := base
		if h.IsImage() {
			msg.Kind = model.KindImage
			msg.ImageURL = h.URL()
		} else {
			msg.Kind = model.KindFile
			msg.FileURL = h.URL()
			msg.FileName = h.Name
		}
		if i == 0 {
			msg.Text = text
			msg.Reply = reply
		}
		drafts = append(drafts, msg)
	}
	return drafts
}
