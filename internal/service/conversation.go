// Package service provides the business logic of the messaging core.
package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pichehq/workspace-messaging/internal/model"
	"github.com/pichehq/workspace-messaging/internal/store"
	"github.com/pichehq/workspace-messaging/internal/stream"
	"github.com/pichehq/workspace-messaging/pkg/logger"
)

// EventPublisher propagates change events to other instances. Nil-safe via
// NopPublisher when the relay is disabled.
type EventPublisher interface {
	Publish(ctx context.Context, e *model.Event) error
}

// NopPublisher discards events; used when no relay is configured.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(context.Context, *model.Event) error { return nil }

// ConversationService handles conversation operations.
type ConversationService struct {
	convs    *store.ConversationStore
	contacts *store.ContactStore
	hub      *stream.Hub
	events   EventPublisher
	logger   *logger.Logger
}

// NewConversationService creates a conversation service.
func NewConversationService(
	convs *store.ConversationStore,
	contacts *store.ContactStore,
	hub *stream.Hub,
	events EventPublisher,
	log *logger.Logger,
) *ConversationService {
	if events == nil {
		events = NopPublisher{}
	}
	return &ConversationService{
		convs:    convs,
		contacts: contacts,
		hub:      hub,
		events:   events,
		logger:   log,
	}
}

// Ensure resolves or creates the conversation for a participant set. The
// caller must be one of the participants; it is added if absent so a client
// can pass just the peers.
func (s *ConversationService) Ensure(ctx context.Context, callerID string, req model.EnsureConversationRequest) (model.EnsureConversationResponse, error) {
	req.Participants = append(req.Participants, callerID)

	conv, created, err := s.convs.Ensure(ctx, req)
	if err != nil {
		return model.EnsureConversationResponse{}, err
	}

	if created {
		s.logger.Info("conversation created",
			zap.String("conversation_id", conv.ID),
			zap.String("participant_key", conv.ParticipantKey),
			zap.String("type", string(conv.Type)),
		)
		s.hub.NotifyConversations(conv.Participants)
		s.publishConversationEvent(ctx, conv)
	}

	return model.EnsureConversationResponse{Conversation: conv, Created: created}, nil
}

// Get fetches a conversation the caller participates in.
func (s *ConversationService) Get(ctx context.Context, callerID, conversationID string) (model.Conversation, error) {
	conv, err := s.convs.GetByID(conversationID)
	if err != nil {
		return model.Conversation{}, err
	}
	if !isParticipant(conv, callerID) {
		return model.Conversation{}, model.ErrConversationNotFound
	}
	return conv, nil
}

// List returns every conversation containing the caller. Ordering is the
// caller's responsibility.
func (s *ConversationService) List(ctx context.Context, callerID string) (model.ListConversationsResponse, error) {
	convs, err := s.convs.ListForParticipant(callerID)
	if err != nil {
		return model.ListConversationsResponse{}, err
	}
	return model.ListConversationsResponse{Conversations: convs, Total: len(convs)}, nil
}

// Subscribe opens a live conversation-list feed for the caller.
func (s *ConversationService) Subscribe(callerID string) (*stream.ConversationSubscription, error) {
	return s.hub.SubscribeConversations(callerID)
}

// UpsertContact creates or refreshes the caller's profile. On first sight
// the saved-messages thread is ensured as well, mirroring first sign-in.
func (s *ConversationService) UpsertContact(ctx context.Context, callerID string, req model.UpsertContactRequest) (model.Contact, error) {
	contact, created, err := s.contacts.Upsert(ctx, callerID, req)
	if err != nil {
		return model.Contact{}, err
	}

	if created {
		if _, _, err := s.convs.EnsureSaved(ctx, contact); err != nil {
			// The profile row exists; the saved thread will be ensured on
			// the next upsert.
			s.logger.Warn("failed to ensure saved-messages thread",
				zap.String("contact_id", callerID), zap.Error(err))
		} else {
			s.hub.NotifyConversations([]string{callerID})
		}
	}

	s.publishContactEvent(ctx, contact)
	return contact, nil
}

// ListContacts returns every profile except the caller's.
func (s *ConversationService) ListContacts(ctx context.Context, callerID string) (model.ListContactsResponse, error) {
	contacts, err := s.contacts.List(callerID)
	if err != nil {
		return model.ListContactsResponse{}, err
	}
	return model.ListContactsResponse{Contacts: contacts, Total: len(contacts)}, nil
}

func (s *ConversationService) publishConversationEvent(ctx context.Context, conv model.Conversation) {
	e := &model.Event{
		ID:             uuid.Must(uuid.NewV7()).String(),
		Type:           model.EventConversationUpdated,
		ConversationID: conv.ID,
		Participants:   conv.Participants,
		CreatedAt:      conv.UpdatedAt,
	}
	if err := s.events.Publish(ctx, e); err != nil {
		s.logger.Warn("failed to publish conversation event",
			zap.String("conversation_id", conv.ID), zap.Error(err))
	}
}

func (s *ConversationService) publishContactEvent(ctx context.Context, contact model.Contact) {
	e := &model.Event{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Type:      model.EventContactUpdated,
		ContactID: contact.ID,
		CreatedAt: contact.UpdatedAt,
	}
	if err := s.events.Publish(ctx, e); err != nil {
		s.logger.Warn("failed to publish contact event",
			zap.String("contact_id", contact.ID), zap.Error(err))
	}
}

func isParticipant(conv model.Conversation, id string) bool {
	for _, p := range conv.Participants {
		if p == id {
			return true
		}
	}
	return false
}
