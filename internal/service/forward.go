package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/pichehq/workspace-messaging/internal/model"
	"github.com/pichehq/workspace-messaging/internal/store"
	"github.com/pichehq/workspace-messaging/pkg/logger"
	"github.com/pichehq/workspace-messaging/pkg/metrics"
)

// ForwardService replicates a message into N target conversations, each as
// an independent write.
type ForwardService struct {
	messages *MessageService
	msgs     *store.MessageLog
	convs    *store.ConversationStore
	contacts *store.ContactStore
	logger   *logger.Logger
}

// NewForwardService creates a forward service.
func NewForwardService(
	messages *MessageService,
	msgs *store.MessageLog,
	convs *store.ConversationStore,
	contacts *store.ContactStore,
	log *logger.Logger,
) *ForwardService {
	return &ForwardService{
		messages: messages,
		msgs:     msgs,
		convs:    convs,
		contacts: contacts,
		logger:   log,
	}
}

// Forward fans the message out to every target. Targets run in parallel and
// independently: a failed target is reported in its result slot and never
// aborts the rest. Within one target the forwarded message and the optional
// comment keep their relative order. The operation is not atomic across
// targets; partial forwarding is an expected outcome.
func (s *ForwardService) Forward(ctx context.Context, callerID, messageID string, req model.ForwardRequest) (model.ForwardResponse, error) {
	original, err := s.msgs.Get(messageID)
	if err != nil {
		return model.ForwardResponse{}, err
	}

	originalSenderName := original.SenderName
	if contact, err := s.contacts.Get(original.SenderID); err == nil {
		originalSenderName = contact.Name()
	}

	callerName := ""
	if contact, err := s.contacts.Get(callerID); err == nil {
		callerName = contact.Name()
	}

	comment := strings.TrimSpace(req.Comment)
	results := make([]model.ForwardResult, len(req.Targets))

	var wg sync.WaitGroup
	for i, target := range req.Targets {
		wg.Add(1)
		go func(i int, target string) {
			defer wg.Done()
			results[i] = s.forwardToTarget(ctx, callerID, callerName, target, original, originalSenderName, comment)
		}(i, target)
	}
	wg.Wait()

	for _, r := range results {
		outcome := "ok"
		if !r.OK {
			outcome = "failed"
		}
		metrics.ForwardTargetsTotal.WithLabelValues(outcome).Inc()
	}
	return model.ForwardResponse{Results: results}, nil
}

func (s *ForwardService) forwardToTarget(ctx context.Context, callerID, callerName, target string, original model.Message, originalSenderName, comment string) model.ForwardResult {
	result := model.ForwardResult{Target: target}

	conv, err := s.resolveTarget(ctx, callerID, target)
	if err != nil {
		s.logger.Warn("forward target failed",
			zap.String("target", target), zap.Error(err))
		result.Error = err.Error()
		return result
	}
	result.ConversationID = conv.ID

	forwarded := model.Message{
		ConversationID: conv.ID,
		SenderID:       callerID,
		SenderName:     callerName,
		Kind:           original.Kind,
		Text:           original.Text,
		ImageURL:       original.ImageURL,
		FileURL:        original.FileURL,
		FileName:       original.FileName,
		ForwardedFrom: &model.ForwardedFrom{
			OriginalSenderID:   original.SenderID,
			OriginalSenderName: originalSenderName,
		},
	}

	msg, err := s.messages.deliver(ctx, conv, forwarded)
	if err != nil {
		s.logger.Warn("forward append failed",
			zap.String("target", target), zap.Error(err))
		result.Error = err.Error()
		return result
	}
	result.MessageID = msg.ID

	// The comment is its own message, after the forward, preserving the
	// original's integrity.
	if comment != "" {
		commentMsg, err := s.messages.deliver(ctx, conv, model.Message{
			ConversationID: conv.ID,
			SenderID:       callerID,
			SenderName:     callerName,
			Kind:           model.KindText,
			Text:           comment,
		})
		if err != nil {
			s.logger.Warn("forward comment append failed",
				zap.String("target", target), zap.Error(err))
			result.Error = err.Error()
			return result
		}
		result.CommentMessageID = commentMsg.ID
	}

	result.OK = true
	return result
}

// resolveTarget maps a target to a conversation: an existing conversation
// id the caller participates in, or a contact id whose direct thread with
// the caller is resolved or created.
func (s *ForwardService) resolveTarget(ctx context.Context, callerID, target string) (model.Conversation, error) {
	conv, err := s.convs.GetByID(target)
	if err == nil {
		if !isParticipant(conv, callerID) {
			return model.Conversation{}, model.ErrConversationNotFound
		}
		return conv, nil
	}
	if !errors.Is(err, model.ErrConversationNotFound) {
		return model.Conversation{}, err
	}

	contact, err := s.contacts.Get(target)
	if err != nil {
		return model.Conversation{}, err
	}

	// Forwarding to yourself lands in the saved-messages thread.
	if target == callerID {
		conv, _, err = s.convs.EnsureSaved(ctx, contact)
		return conv, err
	}

	conv, _, err = s.convs.Ensure(ctx, model.EnsureConversationRequest{
		Participants: []string{callerID, target},
	})
	return conv, err
}
