// Package stream fans out appended messages and conversation changes to
// live subscribers.
//
// Subscriptions are explicit handle objects; Cancel is the only release
// mechanism, it is idempotent, and no delivery happens after it returns.
// Publishing never blocks an appender: each subscriber has a bounded buffer
// and a slow message subscriber loses events (counted and logged) rather
// than stalling the write path. Conversation-list pushes coalesce instead,
// since every push carries the full current list.
package stream

import (
	"sync"

	"go.uber.org/zap"

	"github.com/pichehq/workspace-messaging/internal/model"
	"github.com/pichehq/workspace-messaging/pkg/logger"
	"github.com/pichehq/workspace-messaging/pkg/metrics"
)

// messageBuffer bounds the per-subscriber live feed.
const messageBuffer = 256

// MessageSource supplies the initial history snapshot.
type MessageSource interface {
	Recent(convID string, limit int) ([]model.Message, error)
}

// ConversationSource supplies the full conversation list for an identity.
type ConversationSource interface {
	ListForParticipant(identityID string) ([]model.Conversation, error)
}

// Hub routes store writes to live subscribers.
type Hub struct {
	messages      MessageSource
	conversations ConversationSource
	log           *logger.Logger

	mu       sync.RWMutex
	msgSubs  map[string]map[*MessageSubscription]struct{}
	convSubs map[string]map[*ConversationSubscription]struct{}
}

// NewHub creates a hub over the given sources.
func NewHub(messages MessageSource, conversations ConversationSource, log *logger.Logger) *Hub {
	return &Hub{
		messages:      messages,
		conversations: conversations,
		log:           log,
		msgSubs:       make(map[string]map[*MessageSubscription]struct{}),
		convSubs:      make(map[string]map[*ConversationSubscription]struct{}),
	}
}

// SubscribeMessages returns a live feed for one conversation: an initial
// snapshot of the most recent limit messages, then incremental appends.
// Registration and the snapshot read happen under the publish lock, so no
// append falls between them; an append racing the subscribe may appear in
// both, which the handle deduplicates by message id.
func (h *Hub) SubscribeMessages(convID string, limit int) (*MessageSubscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	snapshot, err := h.messages.Recent(convID, limit)
	if err != nil {
		return nil, err
	}

	sub := &MessageSubscription{
		hub:      h,
		convID:   convID,
		snapshot: snapshot,
		seen:     make(map[string]struct{}, len(snapshot)),
		ch:       make(chan model.Message, messageBuffer),
		done:     make(chan struct{}),
	}
	for _, m := range snapshot {
		sub.seen[m.ID] = struct{}{}
	}

	if h.msgSubs[convID] == nil {
		h.msgSubs[convID] = make(map[*MessageSubscription]struct{})
	}
	h.msgSubs[convID][sub] = struct{}{}
	metrics.SubscribersActive.WithLabelValues("messages").Inc()
	return sub, nil
}

// SubscribeConversations returns a live feed of the full conversation list
// for one identity, pushed whenever any member conversation changes. The
// initial list is delivered as the first push.
func (h *Hub) SubscribeConversations(identityID string) (*ConversationSubscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	list, err := h.conversations.ListForParticipant(identityID)
	if err != nil {
		return nil, err
	}

	sub := &ConversationSubscription{
		hub:        h,
		identityID: identityID,
		ch:         make(chan []model.Conversation, 1),
		done:       make(chan struct{}),
	}
	sub.push(list)

	if h.convSubs[identityID] == nil {
		h.convSubs[identityID] = make(map[*ConversationSubscription]struct{})
	}
	h.convSubs[identityID][sub] = struct{}{}
	metrics.SubscribersActive.WithLabelValues("conversations").Inc()
	return sub, nil
}

// PublishMessage delivers an appended message to the conversation's live
// subscribers. Never blocks: a full subscriber buffer drops the event.
func (h *Hub) PublishMessage(msg model.Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.msgSubs[msg.ConversationID] {
		select {
		case sub.ch <- msg:
		default:
			metrics.SubscriberDrops.WithLabelValues("messages").Inc()
			h.log.Warn("dropping message for slow subscriber",
				zap.String("conversation_id", msg.ConversationID),
				zap.String("message_id", msg.ID),
			)
		}
	}
}

// NotifyConversations recomputes and pushes the conversation list of every
// affected participant. Pushes coalesce: only the latest list matters.
func (h *Hub) NotifyConversations(participants []string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, p := range participants {
		subs := h.convSubs[p]
		if len(subs) == 0 {
			continue
		}
		list, err := h.conversations.ListForParticipant(p)
		if err != nil {
			h.log.Warn("failed to compute conversation list for push",
				zap.String("participant", p), zap.Error(err))
			continue
		}
		for sub := range subs {
			sub.push(list)
		}
	}
}

func (h *Hub) removeMessageSub(sub *MessageSubscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs := h.msgSubs[sub.convID]; subs != nil {
		if _, ok := subs[sub]; ok {
			delete(subs, sub)
			metrics.SubscribersActive.WithLabelValues("messages").Dec()
		}
		if len(subs) == 0 {
			delete(h.msgSubs, sub.convID)
		}
	}
}

func (h *Hub) removeConvSub(sub *ConversationSubscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs := h.convSubs[sub.identityID]; subs != nil {
		if _, ok := subs[sub]; ok {
			delete(subs, sub)
			metrics.SubscribersActive.WithLabelValues("conversations").Dec()
		}
		if len(subs) == 0 {
			delete(h.convSubs, sub.identityID)
		}
	}
}
