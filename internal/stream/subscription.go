package stream

import (
	"sync"

	"github.com/pichehq/workspace-messaging/internal/model"
)

// MessageSubscription is the cancellable handle of a live message feed.
type MessageSubscription struct {
	hub      *Hub
	convID   string
	snapshot []model.Message

	// seen holds snapshot ids so a message racing the subscribe is not
	// delivered twice.
	seenMu sync.Mutex
	seen   map[string]struct{}

	ch     chan model.Message
	done   chan struct{}
	cancel sync.Once
}

// Snapshot returns the initial history window, ascending by createdAt.
func (s *MessageSubscription) Snapshot() []model.Message {
	return s.snapshot
}

// Next blocks for the next live message or reports cancellation. Messages
// already delivered in the snapshot are skipped. Delivery order is append
// order; a late append with an earlier createdAt is still delivered in the
// position it arrived (append-only, no reconciliation).
func (s *MessageSubscription) Next() (model.Message, bool) {
	for {
		msg, ok := <-s.ch
		if !ok {
			return model.Message{}, false
		}
		if s.dropIfSeen(msg.ID) {
			continue
		}
		return msg, true
	}
}

// Done is closed when the subscription is cancelled.
func (s *MessageSubscription) Done() <-chan struct{} {
	return s.done
}

// Cancel releases the subscription. Idempotent and immediate: when it
// returns, no further messages are delivered.
func (s *MessageSubscription) Cancel() {
	s.cancel.Do(func() {
		s.hub.removeMessageSub(s)
		close(s.done)
		close(s.ch)
	})
}

func (s *MessageSubscription) dropIfSeen(id string) bool {
	s.seenMu.Lock()
	defer s.seenMu.Unlock()
	if len(s.seen) == 0 {
		return false
	}
	if _, ok := s.seen[id]; ok {
		// Each snapshot id can only race once.
		delete(s.seen, id)
		return true
	}
	return false
}

// ConversationSubscription is the cancellable handle of a live
// conversation-list feed. Every delivery is the full current list for the
// identity; ordering within the list is the caller's concern.
type ConversationSubscription struct {
	hub        *Hub
	identityID string

	ch     chan []model.Conversation
	done   chan struct{}
	cancel sync.Once
	pushMu sync.Mutex
}

// Next blocks for the next list push or reports cancellation.
func (s *ConversationSubscription) Next() ([]model.Conversation, bool) {
	list, ok := <-s.ch
	return list, ok
}

// Done is closed when the subscription is cancelled.
func (s *ConversationSubscription) Done() <-chan struct{} {
	return s.done
}

// Cancel releases the subscription. Idempotent and immediate.
func (s *ConversationSubscription) Cancel() {
	s.cancel.Do(func() {
		s.hub.removeConvSub(s)
		close(s.done)
		close(s.ch)
	})
}

// push delivers a list, coalescing with any undelivered previous push: a
// slow reader only ever sees the newest state.
func (s *ConversationSubscription) push(list []model.Conversation) {
	s.pushMu.Lock()
	defer s.pushMu.Unlock()

	select {
	case s.ch <- list:
	default:
		select {
		case <-s.ch:
		default:
		}
		select {
		case s.ch <- list:
		default:
		}
	}
}
