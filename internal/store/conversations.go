package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pichehq/workspace-messaging/internal/identity"
	"github.com/pichehq/workspace-messaging/internal/model"
	"github.com/pichehq/workspace-messaging/pkg/logger"
	"github.com/pichehq/workspace-messaging/pkg/metrics"
)

const (
	convKeyPrefix    = "conv:key:"
	convIDPrefix     = "conv:id:"
	convMemberPrefix = "conv:member:"
)

// ConversationStore owns conversation rows and the participant-key
// uniqueness constraint.
type ConversationStore struct {
	db  *badger.DB
	log *logger.Logger
}

// NewConversationStore creates a conversation store.
func NewConversationStore(db *badger.DB, log *logger.Logger) *ConversationStore {
	return &ConversationStore{db: db, log: log}
}

func keyIndexKey(participantKey string) []byte {
	return []byte(convKeyPrefix + participantKey)
}

func idKey(id string) []byte {
	return []byte(convIDPrefix + id)
}

func memberKey(identityID, convID string) []byte {
	return []byte(convMemberPrefix + identityID + ":" + convID)
}

// Ensure resolves the conversation for a participant set, creating it if it
// does not exist. Idempotent: set-equal participant lists always resolve to
// the same row. Display hints apply only on creation (first-writer-wins);
// an existing row is returned unchanged.
//
// Two concurrent calls for the same new set may both observe "not found" and
// both attempt the create. Badger's transaction conflict detection makes the
// uniqueness constraint authoritative: the losing writer gets ErrConflict and
// retries the lookup once, returning the winner's row.
func (s *ConversationStore) Ensure(ctx context.Context, req model.EnsureConversationRequest) (model.Conversation, bool, error) {
	key, err := identity.Canonicalize(req.Participants)
	if err != nil {
		return model.Conversation{}, false, err
	}
	participants := identity.CanonicalParticipants(req.Participants)

	typ := model.ConversationDirect
	if len(participants) > 2 {
		typ = model.ConversationGroup
	}

	conv, created, err := s.ensure(key, participants, typ, req)
	if errors.Is(err, badger.ErrConflict) {
		metrics.ConversationEnsureConflicts.Inc()
		s.log.Debug("ensure lost create race, re-reading", zap.String("participant_key", key))
		conv, err = s.GetByKey(key)
		if err != nil {
			return model.Conversation{}, false, fmt.Errorf("lookup after create conflict: %w", err)
		}
		return conv, false, nil
	}
	if err != nil {
		return model.Conversation{}, false, err
	}
	if created {
		metrics.ConversationsTotal.WithLabelValues(string(typ)).Inc()
	}
	return conv, created, nil
}

// EnsureSaved resolves the single-participant saved-messages thread for an
// identity, creating it on first call. It deliberately bypasses the two-
// participant minimum: the saved key lives in its own namespace.
func (s *ConversationStore) EnsureSaved(ctx context.Context, contact model.Contact) (model.Conversation, bool, error) {
	key := identity.SavedKey(contact.ID)
	req := model.EnsureConversationRequest{
		Title:       "Saved Messages",
		Subtitle:    contact.Name(),
		AvatarURL:   contact.AvatarURL,
		AvatarColor: contact.AvatarColor,
	}

	conv, created, err := s.ensure(key, []string{contact.ID}, model.ConversationSaved, req)
	if errors.Is(err, badger.ErrConflict) {
		conv, err = s.GetByKey(key)
		if err != nil {
			return model.Conversation{}, false, fmt.Errorf("lookup after create conflict: %w", err)
		}
		return conv, false, nil
	}
	if err != nil {
		return model.Conversation{}, false, err
	}
	if created {
		metrics.ConversationsTotal.WithLabelValues(string(model.ConversationSaved)).Inc()
	}
	return conv, created, nil
}

func (s *ConversationStore) ensure(key string, participants []string, typ model.ConversationType, req model.EnsureConversationRequest) (model.Conversation, bool, error) {
	var conv model.Conversation
	var created bool

	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(keyIndexKey(key))
		if err == nil {
			var id string
			if verr := item.Value(func(v []byte) error { id = string(v); return nil }); verr != nil {
				return verr
			}
			created = false
			return getJSON(txn, idKey(id), &conv)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		now := time.Now().UTC()
		color := req.AvatarColor
		if color == "" {
			color = identity.ColorFor(key)
		}
		conv = model.Conversation{
			ID:             uuid.Must(uuid.NewV7()).String(),
			Type:           typ,
			Participants:   participants,
			ParticipantKey: key,
			Title:          req.Title,
			Subtitle:       req.Subtitle,
			AvatarURL:      req.AvatarURL,
			AvatarColor:    color,
			LastMessage:    nil,
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		if err := txn.Set(keyIndexKey(key), []byte(conv.ID)); err != nil {
			return err
		}
		if err := setJSON(txn, idKey(conv.ID), &conv); err != nil {
			return err
		}
		for _, p := range participants {
			if err := txn.Set(memberKey(p, conv.ID), nil); err != nil {
				return err
			}
		}
		created = true
		return nil
	})
	if err != nil {
		return model.Conversation{}, false, err
	}
	return conv, created, nil
}

// GetByID fetches a conversation row.
func (s *ConversationStore) GetByID(id string) (model.Conversation, error) {
	var conv model.Conversation
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, idKey(id), &conv)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return model.Conversation{}, model.ErrConversationNotFound
	}
	if err != nil {
		return model.Conversation{}, err
	}
	return conv, nil
}

// GetByKey fetches a conversation through the participant-key index.
func (s *ConversationStore) GetByKey(participantKey string) (model.Conversation, error) {
	var conv model.Conversation
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyIndexKey(participantKey))
		if err != nil {
			return err
		}
		var id string
		if err := item.Value(func(v []byte) error { id = string(v); return nil }); err != nil {
			return err
		}
		return getJSON(txn, idKey(id), &conv)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return model.Conversation{}, model.ErrConversationNotFound
	}
	if err != nil {
		return model.Conversation{}, err
	}
	return conv, nil
}

// ListForParticipant returns every conversation containing the identity.
// Ordering is the caller's concern.
func (s *ConversationStore) ListForParticipant(identityID string) ([]model.Conversation, error) {
	var convs []model.Conversation
	prefix := []byte(convMemberPrefix + identityID + ":")

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			convID := string(it.Item().Key()[len(prefix):])
			var conv model.Conversation
			if err := getJSON(txn, idKey(convID), &conv); err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					continue
				}
				return err
			}
			convs = append(convs, conv)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations for %s: %w", identityID, err)
	}
	return convs, nil
}

// UpdateLastMessage refreshes the denormalized summary and UpdatedAt. This is
// the dependent write of an append: best-effort and advisory, so callers log
// a failure instead of propagating it.
func (s *ConversationStore) UpdateLastMessage(convID string, summary *model.MessageSummary) error {
	return s.db.Update(func(txn *badger.Txn) error {
		var conv model.Conversation
		if err := getJSON(txn, idKey(convID), &conv); err != nil {
			return err
		}
		conv.LastMessage = summary
		conv.UpdatedAt = time.Now().UTC()
		return setJSON(txn, idKey(convID), &conv)
	})
}
