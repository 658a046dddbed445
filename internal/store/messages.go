package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/pichehq/workspace-messaging/internal/model"
	"github.com/pichehq/workspace-messaging/pkg/logger"
	"github.com/pichehq/workspace-messaging/pkg/metrics"
)

const (
	msgPrefix   = "msg:"
	msgIDPrefix = "msgid:"
)

// DefaultHistoryLimit is the bounded history window delivered to new
// subscribers and list calls; it is also the hard cap.
const DefaultHistoryLimit = 100

// MessageLog is the append-only, time-ordered message log. Order within a
// conversation is assigned by the log at write time: a store timestamp that
// is strictly increasing per conversation regardless of caller clocks.
type MessageLog struct {
	db  *badger.DB
	log *logger.Logger

	mu        sync.Mutex
	lastStamp map[string]int64
}

// NewMessageLog creates a message log.
func NewMessageLog(db *badger.DB, log *logger.Logger) *MessageLog {
	return &MessageLog{
		db:        db,
		log:       log,
		lastStamp: make(map[string]int64),
	}
}

func msgKey(convID string, stamp int64, msgID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%016x:%s", msgPrefix, convID, stamp, msgID))
}

func msgIndexKey(msgID string) []byte {
	return []byte(msgIDPrefix + msgID)
}

// Append validates and persists a message, assigning its id and createdAt.
// The caller is responsible for the conversation existing and for the
// best-effort summary update that follows.
func (l *MessageLog) Append(ctx context.Context, msg model.Message) (model.Message, error) {
	if msg.ConversationID == "" {
		return model.Message{}, model.ErrConversationNotFound
	}
	if err := msg.Validate(); err != nil {
		return model.Message{}, err
	}

	if msg.ID == "" {
		msg.ID = uuid.Must(uuid.NewV7()).String()
	}
	stamp := l.nextStamp(msg.ConversationID)
	msg.CreatedAt = time.Unix(0, stamp).UTC()

	row := msgKey(msg.ConversationID, stamp, msg.ID)
	err := l.db.Update(func(txn *badger.Txn) error {
		if err := setJSON(txn, row, &msg); err != nil {
			return err
		}
		return txn.Set(msgIndexKey(msg.ID), row)
	})
	if err != nil {
		return model.Message{}, fmt.Errorf("failed to append message: %w", err)
	}

	metrics.MessagesTotal.WithLabelValues(string(msg.Kind)).Inc()
	return msg, nil
}

// nextStamp hands out a per-conversation strictly increasing UnixNano. A
// wall-clock regression or two appends in the same nanosecond clamp to
// last+1, keeping delivery order total under concurrent writers.
func (l *MessageLog) nextStamp(convID string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	last, ok := l.lastStamp[convID]
	if !ok {
		last = l.loadLastStamp(convID)
	}
	now := time.Now().UTC().UnixNano()
	if now <= last {
		now = last + 1
	}
	l.lastStamp[convID] = now
	return now
}

// loadLastStamp seeds the in-memory clock from the newest persisted row
// after a restart.
func (l *MessageLog) loadLastStamp(convID string) int64 {
	prefix := []byte(msgPrefix + convID + ":")
	var last int64

	_ = l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		// Seek past the last possible key of this conversation.
		seek := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			rest := key[len(prefix):]
			if len(rest) < 16 {
				return nil
			}
			stamp, err := strconv.ParseInt(string(rest[:16]), 16, 64)
			if err == nil {
				last = stamp
			}
			return nil
		}
		return nil
	})
	return last
}

// Recent returns the most recent limit messages ascending by createdAt.
func (l *MessageLog) Recent(convID string, limit int) ([]model.Message, error) {
	if limit <= 0 || limit > DefaultHistoryLimit {
		limit = DefaultHistoryLimit
	}
	prefix := []byte(msgPrefix + convID + ":")
	var newestFirst []model.Message

	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true

		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix) && len(newestFirst) < limit; it.Next() {
			var msg model.Message
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &msg)
			}); err != nil {
				return err
			}
			newestFirst = append(newestFirst, msg)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read recent messages: %w", err)
	}

	// Reverse into ascending order.
	for i, j := 0, len(newestFirst)-1; i < j; i, j = i+1, j-1 {
		newestFirst[i], newestFirst[j] = newestFirst[j], newestFirst[i]
	}
	return newestFirst, nil
}

// Get fetches a message by id through the secondary index.
func (l *MessageLog) Get(msgID string) (model.Message, error) {
	var msg model.Message
	err := l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(msgIndexKey(msgID))
		if err != nil {
			return err
		}
		var row []byte
		if err := item.Value(func(v []byte) error {
			row = append([]byte{}, v...)
			return nil
		}); err != nil {
			return err
		}
		return getJSON(txn, row, &msg)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return model.Message{}, model.ErrMessageNotFound
	}
	if err != nil {
		return model.Message{}, err
	}
	return msg, nil
}
