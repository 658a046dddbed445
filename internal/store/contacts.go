package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/pichehq/workspace-messaging/internal/identity"
	"github.com/pichehq/workspace-messaging/internal/model"
	"github.com/pichehq/workspace-messaging/pkg/logger"
)

const contactPrefix = "user:"

// ContactStore holds profile rows referenced by the messaging core. Profile
// data is owned upstream; this store only mirrors it and assigns the default
// avatar color once, on first sight of an identity.
type ContactStore struct {
	db  *badger.DB
	log *logger.Logger
}

// NewContactStore creates a contact store.
func NewContactStore(db *badger.DB, log *logger.Logger) *ContactStore {
	return &ContactStore{db: db, log: log}
}

func contactKey(id string) []byte {
	return []byte(contactPrefix + id)
}

// Upsert creates or refreshes a profile. Empty request fields leave the
// stored value untouched. The default avatar color is computed exactly once.
func (s *ContactStore) Upsert(ctx context.Context, id string, req model.UpsertContactRequest) (model.Contact, bool, error) {
	var contact model.Contact
	var created bool

	err := s.db.Update(func(txn *badger.Txn) error {
		err := getJSON(txn, contactKey(id), &contact)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			now := time.Now().UTC()
			contact = model.Contact{
				ID:          id,
				AvatarColor: identity.ColorFor(id),
				Status:      "Online",
				CreatedAt:   now,
			}
			created = true
		case err != nil:
			return err
		}

		if req.DisplayName != "" {
			contact.DisplayName = req.DisplayName
		}
		if req.Email != "" {
			contact.Email = req.Email
		}
		if req.AvatarURL != "" {
			contact.AvatarURL = req.AvatarURL
		}
		if req.Status != "" {
			contact.Status = req.Status
		}
		contact.UpdatedAt = time.Now().UTC()

		return setJSON(txn, contactKey(id), &contact)
	})
	if err != nil {
		return model.Contact{}, false, fmt.Errorf("failed to upsert contact %s: %w", id, err)
	}
	return contact, created, nil
}

// Get fetches a profile. A row persisted without a color (e.g. written by an
// older release) gets the deterministic default backfilled on read; the
// assigner guarantees it matches what creation time would have produced.
func (s *ContactStore) Get(id string) (model.Contact, error) {
	var contact model.Contact
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, contactKey(id), &contact)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return model.Contact{}, model.ErrContactNotFound
	}
	if err != nil {
		return model.Contact{}, err
	}
	if contact.AvatarColor == "" {
		contact.AvatarColor = identity.ColorFor(id)
	}
	return contact, nil
}

// List returns all profiles except excludeID.
func (s *ContactStore) List(excludeID string) ([]model.Contact, error) {
	var contacts []model.Contact
	prefix := []byte(contactPrefix)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var contact model.Contact
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &contact)
			}); err != nil {
				return err
			}
			if contact.ID == excludeID {
				continue
			}
			if contact.AvatarColor == "" {
				contact.AvatarColor = identity.ColorFor(contact.ID)
			}
			contacts = append(contacts, contact)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	return contacts, nil
}
