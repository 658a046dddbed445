// Package store persists conversations, messages and contacts in BadgerDB.
//
// Key layout:
//
//	conv:key:<participantKey>        -> conversation id (uniqueness constraint)
//	conv:id:<id>                     -> conversation JSON
//	conv:member:<identity>:<id>      -> membership marker
//	msg:<convID>:<seq>:<msgID>       -> message JSON (seq = 16-hex UnixNano)
//	msgid:<msgID>                    -> message row key
//	user:<id>                        -> contact JSON
package store

import (
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// Open opens the Badger database at dir with conflict detection enabled,
// which the get-or-create path relies on.
func Open(dir string) (*badger.DB, error) {
	opts := badger.DefaultOptions(dir).
		WithLogger(nil).
		WithDetectConflicts(true)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger at %s: %w", dir, err)
	}
	return db, nil
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return txn.Set(key, data)
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(data []byte) error {
		return json.Unmarshal(data, v)
	})
}
