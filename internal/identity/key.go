// Package identity canonicalizes participant sets and assigns default
// avatar colors.
package identity

import (
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/pichehq/workspace-messaging/internal/model"
)

// KeySeparator joins canonicalized participant ids. Identities are opaque
// alphanumeric tokens, so the separator cannot occur inside one.
const KeySeparator = "_"

// savedKeyPrefix namespaces single-participant saved-messages threads so they
// can never collide with a direct or group key.
const savedKeyPrefix = "saved:"

// Canonicalize derives the stable lookup key for a participant set: trim,
// deduplicate, sort lexicographically, join. The result depends only on set
// membership, never on insertion order or duplicates. Fewer than two distinct
// identities is rejected.
func Canonicalize(ids []string) (string, error) {
	distinct := canonicalSet(ids)
	if len(distinct) < 2 {
		return "", model.ErrInvalidParticipantSet
	}
	return strings.Join(distinct, KeySeparator), nil
}

// SavedKey returns the participant key of the saved-messages thread for one
// identity.
func SavedKey(id string) string {
	return savedKeyPrefix + id
}

// CanonicalParticipants returns the sorted, deduplicated participant list
// stored on the conversation row.
func CanonicalParticipants(ids []string) []string {
	return canonicalSet(ids)
}

func canonicalSet(ids []string) []string {
	trimmed := lo.FilterMap(ids, func(id string, _ int) (string, bool) {
		id = strings.TrimSpace(id)
		return id, id != ""
	})
	distinct := lo.Uniq(trimmed)
	sort.Strings(distinct)
	return distinct
}
