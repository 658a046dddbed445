package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pichehq/workspace-messaging/internal/identity"
	"github.com/pichehq/workspace-messaging/internal/model"
	"github.com/pichehq/workspace-messaging/pkg/logger"
)

func TestUpsert_AssignsDefaultColorOnce(t *testing.T) {
	req := require.New(t)
	store := NewContactStore(openTestDB(t), logger.NewNop())
	ctx := context.Background()

	contact, created, err := store.Upsert(ctx, "uidA", model.UpsertContactRequest{
		DisplayName: "Alice",
		Email:       "alice@example.com",
	})
	req.NoError(err)
	req.True(created)
	req.Equal(identity.ColorFor("uidA"), contact.AvatarColor)
	req.Equal("Online", contact.Status)

	// A second upsert keeps the color and untouched fields.
	again, created, err := store.Upsert(ctx, "uidA", model.UpsertContactRequest{
		Status: "Away",
	})
	req.NoError(err)
	req.False(created)
	req.Equal(contact.AvatarColor, again.AvatarColor)
	req.Equal("Alice", again.DisplayName)
	req.Equal("Away", again.Status)
}

func TestGet_BackfillsMissingColorDeterministically(t *testing.T) {
	req := require.New(t)
	store := NewContactStore(openTestDB(t), logger.NewNop())

	_, _, err := store.Upsert(context.Background(), "uidB", model.UpsertContactRequest{DisplayName: "Bob"})
	req.NoError(err)

	first, err := store.Get("uidB")
	req.NoError(err)
	second, err := store.Get("uidB")
	req.NoError(err)
	req.Equal(first.AvatarColor, second.AvatarColor)

	_, err = store.Get("missing")
	req.ErrorIs(err, model.ErrContactNotFound)
}

func TestList_ExcludesCaller(t *testing.T) {
	req := require.New(t)
	store := NewContactStore(openTestDB(t), logger.NewNop())
	ctx := context.Background()

	for _, id := range []string{"uidA", "uidB", "uidC"} {
		_, _, err := store.Upsert(ctx, id, model.UpsertContactRequest{DisplayName: id})
		req.NoError(err)
	}

	contacts, err := store.List("uidB")
	req.NoError(err)
	req.Len(contacts, 2)
	for _, c := range contacts {
		req.NotEqual("uidB", c.ID)
	}
}
