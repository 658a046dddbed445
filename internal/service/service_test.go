package service

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pichehq/workspace-messaging/internal/attachment"
	"github.com/pichehq/workspace-messaging/internal/model"
	"github.com/pichehq/workspace-messaging/internal/store"
	"github.com/pichehq/workspace-messaging/internal/stream"
	"github.com/pichehq/workspace-messaging/pkg/logger"
)

type fixture struct {
	convs    *ConversationService
	messages *MessageService
	forward  *ForwardService
	pipeline *attachment.Pipeline
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := logger.NewNop()
	convStore := store.NewConversationStore(db, log)
	msgLog := store.NewMessageLog(db, log)
	contactStore := store.NewContactStore(db, log)
	hub := stream.NewHub(msgLog, convStore, log)

	blobs, err := attachment.NewDiskStore(t.TempDir())
	require.NoError(t, err)
	pipeline := attachment.NewPipeline(blobs, "http://localhost:8080", log)

	convSvc := NewConversationService(convStore, contactStore, hub, nil, log)
	msgSvc := NewMessageService(msgLog, convStore, contactStore, pipeline, hub, nil, log)
	fwdSvc := NewForwardService(msgSvc, msgLog, convStore, contactStore, log)

	return &fixture{convs: convSvc, messages: msgSvc, forward: fwdSvc, pipeline: pipeline}
}

func (f *fixture) signIn(t *testing.T, id, name string) model.Contact {
	t.Helper()
	contact, err := f.convs.UpsertContact(context.Background(), id, model.UpsertContactRequest{
		DisplayName: name,
	})
	require.NoError(t, err)
	return contact
}

func (f *fixture) directConv(t *testing.T, caller string, peers ...string) model.Conversation {
	t.Helper()
	resp, err := f.convs.Ensure(context.Background(), caller, model.EnsureConversationRequest{
		Participants: peers,
	})
	require.NoError(t, err)
	return resp.Conversation
}

func (f *fixture) sendText(t *testing.T, caller, convID, text string) model.Message {
	t.Helper()
	sent, err := f.messages.Send(context.Background(), caller, convID, model.SendMessageRequest{Text: text})
	require.NoError(t, err)
	require.Len(t, sent, 1)
	return sent[0]
}

func TestEnsure_CallerAddedAndIdempotent(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.convs.Ensure(ctx, "uidA", model.EnsureConversationRequest{
		Participants: []string{"uidB"},
	})
	req.NoError(err)
	req.True(resp.Created)
	req.Equal("uidA_uidB", resp.Conversation.ParticipantKey)

	// Same pair from the other side resolves to the same conversation.
	other, err := f.convs.Ensure(ctx, "uidB", model.EnsureConversationRequest{
		Participants: []string{"uidA"},
	})
	req.NoError(err)
	req.False(other.Created)
	req.Equal(resp.Conversation.ID, other.Conversation.ID)
}

func TestSend_TextUpdatesSummary(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	f.signIn(t, "uidA", "Alice")
	conv := f.directConv(t, "uidA", "uidB")

	msg := f.sendText(t, "uidA", conv.ID, "hello there")
	req.Equal("Alice", msg.SenderName)
	req.Equal(model.KindText, msg.Kind)

	got, err := f.convs.Get(ctx, "uidA", conv.ID)
	req.NoError(err)
	req.NotNil(got.LastMessage)
	req.Equal(msg.ID, got.LastMessage.MessageID)
	req.Equal("hello there", got.LastMessage.Preview)
}

func TestSend_RejectsEmptyAndNonParticipant(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	conv := f.directConv(t, "uidA", "uidB")

	_, err := f.messages.Send(ctx, "uidA", conv.ID, model.SendMessageRequest{Text: "   "})
	req.ErrorIs(err, model.ErrEmptyMessage)

	_, err = f.messages.Send(ctx, "uidZ", conv.ID, model.SendMessageRequest{Text: "hi"})
	req.ErrorIs(err, model.ErrConversationNotFound)

	// Nothing was stored either way.
	recent, err := f.messages.Recent(ctx, "uidA", conv.ID, 10)
	req.NoError(err)
	req.Empty(recent.Messages)
}

func TestSend_ReplyCarriesImmutableSnapshot(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	f.signIn(t, "uidA", "Alice")
	f.signIn(t, "uidB", "Bob")
	conv := f.directConv(t, "uidA", "uidB")

	original := f.sendText(t, "uidA", conv.ID, "original text")

	sent, err := f.messages.Send(ctx, "uidB", conv.ID, model.SendMessageRequest{
		Text:    "replying",
		ReplyTo: original.ID,
	})
	req.NoError(err)
	req.Len(sent, 1)
	reply := sent[0].Reply
	req.NotNil(reply)
	req.Equal(original.ID, reply.MessageID)
	req.Equal("uidA", reply.SenderID)
	req.Equal("Alice", reply.SenderName)
	req.Equal("original text", reply.Text)
	req.Equal(original.CreatedAt, reply.CreatedAt)
}

func TestSend_AttachmentGate(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	f.signIn(t, "uidA", "Alice")
	conv := f.directConv(t, "uidA", "uidB")

	// Keep the upload pending with a blocked reader.
	blocked := make(chan struct{})
	h, err := f.pipeline.Stage(ctx, "doc.txt", 16, blockingReader{unblock: blocked})
	req.NoError(err)

	_, err = f.messages.Send(ctx, "uidA", conv.ID, model.SendMessageRequest{
		AttachmentIDs: []string{h.ID},
	})
	req.ErrorIs(err, model.ErrAttachmentNotReady)

	close(blocked)
	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	req.NoError(h.Wait(waitCtx))

	sent, err := f.messages.Send(ctx, "uidA", conv.ID, model.SendMessageRequest{
		AttachmentIDs: []string{h.ID},
	})
	req.NoError(err)
	req.Len(sent, 1)
	req.Equal(model.KindFile, sent[0].Kind)
	req.Equal("doc.txt", sent[0].FileName)
	req.NotEmpty(sent[0].FileURL)
}

func TestForward_PartialFailureIsIsolated(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	f.signIn(t, "uidA", "Alice")
	f.signIn(t, "uidB", "Bob")
	convAB := f.directConv(t, "uidA", "uidB")
	original := f.sendText(t, "uidB", convAB.ID, "forward me")

	convAC := f.directConv(t, "uidA", "uidC")

	resp, err := f.forward.Forward(ctx, "uidA", original.ID, model.ForwardRequest{
		Targets: []string{convAC.ID, "no-such-target"},
		Comment: "hi",
	})
	req.NoError(err)
	req.Len(resp.Results, 2)

	ok, bad := resp.Results[0], resp.Results[1]
	req.True(ok.OK)
	req.Equal(convAC.ID, ok.ConversationID)
	req.NotEmpty(ok.MessageID)
	req.NotEmpty(ok.CommentMessageID)

	req.False(bad.OK)
	req.NotEmpty(bad.Error)
	req.Empty(bad.MessageID)

	// Exactly the forwarded pair landed in the good target, in order.
	recent, err := f.messages.Recent(ctx, "uidA", convAC.ID, 10)
	req.NoError(err)
	req.Len(recent.Messages, 2)

	fwd, comment := recent.Messages[0], recent.Messages[1]
	req.Equal("forward me", fwd.Text)
	req.NotNil(fwd.ForwardedFrom)
	req.Equal("uidB", fwd.ForwardedFrom.OriginalSenderID)
	req.Equal("Bob", fwd.ForwardedFrom.OriginalSenderName)
	req.Equal("uidA", fwd.SenderID)

	req.Equal("hi", comment.Text)
	req.Nil(comment.ForwardedFrom)
	req.True(comment.CreatedAt.After(fwd.CreatedAt))
}

func TestForward_ContactTargetResolvesConversation(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	f.signIn(t, "uidA", "Alice")
	f.signIn(t, "uidC", "Clara")
	convAB := f.directConv(t, "uidA", "uidB")
	original := f.sendText(t, "uidA", convAB.ID, "to a contact")

	resp, err := f.forward.Forward(ctx, "uidA", original.ID, model.ForwardRequest{
		Targets: []string{"uidC"},
	})
	req.NoError(err)
	req.True(resp.Results[0].OK)

	// The direct thread with the contact was created on the fly.
	created, err := f.convs.Get(ctx, "uidA", resp.Results[0].ConversationID)
	req.NoError(err)
	req.Equal("uidA_uidC", created.ParticipantKey)
}

func TestForward_SelfTargetUsesSavedMessages(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	f.signIn(t, "uidA", "Alice")
	convAB := f.directConv(t, "uidA", "uidB")
	original := f.sendText(t, "uidA", convAB.ID, "keep this")

	resp, err := f.forward.Forward(ctx, "uidA", original.ID, model.ForwardRequest{
		Targets: []string{"uidA"},
	})
	req.NoError(err)
	req.True(resp.Results[0].OK)

	saved, err := f.convs.Get(ctx, "uidA", resp.Results[0].ConversationID)
	req.NoError(err)
	req.Equal(model.ConversationSaved, saved.Type)
}

func TestUpsertContact_CreatesSavedThreadOnce(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	f.signIn(t, "uidA", "Alice")
	f.signIn(t, "uidA", "Alice Cooper")

	list, err := f.convs.List(ctx, "uidA")
	req.NoError(err)
	req.Len(list.Conversations, 1)
	req.Equal(model.ConversationSaved, list.Conversations[0].Type)
}

func TestSubscribe_LiveDeliveryThroughService(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	conv := f.directConv(t, "uidA", "uidB")
	f.sendText(t, "uidA", conv.ID, "before subscribe")

	sub, err := f.messages.Subscribe(ctx, "uidB", conv.ID, 50)
	req.NoError(err)
	defer sub.Cancel()

	req.Len(sub.Snapshot(), 1)

	sent := f.sendText(t, "uidA", conv.ID, "after subscribe")
	got, ok := sub.Next()
	req.True(ok)
	req.Equal(sent.ID, got.ID)
}

// blockingReader delivers one byte and EOF, but only after unblock closes.
type blockingReader struct {
	unblock <-chan struct{}
}

func (r blockingReader) Read(p []byte) (int, error) {
	<-r.unblock
	if len(p) > 0 {
		p[0] = 'x'
	}
	return 1, io.EOF
}
