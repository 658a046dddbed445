package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/pichehq/workspace-messaging/internal/model"
	"github.com/pichehq/workspace-messaging/pkg/logger"
	"github.com/pichehq/workspace-messaging/pkg/metrics"
)

const (
	// StreamName is the durable event stream shared by all API instances.
	StreamName = "WORKSPACE_EVENTS"

	// SubjectPrefix is the prefix for all relay subjects.
	SubjectPrefix = "workspace"
)

// EventSink receives events originating from other instances.
type EventSink interface {
	PublishMessage(msg model.Message)
	NotifyConversations(participants []string)
}

// Relay propagates local store writes to the shared stream and applies
// remote writes to the local hub, so live subscribers on any instance see
// appends made on every instance. Each instance tags its events with its
// origin id and skips its own echoes.
type Relay struct {
	client *Client
	sink   EventSink
	origin string
	log    *logger.Logger
}

// NewRelay creates a relay identified by origin.
func NewRelay(client *Client, sink EventSink, origin string, log *logger.Logger) *Relay {
	return &Relay{client: client, sink: sink, origin: origin, log: log}
}

// EnsureStream ensures the events stream exists with proper configuration.
func (r *Relay) EnsureStream(ctx context.Context) error {
	js := r.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Conversation and message change events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

func eventSubject(e *model.Event) string {
	switch e.Type {
	case model.EventMessageAppended:
		return fmt.Sprintf("%s.msg.%s", SubjectPrefix, e.ConversationID)
	case model.EventConversationUpdated:
		return fmt.Sprintf("%s.conv.%s", SubjectPrefix, e.ConversationID)
	default:
		return fmt.Sprintf("%s.contact.%s", SubjectPrefix, e.ContactID)
	}
}

// Publish sends an event to the stream.
func (r *Relay) Publish(ctx context.Context, e *model.Event) error {
	e.Origin = r.origin

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := r.client.JetStream().Publish(ctx, eventSubject(e), data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	metrics.RelayEventsTotal.WithLabelValues("out").Inc()
	return nil
}

// Start consumes the stream from now on and applies remote events to the
// sink until ctx ends.
func (r *Relay) Start(ctx context.Context) error {
	js := r.client.JetStream()

	consumer, err := js.CreateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		FilterSubject: fmt.Sprintf("%s.>", SubjectPrefix),
		AckPolicy:     jetstream.AckNonePolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("failed to create relay consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		var e model.Event
		if err := json.Unmarshal(msg.Data(), &e); err != nil {
			r.log.Warn("dropping malformed relay event", zap.Error(err))
			return
		}
		if e.Origin == r.origin {
			return
		}
		metrics.RelayEventsTotal.WithLabelValues("in").Inc()
		r.apply(&e)
	})
	if err != nil {
		return fmt.Errorf("failed to start relay consumer: %w", err)
	}

	go func() {
		<-ctx.Done()
		cc.Stop()
	}()
	return nil
}

func (r *Relay) apply(e *model.Event) {
	switch e.Type {
	case model.EventMessageAppended:
		if e.Message != nil {
			r.sink.PublishMessage(*e.Message)
		}
		if len(e.Participants) > 0 {
			r.sink.NotifyConversations(e.Participants)
		}
	case model.EventConversationUpdated:
		r.sink.NotifyConversations(e.Participants)
	case model.EventContactUpdated:
		// Profile changes have no live feed of their own yet; member lists
		// pick them up on the next conversation push.
	}
}
