package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
)

const (
	metaEventType  = "event_type"
	metaOccurredAt = "occurred_at"
)

// Publisher delivers events to whatever bus is configured.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Topic is the subject/topic an event is routed to.
func Topic(eventType string) string {
	return "events." + eventType
}

// ChannelPublisher publishes onto an in-process watermill publisher,
// normally a gochannel.GoChannel shared with AuditConsumer.
type ChannelPublisher struct {
	pub message.Publisher
}

var _ Publisher = &ChannelPublisher{}

func NewChannelPublisher(pub message.Publisher) *ChannelPublisher {
	return &ChannelPublisher{pub: pub}
}

func (p *ChannelPublisher) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event.Payload())
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	msg := message.NewMessage(event.EventID(), data)
	msg.SetContext(ctx)
	msg.Metadata.Set(metaEventType, event.EventType())
	msg.Metadata.Set(metaOccurredAt, event.Timestamp().Format(time.RFC3339Nano))

	topic := Topic(event.EventType())
	if err := p.pub.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event to topic %s: %w", topic, err)
	}
	return nil
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// FromMessage rebuilds an event from a message produced by ChannelPublisher.
func FromMessage(msg *message.Message) (BaseEvent, error) {
	var data map[string]interface{}
	if err := json.Unmarshal(msg.Payload, &data); err != nil {
		return BaseEvent{}, fmt.Errorf("failed to unmarshal event payload: %w", err)
	}

	occurredAt, err := time.Parse(time.RFC3339Nano, msg.Metadata.Get(metaOccurredAt))
	if err != nil {
		occurredAt = time.Now().UTC()
	}

	return BaseEvent{
		ID:         msg.UUID,
		Type:       msg.Metadata.Get(metaEventType),
		Data:       data,
		OccurredAt: occurredAt,
	}, nil
}
