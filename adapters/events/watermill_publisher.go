package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/layer-3/doctorauth/core"
	"github.com/layer-3/doctorauth/ports"
)

// DefaultTopicPrefix is prepended to the event type to form the topic
const DefaultTopicPrefix = "doctorauth."

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher   message.Publisher
	topicPrefix string
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) ports.EventPublisher {
	return &WatermillPublisher{
		publisher:   publisher,
		topicPrefix: DefaultTopicPrefix,
	}
}

// Topic returns the topic an event type is published on
func Topic(eventType core.EventType) string {
	return DefaultTopicPrefix + string(eventType)
}

// Publish publishes an auth event
func (p *WatermillPublisher) Publish(ctx context.Context, event core.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("event_type", string(event.Type))

	if err := p.publisher.Publish(p.topicPrefix+string(event.Type), msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}
