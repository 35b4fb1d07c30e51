package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/apache/pulsar-client-go/pulsar"
)

type EventConsumer struct {
	client   pulsar.Client
	consumer pulsar.Consumer
}

// NewEventConsumer initializes the Pulsar client and consumer.
func NewEventConsumer(pulsarURL, topic, subscription string) (*EventConsumer, error) {
	client, err := pulsar.NewClient(pulsar.ClientOptions{URL: pulsarURL})
	if err != nil {
		return nil, fmt.Errorf("could not create Pulsar client: %w", err)
	}

	consumer, err := client.Subscribe(pulsar.ConsumerOptions{
		Topic:            topic,
		SubscriptionName: subscription,
		Type:             pulsar.Exclusive,
		DLQ: &pulsar.DLQPolicy{
			MaxDeliveries:   3,
			DeadLetterTopic: topic + "-dlq",
		},
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("could not create Pulsar consumer: %w", err)
	}

	return &EventConsumer{client: client, consumer: consumer}, nil
}

// Receive blocks until the next change arrives. Messages that cannot be
// decoded are nacked and reported as errors.
func (c *EventConsumer) Receive(ctx context.Context) (Change, error) {
	msg, err := c.consumer.Receive(ctx)
	if err != nil {
		return Change{}, fmt.Errorf("failed to receive message: %w", err)
	}

	change, err := DecodeChange(msg.Payload())
	if err != nil {
		c.consumer.Nack(msg)
		return Change{}, err
	}

	if err := c.consumer.Ack(msg); err != nil {
		return change, fmt.Errorf("failed to ack message: %w", err)
	}
	return change, nil
}

// Close cleans up the Pulsar consumer and client.
func (c *EventConsumer) Close() {
	c.consumer.Close()
	c.client.Close()
}

// DecodeChange parses a change message payload.
func DecodeChange(payload []byte) (Change, error) {
	var change Change
	if err := json.Unmarshal(payload, &change); err != nil {
		return Change{}, fmt.Errorf("invalid change payload: %w", err)
	}
	if change.Entity == "" || change.Action == "" {
		return Change{}, fmt.Errorf("invalid change payload: entity and action are required")
	}
	return change, nil
}
