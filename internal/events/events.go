package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/rs/zerolog/log"
)

const (
	EntityUser       = "user"
	EntityGroup      = "group"
	EntityMembership = "membership"

	ActionCreate  = "create"
	ActionUpdate  = "update"
	ActionDelete  = "delete"
	ActionRefresh = "refresh"
)

// Change describes a committed modification of a directory entry.
type Change struct {
	Entity    string `json:"entity"`
	Action    string `json:"action"`
	Name      string `json:"name"`
	Domain    string `json:"domain"`
	Member    string `json:"member,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// NewChange stamps a change with the current time.
func NewChange(entity, action, name, domain string) Change {
	return Change{
		Entity:    entity,
		Action:    action,
		Name:      name,
		Domain:    domain,
		Timestamp: time.Now().UTC().Unix(),
	}
}

// Notifier delivers changes to whatever keeps the directory projection in sync.
type Notifier interface {
	Notify(ctx context.Context, change Change) error
	Close()
}

// NoopNotifier drops every change.
type NoopNotifier struct{}

func (NoopNotifier) Notify(context.Context, Change) error { return nil }
func (NoopNotifier) Close()                               {}

type EventPublisher struct {
	client   pulsar.Client
	producer pulsar.Producer
}

// NewEventPublisher initializes the Pulsar client and producer.
func NewEventPublisher(pulsarURL, topic string) (*EventPublisher, error) {
	client, err := pulsar.NewClient(pulsar.ClientOptions{
		URL: pulsarURL,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create Pulsar client: %w", err)
	}

	producer, err := client.CreateProducer(pulsar.ProducerOptions{
		Topic: topic,
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("could not create Pulsar producer: %w", err)
	}

	log.Info().Str("topic", topic).Msg("Pulsar client and producer initialized successfully")
	return &EventPublisher{
		client:   client,
		producer: producer,
	}, nil
}

// Notify publishes the change to Pulsar, keyed by domain so that changes of
// one domain stay ordered.
func (p *EventPublisher) Notify(ctx context.Context, change Change) error {
	message, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("could not serialize event payload: %w", err)
	}

	_, err = p.producer.Send(ctx, &pulsar.ProducerMessage{
		Key:     change.Domain,
		Payload: message,
		Properties: map[string]string{
			"entity": change.Entity,
			"action": change.Action,
		},
	})
	if err != nil {
		return fmt.Errorf("could not send event to Pulsar: %w", err)
	}

	log.Debug().RawJSON("event", message).Msg("Event sent to Pulsar")
	return nil
}

// Close closes the Pulsar client and producer.
func (p *EventPublisher) Close() {
	p.producer.Close()
	p.client.Close()
	log.Info().Msg("Pulsar client and producer closed successfully")
}
