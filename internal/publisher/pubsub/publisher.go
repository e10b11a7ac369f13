// Package pubsub publishes notification events to a Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"go.opentelemetry.io/otel"

	"github.com/JakeFAU/delta-harvester/internal/harvest"
)

// EventMessage is the JSON body of each published message.
type EventMessage struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Severity    string    `json:"severity"`
	Color       int       `json:"color"`
	At          time.Time `json:"at"`
}

type sendFunc func(ctx context.Context, msg *pubsub.Message) (string, error)

// Channel implements harvest.Channel over a Pub/Sub topic publisher.
type Channel struct {
	send sendFunc
}

var _ harvest.Channel = (*Channel)(nil)

// New creates a Channel for the provided topic publisher.
func New(publisher *pubsub.Publisher) (*Channel, error) {
	if publisher == nil {
		return nil, fmt.Errorf("pubsub publisher is not configured")
	}
	return &Channel{send: func(ctx context.Context, msg *pubsub.Message) (string, error) {
		return publisher.Publish(ctx, msg).Get(ctx)
	}}, nil
}

// Deliver publishes evt and waits for the server acknowledgement.
func (c *Channel) Deliver(ctx context.Context, evt harvest.Event) error {
	data, err := json.Marshal(EventMessage{
		Title:       evt.Title,
		Description: evt.Description,
		Severity:    string(evt.Severity),
		Color:       evt.Severity.Color(),
		At:          evt.At,
	})
	if err != nil {
		return fmt.Errorf("%w: marshal event: %w", harvest.ErrNotifyFailure, err)
	}

	msg := &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"severity": string(evt.Severity)},
	}
	otel.GetTextMapPropagator().Inject(ctx, &pubsubCarrier{attrs: msg.Attributes})

	if _, err := c.send(ctx, msg); err != nil {
		return fmt.Errorf("%w: publish message: %w", harvest.ErrNotifyFailure, err)
	}
	return nil
}

// pubsubCarrier implements propagation.TextMapCarrier for Pub/Sub attributes.
type pubsubCarrier struct {
	attrs map[string]string
}

func (c *pubsubCarrier) Get(key string) string {
	return c.attrs[key]
}

func (c *pubsubCarrier) Set(key, value string) {
	c.attrs[key] = value
}

func (c *pubsubCarrier) Keys() []string {
	keys := make([]string, 0, len(c.attrs))
	for k := range c.attrs {
		keys = append(keys, k)
	}
	return keys
}
