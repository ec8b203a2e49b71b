package events

import "context"

// Streams
const (
	StreamDonation  = "events:donation"
	StreamAnimation = "events:animation"
)

// Event types
const (
	EventPaymentConfirmed  = "payment_confirmed"
	EventAnimationSettings = "animation_settings"
)

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}

// NopPublisher discards events. Used when redis is not configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, Event) error { return nil }

// NopSubscriber never delivers.
type NopSubscriber struct{}

func (NopSubscriber) Subscribe(context.Context, string, func(Event)) error { return nil }
