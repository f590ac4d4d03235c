package domain

import (
	"context"
	"time"
)

// Topics published by the screening pipeline. Subscribers receive
// JSON-encoded payloads; the envelope carries tenant and trace context.
const (
	TopicScreenRequested   = "kestrel.screen.requested"
	TopicScreenCompleted   = "kestrel.screen.completed"
	TopicScreenAlert       = "kestrel.screen.alert"
	TopicProviderCall      = "kestrel.provider.call"
	TopicRegistryAmbiguous = "kestrel.registry.ambiguous"
	TopicMatchComputed     = "kestrel.match.computed"
)

// EventBus carries screening events between the API, the async worker,
// and any external consumers. Every operation is scoped to a tenant:
// a subscriber for tenant A never sees tenant B's messages, even on
// the same topic. The Community tier runs an in-process channel bus;
// the Pro tier runs NATS.
type EventBus interface {
	// Publish delivers payload to every subscriber of (tenantID, topic).
	// Delivery is at-most-once and never blocks the publisher.
	Publish(ctx context.Context, tenantID string, topic string, payload []byte) error

	// Subscribe invokes handler for each message published to
	// (tenantID, topic) until the subscription is cancelled.
	Subscribe(ctx context.Context, tenantID string, topic string, handler MessageHandler) (Subscription, error)

	// Request publishes payload and blocks until a responder replies on
	// the envelope's ReplyTo topic, the context expires, or the bus's
	// request timeout elapses.
	Request(ctx context.Context, tenantID string, topic string, payload []byte) ([]byte, error)

	// Ping reports whether the bus can currently deliver messages.
	Ping(ctx context.Context) error

	Close() error
}

// MessageHandler consumes one message. A non-nil error is logged by the
// bus; it does not trigger redelivery.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message is the wire envelope around an event payload.
type Message struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
	Topic    string `json:"topic"`
	Payload  []byte `json:"payload"`

	// ReplyTo names the topic a responder should publish its answer to.
	// Set only on messages sent through Request.
	ReplyTo string `json:"replyTo,omitempty"`

	// SentAt is the publish time in Unix milliseconds.
	SentAt int64 `json:"sentAt"`
}

// Subscription is a handle on an active topic subscription.
type Subscription interface {
	// Unsubscribe stops delivery. Safe to call more than once.
	Unsubscribe() error

	// Topic returns the topic this subscription listens on.
	Topic() string
}

// EventBusConfig selects and tunes the bus implementation.
type EventBusConfig struct {
	// Type is "channel" (Community) or "nats" (Pro).
	Type string

	// ChannelBufferSize is the per-subscriber queue depth for the
	// channel bus. Messages beyond it are dropped, not queued.
	ChannelBufferSize int

	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait time.Duration
}
