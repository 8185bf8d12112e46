// Package pubsub is the in-process event bus script operations publish to.
package pubsub

import "context"

// Message is one event on the bus.
type Message struct {
	Topic    string            // e.g. "scripts.registered"
	Payload  []byte            // usually JSON
	Metadata map[string]string // free-form context such as timestamps
}

// Handler processes a received message.
type Handler func(ctx context.Context, msg Message) error

// Publisher sends messages to the bus.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// Subscriber receives messages from the bus. Subscribe returns once the
// subscription is active and delivers messages in the background until ctx
// is cancelled or the subscriber is closed.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, handler Handler) error
	Close() error
}
