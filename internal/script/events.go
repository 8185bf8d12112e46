package script

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nfrund/scriptops/internal/pubsub"
)

const (
	// TopicRegistered receives an Event after every successful Register.
	TopicRegistered = "scripts.registered"
	// TopicRemoved receives an Event after every successful Remove.
	TopicRemoved = "scripts.removed"
)

// Event is the payload published on the script topics.
type Event struct {
	Name   string   `json:"name"`
	Params []string `json:"params"`
}

// DecodeEvent parses a message published on one of the script topics.
func DecodeEvent(msg pubsub.Message) (Event, error) {
	var ev Event
	err := json.Unmarshal(msg.Payload, &ev)
	return ev, err
}

// publish is best effort: the database write already happened, so a bus
// failure is logged and never reported to the caller.
func (o *SurrealOperations) publish(ctx context.Context, topic string, ev Event) {
	if o.publisher == nil {
		return
	}
	if ev.Params == nil {
		ev.Params = []string{}
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		o.log.base.ErrorContext(ctx, "Failed to encode script event", "event", "script_event_encode", "topic", topic, "error", err)
		return
	}
	msg := pubsub.Message{
		Topic:   topic,
		Payload: payload,
		Metadata: map[string]string{
			"script":    ev.Name,
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		},
	}
	if err := o.publisher.Publish(ctx, msg); err != nil {
		o.log.base.LogAttrs(ctx, slog.LevelWarn, "Failed to publish script event",
			slog.String("event", "script_event_publish"),
			slog.String("topic", topic),
			slog.String("script", ev.Name),
			slog.String("error", err.Error()),
		)
	}
}
