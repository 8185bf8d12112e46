package app

import (
	"context"
	"log/slog"

	"github.com/nfrund/scriptops/internal/pubsub"
	"github.com/nfrund/scriptops/internal/script"
)

// LogScriptEvents subscribes to the script topics and writes every event to
// the log until ctx is cancelled.
func LogScriptEvents(ctx context.Context, sub pubsub.Subscriber) error {
	for _, topic := range []string{script.TopicRegistered, script.TopicRemoved} {
		if err := sub.Subscribe(ctx, topic, logEvent); err != nil {
			return err
		}
	}
	return nil
}

func logEvent(ctx context.Context, msg pubsub.Message) error {
	ev, err := script.DecodeEvent(msg)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Script event",
		"event", "script_event",
		"topic", msg.Topic,
		"script", ev.Name,
		"params", ev.Params,
	)
	return nil
}
