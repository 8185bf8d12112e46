package pubsub

import (
	"context"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

const (
	defaultBufferSize = 64

	// metaKeyTopic carries Message.Topic through watermill's metadata.
	metaKeyTopic = "topic"
)

// WatermillBridge implements Publisher and Subscriber on watermill's
// in-memory GoChannel.
type WatermillBridge struct {
	channel *gochannel.GoChannel
	log     slogAdapter
}

var (
	_ Publisher  = (*WatermillBridge)(nil)
	_ Subscriber = (*WatermillBridge)(nil)
)

type bridgeOptions struct {
	buffer int64
	logger *slog.Logger
}

// BridgeOption configures a WatermillBridge.
type BridgeOption func(*bridgeOptions)

// WithBufferSize sets how many undelivered messages each subscriber may queue.
func WithBufferSize(n int64) BridgeOption {
	return func(o *bridgeOptions) { o.buffer = n }
}

// WithBridgeLogger sets the logger for bus and delivery errors.
func WithBridgeLogger(l *slog.Logger) BridgeOption {
	return func(o *bridgeOptions) { o.logger = l }
}

// NewWatermillBridge creates an in-memory bus.
func NewWatermillBridge(opts ...BridgeOption) *WatermillBridge {
	o := bridgeOptions{buffer: defaultBufferSize}
	for _, opt := range opts {
		opt(&o)
	}
	log := newSlogAdapter(o.logger)
	return &WatermillBridge{
		channel: gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: o.buffer}, log),
		log:     log,
	}
}

func toWatermill(msg Message) *message.Message {
	wm := message.NewMessage(watermill.NewUUID(), msg.Payload)
	for k, v := range msg.Metadata {
		wm.Metadata.Set(k, v)
	}
	wm.Metadata.Set(metaKeyTopic, msg.Topic)
	return wm
}

func fromWatermill(wm *message.Message) Message {
	md := make(map[string]string, len(wm.Metadata))
	for k, v := range wm.Metadata {
		if k != metaKeyTopic {
			md[k] = v
		}
	}
	return Message{Topic: wm.Metadata.Get(metaKeyTopic), Payload: wm.Payload, Metadata: md}
}

// Publish implements Publisher.
func (b *WatermillBridge) Publish(_ context.Context, msg Message) error {
	return b.channel.Publish(msg.Topic, toWatermill(msg))
}

// Subscribe implements Subscriber. Events are best effort: a handler error
// is logged and the message acknowledged, since a nack would make GoChannel
// redeliver it forever.
func (b *WatermillBridge) Subscribe(ctx context.Context, topic string, handler Handler) error {
	messages, err := b.channel.Subscribe(ctx, topic)
	if err != nil {
		return err
	}

	go func() {
		for wm := range messages {
			if err := handler(ctx, fromWatermill(wm)); err != nil {
				b.log.Error("Dropping message after handler failure", err, watermill.LogFields{
					"event":  "pubsub_handler_error",
					"topic":  topic,
					"msg_id": wm.UUID,
				})
			}
			wm.Ack()
		}
		b.log.Debug("Subscription ended", watermill.LogFields{"topic": topic})
	}()
	return nil
}

// Close implements Publisher and Subscriber.
func (b *WatermillBridge) Close() error {
	return b.channel.Close()
}

// Shutdown lets dependency containers close the bridge.
func (b *WatermillBridge) Shutdown() error {
	return b.Close()
}
