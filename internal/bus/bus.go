package bus

import (
	"context"
	"log/slog"
	"sync"
)

// DefaultCapacity is the queue depth for both lanes when the config does
// not override it. A slow outbound handler blocks publishes end to end,
// which throttles the agent loop — intentional backpressure.
const DefaultCapacity = 100

// Bus routes messages between channel adapters and the agent runtime.
// It owns one inbound and one outbound bounded queue plus a handler table
// keyed by channel name.
type Bus struct {
	inbound  *Queue[InboundMessage]
	outbound *Queue[OutboundMessage]

	mu       sync.RWMutex
	handlers map[string]Handler
}

// New creates a bus with the given queue capacity (0 uses DefaultCapacity).
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{
		inbound:  NewQueue[InboundMessage](capacity),
		outbound: NewQueue[OutboundMessage](capacity),
		handlers: make(map[string]Handler),
	}
}

// PublishInbound enqueues a message for the agent loop.
func (b *Bus) PublishInbound(ctx context.Context, msg InboundMessage) error {
	return b.inbound.Publish(ctx, msg)
}

// ConsumeInbound removes the next inbound message, blocking while empty.
func (b *Bus) ConsumeInbound(ctx context.Context) (InboundMessage, error) {
	return b.inbound.Consume(ctx)
}

// PublishOutbound enqueues a message for dispatch to a channel handler.
func (b *Bus) PublishOutbound(ctx context.Context, msg OutboundMessage) error {
	return b.outbound.Publish(ctx, msg)
}

// ConsumeOutbound removes the next outbound message, blocking while empty.
func (b *Bus) ConsumeOutbound(ctx context.Context) (OutboundMessage, error) {
	return b.outbound.Consume(ctx)
}

// RegisterHandler binds a channel name to a delivery handler.
func (b *Bus) RegisterHandler(channel string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[channel] = h
}

// Handler returns the registered handler for a channel, if any.
func (b *Bus) Handler(channel string) (Handler, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	h, ok := b.handlers[channel]
	return h, ok
}

// StreamTo invokes a channel handler directly, bypassing the outbound
// queue. Used for high-frequency stream chunks. The bus allows concurrent
// calls; per-chat serialization is the channel adapter's responsibility.
func (b *Bus) StreamTo(channel, chatID string, typ OutboundType, content string) {
	h, ok := b.Handler(channel)
	if !ok {
		slog.Warn("stream to unregistered channel", "channel", channel, "chat_id", chatID)
		return
	}
	if err := h(OutboundMessage{Channel: channel, ChatID: chatID, Content: content, Type: typ}); err != nil {
		slog.Warn("stream handler failed", "channel", channel, "chat_id", chatID, "error", err)
	}
}

// Dispatch consumes outbound messages and invokes handlers until the
// context is cancelled. Delivery is best-effort: missing handlers drop the
// message with a warning, handler errors are logged and skipped.
func (b *Bus) Dispatch(ctx context.Context) {
	for {
		msg, err := b.outbound.Consume(ctx)
		if err != nil {
			return
		}
		h, ok := b.Handler(msg.Channel)
		if !ok {
			slog.Warn("no handler for channel, dropping message", "channel", msg.Channel, "chat_id", msg.ChatID)
			continue
		}
		if err := h(msg); err != nil {
			slog.Error("outbound handler failed", "channel", msg.Channel, "chat_id", msg.ChatID, "error", err)
		}
	}
}
