package gateway

import (
	"context"
	"errors"
	"log/slog"

	"pearlbot/pkg/bus"
	"pearlbot/pkg/channel"
)

// Router delivers replies through the adapter of their origin channel.
type Router struct {
	bus      *bus.MessageBus
	adapters map[bus.Channel]channel.Adapter
	log      *slog.Logger
}

// NewRouter indexes adapters by the channel they serve.
func NewRouter(mb *bus.MessageBus, adapters []channel.Adapter, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}

	byChannel := make(map[bus.Channel]channel.Adapter, len(adapters))
	for _, adapter := range adapters {
		byChannel[adapter.Channel()] = adapter
	}

	return &Router{
		bus:      mb,
		adapters: byChannel,
		log:      log.With("component", "gateway.router"),
	}
}

// Run delivers replies until ctx ends or the bus closes.
func (r *Router) Run(ctx context.Context) error {
	for {
		reply, ok := r.bus.SubscribeOutbound(ctx)
		if !ok {
			return nil
		}
		_ = r.Route(ctx, reply)
	}
}

// Route delivers one reply. Failures are logged and reported but never fatal.
func (r *Router) Route(ctx context.Context, reply bus.ReplyEvent) error {
	event := bus.Event{
		Type:     bus.EventReplySent,
		Channel:  reply.Origin.Channel,
		SenderID: reply.Sender.ID,
		Status:   reply.Status,
	}

	adapter, ok := r.adapters[reply.Origin.Channel]
	if !ok {
		err := errors.New("no adapter for channel " + string(reply.Origin.Channel))
		r.log.Error("Failed to route reply", "channel", reply.Origin.Channel, "error", err)
		event.Type, event.Error = bus.EventReplyDropped, err.Error()
		r.bus.PublishEvent(ctx, event)
		return err
	}

	if err := adapter.Deliver(ctx, reply); err != nil {
		r.log.Error("Failed to deliver reply", "channel", reply.Origin.Channel, "sender_id", reply.Sender.ID, "error", err)
		event.Type, event.Error = bus.EventReplyDropped, err.Error()
		r.bus.PublishEvent(ctx, event)
		return err
	}

	r.bus.PublishEvent(ctx, event)
	return nil
}
