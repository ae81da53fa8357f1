package gateway

import (
	"context"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	"pearlbot/pkg/bus"
	"pearlbot/pkg/command"
	"pearlbot/pkg/handlers"
)

// Dispatcher runs the handler for each inbound request and publishes its
// replies. Deferred handler work runs on a bounded worker pool.
type Dispatcher struct {
	handlers *handlers.Set
	bus      *bus.MessageBus
	log      *slog.Logger

	workers errgroup.Group
}

// NewDispatcher builds a dispatcher running at most workers deferred tasks at once.
func NewDispatcher(set *handlers.Set, mb *bus.MessageBus, workers int, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	if workers <= 0 {
		workers = 1
	}

	d := &Dispatcher{
		handlers: set,
		bus:      mb,
		log:      log.With("component", "gateway.dispatcher"),
	}
	d.workers.SetLimit(workers)
	return d
}

// Run consumes inbound requests in arrival order until ctx ends or the bus
// closes, then waits for in-flight workers.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer func() {
		_ = d.workers.Wait()
	}()

	for {
		req, ok := d.bus.ConsumeInbound(ctx)
		if !ok {
			return nil
		}
		d.Dispatch(ctx, req)
	}
}

// Dispatch handles one request. The immediate reply, if any, is published
// before deferred work starts.
func (d *Dispatcher) Dispatch(ctx context.Context, req bus.CommandRequest) {
	if !req.Valid() {
		d.log.Warn("Dropping request with mismatched sender and origin", "sender_channel", req.Sender.Channel, "origin_channel", req.Origin.Channel)
		d.bus.PublishEvent(ctx, bus.Event{
			Type:     bus.EventRequestRejected,
			Channel:  req.Sender.Channel,
			SenderID: req.Sender.ID,
			Reason:   "origin_mismatch",
		})
		return
	}

	d.bus.PublishEvent(ctx, bus.Event{
		Type:     bus.EventRequestReceived,
		Channel:  req.Sender.Channel,
		SenderID: req.Sender.ID,
		Command:  req.Command.String(),
	})

	var result handlers.Result
	switch req.Command {
	case command.Help:
		result = d.handlers.Help(req)
	case command.Ping:
		result = d.handlers.Ping(req)
	case command.Pearl:
		result = d.handlers.Pearl(req)
	case command.Playtime:
		result = d.handlers.Playtime(req)
	case command.Seen:
		result = d.handlers.Seen(req)
	case command.Whitelist:
		result = d.handlers.Whitelist(req)
	default:
		d.log.Error("No handler for command", "command", req.Command.String())
		return
	}

	if result.Reply != nil {
		d.emit(ctx, *result.Reply)
	}
	if result.Later == nil {
		return
	}

	later := result.Later
	started := d.workers.TryGo(func() error {
		d.emit(ctx, later(ctx))
		return nil
	})
	if !started {
		d.log.Warn("Worker pool is full, rejecting command", "command", req.Command.String(), "sender_id", req.Sender.ID)
		d.emit(ctx, req.Reply("[503] Busy, try again shortly", http.StatusServiceUnavailable))
	}
}

func (d *Dispatcher) emit(ctx context.Context, reply bus.ReplyEvent) {
	if !d.bus.PublishOutbound(ctx, reply) {
		d.log.Warn("Dropping reply, bus is closed", "channel", reply.Origin.Channel, "status", reply.Status)
	}
}
