package channel

import (
	"context"

	"pearlbot/pkg/bus"
)

// Sink accepts a normalized command request. It returns false when the request
// could not be queued (shutdown or canceled context).
type Sink func(context.Context, bus.CommandRequest) bool

// Adapter bridges one external transport into the command pipeline. Run feeds
// normalized requests into the sink until ctx ends; Deliver sends one reply back
// out over the same transport and must be safe to call from any goroutine.
type Adapter interface {
	Name() string
	Channel() bus.Channel
	Run(ctx context.Context, sink Sink) error
	Deliver(ctx context.Context, reply bus.ReplyEvent) error
}
