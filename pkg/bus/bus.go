package bus

import (
	"context"
	"sync"
)

const defaultBufferSize = 100

// MessageBus carries command requests from adapters to the dispatcher and
// replies from handlers to the reply router. It is safe for concurrent use.
type MessageBus struct {
	inbound  chan CommandRequest
	outbound chan ReplyEvent

	eventSubscribers      map[uint64]chan Event
	nextEventSubscriberID uint64

	done      chan struct{}
	closeOnce sync.Once

	mu sync.RWMutex
}

func NewMessageBus() *MessageBus {
	return NewMessageBusWithBuffer(defaultBufferSize)
}

// NewMessageBusWithBuffer sizes both queues to buffer.
func NewMessageBusWithBuffer(buffer int) *MessageBus {
	if buffer <= 0 {
		buffer = defaultBufferSize
	}
	return &MessageBus{
		inbound:          make(chan CommandRequest, buffer),
		outbound:         make(chan ReplyEvent, buffer),
		eventSubscribers: make(map[uint64]chan Event),
		done:             make(chan struct{}),
	}
}

func (mb *MessageBus) PublishInbound(ctx context.Context, req CommandRequest) bool {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-ctx.Done():
		return false
	case <-mb.done:
		return false
	default:
	}

	select {
	case <-ctx.Done():
		return false
	case <-mb.done:
		return false
	case mb.inbound <- req:
		return true
	}
}

func (mb *MessageBus) ConsumeInbound(ctx context.Context) (CommandRequest, bool) {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-ctx.Done():
		return CommandRequest{}, false
	case <-mb.done:
		return CommandRequest{}, false
	case req := <-mb.inbound:
		return req, true
	}
}

func (mb *MessageBus) PublishOutbound(ctx context.Context, reply ReplyEvent) bool {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-ctx.Done():
		return false
	case <-mb.done:
		return false
	default:
	}

	select {
	case <-ctx.Done():
		return false
	case <-mb.done:
		return false
	case mb.outbound <- reply:
		return true
	}
}

func (mb *MessageBus) SubscribeOutbound(ctx context.Context) (ReplyEvent, bool) {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-ctx.Done():
		return ReplyEvent{}, false
	case <-mb.done:
		return ReplyEvent{}, false
	case reply := <-mb.outbound:
		return reply, true
	}
}

func (mb *MessageBus) Close() {
	mb.closeOnce.Do(func() {
		close(mb.done)

		mb.mu.Lock()
		for id, ch := range mb.eventSubscribers {
			close(ch)
			delete(mb.eventSubscribers, id)
		}
		mb.mu.Unlock()
	})
}
