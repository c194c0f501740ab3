package event

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// DefaultAsyncBuffer is the queue size used when NewAsyncPublisher gets a non-positive buffer
const DefaultAsyncBuffer = 1000

var (
	// ErrQueueFull is returned when the async queue cannot accept another event
	ErrQueueFull = errors.New("event queue full")
	// ErrPublisherClosed is returned by Publish after Close
	ErrPublisherClosed = errors.New("event publisher closed")
)

// AsyncPublisher delivers events to an inner publisher on a background
// goroutine, in the order they were accepted.
type AsyncPublisher struct {
	inner  Publisher
	queue  chan Event
	done   chan struct{}
	mu     sync.RWMutex
	closed bool
}

// NewAsyncPublisher starts the delivery goroutine
func NewAsyncPublisher(inner Publisher, buffer int) *AsyncPublisher {
	if buffer <= 0 {
		buffer = DefaultAsyncBuffer
	}
	p := &AsyncPublisher{
		inner: inner,
		queue: make(chan Event, buffer),
		done:  make(chan struct{}),
	}
	go p.run()
	return p
}

// Publish queues evt without blocking
func (p *AsyncPublisher) Publish(_ context.Context, evt Event) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}
	select {
	case p.queue <- evt:
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *AsyncPublisher) run() {
	defer close(p.done)
	// Detached context: the request that produced the event may be gone
	ctx := context.Background()
	for evt := range p.queue {
		if err := p.inner.Publish(ctx, evt); err != nil {
			slog.Warn("Async event delivery failed",
				"event_id", evt.ID,
				"type", evt.Type,
				"error", err)
		}
	}
}

// Close stops accepting events and waits for queued ones to be delivered,
// or for ctx to end.
func (p *AsyncPublisher) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
