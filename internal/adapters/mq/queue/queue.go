// Package queue buffers outbound engine events between the engine and the
// sink workers.
//
// Publishing never blocks the engine: a full queue drops the event and counts
// it. Delivery to sinks is best effort.
package queue

import (
	"context"
	"sync"

	"github.com/okian/inhouse/internal/domain/model"
	"github.com/okian/inhouse/pkg/metrics"
)

const defaultQueueCapacity = 10000

// Event is the payload flowing through the queue.
type Event = model.Event

// Queue provides non-blocking publish and channel-based consumption.
type Queue interface {
	// Publish adds an event. It returns ErrFull or ErrClosed when the event
	// was not accepted.
	Publish(ctx context.Context, e Event) error

	// Dequeue returns the receive side of the queue. It is closed by Close.
	Dequeue() <-chan Event

	// Len returns the current number of buffered events.
	Len() int

	Close() error
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	events   chan Event
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.events = make(chan Event, q.capacity)

	metrics.UpdateEventQueueCapacity(q.capacity)
	metrics.UpdateEventQueueSize(0)
	return q
}

// Publish adds an event to the queue without blocking.
func (q *InMemoryQueue) Publish(ctx context.Context, e Event) error { //nolint:gocritic // hugeParam: Event is passed by value for channel semantics
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordEventDropped()
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordEventDropped()
		return err
	}

	select {
	case q.events <- e:
		metrics.RecordEventPublished()
		metrics.UpdateEventQueueSize(len(q.events))
		return nil
	default:
		metrics.RecordEventDropped()
		return ErrFull
	}
}

// Dequeue returns the queue's receive channel.
func (q *InMemoryQueue) Dequeue() <-chan Event {
	return q.events
}

// Len returns the current number of queued events.
func (q *InMemoryQueue) Len() int {
	size := len(q.events)
	metrics.UpdateEventQueueSize(size)
	return size
}

// Close stops accepting events. Buffered events stay readable until drained.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.events)
	q.closed = true
	return nil
}

// IsClosed reports whether Close has been called.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
