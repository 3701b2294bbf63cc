// Package queue provides the bounded FIFO channel between event
// producers and the consumer. Sends block when the queue is full; that
// blocking is the backpressure contract.
package queue

import (
	"fmt"

	"github.com/rhkang/shev/pkg/shev/models"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = fmt.Errorf("event queue closed")

// Queue is a bounded FIFO of events with a single consumer.
type Queue struct {
	events chan models.Event
	done   chan struct{}
}

// New creates a queue with the given capacity.
func New(capacity int) *Queue {
	return &Queue{
		events: make(chan models.Event, capacity),
		done:   make(chan struct{}),
	}
}

// Send enqueues an event, blocking while the queue is full. Returns
// ErrClosed once the queue has shut down.
func (q *Queue) Send(event models.Event) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}
	select {
	case q.events <- event:
		return nil
	case <-q.done:
		return ErrClosed
	}
}

// Receive returns the channel the consumer drains. The channel never
// closes; consumers should select against Done.
func (q *Queue) Receive() <-chan models.Event {
	return q.events
}

// Done is closed when the queue shuts down.
func (q *Queue) Done() <-chan struct{} {
	return q.done
}

// Close shuts the queue down, unblocking all senders and the consumer.
// Events still buffered are discarded.
func (q *Queue) Close() {
	select {
	case <-q.done:
	default:
		close(q.done)
	}
}
