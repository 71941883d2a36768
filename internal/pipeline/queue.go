package pipeline

import (
	"time"

	"telemetry/internal/transport"
	"telemetry/pkg/envelope"
)

// Item is a pending delivery wrapping an envelope. The envelope is shared,
// not copied, across retries; only the item's bookkeeping mutates.
type Item struct {
	ID            int64
	Envelope      *envelope.Envelope
	Attempt       int // >= 1, only ever increases
	QueuedAt      time.Time
	NextAttemptAt time.Time
	LastErr       *transport.DeliveryError
}

// MarkRetry advances the item to its next attempt, due after delay.
func (it *Item) MarkRetry(now time.Time, delay time.Duration) {
	it.Attempt++
	it.NextAttemptAt = now.Add(delay)
}

// Queue is a bounded-by-convention FIFO of pending deliveries with per-item
// readiness times. Capacity is enforced by the pipeline; Enqueue
// appends unconditionally. The queue is not internally synchronized: the
// pipeline serializes all access.
type Queue struct {
	items []*Item
}

// Enqueue appends an item at the tail.
func (q *Queue) Enqueue(item *Item) {
	q.items = append(q.items, item)
}

// DequeueReady removes and returns the first item in insertion order whose
// NextAttemptAt has arrived, or nil when none is ready. This is a linear
// scan on purpose: the common case is that head items are ready and retried
// items are rare, so fairness beats a priority queue here.
func (q *Queue) DequeueReady(now time.Time) *Item {
	for i, item := range q.items {
		if !item.NextAttemptAt.After(now) {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return item
		}
	}
	return nil
}

// Requeue re-appends a retried item at the tail. The item loses its original
// position but stays FIFO-fair among items that become ready together.
func (q *Queue) Requeue(item *Item) {
	q.items = append(q.items, item)
}

// Count returns the current queue size.
func (q *Queue) Count() int {
	return len(q.items)
}
