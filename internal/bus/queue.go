package bus

import (
	"context"
	"sync"
)

// Queue is a bounded FIFO with backpressure and cancellation.
//
// Publish hands items directly to a waiting consumer when one exists,
// otherwise enqueues. When the queue is at capacity, Publish blocks until a
// consumer removes an item or the context is cancelled. Consume blocks on an
// empty queue and wakes the oldest suspended publisher after removing an
// item. Ordering is strict FIFO; direct hand-off is indistinguishable from
// enqueue-then-dequeue.
type Queue[T any] struct {
	mu        sync.Mutex
	items     []T
	capacity  int
	consumers []chan T      // suspended consumers, oldest first
	producers []chan struct{} // suspended publishers, oldest first
}

// NewQueue creates a bounded queue. Capacity must be at least 1.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{capacity: capacity}
}

// Publish adds an item, blocking while the queue is full.
func (q *Queue[T]) Publish(ctx context.Context, item T) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	for {
		q.mu.Lock()

		// Direct hand-off to the oldest waiting consumer.
		if len(q.consumers) > 0 {
			ch := q.consumers[0]
			q.consumers = q.consumers[1:]
			q.mu.Unlock()
			ch <- item
			return nil
		}

		if len(q.items) < q.capacity {
			q.items = append(q.items, item)
			q.mu.Unlock()
			return nil
		}

		// Full: suspend until a consume frees a slot.
		wake := make(chan struct{}, 1)
		q.producers = append(q.producers, wake)
		q.mu.Unlock()

		select {
		case <-wake:
			// retry
		case <-ctx.Done():
			q.mu.Lock()
			q.removeProducer(wake)
			q.mu.Unlock()
			// A wake may have raced the cancellation; pass it on so the
			// slot is not lost.
			select {
			case <-wake:
				q.wakeOneProducer()
			default:
			}
			return ctx.Err()
		}
	}
}

// Consume removes and returns the oldest item, blocking while empty.
func (q *Queue[T]) Consume(ctx context.Context) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	q.mu.Lock()
	if len(q.items) > 0 {
		item := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()
		q.wakeOneProducer()
		return item, nil
	}

	ch := make(chan T, 1)
	q.consumers = append(q.consumers, ch)
	q.mu.Unlock()

	select {
	case item := <-ch:
		return item, nil
	case <-ctx.Done():
		q.mu.Lock()
		q.removeConsumer(ch)
		q.mu.Unlock()
		// An item may have been handed off concurrently; don't drop it.
		select {
		case item := <-ch:
			return item, nil
		default:
		}
		return zero, ctx.Err()
	}
}

// Len reports the current queue depth (excludes in-flight hand-offs).
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Waiting reports the number of suspended consumers.
func (q *Queue[T]) Waiting() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.consumers)
}

func (q *Queue[T]) wakeOneProducer() {
	q.mu.Lock()
	if len(q.producers) == 0 {
		q.mu.Unlock()
		return
	}
	wake := q.producers[0]
	q.producers = q.producers[1:]
	q.mu.Unlock()

	select {
	case wake <- struct{}{}:
	default:
	}
}

func (q *Queue[T]) removeProducer(target chan struct{}) {
	for i, ch := range q.producers {
		if ch == target {
			q.producers = append(q.producers[:i], q.producers[i+1:]...)
			return
		}
	}
}

func (q *Queue[T]) removeConsumer(target chan T) {
	for i, ch := range q.consumers {
		if ch == target {
			q.consumers = append(q.consumers[:i], q.consumers[i+1:]...)
			return
		}
	}
}
