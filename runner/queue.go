package runner

import (
	"context"
)

// queue is a fixed set of staging slots cycling between a free list and a
// ready list. A slot is owned by exactly one stage between alloc and
// enque, or between deque and free, so a producer can never overwrite a
// slot its consumer still holds.
type queue[I any] struct {
	free  chan I
	ready chan I
}

func newQueue[I any](slots []I) *queue[I] {
	q := &queue[I]{
		free:  make(chan I, len(slots)),
		ready: make(chan I, len(slots)),
	}
	for _, s := range slots {
		q.free <- s
	}
	return q
}

// alloc takes a free slot, blocking until one is released
func (q *queue[I]) alloc(ctx context.Context) (I, error) {
	select {
	case s := <-q.free:
		return s, nil
	case <-ctx.Done():
		var zero I
		return zero, ctx.Err()
	}
}

// enque hands a filled slot to the consumer
func (q *queue[I]) enque(ctx context.Context, s I) error {
	select {
	case q.ready <- s:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// deque takes the oldest filled slot, blocking until one is ready
func (q *queue[I]) deque(ctx context.Context) (I, error) {
	select {
	case s := <-q.ready:
		return s, nil
	case <-ctx.Done():
		var zero I
		return zero, ctx.Err()
	}
}

// release returns a slot to the free list
func (q *queue[I]) release(s I) {
	q.free <- s
}
