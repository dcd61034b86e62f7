// Package mailbox provides a single-slot, latest-wins hand-off between goroutines.
package mailbox

import (
	"context"
	"sync"
	"sync/atomic"
)

// Slot holds at most one unconsumed value. Publishing over an unconsumed
// value replaces it and counts a drop. Slot is safe for any number of
// publishers; it is meant for a single consumer.
type Slot[T any] struct {
	mu        sync.Mutex // serializes drain-then-refill
	ch        chan T
	published atomic.Uint64
	dropped   atomic.Uint64
}

// Stats is a snapshot of slot counters.
type Stats struct {
	Published uint64
	Dropped   uint64
}

// New returns an empty Slot.
func New[T any]() *Slot[T] {
	return &Slot[T]{ch: make(chan T, 1)}
}

// Publish stores v, discarding any value not yet taken. It never blocks.
func (s *Slot[T]) Publish(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.ch:
		s.dropped.Add(1)
	default:
	}
	s.ch <- v // cannot block: the slot was drained under mu
	s.published.Add(1)
}

// Take blocks until a value is available or ctx is done.
func (s *Slot[T]) Take(ctx context.Context) (T, error) {
	select {
	case v := <-s.ch:
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// TryTake returns the pending value, if any, without blocking.
func (s *Slot[T]) TryTake() (T, bool) {
	select {
	case v := <-s.ch:
		return v, true
	default:
		var zero T
		return zero, false
	}
}

// C exposes the receive side for use in select statements.
func (s *Slot[T]) C() <-chan T {
	return s.ch
}

// Pending reports the number of unconsumed values (0 or 1).
func (s *Slot[T]) Pending() int {
	return len(s.ch)
}

// Stats returns publish and drop counters.
func (s *Slot[T]) Stats() Stats {
	return Stats{
		Published: s.published.Load(),
		Dropped:   s.dropped.Load(),
	}
}
