// Package queue provides the bounded FIFO connecting pipeline stages. It is
// the only shared mutable structure crossing stage boundaries; all
// synchronization lives in the channel underneath.
package queue

import "time"

type message[T any] struct {
	stop bool
	val  T
}

// Queue is a fixed-capacity FIFO with blocking-with-timeout put/get. A stop
// sentinel, distinguishable from any payload, signals consumer shutdown;
// producers enqueue at least one per consumer.
type Queue[T any] struct {
	ch chan message[T]
}

// New creates a queue with the given fixed capacity.
func New[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{ch: make(chan message[T], capacity)}
}

// Put blocks up to timeout for a free slot. It reports whether the item was
// accepted; callers own the retry/backoff/drop discipline.
func (q *Queue[T]) Put(item T, timeout time.Duration) bool {
	select {
	case q.ch <- message[T]{val: item}:
		return true
	default:
	}
	if timeout <= 0 {
		return false
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case q.ch <- message[T]{val: item}:
		return true
	case <-timer.C:
		return false
	}
}

// PutStop enqueues one stop sentinel, waiting up to timeout.
func (q *Queue[T]) PutStop(timeout time.Duration) bool {
	select {
	case q.ch <- message[T]{stop: true}:
		return true
	default:
	}
	if timeout <= 0 {
		return false
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case q.ch <- message[T]{stop: true}:
		return true
	case <-timer.C:
		return false
	}
}

// Get blocks up to timeout for an item. ok is false on timeout; stop is true
// when a shutdown sentinel was consumed (val is the zero value then).
func (q *Queue[T]) Get(timeout time.Duration) (val T, ok bool, stop bool) {
	select {
	case msg := <-q.ch:
		return msg.val, !msg.stop, msg.stop
	default:
	}
	if timeout <= 0 {
		var zero T
		return zero, false, false
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case msg := <-q.ch:
		return msg.val, !msg.stop, msg.stop
	case <-timer.C:
		var zero T
		return zero, false, false
	}
}

// Len reports the number of queued messages, sentinels included.
func (q *Queue[T]) Len() int { return len(q.ch) }

// Cap reports the fixed capacity.
func (q *Queue[T]) Cap() int { return cap(q.ch) }
