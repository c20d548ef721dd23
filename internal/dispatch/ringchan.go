package dispatch

import "sync/atomic"

// RingChannel is a bounded channel-like buffer with overwrite-oldest semantics.
// Producers never block: when the buffer is full the oldest element is dropped.
//
//	rc := NewRingChannel[Event](3)
//	for i := 0; i < 10; i++ {
//	    rc.Send(ev)
//	}
//	for v := range rc.C() {
//	    ...
//	}
type RingChannel[T any] struct {
	ch          chan T
	closed      atomic.Bool
	written     atomic.Int64
	overwritten atomic.Int64
}

// NewRingChannel creates a RingChannel with the given capacity; capacity below one is raised to one.
func NewRingChannel[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// C returns the underlying receive-only channel
func (rc *RingChannel[T]) C() <-chan T {
	return rc.ch
}

// Send inserts v, discarding the oldest element if the buffer is full.
// It reports whether an element was dropped. Sends after Close are ignored.
func (rc *RingChannel[T]) Send(v T) (dropped bool) {
	if rc.closed.Load() {
		return false
	}
	for {
		select {
		case rc.ch <- v:
			rc.written.Add(1)
			return dropped
		default:
			select {
			case <-rc.ch:
				rc.overwritten.Add(1)
				dropped = true
			default:
			}
		}
	}
}

// TryReceive attempts a non-blocking receive
func (rc *RingChannel[T]) TryReceive() (v T, ok bool) {
	select {
	case v, ok = <-rc.ch:
		return v, ok
	default:
		return v, false
	}
}

func (rc *RingChannel[T]) Len() int {
	return len(rc.ch)
}

func (rc *RingChannel[T]) Cap() int {
	return cap(rc.ch)
}

// Written and Overwritten return lifetime counters
func (rc *RingChannel[T]) Written() int64 {
	return rc.written.Load()
}

func (rc *RingChannel[T]) Overwritten() int64 {
	return rc.overwritten.Load()
}

// Close closes the underlying channel; buffered values stay readable.
// The caller must ensure no Send is in flight.
func (rc *RingChannel[T]) Close() {
	if rc.closed.CompareAndSwap(false, true) {
		close(rc.ch)
	}
}
