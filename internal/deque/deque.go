// Package deque provides the per-worker double-ended queue used by the
// work-stealing pool. The owner worker pushes and pops at the bottom (LIFO,
// cache-warm work stays local); thieves steal from the top (FIFO, older work
// migrates first). A single mutex serializes all access; the external
// contract is that of a Chase-Lev deque.
package deque

import "sync"

// Deque is a bounded-only-by-memory concurrent double-ended queue.
// The zero value is ready to use.
type Deque[T any] struct {
	mu    sync.Mutex
	items []T
}

// New returns an empty deque.
func New[T any]() *Deque[T] {
	return &Deque[T]{}
}

// PushBottom appends x at the tail. Owner-called; never fails.
func (d *Deque[T]) PushBottom(x T) {
	d.mu.Lock()
	d.items = append(d.items, x)
	d.mu.Unlock()
}

// PopBottom removes and returns the tail element. Owner-called.
func (d *Deque[T]) PopBottom() (T, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var zero T
	n := len(d.items)
	if n == 0 {
		return zero, false
	}
	x := d.items[n-1]
	d.items[n-1] = zero
	d.items = d.items[:n-1]
	return x, true
}

// StealTop removes and returns the head element. Safe under concurrent
// thieves.
func (d *Deque[T]) StealTop() (T, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var zero T
	if len(d.items) == 0 {
		return zero, false
	}
	x := d.items[0]
	d.items[0] = zero
	d.items = d.items[1:]
	return x, true
}

// Empty reports whether the deque held no elements at some point during the
// call. The answer may be stale by the time the caller acts on it.
func (d *Deque[T]) Empty() bool {
	return d.Len() == 0
}

// Len returns the number of queued elements.
func (d *Deque[T]) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.items)
}
