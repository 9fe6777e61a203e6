// Package inbox provides a bounded queue that decouples socket callbacks
// from slower consumers such as the status journal and the console tail.
package inbox

import (
	"sync"
)

// Ring is a thread-safe bounded FIFO. When full, Send evicts the oldest item
// so producers never block on a slow consumer.
type Ring[T any] struct {
	mu       sync.Mutex
	cond     *sync.Cond
	buf      []T
	head     int // read position
	tail     int // write position
	count    int
	capacity int
	closed   bool

	// Stats
	totalReceived int64
	totalSent     int64
	dropped       int64
}

// New creates a ring holding at most capacity items.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	r := &Ring[T]{
		buf:      make([]T, capacity),
		capacity: capacity,
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Send appends item, evicting the oldest item when the ring is full.
// Returns false if the ring is closed.
func (r *Ring[T]) Send(item T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false
	}

	if r.count == r.capacity {
		r.popLocked()
		r.totalSent--
		r.dropped++
	}

	r.buf[r.tail] = item
	r.tail = (r.tail + 1) % r.capacity
	r.count++
	r.totalReceived++

	r.cond.Signal()
	return true
}

// Receive removes and returns the oldest item. It blocks until an item is
// available or the ring is closed, and returns false once closed and empty.
func (r *Ring[T]) Receive() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for r.count == 0 && !r.closed {
		r.cond.Wait()
	}

	if r.count == 0 {
		var zero T
		return zero, false
	}
	return r.popLocked(), true
}

// TryReceive returns the oldest item without blocking.
func (r *Ring[T]) TryReceive() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == 0 {
		var zero T
		return zero, false
	}
	return r.popLocked(), true
}

// DrainTo removes up to max items (all when max <= 0) in FIFO order.
func (r *Ring[T]) DrainTo(max int) []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == 0 {
		return nil
	}

	n := r.count
	if max > 0 && max < n {
		n = max
	}

	result := make([]T, n)
	for i := range result {
		result[i] = r.popLocked()
	}
	return result
}

// Close closes the ring. Receivers get the remaining items and then false.
func (r *Ring[T]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	r.cond.Broadcast()
}

// Len returns the number of queued items.
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Cap returns the fixed capacity.
func (r *Ring[T]) Cap() int {
	return r.capacity
}

// Stats returns ring statistics.
func (r *Ring[T]) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Count:         r.count,
		Capacity:      r.capacity,
		TotalReceived: r.totalReceived,
		TotalSent:     r.totalSent,
		Dropped:       r.dropped,
	}
}

// Stats contains ring statistics.
type Stats struct {
	Count         int   `json:"count"`
	Capacity      int   `json:"capacity"`
	TotalReceived int64 `json:"totalReceived"`
	TotalSent     int64 `json:"totalSent"`
	Dropped       int64 `json:"dropped"`
}

// popLocked removes the head item. Must be called with lock held and count > 0.
func (r *Ring[T]) popLocked() T {
	item := r.buf[r.head]
	var zero T
	r.buf[r.head] = zero // Clear reference for GC
	r.head = (r.head + 1) % r.capacity
	r.count--
	r.totalSent++
	return item
}
