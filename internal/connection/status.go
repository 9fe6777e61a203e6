package connection

import (
	"sort"
	"sync"
)

// statusReporter fans status snapshots out to subscribers in transition
// order. Snapshots older than the last delivered one are dropped.
type statusReporter struct {
	mu       sync.Mutex
	lastSeq  uint64
	queue    []Status
	draining bool

	subs   map[uint64]func(Status)
	nextID uint64
}

func newStatusReporter() *statusReporter {
	return &statusReporter{
		subs: make(map[uint64]func(Status)),
	}
}

// subscribe registers fn and returns a function that removes it.
func (r *statusReporter) subscribe(fn func(Status)) func() {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.subs[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}
}

// publish delivers s to every subscriber. A publish issued from inside a
// subscriber is queued and delivered after the current one completes.
func (r *statusReporter) publish(seq uint64, s Status) {
	r.mu.Lock()
	if seq <= r.lastSeq {
		r.mu.Unlock()
		return
	}
	r.lastSeq = seq
	r.queue = append(r.queue, s)
	if r.draining {
		r.mu.Unlock()
		return
	}

	r.draining = true
	for len(r.queue) > 0 {
		next := r.queue[0]
		r.queue = r.queue[1:]
		subs := r.subscribersLocked()
		r.mu.Unlock()

		for _, fn := range subs {
			fn(next)
		}

		r.mu.Lock()
	}
	r.draining = false
	r.mu.Unlock()
}

// reset drops every subscriber.
func (r *statusReporter) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = make(map[uint64]func(Status))
}

// subscribersLocked returns subscribers in registration order.
func (r *statusReporter) subscribersLocked() []func(Status) {
	ids := make([]uint64, 0, len(r.subs))
	for id := range r.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]func(Status), 0, len(ids))
	for _, id := range ids {
		out = append(out, r.subs[id])
	}
	return out
}
