package connection

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// listenerEntry is a durable event binding.
type listenerEntry struct {
	id      uuid.UUID
	handler Handler
}

// ListenerRegistry holds durable event handlers independent of any transport.
// One handler per event name; registering again replaces the previous one.
type ListenerRegistry struct {
	mu      sync.RWMutex
	entries map[string]listenerEntry
}

// NewListenerRegistry creates an empty registry.
func NewListenerRegistry() *ListenerRegistry {
	return &ListenerRegistry{
		entries: make(map[string]listenerEntry),
	}
}

// Set stores h for event and returns the id of the new binding.
func (r *ListenerRegistry) Set(event string, h Handler) uuid.UUID {
	id := uuid.New()

	r.mu.Lock()
	r.entries[event] = listenerEntry{id: id, handler: h}
	r.mu.Unlock()

	return id
}

// Delete removes the binding for event. Returns false if none existed.
func (r *ListenerRegistry) Delete(event string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[event]; !ok {
		return false
	}
	delete(r.entries, event)
	return true
}

// DeleteID removes the binding for event only if it is still the one
// identified by id.
func (r *ListenerRegistry) DeleteID(event string, id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[event]
	if !ok || entry.id != id {
		return false
	}
	delete(r.entries, event)
	return true
}

// Get returns the handler bound to event.
func (r *ListenerRegistry) Get(event string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[event]
	if !ok {
		return nil, false
	}
	return entry.handler, true
}

// Events returns the bound event names in sorted order.
func (r *ListenerRegistry) Events() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	events := make([]string, 0, len(r.entries))
	for event := range r.entries {
		events = append(events, event)
	}
	sort.Strings(events)
	return events
}

// Len returns the number of durable bindings.
func (r *ListenerRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Replay binds every durable handler onto t.
func (r *ListenerRegistry) Replay(t Transport) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for event, entry := range r.entries {
		t.On(event, entry.handler)
	}
	return len(r.entries)
}

// Clear removes every binding. Only used on full shutdown.
func (r *ListenerRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]listenerEntry)
}
