package connection

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

type emitCall struct {
	event   string
	payload any
	ack     AckFunc
}

// fakeTransport is an in-memory Transport. Connect blocks until the test
// resolves it with accept or reject.
type fakeTransport struct {
	cfg   TransportConfig
	hooks Hooks

	result chan error

	mu        sync.Mutex
	handlers  map[string]Handler
	once      map[string]Handler
	emitted   []emitCall
	onCalls   []string
	offCalls  []string
	connected bool
	closed    bool
	emitErr   error
}

func newFakeTransport(cfg TransportConfig, hooks Hooks) *fakeTransport {
	return &fakeTransport{
		cfg:      cfg,
		hooks:    hooks,
		result:   make(chan error, 1),
		handlers: make(map[string]Handler),
		once:     make(map[string]Handler),
	}
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	select {
	case err := <-f.result:
		if err != nil {
			return err
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.closed {
			return ErrClosed
		}
		f.connected = true
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeTransport) Emit(event string, payload any, ack AckFunc) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.emitErr != nil {
		return f.emitErr
	}
	if !f.connected {
		return ErrNotConnected
	}
	f.emitted = append(f.emitted, emitCall{event: event, payload: payload, ack: ack})
	return nil
}

func (f *fakeTransport) On(event string, h Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[event] = h
	f.onCalls = append(f.onCalls, event)
}

func (f *fakeTransport) Off(event string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, event)
	f.offCalls = append(f.offCalls, event)
}

func (f *fakeTransport) Once(event string, h Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.once[event] = h
}

func (f *fakeTransport) OffOnce(event string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.once, event)
}

func (f *fakeTransport) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.connected = false
	return nil
}

func (f *fakeTransport) accept()          { f.result <- nil }
func (f *fakeTransport) reject(err error) { f.result <- err }

// drop simulates the server or network ending the session.
func (f *fakeTransport) drop(reason string) {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	f.hooks.OnDisconnect(reason)
}

// deliver simulates an inbound event.
func (f *fakeTransport) deliver(event string, payload any) {
	data, _ := json.Marshal(payload)

	f.mu.Lock()
	h := f.handlers[event]
	o, hasOnce := f.once[event]
	delete(f.once, event)
	f.mu.Unlock()

	if h != nil {
		h(data)
	}
	if hasOnce {
		o(data)
	}
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeTransport) bound(event string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.handlers[event]
	return ok
}

func (f *fakeTransport) emits() []emitCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]emitCall, len(f.emitted))
	copy(out, f.emitted)
	return out
}

// fakeDialer records every transport the manager creates.
type fakeDialer struct {
	mu         sync.Mutex
	transports []*fakeTransport
}

func (d *fakeDialer) dial(cfg TransportConfig, hooks Hooks) Transport {
	t := newFakeTransport(cfg, hooks)
	d.mu.Lock()
	d.transports = append(d.transports, t)
	d.mu.Unlock()
	return t
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.transports)
}

func (d *fakeDialer) last() *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.transports) == 0 {
		return nil
	}
	return d.transports[len(d.transports)-1]
}

var errRefused = errors.New("dial tcp 127.0.0.1:5000: connect: connection refused")

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
