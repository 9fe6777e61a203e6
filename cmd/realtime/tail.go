package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"time"

	"github.com/rickgao/stayspot-realtime/internal/gateway"
	"github.com/rickgao/stayspot-realtime/internal/inbox"
)

// tailEvent is one inbound event printed by the tail.
type tailEvent struct {
	Event      string          `json:"event"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"receivedAt"`
}

// tail copies selected inbound events to an output as JSON lines. Socket
// callbacks only enqueue; a single goroutine writes.
type tail struct {
	events []string
	queue  *inbox.Ring[tailEvent]
	out    io.Writer
	logger *slog.Logger
	now    func() time.Time
}

func newTail(events []string, bufferSize int, out io.Writer, logger *slog.Logger) *tail {
	return &tail{
		events: events,
		queue:  inbox.New[tailEvent](bufferSize),
		out:    out,
		logger: logger,
		now:    time.Now,
	}
}

// bind registers a durable handler per tailed event.
func (t *tail) bind(gw *gateway.Gateway) {
	for _, event := range t.events {
		gw.On(event, func(payload json.RawMessage) {
			t.queue.Send(tailEvent{
				Event:      event,
				Payload:    payload,
				ReceivedAt: t.now(),
			})
		})
	}
}

// run writes queued events until close. Always returns nil.
func (t *tail) run() error {
	enc := json.NewEncoder(t.out)
	for {
		ev, ok := t.queue.Receive()
		if !ok {
			return nil
		}
		if err := enc.Encode(ev); err != nil {
			t.logger.Warn("failed to write event", "event", ev.Event, "error", err)
		}
	}
}

func (t *tail) close() {
	if dropped := t.queue.Stats().Dropped; dropped > 0 {
		t.logger.Warn("tail dropped events", "dropped", dropped)
	}
	t.queue.Close()
}
