package connection

import (
	"log/slog"
	"sync"
	"time"
)

// HeartbeatSample records the last liveness exchange of the current connection.
type HeartbeatSample struct {
	LastPingSentAt     time.Time
	LastPongReceivedAt time.Time
}

// heartbeat emits periodic pings while connected and tracks pongs.
// Each Start invalidates timers from previous runs.
type heartbeat struct {
	interval   time.Duration
	staleAfter time.Duration
	clock      clock
	logger     *slog.Logger

	mu        sync.Mutex
	running   bool
	token     uint64
	timer     timer
	startedAt time.Time
	sample    HeartbeatSample
	send      func(ts int64) error
	onStale   func()
}

func newHeartbeat(interval, staleAfter time.Duration, clk clock, logger *slog.Logger) *heartbeat {
	return &heartbeat{
		interval:   interval,
		staleAfter: staleAfter,
		clock:      clk,
		logger:     logger,
	}
}

// Start begins pinging through send. onStale is called at most once, from
// a timer goroutine, when no pong arrived within staleAfter.
func (h *heartbeat) Start(send func(ts int64) error, onStale func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.stopLocked()
	h.running = true
	h.startedAt = h.clock.Now()
	h.send = send
	h.onStale = onStale
	h.arm(h.token)
}

// Stop cancels the ping timer and discards the sample.
func (h *heartbeat) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopLocked()
}

// RecordPong stores the pong arrival time. Returns false if not running.
func (h *heartbeat) RecordPong() (time.Time, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return time.Time{}, false
	}
	now := h.clock.Now()
	h.sample.LastPongReceivedAt = now
	return now, true
}

// Sample returns the current sample; ok is false when not running.
func (h *heartbeat) Sample() (HeartbeatSample, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sample, h.running
}

// Active reports whether the ping timer is armed.
func (h *heartbeat) Active() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

func (h *heartbeat) stopLocked() {
	h.running = false
	h.token++
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	h.sample = HeartbeatSample{}
	h.send = nil
	h.onStale = nil
}

// arm must be called with h.mu held.
func (h *heartbeat) arm(token uint64) {
	if h.interval <= 0 {
		return
	}
	h.timer = h.clock.AfterFunc(h.interval, func() { h.tick(token) })
}

func (h *heartbeat) tick(token uint64) {
	h.mu.Lock()
	if !h.running || token != h.token {
		h.mu.Unlock()
		return
	}

	now := h.clock.Now()
	if h.staleAfter > 0 {
		last := h.sample.LastPongReceivedAt
		if last.IsZero() {
			last = h.startedAt
		}
		if now.Sub(last) > h.staleAfter {
			onStale := h.onStale
			h.stopLocked()
			h.mu.Unlock()

			h.logger.Warn("no pong received, connection stale",
				"last_pong", last,
				"threshold", h.staleAfter,
			)
			if onStale != nil {
				onStale()
			}
			return
		}
	}

	h.sample.LastPingSentAt = now
	send := h.send
	h.arm(token)
	h.mu.Unlock()

	if err := send(now.UnixMilli()); err != nil {
		h.logger.Debug("failed to send ping", "error", err)
	}
}
