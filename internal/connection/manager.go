package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Manager owns the single realtime connection: transport lifecycle,
// reconnection, heartbeat and durable listeners.
type Manager interface {
	// Connect opens the connection with creds. No-op while connected or
	// connecting.
	Connect(creds Credentials) error

	// Disconnect closes the connection and cancels pending retries.
	Disconnect()

	// ForceReconnect disconnects and connects again after a fixed delay,
	// bypassing backoff.
	ForceReconnect()

	// Close disconnects, drops every listener and subscriber, and rejects
	// further Connect calls.
	Close() error

	// Send emits an event on the live transport. Returns ErrNotConnected
	// unless connected.
	Send(event string, payload any, ack AckFunc) error

	// On registers a durable handler and returns its unsubscribe function.
	On(event string, h Handler) func()

	// Off removes the durable handler for event.
	Off(event string)

	// Once binds h to the live transport only. Returns false when not connected.
	Once(event string, h Handler) bool

	// OffOnce drops a pending Once binding for event on the live transport.
	// The durable handler for event is kept.
	OffOnce(event string)

	// IsConnected reports the state flag and the transport's own view.
	IsConnected() bool

	// State returns the current lifecycle state.
	State() State

	// Status returns a snapshot for consumers.
	Status() Status

	// Subscribe registers fn for every status transition.
	Subscribe(fn func(Status)) func()

	// ClearError removes the last error from status.
	ClearError()

	// Credentials returns the credentials of the last Connect call.
	Credentials() Credentials

	// Heartbeat returns the liveness sample of the current connection.
	Heartbeat() (HeartbeatSample, bool)
}

// pendingReconnect is a scheduled retry.
type pendingReconnect struct {
	attempt int
	delay   time.Duration
	token   uint64
	timer   timer
}

// manager implements the Manager interface.
type manager struct {
	cfg    ManagerConfig
	dial   Dialer
	policy Backoff
	clock  clock
	logger *slog.Logger

	registry  *ListenerRegistry
	heartbeat *heartbeat
	reporter  *statusReporter

	mu         sync.Mutex
	state      State
	creds      Credentials
	hasCreds   bool
	transport  Transport
	gen        uint64 // Incremented per transport; stale hooks compare against it
	cancelDial context.CancelFunc
	attempts   int
	pending    *pendingReconnect
	force      timer
	forceToken uint64
	timerSeq   uint64
	seq        uint64

	lastActivity time.Time
	lastErr      string
	errKind      ErrorKind
	closed       bool
}

// NewManager creates a connection manager. dial creates one transport per
// connection attempt.
func NewManager(cfg ManagerConfig, dial Dialer, logger *slog.Logger) Manager {
	return newManager(cfg, dial, realClock{}, logger)
}

func newManager(cfg ManagerConfig, dial Dialer, clk clock, logger *slog.Logger) *manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &manager{
		cfg:       cfg,
		dial:      dial,
		policy:    NewBackoff(cfg),
		clock:     clk,
		logger:    logger,
		registry:  NewListenerRegistry(),
		heartbeat: newHeartbeat(cfg.HeartbeatInterval, cfg.HeartbeatStaleAfter, clk, logger),
		reporter:  newStatusReporter(),
	}
}

// Connect opens the connection.
func (m *manager) Connect(creds Credentials) error {
	if err := creds.Validate(); err != nil {
		m.logger.Warn("connect refused", "error", err)
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.state == StateConnected || m.state == StateConnecting {
		m.mu.Unlock()
		return nil
	}

	m.creds = creds
	m.hasCreds = true
	m.cancelTimersLocked()
	m.attempts = 0
	m.openLocked()
	seq, snap := m.snapshotLocked()
	m.mu.Unlock()

	m.reporter.publish(seq, snap)
	return nil
}

// Disconnect closes the connection. Idempotent.
func (m *manager) Disconnect() {
	m.mu.Lock()
	prev := m.state
	m.disconnectLocked()
	seq, snap := m.snapshotLocked()
	m.mu.Unlock()

	if prev != StateDisconnected {
		m.logger.Info("disconnected", "previous_state", prev)
	}
	m.reporter.publish(seq, snap)
}

// ForceReconnect disconnects and reconnects after ForceReconnectDelay.
func (m *manager) ForceReconnect() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}

	m.disconnectLocked()
	if m.hasCreds {
		m.timerSeq++
		token := m.timerSeq
		m.forceToken = token
		m.force = m.clock.AfterFunc(m.cfg.ForceReconnectDelay, func() { m.forceConnect(token) })
		m.logger.Info("forcing reconnection", "delay", m.cfg.ForceReconnectDelay)
	} else {
		m.logger.Warn("force reconnect without credentials, staying disconnected")
	}
	seq, snap := m.snapshotLocked()
	m.mu.Unlock()

	m.reporter.publish(seq, snap)
}

// Close shuts the manager down for good.
func (m *manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.disconnectLocked()
	m.closed = true
	m.registry.Clear()
	seq, snap := m.snapshotLocked()
	m.mu.Unlock()

	m.reporter.publish(seq, snap)
	m.reporter.reset()
	m.logger.Info("connection manager closed")
	return nil
}

// Send emits on the live transport.
func (m *manager) Send(event string, payload any, ack AckFunc) error {
	m.mu.Lock()
	t := m.transport
	ready := m.state == StateConnected && t != nil
	m.mu.Unlock()

	if !ready {
		return ErrNotConnected
	}

	if err := t.Emit(event, payload, ack); err != nil {
		m.recordError(KindEmit, err)
		return fmt.Errorf("emit %s: %w", event, err)
	}
	return nil
}

// On registers a durable handler.
func (m *manager) On(event string, h Handler) func() {
	if event == "" || h == nil {
		return func() {}
	}

	m.mu.Lock()
	id := m.registry.Set(event, h)
	if m.transport != nil {
		m.transport.On(event, h)
	}
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.registry.DeleteID(event, id) && m.transport != nil {
			m.transport.Off(event)
		}
	}
}

// Off removes the durable handler for event.
func (m *manager) Off(event string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.registry.Delete(event)
	if m.transport != nil {
		m.transport.Off(event)
	}
}

// Once binds h to the live transport for a single delivery.
func (m *manager) Once(event string, h Handler) bool {
	if event == "" || h == nil {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateConnected || m.transport == nil {
		return false
	}
	m.transport.Once(event, h)
	return true
}

// OffOnce drops a pending one-shot binding without touching the registry.
func (m *manager) OffOnce(event string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.transport != nil {
		m.transport.OffOnce(event)
	}
}

// IsConnected double-checks the state flag against the transport.
func (m *manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateConnected && m.transport != nil && m.transport.Connected()
}

// State returns the current state.
func (m *manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Status returns a snapshot.
func (m *manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

// Subscribe registers fn for status transitions.
func (m *manager) Subscribe(fn func(Status)) func() {
	return m.reporter.subscribe(fn)
}

// ClearError removes the last error.
func (m *manager) ClearError() {
	m.mu.Lock()
	m.lastErr = ""
	m.errKind = KindNone
	seq, snap := m.snapshotLocked()
	m.mu.Unlock()

	m.reporter.publish(seq, snap)
}

// Credentials returns the last credentials passed to Connect.
func (m *manager) Credentials() Credentials {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creds
}

// Heartbeat returns the current liveness sample.
func (m *manager) Heartbeat() (HeartbeatSample, bool) {
	return m.heartbeat.Sample()
}

// openLocked dials a new transport, replays durable listeners onto it and
// starts the handshake in the background.
func (m *manager) openLocked() {
	m.gen++
	gen := m.gen

	t := m.dial(m.transportConfig(), m.hooks(gen))
	m.transport = t
	replayed := m.registry.Replay(t)

	ctx, cancel := context.WithCancel(context.Background())
	if m.cfg.ConnectTimeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), m.cfg.ConnectTimeout)
	}
	m.cancelDial = cancel
	m.state = StateConnecting

	m.logger.Debug("connecting",
		"url", m.cfg.URL,
		"namespace", m.cfg.Namespace,
		"attempt", m.attempts,
		"listeners", replayed,
	)

	go m.handshake(ctx, gen, t)
}

// handshake waits for the transport to connect and applies the outcome.
func (m *manager) handshake(ctx context.Context, gen uint64, t Transport) {
	err := t.Connect(ctx)

	m.mu.Lock()
	if gen != m.gen || m.transport != t {
		m.mu.Unlock()
		return
	}
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}

	if err != nil {
		m.handshakeFailedLocked(err)
	} else {
		m.state = StateConnected
		m.attempts = 0
		m.pending = nil
		m.lastErr = ""
		m.errKind = KindNone
		m.lastActivity = m.clock.Now()
		m.heartbeat.Start(
			func(ts int64) error { return t.Emit(EventPing, ts, nil) },
			func() { m.handleDrop(gen, ReasonPingTimeout) },
		)
		m.logger.Info("connected", "url", m.cfg.URL, "namespace", m.cfg.Namespace)
	}
	seq, snap := m.snapshotLocked()
	m.mu.Unlock()

	m.reporter.publish(seq, snap)
}

// handshakeFailedLocked classifies a failed handshake.
func (m *manager) handshakeFailedLocked(err error) {
	m.closeTransportLocked()

	if errors.Is(err, ErrAuthRejected) {
		m.logger.Error("authentication rejected", "error", err)
		m.lastErr = err.Error()
		m.errKind = KindAuth
		m.attempts = 0
		m.state = StateDisconnected
		return
	}

	m.logger.Warn("connection failed", "error", err, "attempt", m.attempts)
	m.lastErr = err.Error()
	m.errKind = KindConnect
	m.scheduleReconnectLocked()
}

// scheduleReconnectLocked arms the retry timer or gives up.
func (m *manager) scheduleReconnectLocked() {
	failures := m.attempts + 1
	if m.policy.Exhausted(failures) {
		m.pending = nil
		m.state = StateFailed
		m.lastErr = MsgMaxAttempts
		m.errKind = KindMaxRetries
		m.logger.Error("giving up reconnection",
			"failures", failures,
			"max_attempts", m.policy.MaxAttempts,
		)
		return
	}

	delay := m.policy.Delay(m.attempts)
	m.timerSeq++
	token := m.timerSeq
	p := &pendingReconnect{attempt: failures, delay: delay, token: token}
	p.timer = m.clock.AfterFunc(delay, func() { m.retry(token) })
	m.pending = p
	m.state = StateReconnecting

	m.logger.Info("scheduling reconnection", "delay", delay, "attempt", failures)
}

// retry fires when a reconnect delay elapses.
func (m *manager) retry(token uint64) {
	m.mu.Lock()
	if m.closed || m.pending == nil || m.pending.token != token || m.state != StateReconnecting {
		m.mu.Unlock()
		return
	}
	m.pending = nil
	m.attempts++
	m.openLocked()
	seq, snap := m.snapshotLocked()
	m.mu.Unlock()

	m.reporter.publish(seq, snap)
}

// forceConnect fires when the ForceReconnect delay elapses.
func (m *manager) forceConnect(token uint64) {
	m.mu.Lock()
	if m.closed || m.force == nil || m.forceToken != token {
		m.mu.Unlock()
		return
	}
	m.force = nil
	creds := m.creds
	m.mu.Unlock()

	if err := m.Connect(creds); err != nil {
		m.logger.Warn("forced reconnection failed", "error", err)
	}
}

// handleDrop reacts to the transport going away.
func (m *manager) handleDrop(gen uint64, reason string) {
	m.mu.Lock()
	if gen != m.gen || m.transport == nil {
		m.mu.Unlock()
		return
	}
	if m.state != StateConnected && m.state != StateConnecting {
		m.mu.Unlock()
		return
	}

	m.heartbeat.Stop()
	m.closeTransportLocked()

	if Recoverable(reason) {
		m.logger.Warn("connection lost", "reason", reason)
		m.scheduleReconnectLocked()
	} else {
		m.logger.Info("connection closed", "reason", reason)
		m.attempts = 0
		m.state = StateDisconnected
	}
	seq, snap := m.snapshotLocked()
	m.mu.Unlock()

	m.reporter.publish(seq, snap)
}

// handleAuthError disconnects without retry.
func (m *manager) handleAuthError(gen uint64, err error) {
	m.mu.Lock()
	if gen != m.gen || m.transport == nil {
		m.mu.Unlock()
		return
	}

	m.logger.Error("socket authentication error", "error", err)
	m.disconnectLocked()
	m.lastErr = MsgAuthFailed
	m.errKind = KindAuth
	seq, snap := m.snapshotLocked()
	m.mu.Unlock()

	m.reporter.publish(seq, snap)
}

// handleError records a transport error without changing state.
func (m *manager) handleError(gen uint64, err error) {
	m.mu.Lock()
	stale := gen != m.gen || m.transport == nil
	m.mu.Unlock()
	if stale {
		return
	}

	m.logger.Error("socket error", "error", err)
	m.recordError(KindTransport, err)
}

// handlePong records liveness.
func (m *manager) handlePong(gen uint64, ts int64) {
	m.mu.Lock()
	if gen != m.gen || m.transport == nil {
		m.mu.Unlock()
		return
	}

	at, ok := m.heartbeat.RecordPong()
	if !ok {
		m.mu.Unlock()
		return
	}
	m.lastActivity = at
	seq, snap := m.snapshotLocked()
	m.mu.Unlock()

	m.logger.Debug("pong received", "echo_ts", ts)
	m.reporter.publish(seq, snap)
}

func (m *manager) recordError(kind ErrorKind, err error) {
	m.mu.Lock()
	m.lastErr = err.Error()
	m.errKind = kind
	seq, snap := m.snapshotLocked()
	m.mu.Unlock()

	m.reporter.publish(seq, snap)
}

// disconnectLocked tears everything down and resets the retry counter.
func (m *manager) disconnectLocked() {
	m.cancelTimersLocked()
	m.heartbeat.Stop()
	m.closeTransportLocked()
	m.attempts = 0
	m.state = StateDisconnected
}

func (m *manager) cancelTimersLocked() {
	if m.pending != nil {
		m.pending.timer.Stop()
		m.pending = nil
	}
	if m.force != nil {
		m.force.Stop()
		m.force = nil
	}
}

func (m *manager) closeTransportLocked() {
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	if m.transport == nil {
		return
	}
	t := m.transport
	m.transport = nil
	if err := t.Close(); err != nil {
		m.logger.Debug("close transport", "error", err)
	}
}

func (m *manager) transportConfig() TransportConfig {
	return TransportConfig{
		URL:            m.cfg.URL,
		Path:           m.cfg.Path,
		Namespace:      m.cfg.Namespace,
		Credentials:    m.creds,
		ConnectTimeout: m.cfg.ConnectTimeout,
		WriteTimeout:   m.cfg.WriteTimeout,
		Logger:         m.logger.With("component", "transport"),
	}
}

func (m *manager) hooks(gen uint64) Hooks {
	return Hooks{
		OnDisconnect: func(reason string) { m.handleDrop(gen, reason) },
		OnError:      func(err error) { m.handleError(gen, err) },
		OnAuthError:  func(err error) { m.handleAuthError(gen, err) },
		OnPong:       func(ts int64) { m.handlePong(gen, ts) },
	}
}

func (m *manager) statusLocked() Status {
	return Status{
		State:             m.state,
		Connected:         m.state == StateConnected,
		ReconnectAttempts: m.attempts,
		LastActivity:      m.lastActivity,
		Error:             m.lastErr,
		ErrorKind:         m.errKind,
	}
}

// snapshotLocked returns the next sequence number and the current status.
func (m *manager) snapshotLocked() (uint64, Status) {
	m.seq++
	return m.seq, m.statusLocked()
}
