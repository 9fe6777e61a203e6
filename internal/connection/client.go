package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/stayspot-realtime/internal/socketio"
	"github.com/rickgao/stayspot-realtime/internal/version"
)

// wsTransport is a Socket.IO v5 client over a single WebSocket.
type wsTransport struct {
	cfg    TransportConfig
	hooks  Hooks
	logger *slog.Logger

	conn *websocket.Conn
	done chan struct{}

	// Write serialization
	writeMu sync.Mutex

	// State
	mu         sync.RWMutex
	handlers   map[string]Handler
	once       map[string]Handler
	acks       map[uint64]AckFunc
	nextAck    uint64
	handshake  socketio.Handshake
	connected  bool
	closed     bool
	lastPingAt time.Time
}

// NewWebSocketTransport creates a Socket.IO transport. It satisfies Dialer.
func NewWebSocketTransport(cfg TransportConfig, hooks Hooks) Transport {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = socketio.DefaultNamespace
	}

	return &wsTransport{
		cfg:      cfg,
		hooks:    hooks,
		logger:   logger,
		done:     make(chan struct{}),
		handlers: make(map[string]Handler),
		once:     make(map[string]Handler),
		acks:     make(map[uint64]AckFunc),
	}
}

// EndpointURL builds the WebSocket endpoint for a server base URL.
func EndpointURL(base, path string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", base, err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", base)
	}

	if path == "" {
		path = "/socket.io/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + path

	q := u.Query()
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Connect dials the server and completes the Engine.IO and Socket.IO
// handshakes.
func (t *wsTransport) Connect(ctx context.Context) error {
	t.mu.RLock()
	closed := t.closed
	t.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	if _, ok := ctx.Deadline(); !ok && t.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.ConnectTimeout)
		defer cancel()
	}

	endpoint, err := EndpointURL(t.cfg.URL, t.cfg.Path)
	if err != nil {
		return err
	}

	// Build headers
	header := http.Header{}
	header.Set("User-Agent", version.UserAgent())
	if t.cfg.Credentials.Token != "" {
		header.Set("Authorization", "Bearer "+t.cfg.Credentials.Token)
	}

	conn, resp, err := t.dialer().DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return fmt.Errorf("%w: upgrade returned %s", ErrAuthRejected, resp.Status)
		}
		return fmt.Errorf("dial %s: %w", endpoint, err)
	}

	// Abort blocking handshake reads when ctx ends.
	stop := context.AfterFunc(ctx, func() { conn.Close() })

	hs, err := t.negotiate(ctx, conn)
	if !stop() {
		conn.Close()
		if err == nil {
			err = ctx.Err()
		}
	}
	if err != nil {
		conn.Close()
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ErrAuthRejected) {
			return fmt.Errorf("%w: %w", ErrHandshake, ctxErr)
		}
		return err
	}
	conn.SetReadDeadline(time.Time{})

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	t.conn = conn
	t.handshake = hs
	t.connected = true
	t.lastPingAt = time.Now()
	t.mu.Unlock()

	go t.readLoop()
	go t.heartbeatLoop(hs.Interval(), hs.Timeout())

	t.logger.Debug("socket connected",
		"url", endpoint,
		"namespace", t.cfg.Namespace,
		"sid", hs.SID,
		"ping_interval", hs.Interval(),
	)
	return nil
}

// negotiate reads OPEN, sends CONNECT with the auth payload and waits for
// the namespace CONNECT or CONNECT_ERROR.
func (t *wsTransport) negotiate(ctx context.Context, conn *websocket.Conn) (socketio.Handshake, error) {
	if dl, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(dl)
	}

	_, frame, err := conn.ReadMessage()
	if err != nil {
		return socketio.Handshake{}, fmt.Errorf("%w: read open: %w", ErrHandshake, err)
	}
	et, payload, err := socketio.DecodeEngine(frame)
	if err != nil {
		return socketio.Handshake{}, fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	if et != socketio.EngineOpen {
		return socketio.Handshake{}, fmt.Errorf("%w: expected open packet, got %q", ErrHandshake, byte(et))
	}
	hs, err := socketio.ParseHandshake(payload)
	if err != nil {
		return socketio.Handshake{}, fmt.Errorf("%w: %w", ErrHandshake, err)
	}

	auth, err := json.Marshal(t.cfg.Credentials)
	if err != nil {
		return socketio.Handshake{}, fmt.Errorf("marshal auth: %w", err)
	}
	connect := socketio.Packet{Type: socketio.PacketConnect, Namespace: t.cfg.Namespace, Data: auth}
	if err := conn.WriteMessage(websocket.TextMessage, connect.Frame()); err != nil {
		return socketio.Handshake{}, fmt.Errorf("%w: send connect: %w", ErrHandshake, err)
	}

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return socketio.Handshake{}, fmt.Errorf("%w: await connect: %w", ErrHandshake, err)
		}
		et, payload, err := socketio.DecodeEngine(frame)
		if err != nil {
			return socketio.Handshake{}, fmt.Errorf("%w: %w", ErrHandshake, err)
		}

		switch et {
		case socketio.EnginePing:
			pong := socketio.EncodeEngine(socketio.EnginePong, payload)
			if err := conn.WriteMessage(websocket.TextMessage, pong); err != nil {
				return socketio.Handshake{}, fmt.Errorf("%w: send pong: %w", ErrHandshake, err)
			}
			continue
		case socketio.EngineClose:
			return socketio.Handshake{}, fmt.Errorf("%w: server closed during handshake", ErrHandshake)
		case socketio.EngineMessage:
		default:
			continue
		}

		p, err := socketio.DecodePacket(payload)
		if err != nil {
			return socketio.Handshake{}, fmt.Errorf("%w: %w", ErrHandshake, err)
		}
		if p.Namespace != t.cfg.Namespace {
			continue
		}
		switch p.Type {
		case socketio.PacketConnect:
			return hs, nil
		case socketio.PacketConnectError:
			return socketio.Handshake{}, fmt.Errorf("%w: %s", ErrAuthRejected, socketio.ConnectErrorMessage(p.Data))
		}
	}
}

// Emit sends an EVENT packet. With a non-nil ack the packet carries an id
// and ack runs when the server acknowledges it.
func (t *wsTransport) Emit(event string, payload any, ack AckFunc) error {
	var args []any
	if payload != nil {
		args = append(args, payload)
	}
	data, err := socketio.EventData(event, args...)
	if err != nil {
		return err
	}

	p := socketio.Packet{Type: socketio.PacketEvent, Namespace: t.cfg.Namespace, Data: data}

	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return ErrNotConnected
	}
	if ack != nil {
		t.nextAck++
		p.ID = t.nextAck
		p.HasID = true
		t.acks[p.ID] = ack
	}
	t.mu.Unlock()

	if err := t.write(p.Frame()); err != nil {
		if p.HasID {
			t.mu.Lock()
			delete(t.acks, p.ID)
			t.mu.Unlock()
		}
		return err
	}
	return nil
}

// On binds h to event.
func (t *wsTransport) On(event string, h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[event] = h
}

// Off removes the binding for event.
func (t *wsTransport) Off(event string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.handlers, event)
	delete(t.once, event)
}

// Once binds h for one delivery of event.
func (t *wsTransport) Once(event string, h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.once[event] = h
}

// dialer bounds the upgrade by the connect timeout. Zero leaves it to ctx.
func (t *wsTransport) dialer() *websocket.Dialer {
	return &websocket.Dialer{
		HandshakeTimeout: t.cfg.ConnectTimeout,
	}
}

// OffOnce drops the pending one-shot binding for event.
func (t *wsTransport) OffOnce(event string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.once, event)
}

// Connected reports whether the socket is usable.
func (t *wsTransport) Connected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}

// Close sends a namespace DISCONNECT and closes the socket.
func (t *wsTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.connected = false
	conn := t.conn
	t.acks = make(map[uint64]AckFunc)
	t.mu.Unlock()

	// Signal goroutines to stop
	close(t.done)

	if conn == nil {
		return nil
	}

	disconnect := socketio.Packet{Type: socketio.PacketDisconnect, Namespace: t.cfg.Namespace}
	t.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(time.Second))
	conn.WriteMessage(websocket.TextMessage, disconnect.Frame())
	t.writeMu.Unlock()

	conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return conn.Close()
}

func (t *wsTransport) write(frame []byte) error {
	t.mu.RLock()
	conn := t.conn
	t.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.cfg.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	}
	return conn.WriteMessage(websocket.TextMessage, frame)
}

// drop tears the socket down after a remote or network failure and reports
// reason. No-op once Close has run.
func (t *wsTransport) drop(reason string) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.connected = false
	conn := t.conn
	t.acks = make(map[uint64]AckFunc)
	t.mu.Unlock()

	close(t.done)
	if conn != nil {
		conn.Close()
	}

	t.logger.Debug("socket dropped", "reason", reason)
	if t.hooks.OnDisconnect != nil {
		t.hooks.OnDisconnect(reason)
	}
}

// readLoop reads frames until the socket fails or is closed.
func (t *wsTransport) readLoop() {
	for {
		select {
		case <-t.done:
			return
		default:
		}

		_, data, err := t.conn.ReadMessage()
		if err != nil {
			// Ignore errors after Close() is called
			select {
			case <-t.done:
				return
			default:
			}

			reason := ReasonTransportError
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				reason = ReasonTransportClose
			}
			t.logger.Debug("socket read failed", "error", err)
			t.drop(reason)
			return
		}

		t.handleFrame(data)
	}
}

func (t *wsTransport) handleFrame(frame []byte) {
	et, payload, err := socketio.DecodeEngine(frame)
	if err != nil {
		t.logger.Warn("discarding malformed frame", "error", err)
		return
	}

	switch et {
	case socketio.EnginePing:
		t.mu.Lock()
		t.lastPingAt = time.Now()
		t.mu.Unlock()
		if err := t.write(socketio.EncodeEngine(socketio.EnginePong, payload)); err != nil {
			t.logger.Debug("failed to send pong", "error", err)
		}
	case socketio.EngineClose:
		t.drop(ReasonTransportClose)
	case socketio.EngineMessage:
		t.handlePacket(payload)
	}
}

func (t *wsTransport) handlePacket(data []byte) {
	p, err := socketio.DecodePacket(data)
	if err != nil {
		t.logger.Warn("discarding malformed packet", "error", err)
		if t.hooks.OnError != nil {
			t.hooks.OnError(err)
		}
		return
	}
	if p.Namespace != t.cfg.Namespace {
		return
	}

	switch p.Type {
	case socketio.PacketEvent:
		name, args, err := socketio.ParseEvent(p.Data)
		if err != nil {
			t.logger.Warn("discarding malformed event", "error", err)
			return
		}
		if p.HasID {
			t.logger.Debug("server requested ack, not supported", "event", name, "id", p.ID)
		}
		t.dispatch(name, args)

	case socketio.PacketAck:
		args, err := socketio.ParseArgs(p.Data)
		if err != nil {
			t.logger.Warn("discarding malformed ack", "error", err)
			return
		}
		t.mu.Lock()
		ack, ok := t.acks[p.ID]
		delete(t.acks, p.ID)
		t.mu.Unlock()
		if ok {
			ack(args)
		}

	case socketio.PacketDisconnect:
		t.drop(ReasonServerDisconnect)

	case socketio.PacketConnectError:
		if t.hooks.OnAuthError != nil {
			t.hooks.OnAuthError(fmt.Errorf("%w: %s", ErrAuthRejected, socketio.ConnectErrorMessage(p.Data)))
		}
	}
}

// dispatch routes reserved events to hooks, then calls bound handlers with
// the first argument.
func (t *wsTransport) dispatch(name string, args []json.RawMessage) {
	first := json.RawMessage("null")
	if len(args) > 0 {
		first = args[0]
	}

	switch name {
	case EventError:
		if t.hooks.OnError != nil {
			t.hooks.OnError(errors.New(eventMessage(first)))
		}
	case EventAuthError:
		if t.hooks.OnAuthError != nil {
			t.hooks.OnAuthError(fmt.Errorf("%w: %s", ErrAuthRejected, eventMessage(first)))
		}
	case EventPong:
		var ts int64
		if err := json.Unmarshal(first, &ts); err != nil {
			t.logger.Debug("pong without timestamp", "payload", string(first))
		}
		if t.hooks.OnPong != nil {
			t.hooks.OnPong(ts)
		}
	}

	t.mu.Lock()
	h := t.handlers[name]
	o, hasOnce := t.once[name]
	delete(t.once, name)
	t.mu.Unlock()

	if h != nil {
		h(first)
	}
	if hasOnce {
		o(first)
	}
}

// heartbeatLoop drops the socket when the server stops pinging.
func (t *wsTransport) heartbeatLoop(interval, timeout time.Duration) {
	if interval <= 0 {
		return
	}
	limit := interval + timeout

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.mu.RLock()
			lastPing := t.lastPingAt
			t.mu.RUnlock()

			if time.Since(lastPing) > limit {
				t.logger.Warn("no ping received, connection stale",
					"last_ping", lastPing,
					"timeout", limit,
					"error", ErrStaleConnection,
				)
				t.drop(ReasonPingTimeout)
				return
			}
		}
	}
}

// eventMessage extracts a human readable message from an error payload.
func eventMessage(data json.RawMessage) string {
	var s string
	if err := json.Unmarshal(data, &s); err == nil && s != "" {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	return string(data)
}
