package connection

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrMissingToken    = errors.New("authentication token required")
	ErrClosed          = errors.New("connection manager closed")
	ErrAuthRejected    = errors.New("authentication rejected")
	ErrHandshake       = errors.New("handshake failed")
	ErrStaleConnection = errors.New("no ping from server, connection stale")
)

// Status error messages surfaced to consumers.
const (
	MsgMaxAttempts = "Maximum reconnection attempts reached"
	MsgAuthFailed  = "Authentication failed"
)

// State is the lifecycle state of the connection.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON status output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ErrorKind classifies failures captured into Status.
type ErrorKind string

const (
	KindNone       ErrorKind = ""
	KindConnect    ErrorKind = "connect"     // handshake or dial failure, retried
	KindAuth       ErrorKind = "auth"        // credentials rejected, never retried
	KindEmit       ErrorKind = "emit"        // live transport refused a send
	KindMaxRetries ErrorKind = "max_retries" // backoff exhausted
	KindTransport  ErrorKind = "transport"   // runtime transport error, no transition
)

// Error is a classified connection failure.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Disconnect reasons reported by a Transport.
const (
	ReasonServerDisconnect = "io server disconnect"
	ReasonClientDisconnect = "io client disconnect"
	ReasonTransportClose   = "transport close"
	ReasonTransportError   = "transport error"
	ReasonPingTimeout      = "ping timeout"
)

// Reserved event names.
const (
	EventPing      = "ping"
	EventPong      = "pong"
	EventError     = "error"
	EventAuthError = "auth_error"
)

// Recoverable reports whether a disconnect reason should trigger a retry.
func Recoverable(reason string) bool {
	switch reason {
	case ReasonServerDisconnect, ReasonTransportClose, ReasonTransportError, ReasonPingTimeout:
		return true
	default:
		return false
	}
}

// Credentials identify the user for the connection handshake.
type Credentials struct {
	Token     string `json:"token"`
	UserID    string `json:"userId,omitempty"`
	CompanyID string `json:"companyId,omitempty"`
}

// Validate checks that a token is present.
func (c Credentials) Validate() error {
	if c.Token == "" {
		return ErrMissingToken
	}
	return nil
}

// Handler receives the first argument of an inbound event.
type Handler func(payload json.RawMessage)

// AckFunc receives the arguments of an acknowledgement.
type AckFunc func(args []json.RawMessage)

// Transport is a single bidirectional event socket. A Transport is used for
// exactly one connection attempt; the manager dials a fresh one per attempt.
type Transport interface {
	// Connect dials and completes the handshake. It blocks until the
	// connection is usable, ctx is done, or the server refuses.
	Connect(ctx context.Context) error

	// Emit sends an event. ack, if non-nil, is invoked on acknowledgement.
	Emit(event string, payload any, ack AckFunc) error

	// On binds h to event, replacing any previous binding.
	On(event string, h Handler)

	// Off removes the binding for event.
	Off(event string)

	// Once binds h for a single delivery of event.
	Once(event string, h Handler)

	// OffOnce drops a pending one-shot binding for event. The On binding
	// is left in place.
	OffOnce(event string)

	// Connected reports whether the handshake completed and the socket is open.
	Connected() bool

	// Close tears the socket down. It does not invoke Hooks and does not
	// wait for background goroutines.
	Close() error
}

// Hooks receive transport lifecycle signals. Reserved events (error,
// auth_error, pong) are routed here before any bound handler.
type Hooks struct {
	OnDisconnect func(reason string)
	OnError      func(err error)
	OnAuthError  func(err error)
	OnPong       func(ts int64)
}

// TransportConfig configures a Transport.
type TransportConfig struct {
	URL            string        // Base server URL (e.g., http://localhost:5000)
	Path           string        // Engine.IO path (default /socket.io/)
	Namespace      string        // Socket.IO namespace (default /)
	Credentials    Credentials   // Sent as handshake auth payload
	ConnectTimeout time.Duration // Bound on dial + handshake
	WriteTimeout   time.Duration // Write deadline for sends
	Logger         *slog.Logger
}

// Dialer creates a Transport. Injected so tests can substitute a fake.
type Dialer func(cfg TransportConfig, hooks Hooks) Transport

// ManagerConfig configures the connection manager.
type ManagerConfig struct {
	URL                 string
	Path                string
	Namespace           string
	BaseDelay           time.Duration // First reconnect delay
	Multiplier          float64       // Backoff growth factor
	MaxAttempts         int           // Consecutive failures before Failed (0 = unlimited)
	MaxDelay            time.Duration // Cap on a single delay (0 = uncapped)
	HeartbeatInterval   time.Duration // Ping period while connected
	HeartbeatStaleAfter time.Duration // Missing-pong threshold (0 = disabled)
	ConnectTimeout      time.Duration // Dial + handshake bound
	WriteTimeout        time.Duration
	ForceReconnectDelay time.Duration // Delay used by ForceReconnect
}

// DefaultManagerConfig returns the production defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Path:                "/socket.io/",
		Namespace:           "/",
		BaseDelay:           1 * time.Second,
		Multiplier:          2,
		MaxAttempts:         5,
		HeartbeatInterval:   30 * time.Second,
		ConnectTimeout:      20 * time.Second,
		WriteTimeout:        5 * time.Second,
		ForceReconnectDelay: 1 * time.Second,
	}
}

// Status is a read-only snapshot of the connection.
type Status struct {
	State             State     `json:"state"`
	Connected         bool      `json:"connected"`
	ReconnectAttempts int       `json:"reconnectAttempts"`
	LastActivity      time.Time `json:"lastActivity"`
	Error             string    `json:"error,omitempty"`
	ErrorKind         ErrorKind `json:"errorKind,omitempty"`
}
