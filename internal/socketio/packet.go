package socketio

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// EngineType is an Engine.IO packet type.
type EngineType byte

const (
	EngineOpen    EngineType = '0'
	EngineClose   EngineType = '1'
	EnginePing    EngineType = '2'
	EnginePong    EngineType = '3'
	EngineMessage EngineType = '4'
	EngineUpgrade EngineType = '5'
	EngineNoop    EngineType = '6'
)

// PacketType is a Socket.IO packet type.
type PacketType byte

const (
	PacketConnect      PacketType = '0'
	PacketDisconnect   PacketType = '1'
	PacketEvent        PacketType = '2'
	PacketAck          PacketType = '3'
	PacketConnectError PacketType = '4'
	PacketBinaryEvent  PacketType = '5'
	PacketBinaryAck    PacketType = '6'
)

// DefaultNamespace is the main namespace.
const DefaultNamespace = "/"

// Errors
var (
	ErrEmptyPacket       = errors.New("empty packet")
	ErrInvalidPacket     = errors.New("invalid packet format")
	ErrBinaryUnsupported = errors.New("binary packets not supported")
)

// EncodeEngine prefixes payload with the Engine.IO packet type.
func EncodeEngine(t EngineType, payload []byte) []byte {
	out := make([]byte, 0, len(payload)+1)
	out = append(out, byte(t))
	return append(out, payload...)
}

// DecodeEngine splits a WebSocket frame into its Engine.IO type and payload.
func DecodeEngine(frame []byte) (EngineType, []byte, error) {
	if len(frame) == 0 {
		return 0, nil, ErrEmptyPacket
	}
	t := EngineType(frame[0])
	if t < EngineOpen || t > EngineNoop {
		return 0, nil, fmt.Errorf("%w: engine type %q", ErrInvalidPacket, frame[0])
	}
	return t, frame[1:], nil
}

// Handshake is the payload of the Engine.IO OPEN packet.
type Handshake struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"` // milliseconds
	PingTimeout  int      `json:"pingTimeout"`  // milliseconds
	MaxPayload   int      `json:"maxPayload"`
}

// ParseHandshake decodes an OPEN payload.
func ParseHandshake(payload []byte) (Handshake, error) {
	var hs Handshake
	if err := json.Unmarshal(payload, &hs); err != nil {
		return Handshake{}, fmt.Errorf("%w: open payload: %v", ErrInvalidPacket, err)
	}
	if hs.SID == "" {
		return Handshake{}, fmt.Errorf("%w: open payload without sid", ErrInvalidPacket)
	}
	return hs, nil
}

// Interval returns the server ping interval.
func (h Handshake) Interval() time.Duration {
	return time.Duration(h.PingInterval) * time.Millisecond
}

// Timeout returns how long the server waits for a pong.
func (h Handshake) Timeout() time.Duration {
	return time.Duration(h.PingTimeout) * time.Millisecond
}

// Packet is a decoded Socket.IO packet.
type Packet struct {
	Type      PacketType
	Namespace string // DefaultNamespace when absent on the wire
	ID        uint64 // Ack id, valid only when HasID
	HasID     bool
	Data      json.RawMessage
}

// Encode renders the packet in Socket.IO text form.
func (p Packet) Encode() []byte {
	var b bytes.Buffer
	b.WriteByte(byte(p.Type))
	if p.Namespace != "" && p.Namespace != DefaultNamespace {
		b.WriteString(p.Namespace)
		b.WriteByte(',')
	}
	if p.HasID {
		b.WriteString(strconv.FormatUint(p.ID, 10))
	}
	b.Write(p.Data)
	return b.Bytes()
}

// Frame renders the packet wrapped in an Engine.IO MESSAGE.
func (p Packet) Frame() []byte {
	return EncodeEngine(EngineMessage, p.Encode())
}

// DecodePacket parses the payload of an Engine.IO MESSAGE.
func DecodePacket(data []byte) (Packet, error) {
	if len(data) == 0 {
		return Packet{}, ErrEmptyPacket
	}

	p := Packet{Type: PacketType(data[0]), Namespace: DefaultNamespace}
	if p.Type < PacketConnect || p.Type > PacketBinaryAck {
		return Packet{}, fmt.Errorf("%w: packet type %q", ErrInvalidPacket, data[0])
	}
	if p.Type == PacketBinaryEvent || p.Type == PacketBinaryAck {
		return Packet{}, ErrBinaryUnsupported
	}

	i := 1
	if i < len(data) && data[i] == '/' {
		end := bytes.IndexByte(data[i:], ',')
		if end < 0 {
			p.Namespace = string(data[i:])
			return p, nil
		}
		p.Namespace = string(data[i : i+end])
		i += end + 1
	}

	start := i
	for i < len(data) && data[i] >= '0' && data[i] <= '9' {
		i++
	}
	if i > start {
		id, err := strconv.ParseUint(string(data[start:i]), 10, 64)
		if err != nil {
			return Packet{}, fmt.Errorf("%w: ack id: %v", ErrInvalidPacket, err)
		}
		p.ID = id
		p.HasID = true
	}

	if i < len(data) {
		p.Data = json.RawMessage(data[i:])
		if !json.Valid(p.Data) {
			return Packet{}, fmt.Errorf("%w: malformed json data", ErrInvalidPacket)
		}
	}

	return p, nil
}

// EventData builds the JSON array ["name", args...] carried by an EVENT.
func EventData(name string, args ...any) (json.RawMessage, error) {
	arr := make([]any, 0, len(args)+1)
	arr = append(arr, name)
	arr = append(arr, args...)
	data, err := json.Marshal(arr)
	if err != nil {
		return nil, fmt.Errorf("marshal event %q: %w", name, err)
	}
	return data, nil
}

// ParseEvent splits EVENT data into the event name and its raw arguments.
func ParseEvent(data json.RawMessage) (string, []json.RawMessage, error) {
	args, err := ParseArgs(data)
	if err != nil {
		return "", nil, err
	}
	if len(args) == 0 {
		return "", nil, fmt.Errorf("%w: event without name", ErrInvalidPacket)
	}
	var name string
	if err := json.Unmarshal(args[0], &name); err != nil {
		return "", nil, fmt.Errorf("%w: event name: %v", ErrInvalidPacket, err)
	}
	return name, args[1:], nil
}

// ParseArgs decodes a JSON array of arguments (EVENT or ACK data).
func ParseArgs(data json.RawMessage) ([]json.RawMessage, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var args []json.RawMessage
	if err := json.Unmarshal(data, &args); err != nil {
		return nil, fmt.Errorf("%w: arguments: %v", ErrInvalidPacket, err)
	}
	return args, nil
}

// ConnectErrorMessage extracts the reason from CONNECT_ERROR data, which is
// either {"message": "..."} or a bare JSON string.
func ConnectErrorMessage(data json.RawMessage) string {
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil && s != "" {
		return s
	}
	return "connection refused"
}
