package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rickgao/stayspot-realtime/internal/connection"
)

// Conn is the part of connection.Manager the gateway needs.
type Conn interface {
	Send(event string, payload any, ack connection.AckFunc) error
	On(event string, h connection.Handler) func()
	Off(event string)
	Once(event string, h connection.Handler) bool
	OffOnce(event string)
	Subscribe(fn func(connection.Status)) func()
	Credentials() connection.Credentials
}

// Gateway guards emits on the connection state and tracks joined rooms.
type Gateway struct {
	conn   Conn
	logger *slog.Logger
	now    func() time.Time

	mu          sync.Mutex
	rooms       map[string]struct{}
	connected   bool
	unsubscribe func()
}

// New creates a gateway over conn and starts watching its status so joined
// rooms are restored after every reconnect.
func New(conn Conn, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}

	g := &Gateway{
		conn:   conn,
		logger: logger,
		now:    time.Now,
		rooms:  make(map[string]struct{}),
	}
	g.unsubscribe = conn.Subscribe(g.onStatus)
	return g
}

// Close stops watching the connection. Rooms are kept.
func (g *Gateway) Close() {
	g.mu.Lock()
	unsub := g.unsubscribe
	g.unsubscribe = nil
	g.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// Emit sends event when connected. It returns false, and logs a warning,
// when the connection is not up; the message is dropped, not queued.
func (g *Gateway) Emit(event string, payload any, ack connection.AckFunc) bool {
	if err := g.conn.Send(event, payload, ack); err != nil {
		if errors.Is(err, connection.ErrNotConnected) {
			g.logger.Warn("socket not connected, cannot emit event", "event", event)
		} else {
			g.logger.Error("error emitting socket event", "event", event, "error", err)
		}
		return false
	}
	return true
}

// On registers a durable handler for event.
func (g *Gateway) On(event string, h connection.Handler) func() {
	return g.conn.On(event, h)
}

// Off removes the handler for event.
func (g *Gateway) Off(event string) {
	g.conn.Off(event)
}

// Request binds a one-shot handler for reply, emits event and waits for the
// reply payload or ctx. Handlers registered with On for reply are untouched.
// Only one Request per reply event should be pending at a time.
func (g *Gateway) Request(ctx context.Context, event string, payload any, reply string) (json.RawMessage, error) {
	ch := make(chan json.RawMessage, 1)
	if !g.conn.Once(reply, func(p json.RawMessage) {
		select {
		case ch <- p:
		default:
		}
	}) {
		return nil, connection.ErrNotConnected
	}

	if err := g.conn.Send(event, payload, nil); err != nil {
		g.conn.OffOnce(reply)
		return nil, fmt.Errorf("request %s: %w", event, err)
	}

	select {
	case p := <-ch:
		return p, nil
	case <-ctx.Done():
		g.conn.OffOnce(reply)
		return nil, fmt.Errorf("await %s: %w", reply, ctx.Err())
	}
}

// Call emits event with an ack and waits for the acknowledgement or ctx.
func (g *Gateway) Call(ctx context.Context, event string, payload any) ([]json.RawMessage, error) {
	ch := make(chan []json.RawMessage, 1)
	err := g.conn.Send(event, payload, func(args []json.RawMessage) {
		select {
		case ch <- args:
		default:
		}
	})
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", event, err)
	}

	select {
	case args := <-ch:
		return args, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("await ack for %s: %w", event, ctx.Err())
	}
}

// JoinRoom joins room and remembers it for reconnects. The room is
// remembered even when the emit is dropped.
func (g *Gateway) JoinRoom(room string) bool {
	g.mu.Lock()
	g.rooms[room] = struct{}{}
	g.mu.Unlock()

	return g.Emit(EventJoinRoom, RoomRequest{Room: room}, nil)
}

// Track remembers rooms without emitting. They are joined on the next
// transition into Connected.
func (g *Gateway) Track(rooms ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, room := range rooms {
		g.rooms[room] = struct{}{}
	}
}

// LeaveRoom leaves room and forgets it.
func (g *Gateway) LeaveRoom(room string) bool {
	g.mu.Lock()
	delete(g.rooms, room)
	g.mu.Unlock()

	return g.Emit(EventLeaveRoom, RoomRequest{Room: room}, nil)
}

// Rooms returns the joined rooms in sorted order.
func (g *Gateway) Rooms() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	rooms := make([]string, 0, len(g.rooms))
	for room := range g.rooms {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}

// SendMessage posts a chat message to room. An empty typ means "message".
func (g *Gateway) SendMessage(room, message, typ string) bool {
	if typ == "" {
		typ = DefaultMessageType
	}
	return g.Emit(EventSendMessage, ChatMessage{
		Room:      room,
		Message:   message,
		Type:      typ,
		Sender:    g.userID(),
		Timestamp: g.timestamp(),
	}, nil)
}

// BroadcastUpdate announces an update to every interested client.
func (g *Gateway) BroadcastUpdate(typ string, data any) bool {
	return g.Emit(EventBroadcastUpdate, BroadcastUpdate{
		Type:      typ,
		Data:      data,
		Sender:    g.userID(),
		Timestamp: g.timestamp(),
	}, nil)
}

// SubscribeToUpdates listens on <entityType>_update_<entityID>.
func (g *Gateway) SubscribeToUpdates(entityType, entityID string, h connection.Handler) func() {
	return g.conn.On(UpdateEvent(entityType, entityID), h)
}

// UnsubscribeFromUpdates stops listening on <entityType>_update_<entityID>.
func (g *Gateway) UnsubscribeFromUpdates(entityType, entityID string) {
	g.conn.Off(UpdateEvent(entityType, entityID))
}

func (g *Gateway) JoinPropertyRoom(propertyID string) bool {
	return g.JoinRoom(PropertyRoom(propertyID))
}

func (g *Gateway) LeavePropertyRoom(propertyID string) bool {
	return g.LeaveRoom(PropertyRoom(propertyID))
}

func (g *Gateway) SubscribeToPropertyUpdates(propertyID string, h connection.Handler) func() {
	return g.SubscribeToUpdates(EntityProperty, propertyID, h)
}

func (g *Gateway) SubscribeToTaskUpdates(taskID string, h connection.Handler) func() {
	return g.SubscribeToUpdates(EntityTask, taskID, h)
}

// NotifyTaskUpdate emits task_update on behalf of the current user.
func (g *Gateway) NotifyTaskUpdate(taskID, updateType string, data any) bool {
	return g.Emit(EventTaskUpdate, TaskUpdate{
		TaskID:     taskID,
		UpdateType: updateType,
		Data:       data,
		UpdatedBy:  g.userID(),
		Timestamp:  g.timestamp(),
	}, nil)
}

func (g *Gateway) SubscribeToMaintenanceUpdates(requestID string, h connection.Handler) func() {
	return g.SubscribeToUpdates(EntityMaintenance, requestID, h)
}

// NotifyMaintenanceUpdate emits maintenance_update on behalf of the current
// user.
func (g *Gateway) NotifyMaintenanceUpdate(requestID, updateType string, data any) bool {
	return g.Emit(EventMaintenanceUpdate, MaintenanceUpdate{
		RequestID:  requestID,
		UpdateType: updateType,
		Data:       data,
		UpdatedBy:  g.userID(),
		Timestamp:  g.timestamp(),
	}, nil)
}

// JoinTeamRoom joins the company room of the current user. False when the
// credentials carry no company.
func (g *Gateway) JoinTeamRoom() bool {
	companyID := g.conn.Credentials().CompanyID
	if companyID == "" {
		g.logger.Debug("no company id, skipping team room")
		return false
	}
	return g.JoinRoom(CompanyRoom(companyID))
}

// SendTeamMessage posts to the company room of the current user.
func (g *Gateway) SendTeamMessage(message, typ string) bool {
	companyID := g.conn.Credentials().CompanyID
	if companyID == "" {
		g.logger.Debug("no company id, skipping team message")
		return false
	}
	return g.SendMessage(CompanyRoom(companyID), message, typ)
}

// SubscribeToNotifications decodes notification events into fn.
func (g *Gateway) SubscribeToNotifications(fn func(Notification)) func() {
	return Subscribe(g, EventNotification, fn)
}

func (g *Gateway) MarkNotificationAsRead(notificationID string) bool {
	return g.Emit(EventMarkNotificationRead, NotificationRead{NotificationID: notificationID}, nil)
}

// Subscribe registers a durable handler that decodes each payload of event
// into T. Payloads that do not decode are logged and skipped.
func Subscribe[T any](g *Gateway, event string, fn func(T)) func() {
	return g.conn.On(event, func(payload json.RawMessage) {
		var v T
		if err := json.Unmarshal(payload, &v); err != nil {
			g.logger.Warn("discarding undecodable payload", "event", event, "error", err)
			return
		}
		fn(v)
	})
}

// onStatus rejoins remembered rooms on every transition into Connected.
func (g *Gateway) onStatus(s connection.Status) {
	g.mu.Lock()
	rejoin := s.State == connection.StateConnected && !g.connected
	g.connected = s.State == connection.StateConnected
	g.mu.Unlock()

	if !rejoin {
		return
	}

	rooms := g.Rooms()
	for _, room := range rooms {
		g.Emit(EventJoinRoom, RoomRequest{Room: room}, nil)
	}
	if len(rooms) > 0 {
		g.logger.Info("rejoined rooms", "count", len(rooms))
	}
}

func (g *Gateway) userID() string {
	return g.conn.Credentials().UserID
}

func (g *Gateway) timestamp() int64 {
	return g.now().UnixMilli()
}
