package gateway

import (
	"encoding/json"
	"time"
)

// Reserved application events.
const (
	EventJoinRoom             = "join_room"
	EventLeaveRoom            = "leave_room"
	EventSendMessage          = "send_message"
	EventBroadcastUpdate      = "broadcast_update"
	EventTaskUpdate           = "task_update"
	EventMaintenanceUpdate    = "maintenance_update"
	EventNotification         = "notification"
	EventMarkNotificationRead = "mark_notification_read"
)

// Entity types used in targeted update events.
const (
	EntityProperty    = "property"
	EntityTask        = "task"
	EntityMaintenance = "maintenance"
)

// DefaultMessageType is used when SendMessage gets an empty type.
const DefaultMessageType = "message"

// UpdateEvent returns the targeted update event for an entity.
func UpdateEvent(entityType, entityID string) string {
	return entityType + "_update_" + entityID
}

// PropertyRoom returns the room of a property.
func PropertyRoom(propertyID string) string {
	return "property_" + propertyID
}

// CompanyRoom returns the team room of a company.
func CompanyRoom(companyID string) string {
	return "company_" + companyID
}

// RoomRequest is the payload of join_room and leave_room.
type RoomRequest struct {
	Room string `json:"room"`
}

// ChatMessage is the payload of send_message.
type ChatMessage struct {
	Room      string `json:"room"`
	Message   string `json:"message"`
	Type      string `json:"type"`
	Sender    string `json:"sender,omitempty"`
	Timestamp int64  `json:"timestamp"` // Unix milliseconds
}

// BroadcastUpdate is the payload of broadcast_update.
type BroadcastUpdate struct {
	Type      string `json:"type"`
	Data      any    `json:"data"`
	Sender    string `json:"sender,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// TaskUpdate is the payload of task_update.
type TaskUpdate struct {
	TaskID     string `json:"taskId"`
	UpdateType string `json:"updateType"`
	Data       any    `json:"data"`
	UpdatedBy  string `json:"updatedBy,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

// MaintenanceUpdate is the payload of maintenance_update.
type MaintenanceUpdate struct {
	RequestID  string `json:"requestId"`
	UpdateType string `json:"updateType"`
	Data       any    `json:"data"`
	UpdatedBy  string `json:"updatedBy,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

// Notification is pushed by the server on the notification event.
type Notification struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Title    string          `json:"title"`
	Message  string          `json:"message"`
	Data     json.RawMessage `json:"data,omitempty"`
	Priority string          `json:"priority,omitempty"`
	SentAt   time.Time       `json:"sentAt"`
}

// NotificationRead is the payload of mark_notification_read.
type NotificationRead struct {
	NotificationID string `json:"notificationId"`
}
