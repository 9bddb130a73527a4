package websocket

import (
	"encoding/json"
	"time"
)

// MessageType identifies the type of WebSocket message.
type MessageType string

const (
	// Server -> Client event types
	TypeSyncCompleted      MessageType = "sync.completed"
	TypeSyncError          MessageType = "sync.error"
	TypeApprovalTransition MessageType = "event.approval_changed"
	TypeEventPublished     MessageType = "event.published"
	TypeNotification       MessageType = "notification"

	// Client -> Server command types
	TypePing MessageType = "ping"

	// Server -> Client response types
	TypePong  MessageType = "pong"
	TypeError MessageType = "error"
)

// Message represents a WebSocket message envelope.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   any         `json:"payload"`
}

// NewMessage creates a new message with the current timestamp.
func NewMessage(msgType MessageType, payload any) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// JSON serializes the message to JSON bytes.
func (m Message) JSON() ([]byte, error) {
	return json.Marshal(m)
}

// SyncPayload is the payload for sync.completed events.
type SyncPayload struct {
	ConnectionID string `json:"connection_id"`
	Provider     string `json:"provider"`
	CalendarName string `json:"calendar_name"`
	Status       string `json:"status"`
	EventsSynced int    `json:"events_synced"`
}

// SyncErrorPayload is the payload for sync.error events.
type SyncErrorPayload struct {
	ConnectionID string `json:"connection_id"`
	CalendarName string `json:"calendar_name"`
	Error        string `json:"error"`
	Message      string `json:"message"`
}

// ApprovalPayload is the payload for event.approval_changed and
// event.published events.
type ApprovalPayload struct {
	EventID        string `json:"event_id"`
	EventTitle     string `json:"event_title"`
	PreviousStatus string `json:"previous_status"`
	NewStatus      string `json:"new_status"`
	ApproverID     string `json:"approver_id"`
	Decision       string `json:"decision"`
}

// NotificationPayload is the payload for notification events.
type NotificationPayload struct {
	Level       string `json:"level"` // info, warning, error, success
	Title       string `json:"title"`
	Message     string `json:"message"`
	Dismissible bool   `json:"dismissible"`
}

// ErrorPayload is the payload for error messages.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
