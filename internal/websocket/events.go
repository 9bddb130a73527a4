package websocket

import (
	"log"

	"github.com/church-connect/backend/internal/storage/models"
)

// EventBroadcaster handles broadcasting domain events to connected clients.
type EventBroadcaster struct {
	hub *Hub
}

// NewEventBroadcaster creates a new event broadcaster.
func NewEventBroadcaster(hub *Hub) *EventBroadcaster {
	return &EventBroadcaster{hub: hub}
}

// BroadcastSyncCompleted sends a per-connection sync result.
func (b *EventBroadcaster) BroadcastSyncCompleted(result models.ConnectionSyncResult) {
	payload := SyncPayload{
		ConnectionID: result.ConnectionID,
		Provider:     result.Provider,
		CalendarName: result.CalendarName,
		Status:       "success",
		EventsSynced: result.EventsSynced,
	}
	if result.Error != "" {
		payload.Status = "error"
	}
	b.broadcast(NewMessage(TypeSyncCompleted, payload))
}

// BroadcastSyncError sends a sync failure for one connection.
func (b *EventBroadcaster) BroadcastSyncError(connectionID, calendarName string, err error) {
	b.broadcast(NewMessage(TypeSyncError, SyncErrorPayload{
		ConnectionID: connectionID,
		CalendarName: calendarName,
		Error:        "sync_error",
		Message:      err.Error(),
	}))
}

// BroadcastApprovalTransition sends an approval state change for an event.
// Final approval additionally emits an event.published message.
func (b *EventBroadcaster) BroadcastApprovalTransition(ev *models.Event, previousStatus, approverID, decision string) {
	payload := ApprovalPayload{
		EventID:        ev.ID,
		EventTitle:     ev.Title,
		PreviousStatus: previousStatus,
		NewStatus:      ev.ApprovalStatus,
		ApproverID:     approverID,
		Decision:       decision,
	}
	b.broadcast(NewMessage(TypeApprovalTransition, payload))

	if ev.ApprovalStatus == models.ApprovalFinalApproved {
		b.broadcast(NewMessage(TypeEventPublished, payload))
	}
}

// BroadcastNotification sends a notification toast to all connected clients.
func (b *EventBroadcaster) BroadcastNotification(level, title, message string) {
	b.broadcast(NewMessage(TypeNotification, NotificationPayload{
		Level:       level,
		Title:       title,
		Message:     message,
		Dismissible: true,
	}))
}

func (b *EventBroadcaster) broadcast(msg Message) {
	data, err := msg.JSON()
	if err != nil {
		log.Printf("Error encoding WebSocket message: %v", err)
		return
	}
	b.hub.Broadcast(data)
}
