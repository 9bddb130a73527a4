package models

import (
	"time"
)

// Approval status values for internally created events.
const (
	ApprovalPending       = "pending"
	ApprovalFirstApproved = "first_approved"
	ApprovalFinalApproved = "final_approved"
	ApprovalRejected      = "rejected"
)

// Publication status values.
const (
	EventDraft     = "draft"
	EventPublished = "published"
)

// Approval levels and decisions recorded in the approval history.
const (
	ApproverFirst = "first"
	ApproverFinal = "final"

	DecisionApproved = "approved"
	DecisionRejected = "rejected"
)

// Event is an internally created church event attached to one calendar.
// Status only becomes published once the approval flow reaches
// final_approved.
type Event struct {
	ID                string    `json:"id"`
	CalendarID        string    `json:"calendar_id"`
	CreatorID         string    `json:"creator_id"`
	Title             string    `json:"title"`
	Description       string    `json:"description,omitempty"`
	Location          string    `json:"location,omitempty"`
	Resource          string    `json:"resource,omitempty"`
	StartsAt          time.Time `json:"starts_at"`
	EndsAt            time.Time `json:"ends_at"`
	AllDay            bool      `json:"all_day"`
	RequiredAttendees []string  `json:"required_attendees,omitempty"`
	OptionalAttendees []string  `json:"optional_attendees,omitempty"`
	ApprovalStatus    string    `json:"approval_status"`
	Status            string    `json:"status"`
	FirstApproverID   string    `json:"first_approver_id,omitempty"`
	FinalApproverID   string    `json:"final_approver_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// ApprovalTerminal reports whether the event's approval flow is finished.
func (e *Event) ApprovalTerminal() bool {
	return e.ApprovalStatus == ApprovalFinalApproved || e.ApprovalStatus == ApprovalRejected
}

// EventApproval is one immutable entry in an event's approval history.
type EventApproval struct {
	ID         string    `json:"id"`
	EventID    string    `json:"event_id"`
	ApproverID string    `json:"approver_id"`
	Level      string    `json:"level"`
	Decision   string    `json:"decision"`
	Comments   *string   `json:"comments,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
