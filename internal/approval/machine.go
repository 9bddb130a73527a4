// Package approval drives church events through the two-stage approval flow
// that gates publication.
package approval

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/church-connect/backend/internal/notify"
	"github.com/church-connect/backend/internal/storage"
	"github.com/church-connect/backend/internal/storage/models"
)

var (
	// ErrNotFound indicates the event does not exist.
	ErrNotFound = errors.New("event not found")
	// ErrPermissionDenied indicates the actor is not the designated approver
	// for the event's current state. The state is left unchanged.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrTerminal indicates the event's approval flow already finished.
	ErrTerminal = errors.New("approval flow is complete")
	// ErrStale indicates another decision landed first; the caller should
	// reload the event before retrying.
	ErrStale = errors.New("approval state changed concurrently")
)

// Broadcaster pushes approval state changes to connected clients.
type Broadcaster interface {
	BroadcastApprovalTransition(ev *models.Event, previousStatus, approverID, decision string)
}

// EmailLookupFunc resolves a user id to an email address for notifications.
type EmailLookupFunc func(ctx context.Context, userID string) (string, error)

// Machine applies approval transitions. Every transition appends an immutable
// history record in the same transaction as the state change; notifications
// and broadcasts happen after commit and never roll the transition back.
type Machine struct {
	events      *storage.EventRepository
	notifier    notify.Notifier
	broadcaster Broadcaster
	lookupEmail EmailLookupFunc
}

// NewMachine creates an approval machine. The broadcaster and email lookup
// may be nil; the corresponding side effects are then skipped.
func NewMachine(events *storage.EventRepository, notifier notify.Notifier, broadcaster Broadcaster, lookupEmail EmailLookupFunc) *Machine {
	return &Machine{
		events:      events,
		notifier:    notifier,
		broadcaster: broadcaster,
		lookupEmail: lookupEmail,
	}
}

// Approve advances an event one stage. The designated first approver moves
// pending to first_approved; the designated final approver moves
// first_approved to final_approved, which also publishes the event. Anyone
// else gets ErrPermissionDenied and the state is untouched.
func (m *Machine) Approve(ctx context.Context, eventID, approverID string, comments *string) (*models.Event, error) {
	ev, err := m.load(ctx, eventID)
	if err != nil {
		return nil, err
	}
	previous := ev.ApprovalStatus

	var level string
	switch ev.ApprovalStatus {
	case models.ApprovalPending:
		if approverID != ev.FirstApproverID {
			return nil, fmt.Errorf("approving %s from %s: %w", eventID, previous, ErrPermissionDenied)
		}
		level = models.ApproverFirst
		ev.ApprovalStatus = models.ApprovalFirstApproved
	case models.ApprovalFirstApproved:
		if approverID != ev.FinalApproverID {
			return nil, fmt.Errorf("approving %s from %s: %w", eventID, previous, ErrPermissionDenied)
		}
		level = models.ApproverFinal
		ev.ApprovalStatus = models.ApprovalFinalApproved
		ev.Status = models.EventPublished
	default:
		return nil, fmt.Errorf("approving %s from %s: %w", eventID, previous, ErrTerminal)
	}

	if err := m.record(ctx, ev, previous, approverID, level, models.DecisionApproved, comments); err != nil {
		return nil, err
	}
	m.afterTransition(ctx, ev, previous, approverID, models.DecisionApproved)
	return ev, nil
}

// Reject terminates an event's approval flow. The first approver may reject
// from pending, the final approver from first_approved. Rejection is terminal;
// a rejected event must be resubmitted as a new event.
func (m *Machine) Reject(ctx context.Context, eventID, approverID string, comments *string) (*models.Event, error) {
	ev, err := m.load(ctx, eventID)
	if err != nil {
		return nil, err
	}
	previous := ev.ApprovalStatus

	var level string
	switch ev.ApprovalStatus {
	case models.ApprovalPending:
		if approverID != ev.FirstApproverID {
			return nil, fmt.Errorf("rejecting %s from %s: %w", eventID, previous, ErrPermissionDenied)
		}
		level = models.ApproverFirst
	case models.ApprovalFirstApproved:
		if approverID != ev.FinalApproverID {
			return nil, fmt.Errorf("rejecting %s from %s: %w", eventID, previous, ErrPermissionDenied)
		}
		level = models.ApproverFinal
	default:
		return nil, fmt.Errorf("rejecting %s from %s: %w", eventID, previous, ErrTerminal)
	}
	ev.ApprovalStatus = models.ApprovalRejected

	if err := m.record(ctx, ev, previous, approverID, level, models.DecisionRejected, comments); err != nil {
		return nil, err
	}
	m.afterTransition(ctx, ev, previous, approverID, models.DecisionRejected)
	return ev, nil
}

// History retrieves the append-only approval record for an event.
func (m *Machine) History(ctx context.Context, eventID string) ([]models.EventApproval, error) {
	ev, err := m.load(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return m.events.ApprovalHistory(ctx, ev.ID)
}

func (m *Machine) load(ctx context.Context, eventID string) (*models.Event, error) {
	ev, err := m.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("loading event: %w", err)
	}
	if ev == nil {
		return nil, fmt.Errorf("event %s: %w", eventID, ErrNotFound)
	}
	return ev, nil
}

func (m *Machine) record(ctx context.Context, ev *models.Event, previous, approverID, level, decision string, comments *string) error {
	approval := &models.EventApproval{
		EventID:    ev.ID,
		ApproverID: approverID,
		Level:      level,
		Decision:   decision,
		Comments:   comments,
	}
	if err := m.events.RecordTransition(ctx, ev, previous, approval); err != nil {
		if errors.Is(err, storage.ErrStaleEvent) {
			return fmt.Errorf("recording approval transition: %w", ErrStale)
		}
		return fmt.Errorf("recording approval transition: %w", err)
	}
	return nil
}

// afterTransition runs the fire-and-forget side effects: a broadcast to
// connected clients and an email to the next actor in the chain, or to the
// creator once the flow terminates.
func (m *Machine) afterTransition(ctx context.Context, ev *models.Event, previous, approverID, decision string) {
	if m.broadcaster != nil {
		m.broadcaster.BroadcastApprovalTransition(ev, previous, approverID, decision)
	}

	var recipient, subject, body string
	switch ev.ApprovalStatus {
	case models.ApprovalFirstApproved:
		recipient = ev.FinalApproverID
		subject = fmt.Sprintf("Event %q awaits final approval", ev.Title)
		body = fmt.Sprintf("%q passed first approval and is waiting on you.", ev.Title)
	case models.ApprovalFinalApproved:
		recipient = ev.CreatorID
		subject = fmt.Sprintf("Event %q approved", ev.Title)
		body = fmt.Sprintf("%q received final approval and is now published.", ev.Title)
	case models.ApprovalRejected:
		recipient = ev.CreatorID
		subject = fmt.Sprintf("Event %q rejected", ev.Title)
		body = fmt.Sprintf("%q was rejected. Update the details and resubmit.", ev.Title)
	default:
		return
	}

	m.sendEmail(ctx, recipient, subject, body)
}

func (m *Machine) sendEmail(ctx context.Context, userID, subject, body string) {
	if m.notifier == nil || m.lookupEmail == nil || userID == "" {
		return
	}
	address, err := m.lookupEmail(ctx, userID)
	if err != nil || address == "" {
		log.Printf("Approval notify: no address for user %s: %v", userID, err)
		return
	}
	err = m.notifier.SendEmail(ctx, notify.Email{
		To:      []string{address},
		Subject: subject,
		Text:    body,
	})
	if err != nil {
		log.Printf("Approval notify: sending to %s: %v", address, err)
	}
}
