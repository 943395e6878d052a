package audit

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the category of audit event.
type EventType string

const (
	EventTypeRoleAssign      EventType = "authz.role_assign"
	EventTypeRoleUpdate      EventType = "authz.role_update"
	EventTypeRoleRevoke      EventType = "authz.role_revoke"
	EventTypeLegacyBootstrap EventType = "authz.legacy_bootstrap"
	EventTypeAccessDenied    EventType = "authz.access_denied"
)

// EventStatus represents the outcome of an event.
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// Event is a single audit log entry for a role-assignment change or a
// denied access.
type Event struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Type      EventType   `json:"type"`
	Actor     string      `json:"actor,omitempty"`
	Principal string      `json:"principal"`
	Role      string      `json:"role,omitempty"`
	Status    EventStatus `json:"status"`
	Message   string      `json:"message,omitempty"`
}

// NewEvent creates an event with a fresh ID and timestamp.
func NewEvent(eventType EventType, actor, principal string) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		Actor:     actor,
		Principal: principal,
		Status:    EventStatusSuccess,
	}
}

// WithRole attaches the role involved in the event.
func (e *Event) WithRole(role string) *Event {
	e.Role = role
	return e
}

// WithStatus sets the event outcome.
func (e *Event) WithStatus(status EventStatus) *Event {
	e.Status = status
	return e
}

// WithMessage attaches a human-readable message.
func (e *Event) WithMessage(message string) *Event {
	e.Message = message
	return e
}
