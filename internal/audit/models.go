package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - clinic_id is required for tenancy isolation.
// - Audit is best-effort; a failed append never blocks a call.
type Event struct {
	ID       string `json:"id" db:"id"`
	ClinicID string `json:"clinic_id" db:"clinic_id"`

	Type EventType `json:"type" db:"type"`

	// ActorUserID is the participant or admin causing the event.
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	// ActorRole may include hidden roles.
	ActorRole string `json:"actor_role,omitempty" db:"actor_role"`

	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`

	// CallID is the call session channel the event belongs to.
	CallID string `json:"call_id,omitempty" db:"call_id"`

	Message  string `json:"message,omitempty" db:"message"`
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeAdminAction  EventType = "admin_action"
	EventTypeCallStarted  EventType = "call_started"
	EventTypeCallAccepted EventType = "call_accepted"
	EventTypeCallRejected EventType = "call_rejected"
	EventTypeCallEnded    EventType = "call_ended"
	EventTypeCallFailed   EventType = "call_failed"
)
