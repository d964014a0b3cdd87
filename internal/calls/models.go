package calls

import "time"

// Record is the persisted history row for one finished call session.
//
// Clinic invariant: ClinicID is required on every row.
// A row is written once, when the session reaches a terminal phase.
type Record struct {
	ID             string `json:"id" db:"id"`
	ClinicID       string `json:"clinic_id" db:"clinic_id"`
	SessionChannel string `json:"session_channel" db:"session_channel"`

	CallerID string `json:"caller_id" db:"caller_id"`
	CalleeID string `json:"callee_id" db:"callee_id"`
	Kind     Kind   `json:"kind" db:"kind"`

	Status    Status    `json:"status" db:"status"`
	EndReason EndReason `json:"end_reason" db:"end_reason"`

	StartedAt   time.Time  `json:"started_at" db:"started_at"`
	ConnectedAt *time.Time `json:"connected_at,omitempty" db:"connected_at"`
	EndedAt     time.Time  `json:"ended_at" db:"ended_at"`

	// DurationSeconds counts connected time only.
	DurationSeconds int `json:"duration" db:"duration"`
}

type Status string

const (
	StatusCompleted Status = "completed"
	StatusMissed    Status = "missed"
	StatusRejected  Status = "rejected"
	StatusCanceled  Status = "canceled"
	StatusFailed    Status = "failed"
)

// EndReason records why the session terminated.
type EndReason string

const (
	EndReasonLocalHangup    EndReason = "local_hangup"
	EndReasonRemoteHangup   EndReason = "remote_hangup"
	EndReasonRejected       EndReason = "rejected"
	EndReasonNoAnswer       EndReason = "no_answer"
	EndReasonOfferTimeout   EndReason = "offer_timeout"
	EndReasonConnectTimeout EndReason = "connect_timeout"
	EndReasonDisconnected   EndReason = "disconnected"
	EndReasonNegotiation    EndReason = "negotiation_failed"
	EndReasonMedia          EndReason = "media_unavailable"
	EndReasonSignaling      EndReason = "signaling_failed"
	EndReasonBusy           EndReason = "busy"
	EndReasonShutdown       EndReason = "shutdown"
)

// StatusFor derives the history status from how a session ended.
// connected reports whether the transport ever reached connected.
func StatusFor(final Phase, reason EndReason, connected bool) Status {
	if final == PhaseFailed {
		return StatusFailed
	}
	if connected {
		return StatusCompleted
	}
	switch reason {
	case EndReasonNoAnswer:
		return StatusMissed
	case EndReasonRejected:
		return StatusRejected
	default:
		return StatusCanceled
	}
}
