package reporting

import (
	"time"

	"telehealth-platform/internal/calls"
)

// Common filtering inputs.

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CallsSummaryRequest requests aggregated call metrics.
// Clinic isolation: ClinicID is required.
type CallsSummaryRequest struct {
	ClinicID string    `json:"clinic_id"`
	Range    TimeRange `json:"range"`
	// ParticipantID narrows the summary to calls the participant placed or received.
	ParticipantID string `json:"participant_id,omitempty"`
}

type CallsSummary struct {
	ClinicID      string `json:"clinic_id"`
	ParticipantID string `json:"participant_id,omitempty"`

	TotalCalls     int `json:"total_calls"`
	CompletedCalls int `json:"completed_calls"`
	MissedCalls    int `json:"missed_calls"`
	RejectedCalls  int `json:"rejected_calls"`
	CanceledCalls  int `json:"canceled_calls"`
	FailedCalls    int `json:"failed_calls"`

	VoiceCalls int `json:"voice_calls"`
	VideoCalls int `json:"video_calls"`

	TotalDurationSeconds int `json:"total_duration_seconds"`
	// AverageDurationSeconds is over completed calls only.
	AverageDurationSeconds int `json:"average_duration_seconds"`

	// ConnectionRate is completed / total.
	ConnectionRate float64 `json:"connection_rate"`

	EndReasons map[calls.EndReason]int `json:"end_reasons"`
}
