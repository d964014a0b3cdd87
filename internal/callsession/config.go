// Package callsession runs the call signaling state machine for one local participant.
package callsession

import (
	"errors"
	"log/slog"
	"time"

	"telehealth-platform/internal/audit"
	"telehealth-platform/internal/calls"
	"telehealth-platform/internal/media"
	"telehealth-platform/internal/peer"
	"telehealth-platform/internal/presence"
	"telehealth-platform/internal/signaling"
)

var (
	ErrSessionActive   = errors.New("callsession: a call is already active")
	ErrInvalidPhase    = errors.New("callsession: action not valid in current phase")
	ErrNoSession       = errors.New("callsession: no active call")
	ErrSessionClosed   = errors.New("callsession: call ended while the action was in progress")
	ErrOfferTimeout    = errors.New("callsession: timed out waiting for the offer")
	ErrInvalidRequest  = errors.New("callsession: invalid request")
	ErrParticipantBusy = errors.New("callsession: participant is in another call")
)

// Config bounds every network round-trip the session waits on.
type Config struct {
	// RingTimeout ends an unanswered call.
	RingTimeout time.Duration
	// OfferTimeout bounds how long an accepting callee waits for the offer.
	OfferTimeout time.Duration
	// OfferResendInterval is the gap between ready-to-receive signals.
	OfferResendInterval time.Duration
	// OfferResendLimit caps ready-to-receive signals and the caller's offer resends.
	OfferResendLimit int
	// ConnectTimeout bounds connecting -> connected.
	ConnectTimeout time.Duration
	// PresenceTTL is the lifetime of the participant's busy slot.
	PresenceTTL time.Duration
}

func (c Config) withDefaults() Config {
	out := c
	if out.RingTimeout <= 0 {
		out.RingTimeout = 45 * time.Second
	}
	if out.OfferTimeout <= 0 {
		out.OfferTimeout = 15 * time.Second
	}
	if out.OfferResendInterval <= 0 {
		out.OfferResendInterval = 3 * time.Second
	}
	if out.OfferResendLimit <= 0 {
		out.OfferResendLimit = 3
	}
	if out.ConnectTimeout <= 0 {
		out.ConnectTimeout = 30 * time.Second
	}
	if out.PresenceTTL <= 0 {
		out.PresenceTTL = 2 * time.Hour
	}
	return out
}

// Deps are the collaborators a Manager drives. Presence, History and Audit are optional.
type Deps struct {
	Relay    signaling.Relay
	Peers    peer.Factory
	Media    media.Source
	Presence presence.Locker
	History  calls.Repository
	Audit    *audit.Service
	Logger   *slog.Logger
	Clock    func() time.Time
}

func (d Deps) withDefaults() Deps {
	out := d
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	if out.Clock == nil {
		out.Clock = time.Now
	}
	return out
}

// Participant identifies the local user a Manager acts for.
type Participant struct {
	ID          string
	DisplayName string
	ClinicID    string
}
