package calls

import (
	"errors"
	"fmt"
)

// Kind is the media kind of a call. It is fixed when the call starts.
type Kind string

const (
	KindVoice Kind = "voice"
	KindVideo Kind = "video"
)

func (k Kind) Valid() bool { return k == KindVoice || k == KindVideo }

// WantsVideo reports whether a camera should be requested for this kind.
func (k Kind) WantsVideo() bool { return k == KindVideo }

// Phase is the connection phase of a call session.
type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhaseOutgoingRinging Phase = "outgoing-ringing"
	PhaseIncomingRinging Phase = "incoming-ringing"
	PhaseConnecting      Phase = "connecting"
	PhaseConnected       Phase = "connected"
	PhaseEnded           Phase = "ended"
	PhaseFailed          Phase = "failed"
)

var ErrIllegalTransition = errors.New("calls: illegal phase transition")

// transitions is the single authoritative table. ended and failed are
// reachable from every non-terminal phase and are not listed per row.
var transitions = map[Phase][]Phase{
	PhaseIdle:            {PhaseOutgoingRinging, PhaseIncomingRinging},
	PhaseOutgoingRinging: {PhaseConnecting},
	PhaseIncomingRinging: {PhaseConnecting},
	PhaseConnecting:      {PhaseConnected},
	PhaseConnected:       {},
}

// Terminal reports whether p is ended or failed.
func (p Phase) Terminal() bool { return p == PhaseEnded || p == PhaseFailed }

// Active reports whether a session in phase p holds resources or a pending call.
func (p Phase) Active() bool { return p != PhaseIdle && !p.Terminal() }

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to Phase) bool {
	next, ok := transitions[from]
	if !ok {
		// terminal or unknown
		return false
	}
	if to == PhaseEnded || to == PhaseFailed {
		return true
	}
	for _, n := range next {
		if n == to {
			return true
		}
	}
	return false
}

// Transition returns to if the move is legal, otherwise ErrIllegalTransition.
func Transition(from, to Phase) (Phase, error) {
	if !CanTransition(from, to) {
		return from, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	return to, nil
}
