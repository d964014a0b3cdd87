package calls

import (
	"errors"
	"testing"
)

func TestCanTransition_ForwardPaths(t *testing.T) {
	outgoing := []Phase{PhaseIdle, PhaseOutgoingRinging, PhaseConnecting, PhaseConnected, PhaseEnded}
	incoming := []Phase{PhaseIdle, PhaseIncomingRinging, PhaseConnecting, PhaseConnected, PhaseEnded}
	for _, path := range [][]Phase{outgoing, incoming} {
		for i := 0; i+1 < len(path); i++ {
			if !CanTransition(path[i], path[i+1]) {
				t.Fatalf("expected %s -> %s allowed", path[i], path[i+1])
			}
		}
	}
}

func TestCanTransition_NoSkipToConnected(t *testing.T) {
	for _, from := range []Phase{PhaseIdle, PhaseOutgoingRinging, PhaseIncomingRinging} {
		if CanTransition(from, PhaseConnected) {
			t.Fatalf("expected %s -> connected rejected", from)
		}
	}
}

func TestCanTransition_ShortcutsFromAnyLivePhase(t *testing.T) {
	for _, from := range []Phase{PhaseIdle, PhaseOutgoingRinging, PhaseIncomingRinging, PhaseConnecting, PhaseConnected} {
		if !CanTransition(from, PhaseEnded) || !CanTransition(from, PhaseFailed) {
			t.Fatalf("expected %s to reach ended and failed", from)
		}
	}
}

func TestTransition_TerminalIsFinal(t *testing.T) {
	for _, from := range []Phase{PhaseEnded, PhaseFailed} {
		for _, to := range []Phase{PhaseIdle, PhaseConnecting, PhaseEnded, PhaseFailed} {
			got, err := Transition(from, to)
			if !errors.Is(err, ErrIllegalTransition) {
				t.Fatalf("expected illegal transition %s -> %s, got %v", from, to, err)
			}
			if got != from {
				t.Fatalf("expected phase unchanged, got %s", got)
			}
		}
	}
}

func TestTransition_NoBackwardMoves(t *testing.T) {
	if CanTransition(PhaseConnected, PhaseConnecting) {
		t.Fatalf("connected -> connecting must be rejected")
	}
	if CanTransition(PhaseConnecting, PhaseIncomingRinging) {
		t.Fatalf("connecting -> incoming-ringing must be rejected")
	}
}

func TestKind(t *testing.T) {
	if !KindVideo.WantsVideo() || KindVoice.WantsVideo() {
		t.Fatalf("unexpected WantsVideo")
	}
	if Kind("fax").Valid() {
		t.Fatalf("expected invalid kind")
	}
}
