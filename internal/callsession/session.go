package callsession

import (
	"context"
	"sync"
	"time"

	"telehealth-platform/internal/calls"
	"telehealth-platform/internal/icequeue"
	"telehealth-platform/internal/media"
	"telehealth-platform/internal/peer"
	"telehealth-platform/internal/signaling"

	"github.com/pion/webrtc/v4"
)

type direction int

const (
	outgoing direction = iota
	incoming
)

// Session is one call's lifecycle unit. Every field except pubMu is guarded
// by the owning Manager's mutex. Once closed is set the session is discarded;
// a continuation that resumes after that must release what it acquired.
type Session struct {
	id         string
	channel    string
	localID    string
	localName  string
	remoteID   string
	remoteName string
	kind       calls.Kind
	dir        direction
	phase      calls.Phase

	media  *media.Handle
	remote *media.RemoteStream
	queue  *icequeue.Queue
	conn   peer.Connection
	ch     *signaling.Channel

	// pubMu serializes relay publishes, including teardown's call-ended.
	// It is taken before the Manager's mutex, never while holding it.
	pubMu sync.Mutex

	// caller side: the published offer and candidates, replayed on ready-to-receive
	offer          *webrtc.SessionDescription
	sentCandidates []webrtc.ICECandidateInit
	offerResends   int

	// callee side: latest offer seen on the channel
	pendingOffer *signaling.Offer
	offerArrived chan struct{}
	offerApplied bool
	accepting    bool

	// local candidates are held until our description has been published
	descSent bool
	outbox   []webrtc.ICECandidateInit

	audioEnabled       bool
	videoEnabled       bool
	transportConnected bool
	presenceHeld       bool

	ringTimer    *time.Timer
	connectTimer *time.Timer

	startedAt   time.Time
	connectedAt *time.Time

	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

func (s *Session) stopTimers() {
	if s.ringTimer != nil {
		s.ringTimer.Stop()
		s.ringTimer = nil
	}
	if s.connectTimer != nil {
		s.connectTimer.Stop()
		s.connectTimer = nil
	}
}

func (s *Session) callerID() string {
	if s.dir == outgoing {
		return s.localID
	}
	return s.remoteID
}

func (s *Session) calleeID() string {
	if s.dir == outgoing {
		return s.remoteID
	}
	return s.localID
}

func (s *Session) stateLocked() State {
	st := State{
		SessionChannel: s.channel,
		Phase:          s.phase,
		Kind:           s.kind,
		RemoteID:       s.remoteID,
		RemoteName:     s.remoteName,
		AudioEnabled:   s.audioEnabled,
		VideoEnabled:   s.videoEnabled,
		Connected:      s.phase == calls.PhaseConnected,
		LocalTracks:    []media.TrackInfo{},
		RemoteTracks:   s.remote.Snapshot(),
	}
	if s.media != nil && !s.closed {
		st.LocalTracks = s.media.Snapshot()
	}
	if s.dir == incoming && s.phase == calls.PhaseIncomingRinging {
		st.Incoming = &IncomingCall{
			SessionChannel: s.channel,
			CallerID:       s.remoteID,
			CallerName:     s.remoteName,
			Kind:           s.kind,
		}
	}
	return st
}
