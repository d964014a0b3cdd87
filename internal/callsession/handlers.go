package callsession

import (
	"context"
	"time"

	"telehealth-platform/internal/calls"
	"telehealth-platform/internal/media"
	"telehealth-platform/internal/peer"
	"telehealth-platform/internal/signaling"

	"github.com/pion/webrtc/v4"
)

const (
	// publishTimeout bounds a single relay publish made outside a caller's request.
	publishTimeout = 5 * time.Second
	// sideEffectTimeout bounds history and audit writes.
	sideEffectTimeout = 5 * time.Second
)

var sessionEvents = []signaling.EventKind{
	signaling.KindOffer,
	signaling.KindAnswer,
	signaling.KindICECandidate,
	signaling.KindCallEnded,
	signaling.KindReadyToReceive,
}

// installHandlersLocked binds every signaling event on ch to s.
func (m *Manager) installHandlersLocked(s *Session, ch *signaling.Channel) {
	for _, kind := range sessionEvents {
		ch.On(kind, func(ev signaling.Event) { m.dispatch(s, ev) })
	}
}

func (m *Manager) dispatch(s *Session, ev signaling.Event) {
	m.mu.Lock()
	live := m.liveLocked(s)
	remoteID := s.remoteID
	m.mu.Unlock()
	if !live {
		return
	}
	if ev.Sender() != remoteID {
		m.sessionLog(s).Debug("signaling event from third party ignored", "event", ev.Kind(), "sender", ev.Sender())
		return
	}

	switch e := ev.(type) {
	case signaling.Offer:
		m.onOffer(s, e)
	case signaling.Answer:
		m.onAnswer(s, e)
	case signaling.Candidate:
		m.onRemoteCandidate(s, e)
	case signaling.CallEnded:
		m.onRemoteEnded(s, e)
	case signaling.ReadyToReceive:
		m.onReadyToReceive(s)
	}
}

// onWatchedOffer turns an offer seen on a watched channel into an incoming call.
func (m *Manager) onWatchedOffer(ch *signaling.Channel, o signaling.Offer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.watchers[ch.Name()] != ch {
		return
	}
	if m.session != nil {
		m.log.Info("offer ignored, participant busy", "session_channel", ch.Name(), "caller_id", o.SenderID)
		return
	}
	kind := o.CallType
	if !kind.Valid() {
		kind = calls.KindVoice
	}

	delete(m.watchers, ch.Name())
	s := m.newSessionLocked(ch.Name(), o.SenderID, o.CallerName, kind, incoming)
	s.ch = ch
	s.pendingOffer = &o
	m.beginRingingLocked(s)
}

func (m *Manager) onOffer(s *Session, o signaling.Offer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.liveLocked(s) {
		return
	}
	if s.dir != incoming {
		m.sessionLog(s).Warn("offer received on outgoing call ignored")
		return
	}
	if s.offerApplied {
		// resend for an offer already answered
		return
	}
	s.pendingOffer = &o
	if s.remoteName == "" {
		s.remoteName = o.CallerName
	}
	select {
	case s.offerArrived <- struct{}{}:
	default:
	}
}

func (m *Manager) onAnswer(s *Session, a signaling.Answer) {
	m.mu.Lock()
	if !m.liveLocked(s) || s.dir != outgoing || s.phase != calls.PhaseOutgoingRinging {
		m.mu.Unlock()
		return
	}
	if s.ringTimer != nil {
		s.ringTimer.Stop()
		s.ringTimer = nil
	}
	if err := m.transitionLocked(s, calls.PhaseConnecting); err != nil {
		m.mu.Unlock()
		return
	}
	s.connectTimer = time.AfterFunc(m.cfg.ConnectTimeout, func() { m.onConnectTimeout(s) })
	conn, q, ctx := s.conn, s.queue, s.ctx
	m.mu.Unlock()

	if err := conn.SetRemoteDescription(ctx, a.SDP); err != nil {
		_ = m.abort(ctx, s, calls.EndReasonNegotiation, err)
		return
	}
	n := q.Flush(conn.AddICECandidate)
	m.sessionLog(s).Info("answer applied", "queued_candidates", n)
	m.afterRemoteDescription(s)
}

func (m *Manager) onRemoteCandidate(s *Session, c signaling.Candidate) {
	m.mu.Lock()
	q := s.queue
	m.mu.Unlock()
	q.EnqueueOrApply(c.Candidate)
}

func (m *Manager) onRemoteEnded(s *Session, e signaling.CallEnded) {
	end := endPlan{
		phase:   calls.PhaseEnded,
		reason:  calls.EndReasonRemoteHangup,
		notice:  EventRemoteEnded,
		message: "the other participant ended the call",
	}
	m.mu.Lock()
	if s.dir == outgoing && s.phase == calls.PhaseOutgoingRinging {
		// hung up before answering: declined, or the callee's ring timed out
		end.reason = calls.EndReasonRejected
		if e.Reason == calls.EndReasonNoAnswer {
			end.reason = calls.EndReasonNoAnswer
			end.notice = EventNoAnswer
			end.message = "no answer"
		}
	}
	m.mu.Unlock()
	m.teardown(context.Background(), s, end)
}

// onReadyToReceive replays the offer and published candidates for a callee
// that subscribed after they were sent.
func (m *Manager) onReadyToReceive(s *Session) {
	m.mu.Lock()
	if !m.liveLocked(s) || s.dir != outgoing || s.phase != calls.PhaseOutgoingRinging || s.offer == nil {
		m.mu.Unlock()
		return
	}
	if s.offerResends >= m.cfg.OfferResendLimit {
		m.mu.Unlock()
		m.sessionLog(s).Warn("offer resend limit reached")
		return
	}
	s.offerResends++
	attempt := s.offerResends
	offer := signaling.Offer{SDP: *s.offer, CallerName: s.localName, CallType: s.kind}
	cands := append([]webrtc.ICECandidateInit(nil), s.sentCandidates...)
	sctx := s.ctx
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(sctx, publishTimeout)
	defer cancel()
	if err := m.publish(ctx, s, offer); err != nil {
		m.sessionLog(s).Warn("offer resend failed", "attempt", attempt, "err", err)
		return
	}
	for _, c := range cands {
		if err := m.publish(ctx, s, signaling.Candidate{Candidate: c}); err != nil {
			m.sessionLog(s).Warn("candidate resend failed", "err", err)
			return
		}
	}
	m.sessionLog(s).Info("offer resent", "attempt", attempt, "candidates", len(cands))
}

// onLocalCandidate publishes c, or holds it until our description is out.
func (m *Manager) onLocalCandidate(s *Session, c webrtc.ICECandidateInit) {
	m.mu.Lock()
	if !m.liveLocked(s) {
		m.mu.Unlock()
		return
	}
	if !s.descSent {
		s.outbox = append(s.outbox, c)
		m.mu.Unlock()
		return
	}
	s.sentCandidates = append(s.sentCandidates, c)
	sctx := s.ctx
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(sctx, publishTimeout)
	defer cancel()
	if err := m.publish(ctx, s, signaling.Candidate{Candidate: c}); err != nil {
		m.sessionLog(s).Warn("candidate publish failed", "err", err)
	}
}

// markDescriptionSent releases candidates gathered before the offer or answer went out.
func (m *Manager) markDescriptionSent(s *Session) {
	m.mu.Lock()
	if !m.liveLocked(s) {
		m.mu.Unlock()
		return
	}
	s.descSent = true
	held := s.outbox
	s.outbox = nil
	s.sentCandidates = append(s.sentCandidates, held...)
	sctx := s.ctx
	m.mu.Unlock()

	if len(held) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(sctx, publishTimeout)
	defer cancel()
	for _, c := range held {
		if err := m.publish(ctx, s, signaling.Candidate{Candidate: c}); err != nil {
			m.sessionLog(s).Warn("candidate publish failed", "err", err)
			return
		}
	}
}

func (m *Manager) onRemoteTrack(s *Session, t media.RemoteTrack) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.liveLocked(s) {
		return
	}
	s.remote.Append(t)
	m.emitLocked(EventRemoteTracks, s.stateLocked(), "")
}

func (m *Manager) onConnectivity(s *Session, c peer.Connectivity) {
	switch {
	case c == peer.ConnectivityConnected:
		m.mu.Lock()
		if !m.liveLocked(s) {
			m.mu.Unlock()
			return
		}
		s.transportConnected = true
		m.mu.Unlock()
		m.afterRemoteDescription(s)
	case c.Lost():
		m.mu.Lock()
		if !m.liveLocked(s) {
			m.mu.Unlock()
			return
		}
		r, _ := m.finishLocked(s, endPlan{
			phase:        calls.PhaseFailed,
			reason:       calls.EndReasonDisconnected,
			notice:       EventCallDisconnected,
			message:      "call disconnected",
			notifyRemote: true,
		})
		m.releases.Add(1)
		m.mu.Unlock()
		// The connection may be reporting from inside its own callback; close it elsewhere.
		go func() {
			defer m.releases.Done()
			m.release(context.Background(), s, r)
		}()
	}
}

// afterRemoteDescription moves connecting -> connected once the transport is up.
func (m *Manager) afterRemoteDescription(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.liveLocked(s) || !s.transportConnected || s.phase != calls.PhaseConnecting {
		return
	}
	if s.connectTimer != nil {
		s.connectTimer.Stop()
		s.connectTimer = nil
	}
	if err := m.transitionLocked(s, calls.PhaseConnected); err != nil {
		return
	}
	m.sessionLog(s).Info("call connected")
}

func (m *Manager) onRingTimeout(s *Session) {
	m.mu.Lock()
	ringing := m.liveLocked(s) && !s.accepting &&
		(s.phase == calls.PhaseOutgoingRinging || s.phase == calls.PhaseIncomingRinging)
	m.mu.Unlock()
	if !ringing {
		return
	}
	m.teardown(context.Background(), s, endPlan{
		phase:        calls.PhaseEnded,
		reason:       calls.EndReasonNoAnswer,
		notice:       EventNoAnswer,
		message:      "no answer",
		notifyRemote: true,
	})
}

func (m *Manager) onConnectTimeout(s *Session) {
	m.mu.Lock()
	stuck := m.liveLocked(s) && s.phase == calls.PhaseConnecting
	m.mu.Unlock()
	if !stuck {
		return
	}
	m.teardown(context.Background(), s, endPlan{
		phase:        calls.PhaseFailed,
		reason:       calls.EndReasonConnectTimeout,
		notice:       EventCallFailed,
		message:      "call failed: connection timed out",
		notifyRemote: true,
	})
}
