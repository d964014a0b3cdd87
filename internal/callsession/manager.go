package callsession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"telehealth-platform/internal/audit"
	"telehealth-platform/internal/calls"
	"telehealth-platform/internal/icequeue"
	"telehealth-platform/internal/media"
	"telehealth-platform/internal/peer"
	"telehealth-platform/internal/presence"
	"telehealth-platform/internal/signaling"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

// Manager owns at most one Session for its participant.
//
// All session state is mutated under mu. Media acquisition, connection
// setup, SDP generation and relay publishes run with mu released; each
// resumes through a liveness check and releases what it produced if the
// session was torn down in the meantime.
type Manager struct {
	self Participant
	deps Deps
	cfg  Config
	log  *slog.Logger

	mu       sync.Mutex
	session  *Session
	last     State
	watchers map[string]*signaling.Channel
	subs     map[int]chan Event
	nextSub  int
	closed   bool

	// releases tracks teardowns finished off the connection's callback.
	releases sync.WaitGroup
}

func NewManager(self Participant, deps Deps, cfg Config) *Manager {
	deps = deps.withDefaults()
	return &Manager{
		self:     self,
		deps:     deps,
		cfg:      cfg.withDefaults(),
		log:      deps.Logger.With("local_id", self.ID),
		last:     State{Phase: calls.PhaseIdle, LocalTracks: []media.TrackInfo{}, RemoteTracks: []media.RemoteTrack{}},
		watchers: map[string]*signaling.Channel{},
		subs:     map[int]chan Event{},
	}
}

func (m *Manager) Participant() Participant {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.self
}

// SetDisplayName changes the name sent with future offers.
func (m *Manager) SetDisplayName(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.self.DisplayName = name
}

// closeIfIdle closes m if it holds no call, watch or subscriber.
func (m *Manager) closeIfIdle() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.session != nil || len(m.watchers) > 0 || len(m.subs) > 0 {
		return false
	}
	m.closed = true
	return true
}

// State returns the current session state, or the final state of the last call.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != nil {
		return m.session.stateLocked()
	}
	return m.last
}

// StartCall places a call to remoteID on channel. It returns once the offer
// is published and the phase is outgoing-ringing. On failure the session is
// torn down before returning.
func (m *Manager) StartCall(ctx context.Context, channel, remoteID string, kind calls.Kind) error {
	if channel == "" || remoteID == "" || remoteID == m.self.ID || !kind.Valid() {
		return ErrInvalidRequest
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrSessionClosed
	}
	if m.session != nil {
		m.mu.Unlock()
		return ErrSessionActive
	}
	s := m.newSessionLocked(channel, remoteID, "", kind, outgoing)
	watched := m.takeWatcherLocked(channel)
	m.mu.Unlock()

	if err := m.reservePresence(ctx, s); err != nil {
		_ = watched.Close()
		return m.abort(ctx, s, calls.EndReasonBusy, err)
	}

	res, err := media.Acquire(ctx, m.deps.Media, kind.WantsVideo())
	if err != nil {
		_ = watched.Close()
		return m.abort(ctx, s, calls.EndReasonMedia, err)
	}
	if err := m.attachMedia(s, res); err != nil {
		_ = watched.Close()
		return err
	}

	conn, err := m.connect(ctx, s, res.Handle)
	if err != nil {
		_ = watched.Close()
		return err
	}

	if err := m.openChannel(ctx, s, watched); err != nil {
		return err
	}

	offer, err := conn.CreateOffer(ctx)
	if err != nil {
		return m.abort(ctx, s, calls.EndReasonNegotiation, err)
	}

	m.mu.Lock()
	if !m.liveLocked(s) {
		m.mu.Unlock()
		return ErrSessionClosed
	}
	s.offer = &offer
	if err := m.transitionLocked(s, calls.PhaseOutgoingRinging); err != nil {
		m.mu.Unlock()
		return m.abort(ctx, s, calls.EndReasonNegotiation, err)
	}
	s.ringTimer = time.AfterFunc(m.cfg.RingTimeout, func() { m.onRingTimeout(s) })
	callerName := s.localName
	m.mu.Unlock()

	if err := m.publish(ctx, s, signaling.Offer{SDP: offer, CallerName: callerName, CallType: kind}); err != nil {
		return m.abort(ctx, s, calls.EndReasonSignaling, err)
	}
	m.markDescriptionSent(s)
	if !m.live(s) {
		// hung up while the offer was in flight
		return ErrSessionClosed
	}

	m.sessionLog(s).Info("call started", "call_type", kind)
	m.auditCall(s, audit.EventTypeCallStarted, string(kind))
	return nil
}

// Watch listens on channel for offers. The first offer that arrives while
// no call is active turns into an incoming-ringing session, which takes
// over the watch subscription.
func (m *Manager) Watch(ctx context.Context, channel string) error {
	if channel == "" {
		return ErrInvalidRequest
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrSessionClosed
	}
	if _, ok := m.watchers[channel]; ok || (m.session != nil && m.session.channel == channel) {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	ch, err := signaling.Open(ctx, m.deps.Relay, channel, m.self.ID, m.log)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.watchers[channel]; ok || m.closed {
		_ = ch.Close()
		return nil
	}
	m.watchers[channel] = ch
	ch.On(signaling.KindOffer, func(ev signaling.Event) {
		if o, ok := ev.(signaling.Offer); ok {
			m.onWatchedOffer(ch, o)
		}
	})
	return nil
}

// Unwatch stops listening on channel. An active session on it is unaffected.
func (m *Manager) Unwatch(channel string) {
	m.mu.Lock()
	ch := m.takeWatcherLocked(channel)
	m.mu.Unlock()
	_ = ch.Close()
}

// NotifyIncoming rings for a call announced out of band, before any offer
// has been seen. AcceptCall will request the offer with ready-to-receive.
func (m *Manager) NotifyIncoming(ctx context.Context, channel, callerID, callerName string, kind calls.Kind) error {
	if channel == "" || callerID == "" || callerID == m.self.ID || !kind.Valid() {
		return ErrInvalidRequest
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrSessionClosed
	}
	if m.session != nil {
		m.mu.Unlock()
		return ErrSessionActive
	}
	s := m.newSessionLocked(channel, callerID, callerName, kind, incoming)
	ch := m.takeWatcherLocked(channel)
	m.mu.Unlock()

	if ch == nil {
		var err error
		ch, err = signaling.Open(ctx, m.deps.Relay, channel, m.self.ID, m.log)
		if err != nil {
			return m.abort(ctx, s, calls.EndReasonSignaling, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.liveLocked(s) {
		_ = ch.Close()
		return ErrSessionClosed
	}
	s.ch = ch
	m.beginRingingLocked(s)
	return nil
}

// AcceptCall answers the ringing call. It returns once the answer is
// published, queued candidates are applied and the phase is connecting.
func (m *Manager) AcceptCall(ctx context.Context) error {
	m.mu.Lock()
	s := m.session
	if s == nil {
		m.mu.Unlock()
		return ErrNoSession
	}
	if s.dir != incoming || s.phase != calls.PhaseIncomingRinging || s.accepting {
		m.mu.Unlock()
		return ErrInvalidPhase
	}
	s.accepting = true
	if s.ringTimer != nil {
		s.ringTimer.Stop()
		s.ringTimer = nil
	}
	kind := s.kind
	m.mu.Unlock()

	if err := m.reservePresence(ctx, s); err != nil {
		return m.abort(ctx, s, calls.EndReasonBusy, err)
	}

	res, err := media.Acquire(ctx, m.deps.Media, kind.WantsVideo())
	if err != nil {
		return m.abort(ctx, s, calls.EndReasonMedia, err)
	}
	if err := m.attachMedia(s, res); err != nil {
		return err
	}

	conn, err := m.connect(ctx, s, res.Handle)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if !m.liveLocked(s) {
		m.mu.Unlock()
		return ErrSessionClosed
	}
	if err := m.transitionLocked(s, calls.PhaseConnecting); err != nil {
		m.mu.Unlock()
		return m.abort(ctx, s, calls.EndReasonNegotiation, err)
	}
	ch := s.ch
	// Re-arm the offer handler; the full offer may still be on its way.
	m.installHandlersLocked(s, ch)
	m.mu.Unlock()

	offer, err := m.awaitOffer(ctx, s)
	if err != nil {
		if errors.Is(err, ErrOfferTimeout) {
			return m.abort(ctx, s, calls.EndReasonOfferTimeout, err)
		}
		return m.abort(ctx, s, calls.EndReasonSignaling, err)
	}

	if err := conn.SetRemoteDescription(ctx, offer.SDP); err != nil {
		return m.abort(ctx, s, calls.EndReasonNegotiation, err)
	}
	answer, err := conn.CreateAnswer(ctx)
	if err != nil {
		return m.abort(ctx, s, calls.EndReasonNegotiation, err)
	}
	if err := m.publish(ctx, s, signaling.Answer{SDP: answer}); err != nil {
		return m.abort(ctx, s, calls.EndReasonSignaling, err)
	}
	m.markDescriptionSent(s)

	m.mu.Lock()
	if !m.liveLocked(s) {
		m.mu.Unlock()
		return ErrSessionClosed
	}
	q := s.queue
	s.connectTimer = time.AfterFunc(m.cfg.ConnectTimeout, func() { m.onConnectTimeout(s) })
	m.mu.Unlock()

	n := q.Flush(conn.AddICECandidate)
	m.afterRemoteDescription(s)

	m.sessionLog(s).Info("call accepted", "queued_candidates", n)
	m.auditCall(s, audit.EventTypeCallAccepted, "")
	return nil
}

// RejectCall declines the ringing call and notifies the caller.
func (m *Manager) RejectCall(ctx context.Context) error {
	m.mu.Lock()
	s := m.session
	if s == nil {
		m.mu.Unlock()
		return ErrNoSession
	}
	if s.dir != incoming || s.phase != calls.PhaseIncomingRinging {
		m.mu.Unlock()
		return ErrInvalidPhase
	}
	m.mu.Unlock()

	m.teardown(ctx, s, endPlan{phase: calls.PhaseEnded, reason: calls.EndReasonRejected, notifyRemote: true})
	return nil
}

// EndCall hangs up from any live phase. Without a live session it is a no-op.
func (m *Manager) EndCall(ctx context.Context) error {
	m.mu.Lock()
	s := m.session
	m.mu.Unlock()
	if s == nil {
		return nil
	}
	m.teardown(ctx, s, endPlan{phase: calls.PhaseEnded, reason: calls.EndReasonLocalHangup, notifyRemote: true})
	return nil
}

// ToggleAudio flips the microphone track and returns the new state.
// Without a microphone track it does nothing and returns false.
func (m *Manager) ToggleAudio() bool { return m.toggle(media.KindAudio) }

// ToggleVideo flips the camera track and returns the new state.
// Without a camera track (voice calls) it does nothing and returns false.
func (m *Manager) ToggleVideo() bool { return m.toggle(media.KindVideo) }

func (m *Manager) toggle(kind media.TrackKind) bool {
	m.mu.Lock()
	s := m.session
	if s == nil || s.media == nil || s.closed {
		m.mu.Unlock()
		return false
	}
	t, ok := s.media.Track(kind)
	if !ok {
		m.mu.Unlock()
		return false
	}
	enabled := !t.Enabled()
	t.SetEnabled(enabled)
	if kind == media.KindAudio {
		s.audioEnabled = enabled
	} else {
		s.videoEnabled = enabled
	}
	conn := s.conn
	m.emitLocked(EventState, s.stateLocked(), "")
	m.mu.Unlock()

	if conn != nil {
		if err := conn.SetSending(kind, enabled); err != nil {
			m.sessionLog(s).Warn("toggle sender failed", "kind", kind, "err", err)
		}
	}
	return enabled
}

// Close ends any active call and stops all watches and subscribers.
func (m *Manager) Close(ctx context.Context) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	s := m.session
	watchers := m.watchers
	m.watchers = map[string]*signaling.Channel{}
	m.mu.Unlock()

	if s != nil {
		m.teardown(ctx, s, endPlan{phase: calls.PhaseEnded, reason: calls.EndReasonShutdown, notifyRemote: true})
	}
	for _, ch := range watchers {
		_ = ch.Close()
	}
	m.releases.Wait()

	m.mu.Lock()
	for id, ch := range m.subs {
		delete(m.subs, id)
		close(ch)
	}
	m.mu.Unlock()
}

func (m *Manager) newSessionLocked(channel, remoteID, remoteName string, kind calls.Kind, dir direction) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:           uuid.NewString(),
		channel:      channel,
		localID:      m.self.ID,
		localName:    m.self.DisplayName,
		remoteID:     remoteID,
		remoteName:   remoteName,
		kind:         kind,
		dir:          dir,
		phase:        calls.PhaseIdle,
		remote:       media.NewRemoteStream(),
		queue:        icequeue.New(m.log.With("session_channel", channel)),
		offerArrived: make(chan struct{}, 1),
		startedAt:    m.deps.Clock().UTC(),
		ctx:          ctx,
		cancel:       cancel,
	}
	m.session = s
	return s
}

func (m *Manager) takeWatcherLocked(channel string) *signaling.Channel {
	ch, ok := m.watchers[channel]
	if !ok {
		return nil
	}
	delete(m.watchers, channel)
	return ch
}

// liveLocked reports whether s is still the current, open session.
func (m *Manager) liveLocked(s *Session) bool { return !s.closed && m.session == s }

func (m *Manager) live(s *Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.liveLocked(s)
}

func (m *Manager) transitionLocked(s *Session, to calls.Phase) error {
	next, err := calls.Transition(s.phase, to)
	if err != nil {
		return err
	}
	s.phase = next
	if next == calls.PhaseConnected {
		now := m.deps.Clock().UTC()
		s.connectedAt = &now
	}
	m.emitLocked(EventState, s.stateLocked(), "")
	return nil
}

func (m *Manager) beginRingingLocked(s *Session) {
	m.installHandlersLocked(s, s.ch)
	if err := m.transitionLocked(s, calls.PhaseIncomingRinging); err != nil {
		m.sessionLog(s).Error("cannot ring", "err", err)
		return
	}
	s.ringTimer = time.AfterFunc(m.cfg.RingTimeout, func() { m.onRingTimeout(s) })
	st := s.stateLocked()
	m.emitLocked(EventIncomingCall, st, fmt.Sprintf("incoming %s call from %s", s.kind, displayName(s)))
	m.sessionLog(s).Info("incoming call", "call_type", s.kind, "caller_name", s.remoteName)
}

func displayName(s *Session) string {
	if s.remoteName != "" {
		return s.remoteName
	}
	return s.remoteID
}

func (m *Manager) reservePresence(ctx context.Context, s *Session) error {
	if m.deps.Presence == nil {
		return nil
	}
	if err := m.deps.Presence.Acquire(ctx, m.self.ID, s.channel, m.cfg.PresenceTTL); err != nil {
		if errors.Is(err, presence.ErrBusy) {
			return fmt.Errorf("%w: %w", ErrParticipantBusy, err)
		}
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.liveLocked(s) {
		_ = m.deps.Presence.Release(context.WithoutCancel(ctx), m.self.ID, s.channel)
		return ErrSessionClosed
	}
	s.presenceHeld = true
	return nil
}

func (m *Manager) attachMedia(s *Session, res media.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.liveLocked(s) {
		_ = res.Handle.Release()
		return ErrSessionClosed
	}
	s.media = res.Handle
	s.audioEnabled = true
	s.videoEnabled = res.Handle.HasVideo()
	if res.CameraUnavailable {
		m.sessionLog(s).Warn("camera unavailable, continuing audio-only", "err", res.CameraErr)
		m.emitLocked(EventCameraUnavailable, s.stateLocked(), "camera unavailable, continuing with audio only")
	}
	return nil
}

// connect creates the peer connection, wires its callbacks and attaches local tracks.
func (m *Manager) connect(ctx context.Context, s *Session, h *media.Handle) (peer.Connection, error) {
	if m.deps.Peers == nil {
		return nil, m.abort(ctx, s, calls.EndReasonNegotiation, errors.New("callsession: no peer factory configured"))
	}
	conn, err := m.deps.Peers.Create(ctx)
	if err != nil {
		return nil, m.abort(ctx, s, calls.EndReasonNegotiation, err)
	}

	m.mu.Lock()
	if !m.liveLocked(s) {
		m.mu.Unlock()
		_ = conn.Close()
		return nil, ErrSessionClosed
	}
	s.conn = conn
	conn.OnLocalCandidate(func(c webrtc.ICECandidateInit) { m.onLocalCandidate(s, c) })
	conn.OnRemoteTrack(func(t media.RemoteTrack) { m.onRemoteTrack(s, t) })
	conn.OnConnectivityChange(func(c peer.Connectivity) { m.onConnectivity(s, c) })
	m.mu.Unlock()

	if err := conn.AddLocalTracks(h); err != nil {
		return nil, m.abort(ctx, s, calls.EndReasonNegotiation, err)
	}
	return conn, nil
}

func (m *Manager) openChannel(ctx context.Context, s *Session, watched *signaling.Channel) error {
	ch := watched
	if ch == nil {
		var err error
		ch, err = signaling.Open(ctx, m.deps.Relay, s.channel, m.self.ID, m.log)
		if err != nil {
			return m.abort(ctx, s, calls.EndReasonSignaling, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.liveLocked(s) {
		_ = ch.Close()
		return ErrSessionClosed
	}
	s.ch = ch
	m.installHandlersLocked(s, ch)
	return nil
}

// awaitOffer returns the caller's offer, asking for a resend with
// ready-to-receive when none has been seen yet.
func (m *Manager) awaitOffer(ctx context.Context, s *Session) (signaling.Offer, error) {
	take := func() (signaling.Offer, bool, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		if !m.liveLocked(s) {
			return signaling.Offer{}, false, ErrSessionClosed
		}
		if s.pendingOffer == nil {
			return signaling.Offer{}, false, nil
		}
		s.offerApplied = true
		return *s.pendingOffer, true, nil
	}

	if o, ok, err := take(); err != nil || ok {
		return o, err
	}

	timeout := time.NewTimer(m.cfg.OfferTimeout)
	defer timeout.Stop()
	resend := time.NewTicker(m.cfg.OfferResendInterval)
	defer resend.Stop()

	sent := 0
	signal := func() {
		if sent >= m.cfg.OfferResendLimit {
			return
		}
		sent++
		if err := m.publish(ctx, s, signaling.ReadyToReceive{}); err != nil {
			m.sessionLog(s).Warn("ready-to-receive publish failed", "attempt", sent, "err", err)
		}
	}
	signal()

	for {
		select {
		case <-s.offerArrived:
			if o, ok, err := take(); err != nil || ok {
				return o, err
			}
		case <-resend.C:
			signal()
		case <-timeout.C:
			return signaling.Offer{}, ErrOfferTimeout
		case <-s.ctx.Done():
			return signaling.Offer{}, ErrSessionClosed
		case <-ctx.Done():
			return signaling.Offer{}, ctx.Err()
		}
	}
}

// publish sends ev on s's channel. It fails with ErrSessionClosed once s has finished; teardown's call-ended
// waits for a publish already under way.
func (m *Manager) publish(ctx context.Context, s *Session, ev signaling.Event) error {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	m.mu.Lock()
	live, ch := m.liveLocked(s), s.ch
	m.mu.Unlock()
	if !live {
		return ErrSessionClosed
	}
	return ch.Publish(ctx, ev)
}

// abort tears s down as failed and returns err. A session already closed
// by someone else is left alone.
func (m *Manager) abort(ctx context.Context, s *Session, reason calls.EndReason, err error) error {
	if errors.Is(err, ErrSessionClosed) {
		return err
	}
	m.sessionLog(s).Warn("call setup failed", "reason", reason, "err", err)
	m.teardown(ctx, s, endPlan{
		phase:        calls.PhaseFailed,
		reason:       reason,
		notice:       EventCallFailed,
		message:      "call failed: " + err.Error(),
		notifyRemote: true,
	})
	return err
}

func (m *Manager) sessionLog(s *Session) *slog.Logger {
	return m.log.With("session_channel", s.channel, "remote_id", s.remoteID)
}

func (m *Manager) auditCall(s *Session, t audit.EventType, msg string) {
	if m.deps.Audit == nil || m.self.ClinicID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer cancel()
	if err := m.deps.Audit.LogCall(ctx, m.self.ClinicID, m.self.ID, t, s.channel, msg); err != nil {
		m.sessionLog(s).Debug("audit append failed", "type", t, "err", err)
	}
}
