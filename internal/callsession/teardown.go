package callsession

import (
	"context"
	"time"

	"telehealth-platform/internal/audit"
	"telehealth-platform/internal/calls"
	"telehealth-platform/internal/icequeue"
	"telehealth-platform/internal/media"
	"telehealth-platform/internal/peer"
	"telehealth-platform/internal/signaling"

	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// endPlan describes how a session terminates.
type endPlan struct {
	phase   calls.Phase
	reason  calls.EndReason
	notice  EventType
	message string
	// notifyRemote publishes call-ended before the channel closes.
	notifyRemote bool
}

// released holds what a finished session still owns.
type released struct {
	end          endPlan
	ch           *signaling.Channel
	conn         peer.Connection
	media        *media.Handle
	queue        *icequeue.Queue
	presenceHeld bool
	connectedAt  *time.Time
}

// teardown is the single exit path for a session. The first caller wins;
// later calls for the same session return immediately.
func (m *Manager) teardown(ctx context.Context, s *Session, end endPlan) {
	m.mu.Lock()
	r, ok := m.finishLocked(s, end)
	m.mu.Unlock()
	if ok {
		m.release(ctx, s, r)
	}
}

// finishLocked makes s terminal: the phase, m.last and the end notices are
// settled before m.mu is released, so no other operation can observe s as
// live afterwards. It reports false if s was already finished.
func (m *Manager) finishLocked(s *Session, end endPlan) (released, bool) {
	if s.closed {
		return released{}, false
	}
	if _, err := calls.Transition(s.phase, end.phase); err == nil {
		s.phase = end.phase
	}
	s.closed = true
	s.stopTimers()
	s.cancel()
	if m.session == s {
		m.session = nil
	}
	s.outbox = nil

	st := s.stateLocked()
	m.last = st
	m.emitLocked(EventState, st, "")
	if end.notice != "" {
		m.emitLocked(end.notice, st, end.message)
	}
	return released{
		end:          end,
		ch:           s.ch,
		conn:         s.conn,
		media:        s.media,
		queue:        s.queue,
		presenceHeld: s.presenceHeld,
		connectedAt:  s.connectedAt,
	}, true
}

// release frees what a finished session held and records its outcome.
// m.mu must not be held.
func (m *Manager) release(ctx context.Context, s *Session, r released) {
	end := r.end
	log := m.sessionLog(s).With("reason", end.reason, "phase", end.phase)

	if end.notifyRemote && r.ch != nil {
		// Waits out an in-flight offer or answer so call-ended is the last word.
		s.pubMu.Lock()
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		if err := r.ch.Publish(pctx, signaling.CallEnded{Reason: end.reason}); err != nil {
			log.Warn("call-ended publish failed", "err", err)
		}
		cancel()
		s.pubMu.Unlock()
	}

	var err error
	if r.conn != nil {
		err = multierr.Append(err, r.conn.Close())
	}
	err = multierr.Combine(err, r.media.Release(), r.ch.Close())
	r.queue.Clear()
	if err != nil {
		log.Warn("call teardown incomplete", "err", err)
	}

	if r.presenceHeld && m.deps.Presence != nil {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
		if err := m.deps.Presence.Release(pctx, m.self.ID, s.channel); err != nil {
			log.Warn("presence release failed", "err", err)
		}
		cancel()
	}

	log.Info("call ended")
	m.recordHistory(s, end, r.connectedAt)

	switch {
	case end.reason == calls.EndReasonRejected:
		m.auditCall(s, audit.EventTypeCallRejected, string(end.reason))
	case end.phase == calls.PhaseFailed:
		m.auditCall(s, audit.EventTypeCallFailed, string(end.reason))
	default:
		m.auditCall(s, audit.EventTypeCallEnded, string(end.reason))
	}
}

// recordHistory writes one record per call, from the caller's side only.
func (m *Manager) recordHistory(s *Session, end endPlan, connectedAt *time.Time) {
	if m.deps.History == nil || m.self.ClinicID == "" || s.dir != outgoing {
		return
	}
	endedAt := m.deps.Clock().UTC()
	rec := calls.Record{
		ID:             uuid.NewString(),
		ClinicID:       m.self.ClinicID,
		SessionChannel: s.channel,
		CallerID:       s.callerID(),
		CalleeID:       s.calleeID(),
		Kind:           s.kind,
		Status:         calls.StatusFor(end.phase, end.reason, connectedAt != nil),
		EndReason:      end.reason,
		StartedAt:      s.startedAt,
		ConnectedAt:    connectedAt,
		EndedAt:        endedAt,
	}
	if connectedAt != nil {
		rec.DurationSeconds = int(endedAt.Sub(*connectedAt).Seconds())
	}

	ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer cancel()
	if err := m.deps.History.Insert(ctx, rec); err != nil {
		m.sessionLog(s).Warn("call history write failed", "err", err)
	}
}
