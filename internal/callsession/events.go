package callsession

import (
	"telehealth-platform/internal/calls"
	"telehealth-platform/internal/media"
)

type EventType string

const (
	EventState             EventType = "state"
	EventIncomingCall      EventType = "incoming-call"
	EventCameraUnavailable EventType = "camera-unavailable"
	EventCallFailed        EventType = "call-failed"
	EventCallDisconnected  EventType = "call-disconnected"
	EventRemoteEnded       EventType = "remote-ended"
	EventNoAnswer          EventType = "no-answer"
	EventRemoteTracks      EventType = "remote-tracks"
)

// Event is pushed to UI subscribers. State is always the snapshot at emit time.
type Event struct {
	Type    EventType `json:"type"`
	State   State     `json:"state"`
	Message string    `json:"message,omitempty"`
}

// IncomingCall is the prompt shown to a callee while ringing.
type IncomingCall struct {
	SessionChannel string     `json:"session_channel"`
	CallerID       string     `json:"caller_id"`
	CallerName     string     `json:"caller_name"`
	Kind           calls.Kind `json:"call_type"`
}

// State is the read-only view of the session.
type State struct {
	SessionChannel string        `json:"session_channel,omitempty"`
	Phase          calls.Phase   `json:"phase"`
	Kind           calls.Kind    `json:"call_type,omitempty"`
	RemoteID       string        `json:"remote_id,omitempty"`
	RemoteName     string        `json:"remote_name,omitempty"`
	AudioEnabled   bool          `json:"is_audio_enabled"`
	VideoEnabled   bool          `json:"is_video_enabled"`
	Connected      bool          `json:"is_connected"`
	Incoming       *IncomingCall `json:"incoming_call"`

	LocalTracks  []media.TrackInfo   `json:"local_stream"`
	RemoteTracks []media.RemoteTrack `json:"remote_stream"`
}

const subscriberBuffer = 64

// Subscribe returns a stream of events and a cancel func.
// Slow subscribers lose events rather than block the session.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.mu.Unlock()

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if c, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(c)
		}
	}
}

// emitLocked fans out e. m.mu must be held.
func (m *Manager) emitLocked(t EventType, st State, msg string) {
	e := Event{Type: t, State: st, Message: msg}
	for _, ch := range m.subs {
		select {
		case ch <- e:
		default:
			m.log.Warn("call event dropped for slow subscriber", "event", t)
		}
	}
}
