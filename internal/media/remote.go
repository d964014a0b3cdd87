package media

import "sync"

// RemoteTrack describes one track received from the remote peer.
type RemoteTrack struct {
	ID       string    `json:"id"`
	StreamID string    `json:"stream_id"`
	Kind     TrackKind `json:"kind"`
	Codec    string    `json:"codec"`
}

// RemoteStream is an append-only accumulator of remote tracks.
// Readers only ever see copies.
type RemoteStream struct {
	mu     sync.RWMutex
	tracks []RemoteTrack
}

func NewRemoteStream() *RemoteStream { return &RemoteStream{} }

// Append adds t and returns the snapshot including it.
// A track with an ID already present is ignored.
func (s *RemoteStream) Append(t RemoteTrack) []RemoteTrack {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.tracks {
		if existing.ID == t.ID && t.ID != "" {
			return s.snapshotLocked()
		}
	}
	s.tracks = append(s.tracks, t)
	return s.snapshotLocked()
}

func (s *RemoteStream) Snapshot() []RemoteTrack {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *RemoteStream) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tracks)
}

func (s *RemoteStream) snapshotLocked() []RemoteTrack {
	out := make([]RemoteTrack, len(s.tracks))
	copy(out, s.tracks)
	return out
}
