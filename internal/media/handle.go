package media

import (
	"sync"

	"go.uber.org/multierr"
)

// Handle is the exclusive owner of the local tracks for one call.
// Release stops every track and must be called on every terminal transition.
type Handle struct {
	tracks []Track

	mu       sync.Mutex
	released bool
}

func NewHandle(tracks ...Track) *Handle {
	out := make([]Track, 0, len(tracks))
	for _, t := range tracks {
		if t != nil {
			out = append(out, t)
		}
	}
	return &Handle{tracks: out}
}

// Tracks returns a copy of the owned tracks.
func (h *Handle) Tracks() []Track {
	out := make([]Track, len(h.tracks))
	copy(out, h.tracks)
	return out
}

// Track returns the first track of kind, if any.
func (h *Handle) Track(kind TrackKind) (Track, bool) {
	for _, t := range h.tracks {
		if t.Kind() == kind {
			return t, true
		}
	}
	return nil, false
}

func (h *Handle) HasVideo() bool {
	_, ok := h.Track(KindVideo)
	return ok
}

// Release stops all tracks. A second call is a no-op returning nil.
func (h *Handle) Release() error {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return nil
	}
	h.released = true
	h.mu.Unlock()

	var err error
	for _, t := range h.tracks {
		err = multierr.Append(err, t.Stop())
	}
	return err
}

func (h *Handle) Released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}

// Snapshot describes the handle for UI consumers.
func (h *Handle) Snapshot() []TrackInfo {
	out := make([]TrackInfo, 0, len(h.tracks))
	for _, t := range h.tracks {
		out = append(out, TrackInfo{ID: t.ID(), Kind: t.Kind(), Enabled: t.Enabled(), Stopped: t.Stopped()})
	}
	return out
}

type TrackInfo struct {
	ID      string    `json:"id"`
	Kind    TrackKind `json:"kind"`
	Enabled bool      `json:"enabled"`
	Stopped bool      `json:"stopped"`
}
