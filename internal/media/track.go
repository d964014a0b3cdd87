package media

import (
	"sync"

	"github.com/pion/webrtc/v4"
)

type TrackKind string

const (
	KindAudio TrackKind = "audio"
	KindVideo TrackKind = "video"
)

// Track is one local capture track owned by a Handle.
type Track interface {
	ID() string
	Kind() TrackKind
	Enabled() bool
	SetEnabled(enabled bool)
	Stop() error
	Stopped() bool
	// Local is the pion track handed to the peer connection.
	Local() webrtc.TrackLocal
}

// LocalTrack adapts a pion TrackLocal plus its release func into a Track.
type LocalTrack struct {
	kind  TrackKind
	local webrtc.TrackLocal
	stop  func() error

	mu       sync.Mutex
	enabled  bool
	stopped  bool
	stopOnce sync.Once
	stopErr  error
}

// NewLocalTrack wraps local. stop releases the underlying device and may be nil.
func NewLocalTrack(kind TrackKind, local webrtc.TrackLocal, stop func() error) *LocalTrack {
	return &LocalTrack{kind: kind, local: local, stop: stop, enabled: true}
}

func (t *LocalTrack) ID() string               { return t.local.ID() }
func (t *LocalTrack) Kind() TrackKind          { return t.kind }
func (t *LocalTrack) Local() webrtc.TrackLocal { return t.local }

func (t *LocalTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *LocalTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
}

// Stop releases the device once. Later calls return the first result.
func (t *LocalTrack) Stop() error {
	t.stopOnce.Do(func() {
		if t.stop != nil {
			t.stopErr = t.stop()
		}
		t.mu.Lock()
		t.stopped = true
		t.enabled = false
		t.mu.Unlock()
	})
	return t.stopErr
}

func (t *LocalTrack) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}
