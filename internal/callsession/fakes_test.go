package callsession

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"telehealth-platform/internal/media"
	"telehealth-platform/internal/peer"
	"telehealth-platform/internal/signaling"

	"github.com/pion/webrtc/v4"
)

// eventLog is a shared, ordered record of what the fakes observed.
type eventLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *eventLog) add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, fmt.Sprintf(format, args...))
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

func (l *eventLog) index(entry string) int {
	for i, e := range l.snapshot() {
		if e == entry {
			return i
		}
	}
	return -1
}

func (l *eventLog) count(entry string) int {
	n := 0
	for _, e := range l.snapshot() {
		if e == entry {
			n++
		}
	}
	return n
}

// loggingRelay records every publish as "publish:<event>:<sender>".
type loggingRelay struct {
	*signaling.MemoryRelay
	log *eventLog
}

func newLoggingRelay(log *eventLog) *loggingRelay {
	return &loggingRelay{MemoryRelay: signaling.NewMemoryRelay(), log: log}
}

func (r *loggingRelay) Publish(ctx context.Context, channel string, msg []byte) error {
	if ev, err := signaling.Decode(msg); err == nil {
		r.log.add("publish:%s:%s", ev.Kind(), ev.Sender())
	}
	return r.MemoryRelay.Publish(ctx, channel, msg)
}

// gatedRelay holds the first publish of one event kind until release is closed.
type gatedRelay struct {
	*loggingRelay
	kind    signaling.EventKind
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedRelay(inner *loggingRelay, kind signaling.EventKind) *gatedRelay {
	return &gatedRelay{
		loggingRelay: inner,
		kind:         kind,
		entered:      make(chan struct{}),
		release:      make(chan struct{}),
	}
}

func (r *gatedRelay) Publish(ctx context.Context, channel string, msg []byte) error {
	if ev, err := signaling.Decode(msg); err == nil && ev.Kind() == r.kind {
		r.once.Do(func() {
			close(r.entered)
			<-r.release
		})
	}
	return r.loggingRelay.Publish(ctx, channel, msg)
}

type fakeConn struct {
	name string
	log  *eventLog

	mu             sync.Mutex
	hasRemote      bool
	closed         bool
	closes         int
	tracks         int
	sending        map[media.TrackKind]bool
	setRemoteErr   error
	onCandidate    func(webrtc.ICECandidateInit)
	onTrack        func(media.RemoteTrack)
	onConnectivity func(peer.Connectivity)
}

func (c *fakeConn) AddLocalTracks(h *media.Handle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracks = len(h.Tracks())
	return nil
}

func (c *fakeConn) CreateOffer(ctx context.Context) (webrtc.SessionDescription, error) {
	c.log.add("%s:create-offer", c.name)
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer from " + c.name}, nil
}

func (c *fakeConn) CreateAnswer(ctx context.Context) (webrtc.SessionDescription, error) {
	c.log.add("%s:create-answer", c.name)
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer from " + c.name}, nil
}

func (c *fakeConn) SetRemoteDescription(ctx context.Context, sd webrtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setRemoteErr != nil {
		return c.setRemoteErr
	}
	c.hasRemote = true
	c.log.add("%s:set-remote:%s", c.name, sd.Type)
	return nil
}

func (c *fakeConn) AddICECandidate(cand webrtc.ICECandidateInit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasRemote {
		c.log.add("%s:candidate-too-early:%s", c.name, cand.Candidate)
		return errors.New("remote description not set")
	}
	c.log.add("%s:add-candidate:%s", c.name, cand.Candidate)
	return nil
}

func (c *fakeConn) OnLocalCandidate(fn func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onCandidate = fn
}

func (c *fakeConn) OnRemoteTrack(fn func(media.RemoteTrack)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTrack = fn
}

func (c *fakeConn) OnConnectivityChange(fn func(peer.Connectivity)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnectivity = fn
}

func (c *fakeConn) SetSending(kind media.TrackKind, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sending[kind] = enabled
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

func (c *fakeConn) gather(candidate string) {
	c.mu.Lock()
	fn := c.onCandidate
	c.mu.Unlock()
	if fn != nil {
		fn(webrtc.ICECandidateInit{Candidate: candidate})
	}
}

func (c *fakeConn) report(s peer.Connectivity) {
	c.mu.Lock()
	fn := c.onConnectivity
	c.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (c *fakeConn) deliverTrack(t media.RemoteTrack) {
	c.mu.Lock()
	fn := c.onTrack
	c.mu.Unlock()
	if fn != nil {
		fn(t)
	}
}

type fakeFactory struct {
	name string
	log  *eventLog

	mu    sync.Mutex
	conns []*fakeConn
	err   error
}

func (f *fakeFactory) Create(ctx context.Context) (peer.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	c := &fakeConn{name: f.name, log: f.log, sending: map[media.TrackKind]bool{}}
	f.conns = append(f.conns, c)
	return c, nil
}

func (f *fakeFactory) created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

func (f *fakeFactory) last() *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.conns) == 0 {
		return nil
	}
	return f.conns[len(f.conns)-1]
}

// recordingSource wraps SyntheticSource and keeps every track it opened.
type recordingSource struct {
	micErr  error
	noCam   bool
	blockCh chan struct{} // when set, OpenMicrophone waits for it to close
	entered chan struct{}

	mu       sync.Mutex
	tracks   []media.Track
	micOpens int
	camOpens int
}

func (s *recordingSource) OpenMicrophone(ctx context.Context) (media.Track, error) {
	s.mu.Lock()
	s.micOpens++
	entered := s.entered
	s.entered = nil
	s.mu.Unlock()
	if entered != nil {
		close(entered)
	}
	if s.blockCh != nil {
		<-s.blockCh
	}
	if s.micErr != nil {
		return nil, s.micErr
	}
	t, err := media.SyntheticSource{StreamID: "test"}.OpenMicrophone(ctx)
	if err != nil {
		return nil, err
	}
	s.keep(t)
	return t, nil
}

func (s *recordingSource) OpenCamera(ctx context.Context) (media.Track, error) {
	s.mu.Lock()
	s.camOpens++
	s.mu.Unlock()
	t, err := media.SyntheticSource{StreamID: "test", NoCamera: s.noCam}.OpenCamera(ctx)
	if err != nil {
		return nil, err
	}
	s.keep(t)
	return t, nil
}

func (s *recordingSource) keep(t media.Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks = append(s.tracks, t)
}

func (s *recordingSource) opened() []media.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]media.Track(nil), s.tracks...)
}

func (s *recordingSource) cameraOpens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.camOpens
}

func (s *recordingSource) microphoneOpens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.micOpens
}

// recorder drains a subscription into a slice.
type recorder struct {
	mu     sync.Mutex
	events []Event
	done   chan struct{}
}

func record(m *Manager) (*recorder, func()) {
	ch, cancel := m.Subscribe()
	r := &recorder{done: make(chan struct{})}
	go func() {
		defer close(r.done)
		for e := range ch {
			r.mu.Lock()
			r.events = append(r.events, e)
			r.mu.Unlock()
		}
	}()
	return r, func() {
		cancel()
		<-r.done
	}
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) count(t EventType) int {
	n := 0
	for _, e := range r.all() {
		if e.Type == t {
			n++
		}
	}
	return n
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
