package peer

import (
	"context"
	"strings"
	"testing"

	"telehealth-platform/internal/media"

	"github.com/pion/webrtc/v4"
)

func newTestFactory(t *testing.T) *PionFactory {
	t.Helper()
	f, err := NewPionFactory(Config{ICEServers: []string{}, Codecs: media.SyntheticSource{}})
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	return f
}

func TestFromPion(t *testing.T) {
	cases := map[webrtc.PeerConnectionState]Connectivity{
		webrtc.PeerConnectionStateNew:          ConnectivityNew,
		webrtc.PeerConnectionStateConnecting:   ConnectivityConnecting,
		webrtc.PeerConnectionStateConnected:    ConnectivityConnected,
		webrtc.PeerConnectionStateDisconnected: ConnectivityDisconnected,
		webrtc.PeerConnectionStateFailed:       ConnectivityFailed,
		webrtc.PeerConnectionStateClosed:       ConnectivityClosed,
	}
	for in, want := range cases {
		if got := FromPion(in); got != want {
			t.Fatalf("FromPion(%s) = %s, want %s", in, got, want)
		}
	}
	if !ConnectivityDisconnected.Lost() || !ConnectivityFailed.Lost() || ConnectivityClosed.Lost() {
		t.Fatalf("unexpected Lost mapping")
	}
}

func TestPionConnection_OfferAnswer(t *testing.T) {
	f := newTestFactory(t)
	ctx := context.Background()

	caller, err := f.Create(ctx)
	if err != nil {
		t.Fatalf("create caller: %v", err)
	}
	defer caller.Close()
	callee, err := f.Create(ctx)
	if err != nil {
		t.Fatalf("create callee: %v", err)
	}
	defer callee.Close()

	src := media.SyntheticSource{}
	res, err := media.Acquire(ctx, src, true)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer res.Handle.Release()
	if err := caller.AddLocalTracks(res.Handle); err != nil {
		t.Fatalf("add tracks: %v", err)
	}

	offer, err := caller.CreateOffer(ctx)
	if err != nil {
		t.Fatalf("offer: %v", err)
	}
	if !strings.Contains(offer.SDP, "m=audio") || !strings.Contains(offer.SDP, "m=video") {
		t.Fatalf("expected audio and video sections in offer")
	}
	if err := callee.SetRemoteDescription(ctx, offer); err != nil {
		t.Fatalf("callee set remote: %v", err)
	}
	answer, err := callee.CreateAnswer(ctx)
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if answer.Type != webrtc.SDPTypeAnswer {
		t.Fatalf("expected answer type, got %s", answer.Type)
	}
	if err := caller.SetRemoteDescription(ctx, answer); err != nil {
		t.Fatalf("caller set remote: %v", err)
	}

	if err := caller.SetSending(media.KindVideo, false); err != nil {
		t.Fatalf("pause video: %v", err)
	}
	if err := caller.SetSending(media.KindVideo, true); err != nil {
		t.Fatalf("resume video: %v", err)
	}
}

func TestPionConnection_CandidateBeforeRemoteDescriptionFails(t *testing.T) {
	f := newTestFactory(t)
	c, err := f.Create(context.Background())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer c.Close()

	cand := webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 2130706431 192.0.2.1 50000 typ host"}
	if err := c.AddICECandidate(cand); err == nil {
		t.Fatalf("expected error without remote description")
	}
}

func TestPionConnection_CloseIsIdempotent(t *testing.T) {
	f := newTestFactory(t)
	c, err := f.Create(context.Background())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestPionFactory_CanceledContext(t *testing.T) {
	f := newTestFactory(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.Create(ctx); err == nil {
		t.Fatalf("expected context error")
	}
}
