// Package peer owns the WebRTC peer connection for one call.
package peer

import (
	"context"
	"errors"

	"telehealth-platform/internal/media"

	"github.com/pion/webrtc/v4"
)

var ErrClosed = errors.New("peer: connection closed")

// Connectivity is the transport state surfaced to the call session.
type Connectivity string

const (
	ConnectivityNew          Connectivity = "new"
	ConnectivityConnecting   Connectivity = "connecting"
	ConnectivityConnected    Connectivity = "connected"
	ConnectivityDisconnected Connectivity = "disconnected"
	ConnectivityFailed       Connectivity = "failed"
	ConnectivityClosed       Connectivity = "closed"
)

// Lost reports whether the transport dropped in a way that ends the call.
func (c Connectivity) Lost() bool {
	return c == ConnectivityDisconnected || c == ConnectivityFailed
}

// FromPion maps pion's aggregate connection state.
func FromPion(s webrtc.PeerConnectionState) Connectivity {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		return ConnectivityConnecting
	case webrtc.PeerConnectionStateConnected:
		return ConnectivityConnected
	case webrtc.PeerConnectionStateDisconnected:
		return ConnectivityDisconnected
	case webrtc.PeerConnectionStateFailed:
		return ConnectivityFailed
	case webrtc.PeerConnectionStateClosed:
		return ConnectivityClosed
	default:
		return ConnectivityNew
	}
}

// Connection is the subset of a peer connection the call session drives.
// CreateOffer and CreateAnswer also install the result as the local description.
type Connection interface {
	AddLocalTracks(h *media.Handle) error
	CreateOffer(ctx context.Context) (webrtc.SessionDescription, error)
	CreateAnswer(ctx context.Context) (webrtc.SessionDescription, error)
	SetRemoteDescription(ctx context.Context, sd webrtc.SessionDescription) error
	AddICECandidate(c webrtc.ICECandidateInit) error

	OnLocalCandidate(fn func(webrtc.ICECandidateInit))
	OnRemoteTrack(fn func(media.RemoteTrack))
	OnConnectivityChange(fn func(Connectivity))

	// SetSending pauses or resumes the sender for kind without renegotiating.
	SetSending(kind media.TrackKind, enabled bool) error
	Close() error
}

// Factory creates one Connection per call.
type Factory interface {
	Create(ctx context.Context) (Connection, error)
}
