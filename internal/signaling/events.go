// Package signaling exchanges call negotiation events over a broadcast relay.
package signaling

import (
	"encoding/json"
	"errors"
	"fmt"

	"telehealth-platform/internal/calls"

	"github.com/pion/webrtc/v4"
)

type EventKind string

const (
	KindOffer          EventKind = "offer"
	KindAnswer         EventKind = "answer"
	KindICECandidate   EventKind = "ice-candidate"
	KindCallEnded      EventKind = "call-ended"
	KindReadyToReceive EventKind = "ready-to-receive"
)

var ErrMalformed = errors.New("signaling: malformed message")

// Event is one of Offer, Answer, Candidate, CallEnded or ReadyToReceive.
type Event interface {
	Kind() EventKind
	Sender() string
	withSender(id string) Event
}

type Offer struct {
	SDP        webrtc.SessionDescription `json:"sdp"`
	SenderID   string                    `json:"senderId"`
	CallerName string                    `json:"callerName"`
	CallType   calls.Kind                `json:"callType"`
}

type Answer struct {
	SDP      webrtc.SessionDescription `json:"sdp"`
	SenderID string                    `json:"senderId"`
}

type Candidate struct {
	Candidate webrtc.ICECandidateInit `json:"candidate"`
	SenderID  string                  `json:"senderId"`
}

// CallEnded may carry why the sender hung up; older peers omit it.
type CallEnded struct {
	SenderID string          `json:"senderId"`
	Reason   calls.EndReason `json:"reason,omitempty"`
}

type ReadyToReceive struct {
	SenderID string `json:"senderId"`
}

func (Offer) Kind() EventKind          { return KindOffer }
func (Answer) Kind() EventKind         { return KindAnswer }
func (Candidate) Kind() EventKind      { return KindICECandidate }
func (CallEnded) Kind() EventKind      { return KindCallEnded }
func (ReadyToReceive) Kind() EventKind { return KindReadyToReceive }

func (e Offer) Sender() string          { return e.SenderID }
func (e Answer) Sender() string         { return e.SenderID }
func (e Candidate) Sender() string      { return e.SenderID }
func (e CallEnded) Sender() string      { return e.SenderID }
func (e ReadyToReceive) Sender() string { return e.SenderID }

func (e Offer) withSender(id string) Event          { e.SenderID = id; return e }
func (e Answer) withSender(id string) Event         { e.SenderID = id; return e }
func (e Candidate) withSender(id string) Event      { e.SenderID = id; return e }
func (e CallEnded) withSender(id string) Event      { e.SenderID = id; return e }
func (e ReadyToReceive) withSender(id string) Event { e.SenderID = id; return e }

// envelope is the relay wire format: the event name plus its JSON payload.
type envelope struct {
	Event   EventKind       `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

func Encode(e Event) ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Event: e.Kind(), Payload: payload})
}

// Decode parses a relay message into its typed event.
func Decode(b []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var (
		ev  Event
		err error
	)
	switch env.Event {
	case KindOffer:
		var p Offer
		err = json.Unmarshal(env.Payload, &p)
		if err == nil && p.SDP.SDP == "" {
			err = errors.New("offer without sdp")
		}
		ev = p
	case KindAnswer:
		var p Answer
		err = json.Unmarshal(env.Payload, &p)
		if err == nil && p.SDP.SDP == "" {
			err = errors.New("answer without sdp")
		}
		ev = p
	case KindICECandidate:
		var p Candidate
		err = json.Unmarshal(env.Payload, &p)
		ev = p
	case KindCallEnded:
		var p CallEnded
		err = json.Unmarshal(env.Payload, &p)
		ev = p
	case KindReadyToReceive:
		var p ReadyToReceive
		err = json.Unmarshal(env.Payload, &p)
		ev = p
	default:
		return nil, fmt.Errorf("%w: unknown event %q", ErrMalformed, env.Event)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Event, err)
	}
	if ev.Sender() == "" {
		return nil, fmt.Errorf("%w: %s without senderId", ErrMalformed, env.Event)
	}
	return ev, nil
}
