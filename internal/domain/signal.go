package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMalformedSignal   = errors.New("malformed signaling payload")
	ErrUnsupportedSignal = errors.New("unsupported signaling type")
)

const candidatePrefix = "candidate:"

type SignalKind int

const (
	SignalOffer SignalKind = iota + 1
	SignalAnswer
	SignalCandidate
)

func (k SignalKind) String() string {
	switch k {
	case SignalOffer:
		return "offer"
	case SignalAnswer:
		return "answer"
	case SignalCandidate:
		return "ice-candidate"
	default:
		return fmt.Sprintf("signal(%d)", int(k))
	}
}

func ParseSignalKind(s string) (SignalKind, bool) {
	switch s {
	case "offer":
		return SignalOffer, true
	case "answer":
		return SignalAnswer, true
	case "ice-candidate":
		return SignalCandidate, true
	}
	return 0, false
}

type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type Candidate struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

// Normalized returns the candidate with the "candidate:" line prefix present.
// An empty candidate (end of candidates) is returned untouched.
func (c Candidate) Normalized() Candidate {
	if c.Candidate != "" && !strings.HasPrefix(c.Candidate, candidatePrefix) {
		c.Candidate = candidatePrefix + c.Candidate
	}
	return c
}

// SignalingEvent is a decoded signaling message. Exactly one payload field is set, matching Kind.
type SignalingEvent struct {
	Kind   SignalKind
	From   UserID
	Target UserID

	Offer     *SessionDescription
	Answer    *SessionDescription
	Candidate *Candidate
}

func NewOffer(from, target UserID, sdp string) SignalingEvent {
	return SignalingEvent{
		Kind:   SignalOffer,
		From:   from,
		Target: target,
		Offer:  &SessionDescription{Type: "offer", SDP: sdp},
	}
}

// Envelope is the wire form shared by every transport.
type Envelope struct {
	Type         string              `json:"type"`
	FromUserID   string              `json:"fromUserId"`
	TargetUserID string              `json:"targetUserId"`
	Offer        *SessionDescription `json:"offer,omitempty"`
	Answer       *SessionDescription `json:"answer,omitempty"`
	Candidate    *Candidate          `json:"candidate,omitempty"`
}

func (e SignalingEvent) Envelope() Envelope {
	return Envelope{
		Type:         e.Kind.String(),
		FromUserID:   string(e.From),
		TargetUserID: string(e.Target),
		Offer:        e.Offer,
		Answer:       e.Answer,
		Candidate:    e.Candidate,
	}
}

// DecodeSignal parses an inbound wire message. Offers are rejected with ErrUnsupportedSignal
// since they only ever flow from the relay to participants.
func DecodeSignal(data []byte) (SignalingEvent, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return SignalingEvent{}, fmt.Errorf("%w: %v", ErrMalformedSignal, err)
	}
	return env.Event()
}

// Event validates the envelope and converts it into its tagged form.
func (env Envelope) Event() (SignalingEvent, error) {
	kind, ok := ParseSignalKind(env.Type)
	if !ok {
		return SignalingEvent{}, fmt.Errorf("%w: %q", ErrUnsupportedSignal, env.Type)
	}
	if kind == SignalOffer {
		return SignalingEvent{}, fmt.Errorf("%w: inbound offer", ErrUnsupportedSignal)
	}
	from, err := ParseUserID(env.FromUserID)
	if err != nil {
		return SignalingEvent{}, fmt.Errorf("%w: from: %v", ErrMalformedSignal, err)
	}
	target, err := ParseUserID(env.TargetUserID)
	if err != nil {
		return SignalingEvent{}, fmt.Errorf("%w: target: %v", ErrMalformedSignal, err)
	}

	ev := SignalingEvent{Kind: kind, From: from, Target: target}
	switch kind {
	case SignalAnswer:
		if env.Answer == nil || env.Answer.SDP == "" {
			return SignalingEvent{}, fmt.Errorf("%w: answer without sdp", ErrMalformedSignal)
		}
		ev.Answer = env.Answer
	case SignalCandidate:
		if env.Candidate == nil {
			return SignalingEvent{}, fmt.Errorf("%w: candidate missing", ErrMalformedSignal)
		}
		ev.Candidate = env.Candidate
	}
	return ev, nil
}
