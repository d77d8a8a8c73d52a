package core

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// MediaConnection is one relay-side peer connection. It is owned by exactly one PeerLink.
type MediaConnection interface {
	// Start configures internal callbacks and binds the connection lifetime to ctx.
	Start(ctx context.Context) error
	// Close releases the underlying transport. Safe to call more than once.
	Close()
	IsClosed() bool
	// CreateAndSetOffer creates a local offer, applies it and waits for ICE gathering
	// so the returned SDP carries every candidate.
	CreateAndSetOffer(ctx context.Context) (*webrtc.SessionDescription, error)
	ApplyAnswer(webrtc.SessionDescription) error
	// AddICECandidate applies a remote ICE candidate.
	AddICECandidate(webrtc.ICECandidateInit) error
	// ReplaceOutboundTrack swaps the track on the pre-created audio sender without renegotiation.
	ReplaceOutboundTrack(track webrtc.TrackLocal) error
	SignalingState() webrtc.SignalingState
	// OnTrack sets a callback that will be invoked when a new remote track arrives.
	OnTrack(func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver))
	OnSignalingStateChange(func(webrtc.SignalingState))
	// OnClosed sets a callback fired once when the connection fails or closes.
	OnClosed(func())
}
