package app

import (
	"context"
	"fmt"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/dkeye/CallGuard/internal/app/media"
	"github.com/dkeye/CallGuard/internal/core"
	"github.com/dkeye/CallGuard/internal/domain"
)

type LinkID struct {
	CallID domain.CallID
	Role   domain.Role
}

func (id LinkID) String() string { return fmt.Sprintf("%s/%s", id.CallID, id.Role) }

// InboundTrack is the remote audio track of one leg, *webrtc.TrackRemote in production.
type InboundTrack interface {
	media.RTPReader
	Codec() webrtc.RTPCodecParameters
	ID() string
}

// PeerLink is the relay's connection to one participant. It owns conn exclusively.
type PeerLink struct {
	id     LinkID
	remote domain.UserID
	conn   core.MediaConnection
	logger zerolog.Logger

	state    webrtc.SignalingState
	answered bool

	tap   *media.AudioTap
	relay *media.Relay
}

func newPeerLink(id LinkID, remote domain.UserID, conn core.MediaConnection, logger zerolog.Logger) *PeerLink {
	return &PeerLink{
		id:     id,
		remote: remote,
		conn:   conn,
		state:  webrtc.SignalingStateStable,
		logger: logger.With().Str("role", id.Role.String()).Str("user_id", string(remote)).Logger(),
	}
}

func (l *PeerLink) ID() LinkID                            { return l.id }
func (l *PeerLink) Remote() domain.UserID                 { return l.remote }
func (l *PeerLink) SignalingState() webrtc.SignalingState { return l.state }
func (l *PeerLink) Tapped() bool                          { return l.tap != nil }

// Negotiated reports whether the offer/answer exchange finished and settled back to stable.
func (l *PeerLink) Negotiated() bool {
	return l.answered && l.state == webrtc.SignalingStateStable
}

func (l *PeerLink) ApplyAnswer(sd domain.SessionDescription) error {
	err := l.conn.ApplyAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sd.SDP})
	l.state = l.conn.SignalingState()
	if err != nil {
		return fmt.Errorf("apply answer: %w", err)
	}
	l.answered = true
	return nil
}

func (l *PeerLink) ApplyCandidate(c domain.Candidate) error {
	n := c.Normalized()
	if err := l.conn.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:     n.Candidate,
		SDPMid:        n.SDPMid,
		SDPMLineIndex: n.SDPMLineIndex,
	}); err != nil {
		return fmt.Errorf("add candidate: %w", err)
	}
	return nil
}

// attachInbound taps this link's inbound track and puts the forwarded copy on dst's outbound sender.
func (l *PeerLink) attachInbound(ctx context.Context, track InboundTrack, dst *PeerLink, cfg media.TapConfig, onFlush media.FlushFunc) error {
	if l.tap != nil {
		return ErrAlreadyTapped
	}
	local, err := webrtc.NewTrackLocalStaticRTP(
		track.Codec().RTPCodecCapability,
		"audio",
		fmt.Sprintf("callguard-%s-%s", l.id.CallID, l.id.Role),
	)
	if err != nil {
		return fmt.Errorf("local track: %w", err)
	}
	if err := dst.conn.ReplaceOutboundTrack(local); err != nil {
		return fmt.Errorf("replace track on %s: %w", dst.id, err)
	}

	logger := l.logger.With().Str("module", "media.tap").Str("track_id", track.ID()).Logger()
	l.tap = media.NewAudioTap(l.id.CallID, l.id.Role, cfg, onFlush, logger)
	l.relay = media.NewRelay(track, l.tap, media.NewOutTrack(local), logger)
	l.relay.Start(ctx)
	l.logger.Info().Str("to", dst.id.String()).Msg("inbound audio tapped and forwarded")
	return nil
}

func (l *PeerLink) TapStats() (media.TapStats, bool) {
	if l.tap == nil {
		return media.TapStats{}, false
	}
	return l.tap.Stats(), true
}

func (l *PeerLink) Closed() bool { return l.conn.IsClosed() }

func (l *PeerLink) close() {
	if l.relay != nil {
		l.relay.Stop()
	}
	l.conn.Close()
}
