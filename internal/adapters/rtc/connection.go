// Package rtc adapts pion/webrtc peer connections to core.MediaConnection.
package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrGatheringTimeout = errors.New("ice gathering did not complete")

type WebRTCConnection struct {
	pc     *webrtc.PeerConnection
	audio  *webrtc.RTPTransceiver
	label  string
	cancel context.CancelFunc
	logger zerolog.Logger

	closed    atomic.Bool
	closeOnce sync.Once

	onTrack       func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)
	onSignalState func(webrtc.SignalingState)
	onClosed      func()
}

func NewWebRTCConnection(api *webrtc.API, cfg webrtc.Configuration, label string) (*WebRTCConnection, error) {
	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	// sendrecv up front so the outbound track can be swapped in later without a new offer.
	audio, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionSendrecv,
	})
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("add audio transceiver: %w", err)
	}
	return &WebRTCConnection{
		pc:     pc,
		audio:  audio,
		label:  label,
		logger: log.With().Str("module", "webrtc").Str("link", label).Logger(),
	}, nil
}

func (c *WebRTCConnection) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		c.logger.Info().Str("ice_state", s.String()).Msg("ICE state")
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.logger.Info().Str("peer_connection_state", s.String()).Msg("Peer state")
		if s == webrtc.PeerConnectionStateFailed ||
			s == webrtc.PeerConnectionStateClosed {
			cancel()
			c.fireClosed()
		}
	})

	c.pc.OnSignalingStateChange(func(s webrtc.SignalingState) {
		c.logger.Debug().Str("signaling_state", s.String()).Msg("Signaling state")
		if c.onSignalState != nil {
			c.onSignalState(s)
		}
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		c.logger.Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Str("codec", track.Codec().MimeType).
			Msg("OnTrack received")
		if c.onTrack != nil {
			c.onTrack(ctx, track, receiver)
		}
	})

	go c.drainRTCP()
	return nil
}

// drainRTCP reads sender-side RTCP so the interceptors keep running.
func (c *WebRTCConnection) drainRTCP() {
	buf := make([]byte, 1500)
	for {
		if _, _, err := c.audio.Sender().Read(buf); err != nil {
			return
		}
	}
}

func (c *WebRTCConnection) CreateAndSetOffer(ctx context.Context) (*webrtc.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return nil, err
	}

	gatherComplete := webrtc.GatheringCompletePromise(c.pc)
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return nil, err
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrGatheringTimeout, ctx.Err())
	}

	return c.pc.LocalDescription(), nil
}

func (c *WebRTCConnection) ApplyAnswer(answer webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(answer)
}

func (c *WebRTCConnection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

func (c *WebRTCConnection) ReplaceOutboundTrack(track webrtc.TrackLocal) error {
	return c.audio.Sender().ReplaceTrack(track)
}

func (c *WebRTCConnection) SignalingState() webrtc.SignalingState {
	return c.pc.SignalingState()
}

func (c *WebRTCConnection) Close() {
	if c.closed.Swap(true) {
		return
	}
	if c.cancel != nil {
		c.cancel()
	}
	if err := c.pc.Close(); err != nil {
		c.logger.Error().Err(err).Msg("close error")
	} else {
		c.logger.Info().Msg("closed")
	}
	c.fireClosed()
}

// IsClosed is true once Close ran or the peer connection failed or closed on its own.
func (c *WebRTCConnection) IsClosed() bool {
	if c.closed.Load() {
		return true
	}
	st := c.pc.ConnectionState()
	return st == webrtc.PeerConnectionStateClosed || st == webrtc.PeerConnectionStateFailed
}

func (c *WebRTCConnection) fireClosed() {
	c.closeOnce.Do(func() {
		if c.onClosed != nil {
			c.onClosed()
		}
	})
}

// OnTrack sets application-level callback for remote tracks.
func (c *WebRTCConnection) OnTrack(fn func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)) {
	c.onTrack = fn
}

func (c *WebRTCConnection) OnSignalingStateChange(fn func(webrtc.SignalingState)) {
	c.onSignalState = fn
}

// OnClosed sets application-level callback fired once the connection fails or closes.
func (c *WebRTCConnection) OnClosed(fn func()) { c.onClosed = fn }
