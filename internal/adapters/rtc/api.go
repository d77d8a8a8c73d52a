package rtc

import (
	"fmt"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/CallGuard/internal/config"
	"github.com/dkeye/CallGuard/internal/core"
)

// Factory builds relay-side peer connections sharing one media engine and setting engine.
type Factory struct {
	api *webrtc.API
	cfg webrtc.Configuration
}

// OpusFmtp asks peers for narrow Opus (RFC 7587): at 16 kHz libopus stays in SILK mode,
// the only mode the analysis decoder handles. In-band FEC is off for the same reason.
const OpusFmtp = "minptime=10;useinbandfec=0;stereo=0;sprop-stereo=0;" +
	"maxplaybackrate=16000;sprop-maxcapturerate=16000;maxaveragebitrate=24000"

func NewFactory(cfg config.WebRTCConfig) (*Factory, error) {
	me := &webrtc.MediaEngine{}
	if err := me.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeOpus,
			ClockRate:   48000,
			Channels:    2,
			SDPFmtpLine: OpusFmtp,
		},
		PayloadType: 111,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(me, ir); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	se := webrtc.SettingEngine{}
	se.SetICETimeouts(cfg.DisconnectedTimeout, cfg.FailedTimeout, cfg.KeepAliveInterval)

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(me),
		webrtc.WithInterceptorRegistry(ir),
		webrtc.WithSettingEngine(se),
	)
	return &Factory{api: api, cfg: WebRTCConfig(cfg.ICEServers)}, nil
}

func WebRTCConfig(iceServers []string) webrtc.Configuration {
	c := webrtc.Configuration{}
	if len(iceServers) > 0 {
		c.ICEServers = []webrtc.ICEServer{{URLs: iceServers}}
	}
	return c
}

// NewConnection creates a peer connection with its sendrecv audio transceiver in place.
func (f *Factory) NewConnection(label string) (core.MediaConnection, error) {
	return NewWebRTCConnection(f.api, f.cfg, label)
}
