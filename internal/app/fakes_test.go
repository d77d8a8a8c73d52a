package app

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/CallGuard/internal/app/worker"
	"github.com/dkeye/CallGuard/internal/core"
	"github.com/dkeye/CallGuard/internal/domain"
)

type fakeConn struct {
	mu         sync.Mutex
	label      string
	started    bool
	closed     bool
	state      webrtc.SignalingState
	answers    []webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit
	replaced   []webrtc.TrackLocal
	answerErr  error
	candErr    error
	offerErr   error

	onTrack  func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)
	onSignal func(webrtc.SignalingState)
	onClosed func()
}

func newFakeConn(label string) *fakeConn {
	return &fakeConn{label: label, state: webrtc.SignalingStateStable}
}

func (c *fakeConn) Start(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = true
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) CreateAndSetOffer(context.Context) (*webrtc.SessionDescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.offerErr != nil {
		return nil, c.offerErr
	}
	c.state = webrtc.SignalingStateHaveLocalOffer
	return &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer-" + c.label}, nil
}

func (c *fakeConn) ApplyAnswer(sd webrtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.answerErr != nil {
		return c.answerErr
	}
	c.answers = append(c.answers, sd)
	c.state = webrtc.SignalingStateStable
	return nil
}

func (c *fakeConn) AddICECandidate(ci webrtc.ICECandidateInit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.candErr != nil {
		return c.candErr
	}
	c.candidates = append(c.candidates, ci)
	return nil
}

func (c *fakeConn) ReplaceOutboundTrack(track webrtc.TrackLocal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replaced = append(c.replaced, track)
	return nil
}

func (c *fakeConn) SignalingState() webrtc.SignalingState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *fakeConn) OnTrack(fn func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)) {
	c.onTrack = fn
}

func (c *fakeConn) OnSignalingStateChange(fn func(webrtc.SignalingState)) { c.onSignal = fn }

func (c *fakeConn) OnClosed(fn func()) { c.onClosed = fn }

var _ core.MediaConnection = (*fakeConn)(nil)

// connSet hands out fake connections and remembers them by link label.
type connSet struct {
	mu    sync.Mutex
	conns map[string]*fakeConn
}

func newConnSet() *connSet { return &connSet{conns: map[string]*fakeConn{}} }

func (s *connSet) New(label string) (core.MediaConnection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := newFakeConn(label)
	s.conns[label] = c
	return c, nil
}

func (s *connSet) get(label string) *fakeConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns[label]
}

type inlineJobs struct{}

func (inlineJobs) Submit(_ string, job worker.Job) error {
	job(context.Background())
	return nil
}

type fakeTrack struct {
	ch chan *rtp.Packet
}

func newFakeTrack() *fakeTrack { return &fakeTrack{ch: make(chan *rtp.Packet, 16)} }

func (t *fakeTrack) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	p, ok := <-t.ch
	if !ok {
		return nil, nil, io.EOF
	}
	return p, nil, nil
}

func (t *fakeTrack) Codec() webrtc.RTPCodecParameters {
	return webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		PayloadType:        111,
	}
}

func (t *fakeTrack) ID() string { return "audio0" }

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

const serverID domain.UserID = "SFU_SERVER"
