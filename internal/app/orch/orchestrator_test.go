package orch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/dkeye/CallGuard/internal/app"
	"github.com/dkeye/CallGuard/internal/app/worker"
	"github.com/dkeye/CallGuard/internal/core"
	"github.com/dkeye/CallGuard/internal/core/mocks"
	"github.com/dkeye/CallGuard/internal/domain"
)

type stubConn struct {
	mu      sync.Mutex
	state   webrtc.SignalingState
	answers int
	closed  bool
}

func (c *stubConn) Start(context.Context) error { return nil }
func (c *stubConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}
func (c *stubConn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
func (c *stubConn) CreateAndSetOffer(context.Context) (*webrtc.SessionDescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = webrtc.SignalingStateHaveLocalOffer
	return &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"}, nil
}
func (c *stubConn) ApplyAnswer(webrtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.answers++
	c.state = webrtc.SignalingStateStable
	return nil
}
func (c *stubConn) AddICECandidate(webrtc.ICECandidateInit) error                           { return nil }
func (c *stubConn) ReplaceOutboundTrack(webrtc.TrackLocal) error                            { return nil }
func (c *stubConn) OnSignalingStateChange(func(webrtc.SignalingState))                      {}
func (c *stubConn) OnClosed(func())                                                         {}
func (c *stubConn) OnTrack(func(context.Context, *webrtc.TrackRemote, *webrtc.RTPReceiver)) {}
func (c *stubConn) SignalingState() webrtc.SignalingState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *stubConn) answerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.answers
}

type fixture struct {
	orch   *Orchestrator
	sender *mocks.MockSignalSender
	pool   *worker.Pool
	mu     sync.Mutex
	conns  map[string]*stubConn
	cancel context.CancelFunc
	done   chan struct{}
}

func newFixture(t *testing.T) *fixture {
	ctrl := gomock.NewController(t)
	f := &fixture{
		sender: mocks.NewMockSignalSender(ctrl),
		pool:   worker.NewPool("signal-test", 2, 16),
		conns:  map[string]*stubConn{},
		done:   make(chan struct{}),
	}
	f.orch = New(app.Deps{
		ServerID: "SFU_SERVER",
		NewMedia: func(label string) (core.MediaConnection, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			c := &stubConn{state: webrtc.SignalingStateStable}
			f.conns[label] = c
			return c, nil
		},
		Sender:       f.sender,
		Signals:      f.pool,
		OfferTimeout: time.Second,
		WriteTimeout: time.Second,
	}, Options{ReapInterval: time.Hour, NegotiationTimeout: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	go func() {
		defer close(f.done)
		_ = f.orch.Run(ctx)
	}()
	t.Cleanup(f.stop)
	return f
}

func (f *fixture) stop() {
	f.cancel()
	<-f.done
	f.pool.Close()
}

func (f *fixture) conn(label string) *stubConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conns[label]
}

func (f *fixture) sessions(t *testing.T) map[domain.CallID]app.SessionInfo {
	infos, err := f.orch.Sessions(context.Background())
	require.NoError(t, err)
	out := make(map[domain.CallID]app.SessionInfo, len(infos))
	for _, i := range infos {
		out[i.ID] = i
	}
	return out
}

func (f *fixture) expectOffer(target domain.UserID, sent *sync.WaitGroup) {
	sent.Add(1)
	f.sender.EXPECT().SendSignal(gomock.Any(), gomock.Cond(func(ev domain.SignalingEvent) bool {
		return ev.Kind == domain.SignalOffer && ev.Target == target && ev.From == "SFU_SERVER"
	})).DoAndReturn(func(context.Context, domain.SignalingEvent) error {
		sent.Done()
		return nil
	})
}

func answerFrom(u domain.UserID) domain.SignalingEvent {
	return domain.SignalingEvent{
		Kind:   domain.SignalAnswer,
		From:   u,
		Target: "SFU_SERVER",
		Answer: &domain.SessionDescription{Type: "answer", SDP: "v=0"},
	}
}

func TestOrchestrator_CallScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var sent sync.WaitGroup
	f.expectOffer("A", &sent)
	f.expectOffer("B", &sent)
	require.NoError(t, f.orch.SubmitCall(ctx, domain.CallNotice{CallID: "C1", Status: domain.StatusCalling, From: "A", Target: "B"}))
	sent.Wait()

	require.NoError(t, f.orch.SubmitSignal(ctx, answerFrom("B")))
	require.NoError(t, f.orch.SubmitSignal(ctx, answerFrom("Z")))

	s := f.sessions(t)
	require.Contains(t, s, domain.CallID("C1"))
	assert.Equal(t, 1, f.conn("C1/callee").answerCount())
	assert.Equal(t, 0, f.conn("C1/caller").answerCount())
	assert.Equal(t, "STARTING", s["C1"].State)

	require.NoError(t, f.orch.SubmitSignal(ctx, answerFrom("A")))
	assert.Equal(t, "ACTIVE", f.sessions(t)["C1"].State)

	require.NoError(t, f.orch.SubmitCall(ctx, domain.CallNotice{CallID: "C1", Status: domain.StatusEnded}))
	assert.Empty(t, f.sessions(t))
	assert.True(t, f.conn("C1/caller").IsClosed())
}

func TestOrchestrator_SecondCallSupersedesFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var sent sync.WaitGroup
	f.expectOffer("A", &sent)
	f.expectOffer("B", &sent)
	f.expectOffer("A", &sent)
	f.expectOffer("B", &sent)
	require.NoError(t, f.orch.SubmitCall(ctx, domain.CallNotice{CallID: "C1", Status: domain.StatusCalling, From: "A", Target: "B"}))
	require.NoError(t, f.orch.SubmitCall(ctx, domain.CallNotice{CallID: "C2", Status: domain.StatusCalling, From: "A", Target: "B"}))
	sent.Wait()

	s := f.sessions(t)
	assert.Len(t, s, 1)
	assert.Contains(t, s, domain.CallID("C2"))
	assert.True(t, f.conn("C1/caller").IsClosed())
	assert.True(t, f.conn("C1/callee").IsClosed())
}

func TestOrchestrator_DuplicateCallingIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var sent sync.WaitGroup
	f.expectOffer("A", &sent)
	f.expectOffer("B", &sent)
	n := domain.CallNotice{CallID: "C1", Status: domain.StatusCalling, From: "A", Target: "B"}
	require.NoError(t, f.orch.SubmitCall(ctx, n))
	require.NoError(t, f.orch.SubmitCall(ctx, n))
	sent.Wait()
	assert.Len(t, f.sessions(t), 1)
}

func TestOrchestrator_RejectsMalformedNotice(t *testing.T) {
	f := newFixture(t)
	err := f.orch.SubmitCall(context.Background(), domain.CallNotice{CallID: "C1", Status: domain.StatusCalling, From: "A"})
	assert.ErrorIs(t, err, domain.ErrMalformedNotice)
}

func TestOrchestrator_StopClosesSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var sent sync.WaitGroup
	f.expectOffer("A", &sent)
	f.expectOffer("B", &sent)
	require.NoError(t, f.orch.SubmitCall(ctx, domain.CallNotice{CallID: "C1", Status: domain.StatusCalling, From: "A", Target: "B"}))
	sent.Wait()

	f.cancel()
	<-f.done
	assert.True(t, f.conn("C1/caller").IsClosed())
	assert.ErrorIs(t, f.orch.SubmitSignal(ctx, answerFrom("A")), ErrStopped)
	_, err := f.orch.Sessions(ctx)
	assert.ErrorIs(t, err, ErrStopped)
}
