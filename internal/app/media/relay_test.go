package media

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chanReader struct{ ch chan *rtp.Packet }

func (r *chanReader) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	pkt, ok := <-r.ch
	if !ok {
		return nil, nil, io.EOF
	}
	return pkt, nil, nil
}

type recordingWriter struct {
	mu   sync.Mutex
	pkts []*rtp.Packet
	err  error
}

func (w *recordingWriter) WriteRTP(p *rtp.Packet) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.pkts = append(w.pkts, p)
	return nil
}

func (w *recordingWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pkts)
}

func TestRelay_ForwardsEveryPacket(t *testing.T) {
	src := &chanReader{ch: make(chan *rtp.Packet, 100)}
	dst := &recordingWriter{}
	tap := NewAudioTap("c1", 0, TapConfig{Interval: time.Hour}, nil, zerolog.Nop())
	relay := NewRelay(src, tap, NewOutTrack(dst), zerolog.Nop())

	relay.Start(context.Background())
	for i := 0; i < 50; i++ {
		src.ch <- packet(uint32(i), byte(i))
	}
	close(src.ch)

	select {
	case <-relay.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop on EOF")
	}
	assert.Equal(t, 50, dst.count())
	assert.Equal(t, uint64(50), tap.Stats().Received)
	assert.Equal(t, 50, tap.Stats().Buffered)
}

func TestRelay_WriteErrorStopsLoop(t *testing.T) {
	src := &chanReader{ch: make(chan *rtp.Packet, 1)}
	dst := &recordingWriter{err: errors.New("closed pipe")}
	out := NewOutTrack(dst)
	relay := NewRelay(src, NewAudioTap("c1", 0, TapConfig{}, nil, zerolog.Nop()), out, zerolog.Nop())

	relay.Start(context.Background())
	src.ch <- packet(1, 1)

	select {
	case <-relay.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop on write error")
	}
	assert.Equal(t, TrackStateDelete, out.GetState())
}

func TestRelay_StopHaltsTapAndOutput(t *testing.T) {
	src := &chanReader{ch: make(chan *rtp.Packet, 1)}
	dst := &recordingWriter{}
	tap := NewAudioTap("c1", 0, TapConfig{}, nil, zerolog.Nop())
	out := NewOutTrack(dst)
	relay := NewRelay(src, tap, out, zerolog.Nop())

	relay.Start(context.Background())
	relay.Stop()
	relay.Stop()
	require.True(t, tap.Stopped())
	assert.Equal(t, TrackStateDelete, out.GetState())

	src.ch <- packet(1, 1)
	select {
	case <-relay.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not exit after stop")
	}
	assert.Equal(t, 0, dst.count())
}
