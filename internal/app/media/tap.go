// Package media forwards RTP between call legs and taps it for analysis.
package media

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtp"
	"github.com/rs/zerolog"

	"github.com/dkeye/CallGuard/internal/domain"
)

const DefaultFlushInterval = 3 * time.Second

// Frame is a copy of one RTP payload kept for analysis.
type Frame struct {
	Payload   []byte
	Timestamp uint32
}

// Window is one flushed buffer. Ownership passes to the flush callback.
type Window struct {
	CallID domain.CallID
	Role   domain.Role
	Seq    uint64
	Start  time.Time
	End    time.Time
	Frames []Frame
}

// FlushFunc receives a swapped-out window. It runs on the frame path and must not block.
type FlushFunc func(Window)

type TapConfig struct {
	Interval time.Duration
	Now      func() time.Time
}

// AudioTap passes frames through untouched while buffering their payloads into time-boxed windows.
type AudioTap struct {
	callID   domain.CallID
	role     domain.Role
	interval time.Duration
	now      func() time.Time
	onFlush  FlushFunc
	logger   zerolog.Logger

	mu          sync.Mutex
	buf         []Frame
	windowStart time.Time
	windows     uint64

	stopped   atomic.Bool
	received  atomic.Uint64
	forwarded atomic.Uint64
}

func NewAudioTap(callID domain.CallID, role domain.Role, cfg TapConfig, onFlush FlushFunc, logger zerolog.Logger) *AudioTap {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultFlushInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &AudioTap{
		callID:      callID,
		role:        role,
		interval:    cfg.Interval,
		now:         cfg.Now,
		onFlush:     onFlush,
		logger:      logger,
		windowStart: cfg.Now(),
	}
}

// OnFrame buffers a copy of the payload and returns pkt unchanged for forwarding.
// Once the window is older than the interval it is swapped out and handed to the flush callback.
func (t *AudioTap) OnFrame(pkt *rtp.Packet) *rtp.Packet {
	t.received.Add(1)
	defer t.forwarded.Add(1)
	if t.stopped.Load() {
		return pkt
	}

	now := t.now()
	t.mu.Lock()
	if len(pkt.Payload) > 0 {
		t.buf = append(t.buf, Frame{
			Payload:   append([]byte(nil), pkt.Payload...),
			Timestamp: pkt.Timestamp,
		})
	}
	var w Window
	flush := now.Sub(t.windowStart) >= t.interval
	if flush {
		w = t.swapLocked(now)
	}
	t.mu.Unlock()

	if flush {
		t.dispatch(w)
	}
	return pkt
}

// swapLocked resets the buffer and window start. Caller holds t.mu.
func (t *AudioTap) swapLocked(now time.Time) Window {
	w := Window{
		CallID: t.callID,
		Role:   t.role,
		Start:  t.windowStart,
		End:    now,
		Frames: t.buf,
	}
	t.buf = nil
	t.windowStart = now
	if len(w.Frames) > 0 {
		t.windows++
		w.Seq = t.windows
	}
	return w
}

func (t *AudioTap) dispatch(w Window) {
	if len(w.Frames) == 0 {
		t.logger.Debug().Msg("empty window, analysis skipped")
		return
	}
	if t.onFlush != nil {
		t.onFlush(w)
	}
}

// Stop ends buffering. Frames keep flowing through OnFrame but no further windows are scheduled.
func (t *AudioTap) Stop() {
	if t.stopped.Swap(true) {
		return
	}
	t.mu.Lock()
	t.buf = nil
	t.mu.Unlock()
}

func (t *AudioTap) Stopped() bool { return t.stopped.Load() }

type TapStats struct {
	Received  uint64
	Forwarded uint64
	Windows   uint64
	Buffered  int
}

func (t *AudioTap) Stats() TapStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TapStats{
		Received:  t.received.Load(),
		Forwarded: t.forwarded.Load(),
		Windows:   t.windows,
		Buffered:  len(t.buf),
	}
}
