package media

import (
	"context"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/rs/zerolog"

	"github.com/dkeye/CallGuard/internal/metrics"
)

// RTPReader is the read side of a remote track, *webrtc.TrackRemote in production.
type RTPReader interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// Relay moves packets from one leg's inbound track, through its tap, onto the other leg's outbound track.
type Relay struct {
	src    RTPReader
	tap    *AudioTap
	out    *OutTrack
	logger zerolog.Logger

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func NewRelay(src RTPReader, tap *AudioTap, out *OutTrack, logger zerolog.Logger) *Relay {
	return &Relay{
		src:    src,
		tap:    tap,
		out:    out,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Start runs the forwarding loop on its own goroutine until ctx is done or the source fails.
func (r *Relay) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.logger.Info().Msg("starting relay loop")
	go r.loop(ctx)
}

func (r *Relay) loop(ctx context.Context) {
	defer close(r.done)
	defer r.out.MarkDelete()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("relay ctx done")
			return
		default:
		}
		pkt, _, err := r.src.ReadRTP()
		if err != nil {
			r.logger.Info().Err(err).Msg("relay read RTP stopped")
			return
		}
		if !r.forward(r.tap.OnFrame(pkt)) {
			return
		}
	}
}

func (r *Relay) forward(pkt *rtp.Packet) bool {
	if r.out.GetState() == TrackStateDelete {
		r.logger.Info().Msg("out track deleted, stopping relay")
		return false
	}
	if err := r.out.Track.WriteRTP(pkt); err != nil {
		r.logger.Error().Err(err).Msg("relay write RTP error, marking out track as delete")
		r.out.MarkDelete()
		return false
	}
	metrics.FramesForwarded.Inc()
	return true
}

// Stop halts buffering and forwarding. The loop exits on its next packet or read error.
func (r *Relay) Stop() {
	r.once.Do(func() {
		r.tap.Stop()
		r.out.MarkDelete()
		if r.cancel != nil {
			r.cancel()
		}
	})
}

// Done is closed once the loop has exited.
func (r *Relay) Done() <-chan struct{} { return r.done }
