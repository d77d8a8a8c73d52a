package media

import (
	"sync/atomic"

	"github.com/pion/rtp"
)

// RTPWriter is the write side of a local track, *webrtc.TrackLocalStaticRTP in production.
type RTPWriter interface {
	WriteRTP(p *rtp.Packet) error
}

type TrackState int32

const (
	TrackStateOk TrackState = iota
	TrackStateDelete
)

// OutTrack is the outbound leg a relay writes into.
type OutTrack struct {
	Track RTPWriter
	state atomic.Int32 // Zero by default (TrackStateOk)
}

func NewOutTrack(track RTPWriter) *OutTrack {
	return &OutTrack{Track: track}
}

func (ot *OutTrack) GetState() TrackState {
	return TrackState(ot.state.Load())
}

func (ot *OutTrack) MarkDelete() {
	ot.state.Store(int32(TrackStateDelete))
}
