package analysis

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/pion/opus"

	"github.com/dkeye/CallGuard/internal/core"
)

// ErrUnsupportedOpusPacket is returned for packets the SILK-only decoder cannot handle.
// The relay negotiates a SILK-friendly Opus profile, so these should be rare.
var ErrUnsupportedOpusPacket = errors.New("unsupported opus packet")

const (
	// frameSamples is one 20ms frame at 48 kHz mono, the WebRTC default packetization.
	frameSamples = 960
	// silkOutBytes is what the decoder always writes: 320 SILK samples upsampled x3, s16le.
	silkOutBytes = 1920
)

// OpusDecoder decodes raw Opus RTP payloads into 48 kHz mono PCM.
type OpusDecoder struct {
	dec opus.Decoder
	out []byte
}

func NewOpusDecoder() core.AudioDecoder {
	return &OpusDecoder{dec: opus.NewDecoder(), out: make([]byte, silkOutBytes)}
}

func (d *OpusDecoder) Decode(frame []byte) ([]int16, int, error) {
	if err := checkTOC(frame); err != nil {
		return nil, 0, err
	}
	bw, _, err := d.dec.Decode(frame, d.out)
	if err != nil {
		return nil, 0, fmt.Errorf("opus decode: %w", err)
	}
	valid := upsampledLen(bw)
	if valid == 0 {
		return nil, 0, fmt.Errorf("%w: bandwidth %s", ErrUnsupportedOpusPacket, bw)
	}
	pcm := make([]int16, valid)
	for i := range pcm {
		pcm[i] = int16(binary.LittleEndian.Uint16(d.out[2*i:]))
	}
	return stretch(pcm, frameSamples), 1, nil
}

// checkTOC accepts single-frame mono 20ms SILK packets (RFC 6716 section 3.1).
func checkTOC(frame []byte) error {
	if len(frame) < 1 {
		return fmt.Errorf("%w: empty", ErrUnsupportedOpusPacket)
	}
	toc := frame[0]
	config := toc >> 3
	switch {
	case config >= 16:
		return fmt.Errorf("%w: celt mode", ErrUnsupportedOpusPacket)
	case config >= 12:
		return fmt.Errorf("%w: hybrid mode", ErrUnsupportedOpusPacket)
	case config%4 != 1:
		return fmt.Errorf("%w: frame duration config %d", ErrUnsupportedOpusPacket, config)
	case toc&0x04 != 0:
		return fmt.Errorf("%w: stereo", ErrUnsupportedOpusPacket)
	case toc&0x03 != 0:
		return fmt.Errorf("%w: frame code %d", ErrUnsupportedOpusPacket, toc&0x03)
	}
	return nil
}

// upsampledLen is the number of meaningful samples in the decoder output for 20ms.
func upsampledLen(bw opus.Bandwidth) int {
	switch bw {
	case opus.BandwidthNarrowband:
		return 480
	case opus.BandwidthMediumband:
		return 720
	case opus.BandwidthWideband:
		return 960
	}
	return 0
}

// stretch resamples pcm to n samples by nearest neighbour.
func stretch(pcm []int16, n int) []int16 {
	if len(pcm) == n || len(pcm) == 0 {
		return pcm
	}
	out := make([]int16, n)
	for i := range out {
		out[i] = pcm[i*len(pcm)/n]
	}
	return out
}
