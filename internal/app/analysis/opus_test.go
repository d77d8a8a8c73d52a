package analysis

import (
	"testing"

	"github.com/pion/opus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// silkWideband is the first audio packet of a short Ogg Opus voice recording (SILK WB, 20ms, mono).
var silkWideband = []byte{0x48, 0x83, 0xca, 0xde, 0x8a, 0xe5, 0x67, 0xd5, 0x1c, 0xac, 0xa2, 0x54, 0xfa, 0xff, 0xbf}

// celtSilence is the standard Opus silence frame (CELT FB, 20ms).
var celtSilence = []byte{0xf8, 0xff, 0xfe}

func TestOpusDecoder_SilkWideband(t *testing.T) {
	dec := NewOpusDecoder()
	pcm, channels, err := dec.Decode(silkWideband)
	require.NoError(t, err)
	assert.Equal(t, 1, channels)
	assert.Len(t, pcm, frameSamples)
}

func TestOpusDecoder_RejectsUnsupported(t *testing.T) {
	dec := NewOpusDecoder()

	_, _, err := dec.Decode(celtSilence)
	assert.ErrorIs(t, err, ErrUnsupportedOpusPacket)

	hybrid := append([]byte{0x78}, silkWideband[1:]...)
	_, _, err = dec.Decode(hybrid)
	assert.ErrorIs(t, err, ErrUnsupportedOpusPacket)

	stereo := append([]byte{0x48 | 0x04}, silkWideband[1:]...)
	_, _, err = dec.Decode(stereo)
	assert.ErrorIs(t, err, ErrUnsupportedOpusPacket)

	_, _, err = dec.Decode(nil)
	assert.ErrorIs(t, err, ErrUnsupportedOpusPacket)

	// a rejected packet leaves the decoder usable
	pcm, _, err := dec.Decode(silkWideband)
	require.NoError(t, err)
	assert.Len(t, pcm, frameSamples)
}

func TestCheckTOC(t *testing.T) {
	assert.NoError(t, checkTOC([]byte{0x08})) // NB 20ms
	assert.NoError(t, checkTOC([]byte{0x28})) // MB 20ms
	assert.NoError(t, checkTOC([]byte{0x48})) // WB 20ms
	assert.Error(t, checkTOC([]byte{0x00}), "10ms frames")
	assert.Error(t, checkTOC([]byte{0x49}), "two frames per packet")
}

func TestUpsampledLen(t *testing.T) {
	assert.Equal(t, 480, upsampledLen(opus.BandwidthNarrowband))
	assert.Equal(t, 720, upsampledLen(opus.BandwidthMediumband))
	assert.Equal(t, 960, upsampledLen(opus.BandwidthWideband))
	assert.Zero(t, upsampledLen(opus.BandwidthFullband))
}

func TestStretch(t *testing.T) {
	assert.Equal(t, []int16{1, 1, 2, 2, 3, 3}, stretch([]int16{1, 2, 3}, 6))
	assert.Equal(t, []int16{1, 2, 3}, stretch([]int16{1, 2, 3}, 3))
	assert.Len(t, stretch(make([]int16, 720), frameSamples), frameSamples)
	assert.Empty(t, stretch(nil, frameSamples))
}
