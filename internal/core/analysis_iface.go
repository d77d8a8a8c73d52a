package core

import (
	"context"

	"github.com/dkeye/CallGuard/internal/domain"
)

// Analyzer classifies one mono WAV buffer.
type Analyzer interface {
	Analyze(ctx context.Context, wav []byte) (domain.AnalysisResult, error)
}

// AudioDecoder turns one encoded audio frame into interleaved 16-bit PCM.
// Decoders are stateful and must not be shared between goroutines.
type AudioDecoder interface {
	Decode(frame []byte) (pcm []int16, channels int, err error)
}
