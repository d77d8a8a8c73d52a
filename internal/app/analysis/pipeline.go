// Package analysis turns flushed audio windows into threat verdicts and alert updates.
package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/CallGuard/internal/app/media"
	"github.com/dkeye/CallGuard/internal/app/worker"
	"github.com/dkeye/CallGuard/internal/core"
	"github.com/dkeye/CallGuard/internal/domain"
	"github.com/dkeye/CallGuard/internal/metrics"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultAlertTimeout = 5 * time.Second
)

// Submitter is the worker pool the pipeline runs on.
type Submitter interface {
	Submit(label string, job worker.Job) error
}

type Pipeline struct {
	Analyzer     core.Analyzer
	Alerts       core.AlertPublisher
	Jobs         Submitter
	NewDecoder   func() core.AudioDecoder
	SampleRate   int
	Timeout      time.Duration
	AlertTimeout time.Duration
	Now          func() time.Time
}

// Schedule hands the window to the worker pool. It never blocks; a full pool drops the window.
func (p *Pipeline) Schedule(w media.Window) {
	label := fmt.Sprintf("analyze %s/%s#%d", w.CallID, w.Role, w.Seq)
	if err := p.Jobs.Submit(label, func(ctx context.Context) {
		_, _ = p.Process(ctx, w)
	}); err != nil {
		metrics.Windows.WithLabelValues("dropped").Inc()
	}
}

// Process analyzes one window and publishes an alert when the verdict is a threat.
// The returned error is informational; every failure is already logged.
func (p *Pipeline) Process(ctx context.Context, w media.Window) (domain.AnalysisResult, error) {
	logger := log.With().
		Str("module", "analysis").
		Str("call_id", string(w.CallID)).
		Str("role", w.Role.String()).
		Uint64("window", w.Seq).
		Logger()

	wav, err := p.encode(w, &logger)
	if err != nil {
		metrics.Windows.WithLabelValues("empty").Inc()
		logger.Warn().Err(err).Msg("window not analyzable")
		return domain.AnalysisResult{}, err
	}

	actx, cancel := context.WithTimeout(ctx, orDefault(p.Timeout, defaultTimeout))
	res, err := p.Analyzer.Analyze(actx, wav)
	cancel()
	if err != nil {
		metrics.Windows.WithLabelValues("failed").Inc()
		logger.Warn().Err(err).Msg("analysis failed, no result this cycle")
		return domain.AnalysisResult{}, err
	}
	metrics.Windows.WithLabelValues("analyzed").Inc()
	logger.Debug().
		Bool("synthetic", res.Synthetic).
		Bool("scam", res.Scam).
		Float64("confidence", res.Confidence).
		Msg("analysis result")

	if !res.Threat() {
		return res, nil
	}
	p.publish(ctx, domain.NewAlert(w.CallID, res, p.now()), &logger)
	return res, nil
}

func (p *Pipeline) encode(w media.Window, logger *zerolog.Logger) ([]byte, error) {
	dec := p.NewDecoder()
	var mono []int16
	bad := 0
	for _, f := range w.Frames {
		pcm, channels, err := dec.Decode(f.Payload)
		if err != nil {
			bad++
			continue
		}
		mono = append(mono, Downmix(pcm, channels)...)
	}
	if bad > 0 {
		logger.Debug().Int("undecodable", bad).Int("frames", len(w.Frames)).Msg("skipped frames")
	}
	return EncodeWAV(mono, p.SampleRate)
}

func (p *Pipeline) publish(ctx context.Context, alert domain.Alert, logger *zerolog.Logger) {
	pctx, cancel := context.WithTimeout(ctx, orDefault(p.AlertTimeout, defaultAlertTimeout))
	defer cancel()
	if err := p.Alerts.PublishAlert(pctx, alert); err != nil {
		metrics.Alerts.WithLabelValues("failed").Inc()
		logger.Error().Err(err).Msg("alert publish failed")
		return
	}
	metrics.Alerts.WithLabelValues("published").Inc()
	logger.Warn().
		Bool("synthetic", alert.IsSynthetic).
		Bool("scam", alert.IsScam).
		Msg("security alert published")
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
