package orch

import (
	"context"

	"github.com/dkeye/CallGuard/internal/domain"
	"github.com/dkeye/CallGuard/internal/metrics"
)

// SubmitSignal queues an inbound answer or candidate for routing. Per-sender order is preserved.
func (o *Orchestrator) SubmitSignal(ctx context.Context, ev domain.SignalingEvent) error {
	return o.submit(ctx, func() { o.route(ev) })
}

// route binds the event to exactly one live session, or drops it.
func (o *Orchestrator) route(ev domain.SignalingEvent) {
	kind := ev.Kind.String()
	if ev.From == o.serverID {
		metrics.Signals.WithLabelValues(kind, "echo").Inc()
		return
	}
	s, ok := o.Registry.Resolve(ev)
	if !ok {
		metrics.Signals.WithLabelValues(kind, "unmatched").Inc()
		o.logger.Warn().
			Str("kind", kind).
			Str("from", string(ev.From)).
			Str("target", string(ev.Target)).
			Msg("no session for signal, dropped")
		return
	}
	if err := s.Handle(ev); err != nil {
		metrics.Signals.WithLabelValues(kind, "rejected").Inc()
		return
	}
	metrics.Signals.WithLabelValues(kind, "routed").Inc()
}
