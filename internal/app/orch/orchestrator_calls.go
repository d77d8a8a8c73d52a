package orch

import (
	"context"
	"fmt"

	"github.com/dkeye/CallGuard/internal/domain"
)

// SubmitCall queues a call lifecycle notice. Calling creates and starts a session, ended tears it down.
func (o *Orchestrator) SubmitCall(ctx context.Context, n domain.CallNotice) error {
	if err := n.Validate(); err != nil {
		return err
	}
	return o.submit(ctx, func() { o.handleCall(n) })
}

func (o *Orchestrator) handleCall(n domain.CallNotice) {
	logger := o.logger.With().Str("call_id", string(n.CallID)).Str("status", string(n.Status)).Logger()
	switch n.Status {
	case domain.StatusCalling:
		s, created := o.Registry.CreateSession(n.CallID, n.From, n.Target)
		if !created {
			return
		}
		if err := s.Start(o.ctx); err != nil {
			logger.Error().Err(err).Msg("session start failed")
			o.Registry.EndSession(n.CallID)
		}
	case domain.StatusEnded:
		if !o.Registry.EndSession(n.CallID) {
			logger.Debug().Msg("end for unknown call ignored")
		}
	default:
		logger.Warn().Err(fmt.Errorf("%w: %q", domain.ErrMalformedNotice, n.Status)).Msg("notice dropped")
	}
}
