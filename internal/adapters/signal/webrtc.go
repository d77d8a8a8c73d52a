package signal

import (
	"context"
	"errors"

	"github.com/dkeye/CallGuard/internal/domain"
)

// handleSignaling forwards an answer or ICE candidate to the relay. Senders cannot speak for others.
func (h *Hub) handleSignaling(ctx context.Context, c *WsSignalConn, data []byte) {
	ev, err := domain.DecodeSignal(data)
	if err != nil {
		h.logger.Warn().Err(err).Str("user_id", string(c.user)).Msg("bad signaling payload")
		if errors.Is(err, domain.ErrUnsupportedSignal) {
			h.sendError(c, "unsupported")
		} else {
			h.sendError(c, "bad_payload")
		}
		return
	}
	if ev.From != c.user {
		h.sendError(c, "forbidden")
		return
	}
	if err := h.inbox.SubmitSignal(ctx, ev); err != nil {
		h.logger.Warn().Err(err).Str("user_id", string(c.user)).Str("kind", ev.Kind.String()).Msg("signal rejected")
		h.sendError(c, "unavailable")
	}
}
