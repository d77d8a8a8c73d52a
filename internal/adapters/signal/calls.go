package signal

import (
	"context"
	"encoding/json"

	"github.com/dkeye/CallGuard/internal/domain"
)

type callPayload struct {
	Type         string `json:"type"`
	CallID       string `json:"callId"`
	FromUserID   string `json:"fromUserId,omitempty"`
	TargetUserID string `json:"targetUserId"`
}

// handleCalling starts a call from the connected user. The caller is always the connection's identity.
func (h *Hub) handleCalling(ctx context.Context, c *WsSignalConn, data []byte) {
	var p callPayload
	if err := json.Unmarshal(data, &p); err != nil {
		h.logger.Warn().Err(err).Msg("bad calling payload")
		h.sendError(c, "bad_payload")
		return
	}
	if p.FromUserID != "" && domain.UserID(p.FromUserID) != c.user {
		h.sendError(c, "forbidden")
		return
	}
	target, err := domain.ParseUserID(p.TargetUserID)
	if err != nil || target == h.cfg.ServerID {
		h.sendError(c, "bad_target")
		return
	}
	if !h.limiter.Allow(c.user) {
		h.logger.Warn().Str("user_id", string(c.user)).Msg("calling rate limited")
		h.sendError(c, "rate_limited")
		return
	}

	n := domain.CallNotice{
		CallID: domain.CallID(p.CallID),
		Status: domain.StatusCalling,
		From:   c.user,
		Target: target,
	}
	if err := n.Validate(); err != nil {
		h.sendError(c, "bad_payload")
		return
	}
	if !h.trackCall(n) {
		h.sendError(c, "call_exists")
		return
	}
	if err := h.inbox.SubmitCall(ctx, n); err != nil {
		h.logger.Warn().Err(err).Str("call_id", p.CallID).Msg("calling rejected")
		h.sendError(c, "unavailable")
	}
}

// handleEnded ends a call. Only its participants may end it.
func (h *Hub) handleEnded(ctx context.Context, c *WsSignalConn, data []byte) {
	var p callPayload
	if err := json.Unmarshal(data, &p); err != nil || p.CallID == "" {
		h.sendError(c, "bad_payload")
		return
	}
	id := domain.CallID(p.CallID)

	pair, code := h.endCall(id, c.user)
	switch code {
	case "":
	case "already_ended":
		return
	default:
		h.sendError(c, code)
		return
	}

	n := domain.CallNotice{CallID: id, Status: domain.StatusEnded, From: pair.A, Target: pair.B}
	if err := h.inbox.SubmitCall(ctx, n); err != nil {
		h.logger.Warn().Err(err).Str("call_id", p.CallID).Msg("ended rejected")
		h.sendError(c, "unavailable")
	}
}
