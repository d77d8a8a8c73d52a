package signal

import "github.com/dkeye/CallGuard/internal/domain"

// handleWhoAmI tells anonymous clients which identity the relay assigned them.
func (h *Hub) handleWhoAmI(c *WsSignalConn) {
	resp := struct {
		Type   string        `json:"type"`
		UserID domain.UserID `json:"userId"`
	}{
		Type:   "whoami",
		UserID: c.user,
	}
	h.sendJSON(c, resp)
}
