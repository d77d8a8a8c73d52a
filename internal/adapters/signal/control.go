package signal

func (h *Hub) handlePing(c *WsSignalConn) {
	resp := struct {
		Type string `json:"type"`
	}{
		Type: "pong",
	}
	h.sendJSON(c, resp)
}

func (h *Hub) sendError(c *WsSignalConn, code string) {
	h.sendJSON(c, map[string]any{
		"type":  "error",
		"error": code,
	})
}
