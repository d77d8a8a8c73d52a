package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

func (h *Hub) writePump(ctx context.Context, c *WsSignalConn) {
	var ping <-chan time.Time
	if h.cfg.PingPeriod > 0 {
		t := time.NewTicker(h.cfg.PingPeriod)
		defer t.Stop()
		ping = t.C
	}
	defer c.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				h.logger.Debug().Str("user_id", string(c.user)).Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait)); err != nil {
				h.logger.Error().Err(err).Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Error().Err(err).Str("user_id", string(c.user)).Msg("writePump write error")
				return
			}
		case <-ping:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.cfg.WriteWait)); err != nil {
				h.logger.Warn().Err(err).Str("user_id", string(c.user)).Msg("ping failed")
				return
			}
		}
	}
}

func (h *Hub) readPump(ctx context.Context, c *WsSignalConn) {
	defer func() {
		h.logger.Info().Str("user_id", string(c.user)).Msg("readPump closing")
		h.unregister(c)
		c.Close()
	}()

	if h.cfg.ReadLimit > 0 {
		c.conn.SetReadLimit(h.cfg.ReadLimit)
	}
	if h.cfg.PingPeriod > 0 {
		pongWait := h.cfg.PingPeriod * 10 / 9
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.conn.SetPongHandler(func(string) error {
			return c.conn.SetReadDeadline(time.Now().Add(pongWait))
		})
	}

	select {
	case <-h.ready:
	case <-ctx.Done():
		return
	}

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn().Err(err).Str("user_id", string(c.user)).Msg("readPump read error")
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		h.handleMessage(ctx, c, data)
	}
}

func (h *Hub) handleMessage(ctx context.Context, c *WsSignalConn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		h.logger.Warn().Err(err).Str("user_id", string(c.user)).Msg("bad json")
		h.sendError(c, "bad_json")
		return
	}

	switch env.Type {
	case "calling":
		h.handleCalling(ctx, c, data)
	case "ended":
		h.handleEnded(ctx, c, data)
	case "answer", "ice-candidate":
		h.handleSignaling(ctx, c, data)
	case "ping":
		h.handlePing(c)
	case "whoami":
		h.handleWhoAmI(c)
	default:
		h.logger.Warn().Str("user_id", string(c.user)).Str("type", env.Type).Msg("unknown signal")
		h.sendError(c, "unknown_type")
	}
}

func (h *Hub) sendJSON(c *WsSignalConn, v any) {
	if err := h.deliver(c, v); err != nil {
		h.logger.Debug().Err(err).Str("user_id", string(c.user)).Msg("sendJSON")
	}
}
