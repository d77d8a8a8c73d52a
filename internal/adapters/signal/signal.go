// Package signal is the WebSocket relay transport: participants connect directly and exchange
// call notices and signaling with the relay over JSON text frames.
package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/CallGuard/internal/core"
	"github.com/dkeye/CallGuard/internal/domain"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrPeerOffline  = errors.New("peer offline")
	ErrUnknownCall  = errors.New("unknown call")
	ErrConnClosed   = errors.New("connection closed")
)

type HubConfig struct {
	ServerID   domain.UserID
	SendBuffer int
	ReadLimit  int64
	PingPeriod time.Duration
	WriteWait  time.Duration
	RateLimit  int
	RateWindow time.Duration
	Policy     Policy
	// EndedRetention keeps an ended call routable for alerts from its last analysis window.
	EndedRetention time.Duration
}

type trackedCall struct {
	pair    domain.Pair
	endedAt time.Time
}

func (t trackedCall) ended() bool { return !t.endedAt.IsZero() }

// Hub tracks one connection per user and implements core.Transport.
type Hub struct {
	cfg     HubConfig
	limiter *CallRateLimiter
	logger  zerolog.Logger

	mu    sync.RWMutex
	conns map[domain.UserID]*WsSignalConn
	calls map[domain.CallID]trackedCall
	inbox core.Inbox
	now   func() time.Time

	ready     chan struct{}
	readyOnce sync.Once
}

var _ core.Transport = (*Hub)(nil)

func NewHub(cfg HubConfig) *Hub {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 32
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 5 * time.Second
	}
	if cfg.Policy == nil {
		cfg.Policy = DropPolicy{}
	}
	if cfg.EndedRetention <= 0 {
		cfg.EndedRetention = 30 * time.Second
	}
	return &Hub{
		cfg:     cfg,
		limiter: NewCallRateLimiter(cfg.RateLimit, cfg.RateWindow),
		logger:  log.With().Str("module", "adapters.signal").Logger(),
		conns:   make(map[domain.UserID]*WsSignalConn),
		calls:   make(map[domain.CallID]trackedCall),
		now:     time.Now,
		ready:   make(chan struct{}),
	}
}

type WsSignalConn struct {
	user domain.UserID
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// Run hands the inbox to connected clients and blocks until ctx is done, then drops every connection.
func (h *Hub) Run(ctx context.Context, inbox core.Inbox) error {
	h.mu.Lock()
	h.inbox = inbox
	h.mu.Unlock()
	h.readyOnce.Do(func() { close(h.ready) })

	<-ctx.Done()

	h.mu.Lock()
	conns := h.conns
	h.conns = make(map[domain.UserID]*WsSignalConn)
	h.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
	h.logger.Info().Int("connections", len(conns)).Msg("hub stopped")
	return nil
}

func (h *Hub) Online(uid domain.UserID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.conns[uid]
	return ok
}

// SendSignal delivers an outbound offer to its target participant.
func (h *Hub) SendSignal(_ context.Context, ev domain.SignalingEvent) error {
	c, ok := h.conn(ev.Target)
	if !ok {
		return fmt.Errorf("%w: %s", ErrPeerOffline, ev.Target)
	}
	return h.deliver(c, ev.Envelope())
}

type alertMessage struct {
	Type   string        `json:"type"`
	CallID domain.CallID `json:"callId"`
	Alert  domain.Alert  `json:"alert"`
}

// PublishAlert pushes the alert to whichever participants of the call are connected.
// Recently ended calls still receive alerts.
func (h *Hub) PublishAlert(_ context.Context, alert domain.Alert) error {
	h.mu.Lock()
	h.pruneCalls()
	t, ok := h.calls[alert.CallID]
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCall, alert.CallID)
	}

	msg := alertMessage{Type: "security_alert", CallID: alert.CallID, Alert: alert}
	var delivered int
	var errs []error
	for _, uid := range []domain.UserID{t.pair.A, t.pair.B} {
		c, ok := h.conn(uid)
		if !ok {
			continue
		}
		if err := h.deliver(c, msg); err != nil {
			errs = append(errs, err)
			continue
		}
		delivered++
	}
	if delivered == 0 && len(errs) == 0 {
		return fmt.Errorf("%w: call %s", ErrPeerOffline, alert.CallID)
	}
	return errors.Join(errs...)
}

func (h *Hub) conn(uid domain.UserID) (*WsSignalConn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.conns[uid]
	return c, ok
}

func (h *Hub) deliver(c *WsSignalConn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	err = c.TrySend(b)
	if errors.Is(err, ErrBackpressure) {
		switch h.cfg.Policy.OnBackpressure(c.user) {
		case KickMember:
			h.logger.Warn().Str("user_id", string(c.user)).Msg("send queue full, disconnecting")
			c.Close()
		case DropFrame:
			h.logger.Warn().Str("user_id", string(c.user)).Msg("send queue full, frame dropped")
		}
	}
	return err
}

func (h *Hub) register(c *WsSignalConn) {
	h.mu.Lock()
	old := h.conns[c.user]
	h.conns[c.user] = c
	h.mu.Unlock()
	if old != nil {
		h.logger.Info().Str("user_id", string(c.user)).Msg("connection replaced")
		old.Close()
	}
}

func (h *Hub) unregister(c *WsSignalConn) {
	h.mu.Lock()
	if h.conns[c.user] == c {
		delete(h.conns, c.user)
	}
	h.mu.Unlock()
}

// trackCall remembers the participants of a call so alerts can reach them.
// It refuses an id already used by another pair or already ended; repeating a live
// calling is accepted. A newer call between the same pair ends the older entry.
func (h *Hub) trackCall(n domain.CallNotice) bool {
	pair := domain.NewPair(n.From, n.Target)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pruneCalls()
	if t, ok := h.calls[n.CallID]; ok {
		return t.pair == pair && !t.ended()
	}
	now := h.now()
	for id, t := range h.calls {
		if t.pair == pair && !t.ended() {
			t.endedAt = now
			h.calls[id] = t
		}
	}
	h.calls[n.CallID] = trackedCall{pair: pair}
	return true
}

// endCall marks a live call ended on behalf of uid.
func (h *Hub) endCall(id domain.CallID, uid domain.UserID) (domain.Pair, string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pruneCalls()
	t, ok := h.calls[id]
	switch {
	case !ok:
		return domain.Pair{}, "unknown_call"
	case !t.pair.Has(uid):
		return domain.Pair{}, "forbidden"
	case t.ended():
		return t.pair, "already_ended"
	}
	t.endedAt = h.now()
	h.calls[id] = t
	return t.pair, ""
}

// pruneCalls drops ended calls past retention. Callers hold h.mu.
func (h *Hub) pruneCalls() {
	now := h.now()
	for id, t := range h.calls {
		if t.ended() && now.Sub(t.endedAt) > h.cfg.EndedRetention {
			delete(h.calls, id)
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and serves one participant until it disconnects or ctx ends.
// The participant is the "user" query parameter, or the identity stored under "client_token".
func (h *Hub) HandleSignal(ctx context.Context, c *gin.Context) {
	raw := c.Query("user")
	if raw == "" {
		raw = c.GetString("client_token")
	}
	uid, err := domain.ParseUserID(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if uid == h.cfg.ServerID {
		c.JSON(http.StatusForbidden, gin.H{"error": "reserved user id"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("ws upgrade")
		return
	}
	conn := &WsSignalConn{
		user: uid,
		conn: ws,
		send: make(chan []byte, h.cfg.SendBuffer),
	}
	h.register(conn)
	h.logger.Info().Str("user_id", string(uid)).Msg("new WS connection")

	ctx, cancel := context.WithCancel(ctx)
	go h.writePump(ctx, conn)
	go func() {
		defer cancel()
		h.readPump(ctx, conn)
	}()
}
