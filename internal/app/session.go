package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/CallGuard/internal/app/media"
	"github.com/dkeye/CallGuard/internal/app/worker"
	"github.com/dkeye/CallGuard/internal/core"
	"github.com/dkeye/CallGuard/internal/domain"
	"github.com/dkeye/CallGuard/internal/metrics"
)

var (
	ErrSessionClosed      = errors.New("session closed")
	ErrSessionStarted     = errors.New("session already started")
	ErrAlreadyTapped      = errors.New("inbound track already tapped")
	ErrUnknownParticipant = errors.New("sender is not a participant")
)

type SessionState int

const (
	StateStarting SessionState = iota
	StateActive
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateStarting:
		return "STARTING"
	case StateActive:
		return "ACTIVE"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Submitter is a fire-and-forget job queue.
type Submitter interface {
	Submit(label string, job worker.Job) error
}

// Deps are the collaborators every CallSession shares.
type Deps struct {
	ServerID domain.UserID
	NewMedia func(label string) (core.MediaConnection, error)
	Sender   core.SignalSender
	Signals  Submitter
	// Post runs fn on the orchestration loop. Media callbacks arrive on pion goroutines and go through it.
	Post         func(fn func())
	Tap          media.TapConfig
	OnWindow     media.FlushFunc
	OfferTimeout time.Duration
	WriteTimeout time.Duration
}

// CallSession pairs the caller and callee links of one call.
// All methods must be called from the orchestration loop.
type CallSession struct {
	id        domain.CallID
	caller    domain.UserID
	callee    domain.UserID
	createdAt time.Time
	seq       uint64

	state  SessionState
	links  [2]*PeerLink
	deps   *Deps
	ctx    context.Context
	cancel context.CancelFunc
	logger zerolog.Logger
}

func NewCallSession(id domain.CallID, caller, callee domain.UserID, createdAt time.Time, seq uint64, deps *Deps) *CallSession {
	return &CallSession{
		id:        id,
		caller:    caller,
		callee:    callee,
		createdAt: createdAt,
		seq:       seq,
		deps:      deps,
		logger:    log.With().Str("module", "app.session").Str("call_id", string(id)).Logger(),
	}
}

func (s *CallSession) ID() domain.CallID            { return s.id }
func (s *CallSession) Caller() domain.UserID        { return s.caller }
func (s *CallSession) Callee() domain.UserID        { return s.callee }
func (s *CallSession) State() SessionState          { return s.state }
func (s *CallSession) CreatedAt() time.Time         { return s.createdAt }
func (s *CallSession) Pair() domain.Pair            { return domain.NewPair(s.caller, s.callee) }
func (s *CallSession) Link(r domain.Role) *PeerLink { return s.links[r] }

// Start opens both links and schedules an offer to each participant.
// A failed offer only affects its own leg; link creation failure closes the session.
func (s *CallSession) Start(ctx context.Context) error {
	if s.state == StateClosed {
		return ErrSessionClosed
	}
	if s.links[domain.RoleCaller] != nil {
		return ErrSessionStarted
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	for _, role := range []domain.Role{domain.RoleCaller, domain.RoleCallee} {
		id := LinkID{CallID: s.id, Role: role}
		conn, err := s.deps.NewMedia(id.String())
		if err != nil {
			s.Close()
			return fmt.Errorf("open %s link: %w", role, err)
		}
		link := newPeerLink(id, s.participant(role), conn, s.logger)
		s.links[role] = link
		s.bind(link)
		if err := conn.Start(s.ctx); err != nil {
			s.Close()
			return fmt.Errorf("start %s link: %w", role, err)
		}
	}

	for _, link := range s.links {
		s.dispatchOffer(link)
	}
	s.logger.Info().Str("caller", string(s.caller)).Str("callee", string(s.callee)).Msg("session started")
	return nil
}

func (s *CallSession) participant(r domain.Role) domain.UserID {
	if r == domain.RoleCaller {
		return s.caller
	}
	return s.callee
}

func (s *CallSession) bind(link *PeerLink) {
	post := s.deps.Post
	link.conn.OnTrack(func(_ context.Context, track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if track.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		post(func() { s.onInboundTrack(link, track) })
	})
	// Callbacks may arrive out of order, so the mirror re-reads the connection.
	link.conn.OnSignalingStateChange(func(webrtc.SignalingState) {
		post(func() {
			link.state = link.conn.SignalingState()
			link.logger.Debug().Str("signaling_state", link.state.String()).Msg("negotiation state")
			s.checkActive()
		})
	})
	// Fires synchronously from Close, so it must not post back into the loop.
	link.conn.OnClosed(func() {
		link.logger.Info().Msg("peer connection closed")
	})
}

// dispatchOffer runs offer creation and the transport write on the signaling pool.
func (s *CallSession) dispatchOffer(link *PeerLink) {
	deps := s.deps
	conn, target, logger := link.conn, link.remote, link.logger
	err := deps.Signals.Submit("offer "+link.id.String(), func(ctx context.Context) {
		octx, cancel := context.WithTimeout(ctx, deps.OfferTimeout)
		sdp, err := conn.CreateAndSetOffer(octx)
		cancel()
		if err != nil {
			metrics.Signals.WithLabelValues("offer", "failed").Inc()
			logger.Error().Err(err).Msg("create offer failed")
			return
		}
		wctx, cancel := context.WithTimeout(ctx, deps.WriteTimeout)
		defer cancel()
		if err := deps.Sender.SendSignal(wctx, domain.NewOffer(deps.ServerID, target, sdp.SDP)); err != nil {
			metrics.Signals.WithLabelValues("offer", "failed").Inc()
			logger.Error().Err(err).Msg("offer dispatch failed")
			return
		}
		metrics.Signals.WithLabelValues("offer", "sent").Inc()
		logger.Info().Msg("offer sent")
	})
	if err != nil {
		metrics.Signals.WithLabelValues("offer", "failed").Inc()
		logger.Error().Err(err).Msg("offer not scheduled")
	}
}

// Handle applies an answer or candidate to the link of the event's sender.
func (s *CallSession) Handle(ev domain.SignalingEvent) error {
	if s.state == StateClosed {
		return ErrSessionClosed
	}
	link := s.linkFor(ev.From)
	if link == nil {
		s.logger.Warn().Str("from", string(ev.From)).Str("kind", ev.Kind.String()).Msg("signal from unknown sender dropped")
		return ErrUnknownParticipant
	}

	switch ev.Kind {
	case domain.SignalAnswer:
		if err := link.ApplyAnswer(*ev.Answer); err != nil {
			link.logger.Warn().Err(err).Msg("answer rejected")
			return err
		}
		link.logger.Info().Msg("answer applied")
		s.checkActive()
	case domain.SignalCandidate:
		if err := link.ApplyCandidate(*ev.Candidate); err != nil {
			link.logger.Warn().Err(err).Msg("candidate rejected")
			return err
		}
	default:
		return fmt.Errorf("%w: %s", domain.ErrUnsupportedSignal, ev.Kind)
	}
	return nil
}

func (s *CallSession) linkFor(u domain.UserID) *PeerLink {
	switch u {
	case s.caller:
		return s.links[domain.RoleCaller]
	case s.callee:
		return s.links[domain.RoleCallee]
	}
	return nil
}

func (s *CallSession) checkActive() {
	if s.state != StateStarting {
		return
	}
	for _, l := range s.links {
		if l == nil || !l.Negotiated() {
			return
		}
	}
	s.state = StateActive
	s.logger.Info().Msg("session active")
}

func (s *CallSession) onInboundTrack(link *PeerLink, track InboundTrack) {
	if s.state == StateClosed {
		return
	}
	dst := s.links[link.id.Role.Other()]
	if dst == nil {
		return
	}
	if err := link.attachInbound(s.ctx, track, dst, s.deps.Tap, s.deps.OnWindow); err != nil {
		link.logger.Warn().Err(err).Msg("inbound track not forwarded")
	}
}

// Matches reports whether ev belongs to this call: sender and target are its two participants in
// either order, or the target is the relay and the sender is a participant.
func (s *CallSession) Matches(ev domain.SignalingEvent, serverID domain.UserID) bool {
	if (ev.From == s.caller && ev.Target == s.callee) || (ev.From == s.callee && ev.Target == s.caller) {
		return true
	}
	return ev.Target == serverID && (ev.From == s.caller || ev.From == s.callee)
}

// Dead reports whether every opened link has closed underneath the session.
func (s *CallSession) Dead() bool {
	opened := 0
	for _, l := range s.links {
		if l == nil {
			continue
		}
		opened++
		if !l.Closed() {
			return false
		}
	}
	return opened > 0
}

// newer orders sessions by creation time, then by registration sequence.
func (s *CallSession) newer(o *CallSession) bool {
	if !s.createdAt.Equal(o.createdAt) {
		return s.createdAt.After(o.createdAt)
	}
	return s.seq > o.seq
}

// Close tears down both links. In-flight analysis jobs are left to finish.
func (s *CallSession) Close() {
	if s.state == StateClosed {
		return
	}
	s.state = StateClosed
	if s.cancel != nil {
		s.cancel()
	}
	for _, l := range s.links {
		if l != nil {
			l.close()
		}
	}
	s.logger.Info().Msg("session closed")
}

type LinkInfo struct {
	Role           string `json:"role"`
	UserID         string `json:"user_id"`
	SignalingState string `json:"signaling_state"`
	Tapped         bool   `json:"tapped"`
	Windows        uint64 `json:"windows"`
	Frames         uint64 `json:"frames"`
}

type SessionInfo struct {
	ID        domain.CallID `json:"id"`
	Caller    domain.UserID `json:"caller"`
	Callee    domain.UserID `json:"callee"`
	State     string        `json:"state"`
	CreatedAt time.Time     `json:"created_at"`
	Links     []LinkInfo    `json:"links"`
}

func (s *CallSession) Info() SessionInfo {
	info := SessionInfo{
		ID:        s.id,
		Caller:    s.caller,
		Callee:    s.callee,
		State:     s.state.String(),
		CreatedAt: s.createdAt,
	}
	for _, l := range s.links {
		if l == nil {
			continue
		}
		li := LinkInfo{
			Role:           l.id.Role.String(),
			UserID:         string(l.remote),
			SignalingState: l.state.String(),
			Tapped:         l.Tapped(),
		}
		if st, ok := l.TapStats(); ok {
			li.Windows = st.Windows
			li.Frames = st.Forwarded
		}
		info.Links = append(info.Links, li)
	}
	return info
}
