package app

import (
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/CallGuard/internal/domain"
	"github.com/dkeye/CallGuard/internal/metrics"
)

// SessionBuilder constructs an unstarted session for the registry.
type SessionBuilder func(id domain.CallID, caller, callee domain.UserID, createdAt time.Time, seq uint64) *CallSession

// Registry indexes live sessions by call id. It is owned by the orchestration loop and holds no locks.
type Registry struct {
	sessions map[domain.CallID]*CallSession
	seq      uint64
	serverID domain.UserID
	build    SessionBuilder
	now      func() time.Time
	logger   zerolog.Logger
}

func NewRegistry(serverID domain.UserID, build SessionBuilder, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{
		sessions: make(map[domain.CallID]*CallSession),
		serverID: serverID,
		build:    build,
		now:      now,
		logger:   log.With().Str("module", "app.registry").Logger(),
	}
}

// CreateSession registers a new session for the call. A call id that is already registered is
// returned as-is with created=false. Any other session for the same participant pair is closed first.
func (r *Registry) CreateSession(id domain.CallID, caller, callee domain.UserID) (s *CallSession, created bool) {
	if existing, ok := r.sessions[id]; ok {
		r.logger.Debug().Str("call_id", string(id)).Msg("duplicate call notice ignored")
		return existing, false
	}

	pair := domain.NewPair(caller, callee)
	for oldID, old := range r.sessions {
		if old.Pair() != pair {
			continue
		}
		r.logger.Info().
			Str("call_id", string(oldID)).
			Str("superseded_by", string(id)).
			Msg("superseding session for same participants")
		r.remove(oldID, old)
	}

	r.seq++
	s = r.build(id, caller, callee, r.now(), r.seq)
	r.sessions[id] = s
	metrics.SessionsLive.Set(float64(len(r.sessions)))
	r.logger.Info().Str("call_id", string(id)).Msg("session registered")
	return s, true
}

// EndSession removes and closes the session. Unknown ids are ignored.
func (r *Registry) EndSession(id domain.CallID) bool {
	s, ok := r.sessions[id]
	if !ok {
		return false
	}
	r.remove(id, s)
	r.logger.Info().Str("call_id", string(id)).Msg("session ended")
	return true
}

func (r *Registry) remove(id domain.CallID, s *CallSession) {
	delete(r.sessions, id)
	s.Close()
	metrics.SessionsLive.Set(float64(len(r.sessions)))
}

func (r *Registry) Get(id domain.CallID) (*CallSession, bool) {
	s, ok := r.sessions[id]
	return s, ok
}

// Resolve picks the session an inbound event belongs to: the most recently created non-closed match.
func (r *Registry) Resolve(ev domain.SignalingEvent) (*CallSession, bool) {
	var best *CallSession
	for _, s := range r.sessions {
		if s.State() == StateClosed || !s.Matches(ev, r.serverID) {
			continue
		}
		if best == nil || s.newer(best) {
			best = s
		}
	}
	return best, best != nil
}

// Reap closes sessions whose peer connections all died and sessions stuck negotiating past timeout.
func (r *Registry) Reap(timeout time.Duration) []domain.CallID {
	now := r.now()
	var reaped []domain.CallID
	for id, s := range r.sessions {
		var reason string
		switch {
		case s.State() == StateClosed:
			reason = "closed"
		case s.Dead():
			reason = "links closed"
		case s.State() == StateStarting && now.Sub(s.CreatedAt()) > timeout:
			reason = "negotiation timeout"
		default:
			continue
		}
		r.remove(id, s)
		reaped = append(reaped, id)
		r.logger.Info().Str("call_id", string(id)).Str("reason", reason).Msg("session reaped")
	}
	return reaped
}

func (r *Registry) Len() int { return len(r.sessions) }

// Snapshot lists sessions newest first.
func (r *Registry) Snapshot() []SessionInfo {
	all := make([]*CallSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].newer(all[j]) })
	out := make([]SessionInfo, 0, len(all))
	for _, s := range all {
		out = append(out, s.Info())
	}
	return out
}

func (r *Registry) CloseAll() {
	for id, s := range r.sessions {
		r.remove(id, s)
	}
}
