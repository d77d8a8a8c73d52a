// Package orch runs the single event loop that owns every call session.
package orch

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/CallGuard/internal/app"
	"github.com/dkeye/CallGuard/internal/domain"
)

var ErrStopped = errors.New("orchestrator stopped")

type Options struct {
	QueueSize          int
	ReapInterval       time.Duration
	NegotiationTimeout time.Duration
	Now                func() time.Time
}

// Orchestrator serializes call notices, signaling events and media callbacks onto one goroutine.
// Registry and sessions are only touched from that goroutine.
type Orchestrator struct {
	Registry *app.Registry

	serverID domain.UserID
	opts     Options
	events   chan func()
	ctx      context.Context
	stopped  chan struct{}
	logger   zerolog.Logger
}

func New(deps app.Deps, opts Options) *Orchestrator {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.ReapInterval <= 0 {
		opts.ReapInterval = 15 * time.Second
	}
	if opts.NegotiationTimeout <= 0 {
		opts.NegotiationTimeout = time.Minute
	}
	o := &Orchestrator{
		serverID: deps.ServerID,
		opts:     opts,
		events:   make(chan func(), opts.QueueSize),
		ctx:      context.Background(),
		stopped:  make(chan struct{}),
		logger:   log.With().Str("module", "orch").Logger(),
	}
	deps.Post = o.Post
	shared := &deps
	o.Registry = app.NewRegistry(deps.ServerID, func(id domain.CallID, caller, callee domain.UserID, at time.Time, seq uint64) *app.CallSession {
		return app.NewCallSession(id, caller, callee, at, seq, shared)
	}, opts.Now)
	return o
}

// Run processes events until ctx is done, then closes every session.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.ctx = ctx
	defer close(o.stopped)

	ticker := time.NewTicker(o.opts.ReapInterval)
	defer ticker.Stop()

	o.logger.Info().Msg("orchestrator loop started")
	for {
		select {
		case <-ctx.Done():
			o.Registry.CloseAll()
			o.logger.Info().Msg("orchestrator loop stopped")
			return ctx.Err()
		case fn := <-o.events:
			fn()
		case <-ticker.C:
			if reaped := o.Registry.Reap(o.opts.NegotiationTimeout); len(reaped) > 0 {
				o.logger.Info().Int("count", len(reaped)).Msg("reaper pass")
			}
		}
	}
}

// Post queues fn for the loop. It blocks while the queue is full and drops fn once the loop has stopped.
func (o *Orchestrator) Post(fn func()) {
	select {
	case <-o.stopped:
		return
	default:
	}
	select {
	case o.events <- fn:
	case <-o.stopped:
	}
}

func (o *Orchestrator) submit(ctx context.Context, fn func()) error {
	select {
	case <-o.stopped:
		return ErrStopped
	default:
	}
	select {
	case o.events <- fn:
		return nil
	case <-o.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sessions returns a snapshot taken on the loop.
func (o *Orchestrator) Sessions(ctx context.Context) ([]app.SessionInfo, error) {
	out := make(chan []app.SessionInfo, 1)
	if err := o.submit(ctx, func() { out <- o.Registry.Snapshot() }); err != nil {
		return nil, err
	}
	select {
	case s := <-out:
		return s, nil
	case <-o.stopped:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
