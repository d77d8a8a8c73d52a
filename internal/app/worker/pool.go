// Package worker runs fire-and-forget jobs on a fixed set of goroutines fed by a bounded queue.
package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"github.com/dkeye/CallGuard/internal/metrics"
)

var (
	ErrQueueFull  = errors.New("worker queue full")
	ErrPoolClosed = errors.New("worker pool closed")
)

// Job receives the pool context, which is cancelled only by Stop.
type Job func(ctx context.Context)

type task struct {
	label string
	run   Job
}

type Pool struct {
	name   string
	queue  chan task
	wg     *conc.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	logger zerolog.Logger

	mu     sync.RWMutex
	closed bool
}

func NewPool(name string, workers, queueSize int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		name:   name,
		queue:  make(chan task, queueSize),
		wg:     conc.NewWaitGroup(),
		ctx:    ctx,
		cancel: cancel,
		logger: log.With().Str("module", "worker").Str("pool", name).Logger(),
	}
	for i := 0; i < workers; i++ {
		p.wg.Go(p.work)
	}
	return p
}

// Submit enqueues job without blocking. A full or closed pool drops the job.
func (p *Pool) Submit(label string, job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		metrics.JobsDropped.WithLabelValues(p.name).Inc()
		return ErrPoolClosed
	}
	select {
	case p.queue <- task{label: label, run: job}:
		return nil
	default:
		metrics.JobsDropped.WithLabelValues(p.name).Inc()
		p.logger.Warn().Str("job", label).Msg("queue full, job dropped")
		return ErrQueueFull
	}
}

func (p *Pool) work() {
	for t := range p.queue {
		var pc panics.Catcher
		pc.Try(func() { t.run(p.ctx) })
		if r := pc.Recovered(); r != nil {
			p.logger.Error().Str("job", t.label).Err(r.AsError()).Str("stack", string(r.Stack)).Msg("job panicked")
		}
	}
}

// Close stops accepting jobs and waits for queued ones to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()
	p.wg.Wait()
	p.cancel()
}

// Stop cancels running jobs, then closes the pool.
func (p *Pool) Stop() {
	p.cancel()
	p.Close()
}
