package pgstore

import (
	"context"
	"fmt"
	"time"
)

type JanitorConfig struct {
	Interval           time.Duration
	SignalingRetention time.Duration
	CallRetention      time.Duration
}

// Sweep deletes signaling rows and ended calls older than their retention.
func (s *Store) Sweep(ctx context.Context, cfg JanitorConfig) (signals, calls int64, err error) {
	now := time.Now()
	tag, err := s.pool.Exec(ctx, `DELETE FROM signaling WHERE created_at < $1`, now.Add(-cfg.SignalingRetention))
	if err != nil {
		return 0, 0, fmt.Errorf("sweep signaling: %w", err)
	}
	signals = tag.RowsAffected()

	tag, err = s.pool.Exec(ctx,
		`DELETE FROM calls WHERE status = 'ended' AND updated_at < $1`, now.Add(-cfg.CallRetention))
	if err != nil {
		return signals, 0, fmt.Errorf("sweep calls: %w", err)
	}
	return signals, tag.RowsAffected(), nil
}

func (s *Store) RunJanitor(ctx context.Context, cfg JanitorConfig) {
	if cfg.Interval <= 0 {
		return
	}
	t := time.NewTicker(cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			signals, calls, err := s.Sweep(ctx, cfg)
			if err != nil {
				s.logger.Warn().Err(err).Msg("janitor sweep failed")
				continue
			}
			if signals > 0 || calls > 0 {
				s.logger.Info().Int64("signals", signals).Int64("calls", calls).Msg("janitor swept rows")
			}
		}
	}
}
