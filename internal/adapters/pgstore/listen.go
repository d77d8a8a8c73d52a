package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dkeye/CallGuard/internal/core"
	"github.com/dkeye/CallGuard/internal/domain"
)

// Run listens for call and signaling notifications until ctx is done.
// A dropped connection is re-established with exponential backoff. Signaling rows
// inserted while disconnected are replayed from the last seen id, and calls whose
// status changed since the disconnect are replayed as notices.
func (s *Store) Run(ctx context.Context, inbox core.Inbox) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0

	err := backoff.RetryNotify(func() error {
		err := s.listen(ctx, inbox)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if s.disconnectedAt.IsZero() {
			s.disconnectedAt = s.now()
		}
		return err
	}, backoff.WithContext(bo, ctx), func(err error, next time.Duration) {
		s.logger.Warn().Err(err).Dur("retry_in", next).Msg("listener disconnected")
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// replayOverlap widens the call replay window for clock skew between relay and database.
// Repeated notices are harmless: sessions are keyed by call id.
const replayOverlap = 5 * time.Second

func (s *Store) listen(ctx context.Context, inbox core.Inbox) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire: %w", err)
	}
	defer conn.Release()

	for _, ch := range []string{callsChannel, signalingChannel} {
		if _, err := conn.Exec(ctx, "LISTEN "+ch); err != nil {
			return fmt.Errorf("listen %s: %w", ch, err)
		}
	}
	s.logger.Info().Msg("listening for notifications")

	if !s.disconnectedAt.IsZero() {
		if err := s.replayCalls(ctx, inbox, s.disconnectedAt.Add(-replayOverlap)); err != nil {
			return err
		}
	}
	if s.lastSignalID > 0 {
		if err := s.replaySignals(ctx, inbox); err != nil {
			return err
		}
	}
	s.disconnectedAt = time.Time{}

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		s.dispatch(ctx, inbox, n)
	}
}

func (s *Store) dispatch(ctx context.Context, inbox core.Inbox, n *pgconn.Notification) {
	switch n.Channel {
	case callsChannel:
		notice, ok, err := decodeCallNotification(n.Payload)
		if err != nil {
			s.logger.Warn().Err(err).Str("payload", n.Payload).Msg("bad call notification")
			return
		}
		if !ok {
			return
		}
		if err := inbox.SubmitCall(ctx, notice); err != nil {
			s.logger.Warn().Err(err).Str("call_id", string(notice.CallID)).Msg("call notice rejected")
		}
	case signalingChannel:
		id, err := parseSignalID(n.Payload)
		if err != nil {
			s.logger.Warn().Err(err).Msg("bad signaling notification")
			return
		}
		s.deliverSignal(ctx, inbox, id)
	}
}

func (s *Store) deliverSignal(ctx context.Context, inbox core.Inbox, id int64) {
	if id > s.lastSignalID {
		s.lastSignalID = id
	}
	var typ, from, target string
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT type, from_user_id, target_user_id, payload FROM signaling WHERE id = $1`, id).
		Scan(&typ, &from, &target, &payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return
	}
	if err != nil {
		s.logger.Warn().Err(err).Int64("signal_id", id).Msg("fetch signal failed")
		return
	}
	// Our own offers come back through the trigger as well.
	if domain.UserID(from) == s.serverID {
		return
	}
	ev, err := decodeSignalRow(typ, from, target, payload)
	if err != nil {
		s.logger.Debug().Err(err).Int64("signal_id", id).Msg("signal skipped")
		return
	}
	if err := inbox.SubmitSignal(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Int64("signal_id", id).Msg("signal rejected")
	}
}

func (s *Store) replaySignals(ctx context.Context, inbox core.Inbox) error {
	rows, err := s.pool.Query(ctx, `SELECT id FROM signaling WHERE id > $1 ORDER BY id`, s.lastSignalID)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	if len(ids) > 0 {
		s.logger.Info().Int("count", len(ids)).Msg("replaying missed signals")
	}
	for _, id := range ids {
		s.deliverSignal(ctx, inbox, id)
	}
	return nil
}

func (s *Store) replayCalls(ctx context.Context, inbox core.Inbox, since time.Time) error {
	rows, err := s.pool.Query(ctx,
		`SELECT id, status, caller_id, callee_id FROM calls
		 WHERE status_changed_at >= $1 ORDER BY status_changed_at, id`, since)
	if err != nil {
		return fmt.Errorf("replay calls: %w", err)
	}
	calls, err := pgx.CollectRows(rows, pgx.RowToStructByPos[callRow])
	if err != nil {
		return fmt.Errorf("replay calls: %w", err)
	}
	notices := replayNotices(calls)
	if len(notices) > 0 {
		s.logger.Info().Int("count", len(notices)).Time("since", since).Msg("replaying missed calls")
	}
	for _, n := range notices {
		if err := inbox.SubmitCall(ctx, n); err != nil {
			s.logger.Warn().Err(err).Str("call_id", string(n.CallID)).Msg("call notice rejected")
		}
	}
	return nil
}
