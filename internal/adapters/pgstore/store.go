// Package pgstore relays call notices, signaling and alerts through Postgres.
// Clients write rows; the relay learns about them through LISTEN/NOTIFY.
package pgstore

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/CallGuard/internal/domain"
)

//go:embed migrations/*.sql
var migrations embed.FS

var ErrCallNotFound = errors.New("call not found")

const (
	callsChannel     = "callguard_calls"
	signalingChannel = "callguard_signaling"
)

type Store struct {
	pool     *pgxpool.Pool
	serverID domain.UserID
	logger   zerolog.Logger

	lastSignalID   int64
	disconnectedAt time.Time
	now            func() time.Time
}

func Open(ctx context.Context, databaseURL string, serverID domain.UserID) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{
		pool:     pool,
		serverID: serverID,
		logger:   log.With().Str("module", "pgstore").Logger(),
		now:      time.Now,
	}, nil
}

// Migrate applies the embedded schema.
func (s *Store) Migrate(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()

	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	s.logger.Info().Int("applied", len(results)).Msg("migrations up to date")
	return nil
}

func (s *Store) Close() { s.pool.Close() }

// SendSignal appends an outbound signaling row. Rows are never updated afterwards.
func (s *Store) SendSignal(ctx context.Context, ev domain.SignalingEvent) error {
	env := ev.Envelope()
	payload, err := json.Marshal(signalPayload{Offer: env.Offer, Answer: env.Answer, Candidate: env.Candidate})
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO signaling (type, from_user_id, target_user_id, payload) VALUES ($1, $2, $3, $4::jsonb)`,
		env.Type, env.FromUserID, env.TargetUserID, string(payload))
	if err != nil {
		return fmt.Errorf("insert signal: %w", err)
	}
	return nil
}

// PublishAlert overwrites the call's security_alert column.
func (s *Store) PublishAlert(ctx context.Context, alert domain.Alert) error {
	doc, err := json.Marshal(alert)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE calls SET security_alert = $2::jsonb, updated_at = now() WHERE id = $1`,
		string(alert.CallID), string(doc))
	if err != nil {
		return fmt.Errorf("update alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrCallNotFound, alert.CallID)
	}
	return nil
}
