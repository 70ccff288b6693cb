package matchstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sqlc-dev/pqtype"

	"github.com/mcdev12/scrimmage/go/internal/models"
	"github.com/mcdev12/scrimmage/go/internal/sqlutil"
)

// Store archives matches, rounds, results and the raw event stream in
// Postgres. It is a pure consumer: nothing in the orchestrator waits on it.
type Store struct {
	db *sql.DB
}

// NewStore wraps an open database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS matches (
	match_id     TEXT PRIMARY KEY,
	team1_name   TEXT NOT NULL,
	team2_name   TEXT NOT NULL,
	config       JSONB,
	status       TEXT NOT NULL DEFAULT 'active',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS match_rounds (
	id          BIGSERIAL PRIMARY KEY,
	match_id    TEXT NOT NULL REFERENCES matches(match_id),
	round       INT NOT NULL,
	winner_team TEXT NOT NULL,
	team1_score INT NOT NULL,
	team2_score INT NOT NULL,
	ended_at    TIMESTAMPTZ NOT NULL,
	UNIQUE (match_id, round)
);

CREATE TABLE IF NOT EXISTS match_results (
	match_id      TEXT PRIMARY KEY REFERENCES matches(match_id),
	map           TEXT NOT NULL,
	winner_team   TEXT NOT NULL,
	team1_score   INT NOT NULL,
	team2_score   INT NOT NULL,
	rounds_played INT NOT NULL,
	demo_name     TEXT,
	completed_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS match_events (
	id          UUID PRIMARY KEY,
	match_id    TEXT NOT NULL,
	event_type  TEXT NOT NULL,
	payload     JSONB,
	occurred_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_match_events_match_id ON match_events(match_id, occurred_at);
`

// EnsureSchema creates the archive tables if they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure matchstore schema: %w", err)
	}
	return nil
}

// CreateMatch registers a new match on initialization. Re-registering the
// same match id is a no-op so replayed events stay harmless.
func (s *Store) CreateMatch(ctx context.Context, cfg models.MatchConfig) error {
	rawCfg, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal match config: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO matches (match_id, team1_name, team2_name, config)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (match_id) DO NOTHING`,
		cfg.MatchID, cfg.Team1.Name, cfg.Team2.Name,
		pqtype.NullRawMessage{RawMessage: rawCfg, Valid: true},
	)
	if err != nil {
		return fmt.Errorf("insert match %s: %w", cfg.MatchID, err)
	}
	return nil
}

// RecordRound archives one completed round.
func (s *Store) RecordRound(ctx context.Context, round models.RoundResult) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO match_rounds (match_id, round, winner_team, team1_score, team2_score, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (match_id, round) DO NOTHING`,
		round.MatchID, round.Round, round.WinnerTeam.String(),
		round.Team1Score, round.Team2Score, round.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("insert round %d for match %s: %w", round.Round, round.MatchID, err)
	}
	return nil
}

// queries groups the statements RecordResult runs inside one transaction.
type queries struct {
	tx *sql.Tx
}

func newQueries(tx *sql.Tx) *queries {
	return &queries{tx: tx}
}

// RecordResult archives the final result and closes the match row. Both
// writes commit together or not at all.
func (s *Store) RecordResult(ctx context.Context, result models.MatchResult) error {
	return sqlutil.Run(ctx, s.db, newQueries, func(q *queries) error {
		if _, err := q.tx.ExecContext(ctx, `
			INSERT INTO match_results (match_id, map, winner_team, team1_score, team2_score, rounds_played, demo_name, completed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (match_id) DO NOTHING`,
			result.MatchID, result.Map, result.WinnerTeam.String(),
			result.Team1Score, result.Team2Score, result.RoundsPlayed,
			sqlutil.NullString(result.DemoName), result.CompletedAt,
		); err != nil {
			return fmt.Errorf("insert result for match %s: %w", result.MatchID, err)
		}

		if _, err := q.tx.ExecContext(ctx, `
			UPDATE matches SET status = 'completed', completed_at = $2
			WHERE match_id = $1`,
			result.MatchID, result.CompletedAt,
		); err != nil {
			return fmt.Errorf("close match %s: %w", result.MatchID, err)
		}
		return nil
	})
}

// RecordEvent appends one raw event envelope to the archive.
func (s *Store) RecordEvent(ctx context.Context, id, matchID, eventType string, payload json.RawMessage, occurredAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO match_events (id, match_id, event_type, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`,
		id, matchID, eventType,
		pqtype.NullRawMessage{RawMessage: payload, Valid: payload != nil},
		occurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert event %s for match %s: %w", eventType, matchID, err)
	}
	return nil
}
