package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/caretext/arena-cli/internal/db"
	"github.com/caretext/arena-cli/internal/model"
)

// PostgresStore implements Store using pgxpool. It is the driver for hosted
// deployments where several participants vote concurrently.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

const postgresUpsertVote = `
INSERT INTO votes (
	id, participant_id, component, trial_id,
	left_method_id, right_method_id,
	preferred, resolved_preferred, feedback,
	client_recorded_at, submitted_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (id) DO UPDATE SET
	preferred          = EXCLUDED.preferred,
	resolved_preferred = EXCLUDED.resolved_preferred,
	feedback           = EXCLUDED.feedback,
	client_recorded_at = EXCLUDED.client_recorded_at,
	submitted_at       = EXCLUDED.submitted_at`

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot-path store operations.
var preparedStatements = map[string]string{
	"upsert_vote":          postgresUpsertVote,
	"get_participant":      `SELECT id, profile, created_at, updated_at FROM participants WHERE id = $1`,
	"insert_participant":   `INSERT INTO participants (id, created_at, updated_at) VALUES ($1, $2, $3)`,
	"next_participant_seq": `SELECT COALESCE(MAX(CAST(SUBSTRING(id FROM 2) AS INTEGER)), 0) FROM participants`,
	"update_profile":       `UPDATE participants SET profile = $1, updated_at = $2 WHERE id = $3`,
	"count_votes":          `SELECT COUNT(*) FROM votes`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS participants (
	id         TEXT PRIMARY KEY,
	profile    JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS votes (
	id                 TEXT PRIMARY KEY,
	participant_id     TEXT NOT NULL REFERENCES participants(id),
	component          TEXT NOT NULL,
	trial_id           INTEGER NOT NULL,
	left_method_id     TEXT NOT NULL,
	right_method_id    TEXT NOT NULL,
	preferred          TEXT NOT NULL,
	resolved_preferred TEXT,
	feedback           TEXT NOT NULL DEFAULT '',
	client_recorded_at TIMESTAMPTZ,
	submitted_at       TIMESTAMPTZ NOT NULL,
	UNIQUE (participant_id, component, trial_id)
);

CREATE INDEX IF NOT EXISTS idx_votes_participant ON votes(participant_id);
CREATE INDEX IF NOT EXISTS idx_votes_participant_component ON votes(participant_id, component);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Participants ---

func (s *PostgresStore) CreateParticipant(ctx context.Context) (*model.Participant, error) {
	var maxSeq int
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(CAST(SUBSTRING(id FROM 2) AS INTEGER)), 0) FROM participants`,
	).Scan(&maxSeq)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: next participant sequence")
	}

	now := time.Now().UTC()
	p := &model.Participant{ID: participantID(maxSeq + 1), CreatedAt: now, UpdatedAt: now}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO participants (id, created_at, updated_at) VALUES ($1, $2, $3)`,
		p.ID, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert participant %s", p.ID)
	}
	return p, nil
}

func (s *PostgresStore) GetParticipant(ctx context.Context, id string) (*model.Participant, error) {
	var p model.Participant
	var profileNull *[]byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, profile, created_at, updated_at FROM participants WHERE id = $1`,
		id,
	).Scan(&p.ID, &profileNull, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get participant %s", id)
	}

	if profileNull != nil {
		p.Profile = &model.Profile{}
		if err := json.Unmarshal(*profileNull, p.Profile); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal profile for %s", id)
		}
	}
	return &p, nil
}

func (s *PostgresStore) ListParticipants(ctx context.Context) ([]model.Participant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, profile, created_at, updated_at FROM participants ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list participants")
	}
	defer rows.Close()

	var out []model.Participant
	for rows.Next() {
		var p model.Participant
		var profileNull *[]byte
		if err := rows.Scan(&p.ID, &profileNull, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan participant")
		}
		if profileNull != nil {
			p.Profile = &model.Profile{}
			if err := json.Unmarshal(*profileNull, p.Profile); err != nil {
				return nil, eris.Wrapf(err, "postgres: unmarshal profile for %s", p.ID)
			}
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate participants")
	}
	return out, nil
}

func (s *PostgresStore) UpsertProfile(ctx context.Context, participantID string, profile model.Profile) error {
	raw, err := json.Marshal(profile)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal profile")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE participants SET profile = $1, updated_at = $2 WHERE id = $3`,
		raw, time.Now().UTC(), participantID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update profile for %s", participantID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("participant not found: %s", participantID)
	}
	return nil
}

// --- Votes ---

func (s *PostgresStore) UpsertVote(ctx context.Context, vote model.Vote) error {
	_, err := s.pool.Exec(ctx, postgresUpsertVote, postgresVoteRow(vote)...)
	if err != nil {
		return eris.Wrapf(err, "postgres: upsert vote %s", vote.ID)
	}
	return nil
}

// UpsertVotes bulk-loads a vote batch through a temp table. Sync payloads
// after a long offline stretch can carry a few hundred rows.
func (s *PostgresStore) UpsertVotes(ctx context.Context, votes []model.Vote) (int64, error) {
	if len(votes) == 0 {
		return 0, nil
	}

	rows := make([][]any, 0, len(votes))
	for _, v := range votes {
		rows = append(rows, postgresVoteRow(v))
	}

	n, err := db.BulkUpsert(ctx, s.pool, "votes", voteColumns, []string{"id"}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: bulk upsert votes")
	}
	return n, nil
}

func (s *PostgresStore) ListVotes(ctx context.Context, filter VoteFilter) ([]model.Vote, error) {
	query := `SELECT ` + strings.Join(voteColumns, ", ") + ` FROM votes WHERE true`
	args := []any{}
	argIdx := 1

	if filter.ParticipantID != "" {
		query += fmt.Sprintf(` AND participant_id = $%d`, argIdx)
		args = append(args, filter.ParticipantID)
		argIdx++
	}
	if filter.Component != "" {
		query += fmt.Sprintf(` AND component = $%d`, argIdx)
		args = append(args, filter.Component)
		argIdx++ //nolint:ineffassign,wastedassign
	}
	query += ` ORDER BY component, trial_id, participant_id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list votes")
	}
	defer rows.Close()

	var out []model.Vote
	for rows.Next() {
		var v model.Vote
		var preferred string
		var resolved *string
		var recorded *time.Time

		if err := rows.Scan(
			&v.ID, &v.ParticipantID, &v.Component, &v.TrialID,
			&v.LeftMethodID, &v.RightMethodID,
			&preferred, &resolved, &v.Feedback,
			&recorded, &v.SubmittedAt,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan vote")
		}
		v.Preferred = model.Preference(preferred)
		if resolved != nil {
			v.ResolvedPreferred = model.Side(*resolved)
		}
		v.ClientRecordedAt = recorded
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate votes")
	}
	return out, nil
}

func (s *PostgresStore) CountVotes(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM votes`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "postgres: count votes")
	}
	return n, nil
}

func postgresVoteRow(v model.Vote) []any {
	var resolved any
	if v.ResolvedPreferred != "" {
		resolved = string(v.ResolvedPreferred)
	}
	var recorded any
	if v.ClientRecordedAt != nil {
		recorded = v.ClientRecordedAt.UTC()
	}
	return []any{
		v.ID, v.ParticipantID, v.Component, v.TrialID,
		v.LeftMethodID, v.RightMethodID,
		string(v.Preferred), resolved, v.Feedback,
		recorded, v.SubmittedAt.UTC(),
	}
}
