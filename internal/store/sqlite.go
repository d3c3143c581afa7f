package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/caretext/arena-cli/internal/model"
)

// sqliteMigration creates the survey schema. Statements are idempotent so
// Migrate can run on every start.
const sqliteMigration = `
CREATE TABLE IF NOT EXISTS participants (
	id         TEXT PRIMARY KEY,
	profile    TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
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
	client_recorded_at DATETIME,
	submitted_at       DATETIME NOT NULL,
	UNIQUE (participant_id, component, trial_id)
);

CREATE INDEX IF NOT EXISTS idx_votes_participant ON votes (participant_id);
CREATE INDEX IF NOT EXISTS idx_votes_participant_component ON votes (participant_id, component);
`

const sqliteUpsertVote = `
INSERT INTO votes (
	id, participant_id, component, trial_id,
	left_method_id, right_method_id,
	preferred, resolved_preferred, feedback,
	client_recorded_at, submitted_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	preferred          = excluded.preferred,
	resolved_preferred = excluded.resolved_preferred,
	feedback           = excluded.feedback,
	client_recorded_at = excluded.client_recorded_at,
	submitted_at       = excluded.submitted_at`

// SQLiteStore is the single-file store used for local deployments and the
// simulator. One laptop at the clinic is the expected production shape.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (creating if necessary) the database at path.
func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: open %s", path)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteMigration); err != nil {
		return eris.Wrap(err, "sqlite: run migration")
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Participants ---

func (s *SQLiteStore) CreateParticipant(ctx context.Context) (*model.Participant, error) {
	var maxSeq int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(CAST(SUBSTR(id, 2) AS INTEGER)), 0) FROM participants`,
	).Scan(&maxSeq)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: next participant sequence")
	}

	now := time.Now().UTC()
	p := &model.Participant{ID: participantID(maxSeq + 1), CreatedAt: now, UpdatedAt: now}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO participants (id, profile, created_at, updated_at) VALUES (?, NULL, ?, ?)`,
		p.ID, p.CreatedAt, p.UpdatedAt,
	); err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert participant %s", p.ID)
	}
	return p, nil
}

func (s *SQLiteStore) GetParticipant(ctx context.Context, id string) (*model.Participant, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, profile, created_at, updated_at FROM participants WHERE id = ?`, id)

	p, err := scanParticipant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get participant %s", id)
	}
	return p, nil
}

func (s *SQLiteStore) ListParticipants(ctx context.Context) ([]model.Participant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, profile, created_at, updated_at FROM participants ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list participants")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan participant")
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate participants")
	}
	return out, nil
}

func (s *SQLiteStore) UpsertProfile(ctx context.Context, participantID string, profile model.Profile) error {
	raw, err := json.Marshal(profile)
	if err != nil {
		return eris.Wrap(err, "sqlite: encode profile")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE participants SET profile = ?, updated_at = ? WHERE id = ?`,
		string(raw), time.Now().UTC(), participantID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update profile for %s", participantID)
	}
	return checkRowsAffected(res, "participant", participantID)
}

// --- Votes ---

func (s *SQLiteStore) UpsertVote(ctx context.Context, vote model.Vote) error {
	if _, err := s.db.ExecContext(ctx, sqliteUpsertVote, sqliteVoteArgs(vote)...); err != nil {
		return eris.Wrapf(err, "sqlite: upsert vote %s", vote.ID)
	}
	return nil
}

func (s *SQLiteStore) UpsertVotes(ctx context.Context, votes []model.Vote) (int64, error) {
	if len(votes) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin vote batch")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, v := range votes {
		if _, err := tx.ExecContext(ctx, sqliteUpsertVote, sqliteVoteArgs(v)...); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert vote %s", v.ID)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit vote batch")
	}
	return int64(len(votes)), nil
}

func (s *SQLiteStore) ListVotes(ctx context.Context, filter VoteFilter) ([]model.Vote, error) {
	query := `SELECT ` + strings.Join(voteColumns, ", ") + ` FROM votes`
	var conditions []string
	var args []any

	if filter.ParticipantID != "" {
		conditions = append(conditions, "participant_id = ?")
		args = append(args, filter.ParticipantID)
	}
	if filter.Component != "" {
		conditions = append(conditions, "component = ?")
		args = append(args, filter.Component)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY component, trial_id, participant_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list votes")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Vote
	for rows.Next() {
		v, err := scanVote(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan vote")
		}
		out = append(out, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate votes")
	}
	return out, nil
}

func (s *SQLiteStore) CountVotes(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM votes`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "sqlite: count votes")
	}
	return n, nil
}

// --- Helpers ---

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

// scannable lets scan helpers accept both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

func scanParticipant(row scannable) (*model.Participant, error) {
	var p model.Participant
	var profile sql.NullString
	if err := row.Scan(&p.ID, &profile, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if profile.Valid && profile.String != "" {
		var prof model.Profile
		if err := json.Unmarshal([]byte(profile.String), &prof); err != nil {
			return nil, eris.Wrapf(err, "decode profile for %s", p.ID)
		}
		p.Profile = &prof
	}
	return &p, nil
}

func scanVote(row scannable) (*model.Vote, error) {
	var v model.Vote
	var preferred string
	var resolved sql.NullString
	var recorded sql.NullTime
	if err := row.Scan(
		&v.ID, &v.ParticipantID, &v.Component, &v.TrialID,
		&v.LeftMethodID, &v.RightMethodID,
		&preferred, &resolved, &v.Feedback,
		&recorded, &v.SubmittedAt,
	); err != nil {
		return nil, err
	}
	v.Preferred = model.Preference(preferred)
	if resolved.Valid {
		v.ResolvedPreferred = model.Side(resolved.String)
	}
	if recorded.Valid {
		t := recorded.Time
		v.ClientRecordedAt = &t
	}
	return &v, nil
}

func sqliteVoteArgs(v model.Vote) []any {
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
