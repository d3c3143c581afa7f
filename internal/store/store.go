package store

import (
	"context"
	"fmt"

	"github.com/caretext/arena-cli/internal/model"
)

// VoteFilter narrows vote listings. Zero-value fields mean no constraint.
type VoteFilter struct {
	ParticipantID string `json:"participant_id,omitempty"`
	Component     string `json:"component,omitempty"`
}

// Store defines the persistence interface for the survey: participants with
// their background profiles, and the append-only vote log. Vote writes are
// upserts keyed by the vote id, so resubmitting a trial overwrites rather
// than duplicates.
type Store interface {
	// Participants
	CreateParticipant(ctx context.Context) (*model.Participant, error)
	GetParticipant(ctx context.Context, id string) (*model.Participant, error)
	ListParticipants(ctx context.Context) ([]model.Participant, error)
	UpsertProfile(ctx context.Context, participantID string, profile model.Profile) error

	// Votes
	UpsertVote(ctx context.Context, vote model.Vote) error
	UpsertVotes(ctx context.Context, votes []model.Vote) (int64, error)
	ListVotes(ctx context.Context, filter VoteFilter) ([]model.Vote, error)
	CountVotes(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// participantID formats the sequential study code for the nth participant.
func participantID(n int) string {
	return fmt.Sprintf("P%05d", n)
}

// voteColumns is the canonical column order shared by both drivers and the
// bulk upsert path.
var voteColumns = []string{
	"id", "participant_id", "component", "trial_id",
	"left_method_id", "right_method_id",
	"preferred", "resolved_preferred", "feedback",
	"client_recorded_at", "submitted_at",
}
