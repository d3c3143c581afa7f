package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caretext/arena-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testVoteRecord(participant, component string, trial int, pref model.Preference) model.Vote {
	return model.Vote{
		ID:            model.VoteID(participant, component, trial),
		ParticipantID: participant,
		Component:     component,
		TrialID:       trial,
		LeftMethodID:  "H",
		RightMethodID: "G",
		Preferred:     pref,
		SubmittedAt:   time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC),
	}
}

// --- Participants ---

func TestSQLite_CreateParticipant_SequentialIDs(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	first, err := st.CreateParticipant(ctx)
	require.NoError(t, err)
	assert.Equal(t, "P00001", first.ID)

	second, err := st.CreateParticipant(ctx)
	require.NoError(t, err)
	assert.Equal(t, "P00002", second.ID)

	third, err := st.CreateParticipant(ctx)
	require.NoError(t, err)
	assert.Equal(t, "P00003", third.ID)
	assert.WithinDuration(t, time.Now().UTC(), third.CreatedAt, time.Minute)
}

func TestSQLite_GetParticipant_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	p, err := st.GetParticipant(context.Background(), "P99999")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestSQLite_GetParticipant_NoProfileYet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	created, err := st.CreateParticipant(ctx)
	require.NoError(t, err)

	got, err := st.GetParticipant(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, created.ID, got.ID)
	assert.Nil(t, got.Profile)
}

func TestSQLite_UpsertProfile_RoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	created, err := st.CreateParticipant(ctx)
	require.NoError(t, err)

	profile := model.Profile{
		Role:            "psychiatrist",
		YearsExperience: 12,
		Specialty:       "addiction medicine",
		Notes:           "weekly methadone clinic",
	}
	require.NoError(t, st.UpsertProfile(ctx, created.ID, profile))

	got, err := st.GetParticipant(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Profile)
	assert.Equal(t, profile, *got.Profile)
	assert.True(t, got.UpdatedAt.After(got.CreatedAt) || got.UpdatedAt.Equal(got.CreatedAt))
}

func TestSQLite_UpsertProfile_Overwrite(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	created, err := st.CreateParticipant(ctx)
	require.NoError(t, err)

	require.NoError(t, st.UpsertProfile(ctx, created.ID, model.Profile{Role: "nurse"}))
	require.NoError(t, st.UpsertProfile(ctx, created.ID, model.Profile{Role: "psychologist", YearsExperience: 3}))

	got, err := st.GetParticipant(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Profile)
	assert.Equal(t, "psychologist", got.Profile.Role)
	assert.Equal(t, 3, got.Profile.YearsExperience)
}

func TestSQLite_UpsertProfile_MissingParticipant(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.UpsertProfile(context.Background(), "P99999", model.Profile{Role: "nurse"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "participant not found")
}

func TestSQLite_ListParticipants_OrderedByID(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := st.CreateParticipant(ctx)
		require.NoError(t, err)
	}

	participants, err := st.ListParticipants(ctx)
	require.NoError(t, err)
	require.Len(t, participants, 3)
	assert.Equal(t, "P00001", participants[0].ID)
	assert.Equal(t, "P00002", participants[1].ID)
	assert.Equal(t, "P00003", participants[2].ID)
}

// --- Votes ---

func TestSQLite_UpsertVote_RoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	p, err := st.CreateParticipant(ctx)
	require.NoError(t, err)

	recorded := time.Date(2026, 3, 14, 10, 29, 45, 0, time.UTC)
	vote := testVoteRecord(p.ID, "action_space", 1, model.PreferenceTie)
	vote.ResolvedPreferred = model.SideLeft
	vote.Feedback = "left covers relapse triggers better"
	vote.ClientRecordedAt = &recorded

	require.NoError(t, st.UpsertVote(ctx, vote))

	votes, err := st.ListVotes(ctx, VoteFilter{ParticipantID: p.ID})
	require.NoError(t, err)
	require.Len(t, votes, 1)

	got := votes[0]
	assert.Equal(t, vote.ID, got.ID)
	assert.Equal(t, p.ID, got.ParticipantID)
	assert.Equal(t, "action_space", got.Component)
	assert.Equal(t, 1, got.TrialID)
	assert.Equal(t, "H", got.LeftMethodID)
	assert.Equal(t, "G", got.RightMethodID)
	assert.Equal(t, model.PreferenceTie, got.Preferred)
	assert.Equal(t, model.SideLeft, got.ResolvedPreferred)
	assert.Equal(t, "left covers relapse triggers better", got.Feedback)
	require.NotNil(t, got.ClientRecordedAt)
	assert.True(t, got.ClientRecordedAt.Equal(recorded))
	assert.True(t, got.SubmittedAt.Equal(vote.SubmittedAt))
}

func TestSQLite_UpsertVote_NullableFieldsStayEmpty(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	p, err := st.CreateParticipant(ctx)
	require.NoError(t, err)

	require.NoError(t, st.UpsertVote(ctx, testVoteRecord(p.ID, "cautions", 1, model.PreferenceLeft)))

	votes, err := st.ListVotes(ctx, VoteFilter{ParticipantID: p.ID})
	require.NoError(t, err)
	require.Len(t, votes, 1)
	assert.Empty(t, votes[0].ResolvedPreferred)
	assert.Nil(t, votes[0].ClientRecordedAt)
	assert.Empty(t, votes[0].Feedback)
}

func TestSQLite_UpsertVote_OverwriteOnResubmit(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	p, err := st.CreateParticipant(ctx)
	require.NoError(t, err)

	vote := testVoteRecord(p.ID, "action_space", 1, model.PreferenceLeft)
	require.NoError(t, st.UpsertVote(ctx, vote))

	vote.Preferred = model.PreferenceRight
	vote.Feedback = "changed my mind after rereading"
	vote.SubmittedAt = vote.SubmittedAt.Add(time.Minute)
	require.NoError(t, st.UpsertVote(ctx, vote))

	votes, err := st.ListVotes(ctx, VoteFilter{ParticipantID: p.ID})
	require.NoError(t, err)
	require.Len(t, votes, 1)
	assert.Equal(t, model.PreferenceRight, votes[0].Preferred)
	assert.Equal(t, "changed my mind after rereading", votes[0].Feedback)
}

func TestSQLite_ListVotes_CanonicalOrder(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	p1, err := st.CreateParticipant(ctx)
	require.NoError(t, err)
	p2, err := st.CreateParticipant(ctx)
	require.NoError(t, err)

	// Insert out of order on purpose.
	require.NoError(t, st.UpsertVote(ctx, testVoteRecord(p2.ID, "cautions", 1, model.PreferenceLeft)))
	require.NoError(t, st.UpsertVote(ctx, testVoteRecord(p1.ID, "action_space", 2, model.PreferenceLeft)))
	require.NoError(t, st.UpsertVote(ctx, testVoteRecord(p2.ID, "action_space", 1, model.PreferenceRight)))
	require.NoError(t, st.UpsertVote(ctx, testVoteRecord(p1.ID, "action_space", 1, model.PreferenceLeft)))

	votes, err := st.ListVotes(ctx, VoteFilter{})
	require.NoError(t, err)
	require.Len(t, votes, 4)

	// Component asc, then trial asc, then participant asc.
	assert.Equal(t, []string{"action_space", "action_space", "action_space", "cautions"},
		[]string{votes[0].Component, votes[1].Component, votes[2].Component, votes[3].Component})
	assert.Equal(t, p1.ID, votes[0].ParticipantID)
	assert.Equal(t, 1, votes[0].TrialID)
	assert.Equal(t, p2.ID, votes[1].ParticipantID)
	assert.Equal(t, 1, votes[1].TrialID)
	assert.Equal(t, p1.ID, votes[2].ParticipantID)
	assert.Equal(t, 2, votes[2].TrialID)
}

func TestSQLite_ListVotes_Filters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	p1, err := st.CreateParticipant(ctx)
	require.NoError(t, err)
	p2, err := st.CreateParticipant(ctx)
	require.NoError(t, err)

	require.NoError(t, st.UpsertVote(ctx, testVoteRecord(p1.ID, "action_space", 1, model.PreferenceLeft)))
	require.NoError(t, st.UpsertVote(ctx, testVoteRecord(p1.ID, "cautions", 1, model.PreferenceLeft)))
	require.NoError(t, st.UpsertVote(ctx, testVoteRecord(p2.ID, "action_space", 1, model.PreferenceRight)))

	mine, err := st.ListVotes(ctx, VoteFilter{ParticipantID: p1.ID})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	component, err := st.ListVotes(ctx, VoteFilter{Component: "action_space"})
	require.NoError(t, err)
	assert.Len(t, component, 2)

	both, err := st.ListVotes(ctx, VoteFilter{ParticipantID: p1.ID, Component: "cautions"})
	require.NoError(t, err)
	require.Len(t, both, 1)
	assert.Equal(t, "cautions", both[0].Component)
}

func TestSQLite_UpsertVotes_Batch(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	p, err := st.CreateParticipant(ctx)
	require.NoError(t, err)

	batch := []model.Vote{
		testVoteRecord(p.ID, "action_space", 1, model.PreferenceLeft),
		testVoteRecord(p.ID, "action_space", 2, model.PreferenceRight),
		testVoteRecord(p.ID, "cautions", 1, model.PreferenceLeft),
	}
	n, err := st.UpsertVotes(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	count, err := st.CountVotes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestSQLite_UpsertVotes_EmptyBatch(t *testing.T) {
	st := newTestSQLiteStore(t)

	n, err := st.UpsertVotes(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLite_UpsertVotes_BatchOverwrites(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	p, err := st.CreateParticipant(ctx)
	require.NoError(t, err)

	vote := testVoteRecord(p.ID, "action_space", 1, model.PreferenceLeft)
	require.NoError(t, st.UpsertVote(ctx, vote))

	vote.Preferred = model.PreferenceTie
	vote.ResolvedPreferred = model.SideRight
	_, err = st.UpsertVotes(ctx, []model.Vote{vote})
	require.NoError(t, err)

	votes, err := st.ListVotes(ctx, VoteFilter{ParticipantID: p.ID})
	require.NoError(t, err)
	require.Len(t, votes, 1)
	assert.Equal(t, model.PreferenceTie, votes[0].Preferred)
	assert.Equal(t, model.SideRight, votes[0].ResolvedPreferred)
}

func TestSQLite_CountVotes_Empty(t *testing.T) {
	st := newTestSQLiteStore(t)

	count, err := st.CountVotes(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

// --- Migrate ---

func TestSQLite_Migrate_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.Migrate(ctx))
	require.NoError(t, st.Migrate(ctx))

	p, err := st.CreateParticipant(ctx)
	require.NoError(t, err)
	require.NoError(t, st.UpsertVote(ctx, testVoteRecord(p.ID, "action_space", 1, model.PreferenceLeft)))

	count, err := st.CountVotes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
