//go:build !integration

package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caretext/arena-cli/internal/model"
	"github.com/caretext/arena-cli/internal/store"
	"github.com/caretext/arena-cli/internal/tournament"
)

func TestCollectProgress(t *testing.T) {
	m, content := loadCmdTestManifest(t)
	ties := tournament.NewTieBreaker([]string{"H", "I", "G"})
	sched := tournament.NewScheduler(ties)

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "progress.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	p1, err := st.CreateParticipant(context.Background())
	require.NoError(t, err)
	p2, err := st.CreateParticipant(context.Background())
	require.NoError(t, err)

	// p1 finishes action_space with H defending both trials; p2 never votes.
	submitted := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	for trial, right := range map[int]string{1: "G", 2: "I"} {
		vote := model.Vote{
			ID:            model.VoteID(p1.ID, "action_space", trial),
			ParticipantID: p1.ID,
			Component:     "action_space",
			TrialID:       trial,
			LeftMethodID:  "H",
			RightMethodID: right,
			Preferred:     model.PreferenceLeft,
			SubmittedAt:   submitted,
		}
		require.NoError(t, st.UpsertVote(context.Background(), vote))
	}

	rows, err := collectProgress(context.Background(), st, sched, m.Components, content)
	require.NoError(t, err)
	require.Len(t, rows, 4, "two participants times two components")

	byKey := make(map[string]progressRow, len(rows))
	for _, r := range rows {
		byKey[r.ParticipantID+"/"+r.Component] = r
	}

	done := byKey[p1.ID+"/action_space"]
	assert.Equal(t, 2, done.Trials)
	assert.Equal(t, 2, done.Expected)
	assert.True(t, done.Complete)
	assert.Equal(t, "H", done.Champion)

	pending := byKey[p1.ID+"/conversation_state"]
	assert.Equal(t, 0, pending.Trials)
	assert.Equal(t, 1, pending.Expected)
	assert.False(t, pending.Complete)
	assert.Empty(t, pending.Champion)

	idle := byKey[p2.ID+"/action_space"]
	assert.Equal(t, 0, idle.Trials)
	assert.False(t, idle.Complete)
}

func TestFormatProgress(t *testing.T) {
	rows := []progressRow{
		{ParticipantID: "P00001", Component: "action_space", Trials: 2, Expected: 2, Champion: "H", Complete: true},
		{ParticipantID: "P00001", Component: "conversation_state", Trials: 0, Expected: 1, Complete: false},
	}

	var buf bytes.Buffer
	formatProgress(&buf, rows)

	output := buf.String()
	assert.Contains(t, output, "PARTICIPANT")
	assert.Contains(t, output, "COMPLETE")
	assert.Contains(t, output, "P00001")
	assert.Contains(t, output, "yes")
	assert.Contains(t, output, "no")
	assert.Contains(t, output, "1 of 2 tournaments complete")
}

func TestFormatProgress_NoParticipants(t *testing.T) {
	var buf bytes.Buffer
	formatProgress(&buf, nil)
	assert.Contains(t, buf.String(), "No participants enrolled yet.")
}
