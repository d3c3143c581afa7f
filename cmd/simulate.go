package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/caretext/arena-cli/internal/detrand"
	"github.com/caretext/arena-cli/internal/manifest"
	"github.com/caretext/arena-cli/internal/model"
	"github.com/caretext/arena-cli/internal/store"
	"github.com/caretext/arena-cli/internal/tournament"
)

var (
	simulateParticipants int
	simulateSeed         string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run synthetic participants through the full survey",
	Long:  "Pilots a manifest end to end: enrolls synthetic participants, votes every component tournament to completion with deterministic draws, and prints the resulting trial table.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("simulate"); err != nil {
			return err
		}

		n := simulateParticipants
		if n == 0 {
			n = cfg.Simulate.Participants
		}
		if n < 1 {
			return eris.New("simulate: participants must be >= 1")
		}
		seed := simulateSeed
		if seed == "" {
			seed = cfg.Simulate.Seed
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		m, content, err := initManifest()
		if err != nil {
			return err
		}

		ties := tournament.NewTieBreaker(cfg.Tournament.FavoredMethods)
		sched := tournament.NewScheduler(ties)

		// Enroll serially so the study codes come out sequential.
		participants := make([]string, 0, n)
		for i := 0; i < n; i++ {
			p, err := st.CreateParticipant(ctx)
			if err != nil {
				return eris.Wrap(err, "simulate: enroll participant")
			}
			participants = append(participants, p.ID)
		}
		zap.L().Info("enrolled synthetic participants",
			zap.Int("count", n), zap.String("seed", seed))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(4)
		for _, pid := range participants {
			g.Go(func() error {
				votes := simulateVotes(sched, ties, m.Components, content, pid, seed)
				if _, err := st.UpsertVotes(gctx, votes); err != nil {
					return eris.Wrapf(err, "simulate: persist votes for %s", pid)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		rows, err := collectSimulationSummary(ctx, st, sched, m.Components, content, participants)
		if err != nil {
			return err
		}
		formatSimulationSummary(os.Stdout, rows)
		return checkCompletion(rows)
	},
}

func init() {
	simulateCmd.Flags().IntVar(&simulateParticipants, "participants", 0, "number of synthetic participants (default from config)")
	simulateCmd.Flags().StringVar(&simulateSeed, "seed", "", "seed for deterministic vote draws (default from config)")
	rootCmd.AddCommand(simulateCmd)
}

// simulateVotes plays every component tournament for one synthetic
// participant, drawing preferences deterministically from seed.
func simulateVotes(sched *tournament.Scheduler, ties *tournament.TieBreaker, components []string, content *manifest.ContentStore, participantID, seed string) []model.Vote {
	now := time.Now().UTC()
	var votes []model.Vote
	for _, component := range components {
		eligible := content.Eligible(component)
		var history []model.Vote
		for trial := 1; trial <= len(eligible); trial++ {
			pair := sched.NextPair(participantID, component, eligible, history)
			if pair == nil {
				break
			}
			vote := model.Vote{
				ID:            model.VoteID(participantID, component, trial),
				ParticipantID: participantID,
				Component:     component,
				TrialID:       trial,
				LeftMethodID:  pair.Left,
				RightMethodID: pair.Right,
				Preferred:     drawPreference(seed, participantID, component, trial),
				SubmittedAt:   now,
			}
			if vote.Preferred == model.PreferenceTie {
				vote.ResolvedPreferred = ties.Resolve(participantID, component, trial, pair.Left, pair.Right)
			}
			history = append(history, vote)
			votes = append(votes, vote)
		}
	}
	return votes
}

// drawPreference picks left/right/tie, with ties roughly one draw in ten.
func drawPreference(seed, participantID, component string, trial int) model.Preference {
	src := detrand.FromString(fmt.Sprintf("%s::%s::%s::%d", seed, participantID, component, trial))
	r := src.Float64()
	switch {
	case r < 0.45:
		return model.PreferenceLeft
	case r < 0.9:
		return model.PreferenceRight
	default:
		return model.PreferenceTie
	}
}

// simulationRow is one participant x component line of the summary table.
type simulationRow struct {
	ParticipantID string
	Component     string
	Trials        int
	Expected      int
	Champion      string
}

func collectSimulationSummary(ctx context.Context, st store.Store, sched *tournament.Scheduler, components []string, content *manifest.ContentStore, participants []string) ([]simulationRow, error) {
	var rows []simulationRow
	for _, pid := range participants {
		votes, err := st.ListVotes(ctx, store.VoteFilter{ParticipantID: pid})
		if err != nil {
			return nil, eris.Wrapf(err, "simulate: list votes for %s", pid)
		}
		for _, component := range components {
			count := 0
			for _, v := range votes {
				if v.Component == component {
					count++
				}
			}
			expected := len(content.Eligible(component)) - 1
			if expected < 0 {
				expected = 0
			}
			rows = append(rows, simulationRow{
				ParticipantID: pid,
				Component:     component,
				Trials:        count,
				Expected:      expected,
				Champion:      sched.Champion(pid, component, votes),
			})
		}
	}
	return rows, nil
}

func formatSimulationSummary(out io.Writer, rows []simulationRow) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PARTICIPANT\tCOMPONENT\tTRIALS\tEXPECTED\tCHAMPION")
	_, _ = fmt.Fprintln(w, "-----------\t---------\t------\t--------\t--------")
	for _, r := range rows {
		champion := r.Champion
		if champion == "" {
			champion = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
			r.ParticipantID, r.Component, r.Trials, r.Expected, champion)
	}
	_ = w.Flush()
}

// checkCompletion errors when any tournament closed at the wrong trial
// count, which would mean the scheduler and the persisted log disagree.
func checkCompletion(rows []simulationRow) error {
	var incomplete []string
	for _, r := range rows {
		if r.Trials != r.Expected {
			incomplete = append(incomplete,
				fmt.Sprintf("%s/%s: %d of %d", r.ParticipantID, r.Component, r.Trials, r.Expected))
		}
	}
	if len(incomplete) > 0 {
		return eris.Errorf("simulation left incomplete tournaments: %s", strings.Join(incomplete, ", "))
	}
	return nil
}
