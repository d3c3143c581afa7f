package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/caretext/arena-cli/internal/manifest"
	"github.com/caretext/arena-cli/internal/store"
	"github.com/caretext/arena-cli/internal/tournament"
)

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Show how far each participant is through the survey",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("progress"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		m, content, err := initManifest()
		if err != nil {
			return err
		}

		ties := tournament.NewTieBreaker(cfg.Tournament.FavoredMethods)
		sched := tournament.NewScheduler(ties)

		rows, err := collectProgress(ctx, st, sched, m.Components, content)
		if err != nil {
			return err
		}
		formatProgress(os.Stdout, rows)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(progressCmd)
}

// progressRow is one participant x component line of the progress table.
type progressRow struct {
	ParticipantID string
	Component     string
	Trials        int
	Expected      int
	Champion      string
	Complete      bool
}

func collectProgress(ctx context.Context, st store.Store, sched *tournament.Scheduler, components []string, content *manifest.ContentStore) ([]progressRow, error) {
	participants, err := st.ListParticipants(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "progress: list participants")
	}

	var rows []progressRow
	for _, p := range participants {
		votes, err := st.ListVotes(ctx, store.VoteFilter{ParticipantID: p.ID})
		if err != nil {
			return nil, eris.Wrapf(err, "progress: list votes for %s", p.ID)
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
			rows = append(rows, progressRow{
				ParticipantID: p.ID,
				Component:     component,
				Trials:        count,
				Expected:      expected,
				Champion:      sched.Champion(p.ID, component, votes),
				Complete:      count >= expected,
			})
		}
	}
	return rows, nil
}

func formatProgress(out io.Writer, rows []progressRow) {
	if len(rows) == 0 {
		_, _ = fmt.Fprintln(out, "No participants enrolled yet.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PARTICIPANT\tCOMPONENT\tTRIALS\tEXPECTED\tCHAMPION\tCOMPLETE")
	_, _ = fmt.Fprintln(w, "-----------\t---------\t------\t--------\t--------\t--------")
	complete := 0
	for _, r := range rows {
		champion := r.Champion
		if champion == "" {
			champion = "-"
		}
		done := "no"
		if r.Complete {
			done = "yes"
			complete++
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
			r.ParticipantID, r.Component, r.Trials, r.Expected, champion, done)
	}
	_ = w.Flush()
	_, _ = fmt.Fprintf(out, "\n%d of %d tournaments complete\n", complete, len(rows))
}
