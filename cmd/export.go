package main

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/caretext/arena-cli/internal/model"
	"github.com/caretext/arena-cli/internal/store"
)

var (
	exportFormat string
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the vote log to XLSX or CSV",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("export"); err != nil {
			return err
		}

		format := exportFormat
		if format == "" {
			format = cfg.Export.Format
		}
		output := exportOutput
		if output == "" {
			output = cfg.Export.Output
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		votes, err := st.ListVotes(ctx, store.VoteFilter{})
		if err != nil {
			return eris.Wrap(err, "export: list votes")
		}

		switch format {
		case "xlsx":
			err = writeVotesXLSX(output, votes)
		case "csv":
			f, ferr := os.Create(output)
			if ferr != nil {
				return eris.Wrapf(ferr, "export: create %s", output)
			}
			err = writeVotesCSV(f, votes)
			if cerr := f.Close(); err == nil && cerr != nil {
				err = eris.Wrapf(cerr, "export: close %s", output)
			}
		default:
			return eris.Errorf("export: unsupported format %q (use xlsx or csv)", format)
		}
		if err != nil {
			return err
		}

		zap.L().Info("export complete",
			zap.String("format", format),
			zap.String("output", output),
			zap.Int("votes", len(votes)))
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "", "output format: xlsx or csv (default from config)")
	exportCmd.Flags().StringVar(&exportOutput, "output", "", "output file path (default from config)")
	rootCmd.AddCommand(exportCmd)
}

// exportColumns lists the exported fields in order; headers are derived from
// them with humanize so the spreadsheet and the CSV stay in lockstep.
var exportColumns = []string{
	"participant_id",
	"component",
	"trial_id",
	"left_method_id",
	"right_method_id",
	"preferred",
	"resolved_preferred",
	"winner_method_id",
	"feedback",
	"client_recorded_at",
	"submitted_at",
}

// humanize turns a snake_case identifier into a title-cased label,
// e.g. "action_space" becomes "Action Space".
func humanize(name string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(name, "_", " "))
}

// voteRow flattens one vote into export cells, in exportColumns order.
func voteRow(v model.Vote) []string {
	recorded := ""
	if v.ClientRecordedAt != nil {
		recorded = v.ClientRecordedAt.UTC().Format(time.RFC3339)
	}
	return []string{
		v.ParticipantID,
		v.Component,
		strconv.Itoa(v.TrialID),
		v.LeftMethodID,
		v.RightMethodID,
		string(v.Preferred),
		string(v.ResolvedPreferred),
		v.WinnerMethodID(),
		v.Feedback,
		recorded,
		v.SubmittedAt.UTC().Format(time.RFC3339),
	}
}

// writeVotesXLSX writes one sheet per component. Votes arrive in canonical
// order (component, trial, participant), so first-seen grouping keeps both
// the sheets and the rows within them sorted.
func writeVotesXLSX(path string, votes []model.Vote) error {
	grouped := make(map[string][]model.Vote)
	var components []string
	for _, v := range votes {
		if _, seen := grouped[v.Component]; !seen {
			components = append(components, v.Component)
		}
		grouped[v.Component] = append(grouped[v.Component], v)
	}
	if len(components) == 0 {
		components = []string{"votes"}
	}

	f := xlsx.NewFile()
	for _, component := range components {
		sheet, err := f.AddSheet(humanize(component))
		if err != nil {
			return eris.Wrapf(err, "export: add sheet for %s", component)
		}
		header := sheet.AddRow()
		for _, col := range exportColumns {
			header.AddCell().SetString(humanize(col))
		}
		for _, v := range grouped[component] {
			row := sheet.AddRow()
			for _, cell := range voteRow(v) {
				row.AddCell().SetString(cell)
			}
		}
	}
	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}

// writeVotesCSV writes the flat log with humanized headers.
func writeVotesCSV(out io.Writer, votes []model.Vote) error {
	w := csv.NewWriter(out)

	header := make([]string, len(exportColumns))
	for i, col := range exportColumns {
		header[i] = humanize(col)
	}
	if err := w.Write(header); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	for _, v := range votes {
		if err := w.Write(voteRow(v)); err != nil {
			return eris.Wrapf(err, "export: write csv row %s", v.ID)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrap(err, "export: flush csv")
	}
	return nil
}
