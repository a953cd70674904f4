package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/viewgen/internal/store"
)

// ShowOptions holds flags for the show command.
type ShowOptions struct {
	*RootOptions
	DB      string
	Mapping string // filter runs by mapping name
	Diff    string // compare with another run
	CQL     bool   // print view text
}

// RunOutput is the JSON form of a stored run.
type RunOutput struct {
	ID          string                   `json:"id"`
	Seq         int64                    `json:"seq"`
	Mapping     string                   `json:"mapping"`
	MappingHash string                   `json:"mapping_hash"`
	ViewCount   int                      `json:"view_count"`
	ErrorCount  int                      `json:"error_count"`
	Durations   map[string]time.Duration `json:"durations_ns,omitempty"`
	Counts      map[string]int           `json:"counts,omitempty"`
	Views       []store.ViewRecord       `json:"views,omitempty"`
	Errors      []store.ErrorRecord      `json:"errors,omitempty"`
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "show [run-id|latest]",
		Short: "Show stored generation runs",
		Long: `Show runs recorded by generate --db.

Without arguments lists every run in order. With a run ID (or "latest")
shows the run's views and errors; --diff compares its views with another
run.

Examples:
  viewgen show --db runs.db
  viewgen show --db runs.db latest --cql
  viewgen show --db runs.db <run-id> --diff <other-run-id>`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			run := ""
			if len(args) == 1 {
				run = args[0]
			}
			return runShow(opts, run, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DB, "db", "", "run database (required)")
	cmd.Flags().StringVar(&opts.Mapping, "mapping", "", "only runs of this mapping")
	cmd.Flags().StringVar(&opts.Diff, "diff", "", "compare views with another run")
	cmd.Flags().BoolVar(&opts.CQL, "cql", false, "print the CQL of every view")
	_ = cmd.MarkFlagRequired("db")
	return cmd
}

func runShow(opts *ShowOptions, runID string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	// Opening creates missing databases; show must not.
	if _, err := os.Stat(opts.DB); os.IsNotExist(err) {
		return outputValidateError(formatter, ErrCodeNotFound, fmt.Sprintf("database not found: %s", opts.DB), nil)
	}
	st, err := store.Open(opts.DB)
	if err != nil {
		return outputValidateError(formatter, ErrCodeStoreFailed, err.Error(), nil)
	}
	defer st.Close()
	ctx := context.Background()

	if runID == "" {
		if opts.Diff != "" {
			return outputValidateError(formatter, ErrCodeGeneric, "--diff needs a run", nil)
		}
		return showRuns(ctx, formatter, st, opts.Mapping)
	}

	var run store.Run
	if runID == "latest" {
		run, err = st.LatestRun(ctx, opts.Mapping)
	} else {
		run, err = st.ReadRun(ctx, runID)
	}
	if errors.Is(err, store.ErrNotFound) {
		return outputValidateError(formatter, ErrCodeNotFound, err.Error(), nil)
	}
	if err != nil {
		return outputValidateError(formatter, ErrCodeStoreFailed, err.Error(), nil)
	}

	if opts.Diff != "" {
		return showDiff(ctx, formatter, st, run.ID, opts.Diff)
	}
	return showRun(ctx, formatter, st, run, opts.CQL)
}

func showRuns(ctx context.Context, formatter *OutputFormatter, st *store.Store, mapping string) error {
	runs, err := st.ListRuns(ctx, mapping)
	if err != nil {
		return outputValidateError(formatter, ErrCodeStoreFailed, err.Error(), nil)
	}
	if formatter.Format == "json" {
		out := make([]RunOutput, 0, len(runs))
		for _, r := range runs {
			out = append(out, runOutput(r))
		}
		return formatter.Success(out)
	}
	if len(runs) == 0 {
		fmt.Fprintln(formatter.Writer, "No runs recorded.")
		return nil
	}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			strconv.FormatInt(r.Seq, 10), r.ID, r.Mapping, shortHash(r.MappingHash),
			strconv.Itoa(r.ViewCount), strconv.Itoa(r.ErrorCount),
		})
	}
	return formatter.Table([]string{"Seq", "Run", "Mapping", "Hash", "Views", "Errors"}, rows)
}

func runOutput(r store.Run) RunOutput {
	return RunOutput{
		ID: r.ID, Seq: r.Seq, Mapping: r.Mapping, MappingHash: r.MappingHash,
		ViewCount: r.ViewCount, ErrorCount: r.ErrorCount,
		Durations: r.Durations, Counts: r.Counts,
	}
}

func showRun(ctx context.Context, formatter *OutputFormatter, st *store.Store, run store.Run, withCQL bool) error {
	views, err := st.ReadViews(ctx, run.ID)
	if err != nil {
		return outputValidateError(formatter, ErrCodeStoreFailed, err.Error(), nil)
	}
	errs, err := st.ReadErrors(ctx, run.ID)
	if err != nil {
		return outputValidateError(formatter, ErrCodeStoreFailed, err.Error(), nil)
	}

	if formatter.Format == "json" {
		out := runOutput(run)
		out.Views, out.Errors = views, errs
		if !withCQL {
			for i := range out.Views {
				out.Views[i].CQL = ""
			}
		}
		return formatter.Success(out)
	}

	formatter.Heading(fmt.Sprintf("Run %d (%s) of %s", run.Seq, run.ID, run.Mapping))
	fmt.Fprintf(formatter.Writer, "mapping hash %s, generator %s, format %s\n\n",
		run.MappingHash, run.EngineVersion, run.IRVersion)

	rows := make([][]string, 0, len(views))
	for _, v := range views {
		rows = append(rows, []string{v.Kind, v.Extent, v.OfType, v.Tree, shortHash(v.Hash)})
	}
	if err := formatter.Table([]string{"Kind", "Extent", "OfType", "Tree", "Hash"}, rows); err != nil {
		return err
	}

	if formatter.Verbose {
		phases := make([]string, 0, len(run.Durations))
		for p := range run.Durations {
			phases = append(phases, p)
		}
		slices.Sort(phases)
		metricRows := make([][]string, 0, len(phases))
		for _, p := range phases {
			metricRows = append(metricRows, []string{p, run.Durations[p].String()})
		}
		fmt.Fprintln(formatter.Writer)
		if err := formatter.Table([]string{"Phase", "Duration"}, metricRows); err != nil {
			return err
		}
	}

	if withCQL {
		for _, v := range views {
			if v.CQL != "" {
				fmt.Fprintf(formatter.Writer, "\n-- %s\n%s\n", v.Key(), v.CQL)
			}
		}
	}

	for _, e := range errs {
		line := fmt.Sprintf("%s %d: %s", e.Severity, int(e.Code), e.Message)
		if e.Severity == "error" {
			formatter.Fail("%s", line)
		} else {
			formatter.Warn("%s", line)
		}
	}
	return nil
}

func showDiff(ctx context.Context, formatter *OutputFormatter, st *store.Store, before, after string) error {
	d, err := st.CompareRuns(ctx, before, after)
	if errors.Is(err, store.ErrNotFound) {
		return outputValidateError(formatter, ErrCodeNotFound, err.Error(), nil)
	}
	if err != nil {
		return outputValidateError(formatter, ErrCodeStoreFailed, err.Error(), nil)
	}

	if formatter.Format == "json" {
		return formatter.Success(d)
	}
	if d.Empty() {
		formatter.Pass("No view changes (%d unchanged)", d.Unchanged)
		return nil
	}
	var rows [][]string
	for _, c := range d.Added {
		rows = append(rows, []string{"added", c.Key, "", c.After.Tree})
	}
	for _, c := range d.Removed {
		rows = append(rows, []string{"removed", c.Key, c.Before.Tree, ""})
	}
	for _, c := range d.Changed {
		rows = append(rows, []string{"changed", c.Key, c.Before.Tree, c.After.Tree})
	}
	if err := formatter.Table([]string{"Change", "View", "Before", "After"}, rows); err != nil {
		return err
	}
	fmt.Fprintf(formatter.Writer, "\n%d unchanged\n", d.Unchanged)
	return nil
}
