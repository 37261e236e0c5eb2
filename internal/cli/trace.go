package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/koki-mus/csvscenario/internal/runlog"
	"github.com/koki-mus/csvscenario/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	RunID    string   // "" lists runs, "latest" picks the newest
	Levels   []string // optional - filter entries to these levels
	Limit    int
	Export   string // optional - write the run log CSV here
}

// TraceResult holds the output for a single run.
type TraceResult struct {
	Run         store.Run     `json:"run"`
	Entries     []store.Entry `json:"entries"`
	Screenshots []string      `json:"screenshots"`
	Stats       TraceStats    `json:"stats"`
}

// TraceStats counts the shown entries per level.
type TraceStats struct {
	TotalEntries int            `json:"total_entries"`
	ByLevel      map[string]int `json:"by_level"`
}

// RunList is the JSON payload when no run is selected.
type RunList struct {
	Runs []store.Run `json:"runs"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Browse archived runs",
		Long: `Browse runs archived by "run --db".

Without --run, lists the archived runs newest first. With --run, shows
that run's summary, log entries and screenshots; --run latest selects the
most recent run.

--export rewrites the selected run's log as a Shift_JIS CSV identical in
format to the file written during the run.

Examples:
  csvscenario trace --db runs.db
  csvscenario trace --db runs.db --run latest
  csvscenario trace --db runs.db --run latest --level ERROR --level CRITICAL
  csvscenario trace --db runs.db --run 0190f6c2-... --export copy.csv
  csvscenario trace --db runs.db --run latest --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite run archive (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", `run ID to show, or "latest"`)
	cmd.Flags().StringSliceVar(&opts.Levels, "level", nil, "only show entries at this level (repeatable)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum runs to list (0 for all)")
	cmd.Flags().StringVar(&opts.Export, "export", "", "export the run log to this CSV file")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// Browsing never creates an archive.
	if !fileExists(opts.Database) {
		return NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", opts.Database))
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if opts.RunID == "" {
		if opts.Export != "" {
			return NewExitError(ExitCommandError, "--export requires --run")
		}
		return listRuns(ctx, opts, st, cmd)
	}

	run, err := selectRun(ctx, st, opts.RunID)
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			return WrapExitError(ExitFailure, "run not found", err)
		}
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	if opts.Export != "" {
		if err := exportRun(ctx, st, run.ID, opts.Export); err != nil {
			return WrapExitError(ExitCommandError, "failed to export run log", err)
		}
	}

	levels := normalizeLevels(opts.Levels)
	entries, err := st.ReadEntries(ctx, run.ID, levels...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read entries", err)
	}
	shots, err := st.ReadScreenshots(ctx, run.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read screenshots", err)
	}

	result := TraceResult{
		Run:         run,
		Entries:     entries,
		Screenshots: shots,
		Stats:       computeStats(entries),
	}

	if opts.Format == "json" {
		f := &OutputFormatter{Format: "json", Writer: cmd.OutOrStdout()}
		return f.Success(result)
	}
	outputTraceText(cmd.OutOrStdout(), result, opts.Export, opts.Verbose)
	return nil
}

func selectRun(ctx context.Context, st *store.Store, id string) (store.Run, error) {
	if id == "latest" {
		return st.LatestRun(ctx)
	}
	return st.ReadRun(ctx, id)
}

func listRuns(ctx context.Context, opts *TraceOptions, st *store.Store, cmd *cobra.Command) error {
	runs, err := st.ListRuns(ctx, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	if opts.Format == "json" {
		f := &OutputFormatter{Format: "json", Writer: cmd.OutOrStdout()}
		return f.Success(RunList{Runs: runs})
	}

	w := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs archived")
		return nil
	}
	for _, r := range runs {
		fmt.Fprintf(w, "%s  %s  %-8s %3d instr %3d err %3d warn  %s\n",
			truncateID(r.ID),
			r.StartedAt.Format(runlog.TimestampLayout),
			r.Status,
			r.Instructions,
			r.Errors,
			r.Warnings,
			r.Script)
	}
	return nil
}

func exportRun(ctx context.Context, st *store.Store, runID, path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()
	return st.ExportLog(ctx, runID, f)
}

// normalizeLevels upper-cases level filters so --level error matches ERROR.
func normalizeLevels(levels []string) []string {
	out := make([]string, 0, len(levels))
	for _, l := range levels {
		if l = strings.ToUpper(strings.TrimSpace(l)); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func computeStats(entries []store.Entry) TraceStats {
	stats := TraceStats{TotalEntries: len(entries), ByLevel: map[string]int{}}
	for _, e := range entries {
		stats.ByLevel[e.Level]++
	}
	return stats
}

// outputTraceText outputs the trace result as text.
func outputTraceText(w io.Writer, result TraceResult, exported string, verbose bool) {
	run := result.Run

	fmt.Fprintf(w, "Trace for Run: %s\n", run.ID)
	fmt.Fprintf(w, "Script: %s\n", run.Script)
	fmt.Fprintf(w, "Status: %s\n", run.Status)
	fmt.Fprintf(w, "Started: %s\n", run.StartedAt.Format(runlog.TimestampLayout))
	if run.FinishedAt != nil {
		fmt.Fprintf(w, "Finished: %s\n", run.FinishedAt.Format(runlog.TimestampLayout))
	}
	if verbose {
		fmt.Fprintf(w, "Log: %s\n", run.LogPath)
		fmt.Fprintf(w, "Screenshot dir: %s\n", run.ScreenshotDir)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Log ===")
	if len(result.Entries) == 0 {
		fmt.Fprintln(w, "  (no entries)")
	}
	for _, e := range result.Entries {
		fmt.Fprintf(w, "  [%d] %s %-8s %s\n", e.Seq, e.Time.Format(runlog.TimestampLayout), e.Level, e.Message)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Screenshots ===")
	if len(result.Screenshots) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, p := range result.Screenshots {
		fmt.Fprintf(w, "  %s\n", p)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Instructions: %d\n", run.Instructions)
	fmt.Fprintf(w, "  Errors:       %d\n", run.Errors)
	fmt.Fprintf(w, "  Warnings:     %d\n", run.Warnings)
	fmt.Fprintf(w, "  Entries:      %d\n", result.Stats.TotalEntries)

	if exported != "" {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "✓ Exported log to %s\n", exported)
	}
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
