package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/koki-mus/csvscenario/internal/browser"
	"github.com/koki-mus/csvscenario/internal/capture"
	"github.com/koki-mus/csvscenario/internal/chrome"
	"github.com/koki-mus/csvscenario/internal/config"
	"github.com/koki-mus/csvscenario/internal/interpreter"
	"github.com/koki-mus/csvscenario/internal/runlog"
	"github.com/koki-mus/csvscenario/internal/store"
)

// stemTimeLayout is appended to the script name to build default output
// names: script_20240401_090000.csv and script_20240401_090000_screenshots.
const stemTimeLayout = "20060102_150405"

// Launcher starts a browser session.
type Launcher func(ctx context.Context, cfg chrome.Config) (browser.Browser, error)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	ScreenshotDir string
	LogPath       string
	Database      string
	Headless      bool
	Timeout       time.Duration
	Window        string
	ChromePath    string

	// Launch allows overriding browser startup (for testing).
	// If nil, Chrome is launched with chromedp.
	Launch Launcher

	// IDGenerator allows overriding run IDs (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDGenerator store.RunIDGenerator

	// Now allows overriding the clock used for output names and the
	// archive (for testing). If nil, defaults to time.Now.
	Now func() time.Time
}

// RunResult is the JSON payload of the run command.
type RunResult struct {
	RunID string `json:"run_id,omitempty"`
	Log   string `json:"log"`
	*interpreter.Report
	Status string `json:"status"`
}

// runFlags maps config keys to run command flags.
var runFlags = map[string]string{
	config.KeyHeadless:      "headless",
	config.KeyChromePath:    "chrome",
	config.KeyWindow:        "window",
	config.KeyTimeout:       "timeout",
	config.KeyScreenshotDir: "screenshots",
	config.KeyLogPath:       "log",
	config.KeyDB:            "db",
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <script.csv>",
		Short: "Run a script in Chrome",
		Long: `Run an expanded script against a Chrome session.

Instructions run in order. A failing instruction is logged as ERROR and
the run continues with the next one. The run log is written as a
Shift_JIS CSV and mirrored to stdout; screenshots are saved under the
screenshot directory.

Without --log and --screenshots, outputs are named after the script and
the start time: <script>_<YYYYmmdd_HHMMSS>.csv and
<script>_<YYYYmmdd_HHMMSS>_screenshots/.

With --db, the run and every log entry are also archived in SQLite and can
be browsed with the trace command. Runs left unfinished by a crash are
marked aborted the next time the archive is opened.

Exit codes:
  0 - Every instruction succeeded
  1 - An instruction failed, the script could not be loaded, or the run was interrupted
  2 - Command error (missing script, bad flags, browser failed to start)

Examples:
  csvscenario run script.csv
  csvscenario run script.csv --headless --window 1280x900
  csvscenario run script.csv --db runs.db --log run.csv --screenshots shots`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScript(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ScreenshotDir, "screenshots", "", "screenshot directory")
	cmd.Flags().StringVar(&opts.LogPath, "log", "", "run log CSV path")
	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite run archive (optional)")
	cmd.Flags().BoolVar(&opts.Headless, "headless", false, "run Chrome without a window")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", interpreter.DefaultElementTimeout, "element visibility timeout")
	cmd.Flags().StringVar(&opts.Window, "window", "", "window size WIDTHxHEIGHT (default maximized)")
	cmd.Flags().StringVar(&opts.ChromePath, "chrome", "", "Chrome executable")

	return cmd
}

func runScript(opts *RunOptions, scriptPath string, cmd *cobra.Command) error {
	diag := opts.diagnostics(cmd.ErrOrStderr())

	cfg, err := opts.loadConfig(cmd, runFlags)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	window, err := cfg.Browser.WindowSize()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	if !fileExists(scriptPath) {
		return NewExitError(ExitCommandError, fmt.Sprintf("script not found: %s", scriptPath))
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	started := now()
	logPath, screenshotDir := outputPaths(scriptPath, started, cfg.Run)

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The live log goes to stderr when stdout carries JSON.
	mirror := cmd.OutOrStdout()
	if opts.Format == "json" {
		mirror = cmd.ErrOrStderr()
	}
	logOpts := []runlog.Option{runlog.WithDiagnostics(diag), runlog.WithMirror(mirror)}

	var (
		st    *store.Store
		runID string
	)
	if cfg.Run.DB != "" {
		st, runID, err = openArchive(ctx, opts, cfg.Run.DB, store.Run{
			Script:        scriptPath,
			LogPath:       logPath,
			ScreenshotDir: screenshotDir,
			StartedAt:     started,
		}, diag)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				diag.Error("error closing database", "error", closeErr)
			}
		}()
		rec, err := st.NewRecorder(ctx, runID)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to start archive recorder", err)
		}
		logOpts = append(logOpts, runlog.WithSink(rec))
	}

	log, err := runlog.Open(logPath, logOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open run log", err)
	}
	defer func() {
		if closeErr := log.Close(); closeErr != nil {
			diag.Error("error closing run log", "error", closeErr)
		}
	}()

	launch := opts.Launch
	if launch == nil {
		launch = launchChrome(cfg.Capture.NativeFullPage)
	}
	diag.Debug("launching browser", "headless", cfg.Browser.Headless, "window", cfg.Browser.Window)
	b, err := launch(ctx, chrome.Config{
		Headless:    cfg.Browser.Headless,
		ExecPath:    cfg.Browser.ChromePath,
		Window:      window,
		Diagnostics: diag,
	})
	if err != nil {
		log.Criticalf("critical error before test run: %v", err)
		finishArchive(ctx, st, runID, now(), store.StatusAborted, &interpreter.Report{}, diag)
		return WrapExitError(ExitCommandError, "failed to start browser", err)
	}

	eng := capture.New(b, log)
	cfg.Capture.Apply(eng)
	session := interpreter.New(b, log,
		interpreter.WithElementTimeout(cfg.Browser.Timeout),
		interpreter.WithScreenshotDir(screenshotDir),
		interpreter.WithCapture(eng),
		interpreter.WithDiagnostics(diag),
	)

	closeSession := func() {
		if closeErr := session.Close(); closeErr != nil {
			diag.Error("error closing browser", "error", closeErr)
		}
	}
	defer closeSession()

	report, runErr := session.Run(ctx, scriptPath)
	// Close before archiving so the closing entries are recorded.
	closeSession()

	status := runStatus(report, runErr)
	finishArchive(ctx, st, runID, now(), status, report, diag)

	result := RunResult{RunID: runID, Log: logPath, Report: report, Status: status}
	if opts.Format == "json" {
		f := &OutputFormatter{Format: "json", Writer: cmd.OutOrStdout()}
		if err := f.Success(result); err != nil {
			return err
		}
	} else {
		outputRunText(cmd, result)
	}

	switch {
	case report.Interrupted:
		return NewExitError(ExitFailure, "run interrupted")
	case runErr != nil:
		return WrapExitError(ExitFailure, "critical error during test run", runErr)
	case report.Errors > 0:
		return NewExitError(ExitFailure, fmt.Sprintf("%d instruction(s) failed", report.Errors))
	}
	return nil
}

// outputPaths applies the default naming scheme to unset paths.
func outputPaths(scriptPath string, started time.Time, rc config.RunConfig) (logPath, screenshotDir string) {
	base := filepath.Base(scriptPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base)) + "_" + started.Format(stemTimeLayout)

	logPath = rc.LogPath
	if logPath == "" {
		logPath = stem + ".csv"
	}
	screenshotDir = rc.ScreenshotDir
	if screenshotDir == "" {
		screenshotDir = stem + "_screenshots"
	}
	return logPath, screenshotDir
}

// runStatus maps a finished run to its archive status.
func runStatus(report *interpreter.Report, runErr error) string {
	switch {
	case report.Interrupted, runErr != nil:
		return store.StatusAborted
	case report.Errors > 0:
		return store.StatusFailed
	default:
		return store.StatusPassed
	}
}

// openArchive opens the run archive, closes out runs left behind by a
// crash, and begins a new run.
func openArchive(ctx context.Context, opts *RunOptions, path string, run store.Run, diag *slog.Logger) (*store.Store, string, error) {
	diag.Debug("opening database", "path", path)
	st, err := store.Open(path)
	if err != nil {
		return nil, "", WrapExitError(ExitCommandError, "failed to open database", err)
	}

	aborted, err := st.AbortIncompleteRuns(ctx, run.StartedAt)
	if err != nil {
		st.Close()
		return nil, "", WrapExitError(ExitCommandError, "failed to recover incomplete runs", err)
	}
	if aborted > 0 {
		diag.Warn("marked incomplete runs as aborted", "count", aborted)
	}

	gen := opts.IDGenerator
	if gen == nil {
		gen = store.UUIDv7Generator{}
	}
	run.ID = gen.Generate()
	if err := st.BeginRun(ctx, run); err != nil {
		st.Close()
		return nil, "", WrapExitError(ExitCommandError, "failed to record run", err)
	}
	return st, run.ID, nil
}

// finishArchive records the outcome of the run. An archive failure is
// reported but never changes the run's result.
func finishArchive(ctx context.Context, st *store.Store, runID string, at time.Time, status string, report *interpreter.Report, diag *slog.Logger) {
	if st == nil {
		return
	}
	err := st.FinishRun(context.WithoutCancel(ctx), runID, store.Summary{
		FinishedAt:   at,
		Status:       status,
		Instructions: report.Instructions,
		Errors:       report.Errors,
		Warnings:     report.Warnings,
		Screenshots:  report.Screenshots,
	})
	if err != nil {
		diag.Error("failed to archive run", "run_id", runID, "error", err)
	}
}

func launchChrome(nativeFullPage bool) Launcher {
	return func(ctx context.Context, cfg chrome.Config) (browser.Browser, error) {
		b, err := chrome.Launch(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if nativeFullPage {
			return b.FullPage(), nil
		}
		return b, nil
	}
}

func outputRunText(cmd *cobra.Command, result RunResult) {
	w := cmd.OutOrStdout()

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Run Summary: %d instruction(s), %d error(s), %d warning(s), %d screenshot(s)\n",
		result.Instructions, result.Errors, result.Warnings, len(result.Screenshots))
	fmt.Fprintf(w, "Log: %s\n", result.Log)
	if result.RunID != "" {
		fmt.Fprintf(w, "Run ID: %s\n", result.RunID)
	}

	switch result.Status {
	case store.StatusPassed:
		fmt.Fprintln(w, "✓ All instructions succeeded")
	case store.StatusFailed:
		fmt.Fprintln(w, "✗ Some instructions failed")
	default:
		fmt.Fprintln(w, "✗ Run aborted")
	}
}
