package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koki-mus/csvscenario/internal/browser"
	"github.com/koki-mus/csvscenario/internal/chrome"
	"github.com/koki-mus/csvscenario/internal/config"
	"github.com/koki-mus/csvscenario/internal/sjiscsv"
	"github.com/koki-mus/csvscenario/internal/store"
	"github.com/koki-mus/csvscenario/internal/testutil"
)

var runStart = time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)

type runFixture struct {
	dir      string
	script   string
	logPath  string
	shotDir  string
	fake     *testutil.FakeBrowser
	launched []chrome.Config
	out      *bytes.Buffer
}

func newRunFixture(t *testing.T, rows ...[]string) *runFixture {
	t.Helper()
	dir := t.TempDir()
	f := &runFixture{
		dir:     dir,
		script:  filepath.Join(dir, "login.csv"),
		logPath: filepath.Join(dir, "run.csv"),
		shotDir: filepath.Join(dir, "shots"),
		fake:    testutil.NewFakeBrowser(),
		out:     &bytes.Buffer{},
	}
	f.fake.AddElement(browser.ByID, "user", nil)
	require.NoError(t, sjiscsv.WriteFile(f.script, append([][]string{scriptHeader}, rows...)))
	return f
}

func (f *runFixture) command(format string, launch Launcher) *RunOptions {
	return &RunOptions{
		RootOptions: &RootOptions{Format: format},
		Launch:      launch,
		IDGenerator: testutil.NewFixedIDGenerator("run-1"),
		Now:         func() time.Time { return runStart },
	}
}

func (f *runFixture) fakeLauncher() Launcher {
	return func(ctx context.Context, cfg chrome.Config) (browser.Browser, error) {
		f.launched = append(f.launched, cfg)
		return f.fake, nil
	}
}

func (f *runFixture) execute(opts *RunOptions, extra ...string) error {
	cmd := NewRunCommand(opts)
	cmd.SetOut(f.out)
	cmd.SetErr(f.out)
	args := append([]string{"--log", f.logPath, "--screenshots", f.shotDir}, extra...)
	cmd.SetArgs(append(args, f.script))
	return cmd.Execute()
}

func TestRunPassingScript(t *testing.T) {
	f := newRunFixture(t,
		[]string{"navigate", "", "", "https://example.com"},
		[]string{"input", "id", "user", "alice"},
		[]string{"log_remark", "", "", "done"},
	)
	opts := f.command("text", f.fakeLauncher())

	err := f.execute(opts, "--headless", "--window", "800x600", "--timeout", "3s")
	require.NoError(t, err)

	require.Len(t, f.launched, 1)
	assert.True(t, f.launched[0].Headless)
	assert.Equal(t, browser.Size{Width: 800, Height: 600}, f.launched[0].Window)
	assert.True(t, f.fake.Closed())

	output := f.out.String()
	assert.Contains(t, output, "Run Summary: 3 instruction(s), 0 error(s), 0 warning(s), 0 screenshot(s)")
	assert.Contains(t, output, "Log: "+f.logPath)
	assert.Contains(t, output, "✓ All instructions succeeded")
	assert.NotContains(t, output, "Run ID:")

	records, err := sjiscsv.ReadFile(f.logPath)
	require.NoError(t, err)
	require.NotEmpty(t, records)
	assert.Equal(t, []string{"タイムスタンプ", "レベル", "メッセージ"}, records[0])
}

func TestRunFailingInstructionExitsOne(t *testing.T) {
	f := newRunFixture(t,
		[]string{"click", "id", "missing"},
		[]string{"log_remark", "", "", "still runs"},
	)
	opts := f.command("text", f.fakeLauncher())

	err := f.execute(opts)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "1 instruction(s) failed")
	assert.Contains(t, f.out.String(), "✗ Some instructions failed")
	assert.Contains(t, f.fake.Methods(), "FindVisible")
}

func TestRunArchivesToDatabase(t *testing.T) {
	f := newRunFixture(t,
		[]string{"input", "id", "user", "alice"},
		[]string{"click", "id", "missing"},
	)
	dbPath := filepath.Join(f.dir, "runs.db")
	opts := f.command("text", f.fakeLauncher())

	err := f.execute(opts, "--db", dbPath)
	require.Error(t, err)
	assert.Contains(t, f.out.String(), "Run ID: run-1")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	run, err := st.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, run.Status)
	assert.Equal(t, 2, run.Instructions)
	assert.Equal(t, 1, run.Errors)
	assert.Equal(t, f.logPath, run.LogPath)
	assert.True(t, run.StartedAt.Equal(runStart))
	require.NotNil(t, run.FinishedAt)

	errorsOnly, err := st.ReadEntries(ctx, "run-1", "ERROR")
	require.NoError(t, err)
	assert.Len(t, errorsOnly, 1)

	all, err := st.ReadEntries(ctx, "run-1")
	require.NoError(t, err)
	records, err := sjiscsv.ReadFile(f.logPath)
	require.NoError(t, err)
	assert.Len(t, all, len(records)-1, "archive holds every logged entry")
}

func TestRunJSONOutput(t *testing.T) {
	f := newRunFixture(t,
		[]string{"log_remark", "", "", "hello"},
		[]string{"frobnicate"},
	)
	opts := f.command("json", f.fakeLauncher())

	cmd := NewRunCommand(opts)
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs([]string{"--log", f.logPath, "--screenshots", f.shotDir, f.script})
	require.NoError(t, cmd.Execute())

	var response struct {
		Status string `json:"status"`
		Data   struct {
			Log          string `json:"log"`
			Instructions int    `json:"instructions"`
			Warnings     int    `json:"warnings"`
			Status       string `json:"status"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &response), "stdout carries only JSON")
	assert.Equal(t, "ok", response.Status)
	assert.Equal(t, f.logPath, response.Data.Log)
	assert.Equal(t, 2, response.Data.Instructions)
	assert.Equal(t, 1, response.Data.Warnings)
	assert.Equal(t, store.StatusPassed, response.Data.Status)

	assert.Contains(t, stderr.String(), "hello", "log mirror goes to stderr")
}

func TestRunBrowserLaunchFailure(t *testing.T) {
	f := newRunFixture(t, []string{"log_remark", "", "", "never"})
	dbPath := filepath.Join(f.dir, "runs.db")
	opts := f.command("text", func(ctx context.Context, cfg chrome.Config) (browser.Browser, error) {
		return nil, errors.New("chrome not installed")
	})

	err := f.execute(opts, "--db", dbPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to start browser")

	records, readErr := sjiscsv.ReadFile(f.logPath)
	require.NoError(t, readErr)
	require.Len(t, records, 2)
	assert.Equal(t, "CRITICAL", records[1][1])
	assert.Contains(t, records[1][2], "chrome not installed")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()
	run, err := st.ReadRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusAborted, run.Status)
}

func TestRunMissingScript(t *testing.T) {
	f := newRunFixture(t)
	opts := f.command("text", f.fakeLauncher())

	cmd := NewRunCommand(opts)
	cmd.SetOut(f.out)
	cmd.SetErr(f.out)
	cmd.SetArgs([]string{filepath.Join(f.dir, "nope.csv")})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "script not found")
	assert.Empty(t, f.launched)
}

func TestRunInvalidWindow(t *testing.T) {
	f := newRunFixture(t, []string{"log_remark", "", "", "x"})
	opts := f.command("text", f.fakeLauncher())

	err := f.execute(opts, "--window", "wide")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid window size")
}

func TestRunCancelledContext(t *testing.T) {
	f := newRunFixture(t,
		[]string{"log_remark", "", "", "one"},
		[]string{"log_remark", "", "", "two"},
	)
	opts := f.command("text", f.fakeLauncher())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cmd := NewRunCommand(opts)
	cmd.SetOut(f.out)
	cmd.SetErr(f.out)
	cmd.SetArgs([]string{"--log", f.logPath, "--screenshots", f.shotDir, f.script})

	err := cmd.ExecuteContext(ctx)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "interrupted")
	assert.Contains(t, f.out.String(), "✗ Run aborted")
}

// panicWriter panics on the first write containing trigger.
type panicWriter struct {
	bytes.Buffer
	trigger string
}

func (w *panicWriter) Write(p []byte) (int, error) {
	if bytes.Contains(p, []byte(w.trigger)) {
		panic("mirror write failed")
	}
	return w.Buffer.Write(p)
}

func TestRunClosesBrowserAfterPanic(t *testing.T) {
	f := newRunFixture(t, []string{"log_remark", "", "", "never"})
	opts := f.command("text", f.fakeLauncher())

	cmd := NewRunCommand(opts)
	cmd.SetOut(&panicWriter{trigger: "starting commands"})
	cmd.SetErr(f.out)
	cmd.SetArgs([]string{"--log", f.logPath, "--screenshots", f.shotDir, f.script})

	assert.PanicsWithValue(t, "mirror write failed", func() { _ = cmd.Execute() })
	require.Len(t, f.launched, 1)
	assert.True(t, f.fake.Closed())
}

func TestOutputPaths(t *testing.T) {
	t.Run("derived from script name", func(t *testing.T) {
		logPath, shots := outputPaths(filepath.Join("scripts", "login.csv"), runStart, config.RunConfig{})
		assert.Equal(t, "login_20240401_090000.csv", logPath)
		assert.Equal(t, "login_20240401_090000_screenshots", shots)
	})

	t.Run("explicit paths win", func(t *testing.T) {
		logPath, shots := outputPaths("login.csv", runStart, config.RunConfig{LogPath: "a.csv", ScreenshotDir: "b"})
		assert.Equal(t, "a.csv", logPath)
		assert.Equal(t, "b", shots)
	})
}

func TestRunHelpText(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewRunCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	err := cmd.Execute()
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "Shift_JIS")
	assert.Contains(t, output, "--db")
	assert.Contains(t, output, "script.csv")
}
