package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koki-mus/csvscenario/internal/runlog"
	"github.com/koki-mus/csvscenario/internal/sjiscsv"
	"github.com/koki-mus/csvscenario/internal/store"
)

var traceStart = time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)

// seedArchive creates an archive with two finished runs; run-b is newer.
func seedArchive(t *testing.T) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	seed := func(id string, offset time.Duration, entries []store.Entry, sum store.Summary) {
		require.NoError(t, st.BeginRun(ctx, store.Run{
			ID:            id,
			Script:        id + ".csv",
			LogPath:       id + "_log.csv",
			ScreenshotDir: id + "_screenshots",
			StartedAt:     traceStart.Add(offset),
		}))
		for i, e := range entries {
			e.Seq = int64(i + 1)
			e.Time = traceStart.Add(offset + time.Duration(i)*time.Millisecond)
			require.NoError(t, st.WriteEntry(ctx, id, e))
		}
		sum.FinishedAt = traceStart.Add(offset + time.Second)
		require.NoError(t, st.FinishRun(ctx, id, sum))
	}

	seed("run-a", 0, []store.Entry{
		{Level: "INFO", Message: "starting"},
	}, store.Summary{Status: store.StatusPassed, Instructions: 1})

	seed("run-b", time.Minute, []store.Entry{
		{Level: "INFO", Message: "starting"},
		{Level: "ERROR", Message: "element not found: id=login"},
		{Level: "IMG", Message: "![shots/top.png](shots/top.png)"},
	}, store.Summary{
		Status:       store.StatusFailed,
		Instructions: 2,
		Errors:       1,
		Screenshots:  []string{"shots/top.png"},
	})

	return dbPath
}

func executeTrace(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewTraceCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestTraceMissingDatabaseFlag(t *testing.T) {
	_, err := executeTrace(t, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
	assert.Contains(t, err.Error(), "db")
}

func TestTraceDatabaseNotFound(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nope.db")

	_, err := executeTrace(t, "text", "--db", dbPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "database not found")

	_, statErr := os.Stat(dbPath)
	assert.True(t, os.IsNotExist(statErr), "trace must not create an archive")
}

func TestTraceListRuns(t *testing.T) {
	dbPath := seedArchive(t)

	out, err := executeTrace(t, "text", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "run-a")
	assert.Contains(t, out, "run-b")
	assert.Less(t, bytes.Index([]byte(out), []byte("run-b")), bytes.Index([]byte(out), []byte("run-a")),
		"newest run first")

	out, err = executeTrace(t, "json", "--db", dbPath, "--limit", "1")
	require.NoError(t, err)
	var response struct {
		Status string  `json:"status"`
		Data   RunList `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	require.Len(t, response.Data.Runs, 1)
	assert.Equal(t, "run-b", response.Data.Runs[0].ID)
}

func TestTraceEmptyArchive(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out, err := executeTrace(t, "text", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "No runs archived")
}

func TestTraceLatestRunText(t *testing.T) {
	dbPath := seedArchive(t)

	out, err := executeTrace(t, "text", "--db", dbPath, "--run", "latest")
	require.NoError(t, err)

	assert.Contains(t, out, "Trace for Run: run-b")
	assert.Contains(t, out, "Status: failed")
	assert.Contains(t, out, "=== Log ===")
	assert.Contains(t, out, "element not found: id=login")
	assert.Contains(t, out, "=== Screenshots ===")
	assert.Contains(t, out, "shots/top.png")
	assert.Contains(t, out, "Errors:       1")
	assert.Contains(t, out, "Entries:      3")
}

func TestTraceLevelFilterJSON(t *testing.T) {
	dbPath := seedArchive(t)

	out, err := executeTrace(t, "json", "--db", dbPath, "--run", "run-b", "--level", "error")
	require.NoError(t, err)

	var response struct {
		Status string      `json:"status"`
		Data   TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	assert.Equal(t, "ok", response.Status)
	assert.Equal(t, "run-b", response.Data.Run.ID)
	require.Len(t, response.Data.Entries, 1)
	assert.Equal(t, "ERROR", response.Data.Entries[0].Level)
	assert.Equal(t, int64(2), response.Data.Entries[0].Seq)
	assert.Equal(t, 1, response.Data.Stats.ByLevel["ERROR"])
	assert.Equal(t, []string{"shots/top.png"}, response.Data.Screenshots)
}

func TestTraceRunNotFound(t *testing.T) {
	dbPath := seedArchive(t)

	_, err := executeTrace(t, "text", "--db", dbPath, "--run", "run-zzz")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "run not found")
}

func TestTraceExport(t *testing.T) {
	dbPath := seedArchive(t)
	exportPath := filepath.Join(t.TempDir(), "copy.csv")

	out, err := executeTrace(t, "text", "--db", dbPath, "--run", "run-b", "--export", exportPath)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Exported log to "+exportPath)

	records, err := sjiscsv.ReadFile(exportPath)
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, runlog.Header, records[0])
	assert.Equal(t, []string{
		traceStart.Add(time.Minute + time.Millisecond).Format(runlog.TimestampLayout),
		"ERROR",
		"element not found: id=login",
	}, records[2])
}

func TestTraceExportRequiresRun(t *testing.T) {
	dbPath := seedArchive(t)

	_, err := executeTrace(t, "text", "--db", dbPath, "--export", "out.csv")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "--export requires --run")
}

func TestNormalizeLevels(t *testing.T) {
	assert.Equal(t, []string{"ERROR", "WARNING"}, normalizeLevels([]string{" error", "Warning", ""}))
	assert.Empty(t, normalizeLevels(nil))
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "run-1", truncateID("run-1"))
	assert.Equal(t, "0190f6c2...89abcdef", truncateID("0190f6c2-7c1e-7000-8000-0123456789abcdef"))
}
