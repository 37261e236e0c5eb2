package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var testStart = time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)

// beginTestRun inserts a running run started minutes after testStart.
func beginTestRun(t *testing.T, s *Store, id string, minutes int) Run {
	t.Helper()
	run := Run{
		ID:            id,
		Script:        "scenario.csv",
		LogPath:       "scenario_20240401_090000.csv",
		ScreenshotDir: "scenario_20240401_090000_screenshots",
		StartedAt:     testStart.Add(time.Duration(minutes) * time.Minute),
	}
	if err := s.BeginRun(context.Background(), run); err != nil {
		t.Fatalf("BeginRun(%s) failed: %v", id, err)
	}
	return run
}
