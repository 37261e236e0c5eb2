package harness

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/koki-mus/csvscenario/internal/preprocess"
)

// Snapshot is the part of a Result compared against golden files.
// Timestamps are left out; order already pins the sequence of events.
type Snapshot struct {
	ScenarioName string               `json:"scenario_name"`
	Expanded     [][]string           `json:"expanded"`
	Warnings     []preprocess.Warning `json:"warnings"`
	Trace        []SnapshotCall       `json:"trace"`
	Log          []SnapshotEntry      `json:"log"`
}

// SnapshotCall is a browser call in a Snapshot.
type SnapshotCall struct {
	Method string   `json:"method"`
	Args   []string `json:"args,omitempty"`
}

// SnapshotEntry is a run log entry in a Snapshot.
type SnapshotEntry struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// NewSnapshot builds the golden snapshot of result.
func NewSnapshot(scenarioName string, result *Result) Snapshot {
	s := Snapshot{
		ScenarioName: scenarioName,
		Expanded:     result.Expanded,
		Warnings:     result.Warnings,
		Trace:        make([]SnapshotCall, len(result.Trace)),
		Log:          make([]SnapshotEntry, len(result.Log)),
	}
	if s.Warnings == nil {
		s.Warnings = []preprocess.Warning{}
	}
	for i, e := range result.Trace {
		s.Trace[i] = SnapshotCall{Method: e.Method, Args: e.Args}
	}
	for i, l := range result.Log {
		s.Log[i] = SnapshotEntry{Level: l.Level, Message: l.Message}
	}
	return s
}

// MarshalSnapshot renders the snapshot of result as indented JSON with a
// trailing newline. HTML characters are not escaped so log lines read as
// written.
func MarshalSnapshot(scenarioName string, result *Result) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(NewSnapshot(scenarioName, result)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := MarshalSnapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)

	return nil
}
