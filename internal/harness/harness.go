package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/koki-mus/csvscenario/internal/browser"
	"github.com/koki-mus/csvscenario/internal/capture"
	"github.com/koki-mus/csvscenario/internal/interpreter"
	"github.com/koki-mus/csvscenario/internal/preprocess"
	"github.com/koki-mus/csvscenario/internal/runlog"
	"github.com/koki-mus/csvscenario/internal/script"
	"github.com/koki-mus/csvscenario/internal/testutil"
	"github.com/koki-mus/csvscenario/internal/vartable"
)

// Harness is the scenario execution engine.
// It runs scenarios with a deterministic clock and no real delays.
type Harness struct {
	browser *testutil.FakeBrowser
	clock   *testutil.DeterministicClock
	logger  *slog.Logger
	workDir string
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh fake browser in its own temporary
// directory. Deterministic helpers ensure reproducible results.
//
// Execution flow:
// 1. Load the variable table and template
// 2. Expand the template
// 3. Execute the script against the fake page, then close the session
// 4. Evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	table, err := loadTable(scenario)
	if err != nil {
		return nil, fmt.Errorf("failed to load variable table: %w", err)
	}
	header, rows, err := loadTemplate(scenario)
	if err != nil {
		return nil, fmt.Errorf("failed to load template: %w", err)
	}

	workDir, err := os.MkdirTemp("", "csvscenario-harness-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	h := &Harness{
		browser: testutil.NewFakeBrowser(),
		clock:   testutil.NewDeterministicClock(),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		workDir: workDir,
	}
	if err := h.setupPage(scenario.Page); err != nil {
		return nil, fmt.Errorf("failed to set up page: %w", err)
	}

	result := NewResult()

	expanded := preprocess.New(table, h.logger).Expand(header, rows)
	result.Expanded = expanded.Rows
	result.Warnings = append(result.Warnings, expanded.Warnings...)

	if err := h.execute(ctx, scenario, script.FromRows(scenario.Name, expanded.Rows), result, scenario.Page.FullPage); err != nil {
		return nil, fmt.Errorf("failed to execute script: %w", err)
	}

	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(errMsg)
	}

	return result, nil
}

func loadTable(s *Scenario) (*vartable.Table, error) {
	switch {
	case s.VarsFile != "":
		return vartable.Load(s.VarsFile)
	case s.Vars != nil:
		return vartable.New(s.Vars.Columns, s.Vars.Rows), nil
	default:
		return vartable.New(nil, nil), nil
	}
}

func loadTemplate(s *Scenario) ([]string, [][]string, error) {
	if s.TemplateFile != "" {
		return preprocess.LoadTemplate(s.TemplateFile)
	}
	if len(s.Template) == 0 {
		return nil, nil, fmt.Errorf("template is empty")
	}
	return s.Template[0], s.Template[1:], nil
}

// setupPage applies the scenario's page to the fake browser.
func (h *Harness) setupPage(p Page) error {
	if p.Content != nil {
		h.browser.Content = browser.Size{Width: p.Content.Width, Height: p.Content.Height}
	}
	if p.Viewport != nil {
		h.browser.Viewport = browser.Size{Width: p.Viewport.Width, Height: p.Viewport.Height}
	}
	if p.Window != nil {
		h.browser.Window = browser.Size{Width: p.Window.Width, Height: p.Window.Height}
	}
	for i, el := range p.Elements {
		kind, err := browser.ParseSelectorKind(el.Type)
		if err != nil {
			return fmt.Errorf("elements[%d]: %w", i, err)
		}
		h.browser.AddElement(kind, el.Value, &testutil.FakeElement{
			InnerText: el.Text,
			Attrs:     el.Attrs,
		})
	}
	return nil
}

// execute runs scr in a fresh session and copies the calls and log
// entries into result.
func (h *Harness) execute(ctx context.Context, scenario *Scenario, scr *script.Script, result *Result, fullPage bool) error {
	var b browser.Browser = h.browser
	if fullPage {
		b = h.browser.FullPage()
	}

	entries := &entryCollector{}
	log, err := runlog.New(io.Discard,
		runlog.WithMirror(nil),
		runlog.WithClock(h.clock.Now),
		runlog.WithSink(entries),
		runlog.WithDiagnostics(h.logger),
	)
	if err != nil {
		return err
	}

	eng := capture.New(b, log)
	eng.Settle = 0
	eng.RestoreSettle = 0
	eng.Diagnostics = h.logger

	session := interpreter.New(b, log,
		interpreter.WithScreenshotDir(filepath.Join(h.workDir, "screenshots")),
		interpreter.WithCapture(eng),
		interpreter.WithSleep(func(ctx context.Context, d time.Duration) error { return ctx.Err() }),
		interpreter.WithDiagnostics(h.logger),
	)

	report := &interpreter.Report{Script: scenario.Name, Screenshots: []string{}}
	runErr := session.Execute(ctx, scr, report)
	_ = session.Close()
	if runErr != nil && ctx.Err() == nil {
		return runErr
	}

	for i, shot := range report.Screenshots {
		report.Screenshots[i] = h.relative(shot)
	}
	result.Report = report

	for _, call := range h.browser.Calls() {
		var args []string
		for _, a := range call.Args {
			args = append(args, h.relative(a))
		}
		result.AddTrace(call.Method, args)
	}
	for _, e := range entries.list() {
		result.Log = append(result.Log, LogLine{
			Time:    e.Timestamp(),
			Level:   string(e.Level),
			Message: h.relative(e.Message),
		})
	}
	return nil
}

// relative strips the work directory from paths inside s.
func (h *Harness) relative(s string) string {
	return strings.ReplaceAll(s, h.workDir+string(filepath.Separator), "")
}

// entryCollector is a runlog.Sink that keeps entries in memory.
type entryCollector struct {
	mu      sync.Mutex
	entries []runlog.Entry
}

func (c *entryCollector) Record(e runlog.Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
	return nil
}

func (c *entryCollector) list() []runlog.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]runlog.Entry, len(c.entries))
	copy(out, c.entries)
	return out
}
