// Package interpreter executes an expanded script against one browser
// session.
//
// Instructions run strictly in order. A failing instruction is logged as
// ERROR and the next one runs anyway; only a failure to load the script
// itself is fatal to the run. The session owns the browser for its whole
// lifetime and must be closed by the caller on every exit path.
package interpreter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/koki-mus/csvscenario/internal/browser"
	"github.com/koki-mus/csvscenario/internal/capture"
	"github.com/koki-mus/csvscenario/internal/runlog"
	"github.com/koki-mus/csvscenario/internal/script"
)

// DefaultElementTimeout bounds the wait for an element to become visible.
const DefaultElementTimeout = 10 * time.Second

// Report summarizes a run.
type Report struct {
	Script       string   `json:"script"`
	Instructions int      `json:"instructions"`
	Errors       int      `json:"errors"`
	Warnings     int      `json:"warnings"`
	Screenshots  []string `json:"screenshots"`
	Interrupted  bool     `json:"interrupted"`
}

// Session drives one browser through one or more scripts.
type Session struct {
	browser       browser.Browser
	log           *runlog.Logger
	capture       *capture.Engine
	screenshotDir string
	timeout       time.Duration
	sleep         func(ctx context.Context, d time.Duration) error
	diag          *slog.Logger
	closed        bool
}

// Option configures a Session.
type Option func(*Session)

// WithElementTimeout sets how long lookups wait for visibility.
func WithElementTimeout(d time.Duration) Option {
	return func(s *Session) {
		s.timeout = d
	}
}

// WithScreenshotDir sets the directory screenshots are saved under.
func WithScreenshotDir(dir string) Option {
	return func(s *Session) {
		s.screenshotDir = dir
	}
}

// WithCapture replaces the default capture engine.
func WithCapture(e *capture.Engine) Option {
	return func(s *Session) {
		s.capture = e
	}
}

// WithSleep replaces the post-navigation wait. Tests use it to avoid real
// delays.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Session) {
		s.sleep = fn
	}
}

// WithDiagnostics sets the slog logger for internal diagnostics.
func WithDiagnostics(l *slog.Logger) Option {
	return func(s *Session) {
		s.diag = l
	}
}

// New returns a Session that owns b and writes to log.
func New(b browser.Browser, log *runlog.Logger, opts ...Option) *Session {
	s := &Session{
		browser:       b,
		log:           log,
		screenshotDir: "screenshots",
		timeout:       DefaultElementTimeout,
		sleep:         sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.diag == nil {
		s.diag = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.capture == nil {
		s.capture = capture.New(b, log)
	}
	if s.capture.Diagnostics == nil {
		s.capture.Diagnostics = s.diag
	}
	return s
}

// Run loads the script at path and executes it.
//
// A load failure is logged as CRITICAL and returned. Instruction failures
// are logged and counted in the report but never returned. Cancelling ctx
// stops the run before the next instruction.
func (s *Session) Run(ctx context.Context, path string) (*Report, error) {
	report := &Report{Script: path, Screenshots: []string{}}

	s.log.Infof("starting commands from CSV file '%s'", path)
	scr, err := script.Load(path)
	if err != nil {
		s.log.Criticalf("critical error during test run: %v", err)
		return report, err
	}
	if err := s.Execute(ctx, scr, report); err != nil {
		return report, err
	}
	return report, nil
}

// Execute runs every instruction of scr, accumulating into report.
// It returns ctx.Err() when interrupted.
func (s *Session) Execute(ctx context.Context, scr *script.Script, report *Report) error {
	if err := os.MkdirAll(s.screenshotDir, 0o755); err != nil {
		s.log.Criticalf("critical error during test run: %v", err)
		return fmt.Errorf("create screenshot directory: %w", err)
	}

	for _, in := range scr.Instructions {
		if err := ctx.Err(); err != nil {
			report.Interrupted = true
			s.log.Warnf("run interrupted before line %d", in.Line)
			return err
		}
		report.Instructions++
		s.log.Infof("--- executing (line %d) --- %s", in.Line, in.Summary())

		if err := s.execute(ctx, in, report); err != nil {
			report.Errors++
			var nf *browser.NotFoundError
			if errors.As(err, &nf) {
				s.log.Errorf("%s", nf.Error())
			} else {
				s.log.Errorf("unexpected error while executing command: %v", err)
			}
			s.diag.Debug("instruction failed", "line", in.Line, "command", in.Command, "error", err)
		}
	}
	return nil
}

// execute runs one instruction. A panic is returned as an error.
func (s *Session) execute(ctx context.Context, in script.Instruction, report *Report) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	switch c := script.Parse(in).(type) {
	case script.Navigate:
		return s.navigate(ctx, c)
	case script.Input:
		return s.input(ctx, c)
	case script.Click:
		return s.click(ctx, c)
	case script.Screenshot:
		return s.screenshot(ctx, c, report)
	case script.LogContent:
		return s.logContent(ctx, c)
	case script.LogRemark:
		s.log.Text(c.Text)
		return nil
	case script.Unknown:
		report.Warnings++
		s.log.Warnf("skipped unknown command: %s", c.Name)
		return nil
	default:
		return fmt.Errorf("unhandled command %T", c)
	}
}

func (s *Session) find(ctx context.Context, t script.Target) (browser.Element, error) {
	kind, err := browser.ParseSelectorKind(t.SelectorType)
	if err != nil {
		return nil, err
	}
	return s.browser.FindVisible(ctx, kind, t.SelectorValue, s.timeout)
}

func (s *Session) navigate(ctx context.Context, c script.Navigate) error {
	wait, err := c.Wait()
	if err != nil {
		return err
	}
	s.log.Infof("navigating to URL: %s", c.URL)
	if err := s.browser.Navigate(ctx, c.URL); err != nil {
		return fmt.Errorf("navigate to %s: %w", c.URL, err)
	}
	if wait > 0 {
		s.log.Infof("waiting %d seconds after navigation...", wait)
		return s.sleep(ctx, time.Duration(wait)*time.Second)
	}
	return nil
}

func (s *Session) input(ctx context.Context, c script.Input) error {
	el, err := s.find(ctx, c.Target)
	if err != nil {
		return err
	}
	s.log.Infof("typing '%s' into '%s' (type: %s)", c.Text, c.SelectorValue, c.SelectorType)
	if err := el.Clear(ctx); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	if err := el.Type(ctx, c.Text); err != nil {
		return fmt.Errorf("type: %w", err)
	}
	return nil
}

func (s *Session) click(ctx context.Context, c script.Click) error {
	el, err := s.find(ctx, c.Target)
	if err != nil {
		return err
	}
	s.log.Infof("clicking '%s' (type: %s)", c.SelectorValue, c.SelectorType)
	if err := el.Activate(ctx); err != nil {
		return fmt.Errorf("click: %w", err)
	}
	return nil
}

func (s *Session) screenshot(ctx context.Context, c script.Screenshot, report *Report) error {
	path := filepath.Join(s.screenshotDir, c.FileName)
	s.log.Infof("saving screenshot: %s (remark: %s, full page: %t)", path, c.Remark, c.FullPage)
	s.log.Image(path)

	if err := s.capture.Capture(ctx, path, c.FullPage); err != nil {
		return fmt.Errorf("screenshot %s: %w", path, err)
	}
	report.Screenshots = append(report.Screenshots, path)
	return nil
}

func (s *Session) logContent(ctx context.Context, c script.LogContent) error {
	el, err := s.find(ctx, c.Target)
	if err != nil {
		return err
	}

	var content string
	switch strings.ToLower(c.Kind) {
	case script.ContentText:
		content, err = el.Text(ctx)
	case script.ContentValue:
		content, err = el.Attribute(ctx, "value")
	default:
		content, err = el.Attribute(ctx, c.Kind)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", c.Kind, err)
	}

	s.log.Infof("element content: type='%s'", c.SelectorType)
	s.log.Infof("value='%s'", c.SelectorValue)
	s.log.Infof("content kind='%s'", c.Kind)
	s.log.Infof("result='%s'", content)
	if c.Remark != "" {
		s.log.Infof("remark: %s", c.Remark)
	}
	return nil
}

// Close releases the browser. It is safe to call more than once.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.log.Infof("closing browser")
	err := s.browser.Close()
	if err != nil {
		s.log.Errorf("failed to close browser: %v", err)
	}
	s.log.Infof("test run finished")
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
