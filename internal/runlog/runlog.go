// Package runlog writes the per-run event log.
//
// The log is a Shift_JIS CSV file with a fixed three-column schema
// (timestamp, level, message). The file is truncated when the run starts
// and only appended to afterwards. Every row is mirrored to a live stream
// so progress is visible on the console while the run is in flight.
package runlog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/koki-mus/csvscenario/internal/sjiscsv"
)

// Level tags an entry. Levels are free-form; these are the ones the runner
// emits.
type Level string

const (
	LevelInfo     Level = "INFO"
	LevelWarning  Level = "WARNING"
	LevelError    Level = "ERROR"
	LevelCritical Level = "CRITICAL"
	LevelImage    Level = "IMG"
	LevelText     Level = "TXT"
)

// TimestampLayout gives millisecond precision.
const TimestampLayout = "2006-01-02 15:04:05.000"

// Header is the first row of every log file: timestamp, level, message.
var Header = []string{"タイムスタンプ", "レベル", "メッセージ"}

// Entry is one logged event.
type Entry struct {
	Time    time.Time `json:"time"`
	Level   Level     `json:"level"`
	Message string    `json:"message"`
}

// Timestamp formats the entry time the way it is written to the file.
func (e Entry) Timestamp() string {
	return e.Time.Format(TimestampLayout)
}

// Sink receives every entry after it is written to the file.
type Sink interface {
	Record(e Entry) error
}

// Logger appends entries to the run log.
type Logger struct {
	mu       sync.Mutex
	file     io.Closer
	writer   *sjiscsv.Writer
	mirror   io.Writer
	colorize bool
	now      func() time.Time
	sinks    []Sink
	diag     *slog.Logger
	entries  int
}

// Option configures a Logger.
type Option func(*Logger)

// WithMirror sets the live stream. Defaults to os.Stdout; nil disables it.
func WithMirror(w io.Writer) Option {
	return func(l *Logger) {
		l.mirror = w
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) {
		l.now = now
	}
}

// WithSink adds a destination that receives every entry.
func WithSink(s Sink) Option {
	return func(l *Logger) {
		l.sinks = append(l.sinks, s)
	}
}

// WithDiagnostics sets the logger used to report sink failures.
func WithDiagnostics(d *slog.Logger) Option {
	return func(l *Logger) {
		l.diag = d
	}
}

// Open truncates path and writes the header row.
func Open(path string, opts ...Option) (*Logger, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}
	l, err := New(f, opts...)
	if err != nil {
		f.Close()
		return nil, err
	}
	l.file = f
	return l, nil
}

// New writes the header row to w and returns a Logger appending to it.
func New(w io.Writer, opts ...Option) (*Logger, error) {
	l := &Logger{
		writer: sjiscsv.NewWriter(w, true),
		mirror: os.Stdout,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.diag == nil {
		l.diag = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if f, ok := l.mirror.(*os.File); ok {
		l.colorize = isatty.IsTerminal(f.Fd())
	}

	if err := l.writer.Write(Header); err != nil {
		return nil, fmt.Errorf("write run log header: %w", err)
	}
	return l, nil
}

// Log appends one entry and mirrors it.
// A write failure is reported to the diagnostic logger; logging never
// interrupts the run.
func (l *Logger) Log(level Level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := Entry{Time: l.now(), Level: level, Message: msg}
	ts := e.Timestamp()

	if err := l.writer.Write([]string{ts, string(level), msg}); err != nil {
		l.diag.Error("run log write failed", "error", err)
	}
	l.entries++

	if l.mirror != nil {
		fmt.Fprintf(l.mirror, "[%s] [%s] %s\n", ts, l.levelTag(level), msg)
	}

	for _, s := range l.sinks {
		if err := s.Record(e); err != nil {
			l.diag.Error("run log sink failed", "error", err)
		}
	}
}

// Infof logs at INFO.
func (l *Logger) Infof(format string, args ...any) {
	l.Log(LevelInfo, fmt.Sprintf(format, args...))
}

// Warnf logs at WARNING.
func (l *Logger) Warnf(format string, args ...any) {
	l.Log(LevelWarning, fmt.Sprintf(format, args...))
}

// Errorf logs at ERROR.
func (l *Logger) Errorf(format string, args ...any) {
	l.Log(LevelError, fmt.Sprintf(format, args...))
}

// Criticalf logs at CRITICAL.
func (l *Logger) Criticalf(format string, args ...any) {
	l.Log(LevelCritical, fmt.Sprintf(format, args...))
}

// Image logs the two screenshot reference lines for path: an embed-style
// line and an anchor-style line.
func (l *Logger) Image(path string) {
	l.Log(LevelImage, fmt.Sprintf("![%s](%s)", path, path))
	l.Log(LevelImage, fmt.Sprintf(`<a src="%s" alt="%s"`, path, path))
}

// Text logs a free-form remark.
func (l *Logger) Text(msg string) {
	l.Log(LevelText, msg)
}

// Count returns the number of entries logged after the header.
func (l *Logger) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entries
}

// Close closes the underlying file when the Logger opened it.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

func (l *Logger) levelTag(level Level) string {
	if !l.colorize {
		return string(level)
	}
	switch level {
	case LevelError, LevelCritical:
		return color.New(color.FgRed, color.Bold).Sprint(level)
	case LevelWarning:
		return color.New(color.FgYellow).Sprint(level)
	case LevelImage, LevelText:
		return color.New(color.FgCyan).Sprint(level)
	default:
		return string(level)
	}
}
