package harness

import (
	"github.com/koki-mus/csvscenario/internal/interpreter"
	"github.com/koki-mus/csvscenario/internal/preprocess"
)

// TraceEvent is one recorded browser call.
type TraceEvent struct {
	Seq    int64    `json:"seq"`
	Method string   `json:"method"`
	Args   []string `json:"args,omitempty"`
}

// LogLine is one run log entry. Time uses the run log's timestamp layout.
type LogLine struct {
	Time    string `json:"time"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every assertion holds.
	Pass bool `json:"pass"`

	// Expanded is the script produced by the preprocessor, header first.
	Expanded [][]string `json:"expanded"`

	// Warnings are the preprocessor's structural warnings.
	Warnings []preprocess.Warning `json:"warnings"`

	// Trace contains every browser call in order.
	Trace []TraceEvent `json:"trace"`

	// Log contains every run log entry in order.
	Log []LogLine `json:"log"`

	// Report is the interpreter's run summary.
	Report *interpreter.Report `json:"report"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Expanded: [][]string{},
		Warnings: []preprocess.Warning{},
		Trace:    []TraceEvent{},
		Log:      []LogLine{},
		Errors:   []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a browser call to the trace.
func (r *Result) AddTrace(method string, args []string) {
	r.Trace = append(r.Trace, TraceEvent{
		Seq:    int64(len(r.Trace) + 1),
		Method: method,
		Args:   args,
	})
}
