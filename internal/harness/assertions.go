package harness

import (
	"fmt"
	"slices"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Browser calls, for call assertions
	Log      []LogLine    // Run log, for log assertions
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %v\n", event.Seq, event.Method, event.Args)
		}
	}
	if len(e.Log) > 0 {
		fmt.Fprintf(&buf, "\nRun log:\n")
		for _, line := range e.Log {
			fmt.Fprintf(&buf, "  [%s] %s\n", line.Level, line.Message)
		}
	}

	return buf.String()
}

// assertCallContains checks that the trace has a call to the method whose
// args equal the expected args. Without expected args any call matches.
func assertCallContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if event.Method != assertion.Method {
			continue
		}
		if len(assertion.Args) == 0 || slices.Equal(event.Args, assertion.Args) {
			return nil
		}
	}

	expected := assertion.Method
	if len(assertion.Args) > 0 {
		expected = fmt.Sprintf("%s with args %v", assertion.Method, assertion.Args)
	}
	return &AssertionError{
		Type:     AssertCallContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertCallOrder checks that methods appear in the given order.
// Calls don't need to be consecutive (intervening calls are allowed).
func assertCallOrder(trace []TraceEvent, assertion Assertion) error {
	next := 0
	for _, event := range trace {
		if next < len(assertion.Methods) && event.Method == assertion.Methods[next] {
			next++
		}
	}
	if next == len(assertion.Methods) {
		return nil
	}

	return &AssertionError{
		Type:     AssertCallOrder,
		Expected: fmt.Sprintf("methods in order %v", assertion.Methods),
		Actual:   fmt.Sprintf("matched %v, then %s was not found", assertion.Methods[:next], assertion.Methods[next]),
		Trace:    trace,
	}
}

// assertCallCount checks that the method is called exactly Count times.
func assertCallCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Method == assertion.Method {
			count++
		}
	}
	if count == assertion.Count {
		return nil
	}

	return &AssertionError{
		Type:     AssertCallCount,
		Expected: fmt.Sprintf("%s called %d time(s)", assertion.Method, assertion.Count),
		Actual:   fmt.Sprintf("called %d time(s)", count),
		Trace:    trace,
	}
}

// assertLogContains checks for an entry at Level whose message contains
// Message. An empty Level matches every level.
func assertLogContains(log []LogLine, assertion Assertion) error {
	for _, line := range log {
		if assertion.Level != "" && line.Level != assertion.Level {
			continue
		}
		if strings.Contains(line.Message, assertion.Message) {
			return nil
		}
	}

	level := assertion.Level
	if level == "" {
		level = "any level"
	}
	return &AssertionError{
		Type:     AssertLogContains,
		Expected: fmt.Sprintf("entry at %s containing %q", level, assertion.Message),
		Actual:   "not found in run log",
		Log:      log,
	}
}

// assertLogCount checks that exactly Count entries are at Level.
func assertLogCount(log []LogLine, assertion Assertion) error {
	count := 0
	for _, line := range log {
		if line.Level == assertion.Level {
			count++
		}
	}
	if count == assertion.Count {
		return nil
	}

	return &AssertionError{
		Type:     AssertLogCount,
		Expected: fmt.Sprintf("%d %s entries", assertion.Count, assertion.Level),
		Actual:   fmt.Sprintf("%d entries", count),
		Log:      log,
	}
}

// assertWarningCount checks the number of expansion warnings, optionally
// restricted to one kind.
func assertWarningCount(result *Result, assertion Assertion) error {
	count := 0
	var seen []string
	for _, w := range result.Warnings {
		seen = append(seen, w.String())
		if assertion.Kind == "" || string(w.Kind) == assertion.Kind {
			count++
		}
	}
	if count == assertion.Count {
		return nil
	}

	what := "warnings"
	if assertion.Kind != "" {
		what = assertion.Kind + " warnings"
	}
	return &AssertionError{
		Type:     AssertWarningCount,
		Expected: fmt.Sprintf("%d %s", assertion.Count, what),
		Actual:   fmt.Sprintf("%d %s %v", count, what, seen),
	}
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertCallContains:
			err = assertCallContains(result.Trace, assertion)
		case AssertCallOrder:
			err = assertCallOrder(result.Trace, assertion)
		case AssertCallCount:
			err = assertCallCount(result.Trace, assertion)
		case AssertLogContains:
			err = assertLogContains(result.Log, assertion)
		case AssertLogCount:
			err = assertLogCount(result.Log, assertion)
		case AssertWarningCount:
			err = assertWarningCount(result, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
