// Package preprocess expands an instruction template into a concrete script.
//
// A template is a list of CSV instructions that may contain one repetition
// block delimited by the "for" and "forend" commands. The block is replayed
// once per variable table record, with $name placeholders replaced by the
// record's values.
//
// # Hyphen handling
//
// Cells outside a block are cleared only when the whole cell is "-" (the
// blank-cell sentinel). Cells produced by block expansion have every hyphen
// removed after substitution. Scripts in the wild depend on both behaviors,
// so they are kept apart.
//
// # Structural problems
//
// Structural problems never abort expansion. They are reported as Warnings:
//   - a nested "for" is ignored and the current block continues
//   - a "forend" without an open block is ignored
//   - a block still open at the end of the template is dropped
package preprocess

import (
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/koki-mus/csvscenario/internal/vartable"
)

// placeholder matches $name tokens. Word characters include letters and
// digits of any script so Japanese column names resolve.
var placeholder = regexp.MustCompile(`\$([\p{L}\p{M}\p{N}_]+)`)

// Block delimiters, compared after trimming and lower-casing.
const (
	CommandFor    = "for"
	CommandForEnd = "forend"
)

// sentinel is the whole-cell marker for an intentionally empty cell.
const sentinel = "-"

// WarningKind classifies a non-fatal expansion problem.
type WarningKind string

const (
	WarnNestedFor         WarningKind = "nested_for"
	WarnUnmatchedForEnd   WarningKind = "unmatched_forend"
	WarnUnterminatedFor   WarningKind = "unterminated_for"
	WarnEmptyTable        WarningKind = "empty_table"
	WarnUndefinedVariable WarningKind = "undefined_variable"
	WarnMissingValue      WarningKind = "missing_value"
)

// Warning describes a problem found while expanding.
// Line is the 1-based line in the template file (the header is line 1).
type Warning struct {
	Line    int         `json:"line"`
	Kind    WarningKind `json:"kind"`
	Message string      `json:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("line %d: %s", w.Line, w.Message)
}

// Result is the expanded script.
// Rows[0] is the template header, copied unchanged.
type Result struct {
	Rows     [][]string
	Warnings []Warning
}

// Preprocessor expands templates against one variable table.
type Preprocessor struct {
	table  *vartable.Table
	logger *slog.Logger
}

// New returns a Preprocessor. A nil logger discards warnings; they are
// still returned in the Result.
func New(table *vartable.Table, logger *slog.Logger) *Preprocessor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if table == nil {
		table = vartable.New(nil, nil)
	}
	return &Preprocessor{table: table, logger: logger}
}

type state int

const (
	outside state = iota
	inBlock
)

type blockRow struct {
	line  int
	cells []string
}

// expansion holds the state of a single Expand call.
type expansion struct {
	p        *Preprocessor
	state    state
	block    []blockRow
	openLine int
	result   *Result
}

// Expand expands template rows. header is the template's first row.
func (p *Preprocessor) Expand(header []string, rows [][]string) *Result {
	x := &expansion{
		p:      p,
		state:  outside,
		result: &Result{Rows: [][]string{copyRow(header)}},
	}

	for i, row := range rows {
		x.step(i+2, row)
	}

	if x.state == inBlock {
		x.warn(x.openLine, WarnUnterminatedFor,
			fmt.Sprintf("%q opened here is never closed by %q; its %d instruction(s) are dropped",
				CommandFor, CommandForEnd, len(x.block)))
	}

	return x.result
}

func (x *expansion) step(line int, row []string) {
	switch commandOf(row) {
	case CommandFor:
		if x.state == inBlock {
			x.warn(line, WarnNestedFor,
				fmt.Sprintf("nested %q is not supported and is ignored", CommandFor))
			return
		}
		x.state = inBlock
		x.openLine = line
		x.block = nil

	case CommandForEnd:
		if x.state == outside {
			x.warn(line, WarnUnmatchedForEnd,
				fmt.Sprintf("%q without a matching %q is ignored", CommandForEnd, CommandFor))
			return
		}
		x.state = outside
		x.flush(line)
		x.block = nil

	default:
		if x.state == inBlock {
			x.block = append(x.block, blockRow{line: line, cells: row})
			return
		}
		x.result.Rows = append(x.result.Rows, clearSentinels(row))
	}
}

// flush replays the accumulated block once per record, row-major.
func (x *expansion) flush(line int) {
	records := x.p.table.Records()
	if len(records) == 0 {
		x.warn(line, WarnEmptyTable, "variable table has no records; block is skipped")
		return
	}

	for _, record := range records {
		for _, br := range x.block {
			out := make([]string, len(br.cells))
			for i, cell := range br.cells {
				out[i] = strings.ReplaceAll(x.substitute(br.line, cell, record), "-", "")
			}
			x.result.Rows = append(x.result.Rows, out)
		}
	}
}

// substitute replaces every known $name token in cell with the record's
// value. Unknown or unresolvable tokens stay in place.
func (x *expansion) substitute(line int, cell string, record []string) string {
	return placeholder.ReplaceAllStringFunc(cell, func(token string) string {
		name := token[1:]
		value, known, ok := x.p.table.Lookup(record, name)
		switch {
		case !known:
			x.warn(line, WarnUndefinedVariable, fmt.Sprintf("undefined variable %q", name))
			return token
		case !ok:
			x.warn(line, WarnMissingValue,
				fmt.Sprintf("record has no value for variable %q", name))
			return token
		}
		return value
	})
}

func (x *expansion) warn(line int, kind WarningKind, msg string) {
	w := Warning{Line: line, Kind: kind, Message: msg}
	x.result.Warnings = append(x.result.Warnings, w)
	x.p.logger.Warn(msg, "line", line, "kind", string(kind))
}

func commandOf(row []string) string {
	if len(row) == 0 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(row[0]))
}

func clearSentinels(row []string) []string {
	out := make([]string, len(row))
	for i, cell := range row {
		if cell != sentinel {
			out[i] = cell
		}
	}
	return out
}

func copyRow(row []string) []string {
	out := make([]string, len(row))
	copy(out, row)
	return out
}
