// Package script models the expanded instruction script the interpreter runs.
//
// Each row of a script file is one instruction:
//
//	command, selector_type, selector_value, value, option1, option2
//
// Trailing cells are optional. Parse turns a row into exactly one Command
// variant; unknown command names become Unknown so the interpreter can warn
// and move on.
package script

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/koki-mus/csvscenario/internal/sjiscsv"
)

// ErrSourceMissing is returned when the script file does not exist.
var ErrSourceMissing = errors.New("script not found")

// Cell positions within an instruction row.
const (
	cellCommand = iota
	cellSelectorType
	cellSelectorValue
	cellValue
	cellOption1
	cellOption2
)

// Instruction is one parsed script row. All cells are trimmed.
type Instruction struct {
	// Line is the 1-based line in the script file (the header is line 1).
	Line          int
	Command       string // lower-cased
	SelectorType  string
	SelectorValue string
	// Value is the fourth cell: a URL, typed text, file name, content kind
	// or remark depending on the command.
	Value   string
	Options Options
}

// NewInstruction extracts the positional fields of a raw row.
func NewInstruction(line int, row []string) Instruction {
	return Instruction{
		Line:          line,
		Command:       strings.ToLower(cell(row, cellCommand)),
		SelectorType:  cell(row, cellSelectorType),
		SelectorValue: cell(row, cellSelectorValue),
		Value:         cell(row, cellValue),
		Options:       ParseOptions(cell(row, cellOption1), cell(row, cellOption2)),
	}
}

// Summary renders the instruction for the audit log. Empty parts are omitted.
func (in Instruction) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "command: %s", in.Command)
	if in.SelectorType != "" {
		fmt.Fprintf(&b, ", selector type: %s", in.SelectorType)
	}
	if in.SelectorValue != "" {
		fmt.Fprintf(&b, ", selector value: %s", in.SelectorValue)
	}
	if in.Value != "" {
		fmt.Fprintf(&b, ", value/path/attribute: %s", in.Value)
	}
	if len(in.Options) > 0 {
		fmt.Fprintf(&b, ", options: %s", in.Options)
	}
	return b.String()
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// Options holds key=value pairs from an instruction's option cells.
type Options map[string]string

// ParseOptions merges option cells. Each cell is split on its first "=";
// cells without "=" are dropped. A later key overwrites an earlier one.
func ParseOptions(cells ...string) Options {
	opts := Options{}
	for _, c := range cells {
		key, val, ok := strings.Cut(c, "=")
		if !ok {
			continue
		}
		opts[strings.TrimSpace(key)] = strings.TrimSpace(val)
	}
	return opts
}

// Get returns the option value or "".
func (o Options) Get(key string) string {
	return o[key]
}

// String renders the options as {k: v, ...} with sorted keys.
func (o Options) String() string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s: %s", k, o[k])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Script is a loaded expanded script.
type Script struct {
	Path         string
	Header       []string
	Instructions []Instruction
}

// Load reads an expanded script file. The header row is skipped.
func Load(path string) (*Script, error) {
	records, err := sjiscsv.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s: %w", ErrSourceMissing, path, err)
		}
		return nil, fmt.Errorf("read script: %w", err)
	}
	return FromRows(path, records), nil
}

// FromRows builds a Script from raw rows, the first being the header.
func FromRows(path string, records [][]string) *Script {
	s := &Script{Path: path, Instructions: []Instruction{}}
	if len(records) == 0 {
		return s
	}
	s.Header = records[0]
	for i, row := range records[1:] {
		s.Instructions = append(s.Instructions, NewInstruction(i+2, row))
	}
	return s
}
