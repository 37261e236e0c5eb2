// Package vartable loads the variable table that feeds template expansion.
//
// The first row of the file names the columns; every following row is one
// substitution record. Records are kept exactly as read (cells are not
// trimmed) so values with meaningful surrounding whitespace survive.
package vartable

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/koki-mus/csvscenario/internal/sjiscsv"
)

// ErrSourceMissing is returned when the variable table file does not exist.
var ErrSourceMissing = errors.New("variable table not found")

// Table is an immutable set of named columns and positional records.
type Table struct {
	columns []string
	index   map[string]int
	records [][]string
}

// New builds a table from a header row and records.
// Column names are trimmed of surrounding whitespace. When a name repeats,
// the last occurrence wins.
func New(header []string, records [][]string) *Table {
	t := &Table{
		columns: make([]string, len(header)),
		index:   make(map[string]int, len(header)),
		records: records,
	}
	for i, name := range header {
		name = strings.TrimSpace(name)
		t.columns[i] = name
		t.index[name] = i
	}
	if t.records == nil {
		t.records = [][]string{}
	}
	return t
}

// Load reads a variable table from a Shift_JIS CSV file.
func Load(path string) (*Table, error) {
	rows, err := sjiscsv.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s: %w", ErrSourceMissing, path, err)
		}
		return nil, fmt.Errorf("read variable table: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("read variable table: %s: missing header row", path)
	}
	return New(rows[0], rows[1:]), nil
}

// Columns returns the trimmed column names in header order.
func (t *Table) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// Len returns the number of records.
func (t *Table) Len() int {
	return len(t.records)
}

// Records returns the records in table order.
func (t *Table) Records() [][]string {
	return t.records
}

// Index returns the position of a column.
func (t *Table) Index(name string) (int, bool) {
	i, ok := t.index[name]
	return i, ok
}

// Lookup resolves a column for one record.
//
// known reports whether the column exists at all; ok additionally requires
// the record to be long enough to hold a value for it.
func (t *Table) Lookup(record []string, name string) (value string, known, ok bool) {
	i, known := t.index[name]
	if !known {
		return "", false, false
	}
	if i >= len(record) {
		return "", true, false
	}
	return record[i], true, true
}
