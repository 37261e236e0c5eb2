// Package sjiscsv reads and writes the Shift_JIS encoded CSV files used by
// every tabular input and output of the runner.
//
// The encoding is fixed. Files produced by existing spreadsheet tooling are
// Shift_JIS with CRLF record terminators, and downstream consumers expect the
// same bytes back, so nothing here ever upgrades a file to UTF-8.
package sjiscsv

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

// Read decodes Shift_JIS CSV records from r.
// Records may have differing field counts.
func Read(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(transform.NewReader(r, japanese.ShiftJIS.NewDecoder()))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return records, nil
}

// ReadFile reads every record of a Shift_JIS CSV file.
// A missing file returns an error that satisfies errors.Is(err, fs.ErrNotExist).
func ReadFile(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// Writer appends CSV records in Shift_JIS.
// Every Write is flushed so a crash never loses an already-written row.
type Writer struct {
	csv *csv.Writer
}

// NewWriter returns a Writer encoding into w.
//
// In lenient mode runes without a Shift_JIS representation are replaced
// instead of failing the write.
func NewWriter(w io.Writer, lenient bool) *Writer {
	enc := japanese.ShiftJIS.NewEncoder()
	if lenient {
		enc = encoding.ReplaceUnsupported(enc)
	}
	cw := csv.NewWriter(transform.NewWriter(w, enc))
	cw.UseCRLF = true
	return &Writer{csv: cw}
}

// Write encodes a single record.
func (w *Writer) Write(record []string) error {
	if err := w.csv.Write(record); err != nil {
		return err
	}
	w.csv.Flush()
	return w.csv.Error()
}

// WriteFile writes records to path in strict Shift_JIS.
// The file is written to a temporary sibling and renamed, so a record that
// cannot be encoded leaves no partial output behind.
func WriteFile(path string, records [][]string) error {
	var buf bytes.Buffer
	w := NewWriter(&buf, false)
	for i, rec := range records {
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("encode row %d: %w", i+1, err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
