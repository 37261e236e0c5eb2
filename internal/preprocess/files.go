package preprocess

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/koki-mus/csvscenario/internal/sjiscsv"
	"github.com/koki-mus/csvscenario/internal/vartable"
)

// ErrSourceMissing is returned when the template file does not exist.
// A missing variable table is reported as vartable.ErrSourceMissing.
var ErrSourceMissing = errors.New("template not found")

// LoadTemplate reads a template file and splits off its header row.
func LoadTemplate(path string) (header []string, rows [][]string, err error) {
	records, err := sjiscsv.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: %s: %w", ErrSourceMissing, path, err)
		}
		return nil, nil, fmt.Errorf("read template: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("read template: %s: missing header row", path)
	}
	return records[0], records[1:], nil
}

// ExpandFiles loads the variable table and template, expands the template
// and writes the script to outPath.
//
// Failing to read either input is fatal and nothing is written.
func ExpandFiles(varsPath, templatePath, outPath string, logger *slog.Logger) (*Result, error) {
	table, err := vartable.Load(varsPath)
	if err != nil {
		return nil, err
	}

	header, rows, err := LoadTemplate(templatePath)
	if err != nil {
		return nil, err
	}

	result := New(table, logger).Expand(header, rows)

	if err := sjiscsv.WriteFile(outPath, result.Rows); err != nil {
		return nil, fmt.Errorf("write script: %w", err)
	}
	return result, nil
}
