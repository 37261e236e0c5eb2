package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/koki-mus/csvscenario/internal/browser"
	"github.com/koki-mus/csvscenario/internal/preprocess"
)

// Scenario defines a dry run of one template against a fake page.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Vars is an inline variable table. Mutually exclusive with VarsFile.
	// With neither, the table is empty.
	Vars *VarTable `yaml:"vars,omitempty"`

	// VarsFile is a Shift_JIS variable table CSV.
	VarsFile string `yaml:"vars_file,omitempty"`

	// Template holds the template rows, header first. Mutually exclusive
	// with TemplateFile.
	Template [][]string `yaml:"template,omitempty"`

	// TemplateFile is a Shift_JIS template CSV.
	TemplateFile string `yaml:"template_file,omitempty"`

	// Page describes the fake page the script runs against.
	Page Page `yaml:"page,omitempty"`

	// Assertions validate the recorded calls, log and warnings.
	Assertions []Assertion `yaml:"assertions"`
}

// VarTable is an inline variable table.
type VarTable struct {
	Columns []string   `yaml:"columns"`
	Rows    [][]string `yaml:"rows"`
}

// Page configures testutil.FakeBrowser. Zero sizes keep the fake's
// defaults.
type Page struct {
	Content  *Size     `yaml:"content,omitempty"`
	Viewport *Size     `yaml:"viewport,omitempty"`
	Window   *Size     `yaml:"window,omitempty"`
	Elements []Element `yaml:"elements,omitempty"`

	// FullPage gives the fake native full-page capture.
	FullPage bool `yaml:"full_page,omitempty"`
}

// Size is a width and height in pixels.
type Size struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// Element is a visible element on the fake page.
type Element struct {
	Type  string            `yaml:"type"`
	Value string            `yaml:"value"`
	Text  string            `yaml:"text,omitempty"`
	Attrs map[string]string `yaml:"attrs,omitempty"`
}

// Assertion validates the outcome of a run.
type Assertion struct {
	// Type specifies the assertion type:
	// - "call_contains": a browser call with Method and, if given, Args
	// - "call_order": Methods appear in order
	// - "call_count": Method is called exactly Count times
	// - "log_contains": an entry at Level (optional) containing Message
	// - "log_count": exactly Count entries at Level
	// - "warning_count": exactly Count expansion warnings of Kind (optional)
	Type string `yaml:"type"`

	Method  string   `yaml:"method,omitempty"`
	Args    []string `yaml:"args,omitempty"`
	Methods []string `yaml:"methods,omitempty"`

	Level   string `yaml:"level,omitempty"`
	Message string `yaml:"message,omitempty"`

	Kind string `yaml:"kind,omitempty"`

	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertCallContains = "call_contains"
	AssertCallOrder    = "call_order"
	AssertCallCount    = "call_count"
	AssertLogContains  = "log_contains"
	AssertLogCount     = "log_count"
	AssertWarningCount = "warning_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Data file references resolve against the scenario's directory.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving vars_file and template_file relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict decoding catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	scenario.VarsFile = resolvePath(basePath, scenario.VarsFile)
	scenario.TemplateFile = resolvePath(basePath, scenario.TemplateFile)

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

func resolvePath(base, p string) string {
	if p == "" || filepath.IsAbs(p) || base == "" {
		return p
	}
	return filepath.Join(base, p)
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Vars != nil && s.VarsFile != "" {
		return fmt.Errorf("vars and vars_file are mutually exclusive")
	}
	if s.Vars != nil && len(s.Vars.Columns) == 0 {
		return fmt.Errorf("vars.columns is required and must be non-empty")
	}

	switch {
	case len(s.Template) > 0 && s.TemplateFile != "":
		return fmt.Errorf("template and template_file are mutually exclusive")
	case len(s.Template) == 0 && s.TemplateFile == "":
		return fmt.Errorf("template or template_file is required")
	}

	for _, ref := range []struct{ field, path string }{
		{"vars_file", s.VarsFile},
		{"template_file", s.TemplateFile},
	} {
		if ref.path == "" {
			continue
		}
		if _, err := os.Stat(ref.path); os.IsNotExist(err) {
			return &MissingFileError{Scenario: s.Name, Field: ref.field, Path: ref.path}
		}
	}

	for i, el := range s.Page.Elements {
		if _, err := browser.ParseSelectorKind(el.Type); err != nil {
			return fmt.Errorf("page.elements[%d]: %w", i, err)
		}
		if el.Value == "" {
			return fmt.Errorf("page.elements[%d]: value is required", i)
		}
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Count < 0 {
		return fmt.Errorf("assertions[%d]: count must be non-negative", index)
	}

	switch a.Type {
	case AssertCallContains, AssertCallCount:
		if a.Method == "" {
			return fmt.Errorf("assertions[%d]: method is required for %s", index, a.Type)
		}
	case AssertCallOrder:
		if len(a.Methods) == 0 {
			return fmt.Errorf("assertions[%d]: methods list is required for call_order", index)
		}
	case AssertLogContains:
		if a.Message == "" {
			return fmt.Errorf("assertions[%d]: message is required for log_contains", index)
		}
	case AssertLogCount:
		if a.Level == "" {
			return fmt.Errorf("assertions[%d]: level is required for log_count", index)
		}
	case AssertWarningCount:
		if a.Kind != "" && !knownWarningKind(a.Kind) {
			return fmt.Errorf("assertions[%d]: unknown warning kind %q", index, a.Kind)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

func knownWarningKind(kind string) bool {
	switch preprocess.WarningKind(kind) {
	case preprocess.WarnNestedFor, preprocess.WarnUnmatchedForEnd, preprocess.WarnUnterminatedFor,
		preprocess.WarnEmptyTable, preprocess.WarnUndefinedVariable, preprocess.WarnMissingValue:
		return true
	}
	return false
}

// MissingFileError is returned when a scenario references a data file that
// doesn't exist.
type MissingFileError struct {
	Scenario string
	Field    string
	Path     string
}

// Error implements the error interface.
func (e *MissingFileError) Error() string {
	return fmt.Sprintf("scenario %q references %s %q which does not exist", e.Scenario, e.Field, e.Path)
}
