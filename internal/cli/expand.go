package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/koki-mus/csvscenario/internal/preprocess"
	"github.com/koki-mus/csvscenario/internal/vartable"
)

// ExpandOptions holds flags for the expand command.
type ExpandOptions struct {
	*RootOptions
	Vars     string
	Template string
	Output   string
}

// ExpandResult is the JSON payload of the expand command.
type ExpandResult struct {
	Output   string               `json:"output"`
	Rows     int                  `json:"rows"`
	Warnings []preprocess.Warning `json:"warnings"`
}

// NewExpandCommand creates the expand command.
func NewExpandCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExpandOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "expand",
		Short: "Expand a template against a variable table",
		Long: `Expand an instruction template into a runnable script.

Rows between "for" and "forend" are repeated once per variable table
record with $name placeholders replaced. Structural problems are reported
as warnings and never stop the expansion.

Exit codes:
  0 - Script written (warnings may have been reported)
  2 - Command error (missing input file, unwritable output)

Examples:
  csvscenario expand --vars vars.csv --template template.csv -o script.csv
  csvscenario expand --vars vars.csv --template template.csv -o script.csv --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExpand(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Vars, "vars", "", "variable table CSV (required)")
	cmd.Flags().StringVar(&opts.Template, "template", "", "instruction template CSV (required)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output script CSV (required)")
	_ = cmd.MarkFlagRequired("vars")
	_ = cmd.MarkFlagRequired("template")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func runExpand(opts *ExpandOptions, cmd *cobra.Command) error {
	diag := opts.diagnostics(cmd.ErrOrStderr())

	result, err := preprocess.ExpandFiles(opts.Vars, opts.Template, opts.Output, diag)
	if err != nil {
		switch {
		case errors.Is(err, vartable.ErrSourceMissing):
			return WrapExitError(ExitCommandError, "variable table not found", err)
		case errors.Is(err, preprocess.ErrSourceMissing):
			return WrapExitError(ExitCommandError, "template not found", err)
		default:
			return WrapExitError(ExitCommandError, "expansion failed", err)
		}
	}

	out := ExpandResult{
		Output:   opts.Output,
		Rows:     len(result.Rows) - 1,
		Warnings: result.Warnings,
	}
	if out.Warnings == nil {
		out.Warnings = []preprocess.Warning{}
	}

	if opts.Format == "json" {
		f := &OutputFormatter{Format: "json", Writer: cmd.OutOrStdout()}
		return f.Success(out)
	}

	w := cmd.OutOrStdout()
	for _, warning := range out.Warnings {
		fmt.Fprintf(w, "⚠ %s\n", warning)
	}
	fmt.Fprintf(w, "✓ Wrote %d instruction(s) to %s\n", out.Rows, out.Output)
	return nil
}

// fileExists reports whether path exists.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
