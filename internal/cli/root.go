package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/koki-mus/csvscenario/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the csvscenario CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "csvscenario",
		Short: "CSV-scripted browser tests",
		Long: `Expand CSV instruction templates and run them against a browser.

A template is expanded against a variable table into a script; the script
is run step by step in Chrome, writing a Shift_JIS CSV run log and
screenshots.`,
		// Execute reports errors itself.
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (default ./"+config.FileName+" if present)")

	cmd.AddCommand(NewExpandCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))

	return cmd
}

// Execute runs the CLI with args and returns the process exit code.
//
// Command errors are reported on stderr, or as a JSON error response on
// stdout with --format json. Failures that already produced a JSON result
// (failed instructions, failed scenarios) are not reported twice.
func Execute(args []string, stdout, stderr io.Writer) int {
	opts := &RootOptions{}
	cmd := newRootCommand(opts)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.Execute()
	if err == nil {
		return ExitSuccess
	}
	code := GetExitCode(err)

	if opts.Format == "json" {
		if code == ExitCommandError {
			f := &OutputFormatter{Format: "json", Writer: stdout}
			_ = f.Error(errorCode(code), err.Error(), nil)
		}
		return code
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return code
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// diagnostics returns the slog logger for internal diagnostics, at debug
// level when --verbose is set.
func (o *RootOptions) diagnostics(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// loadConfig resolves configuration with the given flags bound to keys.
func (o *RootOptions) loadConfig(cmd *cobra.Command, flags map[string]string) (*config.Config, error) {
	v := config.New()
	if err := config.BindFlags(v, cmd.Flags(), flags); err != nil {
		return nil, err
	}
	return config.Load(v, o.ConfigFile)
}
