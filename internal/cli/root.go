package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/nestql/internal/config"
	"github.com/roach88/nestql/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string

	settings *config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// Settings returns the resolved configuration, loading it on first use.
func (o *RootOptions) Settings() (*config.Config, error) {
	if o.settings != nil {
		return o.settings, nil
	}
	cfg, err := config.Load(config.Options{ConfigFile: o.ConfigFile})
	if err != nil {
		return nil, err
	}
	o.settings = cfg
	return cfg, nil
}

// Logger builds the diagnostic logger for a command. --verbose forces
// debug level.
func (o *RootOptions) Logger(w io.Writer) (*zap.Logger, error) {
	cfg, err := o.Settings()
	if err != nil {
		return nil, err
	}
	return logging.New(logging.Verbose(o.Verbose, cfg.LogLevel), cfg.LogFormat, w)
}

// NewRootCommand creates the root command for the nestql CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "nestql",
		Short: "nestql - nested object queries for SQL databases",
		Long: `Compile nested object query requests into a single SQL statement
and assemble the flat result rows back into nested objects.

Types are described in CUE; requests are YAML documents naming a root
type and a nested selection.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate format flag
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if _, err := opts.Settings(); err != nil {
				return WrapExitError(ExitCommandError, "failed to load configuration", err)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (default .nestql.yaml)")

	// Add subcommands
	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
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

// newFormatter builds the formatter for a command invocation.
func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}

// fail reports an error through the formatter and returns the matching
// exit error.
func fail(formatter *OutputFormatter, exitCode int, code, message string, details any) error {
	return report(formatter, exitCode, &CLIError{Code: code, Message: message, Details: details})
}

// report writes e through the formatter and returns the exit error.
func report(formatter *OutputFormatter, exitCode int, e *CLIError) error {
	_ = formatter.Report(e)
	return WrapExitError(exitCode, fmt.Sprintf("%s: %s", e.Code, e.Message), nil)
}
