package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/nestql/internal/schema"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool                     `json:"valid"`
	Types  []TypeSummary            `json:"types,omitempty"`
	Errors []schema.ValidationError `json:"errors,omitempty"`
}

// TypeSummary describes one configured type.
type TypeSummary struct {
	Name   string   `json:"name"`
	Table  string   `json:"table"`
	Keys   []string `json:"keys,omitempty"`
	Fields int      `json:"fields"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [schema-dir]",
		Short: "Validate CUE type configuration",
		Long: `Load the CUE type configuration and check it: every type has a table
and fields, every scalar a column, every relation a known target type
and a complete join.

The schema directory defaults to the configured schema.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			return runValidate(rootOpts, dir, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	if dir == "" {
		cfg, err := opts.Settings()
		if err != nil {
			return fail(formatter, ExitCommandError, ErrCodeInvalidSettings, err.Error(), nil)
		}
		dir = cfg.Schema
	}

	if files, err := schema.FindCUEFiles(dir); err == nil {
		formatter.VerboseLog("Found %d CUE file(s) in %s", len(files), dir)
	}

	reg, err := loadRegistry(formatter, dir)
	if err != nil {
		return err
	}

	summaries := make([]TypeSummary, 0, len(reg.Types()))
	for _, t := range reg.Types() {
		formatter.VerboseLog("Validated type: %s", t.Name)
		summaries = append(summaries, TypeSummary{
			Name:   t.Name,
			Table:  t.Table,
			Keys:   t.Keys,
			Fields: len(t.Fields),
		})
	}
	return outputValidateSuccess(formatter, summaries)
}

// loadRegistry loads a schema directory for a command, reporting
// failures through the formatter.
func loadRegistry(formatter *OutputFormatter, dir string) (*schema.Registry, error) {
	formatter.VerboseLog("Loading schema from %s", dir)
	reg, err := schema.Load(dir)
	if err != nil {
		return nil, outputSchemaError(formatter, err)
	}
	return reg, nil
}

// outputSchemaError reports a schema load or validation failure.
func outputSchemaError(formatter *OutputFormatter, err error) error {
	var ves schema.ValidationErrors
	if errors.As(err, &ves) {
		return outputValidationErrors(formatter, ves)
	}
	var loadErr *schema.LoadError
	if errors.As(err, &loadErr) {
		return fail(formatter, ExitCommandError, loadErr.Code, loadErr.Message, nil)
	}
	var typeErr *schema.Error
	if errors.As(err, &typeErr) {
		line := 0
		if typeErr.Pos.IsValid() {
			line = typeErr.Pos.Line()
		}
		return outputValidationErrors(formatter, []schema.ValidationError{{
			Field:   typeErr.Field,
			Message: typeErr.Message,
			Code:    ErrCodeGeneric,
			Line:    line,
		}})
	}
	return fail(formatter, ExitCommandError, ErrCodeGeneric, err.Error(), nil)
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, types []TypeSummary) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Types: types})
	}

	fmt.Fprintf(formatter.Writer, "%s All types valid (%d)\n", Mark(true), len(types))
	for _, t := range types {
		fmt.Fprintf(formatter.Writer, "  %s → %s: %d field(s)\n", t.Name, t.Table, t.Fields)
	}
	return nil
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []schema.ValidationError) error {
	if formatter.Format == "json" {
		result := ValidationResult{
			Valid:  false,
			Errors: errs,
		}

		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	// Text format
	fmt.Fprintf(formatter.Writer, "%s Validation failed\n", Mark(false))
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}

	// Validation failures = exit code 1 (test/validation failure)
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
