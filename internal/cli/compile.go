package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/nestql/internal/queryir"
	"github.com/roach88/nestql/internal/querysql"
	"github.com/roach88/nestql/internal/request"
	"github.com/roach88/nestql/internal/schema"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Dialect string // overrides the configured dialect
	Schema  string // overrides the configured schema directory
	Output  string // output file path
}

// CompilationResult is the compiled statement of one request.
type CompilationResult struct {
	Type        string `json:"type"`
	Dialect     string `json:"dialect"`
	SQL         string `json:"sql"`
	Args        []any  `json:"args"`
	Fingerprint string `json:"fingerprint"`
	SessionID   string `json:"session_id"`
	Batch       bool   `json:"batch,omitempty"`

	// Plan is the assembly plan: which result columns build which
	// nested field.
	Plan any `json:"plan"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <request.yaml>",
		Short: "Compile a request document to SQL",
		Long: `Compile a YAML request document against the CUE type configuration
into one SQL statement with positional arguments.

Examples:
  nestql compile breweries.yaml
  nestql compile breweries.yaml --dialect mysql --schema ./schema
  nestql compile breweries.yaml -o breweries.sql`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Dialect, "dialect", "", "SQL dialect (postgres|mysql|sqlite)")
	cmd.Flags().StringVar(&opts.Schema, "schema", "", "CUE schema directory")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the SQL to a file")

	return cmd
}

func runCompile(opts *CompileOptions, requestPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := opts.Settings()
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeInvalidSettings, err.Error(), nil)
	}
	dialectName := firstNonEmpty(opts.Dialect, cfg.Dialect)
	d, err := querysql.ParseDialect(dialectName)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeInvalidDialect, err.Error(), nil)
	}

	reg, req, err := resolveRequest(formatter, firstNonEmpty(opts.Schema, cfg.Schema), requestPath)
	if err != nil {
		return err
	}

	logger, err := opts.Logger(formatter.GetErrWriter())
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeInvalidSettings, err.Error(), nil)
	}
	defer logger.Sync()

	q, err := querysql.NewCompiler(d, reg, querysql.WithLogger(logger)).Compile(req)
	if err != nil {
		return outputRequestError(formatter, err)
	}
	formatter.VerboseLog("Compiled %s for %s (session %s)", req.Type.Name, d.Name(), q.SessionID)

	result := CompilationResult{
		Type:        req.Type.Name,
		Dialect:     q.Statement.Dialect,
		SQL:         q.Statement.SQL,
		Args:        q.Statement.Args,
		Fingerprint: q.Fingerprint,
		SessionID:   q.SessionID,
		Batch:       q.Plan.Batch != nil,
		Plan:        querysql.Describe(q.Plan.Root),
	}
	if result.Args == nil {
		result.Args = []any{}
	}

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, []byte(result.SQL+"\n"), 0644); err != nil {
			return fail(formatter, ExitCommandError, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
		}
	}

	return outputCompileSuccess(formatter, q, result, opts.Output)
}

// resolveRequest loads the schema and resolves the request file against
// it. Failures are reported through the formatter.
func resolveRequest(formatter *OutputFormatter, schemaDir, requestPath string) (*schema.Registry, *queryir.ObjectQueryRequest, error) {
	reg, err := loadRegistry(formatter, schemaDir)
	if err != nil {
		return nil, nil, err
	}

	doc, err := request.ParseFile(requestPath)
	if err != nil {
		return nil, nil, fail(formatter, ExitCommandError, ErrCodeRequestRead, err.Error(), nil)
	}
	formatter.VerboseLog("Resolving %s request from %s", doc.Type, requestPath)

	req, err := request.Build(reg, doc)
	if err != nil {
		return nil, nil, outputRequestError(formatter, err)
	}
	return reg, req, nil
}

// outputCompileSuccess outputs the compiled statement.
func outputCompileSuccess(formatter *OutputFormatter, q *querysql.CompiledQuery, result CompilationResult, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.QuerySuccess(q, result)
	}

	// Human-readable text output
	kind := "request"
	if result.Batch {
		kind = "batch request"
	}
	fmt.Fprintf(formatter.Writer, "%s Compiled %s %s for %s\n", Mark(true), result.Type, kind, result.Dialect)
	fmt.Fprintf(formatter.Writer, "  %s\n\n", Dim("fingerprint "+result.Fingerprint))
	fmt.Fprintln(formatter.Writer, result.SQL)
	fmt.Fprintln(formatter.Writer)
	fmt.Fprintf(formatter.Writer, "Args: %v\n", formatArgs(result.Args))

	if outputFile != "" {
		fmt.Fprintf(formatter.Writer, "Wrote SQL to %s\n", outputFile)
	}
	return nil
}

// outputRequestError reports a resolve, compile or execution error.
// Request-shape errors are command errors (exit code 2).
func outputRequestError(formatter *OutputFormatter, err error) error {
	return report(formatter, ExitCommandError, requestError(err))
}

// formatArgs renders arguments for text output, quoting strings.
func formatArgs(args []any) string {
	if len(args) == 0 {
		return "[]"
	}
	out := "["
	for i, a := range args {
		if i > 0 {
			out += " "
		}
		switch v := a.(type) {
		case string:
			out += fmt.Sprintf("%q", v)
		case nil:
			out += "NULL"
		default:
			out += fmt.Sprintf("%v", v)
		}
	}
	return out + "]"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
