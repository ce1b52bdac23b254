package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/nestql/internal/ir"
	"github.com/roach88/nestql/internal/loader"
	"github.com/roach88/nestql/internal/queryir"
	"github.com/roach88/nestql/internal/querysql"
	"github.com/roach88/nestql/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Schema   string
	Keyed    bool

	// BatchSize, when set, fetches the request's keys through a loader
	// that issues one statement per BatchSize keys.
	BatchSize int

	// Sessions allows overriding the compile session ID generator (for testing).
	// If nil, defaults to querysql.UUIDv7Generator.
	Sessions querysql.SessionIDGenerator
}

// RunResult is the payload of a successful run.
type RunResult struct {
	Results     any    `json:"results"`
	Count       int    `json:"count"`
	Fingerprint string `json:"fingerprint"`
	SessionID   string `json:"session_id"`
}

// KeyedValue pairs a batch key with its value in run output.
type KeyedValue struct {
	Key   map[string]any `json:"key"`
	Value any            `json:"value"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <request.yaml>",
		Short: "Execute a request and print the nested result",
		Long: `Compile a request document for the database's dialect, execute it
and print the assembled nested objects as JSON.

The database is a DSN: postgres://..., mysql://... or a SQLite path
(sqlite://path, file:path or a plain path). Defaults to the configured
database, then DATABASE_URL.

Example:
  nestql run breweries.yaml --db ./beer.db
  nestql run by-id.yaml --db postgres://localhost/beer --keyed
  nestql run by-id.yaml --db ./beer.db --batch-size 50`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequest(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "database DSN")
	cmd.Flags().StringVar(&opts.Schema, "schema", "", "CUE schema directory")
	cmd.Flags().BoolVar(&opts.Keyed, "keyed", false, "pair each batch result with its key")
	cmd.Flags().IntVar(&opts.BatchSize, "batch-size", 0, "fetch keys through the batching loader, at most this many per statement")

	return cmd
}

func runRequest(opts *RunOptions, requestPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := opts.Settings()
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeInvalidSettings, err.Error(), nil)
	}
	dsn := firstNonEmpty(opts.Database, cfg.Database)
	if dsn == "" {
		return fail(formatter, ExitCommandError, ErrCodeDatabase, "no database configured (use --db or NESTQL_DATABASE)", nil)
	}

	logger, err := opts.Logger(formatter.GetErrWriter())
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeInvalidSettings, err.Error(), nil)
	}
	defer logger.Sync()

	reg, req, err := resolveRequest(formatter, firstNonEmpty(opts.Schema, cfg.Schema), requestPath)
	if err != nil {
		return err
	}

	// Handle graceful shutdown: cancel the running query on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(dsn, store.WithLogger(logger))
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeDatabase, err.Error(), nil)
	}
	defer st.Close()
	formatter.VerboseLog("Connected to %s database", st.Dialect().Name())

	compilerOpts := []querysql.Option{querysql.WithLogger(logger)}
	if opts.Sessions != nil {
		compilerOpts = append(compilerOpts, querysql.WithSessionIDGenerator(opts.Sessions))
	}
	compiler := querysql.NewCompiler(st.Dialect(), reg, compilerOpts...)
	q, err := compiler.Compile(req)
	if err != nil {
		return outputRequestError(formatter, err)
	}
	if q.Plan.Batch == nil {
		switch {
		case opts.Keyed:
			return fail(formatter, ExitCommandError, ErrCodeConfiguration, "--keyed needs a request with keys", nil)
		case opts.BatchSize > 0:
			return fail(formatter, ExitCommandError, ErrCodeConfiguration, "--batch-size needs a request with keys", nil)
		}
	}

	result := RunResult{Fingerprint: q.Fingerprint, SessionID: q.SessionID}
	var keyed []querysql.KeyedResult
	switch {
	case opts.BatchSize > 0:
		values, err := loadInBatches(ctx, compiler, st, req, opts.BatchSize, logger)
		if err != nil {
			return outputExecutionError(ctx, formatter, logger, err)
		}
		if !opts.Keyed {
			result.Results, result.Count = values, len(values)
			break
		}
		keyed = make([]querysql.KeyedResult, len(values))
		for i, v := range values {
			keyed[i] = querysql.KeyedResult{Key: req.Keys[i], Value: v}
		}
	case opts.Keyed:
		keyed, err = st.ExecuteKeyed(ctx, q)
		if err != nil {
			return outputExecutionError(ctx, formatter, logger, err)
		}
	default:
		values, err := st.Execute(ctx, q)
		if err != nil {
			return outputExecutionError(ctx, formatter, logger, err)
		}
		result.Results, result.Count = values, len(values)
	}

	if opts.Keyed {
		values, err := keyedValues(keyed)
		if err != nil {
			return fail(formatter, ExitCommandError, ErrCodeQueryFailed, err.Error(), nil)
		}
		result.Results, result.Count = values, len(values)
	}

	return outputRunSuccess(formatter, q, result)
}

// loadInBatches fetches every key of req through a loader, so no single
// statement carries more than size keys. Values come back in key order.
func loadInBatches(ctx context.Context, c *querysql.Compiler, st *store.Store, req *queryir.ObjectQueryRequest, size int, logger *zap.Logger) ([]any, error) {
	template := *req
	template.Keys = nil
	l := loader.New(loader.QueryFetcher(c, st, &template),
		loader.WithMaxBatch(size),
		loader.WithLogger(logger))

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	values, err := l.LoadMany(ctx, req.Keys)
	l.Close()
	if runErr := <-done; err == nil && runErr != nil {
		err = runErr
	}
	return values, err
}

func keyedValues(keyed []querysql.KeyedResult) ([]KeyedValue, error) {
	out := make([]KeyedValue, len(keyed))
	for i, kr := range keyed {
		key := make(map[string]any, len(kr.Key))
		for _, kv := range kr.Key {
			v, err := ir.ToDriver(kv.Value)
			if err != nil {
				return nil, fmt.Errorf("key column %s: %w", kv.Column, err)
			}
			key[kv.Column] = v
		}
		out[i] = KeyedValue{Key: key, Value: kr.Value}
	}
	return out, nil
}

func outputExecutionError(ctx context.Context, formatter *OutputFormatter, logger *zap.Logger, err error) error {
	if ctx.Err() != nil {
		logger.Warn("query cancelled", zap.Error(ctx.Err()))
	}
	return outputRequestError(formatter, err)
}

// outputRunSuccess prints the assembled results. Results are encoded
// with encoding/json: aggregate averages are floats, which canonical
// JSON rejects.
func outputRunSuccess(formatter *OutputFormatter, q *querysql.CompiledQuery, result RunResult) error {
	if formatter.Format == "json" {
		return formatter.QuerySuccess(q, result)
	}

	encoder := json.NewEncoder(formatter.Writer)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(result.Results); err != nil {
		return err
	}
	fmt.Fprintf(formatter.GetErrWriter(), "%s %d result(s) %s\n", Mark(true), result.Count, Dim(result.Fingerprint))
	return nil
}
