package harness

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/roach88/nestql/internal/ir"
	"github.com/roach88/nestql/internal/querysql"
	"github.com/roach88/nestql/internal/request"
	"github.com/roach88/nestql/internal/schema"
	"github.com/roach88/nestql/internal/store"
	"github.com/roach88/nestql/internal/testutil"
)

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	Pass bool `json:"pass"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Statement is the compiled statement, zero if compilation failed.
	Statement querysql.Statement `json:"statement"`

	// Fingerprint identifies the compiled statement.
	Fingerprint string `json:"fingerprint,omitempty"`

	// Output is the assembled result when execution succeeded.
	Output []any `json:"output,omitempty"`

	// ErrorKind is the category of the request error, if any.
	ErrorKind string `json:"error_kind,omitempty"`

	// Err is the request error, if any.
	Err error `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{Pass: true, Errors: []string{}}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}

// Option configures a scenario run.
type Option func(*runner)

// WithLogger routes compiler and store logs to log.
func WithLogger(log *zap.Logger) Option {
	return func(r *runner) {
		if log != nil {
			r.logger = log
		}
	}
}

type runner struct {
	logger *zap.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
//  1. Load the CUE schema
//  2. Create a fresh in-memory database and apply fixtures and setup SQL
//  3. Resolve, compile and execute the request
//  4. Compare the outcome with the expectation
//
// Errors in steps 1 and 2 are returned; request errors are part of the
// result.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	r := &runner{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}

	reg, err := schema.Load(scenario.Schema)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}

	st, err := store.Open(":memory:", store.WithLogger(r.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	for _, f := range scenario.Fixtures {
		if err := st.ExecFile(ctx, f); err != nil {
			return nil, fmt.Errorf("failed to apply fixtures: %w", err)
		}
	}
	if scenario.Setup != "" {
		if err := st.ExecScript(ctx, scenario.Setup); err != nil {
			return nil, fmt.Errorf("failed to apply setup: %w", err)
		}
	}

	doc, err := scenario.Document()
	if err != nil {
		return nil, err
	}

	result := NewResult()
	output, err := r.execute(ctx, reg, st, scenario, doc, result)
	if err != nil {
		result.Err = err
		result.ErrorKind = ErrorKind(err)
		checkError(result, scenario.Expect, err)
		return result, nil
	}
	result.Output = output
	checkOutput(result, scenario.Expect, output)
	return result, nil
}

func (r *runner) execute(ctx context.Context, reg *schema.Registry, st *store.Store, scenario *Scenario, doc *request.Document, result *Result) ([]any, error) {
	req, err := request.Build(reg, doc)
	if err != nil {
		return nil, err
	}

	c := querysql.NewCompiler(st.Dialect(), reg,
		querysql.WithLogger(r.logger),
		querysql.WithSessionIDGenerator(testutil.NewFixedSessionGenerator(scenario.SessionID)))
	q, err := c.Compile(req)
	if err != nil {
		return nil, err
	}
	result.Statement = q.Statement
	result.Fingerprint = q.Fingerprint

	return st.Execute(ctx, q)
}

// ErrorKind maps a request error to its expectation category, or ""
// for errors outside the three compile categories.
func ErrorKind(err error) string {
	switch {
	case querysql.IsConfigurationError(err):
		return ErrorConfiguration
	case querysql.IsUnsupportedOperation(err):
		return ErrorUnsupportedOperation
	case querysql.IsAssemblyInvariant(err):
		return ErrorAssemblyInvariant
	}
	return ""
}

func checkError(result *Result, expect Expectation, err error) {
	if expect.Error == "" {
		result.AddError("unexpected error: %v", err)
		return
	}
	if kind := ErrorKind(err); kind != expect.Error {
		result.AddError("expected %s error, got %v", expect.Error, err)
	}
}

func checkOutput(result *Result, expect Expectation, output []any) {
	if expect.Error != "" {
		result.AddError("expected %s error, query succeeded", expect.Error)
		return
	}

	want, err := ir.MarshalCanonical(expect.Result)
	if err != nil {
		result.AddError("invalid expected result: %v", err)
		return
	}
	got, err := ir.MarshalCanonical(output)
	if err != nil {
		result.AddError("result cannot be compared: %v", err)
		return
	}
	if string(want) != string(got) {
		result.AddError("result mismatch:\n  expected: %s\n  actual:   %s", want, got)
	}
}
