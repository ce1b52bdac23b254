package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/roach88/nestql/internal/querysql"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // command succeeded
	ExitFailure      = 1 // scenarios failed or the schema is invalid
	ExitCommandError = 2 // bad input, unreachable database, request rejected
)

// ExitError carries the process exit code out of a command.
type ExitError struct {
	Code    int
	Message string
	Err     error // optional cause
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError returns an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError returns an ExitError around err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the exit code carried by err, ExitFailure when err
// is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter writes command results as text or as a JSON envelope.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // diagnostics; falls back to Writer
	Verbose   bool
}

// CLIResponse is the JSON envelope of every command.
type CLIResponse struct {
	Status string     `json:"status"` // "ok" or "error"
	Data   any        `json:"data,omitempty"`
	Query  *QueryInfo `json:"query,omitempty"`
	Error  *CLIError  `json:"error,omitempty"`
}

// QueryInfo identifies the compiled statement behind a response, so a
// response can be matched with the compiler and store log lines.
type QueryInfo struct {
	SessionID   string `json:"session_id"`
	Fingerprint string `json:"fingerprint"`
	Dialect     string `json:"dialect"`
}

func queryInfo(q *querysql.CompiledQuery) *QueryInfo {
	return &QueryInfo{
		SessionID:   q.SessionID,
		Fingerprint: q.Fingerprint,
		Dialect:     q.Statement.Dialect,
	}
}

// CLIError is the error part of a response.
type CLIError struct {
	Code    string `json:"code"` // "E001", "E202", ...
	Message string `json:"message"`

	// Category is the request error class: configuration,
	// unsupported_operation or assembly_invariant.
	Category string `json:"category,omitempty"`

	// Path is the request node or schema field at fault, e.g. "Beer.colour".
	Path string `json:"path,omitempty"`

	Details any `json:"details,omitempty"`
}

// Success writes data. Text output prints it with fmt.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{Status: "ok", Data: data})
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// QuerySuccess writes the JSON envelope of a command that compiled q.
func (f *OutputFormatter) QuerySuccess(q *querysql.CompiledQuery, data any) error {
	return f.encode(CLIResponse{Status: "ok", Data: data, Query: queryInfo(q)})
}

// Error reports a failure with a code and optional details.
func (f *OutputFormatter) Error(code, message string, details any) error {
	return f.Report(&CLIError{Code: code, Message: message, Details: details})
}

// Report writes e in the configured format.
func (f *OutputFormatter) Report(e *CLIError) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{Status: "error", Error: e})
	}

	fmt.Fprintf(f.Writer, "%s [%s]: %s\n", failStyle.Sprint("Error"), e.Code, e.Message)
	if e.Path != "" {
		fmt.Fprintf(f.Writer, "  at %s\n", e.Path)
	}
	if f.Verbose && e.Details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", e.Details)
	}
	return nil
}

func (f *OutputFormatter) encode(resp CLIResponse) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(resp)
}

// VerboseLog writes a diagnostic line when verbose output is on. It goes
// to ErrWriter so JSON on Writer stays parseable.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns ErrWriter, or Writer when none is set.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

var (
	okStyle   = color.New(color.FgGreen, color.Bold)
	failStyle = color.New(color.FgRed, color.Bold)
	dimStyle  = color.New(color.Faint)
)

// Mark returns the status glyph for text output: a green check or a red
// cross. Colors are dropped when the output is not a terminal.
func Mark(ok bool) string {
	if ok {
		return okStyle.Sprint("✓")
	}
	return failStyle.Sprint("✗")
}

// Dim renders secondary text such as fingerprints.
func Dim(s string) string {
	return dimStyle.Sprint(s)
}
