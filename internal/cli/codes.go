package cli

import (
	"errors"

	"github.com/roach88/nestql/internal/harness"
	"github.com/roach88/nestql/internal/querysql"
	"github.com/roach88/nestql/internal/schema"
)

// Error codes reported by the commands. Schema load (E0xx) and schema
// validation (E1xx) codes come from the schema package.
const (
	ErrCodeGeneric = schema.ErrCodeGeneric

	// Request errors (E200-E299)
	ErrCodeRequestRead     = "E201" // request file unreadable or malformed
	ErrCodeConfiguration   = "E202" // request does not fit the schema or join configuration
	ErrCodeUnsupported     = "E203" // unknown filter operator or aggregate function
	ErrCodeInvalidDialect  = "E204" // unknown dialect name
	ErrCodeWriteFailed     = "E205" // output file could not be written
	ErrCodeInvalidSettings = "E206" // config file or log settings invalid

	// Execution errors (E300-E399)
	ErrCodeDatabase          = "E301" // database could not be opened
	ErrCodeQueryFailed       = "E302" // statement failed on the database
	ErrCodeAssemblyInvariant = "E303" // to-one relation matched several rows

	// Harness errors (E400-E499)
	ErrCodeTestFailed = "E401" // one or more scenarios failed
)

// requestErrorCode maps a resolve/compile/execute error to its code.
func requestErrorCode(err error) string {
	switch {
	case querysql.IsConfigurationError(err):
		return ErrCodeConfiguration
	case querysql.IsUnsupportedOperation(err):
		return ErrCodeUnsupported
	case querysql.IsAssemblyInvariant(err):
		return ErrCodeAssemblyInvariant
	}
	return ErrCodeQueryFailed
}

// requestError describes a resolve, compile or execution error. Compile
// errors contribute their category, request path and details.
func requestError(err error) *CLIError {
	e := &CLIError{Code: requestErrorCode(err), Message: err.Error()}
	var ce *querysql.CompileError
	if !errors.As(err, &ce) {
		return e
	}
	if err == error(ce) {
		e.Message = ce.Message
	}
	e.Category = harness.ErrorKind(err)
	e.Path = ce.Path
	if len(ce.Details) > 0 {
		e.Details = ce.Details
	}
	return e
}
