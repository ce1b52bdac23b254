package querysql

import (
	"errors"
	"fmt"
)

// CompileError represents a defect detected while compiling a request or
// assembling its rows.
//
// Compile errors are never retried: they indicate a request-shape or
// configuration defect, not a transient fault.
//
// Categories:
//   - Configuration: missing or invalid join, key, table or shape configuration
//   - Unsupported operation: unknown filter operator or aggregate function
//   - Assembly invariant: more rows than a to-one relation allows
type CompileError struct {
	// Code identifies the error category.
	Code CompileErrorCode

	// Message is a human-readable description.
	Message string

	// Path locates the request node, e.g. "Brewery.beers".
	Path string

	// Details contains additional context.
	Details map[string]string
}

// CompileErrorCode categorizes compile errors.
type CompileErrorCode string

const (
	// ErrCodeConfiguration indicates missing or invalid join/key configuration.
	ErrCodeConfiguration CompileErrorCode = "CONFIGURATION"

	// ErrCodeUnsupportedOperation indicates an operator or aggregate the
	// translator does not know.
	ErrCodeUnsupportedOperation CompileErrorCode = "UNSUPPORTED_OPERATION"

	// ErrCodeAssemblyInvariant indicates a to-one relation matched more
	// than one row.
	ErrCodeAssemblyInvariant CompileErrorCode = "ASSEMBLY_INVARIANT"
)

// Error implements the error interface.
func (e *CompileError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (at %s)", e.Code, e.Message, e.Path)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsConfigurationError returns true if the error is a configuration error.
// Uses errors.As to handle wrapped errors.
func IsConfigurationError(err error) bool {
	return hasCode(err, ErrCodeConfiguration)
}

// IsUnsupportedOperation returns true if the error is an unsupported
// operator or aggregate function.
func IsUnsupportedOperation(err error) bool {
	return hasCode(err, ErrCodeUnsupportedOperation)
}

// IsAssemblyInvariant returns true if the error is an assembly invariant
// violation.
func IsAssemblyInvariant(err error) bool {
	return hasCode(err, ErrCodeAssemblyInvariant)
}

func hasCode(err error, code CompileErrorCode) bool {
	var ce *CompileError
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}

// NewConfigurationError creates a CompileError for invalid configuration.
func NewConfigurationError(path, format string, args ...any) *CompileError {
	return &CompileError{
		Code:    ErrCodeConfiguration,
		Message: fmt.Sprintf(format, args...),
		Path:    path,
	}
}

// NewUnsupportedOperationError creates a CompileError for an operation the
// translator rejects.
func NewUnsupportedOperationError(path, kind, name string) *CompileError {
	return &CompileError{
		Code:    ErrCodeUnsupportedOperation,
		Message: fmt.Sprintf("unsupported %s %q", kind, name),
		Path:    path,
		Details: map[string]string{
			"kind": kind,
			"name": name,
		},
	}
}

// NewAssemblyInvariantError creates a CompileError for a to-one relation
// that matched more than one distinct row.
func NewAssemblyInvariantError(path string, first, second string) *CompileError {
	return &CompileError{
		Code:    ErrCodeAssemblyInvariant,
		Message: "to-one relation matched more than one row",
		Path:    path,
		Details: map[string]string{
			"first":  first,
			"second": second,
		},
	}
}
