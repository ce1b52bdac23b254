package schema

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue/token"

	"github.com/roach88/nestql/internal/queryir"
)

// Validation error codes (E100-E199)
const (
	ErrTableEmpty          = "E101" // type has no table
	ErrNoFields            = "E102" // type has no fields
	ErrColumnEmpty         = "E103" // scalar without column
	ErrUnknownRelationType = "E104" // relation to an undefined type
	ErrJoinIncomplete      = "E105" // missing join pairs or junction table
	ErrDuplicateField      = "E106" // field name repeated in one struct
	ErrKeyEmpty            = "E107" // empty key column name
)

// ValidationError represents a type configuration validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidationErrors is the full list of defects Validate found.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	switch len(e) {
	case 0:
		return "no validation errors"
	case 1:
		return e[0].Error()
	}
	return fmt.Sprintf("%s (and %d more)", e[0].Error(), len(e)-1)
}

// Validate checks every type of the registry and the references between
// them. Returns all errors found (does not fail-fast), ordered by type name.
func Validate(r *Registry) []ValidationError {
	var errs []ValidationError
	for _, t := range r.Types() {
		errs = append(errs, validateType(r, t)...)
	}
	return errs
}

func validateType(r *Registry, t *Type) []ValidationError {
	var errs []ValidationError
	path := "type." + t.Name
	line := lineOf(t.Pos)

	if strings.TrimSpace(t.Table) == "" {
		errs = append(errs, ValidationError{Field: path + ".table", Message: "table must be non-empty", Code: ErrTableEmpty, Line: line})
	}
	if len(t.Fields) == 0 {
		errs = append(errs, ValidationError{Field: path + ".fields", Message: "at least one field is required", Code: ErrNoFields, Line: line})
	}
	for i, k := range t.Keys {
		if strings.TrimSpace(k) == "" {
			errs = append(errs, ValidationError{Field: fmt.Sprintf("%s.keys[%d]", path, i), Message: "key column must be non-empty", Code: ErrKeyEmpty, Line: line})
		}
	}
	return append(errs, validateFields(r, t.Fields, path+".fields")...)
}

func validateFields(r *Registry, fields []Field, path string) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		p := path + "." + f.Name
		line := lineOf(f.Pos)
		if seen[f.Name] {
			errs = append(errs, ValidationError{Field: p, Message: "field defined twice", Code: ErrDuplicateField, Line: line})
		}
		seen[f.Name] = true

		switch f.Kind {
		case KindScalar:
			if strings.TrimSpace(f.Column) == "" {
				errs = append(errs, ValidationError{Field: p, Message: "scalar field needs a column", Code: ErrColumnEmpty, Line: line})
			}
		case KindEmbedded:
			if len(f.Fields) == 0 {
				errs = append(errs, ValidationError{Field: p, Message: "embedded field needs at least one field", Code: ErrNoFields, Line: line})
			}
			errs = append(errs, validateFields(r, f.Fields, p)...)
		case KindRelation:
			errs = append(errs, validateRelation(r, f.Relation, p, line)...)
		}
	}
	return errs
}

func validateRelation(r *Registry, rel *Relation, path string, line int) []ValidationError {
	if rel == nil {
		return []ValidationError{{Field: path, Message: "relation is not configured", Code: ErrJoinIncomplete, Line: line}}
	}
	var errs []ValidationError
	if _, ok := r.Type(rel.Type); !ok {
		errs = append(errs, ValidationError{Field: path, Message: fmt.Sprintf("relation to undefined type %q", rel.Type), Code: ErrUnknownRelationType, Line: line})
	}

	incomplete := func(pairs []queryir.ColumnPair) bool {
		if len(pairs) == 0 {
			return true
		}
		for _, p := range pairs {
			if p.Parent == "" || p.Child == "" {
				return true
			}
		}
		return false
	}
	switch j := rel.Join.(type) {
	case queryir.ColumnJoin:
		if incomplete(j.Pairs) {
			errs = append(errs, ValidationError{Field: path + ".join", Message: "join needs complete column pairs", Code: ErrJoinIncomplete, Line: line})
		}
	case queryir.JoinTable:
		if j.Table == "" || incomplete(j.ParentSide) || incomplete(j.ChildSide) {
			errs = append(errs, ValidationError{Field: path + ".through", Message: "join table needs a table and complete column pairs on both sides", Code: ErrJoinIncomplete, Line: line})
		}
	default:
		errs = append(errs, ValidationError{Field: path, Message: "relation has no join", Code: ErrJoinIncomplete, Line: line})
	}
	return errs
}

func lineOf(pos token.Pos) int {
	if !pos.IsValid() {
		return 0
	}
	return pos.Line()
}
