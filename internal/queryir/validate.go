package queryir

import (
	"fmt"
	"math"
	"slices"
	"strings"
)

// ValidationError describes one structural defect of a request.
type ValidationError struct {
	// Path locates the offending node, e.g. "Brewery.beers.name".
	Path string

	// Code is a stable machine-readable category.
	Code string

	// Message is a human-readable description.
	Message string
}

// Validation error codes.
const (
	CodeMissingType      = "missing_type"
	CodeEmptySelection   = "empty_selection"
	CodeMissingName      = "missing_name"
	CodeMissingColumn    = "missing_column"
	CodeDuplicateField   = "duplicate_field"
	CodeMissingJoin      = "missing_join"
	CodeMissingRequest   = "missing_request"
	CodeNestedPaging     = "nested_paging"
	CodeNestedKeys       = "nested_keys"
	CodeKeyShape         = "key_shape"
	CodeKeysWithPaging   = "keys_with_paging"
	CodeNegativePaging   = "negative_paging"
	CodePagingOverflow   = "paging_overflow"
	CodeMisplacedAgg     = "misplaced_aggregate"
	CodeAggCardinality   = "aggregate_cardinality"
	CodeMissingAggColumn = "missing_aggregate_column"
)

func (e ValidationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (at %s)", e.Code, e.Message, e.Path)
}

// Validate checks the structural rules the compiler relies on.
//
// Rules:
//  1. Every request names a type and selects at least one field
//  2. Field names are non-empty and unique within one selection
//  3. Scalars, filters and sorts name a column
//  4. Related fields carry a sub-request and a complete join
//  5. Keys and Paging appear only on the outermost request, never together
//  6. All keys of a batch share the same column list
//  7. Aggregates appear only in an aggregate-only related sub-request
//
// Operators and aggregate functions are not checked here; the backend
// rejects the ones it cannot translate.
//
// Validate is a pure function with no side effects.
func Validate(req *ObjectQueryRequest) []ValidationError {
	v := &validator{}
	v.validateRoot(req)
	return v.errs
}

// validator accumulates errors during traversal.
type validator struct {
	errs []ValidationError
}

func (v *validator) addError(path, code, format string, args ...any) {
	v.errs = append(v.errs, ValidationError{Path: path, Code: code, Message: fmt.Sprintf(format, args...)})
}

func (v *validator) validateRoot(req *ObjectQueryRequest) {
	if req == nil {
		v.addError("", CodeMissingRequest, "request is nil")
		return
	}
	path := req.Type.Name
	if req.IsAggregateOnly() {
		v.addError(path, CodeMisplacedAgg, "aggregates are only allowed in a related sub-request")
	}
	v.validateRequest(req, path)

	if len(req.Keys) > 0 && req.Paging != nil {
		v.addError(path, CodeKeysWithPaging, "batch keys cannot be combined with paging")
	}
	if req.Paging != nil && (req.Paging.Page < 0 || req.Paging.PageSize < 0) {
		v.addError(path, CodeNegativePaging, "page and page size must be >= 0 (got %d, %d)", req.Paging.Page, req.Paging.PageSize)
	}
	if p := req.Paging; p != nil && p.PageSize > 0 && p.Page > math.MaxInt/p.PageSize {
		v.addError(path, CodePagingOverflow, "page %d of size %d is beyond the largest offset", p.Page, p.PageSize)
	}
	v.validateKeys(req.Keys, path)
}

func (v *validator) validateRequest(req *ObjectQueryRequest, path string) {
	if req.Type.Name == "" {
		v.addError(path, CodeMissingType, "request has no type name")
	}
	if req.IsEmpty() {
		v.addError(path, CodeEmptySelection, "request selects no fields")
	}
	for i, f := range req.Filters {
		if f.Column == "" {
			v.addError(path, CodeMissingColumn, "filter %d (%s) has no column", i, f.Field)
		}
	}
	for i, s := range req.Sort {
		if s.Column == "" {
			v.addError(path, CodeMissingColumn, "sort %d (%s) has no column", i, s.Field)
		}
	}
	if req.IsAggregateOnly() {
		v.validateAggregates(req.Aggregates, path)
		return
	}
	if len(req.Aggregates) > 0 {
		v.addError(path, CodeMisplacedAgg, "aggregates cannot be mixed with other fields")
	}
	v.validateSelection(req.Selection, path)
}

func (v *validator) validateSelection(sel Selection, path string) {
	seen := make(map[string]bool)
	for _, f := range sel.Fields() {
		name := f.FieldName()
		if name == "" {
			v.addError(path, CodeMissingName, "%T has no name", f)
			continue
		}
		if seen[name] {
			v.addError(path+"."+name, CodeDuplicateField, "field %q selected twice", name)
		}
		seen[name] = true
	}

	for _, f := range sel.Scalars {
		if f.Column == "" {
			v.addError(path+"."+f.Name, CodeMissingColumn, "scalar has no column")
		}
	}
	for _, f := range sel.Embedded {
		p := path + "." + f.Name
		if f.Selection.IsEmpty() {
			v.addError(p, CodeEmptySelection, "embedded field selects no fields")
		}
		if len(f.Aggregates) > 0 {
			v.addError(p, CodeMisplacedAgg, "aggregates are only allowed in a related sub-request")
		}
		v.validateSelection(f.Selection, p)
	}
	for _, f := range sel.Related {
		v.validateRelated(f, path+"."+f.Name)
	}
}

func (v *validator) validateRelated(f RelatedField, path string) {
	if f.Request == nil {
		v.addError(path, CodeMissingRequest, "related field has no sub-request")
		return
	}
	v.validateJoin(f.Join, path)
	if f.Request.Paging != nil {
		v.addError(path, CodeNestedPaging, "paging is only applied to the outermost request")
	}
	if len(f.Request.Keys) > 0 {
		v.addError(path, CodeNestedKeys, "batch keys are only allowed on the outermost request")
	}
	if f.Request.IsAggregateOnly() && f.Cardinality != One {
		v.addError(path, CodeAggCardinality, "an aggregate relation yields exactly one object")
	}
	v.validateRequest(f.Request, path)
}

func (v *validator) validateJoin(j JoinSpec, path string) {
	switch join := j.(type) {
	case nil:
		v.addError(path, CodeMissingJoin, "related field has no join")
	case ColumnJoin:
		v.validatePairs(join.Pairs, path, "join")
	case *ColumnJoin:
		v.validatePairs(join.Pairs, path, "join")
	case JoinTable:
		v.validateJoinTable(join, path)
	case *JoinTable:
		v.validateJoinTable(*join, path)
	default:
		v.addError(path, CodeMissingJoin, "unknown join type %T", j)
	}
}

func (v *validator) validateJoinTable(j JoinTable, path string) {
	if j.Table == "" {
		v.addError(path, CodeMissingJoin, "join table has no table name")
	}
	v.validatePairs(j.ParentSide, path, "join table parent side")
	v.validatePairs(j.ChildSide, path, "join table child side")
}

func (v *validator) validatePairs(pairs []ColumnPair, path, what string) {
	if len(pairs) == 0 {
		v.addError(path, CodeMissingJoin, "%s has no column pairs", what)
		return
	}
	for i, p := range pairs {
		if p.Parent == "" || p.Child == "" {
			v.addError(path, CodeMissingJoin, "%s pair %d is incomplete", what, i)
		}
	}
}

func (v *validator) validateKeys(keys []KeyCriterion, path string) {
	if len(keys) == 0 {
		return
	}
	first := keys[0].Columns()
	if len(first) == 0 {
		v.addError(path, CodeKeyShape, "key 0 has no columns")
		return
	}
	for i, k := range keys[1:] {
		if !slices.Equal(first, k.Columns()) {
			v.addError(path, CodeKeyShape, "key %d columns [%s] differ from [%s]",
				i+1, strings.Join(k.Columns(), ", "), strings.Join(first, ", "))
		}
	}
	for _, c := range first {
		if c == "" {
			v.addError(path, CodeKeyShape, "key has an empty column name")
		}
	}
}

func (v *validator) validateAggregates(aggs []AggregateField, path string) {
	seen := make(map[string]bool)
	for _, a := range aggs {
		p := path + "." + a.Name
		if a.Name == "" {
			v.addError(path, CodeMissingName, "aggregate has no name")
			continue
		}
		if seen[a.Name] {
			v.addError(p, CodeDuplicateField, "field %q selected twice", a.Name)
		}
		seen[a.Name] = true
		if a.Column == "" && a.Function != AggCount {
			v.addError(p, CodeMissingAggColumn, "%s needs a column", a.Function)
		}
	}
}
