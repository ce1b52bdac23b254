package schema

import (
	"fmt"
	"sort"

	"cuelang.org/go/cue/token"

	"github.com/roach88/nestql/internal/queryir"
)

// Type is the configuration of one queryable type: its table, key
// columns and fields.
type Type struct {
	Name   string
	Table  string
	Keys   []string
	Fields []Field
	Pos    token.Pos
}

// FieldKind distinguishes the field forms of a type configuration.
type FieldKind int

const (
	// KindScalar reads one column.
	KindScalar FieldKind = iota
	// KindEmbedded groups fields stored on the same row.
	KindEmbedded
	// KindRelation reaches another type through a join.
	KindRelation
)

func (k FieldKind) String() string {
	switch k {
	case KindEmbedded:
		return "embedded"
	case KindRelation:
		return "relation"
	default:
		return "scalar"
	}
}

// Field is one configured field. Column and Key apply to scalars, Fields
// to embedded groups, Relation to relations.
type Field struct {
	Name     string
	Kind     FieldKind
	Column   string
	Key      bool
	Fields   []Field
	Relation *Relation
	Pos      token.Pos
}

// Relation describes how a related type is reached.
type Relation struct {
	Type string
	Many bool
	Join queryir.JoinSpec
}

// Field returns the field configured under name.
func (t *Type) Field(name string) (Field, bool) {
	return lookup(t.Fields, name)
}

// Lookup returns the nested field of an embedded group.
func (f Field) Lookup(name string) (Field, bool) {
	return lookup(f.Fields, name)
}

func lookup(fields []Field, name string) (Field, bool) {
	for _, f := range fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Ref returns the query reference of the type.
func (t *Type) Ref() queryir.TypeRef {
	return queryir.TypeRef{Name: t.Name, KeyColumns: append([]string(nil), t.Keys...)}
}

// Registry holds validated type configurations. It is immutable after
// construction and safe for concurrent reads.
type Registry struct {
	types map[string]*Type
}

// NewRegistry validates types and builds a registry from them. Validation
// failures are returned together as ValidationErrors.
func NewRegistry(types ...*Type) (*Registry, error) {
	r := &Registry{types: make(map[string]*Type, len(types))}
	for _, t := range types {
		if _, dup := r.types[t.Name]; dup {
			return nil, &Error{Field: "type." + t.Name, Message: "type defined twice", Pos: t.Pos}
		}
		r.types[t.Name] = t
	}
	if errs := Validate(r); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return r, nil
}

// Type returns the type configured under name.
func (r *Registry) Type(name string) (*Type, bool) {
	t, ok := r.types[name]
	return t, ok
}

// Types returns every type ordered by name.
func (r *Registry) Types() []*Type {
	out := make([]*Type, 0, len(r.types))
	for _, t := range r.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ResolveTable implements querysql.TableResolver.
func (r *Registry) ResolveTable(typeName string) (string, error) {
	t, ok := r.types[typeName]
	if !ok {
		return "", fmt.Errorf("unknown type %q", typeName)
	}
	return t.Table, nil
}

// Error is a type configuration defect with its source position.
type Error struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
