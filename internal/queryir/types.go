package queryir

import "github.com/roach88/nestql/internal/ir"

// FieldSpec is one entry of a selection.
//
// This is a sealed interface - only types in this package implement it.
// The marker method pattern enables exhaustive type switches in backend
// compilers.
//
// Field kinds:
//   - ScalarField: one column of the current row
//   - EmbeddedField: a nested object read from the same row
//   - RelatedField: an object (or list of objects) reached through a join
//   - AggregateField: one aggregate over a related table
type FieldSpec interface {
	fieldSpec() // Marker method - seals interface to this package

	// FieldName is the name the value is returned under.
	FieldName() string
}

// JoinSpec describes how a related type is reached from its parent.
//
// This is a sealed interface. Implementations:
//   - ColumnJoin: direct foreign-key pairs between parent and child tables
//   - JoinTable: a two-hop join through a junction table
type JoinSpec interface {
	joinSpec() // Marker method - seals interface to this package
}

// Cardinality distinguishes to-one from to-many relations.
type Cardinality int

const (
	// One yields zero or one related object (null when absent).
	One Cardinality = iota
	// Many yields an ordered list of related objects (empty when absent).
	Many
)

func (c Cardinality) String() string {
	if c == Many {
		return "many"
	}
	return "one"
}

// Operator names a filter comparison.
type Operator string

// OpEq is the only operator every backend must support.
const OpEq Operator = "eq"

// AggregateFunction names an aggregate computed over a related table.
type AggregateFunction string

const (
	AggCount      AggregateFunction = "count"
	AggSum        AggregateFunction = "sum"
	AggMin        AggregateFunction = "min"
	AggMax        AggregateFunction = "max"
	AggAvg        AggregateFunction = "avg"
	AggStringJoin AggregateFunction = "string_join"
)

// TypeRef identifies the type a request reads.
//
// Name is resolved to a physical table by the backend's table resolver.
// KeyColumns are the configured identity columns of the type; they are
// projected even when not requested so rows can be grouped per instance.
type TypeRef struct {
	Name       string
	KeyColumns []string
}

// Selection is the set of fields requested at one nesting level.
//
// A selection is shared by ObjectQueryRequest (a whole record) and
// EmbeddedField (a nested object stored on the same row).
type Selection struct {
	Scalars    []ScalarField
	Embedded   []EmbeddedField
	Related    []RelatedField
	Aggregates []AggregateField
}

// Fields returns every field in compilation order: scalars, embedded,
// related, aggregates.
func (s Selection) Fields() []FieldSpec {
	fields := make([]FieldSpec, 0, len(s.Scalars)+len(s.Embedded)+len(s.Related)+len(s.Aggregates))
	for _, f := range s.Scalars {
		fields = append(fields, f)
	}
	for _, f := range s.Embedded {
		fields = append(fields, f)
	}
	for _, f := range s.Related {
		fields = append(fields, f)
	}
	for _, f := range s.Aggregates {
		fields = append(fields, f)
	}
	return fields
}

// IsEmpty returns true if no field is selected.
func (s Selection) IsEmpty() bool {
	return len(s.Scalars) == 0 && len(s.Embedded) == 0 && len(s.Related) == 0 && len(s.Aggregates) == 0
}

// IsAggregateOnly returns true if the selection holds aggregates and
// nothing else. Such a request compiles to one scalar subquery per
// aggregate instead of a joined record.
func (s Selection) IsAggregateOnly() bool {
	return len(s.Aggregates) > 0 && len(s.Scalars) == 0 && len(s.Embedded) == 0 && len(s.Related) == 0
}

// ObjectQueryRequest is a fully resolved, tree-shaped object query.
//
// Requests are immutable once built. Keys switch the request into batch
// mode (one result group per key); Paging limits only the outermost
// result and is rejected on nested requests.
//
// Example (the brewery request, conceptual):
//
//	ObjectQueryRequest{
//	  Type: TypeRef{Name: "Brewery", KeyColumns: []string{"id"}},
//	  Selection: Selection{
//	    Scalars: []ScalarField{{Name: "name", Column: "name"}},
//	    Related: []RelatedField{{
//	      Name:        "beers",
//	      Cardinality: Many,
//	      Join:        ColumnJoin{Pairs: []ColumnPair{{Parent: "id", Child: "brewery_id"}}},
//	      Request: &ObjectQueryRequest{
//	        Type:      TypeRef{Name: "Beer", KeyColumns: []string{"id"}},
//	        Selection: Selection{Scalars: []ScalarField{{Name: "name", Column: "name"}}},
//	      },
//	    }},
//	  },
//	}
type ObjectQueryRequest struct {
	Type TypeRef
	Selection

	// Keys requests a batch: one result group per criterion, in order.
	Keys []KeyCriterion

	// KeyCardinality decides whether each key group yields one object or
	// a list. Ignored without Keys.
	KeyCardinality Cardinality

	// Paging limits the outermost result. Nil means unpaged.
	Paging *PagingCriterion

	// Filters are ANDed together.
	Filters []FilterCriterion

	// Sort orders the instances of this request; key columns follow as a
	// tiebreaker.
	Sort []SortCriterion
}

// ScalarField reads one column.
type ScalarField struct {
	Name   string
	Column string

	// IsKey marks the field as the scope's existence marker: when its
	// column is null the enclosing object is null.
	IsKey bool
}

func (ScalarField) fieldSpec()          {}
func (f ScalarField) FieldName() string { return f.Name }

// EmbeddedField is a nested object whose fields live on the parent row.
type EmbeddedField struct {
	Name string
	Selection
}

func (EmbeddedField) fieldSpec()          {}
func (f EmbeddedField) FieldName() string { return f.Name }

// RelatedField is an object or list of objects reached through Join.
type RelatedField struct {
	Name        string
	Request     *ObjectQueryRequest
	Join        JoinSpec
	Cardinality Cardinality
}

func (RelatedField) fieldSpec()          {}
func (f RelatedField) FieldName() string { return f.Name }

// AggregateField computes Function over Column of the related table.
// An empty Column is only valid for count (COUNT(*)).
type AggregateField struct {
	Name     string
	Function AggregateFunction
	Column   string
	Distinct bool

	// Separator joins values for string_join. Defaults to ",".
	Separator string
}

func (AggregateField) fieldSpec()          {}
func (f AggregateField) FieldName() string { return f.Name }

// ColumnPair links a column on the left of a hop to one on the right.
type ColumnPair struct {
	Parent string
	Child  string
}

// ColumnJoin joins parent and child tables on equal column pairs.
type ColumnJoin struct {
	Pairs []ColumnPair
}

func (ColumnJoin) joinSpec() {}

// JoinTable joins through a junction table.
//
// ParentSide pairs are {Parent: parent column, Child: junction column};
// ChildSide pairs are {Parent: junction column, Child: child column}.
// Inverse reuses a junction configured for the opposite direction: the
// two sides swap roles.
type JoinTable struct {
	Table      string
	ParentSide []ColumnPair
	ChildSide  []ColumnPair
	Inverse    bool
}

func (JoinTable) joinSpec() {}

// Hops returns the parent→junction and junction→child pairs with Inverse
// applied, so callers never branch on direction.
func (j JoinTable) Hops() (parent, child []ColumnPair) {
	if !j.Inverse {
		return j.ParentSide, j.ChildSide
	}
	parent = make([]ColumnPair, len(j.ChildSide))
	for i, p := range j.ChildSide {
		parent[i] = ColumnPair{Parent: p.Child, Child: p.Parent}
	}
	child = make([]ColumnPair, len(j.ParentSide))
	for i, p := range j.ParentSide {
		child[i] = ColumnPair{Parent: p.Child, Child: p.Parent}
	}
	return parent, child
}

// KeyValue is one column of a batch key.
type KeyValue struct {
	Column string
	Value  ir.IRValue
}

// KeyCriterion identifies one requested instance. Column order is
// significant and must match across a batch.
type KeyCriterion []KeyValue

// Columns returns the key's column names in order.
func (k KeyCriterion) Columns() []string {
	cols := make([]string, len(k))
	for i, kv := range k {
		cols[i] = kv.Column
	}
	return cols
}

// PagingCriterion selects one page of the outermost result.
// Page is zero-based.
type PagingCriterion struct {
	Page     int
	PageSize int
}

// Offset returns the number of rows skipped. Validate rejects pages whose
// offset does not fit in an int.
func (p PagingCriterion) Offset() int {
	return p.Page * p.PageSize
}

// FilterCriterion compares Column with Value.
// Field is the request-level name, kept for error messages.
type FilterCriterion struct {
	Field    string
	Column   string
	Operator Operator
	Value    ir.IRValue
}

// SortCriterion orders by Column.
type SortCriterion struct {
	Field      string
	Column     string
	Descending bool
}
