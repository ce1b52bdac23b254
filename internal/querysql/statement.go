package querysql

import "github.com/roach88/nestql/internal/ir"

// The statement tree is the compiler's output before rendering. It covers
// only the SELECT shapes the compiler emits; Render turns it into dialect
// specific SQL text.

// Expr is a value expression.
type Expr interface {
	expr()
}

// ColumnRef is a qualified column: "t1"."name".
type ColumnRef struct {
	Table  string
	Column string
}

// AliasRef is a bare output-column reference, used in ORDER BY.
type AliasRef struct {
	Name string
}

// AllColumns is "t1".*.
type AllColumns struct {
	Table string
}

// Param is a bound parameter.
type Param struct {
	Value ir.IRValue

	// Cast wraps the placeholder in CAST(... AS Cast) when non-empty.
	Cast string
}

// Literal is raw SQL text emitted as is. It never carries user input.
type Literal struct {
	SQL string
}

// StringLiteral is a quoted SQL string constant.
type StringLiteral struct {
	Value string
}

// Aggregate is an aggregate call over Arg (nil means *).
type Aggregate struct {
	Function  string
	Arg       Expr
	Distinct  bool
	Separator string
}

// Subquery is a parenthesized scalar subquery.
type Subquery struct {
	Select *Select
}

// RowNumber is ROW_NUMBER() OVER (ORDER BY Order...).
type RowNumber struct {
	Order []OrderTerm
}

func (ColumnRef) expr()     {}
func (AliasRef) expr()      {}
func (AllColumns) expr()    {}
func (Param) expr()         {}
func (Literal) expr()       {}
func (StringLiteral) expr() {}
func (Aggregate) expr()     {}
func (Subquery) expr()      {}
func (RowNumber) expr()     {}

// Condition is a boolean expression. Lists of conditions are ANDed.
type Condition interface {
	condition()
}

// Equal is Left = Right.
type Equal struct {
	Left  Expr
	Right Expr
}

// IsNull is Expr IS NULL.
type IsNull struct {
	Expr Expr
}

func (Equal) condition()  {}
func (IsNull) condition() {}

// Source is a FROM or JOIN target.
type Source interface {
	source()
	alias() string
}

// TableSource is a physical table with an alias.
type TableSource struct {
	Name  string
	Alias string
}

// SubquerySource is a derived table.
type SubquerySource struct {
	Select *Select
	Alias  string
}

// ValuesSource is a literal multi-row table with named columns.
type ValuesSource struct {
	Rows    [][]Expr
	Columns []string
	Alias   string
}

func (TableSource) source()    {}
func (SubquerySource) source() {}
func (ValuesSource) source()   {}

func (s TableSource) alias() string    { return s.Alias }
func (s SubquerySource) alias() string { return s.Alias }
func (s ValuesSource) alias() string   { return s.Alias }

// JoinKind is INNER or LEFT.
type JoinKind string

const (
	InnerJoin JoinKind = "JOIN"
	LeftJoin  JoinKind = "LEFT JOIN"
)

// Join attaches Source to the enclosing select. An empty On renders as
// ON TRUE (lateral joins carry their correlation inside the subquery).
type Join struct {
	Kind    JoinKind
	Lateral bool
	Source  Source
	On      []Condition
}

// Projection is one output column.
type Projection struct {
	Expr  Expr
	Alias string
}

// OrderTerm is one ORDER BY item.
type OrderTerm struct {
	Expr Expr
	Desc bool
}

// Select is a SELECT statement.
type Select struct {
	Columns []Projection
	From    Source
	Joins   []Join
	Where   []Condition
	OrderBy []OrderTerm
	Limit   *int
	Offset  *int
}

func (s *Select) project(e Expr, alias string) {
	s.Columns = append(s.Columns, Projection{Expr: e, Alias: alias})
}
