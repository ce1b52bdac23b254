package querysql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/nestql/internal/ir"
	"github.com/roach88/nestql/internal/queryir"
)

// Statement is rendered SQL ready for execution.
// Args are database/sql driver values in placeholder order.
type Statement struct {
	SQL     string
	Args    []any
	Dialect string
}

// Render renders a statement tree for dialect d.
// All values are parameterized; only aliases and identifiers from the
// type configuration are written into the SQL text.
func Render(d Dialect, sel *Select) (Statement, error) {
	r := &renderer{dialect: d, args: []any{}}
	if err := r.writeSelect(sel); err != nil {
		return Statement{}, err
	}
	return Statement{SQL: r.b.String(), Args: r.args, Dialect: d.Name()}, nil
}

// renderer holds mutable state for one Render call. Nested selects share
// it so placeholders are numbered in text order.
type renderer struct {
	dialect Dialect
	b       strings.Builder
	args    []any
}

func (r *renderer) ident(name string) {
	r.b.WriteString(r.dialect.QuoteIdentifier(name))
}

func (r *renderer) writeSelect(sel *Select) error {
	if sel == nil {
		return fmt.Errorf("cannot render nil select")
	}
	if len(sel.Columns) == 0 {
		return fmt.Errorf("select has no columns")
	}

	r.b.WriteString("SELECT ")
	for i, col := range sel.Columns {
		if i > 0 {
			r.b.WriteString(", ")
		}
		if err := r.writeExpr(col.Expr); err != nil {
			return err
		}
		if col.Alias != "" {
			r.b.WriteString(" AS ")
			r.ident(col.Alias)
		}
	}

	r.b.WriteString(" FROM ")
	if err := r.writeSource(sel.From); err != nil {
		return err
	}

	for _, j := range sel.Joins {
		r.b.WriteString(" ")
		r.b.WriteString(string(j.Kind))
		if j.Lateral {
			r.b.WriteString(" LATERAL")
		}
		r.b.WriteString(" ")
		if err := r.writeSource(j.Source); err != nil {
			return err
		}
		r.b.WriteString(" ON ")
		if len(j.On) == 0 {
			r.b.WriteString("TRUE")
		} else if err := r.writeConditions(j.On); err != nil {
			return err
		}
	}

	if len(sel.Where) > 0 {
		r.b.WriteString(" WHERE ")
		if err := r.writeConditions(sel.Where); err != nil {
			return err
		}
	}

	if len(sel.OrderBy) > 0 {
		r.b.WriteString(" ")
		if err := r.writeOrder(sel.OrderBy); err != nil {
			return err
		}
	}

	if sel.Limit != nil {
		r.b.WriteString(" LIMIT ")
		r.b.WriteString(strconv.Itoa(*sel.Limit))
	}
	if sel.Offset != nil {
		r.b.WriteString(" OFFSET ")
		r.b.WriteString(strconv.Itoa(*sel.Offset))
	}
	return nil
}

func (r *renderer) writeOrder(terms []OrderTerm) error {
	r.b.WriteString("ORDER BY ")
	for i, term := range terms {
		if i > 0 {
			r.b.WriteString(", ")
		}
		if err := r.writeExpr(term.Expr); err != nil {
			return err
		}
		if term.Desc {
			r.b.WriteString(" DESC")
		}
	}
	return nil
}

func (r *renderer) writeSource(src Source) error {
	switch s := src.(type) {
	case TableSource:
		r.ident(s.Name)
	case SubquerySource:
		r.b.WriteString("(")
		if err := r.writeSelect(s.Select); err != nil {
			return err
		}
		r.b.WriteString(")")
	case ValuesSource:
		return r.writeValues(s)
	case nil:
		return fmt.Errorf("select has no FROM source")
	default:
		return fmt.Errorf("unsupported source type: %T", src)
	}
	r.b.WriteString(" AS ")
	r.ident(src.alias())
	return nil
}

// writeValues renders a literal key table. Dialects that cannot alias
// VALUES columns get an equivalent UNION ALL of single-row selects.
func (r *renderer) writeValues(v ValuesSource) error {
	if len(v.Rows) == 0 {
		return fmt.Errorf("values table %s has no rows", v.Alias)
	}
	keyword, ok := r.dialect.ValuesRow()

	r.b.WriteString("(")
	if ok {
		r.b.WriteString("VALUES ")
	}
	for i, row := range v.Rows {
		if len(row) != len(v.Columns) {
			return fmt.Errorf("values row %d has %d columns, want %d", i, len(row), len(v.Columns))
		}
		if i > 0 {
			if ok {
				r.b.WriteString(", ")
			} else {
				r.b.WriteString(" UNION ALL ")
			}
		}
		if ok {
			r.b.WriteString(keyword)
			r.b.WriteString("(")
		} else {
			r.b.WriteString("SELECT ")
		}
		for j, e := range row {
			if j > 0 {
				r.b.WriteString(", ")
			}
			if err := r.writeExpr(e); err != nil {
				return err
			}
			if !ok && i == 0 {
				r.b.WriteString(" AS ")
				r.ident(v.Columns[j])
			}
		}
		if ok {
			r.b.WriteString(")")
		}
	}
	r.b.WriteString(") AS ")
	r.ident(v.Alias)
	if ok {
		r.b.WriteString(" (")
		for i, c := range v.Columns {
			if i > 0 {
				r.b.WriteString(", ")
			}
			r.ident(c)
		}
		r.b.WriteString(")")
	}
	return nil
}

func (r *renderer) writeConditions(conds []Condition) error {
	for i, c := range conds {
		if i > 0 {
			r.b.WriteString(" AND ")
		}
		switch cond := c.(type) {
		case Equal:
			if err := r.writeExpr(cond.Left); err != nil {
				return err
			}
			r.b.WriteString(" = ")
			if err := r.writeExpr(cond.Right); err != nil {
				return err
			}
		case IsNull:
			if err := r.writeExpr(cond.Expr); err != nil {
				return err
			}
			r.b.WriteString(" IS NULL")
		default:
			return fmt.Errorf("unsupported condition type: %T", c)
		}
	}
	return nil
}

func (r *renderer) writeExpr(e Expr) error {
	switch expr := e.(type) {
	case ColumnRef:
		r.ident(expr.Table)
		r.b.WriteString(".")
		r.ident(expr.Column)
	case AliasRef:
		r.ident(expr.Name)
	case AllColumns:
		r.ident(expr.Table)
		r.b.WriteString(".*")
	case Param:
		return r.writeParam(expr)
	case Literal:
		r.b.WriteString(expr.SQL)
	case StringLiteral:
		writeStringLiteral(&r.b, expr.Value)
	case Aggregate:
		return r.writeAggregate(expr)
	case Subquery:
		r.b.WriteString("(")
		if err := r.writeSelect(expr.Select); err != nil {
			return err
		}
		r.b.WriteString(")")
	case RowNumber:
		r.b.WriteString("ROW_NUMBER() OVER (")
		if len(expr.Order) > 0 {
			if err := r.writeOrder(expr.Order); err != nil {
				return err
			}
		}
		r.b.WriteString(")")
	default:
		return fmt.Errorf("unsupported expression type: %T", e)
	}
	return nil
}

func (r *renderer) writeParam(p Param) error {
	arg, err := ir.ToDriver(p.Value)
	if err != nil {
		return err
	}
	r.args = append(r.args, arg)
	ph := r.dialect.Placeholder(len(r.args))
	if p.Cast == "" {
		r.b.WriteString(ph)
		return nil
	}
	r.b.WriteString("CAST(")
	r.b.WriteString(ph)
	r.b.WriteString(" AS ")
	r.b.WriteString(p.Cast)
	r.b.WriteString(")")
	return nil
}

func (r *renderer) writeAggregate(a Aggregate) error {
	switch queryir.AggregateFunction(a.Function) {
	case queryir.AggStringJoin:
		var argErr error
		r.dialect.WriteStringJoin(&r.b, func() { argErr = r.writeExpr(a.Arg) }, a.Separator)
		return argErr
	case queryir.AggCount, queryir.AggSum, queryir.AggMin, queryir.AggMax, queryir.AggAvg:
	default:
		return fmt.Errorf("unsupported aggregate function: %s", a.Function)
	}

	r.b.WriteString(strings.ToUpper(a.Function))
	r.b.WriteString("(")
	if a.Distinct {
		r.b.WriteString("DISTINCT ")
	}
	if a.Arg == nil {
		r.b.WriteString("*")
	} else if err := r.writeExpr(a.Arg); err != nil {
		return err
	}
	r.b.WriteString(")")
	return nil
}
