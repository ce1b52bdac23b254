package querysql

import (
	"github.com/roach88/nestql/internal/ir"
	"github.com/roach88/nestql/internal/queryir"
)

// translateFilter turns one filter criterion into a condition against the
// table alias.
//
// Only equality is translated. Every other operator fails with an
// UnsupportedOperationError; new operators need an explicit case here.
// Values are always parameterized; equality with null becomes IS NULL.
func translateFilter(path, alias string, f queryir.FilterCriterion) (Condition, error) {
	if f.Column == "" {
		return nil, NewConfigurationError(path, "filter on %q has no column", f.Field)
	}
	col := ColumnRef{Table: alias, Column: f.Column}

	switch f.Operator {
	case queryir.OpEq:
		if ir.IsNull(f.Value) {
			return IsNull{Expr: col}, nil
		}
		if _, err := ir.ToDriver(f.Value); err != nil {
			return nil, NewConfigurationError(path, "filter on %q: %v", f.Field, err)
		}
		return Equal{Left: col, Right: Param{Value: f.Value}}, nil
	default:
		return nil, NewUnsupportedOperationError(path, "filter operator", string(f.Operator))
	}
}

// translateFilters translates every criterion; the results are ANDed by
// the enclosing WHERE.
func translateFilters(path, alias string, filters []queryir.FilterCriterion) ([]Condition, error) {
	conds := make([]Condition, 0, len(filters))
	for _, f := range filters {
		c, err := translateFilter(path, alias, f)
		if err != nil {
			return nil, err
		}
		conds = append(conds, c)
	}
	return conds, nil
}
