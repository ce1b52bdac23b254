package querysql

import "github.com/roach88/nestql/internal/queryir"

// compileAggregateRelation compiles an aggregate-only related request into
// one correlated scalar subquery per aggregate. The resulting object is
// always present: aggregates over zero rows yield COUNT 0 or SQL NULL.
func (s *session) compileAggregateRelation(sel *Select, parent *scope, name, path string, req *queryir.ObjectQueryRequest, join queryir.JoinSpec) error {
	table, err := s.resolveTable(path, req.Type.Name)
	if err != nil {
		return err
	}

	obj := &Object{}
	for _, agg := range req.Aggregates {
		sub := s.aliases.nextTableAlias()
		subSel := &Select{From: TableSource{Name: table, Alias: sub}}
		corr, err := s.correlate(path, subSel, sub, parent.from, join)
		if err != nil {
			return err
		}

		expr, err := aggregateExpr(path+"."+agg.Name, sub, agg)
		if err != nil {
			return err
		}
		subSel.project(expr, "")
		for _, c := range corr {
			subSel.Where = append(subSel.Where, Equal{Left: c.inner, Right: c.outer})
		}
		conds, err := translateFilters(path, sub, req.Filters)
		if err != nil {
			return err
		}
		subSel.Where = append(subSel.Where, conds...)

		alias := s.aliases.nextColumnAlias()
		sel.project(Subquery{Select: subSel}, alias)
		parent.exports = append(parent.exports, alias)
		obj.Members = append(obj.Members, Member{Name: agg.Name, Node: Leaf{Alias: alias}})
	}
	parent.addMember(name, obj)
	return nil
}

// aggregateExpr builds the aggregate call for one field over alias.
func aggregateExpr(path, alias string, a queryir.AggregateField) (Expr, error) {
	var arg Expr
	if a.Column != "" {
		arg = ColumnRef{Table: alias, Column: a.Column}
	}

	switch a.Function {
	case queryir.AggCount:
		if arg == nil && a.Distinct {
			return nil, NewConfigurationError(path, "distinct count needs a column")
		}
	case queryir.AggSum, queryir.AggMin, queryir.AggMax, queryir.AggAvg:
		if arg == nil {
			return nil, NewConfigurationError(path, "%s needs a column", a.Function)
		}
	case queryir.AggStringJoin:
		if arg == nil {
			return nil, NewConfigurationError(path, "%s needs a column", a.Function)
		}
		if a.Distinct {
			return nil, NewConfigurationError(path, "%s does not support distinct", a.Function)
		}
		sep := a.Separator
		if sep == "" {
			sep = ","
		}
		return Aggregate{Function: string(a.Function), Arg: arg, Separator: sep}, nil
	default:
		return nil, NewUnsupportedOperationError(path, "aggregate function", string(a.Function))
	}
	return Aggregate{Function: string(a.Function), Arg: arg, Distinct: a.Distinct}, nil
}
