package querysql

import "github.com/roach88/nestql/internal/queryir"

// wrapCollection applies paging to the outermost request only.
//
// The root table is replaced by a derived table holding one page of root
// rows, filtered and ordered the way the root is. Related joins keep
// correlating on the same alias, so nested collections are never cut by
// the page size.
func (s *session) wrapCollection(sel *Select, sc *scope, req *queryir.ObjectQueryRequest, table string) error {
	order := req.Type.KeyColumns
	if len(order) == 0 {
		for _, f := range req.Scalars {
			if f.IsKey {
				order = append(order, f.Column)
			}
		}
	}
	if len(order) == 0 {
		return NewConfigurationError(sc.path, "paging needs a stable order: configure key columns for the type")
	}

	page := s.aliases.nextTableAlias()
	inner := &Select{From: TableSource{Name: table, Alias: page}}
	inner.project(AllColumns{Table: page}, "")

	conds, err := translateFilters(sc.path, page, req.Filters)
	if err != nil {
		return err
	}
	inner.Where = conds

	for _, o := range req.Sort {
		inner.OrderBy = append(inner.OrderBy, OrderTerm{Expr: ColumnRef{Table: page, Column: o.Column}, Desc: o.Descending})
	}
	for _, col := range order {
		inner.OrderBy = append(inner.OrderBy, OrderTerm{Expr: ColumnRef{Table: page, Column: col}})
	}

	limit := req.Paging.PageSize
	inner.Limit = &limit
	if offset := req.Paging.Offset(); offset > 0 {
		inner.Offset = &offset
	}

	// The root WHERE held only the root filters, now applied inside the page.
	sel.From = SubquerySource{Select: inner, Alias: sc.from}
	sel.Where = nil
	return nil
}
