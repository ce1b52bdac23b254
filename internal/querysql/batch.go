package querysql

import (
	"strconv"

	"github.com/roach88/nestql/internal/ir"
	"github.com/roach88/nestql/internal/queryir"
)

// compileBatch compiles a request with keys into one statement that
// answers every key at once.
//
// The keys become a literal table (ordinal, key columns...) that is
// left-joined to the target table. Each key row survives the join even
// when nothing matches, so the assembler always sees one group per key.
func (s *session) compileBatch(req *queryir.ObjectQueryRequest) (*Select, *Plan, error) {
	path := req.Type.Name
	table, err := s.resolveTable(path, req.Type.Name)
	if err != nil {
		return nil, nil, err
	}

	keyAlias := s.aliases.nextTableAlias()
	ordinalAlias := s.aliases.nextColumnAlias()
	keyCols := req.Keys[0].Columns()
	keyAliases := make([]string, len(keyCols))
	for i := range keyCols {
		keyAliases[i] = s.aliases.nextColumnAlias()
	}

	rows := make([][]Expr, len(req.Keys))
	for i, key := range req.Keys {
		row := make([]Expr, 0, len(key)+1)
		row = append(row, Literal{SQL: strconv.Itoa(i)})
		for _, kv := range key {
			if ir.IsNull(kv.Value) {
				return nil, nil, NewConfigurationError(path, "key %d column %q is null", i, kv.Column)
			}
			if _, err := ir.ToDriver(kv.Value); err != nil {
				return nil, nil, NewConfigurationError(path, "key %d column %q: %v", i, kv.Column, err)
			}
			row = append(row, Param{Value: kv.Value, Cast: s.dialect.KeyCast(kv.Value)})
		}
		rows[i] = row
	}

	sel := &Select{From: ValuesSource{
		Rows:    rows,
		Columns: append([]string{ordinalAlias}, keyAliases...),
		Alias:   keyAlias,
	}}
	sel.project(ColumnRef{Table: keyAlias, Column: ordinalAlias}, ordinalAlias)
	for _, a := range keyAliases {
		sel.project(ColumnRef{Table: keyAlias, Column: a}, a)
	}

	inner := s.aliases.nextTableAlias()
	innerSel := &Select{From: TableSource{Name: table, Alias: inner}}
	target := newScope(path, inner)
	if err := s.compileRecord(innerSel, target, req); err != nil {
		return nil, nil, err
	}

	corr := make([]correlation, len(keyCols))
	for i, col := range keyCols {
		corr[i] = correlation{
			inner: ColumnRef{Table: inner, Column: col},
			outer: ColumnRef{Table: keyAlias, Column: keyAliases[i]},
		}
	}
	keyScope := newScope(path, keyAlias)
	s.attach(sel, keyScope, innerSel, target, corr)

	sel.OrderBy = append([]OrderTerm{{Expr: AliasRef{Name: ordinalAlias}}}, target.orderTerms()...)

	var node Node
	if req.KeyCardinality == queryir.Many {
		node = Collection{Path: path, Element: target.object()}
	} else {
		node = Single{Path: path, Element: target.object()}
	}
	return sel, &Plan{
		Root:  node,
		Batch: &BatchPlan{OrdinalAlias: ordinalAlias, Keys: req.Keys},
	}, nil
}
