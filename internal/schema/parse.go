package schema

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"

	"github.com/roach88/nestql/internal/queryir"
)

// CompileType parses a CUE value into a Type.
//
// The CUE value should be the type struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`type: Brewery: { table: "brewery", ... }`)
//	t, err := CompileType(v.LookupPath(cue.ParsePath("type.Brewery")))
//
// Field forms:
//
//	name: "name"                                   // scalar, shorthand
//	id: { column: "id", key: true }                // scalar
//	address: { embedded: { city: "city" } }        // embedded group
//	beers: { type: "Beer", many: true,
//	         join: [{ parent: "id", child: "brewery_id" }] }
//	tags: { type: "Tag", many: true,
//	        through: { table: "post_tag",
//	                   parent: [{ parent: "id", child: "post_id" }],
//	                   child:  [{ parent: "tag_id", child: "id" }] } }
func CompileType(v cue.Value) (*Type, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	t := &Type{Pos: v.Pos()}
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		t.Name = labels[len(labels)-1].String()
	}

	tableVal := v.LookupPath(cue.ParsePath("table"))
	if !tableVal.Exists() {
		return nil, &Error{Field: "type." + t.Name + ".table", Message: "table is required", Pos: v.Pos()}
	}
	table, err := tableVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	t.Table = table

	if keysVal := v.LookupPath(cue.ParsePath("keys")); keysVal.Exists() {
		t.Keys, err = parseStrings(keysVal)
		if err != nil {
			return nil, err
		}
	}

	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return nil, &Error{Field: "type." + t.Name + ".fields", Message: "at least one field is required", Pos: v.Pos()}
	}
	t.Fields, err = parseFields(fieldsVal, "type."+t.Name)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func parseFields(v cue.Value, path string) ([]Field, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var fields []Field
	for iter.Next() {
		f, err := parseField(iter.Label(), iter.Value(), path+"."+iter.Label())
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func parseField(name string, v cue.Value, path string) (Field, error) {
	f := Field{Name: name, Pos: v.Pos()}

	// Shorthand: the value is the column name.
	if column, err := v.String(); err == nil {
		f.Column = column
		return f, nil
	}

	if colVal := v.LookupPath(cue.ParsePath("column")); colVal.Exists() {
		column, err := colVal.String()
		if err != nil {
			return f, formatCUEError(err)
		}
		f.Column = column
		if keyVal := v.LookupPath(cue.ParsePath("key")); keyVal.Exists() {
			key, err := keyVal.Bool()
			if err != nil {
				return f, formatCUEError(err)
			}
			f.Key = key
		}
		return f, nil
	}

	if embVal := v.LookupPath(cue.ParsePath("embedded")); embVal.Exists() {
		fields, err := parseFields(embVal, path)
		if err != nil {
			return f, err
		}
		f.Kind = KindEmbedded
		f.Fields = fields
		return f, nil
	}

	if typeVal := v.LookupPath(cue.ParsePath("type")); typeVal.Exists() {
		rel, err := parseRelation(v, typeVal, path)
		if err != nil {
			return f, err
		}
		f.Kind = KindRelation
		f.Relation = rel
		return f, nil
	}

	return f, &Error{
		Field:   path,
		Message: "field must be a column name or a struct with column, embedded or type",
		Pos:     v.Pos(),
	}
}

func parseRelation(v, typeVal cue.Value, path string) (*Relation, error) {
	target, err := typeVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	rel := &Relation{Type: target}

	if manyVal := v.LookupPath(cue.ParsePath("many")); manyVal.Exists() {
		rel.Many, err = manyVal.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
	}

	joinVal := v.LookupPath(cue.ParsePath("join"))
	throughVal := v.LookupPath(cue.ParsePath("through"))
	switch {
	case joinVal.Exists() && throughVal.Exists():
		return nil, &Error{Field: path, Message: "relation has both join and through", Pos: v.Pos()}
	case joinVal.Exists():
		pairs, err := parsePairs(joinVal)
		if err != nil {
			return nil, err
		}
		rel.Join = queryir.ColumnJoin{Pairs: pairs}
	case throughVal.Exists():
		jt, err := parseJoinTable(throughVal)
		if err != nil {
			return nil, err
		}
		rel.Join = jt
	default:
		return nil, &Error{Field: path, Message: "relation needs join or through", Pos: v.Pos()}
	}
	return rel, nil
}

func parseJoinTable(v cue.Value) (queryir.JoinTable, error) {
	var jt queryir.JoinTable
	table, err := v.LookupPath(cue.ParsePath("table")).String()
	if err != nil {
		return jt, formatCUEError(err)
	}
	jt.Table = table
	if jt.ParentSide, err = parsePairs(v.LookupPath(cue.ParsePath("parent"))); err != nil {
		return jt, err
	}
	if jt.ChildSide, err = parsePairs(v.LookupPath(cue.ParsePath("child"))); err != nil {
		return jt, err
	}
	if invVal := v.LookupPath(cue.ParsePath("inverse")); invVal.Exists() {
		if jt.Inverse, err = invVal.Bool(); err != nil {
			return jt, formatCUEError(err)
		}
	}
	return jt, nil
}

func parsePairs(v cue.Value) ([]queryir.ColumnPair, error) {
	if !v.Exists() {
		return nil, &Error{Field: "join", Message: "column pairs are required", Pos: v.Pos()}
	}
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var pairs []queryir.ColumnPair
	for iter.Next() {
		pv := iter.Value()
		parent, err := pv.LookupPath(cue.ParsePath("parent")).String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		child, err := pv.LookupPath(cue.ParsePath("child")).String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		pairs = append(pairs, queryir.ColumnPair{Parent: parent, Child: child})
	}
	return pairs, nil
}

func parseStrings(v cue.Value) ([]string, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	positions := errors.Positions(first)
	if len(positions) > 0 {
		return &Error{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return fmt.Errorf("cue: %w", err)
}
