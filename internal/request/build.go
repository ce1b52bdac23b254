package request

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/nestql/internal/ir"
	"github.com/roach88/nestql/internal/queryir"
	"github.com/roach88/nestql/internal/querysql"
	"github.com/roach88/nestql/internal/schema"
)

// Build resolves doc against reg into a request the compiler accepts.
//
// Field names are mapped to columns, relations to their configured joins
// and filter values to IR literals. Resolution failures are reported as
// configuration errors located at the document path.
func Build(reg *schema.Registry, doc *Document) (*queryir.ObjectQueryRequest, error) {
	root, ok := reg.Type(doc.Type)
	if !ok {
		return nil, querysql.NewConfigurationError(doc.Type, "unknown type %q", doc.Type)
	}
	b := &builder{reg: reg}
	req, err := b.request(root.Name, root, doc.Select, doc.Filter, doc.Sort)
	if err != nil {
		return nil, err
	}

	if len(doc.Keys) > 0 {
		if req.Keys, err = b.keys(root.Name, root, doc.Keys); err != nil {
			return nil, err
		}
	}
	switch strings.ToLower(doc.Cardinality) {
	case "", "one":
		req.KeyCardinality = queryir.One
	case "many":
		req.KeyCardinality = queryir.Many
	default:
		return nil, querysql.NewConfigurationError(root.Name, "cardinality must be one or many, got %q", doc.Cardinality)
	}
	if doc.Page != nil {
		req.Paging = &queryir.PagingCriterion{Page: doc.Page.Page, PageSize: doc.Page.Size}
	}
	return req, nil
}

type builder struct {
	reg *schema.Registry
}

func (b *builder) request(path string, t *schema.Type, items []Item, filter map[string]any, order []string) (*queryir.ObjectQueryRequest, error) {
	sel, err := b.selection(path, t.Name, t.Fields, items)
	if err != nil {
		return nil, err
	}
	req := &queryir.ObjectQueryRequest{Type: t.Ref(), Selection: sel}
	if req.Filters, err = filters(path, t, filter); err != nil {
		return nil, err
	}
	if req.Sort, err = sortCriteria(path, t, order); err != nil {
		return nil, err
	}
	return req, nil
}

func (b *builder) selection(path, typeName string, fields []schema.Field, items []Item) (queryir.Selection, error) {
	var sel queryir.Selection
	for _, item := range items {
		p := path + "." + item.Name
		fieldName := item.Name
		if item.Sub != nil && item.Sub.Field != "" {
			fieldName = item.Sub.Field
		}
		f, ok := find(fields, fieldName)
		if !ok {
			return sel, querysql.NewConfigurationError(p, "type %s has no field %q", typeName, fieldName)
		}

		switch f.Kind {
		case schema.KindScalar:
			if item.Sub != nil {
				return sel, querysql.NewConfigurationError(p, "scalar field takes no selection")
			}
			sel.Scalars = append(sel.Scalars, queryir.ScalarField{Name: item.Name, Column: f.Column, IsKey: f.Key})

		case schema.KindEmbedded:
			nested := allFields(f.Fields)
			if item.Sub != nil {
				if item.Sub.Filter != nil || item.Sub.Sort != nil || item.Sub.Aggregate != nil {
					return sel, querysql.NewConfigurationError(p, "embedded field takes only a selection")
				}
				nested = item.Sub.Select
			}
			inner, err := b.selection(p, typeName, f.Fields, nested)
			if err != nil {
				return sel, err
			}
			sel.Embedded = append(sel.Embedded, queryir.EmbeddedField{Name: item.Name, Selection: inner})

		case schema.KindRelation:
			related, err := b.related(p, item, f)
			if err != nil {
				return sel, err
			}
			sel.Related = append(sel.Related, related)
		}
	}
	return sel, nil
}

func (b *builder) related(path string, item Item, f schema.Field) (queryir.RelatedField, error) {
	rf := queryir.RelatedField{Name: item.Name, Join: f.Relation.Join}
	if item.Sub == nil {
		return rf, querysql.NewConfigurationError(path, "relation needs a selection")
	}
	target, ok := b.reg.Type(f.Relation.Type)
	if !ok {
		return rf, querysql.NewConfigurationError(path, "unknown type %q", f.Relation.Type)
	}

	if len(item.Sub.Aggregate) > 0 {
		if len(item.Sub.Select) > 0 {
			return rf, querysql.NewConfigurationError(path, "aggregates cannot be mixed with other fields")
		}
		req, err := aggregateRequest(path, target, item.Sub)
		if err != nil {
			return rf, err
		}
		rf.Request = req
		rf.Cardinality = queryir.One
		return rf, nil
	}

	req, err := b.request(path, target, item.Sub.Select, item.Sub.Filter, item.Sub.Sort)
	if err != nil {
		return rf, err
	}
	rf.Request = req
	if f.Relation.Many {
		rf.Cardinality = queryir.Many
	}
	return rf, nil
}

func aggregateRequest(path string, t *schema.Type, sub *Subselect) (*queryir.ObjectQueryRequest, error) {
	req := &queryir.ObjectQueryRequest{Type: t.Ref()}
	for _, a := range sub.Aggregate {
		agg := queryir.AggregateField{
			Name:      a.Name,
			Function:  queryir.AggregateFunction(a.Fn),
			Distinct:  a.Distinct,
			Separator: a.Separator,
		}
		if a.Field != "" {
			column, err := resolveColumn(path+"."+a.Name, t, a.Field)
			if err != nil {
				return nil, err
			}
			agg.Column = column
		}
		req.Aggregates = append(req.Aggregates, agg)
	}
	var err error
	if req.Filters, err = filters(path, t, sub.Filter); err != nil {
		return nil, err
	}
	return req, nil
}

func (b *builder) keys(path string, t *schema.Type, keys []map[string]any) ([]queryir.KeyCriterion, error) {
	out := make([]queryir.KeyCriterion, len(keys))
	for i, key := range keys {
		p := fmt.Sprintf("%s.keys[%d]", path, i)
		if len(key) == 0 {
			return nil, querysql.NewConfigurationError(p, "key has no fields")
		}
		names := sortedNames(key)
		crit := make(queryir.KeyCriterion, len(names))
		for j, name := range names {
			column, err := resolveColumn(p, t, name)
			if err != nil {
				return nil, err
			}
			value, err := ir.FromAny(key[name])
			if err != nil {
				return nil, querysql.NewConfigurationError(p+"."+name, "invalid key value: %v", err)
			}
			crit[j] = queryir.KeyValue{Column: column, Value: value}
		}
		out[i] = crit
	}
	return out, nil
}

// filters resolves a filter mapping. Each entry is "field: value" (eq) or
// "field: {op: value}". Entries are ordered by field name.
func filters(path string, t *schema.Type, filter map[string]any) ([]queryir.FilterCriterion, error) {
	var out []queryir.FilterCriterion
	for _, name := range sortedNames(filter) {
		p := path + "." + name
		column, err := resolveColumn(p, t, name)
		if err != nil {
			return nil, err
		}
		op, raw := queryir.OpEq, filter[name]
		if m, ok := raw.(map[string]any); ok {
			if len(m) != 1 {
				return nil, querysql.NewConfigurationError(p, "filter must map one operator to a value")
			}
			for k, v := range m {
				op, raw = queryir.Operator(k), v
			}
		}
		value, err := ir.FromAny(raw)
		if err != nil {
			return nil, querysql.NewConfigurationError(p, "invalid filter value: %v", err)
		}
		out = append(out, queryir.FilterCriterion{Field: name, Column: column, Operator: op, Value: value})
	}
	return out, nil
}

// sortCriteria resolves "field" (ascending) and "-field" (descending).
func sortCriteria(path string, t *schema.Type, order []string) ([]queryir.SortCriterion, error) {
	var out []queryir.SortCriterion
	for _, entry := range order {
		name, desc := strings.CutPrefix(entry, "-")
		column, err := resolveColumn(path+"."+name, t, name)
		if err != nil {
			return nil, err
		}
		out = append(out, queryir.SortCriterion{Field: name, Column: column, Descending: desc})
	}
	return out, nil
}

// resolveColumn maps a scalar field name, dotted through embedded groups
// ("address.city"), to its column.
func resolveColumn(path string, t *schema.Type, name string) (string, error) {
	fields := t.Fields
	parts := strings.Split(name, ".")
	for i, part := range parts {
		f, ok := find(fields, part)
		if !ok {
			return "", querysql.NewConfigurationError(path, "type %s has no field %q", t.Name, name)
		}
		if i == len(parts)-1 {
			if f.Kind != schema.KindScalar {
				return "", querysql.NewConfigurationError(path, "field %q is not a scalar", name)
			}
			return f.Column, nil
		}
		if f.Kind != schema.KindEmbedded {
			return "", querysql.NewConfigurationError(path, "field %q is not an embedded group", part)
		}
		fields = f.Fields
	}
	return "", querysql.NewConfigurationError(path, "empty field name")
}

func find(fields []schema.Field, name string) (schema.Field, bool) {
	for _, f := range fields {
		if f.Name == name {
			return f, true
		}
	}
	return schema.Field{}, false
}

// allFields selects every scalar and embedded field of a group.
func allFields(fields []schema.Field) []Item {
	var items []Item
	for _, f := range fields {
		if f.Kind != schema.KindRelation {
			items = append(items, Item{Name: f.Name})
		}
	}
	return items
}

func sortedNames(m map[string]any) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
