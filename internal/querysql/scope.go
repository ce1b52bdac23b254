package querysql

// scope accumulates the projections and assembler entries of one nesting
// level: the root, each embedded field, and each related sub-request.
//
// A scope reads its columns from one table alias. Embedded scopes share
// the alias (and the select) of their parent.
type scope struct {
	path string
	from string

	members []Member

	// marker is the alias whose nullness decides the scope's presence.
	marker string

	// keyFields are aliases of scalars flagged IsKey.
	keyFields []string

	// identity are the aliases that distinguish instances of this scope.
	identity []string

	// exports are aliases the enclosing select must re-project for the
	// assembler to see them.
	exports []string

	// columns maps a physical column to the alias already projecting it.
	columns map[string]string

	order    []OrderTerm
	children []*scope
}

func newScope(path, from string) *scope {
	return &scope{
		path:    path,
		from:    from,
		columns: make(map[string]string),
	}
}

// addLeaf registers a projected column under a request name.
func (s *scope) addLeaf(name, column, alias string, isKey bool) {
	s.members = append(s.members, Member{Name: name, Node: Leaf{Alias: alias}})
	s.exports = append(s.exports, alias)
	if _, ok := s.columns[column]; !ok {
		s.columns[column] = alias
	}
	if isKey {
		s.keyFields = append(s.keyFields, alias)
		if s.marker == "" {
			s.marker = alias
		}
	}
}

// projectHidden returns the alias of column, projecting it into sel first
// if no field of this scope reads it yet. Hidden columns are exported but
// never become members.
func (s *scope) projectHidden(sess *session, sel *Select, column string) string {
	if alias, ok := s.columns[column]; ok {
		return alias
	}
	alias := sess.aliases.nextColumnAlias()
	sel.project(ColumnRef{Table: s.from, Column: column}, alias)
	s.columns[column] = alias
	s.exports = append(s.exports, alias)
	return alias
}

// addEmbedded registers a child scope that shares this scope's row.
func (s *scope) addEmbedded(name string, child *scope) {
	s.members = append(s.members, Member{Name: name, Node: &Object{
		Members: child.members,
		Marker:  child.marker,
	}})
	s.exports = append(s.exports, child.exports...)
	s.children = append(s.children, child)
}

// addRelation registers a related child whose columns were re-projected
// into this scope's select.
func (s *scope) addRelation(name string, node Node, child *scope) {
	s.members = append(s.members, Member{Name: name, Node: node})
	s.children = append(s.children, child)
}

// addMember registers a node that needs no ordering of its own.
func (s *scope) addMember(name string, node Node) {
	s.members = append(s.members, Member{Name: name, Node: node})
}

// object returns the assembler node of this scope.
func (s *scope) object() *Object {
	return &Object{
		Members:  s.members,
		Marker:   s.marker,
		Identity: s.identity,
	}
}

// orderTerms returns this scope's sort terms, its identity as tiebreaker,
// then every child's terms depth-first.
func (s *scope) orderTerms() []OrderTerm {
	terms := append([]OrderTerm(nil), s.order...)
	seen := make(map[string]bool, len(terms))
	for _, t := range terms {
		if ref, ok := t.Expr.(AliasRef); ok {
			seen[ref.Name] = true
		}
	}
	for _, alias := range s.identity {
		if !seen[alias] {
			terms = append(terms, OrderTerm{Expr: AliasRef{Name: alias}})
			seen[alias] = true
		}
	}
	for _, child := range s.children {
		terms = append(terms, child.orderTerms()...)
	}
	return terms
}
