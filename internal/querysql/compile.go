package querysql

import (
	"fmt"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/roach88/nestql/internal/ir"
	"github.com/roach88/nestql/internal/queryir"
)

// TableResolver maps a type name to its physical table.
// Implementations must be safe for concurrent reads.
type TableResolver interface {
	ResolveTable(typeName string) (string, error)
}

// StaticTables is a TableResolver backed by a fixed map.
type StaticTables map[string]string

// ResolveTable implements TableResolver.
func (t StaticTables) ResolveTable(typeName string) (string, error) {
	table, ok := t[typeName]
	if !ok || table == "" {
		return "", fmt.Errorf("no table configured for type %q", typeName)
	}
	return table, nil
}

// Compiler compiles object query requests into one statement each.
//
// A Compiler holds no per-request state; every Compile call runs in its
// own session, so one Compiler may be shared between goroutines.
type Compiler struct {
	dialect Dialect
	tables  TableResolver
	ids     SessionIDGenerator
	logger  *zap.Logger
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithLogger sets the logger used for compile diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(c *Compiler) {
		c.logger = l
	}
}

// WithSessionIDGenerator replaces the UUIDv7 session id generator.
func WithSessionIDGenerator(g SessionIDGenerator) Option {
	return func(c *Compiler) {
		c.ids = g
	}
}

// NewCompiler creates a compiler for dialect d.
func NewCompiler(d Dialect, tables TableResolver, opts ...Option) *Compiler {
	c := &Compiler{
		dialect: d,
		tables:  tables,
		ids:     UUIDv7Generator{},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dialect returns the dialect the compiler renders for.
func (c *Compiler) Dialect() Dialect { return c.dialect }

// CompiledQuery is the result of one Compile call. It is consumed once:
// execute Statement, feed every row to an assembler from NewAssembler.
type CompiledQuery struct {
	Statement   Statement
	Plan        *Plan
	Tree        *Select
	SessionID   string
	Fingerprint string
}

// NewAssembler returns a fresh assembler for the query's rows.
func (q *CompiledQuery) NewAssembler() *Assembler {
	return NewAssembler(q.Plan)
}

// Compile turns req into a single statement and its assembly plan.
//
// The request is validated first; structural defects surface as a
// ConfigurationError naming the first defect. Compile performs no I/O.
func (c *Compiler) Compile(req *queryir.ObjectQueryRequest) (*CompiledQuery, error) {
	if errs := queryir.Validate(req); len(errs) > 0 {
		first := errs[0]
		err := NewConfigurationError(first.Path, "%s", first.Message)
		err.Details = map[string]string{
			"code":  first.Code,
			"count": strconv.Itoa(len(errs)),
		}
		return nil, err
	}

	sess := newSession(c.ids.Generate(), c.dialect, c.tables)

	var (
		sel  *Select
		plan *Plan
		err  error
	)
	if len(req.Keys) > 0 {
		sel, plan, err = sess.compileBatch(req)
	} else {
		sel, plan, err = sess.compileRoot(req)
	}
	if err != nil {
		return nil, err
	}

	stmt, err := Render(c.dialect, sel)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", req.Type.Name, err)
	}
	fp, err := ir.StatementFingerprint(stmt.Dialect, stmt.SQL, stmt.Args)
	if err != nil {
		return nil, err
	}

	columns, tables := sess.aliases.issued()
	c.logger.Debug("compiled object query",
		zap.String("session", sess.id),
		zap.String("type", req.Type.Name),
		zap.String("dialect", c.dialect.Name()),
		zap.Int("columns", columns),
		zap.Int("tables", tables),
		zap.Int("keys", len(req.Keys)),
		zap.String("fingerprint", fp))

	return &CompiledQuery{
		Statement:   stmt,
		Plan:        plan,
		Tree:        sel,
		SessionID:   sess.id,
		Fingerprint: fp,
	}, nil
}

func (s *session) resolveTable(path, typeName string) (string, error) {
	table, err := s.tables.ResolveTable(typeName)
	if err != nil {
		return "", NewConfigurationError(path, "resolve table: %v", err)
	}
	if table == "" {
		return "", NewConfigurationError(path, "type %q resolved to an empty table name", typeName)
	}
	return table, nil
}

// compileRoot compiles a plain (non-batch) request. Root rows always
// exist, so the root object carries no marker.
func (s *session) compileRoot(req *queryir.ObjectQueryRequest) (*Select, *Plan, error) {
	path := req.Type.Name
	table, err := s.resolveTable(path, req.Type.Name)
	if err != nil {
		return nil, nil, err
	}

	alias := s.aliases.nextTableAlias()
	sel := &Select{From: TableSource{Name: table, Alias: alias}}
	sc := newScope(path, alias)
	if err := s.compileRecord(sel, sc, req); err != nil {
		return nil, nil, err
	}
	root := sc.object()
	root.Marker = ""

	if req.Paging != nil {
		if err := s.wrapCollection(sel, sc, req, table); err != nil {
			return nil, nil, err
		}
	}
	sel.OrderBy = sc.orderTerms()
	return sel, &Plan{Root: Collection{Path: path, Element: root}}, nil
}

// compileRecord compiles the selection, identity, sort and filters of one
// request into sel, reading from sc.from.
func (s *session) compileRecord(sel *Select, sc *scope, req *queryir.ObjectQueryRequest) error {
	if err := s.compileSelection(sel, sc, req.Selection); err != nil {
		return err
	}
	if err := s.projectIdentity(sel, sc, req.Type); err != nil {
		return err
	}

	for _, o := range req.Sort {
		alias := sc.projectHidden(s, sel, o.Column)
		sc.order = append(sc.order, OrderTerm{Expr: AliasRef{Name: alias}, Desc: o.Descending})
	}

	conds, err := translateFilters(sc.path, sc.from, req.Filters)
	if err != nil {
		return err
	}
	sel.Where = append(sel.Where, conds...)
	return nil
}

func (s *session) compileSelection(sel *Select, sc *scope, fields queryir.Selection) error {
	for _, f := range fields.Scalars {
		alias := s.aliases.nextColumnAlias()
		sel.project(ColumnRef{Table: sc.from, Column: f.Column}, alias)
		sc.addLeaf(f.Name, f.Column, alias, f.IsKey)
	}

	// Embedded fields read the same row: same select, same table alias.
	for _, f := range fields.Embedded {
		child := newScope(sc.path+"."+f.Name, sc.from)
		if err := s.compileSelection(sel, child, f.Selection); err != nil {
			return err
		}
		sc.addEmbedded(f.Name, child)
	}

	for _, f := range fields.Related {
		if err := s.compileRelated(sel, sc, f); err != nil {
			return err
		}
	}
	return nil
}

// projectIdentity makes sure the type's key columns are projected and
// records them as the scope identity. Without key columns the IsKey
// scalars are used; without those, rows are numbered.
func (s *session) projectIdentity(sel *Select, sc *scope, t queryir.TypeRef) error {
	for _, col := range t.KeyColumns {
		sc.identity = append(sc.identity, sc.projectHidden(s, sel, col))
	}
	if len(sc.identity) == 0 {
		sc.identity = append(sc.identity, sc.keyFields...)
	}
	if len(sc.identity) == 0 {
		if err := s.numberRows(sel, sc); err != nil {
			return err
		}
	}
	if sc.marker == "" {
		sc.marker = sc.identity[0]
	}
	return nil
}

// numberRows reads the scope's table through a derived table that adds a
// row number, and makes that number the scope identity. Two rows with
// equal selected values stay two instances.
func (s *session) numberRows(sel *Select, sc *scope) error {
	src, ok := sel.From.(TableSource)
	if !ok || src.Alias != sc.from {
		return NewConfigurationError(sc.path, "instances cannot be told apart: the type has no key columns")
	}

	base := s.aliases.nextTableAlias()
	rowColumn := s.aliases.nextColumnAlias()

	columns := make([]string, 0, len(sc.columns))
	for col := range sc.columns {
		columns = append(columns, col)
	}
	sort.Strings(columns)
	order := make([]OrderTerm, len(columns))
	for i, col := range columns {
		order[i] = OrderTerm{Expr: ColumnRef{Table: base, Column: col}}
	}

	numbered := &Select{From: TableSource{Name: src.Name, Alias: base}}
	numbered.project(AllColumns{Table: base}, "")
	numbered.project(RowNumber{Order: order}, rowColumn)
	sel.From = SubquerySource{Select: numbered, Alias: sc.from}

	sc.identity = []string{sc.projectHidden(s, sel, rowColumn)}
	return nil
}

func (s *session) compileRelated(sel *Select, parent *scope, f queryir.RelatedField) error {
	path := parent.path + "." + f.Name
	req := f.Request
	join := normalizeJoin(f.Join)

	if req.IsAggregateOnly() {
		return s.compileAggregateRelation(sel, parent, f.Name, path, req, join)
	}

	table, err := s.resolveTable(path, req.Type.Name)
	if err != nil {
		return err
	}

	inner := s.aliases.nextTableAlias()
	innerSel := &Select{From: TableSource{Name: table, Alias: inner}}
	corr, err := s.correlate(path, innerSel, inner, parent.from, join)
	if err != nil {
		return err
	}

	child := newScope(path, inner)
	if err := s.compileRecord(innerSel, child, req); err != nil {
		return err
	}
	s.attach(sel, parent, innerSel, child, corr)

	var node Node
	if f.Cardinality == queryir.Many {
		node = Collection{Path: path, Element: child.object()}
	} else {
		node = Single{Path: path, Element: child.object()}
	}
	parent.addRelation(f.Name, node, child)
	return nil
}

// correlation is one equality between a column of an inner select and an
// expression of the enclosing select.
type correlation struct {
	inner Expr
	outer Expr
}

func normalizeJoin(j queryir.JoinSpec) queryir.JoinSpec {
	switch join := j.(type) {
	case *queryir.ColumnJoin:
		return *join
	case *queryir.JoinTable:
		return *join
	default:
		return j
	}
}

// correlate returns the conditions linking rows of inner (the related
// table) to rows of outer. A join table adds an inner join to innerSel
// and correlates on the junction's parent-side columns.
func (s *session) correlate(path string, innerSel *Select, inner, outer string, join queryir.JoinSpec) ([]correlation, error) {
	switch j := join.(type) {
	case queryir.ColumnJoin:
		corr := make([]correlation, len(j.Pairs))
		for i, p := range j.Pairs {
			corr[i] = correlation{
				inner: ColumnRef{Table: inner, Column: p.Child},
				outer: ColumnRef{Table: outer, Column: p.Parent},
			}
		}
		return corr, nil

	case queryir.JoinTable:
		parentHop, childHop := j.Hops()
		junction := s.aliases.nextTableAlias()
		on := make([]Condition, len(childHop))
		for i, p := range childHop {
			on[i] = Equal{
				Left:  ColumnRef{Table: junction, Column: p.Parent},
				Right: ColumnRef{Table: inner, Column: p.Child},
			}
		}
		innerSel.Joins = append(innerSel.Joins, Join{
			Kind:   InnerJoin,
			Source: TableSource{Name: j.Table, Alias: junction},
			On:     on,
		})
		corr := make([]correlation, len(parentHop))
		for i, p := range parentHop {
			corr[i] = correlation{
				inner: ColumnRef{Table: junction, Column: p.Child},
				outer: ColumnRef{Table: outer, Column: p.Parent},
			}
		}
		return corr, nil

	default:
		return nil, NewConfigurationError(path, "unsupported join %T", join)
	}
}

// attach left-joins innerSel to sel and re-projects the child's exports
// so the enclosing select (and the assembler) sees them under the same
// aliases.
//
// With lateral support the correlation moves into the inner WHERE and
// the join is ON TRUE. Without it the correlated inner columns are
// projected out of the derived table and matched in the ON clause.
func (s *session) attach(sel *Select, parent *scope, innerSel *Select, child *scope, corr []correlation) {
	derived := s.aliases.nextTableAlias()
	join := Join{Kind: LeftJoin, Source: SubquerySource{Select: innerSel, Alias: derived}}

	if s.dialect.SupportsLateral() {
		where := make([]Condition, 0, len(corr)+len(innerSel.Where))
		for _, c := range corr {
			where = append(where, Equal{Left: c.inner, Right: c.outer})
		}
		innerSel.Where = append(where, innerSel.Where...)
		join.Lateral = true
	} else {
		for _, c := range corr {
			alias := s.aliases.nextColumnAlias()
			innerSel.project(c.inner, alias)
			join.On = append(join.On, Equal{Left: ColumnRef{Table: derived, Column: alias}, Right: c.outer})
		}
	}
	sel.Joins = append(sel.Joins, join)

	for _, e := range child.exports {
		sel.project(ColumnRef{Table: derived, Column: e}, e)
		parent.exports = append(parent.exports, e)
	}
}
