package querysql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/nestql/internal/ir"
	"github.com/roach88/nestql/internal/queryir"
)

// Node is one entry of an assembly plan.
//
// This is a sealed interface. The plan mirrors the request tree:
//   - Leaf: read one column by alias
//   - *Object: a map of named members, null when its marker is null
//   - Collection: an ordered list of objects grouped by identity
//   - Single: zero or one object; two distinct identities are a defect
type Node interface {
	node()
}

// Leaf reads one column of the row.
type Leaf struct {
	Alias string
}

// Member is one named entry of an Object.
type Member struct {
	Name string
	Node Node
}

// Object assembles a map from Members.
//
// A non-empty Marker names the column whose nullness makes the whole
// object null; an empty Marker means the object is always present.
// Identity names the columns that tell two instances apart when the
// object is a list element.
type Object struct {
	Members  []Member
	Marker   string
	Identity []string
}

// Collection assembles every distinct Element in first-appearance order.
// It is never null: no matching rows yield an empty list.
type Collection struct {
	Path    string
	Element *Object
}

// Single assembles at most one Element.
type Single struct {
	Path    string
	Element *Object
}

func (Leaf) node()       {}
func (*Object) node()    {}
func (Collection) node() {}
func (Single) node()     {}

// Plan is the assembly side of a compiled query.
type Plan struct {
	// Root is a Collection of root objects, or the per-key node in batch mode.
	Root Node

	// Batch is set when the request carried keys.
	Batch *BatchPlan
}

// BatchPlan routes rows to one group per requested key.
type BatchPlan struct {
	// OrdinalAlias is the column holding the key's position in Keys.
	OrdinalAlias string

	Keys []queryir.KeyCriterion
}

// Row is one flat result row keyed by column alias.
type Row map[string]any

// KeyedResult pairs a batch key with its assembled value.
type KeyedResult struct {
	Key   queryir.KeyCriterion
	Value any
}

// Assembler folds rows into nested values, one row at a time.
//
// Rows must arrive in statement order. An Assembler is single-use and not
// safe for concurrent use.
type Assembler struct {
	plan   *Plan
	root   state
	groups []state
	err    error
}

// NewAssembler creates an assembler for plan.
func NewAssembler(plan *Plan) *Assembler {
	a := &Assembler{plan: plan}
	if plan.Batch != nil {
		a.groups = make([]state, len(plan.Batch.Keys))
		for i := range a.groups {
			a.groups[i] = newState(plan.Root)
		}
		return a
	}
	a.root = newState(plan.Root)
	return a
}

// Add absorbs one row. After the first error every call returns it.
func (a *Assembler) Add(row Row) error {
	if a.err != nil {
		return a.err
	}
	if a.plan.Batch == nil {
		a.err = a.root.absorb(row)
		return a.err
	}

	i, err := ordinal(row[a.plan.Batch.OrdinalAlias])
	if err == nil && (i < 0 || i >= len(a.groups)) {
		err = fmt.Errorf("row ordinal %d outside batch of %d keys", i, len(a.groups))
	}
	if err != nil {
		a.err = err
		return err
	}
	a.err = a.groups[i].absorb(row)
	return a.err
}

// Results returns the assembled values: the root objects of a plain
// request, or one value per key (in key order) for a batch.
func (a *Assembler) Results() []any {
	if a.plan.Batch == nil {
		if list, ok := a.root.value().([]any); ok {
			return list
		}
		return []any{}
	}
	out := make([]any, len(a.groups))
	for i, g := range a.groups {
		out[i] = g.value()
	}
	return out
}

// Keyed returns batch results paired with their keys. It returns nil for
// plain requests.
func (a *Assembler) Keyed() []KeyedResult {
	if a.plan.Batch == nil {
		return nil
	}
	values := a.Results()
	out := make([]KeyedResult, len(values))
	for i, v := range values {
		out[i] = KeyedResult{Key: a.plan.Batch.Keys[i], Value: v}
	}
	return out
}

// state is the incremental interpreter of one Node.
type state interface {
	absorb(row Row) error
	value() any
}

func newState(n Node) state {
	switch node := n.(type) {
	case Leaf:
		return &leafState{alias: node.Alias}
	case *Object:
		return &objectState{obj: node}
	case Collection:
		return &collectionState{path: node.Path, element: node.Element, index: make(map[string]int)}
	case Single:
		return &singleState{path: node.Path, element: node.Element}
	default:
		panic(fmt.Sprintf("querysql: unknown plan node %T", n))
	}
}

type leafState struct {
	alias string
	seen  bool
	val   any
}

func (s *leafState) absorb(row Row) error {
	if !s.seen {
		s.seen = true
		s.val = row[s.alias]
	}
	return nil
}

func (s *leafState) value() any { return s.val }

type objectState struct {
	obj     *Object
	started bool
	absent  bool
	members []state
}

func (s *objectState) absorb(row Row) error {
	if !s.started {
		s.started = true
		if s.obj.Marker != "" && row[s.obj.Marker] == nil {
			s.absent = true
			return nil
		}
		s.members = make([]state, len(s.obj.Members))
		for i, m := range s.obj.Members {
			s.members[i] = newState(m.Node)
		}
	}
	if s.absent {
		return nil
	}
	for _, m := range s.members {
		if err := m.absorb(row); err != nil {
			return err
		}
	}
	return nil
}

func (s *objectState) value() any {
	if s.absent || !s.started {
		return nil
	}
	out := make(map[string]any, len(s.members))
	for i, m := range s.members {
		out[s.obj.Members[i].Name] = m.value()
	}
	return out
}

type collectionState struct {
	path    string
	element *Object
	index   map[string]int
	groups  []*objectState
}

func (s *collectionState) absorb(row Row) error {
	if s.element.Marker != "" && row[s.element.Marker] == nil {
		return nil
	}
	key := identityKey(row, s.element.Identity)
	i, ok := s.index[key]
	if !ok {
		i = len(s.groups)
		s.index[key] = i
		s.groups = append(s.groups, &objectState{obj: s.element})
	}
	return s.groups[i].absorb(row)
}

func (s *collectionState) value() any {
	out := make([]any, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, g.value())
	}
	return out
}

type singleState struct {
	path    string
	element *Object
	key     string
	group   *objectState
}

func (s *singleState) absorb(row Row) error {
	if s.element.Marker != "" && row[s.element.Marker] == nil {
		return nil
	}
	key := identityKey(row, s.element.Identity)
	if s.group == nil {
		s.key = key
		s.group = &objectState{obj: s.element}
	} else if key != s.key {
		return NewAssemblyInvariantError(s.path, describeKey(s.key), describeKey(key))
	}
	return s.group.absorb(row)
}

func (s *singleState) value() any {
	if s.group == nil {
		return nil
	}
	return s.group.value()
}

// identityKey encodes the identity columns of row. The type is part of
// the key so that 1 and "1" stay distinct.
func identityKey(row Row, aliases []string) string {
	var b strings.Builder
	for _, alias := range aliases {
		fmt.Fprintf(&b, "%T:%v\x00", row[alias], row[alias])
	}
	return b.String()
}

func describeKey(key string) string {
	return strings.TrimSuffix(strings.ReplaceAll(key, "\x00", ", "), ", ")
}

// ordinal normalizes the key position column across drivers.
func ordinal(v any) (int, error) {
	switch n := v.(type) {
	case int64:
		return int(n), nil
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case float64:
		return int(n), nil
	case []byte:
		return strconv.Atoi(string(n))
	case string:
		return strconv.Atoi(n)
	default:
		return 0, fmt.Errorf("row ordinal has unexpected type %T", v)
	}
}

// Describe renders a plan node as a value for diagnostics output.
func Describe(n Node) ir.IRObject {
	switch node := n.(type) {
	case Leaf:
		return ir.IRObject{"kind": ir.IRString("leaf"), "alias": ir.IRString(node.Alias)}
	case *Object:
		members := make(ir.IRArray, len(node.Members))
		for i, m := range node.Members {
			members[i] = ir.IRObject{"name": ir.IRString(m.Name), "node": Describe(m.Node)}
		}
		obj := ir.IRObject{
			"kind":     ir.IRString("object"),
			"members":  members,
			"identity": stringArray(node.Identity),
		}
		if node.Marker != "" {
			obj["marker"] = ir.IRString(node.Marker)
		}
		return obj
	case Collection:
		return ir.IRObject{"kind": ir.IRString("collection"), "path": ir.IRString(node.Path), "element": Describe(node.Element)}
	case Single:
		return ir.IRObject{"kind": ir.IRString("single"), "path": ir.IRString(node.Path), "element": Describe(node.Element)}
	default:
		return ir.IRObject{"kind": ir.IRString(fmt.Sprintf("%T", n))}
	}
}

func stringArray(ss []string) ir.IRArray {
	out := make(ir.IRArray, len(ss))
	for i, s := range ss {
		out[i] = ir.IRString(s)
	}
	return out
}
