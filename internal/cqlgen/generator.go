// Package cqlgen lowers a simplified cell tree into a cqlir command tree
// and renders it as CQL text.
//
// Lowering is driven by a backward required-slot analysis: the view block
// decides which member slots and "_from" indicators it reads, and each
// block below projects only what its parent needs plus the key slots it
// joins on.
package cqlgen

import (
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/roach88/viewgen/internal/boolexpr"
	"github.com/roach88/viewgen/internal/cell"
	"github.com/roach88/viewgen/internal/cqlir"
	"github.com/roach88/viewgen/internal/ir"
	"github.com/roach88/viewgen/internal/metadata"
	"github.com/roach88/viewgen/internal/viewgen"
)

// viewAlias is the alias the view block reads its input under.
const viewAlias = "T"

// GeneratedQuery is the generated view of one extent.
type GeneratedQuery struct {
	Extent string
	OfType string // empty unless the view is restricted to a type

	Block *cqlir.View
	CQL   string
}

// Generator lowers one cell tree of a context.
type Generator struct {
	ctx    *viewgen.Context
	tree   *viewgen.Node
	ofType *metadata.EntityType
	logger *slog.Logger

	cols     []column
	byName   map[string]column
	cells    []*cell.Cell
	present  map[int]bool
	required map[string]bool
}

// Option configures a Generator.
type Option func(*Generator)

// OfType restricts a query view of an entity set to t and its subtypes.
func OfType(t *metadata.EntityType) Option {
	return func(g *Generator) { g.ofType = t }
}

// WithLogger sets the generator's logger. The context's logger is used
// otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) { g.logger = l }
}

// New returns a generator for tree, a rewriting produced by ctx.
func New(ctx *viewgen.Context, tree *viewgen.Node, opts ...Option) *Generator {
	g := &Generator{ctx: ctx, tree: tree, logger: ctx.Logger()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// column is a column flowing through the blocks: a member slot of the view
// (slot >= 0) or the indicator of one cell.
type column struct {
	name string
	slot int
	cell int
	key  bool
}

func (c column) isFlag() bool { return c.slot < 0 }

func flagName(n int) string { return "_from" + strconv.Itoa(n) }

// Generate builds the command tree and its text.
func (g *Generator) Generate() (*GeneratedQuery, error) {
	if g.tree == nil {
		return nil, errors.AssertionFailedf("no cell tree for %s", g.ctx.Extent().Name)
	}
	defer g.ctx.Metrics().Start(viewgen.PhaseCqlGeneration)()

	g.setup()
	view, err := g.view()
	if err != nil {
		return nil, err
	}
	input, err := g.lower(g.tree, g.required, false)
	if err != nil {
		return nil, errors.Wrapf(err, "lower %s", g.ctx.Extent().Name)
	}
	view.Input = input

	if res := cqlir.Validate(view); !res.Valid {
		return nil, errors.AssertionFailedf("invalid command tree for %s: %s",
			g.ctx.Extent().Name, strings.Join(res.Problems, "; "))
	}
	text, err := Render(view)
	if err != nil {
		return nil, errors.Wrapf(err, "render %s", g.ctx.Extent().Name)
	}
	q := &GeneratedQuery{Extent: g.ctx.Extent().Name, Block: view, CQL: text}
	if g.ofType != nil {
		q.OfType = g.ofType.Name
	}
	g.logger.Debug("view lowered", "extent", q.Extent, "of_type", q.OfType,
		"tree", g.tree.String(), "columns", len(g.required))
	return q, nil
}

func (g *Generator) setup() {
	g.byName = map[string]column{}
	g.required = map[string]bool{}
	g.present = map[int]bool{}
	for i, m := range g.ctx.Members() {
		c := column{name: m.Alias(), slot: i, cell: -1, key: m.IsKey()}
		g.cols = append(g.cols, c)
		g.byName[c.name] = c
	}
	nums := g.tree.Cells()
	for _, n := range nums {
		c := column{name: flagName(n), slot: -1, cell: n}
		g.cols = append(g.cols, c)
		g.byName[c.name] = c
	}
	for _, cl := range g.ctx.Cells() {
		if slices.Contains(nums, cl.Number) {
			g.cells = append(g.cells, cl)
		}
	}
	for _, n := range alwaysPresent(g.tree) {
		g.present[n] = true
	}
}

// alwaysPresent returns the cells every row of n comes from: the cell of a
// single-cell leaf, every input of an inner join, the driver of a left
// join.
func alwaysPresent(n *viewgen.Node) []int {
	switch n.Op {
	case viewgen.OpLeaf:
		if len(n.Wrapper.Cells) == 1 {
			return n.Wrapper.Numbers()
		}
		return nil
	case viewgen.OpIJ:
		var out []int
		for _, c := range n.Children {
			out = append(out, alwaysPresent(c)...)
		}
		return out
	case viewgen.OpLOJ, viewgen.OpLASJ:
		return alwaysPresent(n.Children[0])
	default:
		return nil
	}
}

// provided returns the columns the subtree n can produce.
func (g *Generator) provided(n *viewgen.Node) map[string]bool {
	out := map[string]bool{}
	for _, w := range n.Wrappers() {
		for i, s := range w.Right.Slots {
			if s != nil {
				out[g.cols[i].name] = true
			}
		}
		for _, num := range w.Numbers() {
			out[flagName(num)] = true
		}
	}
	return out
}

// view builds the top block, recording the columns it reads in
// g.required.
func (g *Generator) view() (*cqlir.View, error) {
	e := g.ctx.Extent()
	v := &cqlir.View{Extent: e.Name, Alias: viewAlias}
	provided := g.provided(g.tree)

	switch e.Kind {
	case metadata.EntitySet:
		value, filter, err := g.entityValue(provided)
		if err != nil {
			return nil, err
		}
		v.Value, v.Filter = value, filter
	case metadata.AssociationSet:
		con := cqlir.Construct{Type: e.Name}
		for i, m := range g.ctx.Members() {
			con.Fields = append(con.Fields, cqlir.Column{Name: m.Name(), Expr: g.slotExpr(i, provided)})
		}
		v.Value = con
	case metadata.Table:
		for i, m := range g.ctx.Members() {
			v.Columns = append(v.Columns, cqlir.Column{Name: m.Name(), Expr: g.slotExpr(i, provided)})
		}
	}
	return v, nil
}

// entityValue builds the constructor of an entity set's rows: a plain
// constructor without a hierarchy, else a CASE over the concrete types,
// most derived first.
func (g *Generator) entityValue(provided map[string]bool) (cqlir.Expr, cqlir.Predicate, error) {
	e := g.ctx.Extent()
	types := e.Type.ConcreteTypes()
	if len(types) == 0 {
		return nil, nil, errors.AssertionFailedf("entity set %s has no concrete type", e.Name)
	}
	if len(e.Type.Root().ConcreteTypes()) == 1 {
		return g.construct(types[0], provided), nil, nil
	}
	slices.SortStableFunc(types, func(a, b *metadata.EntityType) int { return b.Depth() - a.Depth() })

	var whens []cqlir.When
	var wanted []cqlir.Predicate
	for _, t := range types {
		cond := g.typeCondition(t)
		if boolexpr.IsFalse(cond) {
			continue
		}
		in := g.ofType == nil || t.IsSubtypeOf(g.ofType)
		if in {
			wanted = append(wanted, g.flagPredicate(cond))
		}
		if boolexpr.IsTrue(cond) {
			if len(whens) == 0 && in {
				return g.construct(t, provided), nil, nil
			}
			if in {
				return cqlir.Case{Whens: whens, Else: g.construct(t, provided)}, g.ofTypeFilter(wanted), nil
			}
			break
		}
		if in {
			whens = append(whens, cqlir.When{Cond: g.flagPredicate(cond), Then: g.construct(t, provided)})
		}
	}
	if len(whens) == 0 {
		return nil, nil, errors.AssertionFailedf("no type of %s can be constructed from %s", e.Name, g.tree)
	}
	return cqlir.Case{Whens: whens}, g.ofTypeFilter(wanted), nil
}

func (g *Generator) ofTypeFilter(wanted []cqlir.Predicate) cqlir.Predicate {
	if g.ofType == nil {
		return nil
	}
	if len(wanted) == 1 {
		return wanted[0]
	}
	return cqlir.Or{Predicates: wanted}
}

// construct builds an instance of t from the view's slots.
func (g *Generator) construct(t *metadata.EntityType, provided map[string]bool) cqlir.Construct {
	con := cqlir.Construct{Type: t.Name}
	for _, p := range t.AllProperties() {
		i := g.memberIndex(p.Name)
		var x cqlir.Expr = cqlir.Const{Value: ir.Null{}}
		if i >= 0 {
			x = g.slotExpr(i, provided)
		}
		con.Fields = append(con.Fields, cqlir.Column{Name: p.Name, Expr: x})
	}
	return con
}

func (g *Generator) memberIndex(name string) int {
	for i, m := range g.ctx.Members() {
		if len(m.Path) == 1 && m.Path[0] == name {
			return i
		}
	}
	return -1
}

// slotExpr reads member i: from the input when some cell projects it,
// else as a CASE over the constants the cells fix it to, else NULL.
func (g *Generator) slotExpr(i int, provided map[string]bool) cqlir.Expr {
	name := g.cols[i].name
	if provided[name] {
		g.required[name] = true
		return cqlir.Ref{Alias: viewAlias, Column: name}
	}
	if x := g.constantCase(g.ctx.Members()[i]); x != nil {
		return x
	}
	return cqlir.Const{Value: ir.Null{}}
}
