package viewgen

import (
	"github.com/cockroachdb/errors"

	"github.com/roach88/viewgen/internal/boolexpr"
	"github.com/roach88/viewgen/internal/errlog"
	"github.com/roach88/viewgen/internal/metadata"
)

// BasicViewGenerator builds the operator tree of one view. It starts from a
// full outer join of every cell and replaces outer joins with unions,
// inner joins and left outer joins wherever the domains of the cells prove
// that the stronger operator loses no rows.
type BasicViewGenerator struct {
	ctx      *Context
	wrappers []*LeftCellWrapper
	active   boolexpr.Expr
}

// NewBasicViewGenerator returns a generator over wrappers. activeDomain
// restricts containment tests to the rows the view can produce.
func NewBasicViewGenerator(ctx *Context, wrappers []*LeftCellWrapper, activeDomain boolexpr.Expr) *BasicViewGenerator {
	return &BasicViewGenerator{ctx: ctx, wrappers: wrappers, active: activeDomain}
}

// CreateViewExpression runs the rewrite pipeline and returns the tree.
func (g *BasicViewGenerator) CreateViewExpression() (*Node, error) {
	if len(g.wrappers) == 0 {
		return nil, errors.AssertionFailedf("no cells for view of %s", g.ctx.extent.Name)
	}
	leaves := make([]*Node, len(g.wrappers))
	for i, w := range g.wrappers {
		leaves[i] = Leaf(w)
	}
	root := NewNode(OpFOJ, leaves...)
	root = g.groupByRightExtent(root)

	root, err := g.isolateUnions(root)
	if err != nil {
		return nil, err
	}
	for _, op := range []Op{OpUnion, OpIJ, OpLOJ} {
		if root, err = g.isolateByOperator(root, op); err != nil {
			return nil, err
		}
	}
	if g.ctx.target == QueryView {
		root = g.convertUnionsToNormalizedLOJs(root)
	}
	root = Flatten(root)
	g.ctx.logger.Debug("view expression", "extent", g.ctx.extent.Name, "tree", root.String())
	return root, nil
}

// groupByRightExtent gives every extent read by the view its own outer
// join, so cells over the same table are correlated first: leaves over T1,
// T2, T1, T2 become FOJ(FOJ(c0, c2), FOJ(c1, c3)).
func (g *BasicViewGenerator) groupByRightExtent(root *Node) *Node {
	var order []*metadata.Extent
	groups := map[*metadata.Extent][]*Node{}
	for _, c := range root.Children {
		e := c.Wrapper.RightExtent()
		if _, ok := groups[e]; !ok {
			order = append(order, e)
		}
		groups[e] = append(groups[e], c)
	}
	children := make([]*Node, 0, len(order))
	for _, e := range order {
		children = append(children, group(groups[e]))
	}
	if len(children) == 1 {
		return children[0]
	}
	// The groups stay nested until the pipeline's final Flatten.
	return NewNode(OpFOJ, children...)
}

// isolateUnions splits the children of every outer join into the connected
// components of the overlap relation and unions the components.
func (g *BasicViewGenerator) isolateUnions(n *Node) (*Node, error) {
	if n.IsLeaf() || len(n.Children) <= 1 {
		return n, nil
	}
	children := make([]*Node, len(n.Children))
	for i, c := range n.Children {
		var err error
		if children[i], err = g.isolateUnions(c); err != nil {
			return nil, err
		}
	}
	if n.Op != OpFOJ {
		return NewNode(n.Op, children...), nil
	}

	groups := make([][]*Node, len(children))
	for i, c := range children {
		groups[i] = []*Node{c}
	}
	// Merge overlapping groups, restarting after every merge, until the
	// groups are pairwise disjoint.
	for merged := true; merged; {
		merged = false
	scan:
		for i := 0; i < len(groups); i++ {
			for j := i + 1; j < len(groups); j++ {
				disjoint, err := g.isDisjoint(group(groups[i]), group(groups[j]))
				if err != nil {
					return nil, err
				}
				if !disjoint {
					groups[i] = append(groups[i], groups[j]...)
					groups = append(groups[:j], groups[j+1:]...)
					merged = true
					break scan
				}
			}
		}
	}
	if len(groups) == 1 {
		return NewNode(OpFOJ, children...), nil
	}
	legs := make([]*Node, len(groups))
	for i, grp := range groups {
		legs[i] = group(grp)
	}
	return NewNode(OpUnion, legs...), nil
}

// group joins nodes with a full outer join, or returns a lone node as is.
func group(nodes []*Node) *Node {
	if len(nodes) == 1 {
		return nodes[0]
	}
	return NewNode(OpFOJ, nodes...)
}

// isolateByOperator replaces outer joins (and, when isolating LOJ, left
// outer joins) by groups joined with op wherever the group membership test
// for op succeeds.
func (g *BasicViewGenerator) isolateByOperator(n *Node, op Op) (*Node, error) {
	if n.IsLeaf() || len(n.Children) <= 1 {
		return n, nil
	}
	children := make([]*Node, len(n.Children))
	for i, c := range n.Children {
		var err error
		if children[i], err = g.isolateByOperator(c, op); err != nil {
			return nil, err
		}
	}
	if n.Op != OpFOJ && !(op == OpLOJ && n.Op == OpLOJ) {
		return NewNode(n.Op, children...), nil
	}

	pending := children
	var result []*Node
	for len(pending) > 0 {
		grp := NewNode(op, pending[0])
		pending = pending[1:]
		for i := 0; i < len(pending); i++ {
			added, err := g.tryAddChildToGroup(op, pending[i], grp)
			if err != nil {
				return nil, err
			}
			if !added {
				continue
			}
			pending = append(pending[:i:i], pending[i+1:]...)
			if op == OpLOJ {
				// A grown group may now contain legs rejected before.
				i = -1
			} else {
				// Rejected legs are never reconsidered: growing a union
				// group cannot make it disjoint from them.
				i--
			}
		}
		if len(grp.Children) == 1 {
			result = append(result, grp.Children[0])
		} else {
			result = append(result, grp)
		}
	}
	if len(result) == 1 {
		return result[0], nil
	}
	return NewNode(n.Op, result...), nil
}

// tryAddChildToGroup adds child to grp, an op node under construction, when
// the membership test for op succeeds.
func (g *BasicViewGenerator) tryAddChildToGroup(op Op, child, grp *Node) (bool, error) {
	switch op {
	case OpIJ:
		if g.ctx.left.IsEquivalent(child.LeftDomain(), grp.LeftDomain()) {
			grp.Children = append(grp.Children, child)
			return true, nil
		}
	case OpLOJ:
		driver := grp.Children[0]
		if g.isContainedIn(child, driver) {
			grp.Children = append(grp.Children, child)
			return true, nil
		}
		if g.isContainedIn(driver, child) {
			grp.Children = append([]*Node{child}, grp.Children...)
			return true, nil
		}
	case OpUnion:
		disjoint, err := g.isDisjoint(child, grp)
		if err != nil || !disjoint {
			return false, err
		}
		grp.Children = append(grp.Children, child)
		return true, nil
	default:
		return false, errors.AssertionFailedf("cannot isolate %s", op)
	}
	return false, nil
}

// isContainedIn reports whether every row of a is a row of b: on the view's
// side within the active domain, and on the read side by an empty right
// fragment of a LASJ b.
func (g *BasicViewGenerator) isContainedIn(a, b *Node) bool {
	la := boolexpr.NewAnd(a.LeftDomain(), g.active)
	lb := boolexpr.NewAnd(b.LeftDomain(), g.active)
	if !g.ctx.left.IsContainedIn(la, lb) {
		return false
	}
	lasj := NewNode(OpLASJ, a, b)
	return !g.ctx.right.IsSatisfiable(lasj.RightDomain())
}

// isDisjoint reports whether a and b share no rows: their left domains are
// disjoint, or their right fragments cannot meet. For update views, rows
// that are disjoint on the view's side but overlap on the read side are a
// mapping error unless an earlier record already explains the cells.
func (g *BasicViewGenerator) isDisjoint(a, b *Node) (bool, error) {
	leftDisjoint := g.ctx.left.IsDisjoint(a.LeftDomain(), b.LeftDomain())
	ij := NewNode(OpIJ, a, b)
	rightDisjoint := !g.ctx.right.IsSatisfiable(ij.RightDomain())

	if g.ctx.target == UpdateView && leftDisjoint && !rightDisjoint {
		cells := append(a.Cells(), b.Cells()...)
		if g.ctx.log.MatchKnownErrors(cells...) {
			return false, nil
		}
		g.ctx.log.Errorf(errlog.DisjointConstraintViolation, cells, g.source(cells),
			"rows of %s selected by cells %v and %v are disjoint, but the conceptual rows they map to overlap",
			g.ctx.extent.Name, a.Cells(), b.Cells())
		return false, errors.Newf("disjoint constraint violated in update view of %s", g.ctx.extent.Name)
	}
	return leftDisjoint || rightDisjoint, nil
}

func (g *BasicViewGenerator) source(cells []int) string {
	for _, c := range g.ctx.cells {
		if len(cells) > 0 && c.Number == cells[0] {
			return c.Source()
		}
	}
	return ""
}
