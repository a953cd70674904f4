package viewgen

import (
	"github.com/cockroachdb/errors"

	"github.com/roach88/viewgen/internal/boolexpr"
	"github.com/roach88/viewgen/internal/cell"
	"github.com/roach88/viewgen/internal/metadata"
)

// MergeNodes merges sibling leaves reading the same extent wherever the
// operator between them allows it, innermost nodes first.
func MergeNodes(ctx *Context, root *Node) (*Node, error) {
	s := &simplifier{ctx: ctx}
	out, err := s.merge(root)
	if err != nil {
		return nil, err
	}
	return Flatten(out), nil
}

type simplifier struct {
	ctx *Context
}

func (s *simplifier) merge(n *Node) (*Node, error) {
	if n.IsLeaf() {
		return n, nil
	}
	children := make([]*Node, len(n.Children))
	for i, c := range n.Children {
		var err error
		if children[i], err = s.merge(c); err != nil {
			return nil, err
		}
	}
	n = NewNode(n.Op, children...)
	if r := restructureTreeForMerges(n); r != n {
		// The factored columns are fresh nodes; the residual node is built
		// from children merged above. The factoring is kept only when some
		// column merged.
		last := len(r.Children) - 1
		merged := false
		for i, c := range r.Children[:last] {
			var err error
			if r.Children[i], err = s.merge(c); err != nil {
				return nil, err
			}
			merged = merged || len(r.Children[i].Leaves()) < len(c.Leaves())
		}
		if merged {
			n = r
		}
	}
	if n.Op.Associative() {
		n = groupLeafChildrenByExtent(n)
	} else {
		n = groupNonAssociativeLeafChildren(n)
	}

	out := []*Node{n.Children[0]}
	for i, c := range n.Children[1:] {
		target := len(out) - 1
		if !n.Op.Associative() {
			// Optional legs only merge into the driver, and only until one
			// fails to: (P LOJ PA) LOJ PO is not P LOJ (PA LOJ PO), and two
			// legs merged with each other would keep only the first's rows.
			if len(out) > 1 {
				out = append(out, n.Children[1+i:]...)
				break
			}
			target = 0
		}
		prev := out[target]
		if !prev.IsLeaf() || !c.IsLeaf() || prev.Wrapper.RightExtent() != c.Wrapper.RightExtent() {
			out = append(out, c)
			continue
		}
		merged, ok, err := s.tryMergeCellQueries(n.Op, prev.Wrapper, c.Wrapper)
		if err != nil {
			return nil, err
		}
		if !ok {
			out = append(out, c)
			continue
		}
		out[target] = Leaf(merged)
		s.ctx.metrics.Inc("merges", 1)
	}
	if len(out) == 1 {
		return out[0], nil
	}
	return NewNode(n.Op, out...), nil
}

// restructureTreeForMerges factors leaves over the same extent out of an
// associative node whose children all carry one other associative
// operator. Every extent read by a leaf of each child yields a column of
// those leaves joined by the parent operator, and the residuals recombine
// under the parent operator as well:
//
//	(A1.B.X) + (A2.B'.Y)  becomes  (A1 + A2).(B + B').(X + Y)
//
// which exposes A1 and A2 to a merge. The node is returned unchanged when
// no extent is shared or a child would have no residual.
//
// An inner join parent is left alone: (A1 + X).(A2 + Y) is not
// (A1.A2) + (X.Y).
func restructureTreeForMerges(n *Node) *Node {
	if !n.Op.Associative() || n.Op == OpIJ || len(n.Children) < 2 {
		return n
	}
	childOp := n.Children[0].Op
	if !childOp.Associative() || childOp == n.Op {
		return n
	}
	for _, c := range n.Children {
		if c.Op != childOp {
			return n
		}
	}

	claimed := map[*Node]bool{}
	var columns []*Node
	for _, gc := range n.Children[0].Children {
		if !gc.IsLeaf() {
			continue
		}
		column := []*Node{gc}
		for _, c := range n.Children[1:] {
			m := leafOnExtent(c.Children, gc.Wrapper.RightExtent(), claimed)
			if m == nil {
				break
			}
			column = append(column, m)
		}
		if len(column) < len(n.Children) {
			continue
		}
		for _, m := range column {
			claimed[m] = true
		}
		columns = append(columns, NewNode(n.Op, column...))
	}
	if len(columns) == 0 {
		return n
	}

	residuals := make([]*Node, 0, len(n.Children))
	for _, c := range n.Children {
		var rest []*Node
		for _, gc := range c.Children {
			if !claimed[gc] {
				rest = append(rest, gc)
			}
		}
		if len(rest) == 0 {
			// A child made only of shared leaves has no residual to
			// recombine with.
			return n
		}
		residuals = append(residuals, group1(childOp, rest))
	}
	return NewNode(childOp, append(columns, NewNode(n.Op, residuals...))...)
}

func group1(op Op, nodes []*Node) *Node {
	if len(nodes) == 1 {
		return nodes[0]
	}
	return NewNode(op, nodes...)
}

// leafOnExtent returns the first unclaimed leaf of nodes reading e.
func leafOnExtent(nodes []*Node, e *metadata.Extent, claimed map[*Node]bool) *Node {
	for _, n := range nodes {
		if n.IsLeaf() && !claimed[n] && n.Wrapper.RightExtent() == e {
			return n
		}
	}
	return nil
}

// groupLeafChildrenByExtent orders the children of an associative node so
// that leaves over the same extent are adjacent, leaves before operator
// nodes, each group in first-appearance order.
func groupLeafChildrenByExtent(n *Node) *Node {
	return NewNode(n.Op, groupByExtent(n.Children)...)
}

// groupNonAssociativeLeafChildren is groupLeafChildrenByExtent for LOJ and
// LASJ: the driving first child stays first, and the optional legs that
// read its extent follow it directly.
func groupNonAssociativeLeafChildren(n *Node) *Node {
	driver := n.Children[0]
	rest := groupByExtent(n.Children[1:])
	if driver.IsLeaf() {
		var same, other []*Node
		for _, c := range rest {
			if c.IsLeaf() && c.Wrapper.RightExtent() == driver.Wrapper.RightExtent() {
				same = append(same, c)
			} else {
				other = append(other, c)
			}
		}
		rest = append(same, other...)
	}
	return NewNode(n.Op, append([]*Node{driver}, rest...)...)
}

func groupByExtent(nodes []*Node) []*Node {
	var order []*metadata.Extent
	byExtent := map[*metadata.Extent][]*Node{}
	var ops []*Node
	for _, c := range nodes {
		if !c.IsLeaf() {
			ops = append(ops, c)
			continue
		}
		e := c.Wrapper.RightExtent()
		if _, ok := byExtent[e]; !ok {
			order = append(order, e)
		}
		byExtent[e] = append(byExtent[e], c)
	}
	out := make([]*Node, 0, len(nodes))
	for _, e := range order {
		out = append(out, byExtent[e]...)
	}
	return append(out, ops...)
}

// tryMergeCellQueries merges two leaves under op into one wrapper.
func (s *simplifier) tryMergeCellQueries(op Op, w1, w2 *LeftCellWrapper) (*LeftCellWrapper, bool, error) {
	right, ok, err := TryMergeTwoCellQueries(w1.Right, w2.Right, op)
	if err != nil || !ok {
		return nil, false, err
	}
	left, ok, err := TryMergeTwoCellQueries(w1.Left, w2.Left, op)
	if err != nil || !ok {
		return nil, false, err
	}
	merged := mergeWrappers(op, w1, w2, left, right)
	s.ctx.logger.Debug("merged leaves", "op", op.String(), "into", merged.String(), "where", right.Where.String())
	return merged, true, nil
}

// TryMergeTwoCellQueries merges two aligned queries over the same extent
// combined by op. It fails when the extents differ or when both queries
// project different members into one slot.
//
// With guards g1 and g2 (none for IJ, g2 for LOJ and LASJ, both for FOJ
// and Union) the where clause becomes
//
//	IJ        w1 AND w2
//	LOJ       w1
//	LASJ      w1 AND NOT (w2 AND g2)
//	FOJ/Union (w1 AND g1) OR (w2 AND g2)
//
// and every "from cell" indicator set on one side is restricted to that
// side's guarded where clause, so that it stays true exactly for the rows
// the cell contributes.
func TryMergeTwoCellQueries(q1, q2 *cell.Query, op Op) (*cell.Query, bool, error) {
	if q1.Extent != q2.Extent {
		return nil, false, nil
	}
	if len(q1.Slots) != len(q2.Slots) || len(q1.BoolVars) != len(q2.BoolVars) {
		return nil, false, errors.AssertionFailedf("unaligned queries over %s", q1.Extent.Name)
	}

	slots := make([]*cell.MemberPath, len(q1.Slots))
	for i := range slots {
		a, b := q1.Slots[i], q2.Slots[i]
		switch {
		case a == nil:
			slots[i] = b
		case b == nil || a.Equal(b):
			slots[i] = a
		default:
			return nil, false, nil
		}
	}

	g1, g2 := boolexpr.Expr(boolexpr.True), boolexpr.Expr(boolexpr.True)
	w1 := boolexpr.NewAnd(q1.Where, g1)
	w2 := boolexpr.NewAnd(q2.Where, g2)

	var where boolexpr.Expr
	switch op {
	case OpIJ:
		where = boolexpr.NewAnd(q1.Where, q2.Where)
	case OpLOJ:
		where = q1.Where
	case OpLASJ:
		where = boolexpr.NewAnd(q1.Where, boolexpr.NewNot(w2))
	case OpFOJ, OpUnion:
		where = boolexpr.NewOr(w1, w2)
	default:
		return nil, false, errors.AssertionFailedf("cannot merge under %s", op)
	}
	where = boolexpr.ExpensiveSimplify(where)

	bools := make([]boolexpr.Expr, len(q1.BoolVars))
	for i := range bools {
		b1, b2 := q1.BoolVars[i], q2.BoolVars[i]
		switch op {
		case OpIJ:
			bools[i] = andSet(b1, b2)
		case OpLOJ:
			bools[i] = andSet(b1, guarded(b2, w2))
		case OpLASJ:
			if b1 != nil {
				bools[i] = boolexpr.NewAnd(b1, boolexpr.NewNot(w2))
			}
		default:
			bools[i] = orSet(guarded(b1, w1), guarded(b2, w2))
		}
		if bools[i] != nil {
			bools[i] = boolexpr.ExpensiveSimplify(bools[i])
		}
	}

	return &cell.Query{
		Extent:   q1.Extent,
		Slots:    slots,
		Where:    where,
		BoolVars: bools,
		Distinct: q1.Distinct || q2.Distinct,
	}, true, nil
}

func guarded(b, where boolexpr.Expr) boolexpr.Expr {
	if b == nil {
		return nil
	}
	return boolexpr.NewAnd(b, where)
}

func andSet(a, b boolexpr.Expr) boolexpr.Expr {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return boolexpr.NewAnd(a, b)
}

func orSet(a, b boolexpr.Expr) boolexpr.Expr {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return boolexpr.NewOr(a, b)
}
