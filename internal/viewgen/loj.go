package viewgen

import (
	"slices"

	"github.com/roach88/viewgen/internal/metadata"
)

// convertUnionsToNormalizedLOJs rewrites left outer joins of a query view
// so that a leg reading a table whose key is a foreign key to another leg's
// table hangs under that leg: LOJ(P, C, D) with D referencing C becomes
// LOJ(P, LOJ(C, D)). Unions among the optional legs are flattened first.
// This is a shape heuristic that lets a later optimizer drop joins to
// derived tables; it does not change the rows produced.
func (g *BasicViewGenerator) convertUnionsToNormalizedLOJs(n *Node) *Node {
	if n.IsLeaf() {
		return n
	}
	children := make([]*Node, len(n.Children))
	for i, c := range n.Children {
		children[i] = g.convertUnionsToNormalizedLOJs(c)
	}
	if n.Op != OpLOJ || len(children) < 2 {
		return NewNode(n.Op, children...)
	}

	driver := children[0]
	var legs []*Node
	for _, c := range children[1:] {
		if c.Op == OpUnion {
			legs = append(legs, c.Children...)
			continue
		}
		legs = append(legs, c)
	}

	parentOf := map[*Node]*Node{}
	for _, child := range legs {
		ct := legTable(child)
		if ct == nil {
			continue
		}
		for _, parent := range legs {
			if parent == child || parentOf[child] != nil {
				continue
			}
			pt := legTable(parent)
			if pt == nil || !nestable(ct, pt) {
				continue
			}
			if CheckLOJCycle(child, parent, parentOf) {
				g.ctx.logger.Debug("refused cyclic LOJ nesting", "child", child.String(), "parent", parent.String())
				continue
			}
			parentOf[child] = parent
		}
	}

	// A leg whose parent table is read by an operand of an inner-join
	// driver hangs under that operand instead, unless the operand already
	// drives left outer joins of its own.
	underOperand := map[*Node][]*Node{}
	if driver.Op == OpIJ {
		for _, leg := range legs {
			if parentOf[leg] != nil {
				continue
			}
			ct := legTable(leg)
			if ct == nil {
				continue
			}
			for _, operand := range driver.Children {
				ot := drivingTable(operand)
				if ot == nil || !nestable(ct, ot) {
					continue
				}
				if operand.Op == OpLOJ {
					g.ctx.logger.Debug("refused nesting under a driving operand", "leg", leg.String(), "operand", operand.String())
					continue
				}
				underOperand[operand] = append(underOperand[operand], leg)
				parentOf[leg] = operand
				break
			}
		}
	}

	var build func(*Node) *Node
	build = func(leg *Node) *Node {
		var kids []*Node
		for _, l := range legs {
			if parentOf[l] == leg {
				kids = append(kids, build(l))
			}
		}
		if len(kids) == 0 {
			return leg
		}
		return NewNode(OpLOJ, append([]*Node{leg}, kids...)...)
	}

	if len(underOperand) > 0 {
		operands := make([]*Node, len(driver.Children))
		for i, operand := range driver.Children {
			operands[i] = operand
			if kids := underOperand[operand]; len(kids) > 0 {
				nested := make([]*Node, len(kids))
				for j, k := range kids {
					nested[j] = build(k)
				}
				operands[i] = NewNode(OpLOJ, append([]*Node{operand}, nested...)...)
			}
		}
		driver = NewNode(OpIJ, operands...)
	}

	out := []*Node{driver}
	for _, leg := range legs {
		if parentOf[leg] == nil {
			out = append(out, build(leg))
		}
	}
	if len(out) == 1 {
		return driver
	}
	return NewNode(OpLOJ, out...)
}

// legTable returns the table a leg reads when the leg is a leaf.
func legTable(n *Node) *metadata.Extent {
	if !n.IsLeaf() {
		return nil
	}
	return n.Wrapper.RightExtent()
}

// drivingTable returns the table read by a leaf, or by the driving leaf of
// a left outer join.
func drivingTable(n *Node) *metadata.Extent {
	for n.Op == OpLOJ {
		n = n.Children[0]
	}
	return legTable(n)
}

// nestable reports whether child has a foreign key to parent whose columns
// are exactly child's primary key, in order, referencing parent's primary
// key.
func nestable(child, parent *metadata.Extent) bool {
	if child == parent || child.Kind != metadata.Table {
		return false
	}
	for _, fk := range child.ForeignKeys {
		if fk.Parent == parent && fk.IsOverPrimaryKeys() {
			return true
		}
	}
	return false
}

// CheckLOJCycle reports whether nesting child under parent would nest a
// leg under itself, given the nestings already chosen.
func CheckLOJCycle(child, parent *Node, parentOf map[*Node]*Node) bool {
	var seen []*Node
	for cur := parent; cur != nil; cur = parentOf[cur] {
		if cur == child || slices.Contains(seen, cur) {
			return true
		}
		seen = append(seen, cur)
	}
	return false
}
