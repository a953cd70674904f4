package viewgen

import (
	"slices"
	"strings"

	"github.com/roach88/viewgen/internal/boolexpr"
)

// Op is the operator of a cell tree node.
type Op int

const (
	OpLeaf Op = iota
	OpFOJ
	OpLOJ
	OpIJ
	OpUnion
	OpLASJ
)

var opNames = [...]string{
	OpLeaf:  "Leaf",
	OpFOJ:   "FOJ",
	OpLOJ:   "LOJ",
	OpIJ:    "IJ",
	OpUnion: "Union",
	OpLASJ:  "LASJ",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return "Op(?)"
}

// Associative reports whether nested nodes of o can be flattened. LOJ and
// LASJ are driven by their first child and are not.
func (o Op) Associative() bool {
	return o == OpFOJ || o == OpIJ || o == OpUnion
}

// Node is a cell tree node: a leaf holding a wrapper, or an operator over
// children. Nodes are treated as immutable; rewrites build new nodes.
type Node struct {
	Op       Op
	Wrapper  *LeftCellWrapper
	Children []*Node
}

// Leaf returns a leaf for w.
func Leaf(w *LeftCellWrapper) *Node {
	return &Node{Op: OpLeaf, Wrapper: w}
}

// NewNode returns an operator node. The children slice is copied.
func NewNode(op Op, children ...*Node) *Node {
	return &Node{Op: op, Children: slices.Clone(children)}
}

// IsLeaf reports whether n is a leaf.
func (n *Node) IsLeaf() bool {
	return n.Op == OpLeaf
}

// String dumps the tree, e.g. "LOJ(c0, LOJ(c1, c2))".
func (n *Node) String() string {
	var sb strings.Builder
	n.write(&sb)
	return sb.String()
}

func (n *Node) write(sb *strings.Builder) {
	if n.IsLeaf() {
		sb.WriteString(n.Wrapper.String())
		return
	}
	sb.WriteString(n.Op.String())
	sb.WriteByte('(')
	for i, c := range n.Children {
		if i > 0 {
			sb.WriteString(", ")
		}
		c.write(sb)
	}
	sb.WriteByte(')')
}

// Leaves returns the leaves of n from left to right.
func (n *Node) Leaves() []*Node {
	if n.IsLeaf() {
		return []*Node{n}
	}
	var out []*Node
	for _, c := range n.Children {
		out = append(out, c.Leaves()...)
	}
	return out
}

// Wrappers returns the wrappers of n's leaves from left to right.
func (n *Node) Wrappers() []*LeftCellWrapper {
	leaves := n.Leaves()
	out := make([]*LeftCellWrapper, len(leaves))
	for i, l := range leaves {
		out[i] = l.Wrapper
	}
	return out
}

// Cells returns the numbers of every cell under n in ascending order.
func (n *Node) Cells() []int {
	var out []int
	for _, w := range n.Wrappers() {
		out = append(out, w.Numbers()...)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// LeftDomain is the selection domain of n over the view's extent.
func (n *Node) LeftDomain() boolexpr.Expr {
	return n.domain(func(w *LeftCellWrapper) boolexpr.Expr { return w.Domain.Condition })
}

// RightDomain is the fragment of the read side that n touches.
func (n *Node) RightDomain() boolexpr.Expr {
	return n.domain(func(w *LeftCellWrapper) boolexpr.Expr { return w.RightDomain })
}

func (n *Node) domain(leaf func(*LeftCellWrapper) boolexpr.Expr) boolexpr.Expr {
	if n.IsLeaf() {
		return leaf(n.Wrapper)
	}
	parts := make([]boolexpr.Expr, len(n.Children))
	for i, c := range n.Children {
		parts[i] = c.domain(leaf)
	}
	switch n.Op {
	case OpIJ:
		return boolexpr.NewAnd(parts...)
	case OpLOJ:
		return parts[0]
	case OpLASJ:
		rest := make([]boolexpr.Expr, 0, len(parts)-1)
		for _, p := range parts[1:] {
			rest = append(rest, boolexpr.NewNot(p))
		}
		return boolexpr.NewAnd(append([]boolexpr.Expr{parts[0]}, rest...)...)
	default:
		return boolexpr.NewOr(parts...)
	}
}

// Flatten removes single-child operator nodes and inlines children of an
// associative node that carry the same operator. Flatten(Flatten(n)) is
// Flatten(n).
func Flatten(n *Node) *Node {
	if n.IsLeaf() {
		return n
	}
	var children []*Node
	for _, c := range n.Children {
		c = Flatten(c)
		if n.Op.Associative() && c.Op == n.Op {
			children = append(children, c.Children...)
			continue
		}
		children = append(children, c)
	}
	if len(children) == 1 {
		return children[0]
	}
	return NewNode(n.Op, children...)
}

// Equal reports whether two trees have the same shape over the same
// wrappers.
func Equal(a, b *Node) bool {
	if a.Op != b.Op || len(a.Children) != len(b.Children) {
		return false
	}
	if a.IsLeaf() {
		return a.Wrapper == b.Wrapper
	}
	for i := range a.Children {
		if !Equal(a.Children[i], b.Children[i]) {
			return false
		}
	}
	return true
}
