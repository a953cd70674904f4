package viewgen

import (
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/viewgen/internal/boolexpr"
	"github.com/roach88/viewgen/internal/cell"
	"github.com/roach88/viewgen/internal/metadata"
)

// LeftCellWrapper is a cell seen from one view direction. Left is the side
// the view produces, Right the side it reads. Both queries are aligned to
// the context's slot map: slot i of either query corresponds to member i of
// the view's extent, and nil marks a member the cell does not project.
//
// A wrapper built from one cell carries that cell's identity literal; a
// merged wrapper covers every cell it was merged from.
type LeftCellWrapper struct {
	Attributes []string
	Domain     boolexpr.FragmentQuery

	// RightDomain is the right fragment: the right extent's role literal
	// conjoined with the right where clause.
	RightDomain boolexpr.Expr

	Left  *cell.Query
	Right *cell.Query
	Cells []*cell.Cell
}

// Numbers returns the numbers of the wrapped cells in ascending order.
func (w *LeftCellWrapper) Numbers() []int {
	out := cell.Numbers(w.Cells)
	slices.Sort(out)
	return out
}

// RightExtent is the extent the wrapper reads from.
func (w *LeftCellWrapper) RightExtent() *metadata.Extent {
	return w.Right.Extent
}

// String names the wrapper by its cells: "c0", or "c0+c1" once merged.
func (w *LeftCellWrapper) String() string {
	nums := w.Numbers()
	parts := make([]string, len(nums))
	for i, n := range nums {
		parts[i] = "c" + strconv.Itoa(n)
	}
	return strings.Join(parts, "+")
}

// align re-expresses q against members: the result has one slot per member
// and other carries the aligned slots of the opposite query.
func align(members []*cell.MemberPath, q, other *cell.Query) (*cell.Query, *cell.Query) {
	l, r := q.Clone(), other.Clone()
	l.Slots = make([]*cell.MemberPath, len(members))
	r.Slots = make([]*cell.MemberPath, len(members))
	for i, m := range members {
		if j := q.SlotIndex(m); j >= 0 {
			l.Slots[i] = q.Slots[j]
			r.Slots[i] = other.Slots[j]
		}
	}
	return l, r
}

// mergeWrappers combines two wrappers merged under op. right is the merged
// right query; the left query and the domain follow op's semantics.
func mergeWrappers(op Op, w1, w2 *LeftCellWrapper, left, right *cell.Query) *LeftCellWrapper {
	var dom boolexpr.FragmentQuery
	var rdom boolexpr.Expr
	switch op {
	case OpIJ:
		dom = w1.Domain.Intersect(w2.Domain)
		rdom = boolexpr.NewAnd(w1.RightDomain, w2.RightDomain)
	case OpLOJ:
		dom = w1.Domain
		dom.Attributes = unionAttrs(w1.Attributes, w2.Attributes)
		rdom = w1.RightDomain
	case OpLASJ:
		dom = w1.Domain.Difference(w2.Domain)
		rdom = boolexpr.NewAnd(w1.RightDomain, boolexpr.NewNot(w2.RightDomain))
	default:
		dom = w1.Domain.Union(w2.Domain)
		rdom = boolexpr.NewOr(w1.RightDomain, w2.RightDomain)
	}
	dom.Condition = boolexpr.ExpensiveSimplify(dom.Condition)
	cells := append(slices.Clone(w1.Cells), w2.Cells...)
	slices.SortFunc(cells, func(a, b *cell.Cell) int { return a.Number - b.Number })
	return &LeftCellWrapper{
		Attributes:  dom.Attributes,
		Domain:      dom,
		RightDomain: boolexpr.ExpensiveSimplify(rdom),
		Left:        left,
		Right:       right,
		Cells:       cells,
	}
}

func unionAttrs(a, b []string) []string {
	out := slices.Clone(a)
	for _, s := range b {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}
