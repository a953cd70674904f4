package validator

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/viewgen/internal/boolexpr"
	"github.com/roach88/viewgen/internal/cell"
	"github.com/roach88/viewgen/internal/ir"
	"github.com/roach88/viewgen/internal/metadata"
)

// BasicKeyConstraint states that a set of slots is a key of one side of a
// cell.
type BasicKeyConstraint struct {
	Cell  *cell.Cell
	Side  metadata.Side
	Slots []int
}

func (b BasicKeyConstraint) String() string {
	q := b.Cell.Query(b.Side)
	names := make([]string, len(b.Slots))
	for i, s := range b.Slots {
		names[i] = q.Slots[s].Name()
	}
	return fmt.Sprintf("Key[%s:%s](%s)", b.Side, q.Extent.Name, strings.Join(names, ", "))
}

// Propagate lifts b to the view level: slot indices are replaced by the
// conceptual members they are aligned with, so constraints from both sides
// and from different cells become comparable.
func (b BasicKeyConstraint) Propagate() ViewKeyConstraint {
	members := make([]string, 0, len(b.Slots))
	for _, s := range b.Slots {
		members = append(members, b.Cell.CQuery.Slots[s].Name())
	}
	slices.Sort(members)
	members = slices.Compact(members)
	return ViewKeyConstraint{
		Side:    b.Side,
		Extent:  b.Cell.CQuery.Extent,
		Table:   b.Cell.SQuery.Extent,
		Members: members,
		Cells:   []int{b.Cell.Number},
	}
}

// ViewKeyConstraint states that a set of conceptual members is a key of the
// view relating Extent and Table.
type ViewKeyConstraint struct {
	Side    metadata.Side
	Extent  *metadata.Extent
	Table   *metadata.Extent
	Members []string
	Cells   []int
}

func (v ViewKeyConstraint) String() string {
	return fmt.Sprintf("ViewKey[%s:%s/%s](%s)", v.Side, v.Extent.Name, v.Table.Name, strings.Join(v.Members, ", "))
}

// Implies reports whether v being a key implies o is a key: any superset of
// a key is a key.
func (v ViewKeyConstraint) Implies(o ViewKeyConstraint) bool {
	for _, m := range v.Members {
		if !slices.Contains(o.Members, m) {
			return false
		}
	}
	return true
}

// ImpliedBy reports whether some constraint of set implies v.
func (v ViewKeyConstraint) ImpliedBy(set []ViewKeyConstraint) bool {
	for _, k := range set {
		if k.Implies(v) {
			return true
		}
	}
	return false
}

// conceptualKeys returns the key member sets of a conceptual extent. An
// association set with one many end is keyed by that end alone; a
// one-to-one association is keyed by either end; otherwise by every end.
func conceptualKeys(e *metadata.Extent) [][]*cell.MemberPath {
	if e.Kind != metadata.AssociationSet {
		return [][]*cell.MemberPath{cell.KeyMembers(e)}
	}
	endKey := func(end *metadata.AssociationEnd) []*cell.MemberPath {
		var out []*cell.MemberPath
		for _, k := range end.Set.Type.KeyNames() {
			out = append(out, cell.MustMemberPath(e, end.Name, k))
		}
		return out
	}
	var many []*metadata.AssociationEnd
	for _, end := range e.Ends {
		if end.Many {
			many = append(many, end)
		}
	}
	switch len(many) {
	case 1:
		return [][]*cell.MemberPath{endKey(many[0])}
	case 0:
		var out [][]*cell.MemberPath
		for _, end := range e.Ends {
			out = append(out, endKey(end))
		}
		return out
	}
	return [][]*cell.MemberPath{cell.KeyMembers(e)}
}

// basicConstraints builds the key constraints of both sides of c. Store key
// columns fixed to a constant by the store where clause drop out.
func basicConstraints(c *cell.Cell) (cSide, sSide []BasicKeyConstraint) {
	for _, key := range conceptualKeys(c.CQuery.Extent) {
		b := BasicKeyConstraint{Cell: c, Side: metadata.CSide}
		complete := true
		for _, m := range key {
			i := c.CQuery.SlotIndex(m)
			if i < 0 {
				complete = false
				break
			}
			b.Slots = append(b.Slots, i)
		}
		if complete {
			cSide = append(cSide, b)
		}
	}

	fixed := fixedMembers(c.SQuery.Where)
	b := BasicKeyConstraint{Cell: c, Side: metadata.SSide}
	for _, m := range cell.KeyMembers(c.SQuery.Extent) {
		if i := c.SQuery.SlotIndex(m); i >= 0 {
			b.Slots = append(b.Slots, i)
			continue
		}
		if !fixed[m.String()] {
			// Unmapped and free: reported by the single-cell checks.
			return cSide, nil
		}
	}
	return cSide, []BasicKeyConstraint{b}
}

// fixedMembers returns the members a where clause pins to one non-null
// constant through its top-level conjuncts.
func fixedMembers(where boolexpr.Expr) map[string]bool {
	out := map[string]bool{}
	var conjuncts []boolexpr.Expr
	if and, ok := where.(boolexpr.And); ok {
		conjuncts = and
	} else {
		conjuncts = []boolexpr.Expr{where}
	}
	for _, x := range conjuncts {
		t, ok := x.(*boolexpr.Term)
		if !ok || len(t.Values) != 1 {
			continue
		}
		if !ir.IsNull(t.Values[0]) {
			out[t.Var.Name] = true
		}
	}
	return out
}
