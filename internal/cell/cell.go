// Package cell holds the unit of mapping reasoning: a Cell pairs a query
// over a conceptual extent with a query over a store table. Cells are
// built from mapping fragments by Creator and grouped into independent
// units of view generation by Partition.
package cell

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/viewgen/internal/boolexpr"
	"github.com/roach88/viewgen/internal/metadata"
)

// Query is one side of a cell: a selection over an extent projecting
// member slots.
type Query struct {
	Extent *metadata.Extent

	// Slots are the projected members. After alignment to a view's slot
	// map an entry may be nil (not projected).
	Slots []*MemberPath

	Where boolexpr.Expr

	// BoolVars[n] is the "row comes from cell n" indicator, expressed over
	// this query's members. Nil entries mean cell n does not contribute.
	BoolVars []boolexpr.Expr

	Distinct bool
}

// Clone returns a copy whose slices may be modified independently.
func (q *Query) Clone() *Query {
	c := *q
	c.Slots = slices.Clone(q.Slots)
	c.BoolVars = slices.Clone(q.BoolVars)
	return &c
}

// SlotIndex returns the index of m among the slots, or -1.
func (q *Query) SlotIndex(m *MemberPath) int {
	for i, s := range q.Slots {
		if s.Equal(m) {
			return i
		}
	}
	return -1
}

// Projects reports whether m is projected.
func (q *Query) Projects(m *MemberPath) bool {
	return q.SlotIndex(m) >= 0
}

// Attributes returns the names of the projected members.
func (q *Query) Attributes() []string {
	var out []string
	for _, s := range q.Slots {
		if s != nil {
			out = append(out, s.Name())
		}
	}
	return out
}

// Cells returns the numbers of the cells with a non-nil indicator.
func (q *Query) Cells() []int {
	var out []int
	for i, b := range q.BoolVars {
		if b != nil {
			out = append(out, i)
		}
	}
	return out
}

func (q *Query) String() string {
	var slots []string
	for _, s := range q.Slots {
		if s == nil {
			slots = append(slots, "-")
			continue
		}
		slots = append(slots, s.Name())
	}
	distinct := ""
	if q.Distinct {
		distinct = "DISTINCT "
	}
	return fmt.Sprintf("SELECT %s%s FROM %s WHERE %s", distinct, strings.Join(slots, ", "), q.Extent.Name, q.Where)
}

// Cell is a pair of aligned queries: slot i of CQuery maps to slot i of
// SQuery.
type Cell struct {
	Number int
	CQuery *Query
	SQuery *Query

	// Types are the entity types the cell admits; nil for association sets.
	Types []*metadata.EntityType

	Fragment *metadata.Fragment
}

// Query returns the query on the given side.
func (c *Cell) Query(side metadata.Side) *Query {
	if side == metadata.CSide {
		return c.CQuery
	}
	return c.SQuery
}

// Source locates the cell's fragment, if known.
func (c *Cell) Source() string {
	if c.Fragment == nil {
		return ""
	}
	return c.Fragment.Source
}

// Clone deep-copies the cell's queries.
func (c *Cell) Clone() *Cell {
	out := *c
	out.CQuery = c.CQuery.Clone()
	out.SQuery = c.SQuery.Clone()
	out.Types = slices.Clone(c.Types)
	return &out
}

// Admits reports whether the cell's type condition admits t.
func (c *Cell) Admits(t *metadata.EntityType) bool {
	return slices.Contains(c.Types, t)
}

func (c *Cell) String() string {
	return fmt.Sprintf("Cell %d: %s <-> %s", c.Number, c.CQuery, c.SQuery)
}

// Numbers returns the cell numbers of cells.
func Numbers(cells []*Cell) []int {
	out := make([]int, len(cells))
	for i, c := range cells {
		out[i] = c.Number
	}
	return out
}
