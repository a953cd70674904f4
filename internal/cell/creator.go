package cell

import (
	"log/slog"
	"strings"

	"github.com/roach88/viewgen/internal/boolexpr"
	"github.com/roach88/viewgen/internal/errlog"
	"github.com/roach88/viewgen/internal/ir"
	"github.com/roach88/viewgen/internal/metadata"
)

// Creator turns mapping fragments into cells.
type Creator struct {
	mapping *metadata.Mapping
	log     *errlog.Log
	logger  *slog.Logger
}

// NewCreator returns a creator for m that records authoring errors in log.
func NewCreator(m *metadata.Mapping, log *errlog.Log, logger *slog.Logger) *Creator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Creator{mapping: m, log: log, logger: logger}
}

// draft is a cell before numbering.
type draft struct {
	frag   *metadata.Fragment
	types  []*metadata.EntityType
	cSlots []*MemberPath
	sSlots []*MemberPath
	cWhere boolexpr.Expr
	sWhere boolexpr.Expr
}

// Generate builds one cell per fragment, then expands boolean members that
// are projected by one fragment and used as a condition by another
// fragment of the same extent into one cell per domain value. Fragments
// with invalid references are logged and skipped.
func (c *Creator) Generate() []*Cell {
	var drafts []*draft
	for _, f := range c.mapping.Fragments {
		if d := c.build(f); d != nil {
			drafts = append(drafts, d)
		}
	}
	drafts = c.expand(drafts)

	cells := make([]*Cell, len(drafts))
	for i, d := range drafts {
		cq := &Query{Extent: d.frag.Set, Slots: d.cSlots, Where: d.cWhere, Distinct: d.frag.Distinct}
		sq := &Query{Extent: d.frag.Table, Slots: d.sSlots, Where: d.sWhere, Distinct: d.frag.Distinct}
		cq.BoolVars = make([]boolexpr.Expr, len(drafts))
		sq.BoolVars = make([]boolexpr.Expr, len(drafts))
		cq.BoolVars[i] = boolexpr.True
		sq.BoolVars[i] = boolexpr.True
		cells[i] = &Cell{Number: i, CQuery: cq, SQuery: sq, Types: d.types, Fragment: d.frag}
		c.logger.Debug("cell created", "cell", i, "fragment", d.frag.String())
	}
	return cells
}

func (c *Creator) build(f *metadata.Fragment) *draft {
	bad := func(format string, args ...any) *draft {
		c.log.Errorf(errlog.InvalidMappingReference, nil, f.Source, format, args...)
		return nil
	}
	if f.Set == nil || !f.Set.Kind.IsConceptual() {
		return bad("fragment does not reference a conceptual extent")
	}
	if f.Table == nil || f.Table.Kind != metadata.Table {
		return bad("fragment for %s does not reference a table", f.Set.Name)
	}

	d := &draft{frag: f, cWhere: boolexpr.True, sWhere: boolexpr.True}

	if f.Set.Kind == metadata.EntitySet {
		refs := f.Types
		if len(refs) == 0 {
			refs = []metadata.TypeRef{{Type: f.Set.Type, IsOf: true}}
		}
		seen := map[*metadata.EntityType]bool{}
		for _, r := range refs {
			if !r.Type.IsSubtypeOf(f.Set.Type) {
				return bad("type %s is not in the hierarchy of %s", r.Type.Name, f.Set.Name)
			}
			for _, t := range r.Covers() {
				if !seen[t] {
					seen[t] = true
					d.types = append(d.types, t)
				}
			}
		}
		d.cWhere = TypeCondition(f.Set, d.types)
	}

	for _, pm := range f.Properties {
		cm, err := NewMemberPath(f.Set, strings.Split(pm.Member, ".")...)
		if err != nil {
			return bad("%v", err)
		}
		sm, err := NewMemberPath(f.Table, pm.Column)
		if err != nil {
			return bad("%v", err)
		}
		if dt := cm.DeclaringType(); dt != nil && !c.declaredByAdmitted(dt, d.types) {
			return bad("property %s is declared on %s, which fragment %s does not map", pm.Member, dt.Name, f)
		}
		d.cSlots = append(d.cSlots, cm)
		d.sSlots = append(d.sSlots, sm)
	}

	for _, cond := range f.Conditions {
		ext := f.Set
		if cond.Side == metadata.SSide {
			ext = f.Table
		}
		m, err := NewMemberPath(ext, strings.Split(cond.Member, ".")...)
		if err != nil {
			return bad("condition: %v", err)
		}
		if dt := m.DeclaringType(); dt != nil && !c.declaredByAdmitted(dt, d.types) {
			c.log.Errorf(errlog.ConditionOnUnmappedMember, nil, f.Source,
				"condition on %s, which is declared on %s and not mapped by %s", cond.Member, dt.Name, f)
			return nil
		}
		e := conditionExpr(m, cond)
		if cond.Side == metadata.CSide {
			d.cWhere = boolexpr.NewAnd(d.cWhere, e)
		} else {
			d.sWhere = boolexpr.NewAnd(d.sWhere, e)
		}
	}
	return d
}

// declaredByAdmitted reports whether some admitted type inherits dt's
// members.
func (c *Creator) declaredByAdmitted(dt *metadata.EntityType, admitted []*metadata.EntityType) bool {
	for _, t := range admitted {
		if t.IsSubtypeOf(dt) {
			return true
		}
	}
	return false
}

func conditionExpr(m *MemberPath, cond metadata.Condition) boolexpr.Expr {
	v := m.Var()
	switch cond.Op {
	case metadata.IsNull:
		return boolexpr.IsNull(v)
	case metadata.IsNotNull:
		return boolexpr.IsNotNull(v)
	default:
		return boolexpr.Eq(v, cond.Value)
	}
}

// expand splits drafts on projected boolean slots that another draft of
// the same extent conditions on.
func (c *Creator) expand(drafts []*draft) []*draft {
	conditioned := map[string]bool{}
	for _, d := range drafts {
		for _, cond := range d.frag.Conditions {
			if cond.Op != metadata.Equals {
				continue
			}
			ext := d.frag.Set
			if cond.Side == metadata.SSide {
				ext = d.frag.Table
			}
			conditioned[ext.Name+"."+cond.Member] = true
		}
	}

	var out []*draft
	for _, d := range drafts {
		parts := []*draft{d}
		for i, cm := range d.cSlots {
			sm := d.sSlots[i]
			if cm.ScalarType() != metadata.TypeBool || sm.ScalarType() != metadata.TypeBool {
				continue
			}
			if !conditioned[cm.String()] && !conditioned[sm.String()] {
				continue
			}
			var next []*draft
			for _, p := range parts {
				next = append(next, splitOnSlot(p, cm, sm)...)
			}
			parts = next
			c.logger.Debug("expanded closed-domain member", "member", cm.String(), "cells", len(parts))
		}
		out = append(out, parts...)
	}
	return out
}

// splitOnSlot returns one copy of d per value of the closed domain of cm,
// each restricting both sides to that value. Copies whose condition is
// unsatisfiable are dropped.
func splitOnSlot(d *draft, cm, sm *MemberPath) []*draft {
	values := cm.Var().Domain
	if cm.Nullable() && sm.Nullable() {
		values = append(append([]ir.Value{}, values...), ir.Null{})
	}
	var out []*draft
	for _, val := range values {
		cw := boolexpr.Simplify(boolexpr.NewAnd(d.cWhere, boolexpr.Eq(cm.Var(), val)))
		sw := boolexpr.Simplify(boolexpr.NewAnd(d.sWhere, boolexpr.Eq(sm.Var(), val)))
		if boolexpr.IsFalse(cw) || boolexpr.IsFalse(sw) {
			continue
		}
		cp := *d
		cp.cWhere, cp.sWhere = cw, sw
		out = append(out, &cp)
	}
	if len(out) == 0 {
		return []*draft{d}
	}
	return out
}
