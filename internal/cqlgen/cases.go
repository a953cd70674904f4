package cqlgen

import (
	"github.com/roach88/viewgen/internal/boolexpr"
	"github.com/roach88/viewgen/internal/cell"
	"github.com/roach88/viewgen/internal/cqlir"
	"github.com/roach88/viewgen/internal/ir"
	"github.com/roach88/viewgen/internal/metadata"
	"github.com/roach88/viewgen/internal/viewgen"
)

// flagVar is the indicator of cell n as a boolean variable.
func flagVar(n int) *boolexpr.Var {
	return boolexpr.NewBoolVar(flagName(n), false)
}

// settle replaces the indicators of cells every row comes from with True
// and simplifies.
func (g *Generator) settle(e boolexpr.Expr) boolexpr.Expr {
	e = boolexpr.Rewrite(e, func(t *boolexpr.Term) boolexpr.Expr {
		c, ok := g.byName[t.Var.Name]
		if !ok || !c.isFlag() || !g.present[c.cell] {
			return t
		}
		if t.Contains(ir.Bool(true)) {
			return boolexpr.True
		}
		return boolexpr.False
	})
	return boolexpr.ExpensiveSimplify(e)
}

// typeCondition is the condition on the indicators under which a row has
// type t: every present cell admits t, and every type-only cell admitting
// t is present.
func (g *Generator) typeCondition(t *metadata.EntityType) boolexpr.Expr {
	var parts []boolexpr.Expr
	for _, c := range g.cells {
		switch {
		case !c.Admits(t):
			parts = append(parts, boolexpr.Eq(flagVar(c.Number), ir.Bool(false)))
		case typeOnly(c):
			parts = append(parts, boolexpr.Eq(flagVar(c.Number), ir.Bool(true)))
		}
	}
	return g.settle(boolexpr.NewAnd(parts...))
}

// typeOnly reports whether the cell's conceptual condition constrains
// nothing but the entity type.
func typeOnly(c *cell.Cell) bool {
	only := true
	typeVar := ""
	if c.CQuery.Extent.Kind == metadata.EntitySet {
		typeVar = cell.TypeMember(c.CQuery.Extent).String()
	}
	boolexpr.Walk(c.CQuery.Where, func(t *boolexpr.Term) {
		if t.Var.Name != typeVar {
			only = false
		}
	})
	return only
}

// constantCase rebuilds a member no cell projects but some cells fix to a
// constant: CASE WHEN _from<n> THEN <constant of cell n> ... END. It
// returns nil when no cell fixes m.
func (g *Generator) constantCase(m *cell.MemberPath) cqlir.Expr {
	var whens []cqlir.When
	var values []ir.Value
	for _, c := range g.cells {
		val, ok := fixedValue(g.leftQuery(c).Where, m.String())
		if !ok {
			continue
		}
		cond := g.settle(boolexpr.Eq(flagVar(c.Number), ir.Bool(true)))
		if boolexpr.IsFalse(cond) {
			continue
		}
		values = append(values, val)
		if boolexpr.IsTrue(cond) {
			if len(whens) == 0 {
				return cqlir.Const{Value: val}
			}
			return cqlir.Case{Whens: whens, Else: cqlir.Const{Value: val}}
		}
		whens = append(whens, cqlir.When{Cond: g.flagPredicate(cond), Then: cqlir.Const{Value: val}})
	}
	if len(whens) == 0 {
		return nil
	}
	if len(values) == len(g.cells) && sameValues(values) {
		return cqlir.Const{Value: values[0]}
	}
	return cqlir.Case{Whens: whens}
}

func (g *Generator) leftQuery(c *cell.Cell) *cell.Query {
	if g.ctx.Target() == viewgen.QueryView {
		return c.CQuery
	}
	return c.SQuery
}

// fixedValue finds a top-level conjunct restricting the variable named
// name to one non-null value.
func fixedValue(where boolexpr.Expr, name string) (ir.Value, bool) {
	conjuncts := []boolexpr.Expr{where}
	if and, ok := where.(boolexpr.And); ok {
		conjuncts = and
	}
	for _, x := range conjuncts {
		t, ok := x.(*boolexpr.Term)
		if !ok || t.Var.Name != name || len(t.Values) != 1 || ir.IsNull(t.Values[0]) {
			continue
		}
		return t.Values[0], true
	}
	return nil, false
}

func sameValues(vs []ir.Value) bool {
	for _, v := range vs[1:] {
		if ir.Key(v) != ir.Key(vs[0]) {
			return false
		}
	}
	return true
}

// flagPredicate converts a condition over indicators into a predicate over
// the view's input, marking the indicators it reads as required.
func (g *Generator) flagPredicate(e boolexpr.Expr) cqlir.Predicate {
	conv := converter{
		column: func(v *boolexpr.Var) (cqlir.Expr, bool) {
			g.required[v.Name] = true
			return cqlir.Ref{Alias: viewAlias, Column: v.Name}, true
		},
		isFlag: func(*boolexpr.Var) bool { return true },
	}
	return conv.predicate(e)
}
