package cqlgen

import (
	"github.com/roach88/viewgen/internal/boolexpr"
	"github.com/roach88/viewgen/internal/cqlir"
	"github.com/roach88/viewgen/internal/ir"
)

// converter turns a boolexpr formula into a cqlir predicate.
type converter struct {
	// column resolves a variable to the expression reading it.
	column func(*boolexpr.Var) (cqlir.Expr, bool)

	// isFlag marks boolean indicator columns, read as conditions.
	isFlag func(*boolexpr.Var) bool

	// typeAlias and typeVar, when set, turn terms over the entity type
	// discriminator into type tests of the row under typeAlias.
	typeAlias string
	typeVar   string
}

// predicate converts e. True becomes the empty And.
func (c converter) predicate(e boolexpr.Expr) cqlir.Predicate {
	switch x := e.(type) {
	case boolexpr.Const:
		if x {
			return cqlir.And{}
		}
		return cqlir.Or{}
	case *boolexpr.Term:
		return c.term(x)
	case *boolexpr.Not:
		if t, ok := x.X.(*boolexpr.Term); ok && len(t.Values) == 1 && ir.IsNull(t.Values[0]) && !c.special(t.Var) {
			ref, _ := c.column(t.Var)
			return cqlir.IsNull{Expr: ref, Negated: true}
		}
		return cqlir.Not{Predicate: c.predicate(x.X)}
	case boolexpr.And:
		out := cqlir.And{}
		for _, y := range x {
			out.Predicates = append(out.Predicates, c.predicate(y))
		}
		return out
	case boolexpr.Or:
		out := cqlir.Or{}
		for _, y := range x {
			out.Predicates = append(out.Predicates, c.predicate(y))
		}
		return out
	}
	return cqlir.Or{}
}

func (c converter) special(v *boolexpr.Var) bool {
	return (c.typeVar != "" && v.Name == c.typeVar) || (c.isFlag != nil && c.isFlag(v))
}

func (c converter) term(t *boolexpr.Term) cqlir.Predicate {
	if c.typeVar != "" && t.Var.Name == c.typeVar {
		var tests []cqlir.Predicate
		for _, v := range t.Values {
			if s, ok := v.(ir.String); ok {
				tests = append(tests, cqlir.IsOf{Alias: c.typeAlias, Type: string(s), Only: true})
			}
		}
		if len(tests) == 1 {
			return tests[0]
		}
		return cqlir.Or{Predicates: tests}
	}

	ref, ok := c.column(t.Var)
	if !ok {
		return cqlir.Or{}
	}
	if c.isFlag != nil && c.isFlag(t.Var) {
		yes, no := t.Contains(ir.Bool(true)), t.Contains(ir.Bool(false))
		switch {
		case yes && no:
			return cqlir.And{}
		case yes:
			return cqlir.Flag{Expr: ref}
		case no:
			return cqlir.Not{Predicate: cqlir.Flag{Expr: ref}}
		}
		return cqlir.Or{}
	}

	var vals []ir.Value
	hasNull := false
	for _, v := range t.Values {
		if ir.IsNull(v) {
			hasNull = true
			continue
		}
		vals = append(vals, v)
	}
	var parts []cqlir.Predicate
	switch len(vals) {
	case 0:
	case 1:
		parts = append(parts, cqlir.Compare{Left: ref, Right: cqlir.Const{Value: vals[0]}})
	default:
		parts = append(parts, cqlir.In{Left: ref, Values: vals})
	}
	if hasNull {
		parts = append(parts, cqlir.IsNull{Expr: ref})
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return cqlir.Or{Predicates: parts}
}
