package boolexpr

import (
	"github.com/roach88/viewgen/internal/ir"
)

// choice is one value a variable can take during case splitting. other
// stands for every non-null value of an open domain not mentioned in the
// formula.
type choice struct {
	val   ir.Value
	other bool
}

// Satisfiable reports whether some assignment of values to e's variables
// makes e true. It splits on one variable at a time over its effective
// domain and folds constants after each assignment.
func Satisfiable(e Expr) bool {
	return sat(Simplify(e))
}

// Valid reports whether e holds under every assignment.
func Valid(e Expr) bool {
	return !Satisfiable(NewNot(e))
}

func sat(e Expr) bool {
	if c, ok := e.(Const); ok {
		return bool(c)
	}
	vars := Vars(e)
	if len(vars) == 0 {
		return false
	}
	v := vars[0]
	for _, ch := range choices(e, v) {
		if sat(assign(e, v.Name, ch)) {
			return true
		}
	}
	return false
}

// choices returns the effective domain of v within e.
func choices(e Expr, v *Var) []choice {
	nullable := false
	var mentioned []ir.Value
	seen := map[string]bool{}
	Walk(e, func(t *Term) {
		if t.Var.Name != v.Name {
			return
		}
		if t.Var.Nullable {
			nullable = true
		}
		for _, val := range t.Values {
			if ir.IsNull(val) {
				nullable = true
				continue
			}
			if k := ir.Key(val); !seen[k] {
				seen[k] = true
				mentioned = append(mentioned, val)
			}
		}
	})

	var out []choice
	if v.Closed() {
		for _, val := range v.Domain {
			out = append(out, choice{val: val})
		}
	} else {
		for _, val := range mentioned {
			out = append(out, choice{val: val})
		}
		out = append(out, choice{other: true})
	}
	if nullable {
		out = append(out, choice{val: ir.Null{}})
	}
	return out
}

func assign(e Expr, name string, ch choice) Expr {
	return Rewrite(e, func(t *Term) Expr {
		if t.Var.Name != name {
			return t
		}
		if ch.other {
			return False
		}
		return Const(t.Contains(ch.val))
	})
}
