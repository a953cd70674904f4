package boolexpr

import (
	"strings"

	"github.com/roach88/viewgen/internal/ir"
)

// Render writes e as a CQL predicate. name maps a variable to the
// expression that reads it (for example "T1.IsEmployee").
func Render(e Expr, name func(*Var) string) string {
	var sb strings.Builder
	render(&sb, e, name, false)
	return sb.String()
}

func render(sb *strings.Builder, e Expr, name func(*Var) string, nested bool) {
	switch e := e.(type) {
	case Const:
		if e {
			sb.WriteString("True")
		} else {
			sb.WriteString("False")
		}
	case *Term:
		renderTerm(sb, e, name(e.Var), nested)
	case *Not:
		if t, ok := e.X.(*Term); ok && len(t.Values) == 1 && ir.IsNull(t.Values[0]) {
			sb.WriteString(name(t.Var) + " IS NOT NULL")
			return
		}
		sb.WriteString("NOT (")
		render(sb, e.X, name, false)
		sb.WriteString(")")
	case And:
		renderJunction(sb, []Expr(e), " AND ", name, nested)
	case Or:
		renderJunction(sb, []Expr(e), " OR ", name, nested)
	}
}

func renderJunction(sb *strings.Builder, xs []Expr, sep string, name func(*Var) string, nested bool) {
	if nested {
		sb.WriteString("(")
	}
	for i, x := range xs {
		if i > 0 {
			sb.WriteString(sep)
		}
		render(sb, x, name, true)
	}
	if nested {
		sb.WriteString(")")
	}
}

func renderTerm(sb *strings.Builder, t *Term, col string, nested bool) {
	var vals []string
	hasNull := false
	for _, v := range t.Values {
		if ir.IsNull(v) {
			hasNull = true
			continue
		}
		vals = append(vals, ir.Literal(v))
	}
	var parts []string
	switch len(vals) {
	case 0:
	case 1:
		parts = append(parts, col+" = "+vals[0])
	default:
		parts = append(parts, col+" IN {"+strings.Join(vals, ", ")+"}")
	}
	if hasNull {
		parts = append(parts, col+" IS NULL")
	}
	if len(parts) == 2 && nested {
		sb.WriteString("(" + strings.Join(parts, " OR ") + ")")
		return
	}
	sb.WriteString(strings.Join(parts, " OR "))
}
