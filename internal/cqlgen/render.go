package cqlgen

import (
	"fmt"
	"strings"

	"github.com/roach88/viewgen/internal/cqlir"
	"github.com/roach88/viewgen/internal/ir"
)

const indent = "    "

// Render converts a command tree to CQL text. Output is deterministic:
// the same tree always renders to the same text.
func Render(b cqlir.Block) (string, error) {
	if b == nil {
		return "", fmt.Errorf("cannot render nil block")
	}
	lines, err := renderBlock(b)
	if err != nil {
		return "", err
	}
	return strings.Join(lines, "\n"), nil
}

func renderBlock(b cqlir.Block) ([]string, error) {
	switch blk := b.(type) {
	case *cqlir.View:
		return renderView(blk)
	case *cqlir.Scan:
		return renderScan(blk)
	case *cqlir.Join:
		return renderJoin(blk)
	case *cqlir.Union:
		return renderUnion(blk)
	default:
		return nil, fmt.Errorf("unsupported block type: %T", b)
	}
}

// renderView renders the top block. Query views construct one value per
// row; update views project the table's columns.
func renderView(v *cqlir.View) ([]string, error) {
	var lines []string
	if v.Value != nil {
		lines = append(lines, "SELECT VALUE -- Constructing "+v.Extent)
		value, err := renderValue(v.Value)
		if err != nil {
			return nil, fmt.Errorf("compile value: %w", err)
		}
		lines = append(lines, indentLines(value)...)
	} else {
		lines = append(lines, "SELECT -- Constructing "+v.Extent)
		for i, c := range v.Columns {
			col, err := renderColumn(c)
			if err != nil {
				return nil, err
			}
			if i < len(v.Columns)-1 {
				col += ","
			}
			lines = append(lines, indent+col)
		}
	}
	from, err := renderFrom(v.Input, v.Alias)
	if err != nil {
		return nil, err
	}
	lines = append(lines, "FROM "+from[0])
	lines = append(lines, from[1:]...)
	if v.Filter != nil {
		where, err := renderPredicate(v.Filter, false)
		if err != nil {
			return nil, fmt.Errorf("compile filter: %w", err)
		}
		lines = append(lines, "WHERE "+where)
	}
	return lines, nil
}

// renderValue renders a top-level CASE one branch per line.
func renderValue(x cqlir.Expr) ([]string, error) {
	c, ok := x.(cqlir.Case)
	if !ok {
		s, err := renderExpr(x)
		if err != nil {
			return nil, err
		}
		return []string{s}, nil
	}
	lines := []string{"CASE"}
	for _, w := range c.Whens {
		cond, err := renderPredicate(w.Cond, false)
		if err != nil {
			return nil, err
		}
		then, err := renderExpr(w.Then)
		if err != nil {
			return nil, err
		}
		lines = append(lines, indent+"WHEN "+cond+" THEN "+then)
	}
	if c.Else != nil {
		e, err := renderExpr(c.Else)
		if err != nil {
			return nil, err
		}
		lines = append(lines, indent+"ELSE "+e)
	}
	return append(lines, "END"), nil
}

// renderFrom renders "(<block>) AS alias" across lines.
func renderFrom(b cqlir.Block, alias string) ([]string, error) {
	inner, err := renderBlock(b)
	if err != nil {
		return nil, err
	}
	lines := []string{"("}
	lines = append(lines, indentLines(inner)...)
	return append(lines, ") AS "+alias), nil
}

func renderScan(s *cqlir.Scan) ([]string, error) {
	cols, err := renderColumns(s.Columns)
	if err != nil {
		return nil, err
	}
	distinct := ""
	if s.Distinct {
		distinct = "DISTINCT "
	}
	lines := []string{
		"SELECT " + distinct + cols,
		fmt.Sprintf("FROM %s AS %s", s.Extent, s.Alias),
	}
	if s.Filter != nil {
		where, err := renderPredicate(s.Filter, false)
		if err != nil {
			return nil, fmt.Errorf("compile filter: %w", err)
		}
		lines = append(lines, "WHERE "+where)
	}
	return lines, nil
}

func renderJoin(j *cqlir.Join) ([]string, error) {
	cols, err := renderColumns(j.Columns)
	if err != nil {
		return nil, err
	}
	lines := []string{"SELECT " + cols}
	for i, in := range j.Inputs {
		from, err := renderFrom(in.Block, in.Alias)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			lines = append(lines, "FROM "+from[0])
		} else {
			lines = append(lines, j.Kind.String()+" "+from[0])
		}
		lines = append(lines, from[1:]...)
		if in.On != nil {
			on, err := renderPredicate(in.On, false)
			if err != nil {
				return nil, fmt.Errorf("compile join condition: %w", err)
			}
			lines[len(lines)-1] += " ON " + on
		}
	}
	if j.Filter != nil {
		where, err := renderPredicate(j.Filter, false)
		if err != nil {
			return nil, fmt.Errorf("compile filter: %w", err)
		}
		lines = append(lines, "WHERE "+where)
	}
	return lines, nil
}

func renderUnion(u *cqlir.Union) ([]string, error) {
	var lines []string
	for i, leg := range u.Legs {
		if i > 0 {
			lines = append(lines, "UNION ALL")
		}
		l, err := renderBlock(leg)
		if err != nil {
			return nil, err
		}
		lines = append(lines, l...)
	}
	return lines, nil
}

// renderColumns renders a column list. A reference already carrying the
// column's name needs no alias.
func renderColumns(cols []cqlir.Column) (string, error) {
	parts := make([]string, 0, len(cols))
	for _, c := range cols {
		s, err := renderColumn(c)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ", "), nil
}

func renderColumn(c cqlir.Column) (string, error) {
	s, err := renderExpr(c.Expr)
	if err != nil {
		return "", fmt.Errorf("compile column %s: %w", c.Name, err)
	}
	if ref, ok := c.Expr.(cqlir.Ref); ok && ref.Column == c.Name {
		return s, nil
	}
	return s + " AS " + c.Name, nil
}

func renderExpr(x cqlir.Expr) (string, error) {
	switch e := x.(type) {
	case cqlir.Ref:
		if e.Column == "" {
			return e.Alias, nil
		}
		return e.Alias + "." + e.Column, nil
	case cqlir.Const:
		return ir.Literal(e.Value), nil
	case cqlir.Coalesce:
		args, err := renderExprs(e.Args)
		if err != nil {
			return "", err
		}
		return "COALESCE(" + args + ")", nil
	case cqlir.Construct:
		args := make([]cqlir.Expr, len(e.Fields))
		for i, f := range e.Fields {
			args[i] = f.Expr
		}
		s, err := renderExprs(args)
		if err != nil {
			return "", err
		}
		return "[" + e.Type + "](" + s + ")", nil
	case cqlir.Case:
		var sb strings.Builder
		sb.WriteString("CASE")
		for _, w := range e.Whens {
			cond, err := renderPredicate(w.Cond, false)
			if err != nil {
				return "", err
			}
			then, err := renderExpr(w.Then)
			if err != nil {
				return "", err
			}
			sb.WriteString(" WHEN " + cond + " THEN " + then)
		}
		if e.Else != nil {
			el, err := renderExpr(e.Else)
			if err != nil {
				return "", err
			}
			sb.WriteString(" ELSE " + el)
		}
		sb.WriteString(" END")
		return sb.String(), nil
	case cqlir.Cond:
		p, err := renderPredicate(e.Pred, false)
		if err != nil {
			return "", err
		}
		return "(" + p + ")", nil
	default:
		return "", fmt.Errorf("unsupported expression type: %T", x)
	}
}

func renderExprs(xs []cqlir.Expr) (string, error) {
	parts := make([]string, len(xs))
	for i, x := range xs {
		s, err := renderExpr(x)
		if err != nil {
			return "", err
		}
		parts[i] = s
	}
	return strings.Join(parts, ", "), nil
}

// renderPredicate renders p. nested wraps junctions in parentheses.
func renderPredicate(p cqlir.Predicate, nested bool) (string, error) {
	switch pred := p.(type) {
	case cqlir.Compare:
		l, err := renderExpr(pred.Left)
		if err != nil {
			return "", err
		}
		r, err := renderExpr(pred.Right)
		if err != nil {
			return "", err
		}
		return l + " = " + r, nil
	case cqlir.In:
		l, err := renderExpr(pred.Left)
		if err != nil {
			return "", err
		}
		vals := make([]string, len(pred.Values))
		for i, v := range pred.Values {
			vals[i] = ir.Literal(v)
		}
		return l + " IN {" + strings.Join(vals, ", ") + "}", nil
	case cqlir.IsNull:
		s, err := renderExpr(pred.Expr)
		if err != nil {
			return "", err
		}
		if pred.Negated {
			return s + " IS NOT NULL", nil
		}
		return s + " IS NULL", nil
	case cqlir.IsOf:
		only := ""
		if pred.Only {
			only = "ONLY "
		}
		return fmt.Sprintf("%s IS OF (%s%s)", pred.Alias, only, pred.Type), nil
	case cqlir.Flag:
		return renderExpr(pred.Expr)
	case cqlir.Not:
		s, err := renderPredicate(pred.Predicate, true)
		if err != nil {
			return "", err
		}
		switch inner := pred.Predicate.(type) {
		case cqlir.Flag:
			return "NOT " + s, nil
		case cqlir.And:
			if len(inner.Predicates) > 1 {
				return "NOT " + s, nil
			}
		case cqlir.Or:
			if len(inner.Predicates) > 1 {
				return "NOT " + s, nil
			}
		}
		return "NOT (" + s + ")", nil
	case cqlir.And:
		if len(pred.Predicates) == 0 {
			return "True", nil
		}
		return renderJunction(pred.Predicates, " AND ", nested)
	case cqlir.Or:
		if len(pred.Predicates) == 0 {
			return "False", nil
		}
		return renderJunction(pred.Predicates, " OR ", nested)
	default:
		return "", fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func renderJunction(ps []cqlir.Predicate, sep string, nested bool) (string, error) {
	if len(ps) == 1 {
		return renderPredicate(ps[0], nested)
	}
	parts := make([]string, len(ps))
	for i, q := range ps {
		s, err := renderPredicate(q, true)
		if err != nil {
			return "", err
		}
		parts[i] = s
	}
	out := strings.Join(parts, sep)
	if nested {
		return "(" + out + ")", nil
	}
	return out, nil
}

func indentLines(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = indent + l
	}
	return out
}
