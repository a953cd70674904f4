package cqlir

import (
	"fmt"
	"slices"
)

// ValidationResult lists the structural problems of a block tree.
type ValidationResult struct {
	// Valid is true when Problems is empty.
	Valid    bool
	Problems []string
}

// Validate checks a block tree:
//  1. every block projects at least one column (views: a value or columns)
//  2. join inputs have distinct aliases and all but the first have ON
//  3. references inside a join or view name one of its input aliases
//  4. union legs project the same column names in the same order
//  5. no nil blocks, expressions or constructors without a type
//
// Validate is a pure function with no side effects.
func Validate(b Block) ValidationResult {
	v := &validator{}
	v.block(b)
	return ValidationResult{Valid: len(v.problems) == 0, Problems: v.problems}
}

type validator struct {
	problems []string
}

func (v *validator) add(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

// block validates b and returns its column names.
func (v *validator) block(b Block) []string {
	switch blk := b.(type) {
	case nil:
		v.add("nil block")
		return nil
	case *Scan:
		if blk.Extent == "" {
			v.add("scan without extent")
		}
		if len(blk.Columns) == 0 {
			v.add("scan of %s projects no columns", blk.Extent)
		}
		scope := []string{blk.Alias}
		for _, c := range blk.Columns {
			v.expr(c.Expr, scope, "scan of "+blk.Extent)
		}
		v.pred(blk.Filter, scope, "scan of "+blk.Extent)
		return names(blk.Columns)
	case *Join:
		if len(blk.Inputs) < 2 {
			v.add("join with %d inputs", len(blk.Inputs))
		}
		var scope []string
		for i, in := range blk.Inputs {
			v.block(in.Block)
			if slices.Contains(scope, in.Alias) {
				v.add("duplicate join alias %s", in.Alias)
			}
			scope = append(scope, in.Alias)
			if i > 0 && in.On == nil {
				v.add("join input %s has no ON condition", in.Alias)
			}
			v.pred(in.On, scope, "join ON "+in.Alias)
		}
		if len(blk.Columns) == 0 {
			v.add("join projects no columns")
		}
		for _, c := range blk.Columns {
			v.expr(c.Expr, scope, "join column "+c.Name)
		}
		v.pred(blk.Filter, scope, "join filter")
		return names(blk.Columns)
	case *Union:
		if len(blk.Legs) < 2 {
			v.add("union with %d legs", len(blk.Legs))
		}
		var first []string
		for i, leg := range blk.Legs {
			cols := v.block(leg)
			if i == 0 {
				first = cols
				continue
			}
			if !slices.Equal(first, cols) {
				v.add("union leg %d projects %v, first leg %v", i, cols, first)
			}
		}
		return first
	case *View:
		v.block(blk.Input)
		scope := []string{blk.Alias}
		if blk.Value == nil && len(blk.Columns) == 0 {
			v.add("view of %s produces nothing", blk.Extent)
		}
		if blk.Value != nil {
			v.expr(blk.Value, scope, "view of "+blk.Extent)
		}
		for _, c := range blk.Columns {
			v.expr(c.Expr, scope, "view column "+c.Name)
		}
		v.pred(blk.Filter, scope, "view filter")
		return names(blk.Columns)
	default:
		v.add("unknown block type %T", b)
		return nil
	}
}

func (v *validator) expr(e Expr, scope []string, where string) {
	switch x := e.(type) {
	case nil:
		v.add("%s: nil expression", where)
	case Ref:
		if !slices.Contains(scope, x.Alias) {
			v.add("%s: reference to unknown alias %s", where, x.Alias)
		}
	case Const:
	case Case:
		if len(x.Whens) == 0 {
			v.add("%s: CASE without branches", where)
		}
		for _, w := range x.Whens {
			v.pred(w.Cond, scope, where)
			v.expr(w.Then, scope, where)
		}
		if x.Else != nil {
			v.expr(x.Else, scope, where)
		}
	case Coalesce:
		for _, a := range x.Args {
			v.expr(a, scope, where)
		}
	case Construct:
		if x.Type == "" {
			v.add("%s: constructor without type", where)
		}
		for _, f := range x.Fields {
			v.expr(f.Expr, scope, where)
		}
	case Cond:
		v.pred(x.Pred, scope, where)
	default:
		v.add("%s: unknown expression type %T", where, e)
	}
}

func (v *validator) pred(p Predicate, scope []string, where string) {
	switch x := p.(type) {
	case nil:
	case Compare:
		v.expr(x.Left, scope, where)
		v.expr(x.Right, scope, where)
	case In:
		v.expr(x.Left, scope, where)
		if len(x.Values) == 0 {
			v.add("%s: IN without values", where)
		}
	case IsNull:
		v.expr(x.Expr, scope, where)
	case IsOf:
		if !slices.Contains(scope, x.Alias) {
			v.add("%s: type test of unknown alias %s", where, x.Alias)
		}
	case Flag:
		v.expr(x.Expr, scope, where)
	case And:
		for _, q := range x.Predicates {
			v.pred(q, scope, where)
		}
	case Or:
		for _, q := range x.Predicates {
			v.pred(q, scope, where)
		}
	case Not:
		if x.Predicate == nil {
			v.add("%s: NOT of nothing", where)
		}
		v.pred(x.Predicate, scope, where)
	default:
		v.add("%s: unknown predicate type %T", where, p)
	}
}

func names(cols []Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}
