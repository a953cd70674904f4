package boolexpr

import (
	"slices"
	"strings"

	"github.com/roach88/viewgen/internal/ir"
)

// Var is a finite-domain variable. Two variables are the same variable iff
// their names are equal.
type Var struct {
	Name string

	// Domain is the closed set of non-null values, or nil when the domain
	// is open.
	Domain []ir.Value

	Nullable bool
}

// Closed reports whether v's domain is closed.
func (v *Var) Closed() bool {
	return v.Domain != nil
}

// full returns every value of a closed domain including NULL when
// nullable.
func (v *Var) full() []ir.Value {
	out := slices.Clone(v.Domain)
	if v.Nullable {
		out = append(out, ir.Null{})
	}
	return out
}

// NewBoolVar returns a variable over {false, true}.
func NewBoolVar(name string, nullable bool) *Var {
	return &Var{Name: name, Domain: []ir.Value{ir.Bool(false), ir.Bool(true)}, Nullable: nullable}
}

// Expr is a boolean formula. It is a sealed sum type: Const, *Term, And,
// Or and *Not are its only implementations. Exprs are immutable.
type Expr interface {
	isExpr()
	String() string
}

// Const is a boolean constant.
type Const bool

const (
	True  = Const(true)
	False = Const(false)
)

func (Const) isExpr() {}

func (c Const) String() string {
	if c {
		return "True"
	}
	return "False"
}

// Term is the atom "Var IN Values". Values are sorted and unique.
type Term struct {
	Var    *Var
	Values []ir.Value
}

func (*Term) isExpr() {}

func (t *Term) String() string {
	if len(t.Values) == 1 {
		if ir.IsNull(t.Values[0]) {
			return t.Var.Name + " IS NULL"
		}
		return t.Var.Name + "=" + ir.Format(t.Values[0])
	}
	parts := make([]string, len(t.Values))
	for i, v := range t.Values {
		parts[i] = ir.Format(v)
	}
	return t.Var.Name + " IN (" + strings.Join(parts, ", ") + ")"
}

// Contains reports whether val is one of t's values.
func (t *Term) Contains(val ir.Value) bool {
	k := ir.Key(val)
	for _, v := range t.Values {
		if ir.Key(v) == k {
			return true
		}
	}
	return false
}

// And is a conjunction. An empty And is True.
type And []Expr

func (And) isExpr() {}

func (a And) String() string { return join([]Expr(a), " AND ") }

// Or is a disjunction. An empty Or is False.
type Or []Expr

func (Or) isExpr() {}

func (o Or) String() string { return join([]Expr(o), " OR ") }

// Not negates X.
type Not struct {
	X Expr
}

func (*Not) isExpr() {}

func (n *Not) String() string {
	return "NOT(" + n.X.String() + ")"
}

func join(xs []Expr, sep string) string {
	if len(xs) == 0 {
		if sep == " AND " {
			return "True"
		}
		return "False"
	}
	parts := make([]string, len(xs))
	for i, x := range xs {
		s := x.String()
		switch x.(type) {
		case And, Or:
			s = "(" + s + ")"
		}
		parts[i] = s
	}
	return strings.Join(parts, sep)
}

// In builds "v IN values". Values outside a closed domain are dropped. The
// result folds to False for no values and to True when every value of a
// closed domain is listed.
func In(v *Var, values ...ir.Value) Expr {
	seen := make(map[string]bool, len(values))
	var vals []ir.Value
	for _, val := range values {
		if val == nil {
			val = ir.Null{}
		}
		if ir.IsNull(val) && !v.Nullable {
			continue
		}
		if v.Closed() && !ir.IsNull(val) && !containsValue(v.Domain, val) {
			continue
		}
		k := ir.Key(val)
		if seen[k] {
			continue
		}
		seen[k] = true
		vals = append(vals, val)
	}
	if len(vals) == 0 {
		return False
	}
	if v.Closed() && len(vals) == len(v.full()) {
		return True
	}
	ir.SortValues(vals)
	return &Term{Var: v, Values: vals}
}

// Eq builds "v = val".
func Eq(v *Var, val ir.Value) Expr {
	return In(v, val)
}

// IsNull builds "v IS NULL". It is False for non-nullable variables.
func IsNull(v *Var) Expr {
	return In(v, ir.Null{})
}

// IsNotNull builds "v IS NOT NULL". For closed domains this is a Term over
// the non-null values; for open domains a negated IS NULL.
func IsNotNull(v *Var) Expr {
	if !v.Nullable {
		return True
	}
	if v.Closed() {
		return In(v, v.Domain...)
	}
	return NewNot(IsNull(v))
}

// NewAnd builds a conjunction, folding constants and flattening nested
// conjunctions.
func NewAnd(xs ...Expr) Expr {
	var out And
	for _, x := range xs {
		switch x := x.(type) {
		case Const:
			if !x {
				return False
			}
		case And:
			out = append(out, x...)
		default:
			out = append(out, x)
		}
	}
	switch len(out) {
	case 0:
		return True
	case 1:
		return out[0]
	}
	return out
}

// NewOr builds a disjunction, folding constants and flattening nested
// disjunctions.
func NewOr(xs ...Expr) Expr {
	var out Or
	for _, x := range xs {
		switch x := x.(type) {
		case Const:
			if x {
				return True
			}
		case Or:
			out = append(out, x...)
		default:
			out = append(out, x)
		}
	}
	switch len(out) {
	case 0:
		return False
	case 1:
		return out[0]
	}
	return out
}

// NewNot negates x. Constants fold, double negation cancels, and a Term
// over a closed domain becomes the complementary Term.
func NewNot(x Expr) Expr {
	switch x := x.(type) {
	case Const:
		return !x
	case *Not:
		return x.X
	case *Term:
		if x.Var.Closed() {
			var rest []ir.Value
			for _, v := range x.Var.full() {
				if !x.Contains(v) {
					rest = append(rest, v)
				}
			}
			return In(x.Var, rest...)
		}
	}
	return &Not{X: x}
}

// Implies builds a → b.
func Implies(a, b Expr) Expr {
	return NewOr(NewNot(a), b)
}

// Iff builds a ↔ b.
func Iff(a, b Expr) Expr {
	return NewAnd(Implies(a, b), Implies(b, a))
}

// Vars returns the variables of e in order of first appearance.
func Vars(e Expr) []*Var {
	var out []*Var
	seen := map[string]bool{}
	Walk(e, func(t *Term) {
		if !seen[t.Var.Name] {
			seen[t.Var.Name] = true
			out = append(out, t.Var)
		}
	})
	return out
}

// Walk calls fn for every Term in e.
func Walk(e Expr, fn func(*Term)) {
	switch e := e.(type) {
	case *Term:
		fn(e)
	case And:
		for _, x := range e {
			Walk(x, fn)
		}
	case Or:
		for _, x := range e {
			Walk(x, fn)
		}
	case *Not:
		Walk(e.X, fn)
	}
}

// Rewrite rebuilds e, replacing every Term with fn's result.
func Rewrite(e Expr, fn func(*Term) Expr) Expr {
	switch e := e.(type) {
	case *Term:
		return fn(e)
	case And:
		xs := make([]Expr, len(e))
		for i, x := range e {
			xs[i] = Rewrite(x, fn)
		}
		return NewAnd(xs...)
	case Or:
		xs := make([]Expr, len(e))
		for i, x := range e {
			xs[i] = Rewrite(x, fn)
		}
		return NewOr(xs...)
	case *Not:
		return NewNot(Rewrite(e.X, fn))
	}
	return e
}

// RenameVars replaces variables by name. Variables missing from the map
// are kept.
func RenameVars(e Expr, m map[string]*Var) Expr {
	return Rewrite(e, func(t *Term) Expr {
		if nv, ok := m[t.Var.Name]; ok {
			return In(nv, t.Values...)
		}
		return t
	})
}

// IsTrue reports whether e is the constant True.
func IsTrue(e Expr) bool {
	c, ok := e.(Const)
	return ok && bool(c)
}

// IsFalse reports whether e is the constant False.
func IsFalse(e Expr) bool {
	c, ok := e.(Const)
	return ok && !bool(c)
}

func containsValue(vs []ir.Value, val ir.Value) bool {
	k := ir.Key(val)
	for _, v := range vs {
		if ir.Key(v) == k {
			return true
		}
	}
	return false
}
