package boolexpr

import (
	"github.com/roach88/viewgen/internal/ir"
)

// maxDNFBranches bounds DNF expansion inside ExpensiveSimplify.
const maxDNFBranches = 64

// Simplify applies cheap structural rewrites: constant folding, flattening,
// duplicate removal, merging of Terms over the same variable, and
// detection of complementary children.
func Simplify(e Expr) Expr {
	switch e := e.(type) {
	case And:
		xs := make([]Expr, len(e))
		for i, x := range e {
			xs[i] = Simplify(x)
		}
		return simplifyJunction(NewAnd(xs...), true)
	case Or:
		xs := make([]Expr, len(e))
		for i, x := range e {
			xs[i] = Simplify(x)
		}
		return simplifyJunction(NewOr(xs...), false)
	case *Not:
		return NewNot(Simplify(e.X))
	}
	return e
}

func simplifyJunction(e Expr, conj bool) Expr {
	var xs []Expr
	switch e := e.(type) {
	case And:
		xs = e
	case Or:
		xs = e
	default:
		return e
	}

	var out []Expr
	termAt := map[string]int{}
	seen := map[string]bool{}
	for _, x := range xs {
		if t, ok := x.(*Term); ok {
			if i, ok := termAt[t.Var.Name]; ok {
				prev := out[i].(*Term)
				var merged Expr
				if conj {
					merged = intersectTerms(prev, t)
				} else {
					merged = unionTerms(prev, t)
				}
				if c, ok := merged.(Const); ok {
					return c
				}
				out[i] = merged
				continue
			}
			termAt[t.Var.Name] = len(out)
			out = append(out, t)
			continue
		}
		k := x.String()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, x)
	}

	keys := make(map[string]bool, len(out))
	for _, x := range out {
		keys[x.String()] = true
	}
	for _, x := range out {
		if keys[NewNot(x).String()] {
			// x and its negation: contradiction or tautology.
			return Const(!conj)
		}
	}
	if conj {
		return NewAnd(out...)
	}
	return NewOr(out...)
}

func intersectTerms(a, b *Term) Expr {
	var vals []ir.Value
	for _, v := range a.Values {
		if b.Contains(v) {
			vals = append(vals, v)
		}
	}
	return In(a.Var, vals...)
}

func unionTerms(a, b *Term) Expr {
	vals := append(append([]ir.Value{}, a.Values...), b.Values...)
	v := a.Var
	if b.Var.Nullable && !v.Nullable {
		v = b.Var
	}
	return In(v, vals...)
}

// ExpensiveSimplify simplifies e using satisfiability: contradictions
// become False, tautologies True, the formula is normalized to DNF when
// that does not grow it, and redundant conjuncts and disjuncts are
// dropped.
func ExpensiveSimplify(e Expr) Expr {
	e = Simplify(e)
	if _, ok := e.(Const); ok {
		return e
	}
	if !Satisfiable(e) {
		return False
	}
	if !Satisfiable(NewNot(e)) {
		return True
	}
	if d, ok := dnfExpr(e); ok && termCount(d) <= termCount(e) {
		e = d
	}
	return prune(e)
}

// prune drops children of a junction that are implied by (And) or imply
// (Or) the remaining children.
func prune(e Expr) Expr {
	var xs []Expr
	conj := false
	switch e := e.(type) {
	case And:
		xs, conj = e, true
	case Or:
		xs = e
	default:
		return e
	}
	kids := make([]Expr, len(xs))
	for i, x := range xs {
		kids[i] = prune(x)
	}
	removed := make([]bool, len(kids))
	for i := range kids {
		var others []Expr
		for j, k := range kids {
			if j != i && !removed[j] {
				others = append(others, k)
			}
		}
		if len(others) == 0 {
			continue
		}
		if conj {
			if !Satisfiable(NewAnd(NewAnd(others...), NewNot(kids[i]))) {
				removed[i] = true
			}
		} else if !Satisfiable(NewAnd(kids[i], NewNot(NewOr(others...)))) {
			removed[i] = true
		}
	}
	var kept []Expr
	for i, k := range kids {
		if !removed[i] {
			kept = append(kept, k)
		}
	}
	if conj {
		return Simplify(NewAnd(kept...))
	}
	return Simplify(NewOr(kept...))
}

// Conjunction is one branch of a DNF: literals joined by AND. A literal
// is a *Term or a *Not wrapping a *Term.
type Conjunction []Expr

// DNF is an OR of conjunctions.
type DNF []Conjunction

// ToDNF converts e to disjunctive normal form by distributing AND over OR
// and pushing negations down to Terms. ok is false when the expansion
// exceeds maxDNFBranches.
func ToDNF(e Expr) (DNF, bool) {
	b := &dnfBuilder{}
	d := b.build(e, false)
	if b.overflow {
		return nil, false
	}
	return d, true
}

type dnfBuilder struct {
	overflow bool
}

func (b *dnfBuilder) build(e Expr, neg bool) DNF {
	if b.overflow {
		return nil
	}
	switch e := e.(type) {
	case Const:
		if bool(e) != neg {
			return DNF{{}}
		}
		return DNF{}
	case *Term:
		if !neg {
			return DNF{{e}}
		}
		n := NewNot(e)
		if c, ok := n.(Const); ok {
			return b.build(c, false)
		}
		return DNF{{n}}
	case *Not:
		return b.build(e.X, !neg)
	case And:
		if neg {
			return b.or([]Expr(e), true)
		}
		return b.and([]Expr(e), false)
	case Or:
		if neg {
			return b.and([]Expr(e), true)
		}
		return b.or([]Expr(e), false)
	}
	return DNF{}
}

func (b *dnfBuilder) or(xs []Expr, neg bool) DNF {
	var out DNF
	for _, x := range xs {
		out = append(out, b.build(x, neg)...)
		if len(out) > maxDNFBranches {
			b.overflow = true
			return nil
		}
	}
	return out
}

func (b *dnfBuilder) and(xs []Expr, neg bool) DNF {
	out := DNF{{}}
	for _, x := range xs {
		sub := b.build(x, neg)
		var next DNF
		for _, l := range out {
			for _, r := range sub {
				c := make(Conjunction, 0, len(l)+len(r))
				next = append(next, append(append(c, l...), r...))
				if len(next) > maxDNFBranches {
					b.overflow = true
					return nil
				}
			}
		}
		out = next
	}
	return out
}

// Expr rebuilds d as a formula.
func (d DNF) Expr() Expr {
	xs := make([]Expr, len(d))
	for i, c := range d {
		xs[i] = NewAnd(c...)
	}
	return NewOr(xs...)
}

// dnfExpr converts e to a DNF formula, dropping unsatisfiable branches and
// branches subsumed by another branch.
func dnfExpr(e Expr) (Expr, bool) {
	d, ok := ToDNF(e)
	if !ok {
		return nil, false
	}
	var branches []Expr
	for _, c := range d {
		b := Simplify(NewAnd(c...))
		if IsFalse(b) || !Satisfiable(b) {
			continue
		}
		branches = append(branches, b)
	}
	removed := make([]bool, len(branches))
	for i := range branches {
		for j := range branches {
			if i == j || removed[j] {
				continue
			}
			// Drop branch i when it implies branch j.
			if !Satisfiable(NewAnd(branches[i], NewNot(branches[j]))) {
				removed[i] = true
				break
			}
		}
	}
	var kept []Expr
	for i, b := range branches {
		if !removed[i] {
			kept = append(kept, b)
		}
	}
	return Simplify(NewOr(kept...)), true
}

func termCount(e Expr) int {
	n := 0
	Walk(e, func(*Term) { n++ })
	return n
}
