package boolexpr

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of satisfiability answers a Processor
// remembers.
const DefaultCacheSize = 4096

// FragmentQuery is a named selection: the attributes a fragment projects
// and the condition its rows satisfy.
type FragmentQuery struct {
	Label      string
	Attributes []string
	Condition  Expr
}

func (q FragmentQuery) String() string {
	return q.Label + ": [" + strings.Join(q.Attributes, ", ") + "] WHERE " + q.Condition.String()
}

// Intersect returns the fragment satisfied by rows of both q and other.
func (q FragmentQuery) Intersect(other FragmentQuery) FragmentQuery {
	return FragmentQuery{
		Label:      "(" + q.Label + " & " + other.Label + ")",
		Attributes: unionStrings(q.Attributes, other.Attributes),
		Condition:  NewAnd(q.Condition, other.Condition),
	}
}

// Union returns the fragment satisfied by rows of q or other.
func (q FragmentQuery) Union(other FragmentQuery) FragmentQuery {
	return FragmentQuery{
		Label:      "(" + q.Label + " | " + other.Label + ")",
		Attributes: unionStrings(q.Attributes, other.Attributes),
		Condition:  NewOr(q.Condition, other.Condition),
	}
}

// Difference returns the fragment satisfied by rows of q but not other.
func (q FragmentQuery) Difference(other FragmentQuery) FragmentQuery {
	return FragmentQuery{
		Label:      "(" + q.Label + " - " + other.Label + ")",
		Attributes: q.Attributes,
		Condition:  NewAnd(q.Condition, NewNot(other.Condition)),
	}
}

func unionStrings(a, b []string) []string {
	out := append([]string{}, a...)
	for _, s := range b {
		found := false
		for _, t := range out {
			if t == s {
				found = true
				break
			}
		}
		if !found {
			out = append(out, s)
		}
	}
	return out
}

// KB is a knowledge base: a conjunction of facts that hold for every row.
type KB struct {
	facts []Expr
	seen  map[string]bool
}

// NewKB returns an empty knowledge base.
func NewKB() *KB {
	return &KB{seen: map[string]bool{}}
}

// Add records a fact. True facts and duplicates are ignored.
func (kb *KB) Add(fact Expr) {
	fact = Simplify(fact)
	if IsTrue(fact) {
		return
	}
	k := fact.String()
	if kb.seen[k] {
		return
	}
	kb.seen[k] = true
	kb.facts = append(kb.facts, fact)
}

// AddImplication records a → b.
func (kb *KB) AddImplication(a, b Expr) {
	kb.Add(Implies(a, b))
}

// AddEquivalence records a ↔ b.
func (kb *KB) AddEquivalence(a, b Expr) {
	kb.AddImplication(a, b)
	kb.AddImplication(b, a)
}

// Merge adds every fact of other.
func (kb *KB) Merge(other *KB) {
	for _, f := range other.facts {
		kb.Add(f)
	}
}

// Facts returns the recorded facts.
func (kb *KB) Facts() []Expr {
	return kb.facts
}

// Len is the number of facts.
func (kb *KB) Len() int {
	return len(kb.facts)
}

// relevant returns the conjunction of the facts connected to e through
// shared variables.
func (kb *KB) relevant(e Expr) Expr {
	if kb == nil || len(kb.facts) == 0 {
		return True
	}
	names := map[string]bool{}
	for _, v := range Vars(e) {
		names[v.Name] = true
	}
	factVars := make([][]*Var, len(kb.facts))
	for i, f := range kb.facts {
		factVars[i] = Vars(f)
	}
	used := make([]bool, len(kb.facts))
	for changed := true; changed; {
		changed = false
		for i, vs := range factVars {
			if used[i] {
				continue
			}
			for _, v := range vs {
				if names[v.Name] {
					used[i] = true
					changed = true
					for _, w := range vs {
						names[w.Name] = true
					}
					break
				}
			}
		}
	}
	var out []Expr
	for i, f := range kb.facts {
		if used[i] {
			out = append(out, f)
		}
	}
	return NewAnd(out...)
}

// Processor answers satisfiability, containment, disjointness and
// equivalence questions relative to a knowledge base. Answers are
// memoized in an LRU cache keyed by the formula text.
type Processor struct {
	kb    *KB
	cache *lru.Cache[string, bool]

	hits, misses int
}

// NewProcessor returns a processor over kb. kb may be nil.
func NewProcessor(kb *KB) *Processor {
	return NewProcessorSize(kb, DefaultCacheSize)
}

// NewProcessorSize is NewProcessor with an explicit cache size.
func NewProcessorSize(kb *KB, size int) *Processor {
	if kb == nil {
		kb = NewKB()
	}
	cache, err := lru.New[string, bool](size)
	if err != nil {
		// Only returned for a non-positive size.
		cache, _ = lru.New[string, bool](DefaultCacheSize)
	}
	return &Processor{kb: kb, cache: cache}
}

// KB returns the processor's knowledge base.
func (p *Processor) KB() *KB {
	return p.kb
}

// IsSatisfiable reports whether e can hold given the knowledge base.
func (p *Processor) IsSatisfiable(e Expr) bool {
	e = Simplify(e)
	if c, ok := e.(Const); ok {
		return bool(c)
	}
	full := Simplify(NewAnd(p.kb.relevant(e), e))
	key := full.String()
	if ans, ok := p.cache.Get(key); ok {
		p.hits++
		return ans
	}
	p.misses++
	ans := sat(full)
	p.cache.Add(key, ans)
	return ans
}

// IsContainedIn reports whether every row satisfying a satisfies b.
func (p *Processor) IsContainedIn(a, b Expr) bool {
	return !p.IsSatisfiable(NewAnd(a, NewNot(b)))
}

// IsDisjoint reports whether no row satisfies both a and b.
func (p *Processor) IsDisjoint(a, b Expr) bool {
	return !p.IsSatisfiable(NewAnd(a, b))
}

// IsEquivalent reports whether a and b select the same rows.
func (p *Processor) IsEquivalent(a, b Expr) bool {
	return p.IsContainedIn(a, b) && p.IsContainedIn(b, a)
}

// Contains is IsContainedIn over fragment conditions: q2 ⊆ q1.
func (p *Processor) Contains(q1, q2 FragmentQuery) bool {
	return p.IsContainedIn(q2.Condition, q1.Condition)
}

// Stats returns cache hits and misses.
func (p *Processor) Stats() (hits, misses int) {
	return p.hits, p.misses
}
