package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/viewgen/internal/metadata"
)

// CycleWarning reports tables whose foreign keys reference each other in
// a cycle.
//
// Cycles are legal. Self references (an employee's manager) and mutual
// references over nullable columns are common. When every foreign key on
// the cycle is over primary keys the level is "error": no left outer join
// nesting exists for such tables and none of them can hold a first row.
type CycleWarning struct {
	Path    []string `json:"path"`    // Cycle path: ["A", "B", "A"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning" or "error"
}

// AnalyzeCycles finds the foreign key cycles of a schema's tables.
//
// Each strongly connected component of the table graph with more than one
// table, or with a table referencing itself, yields one warning. Warnings
// are ordered by the first table of their path; an acyclic schema yields
// an empty list.
func AnalyzeCycles(s *metadata.Schema) []CycleWarning {
	g := newFKGraph(s)
	warnings := []CycleWarning{}
	for _, comp := range g.components() {
		if len(comp) == 1 && !g.references(comp[0], comp[0]) {
			continue
		}
		slices.Sort(comp)
		warnings = append(warnings, g.warning(comp))
	}
	slices.SortFunc(warnings, func(a, b CycleWarning) int { return strings.Compare(a.Path[0], b.Path[0]) })
	return warnings
}

type fkEdge struct{ from, to string }

// fkGraph links each table to the tables its foreign keys reference.
type fkGraph struct {
	tables   []string // sorted
	refs     map[string][]string
	overKeys map[fkEdge]bool // foreign key columns are the child's primary key
}

func newFKGraph(s *metadata.Schema) *fkGraph {
	g := &fkGraph{refs: map[string][]string{}, overKeys: map[fkEdge]bool{}}
	for _, e := range s.Extents() {
		if e.Kind != metadata.Table {
			continue
		}
		g.tables = append(g.tables, e.Name)
		for _, fk := range e.ForeignKeys {
			if !g.references(e.Name, fk.Parent.Name) {
				g.refs[e.Name] = append(g.refs[e.Name], fk.Parent.Name)
			}
			if fk.IsOverPrimaryKeys() {
				g.overKeys[fkEdge{e.Name, fk.Parent.Name}] = true
			}
		}
	}
	slices.Sort(g.tables)
	return g
}

func (g *fkGraph) references(from, to string) bool {
	return slices.Contains(g.refs[from], to)
}

// components returns the strongly connected components (Tarjan), visiting
// tables in name order.
func (g *fkGraph) components() [][]string {
	var (
		next    int
		order   = map[string]int{}
		low     = map[string]int{}
		pending []string
		onStack = map[string]bool{}
		out     [][]string
	)

	var visit func(t string)
	visit = func(t string) {
		order[t], low[t] = next, next
		next++
		pending = append(pending, t)
		onStack[t] = true

		for _, p := range g.refs[t] {
			if _, seen := order[p]; !seen {
				visit(p)
				low[t] = min(low[t], low[p])
			} else if onStack[p] {
				low[t] = min(low[t], order[p])
			}
		}
		if low[t] != order[t] {
			return
		}

		var comp []string
		for {
			top := pending[len(pending)-1]
			pending = pending[:len(pending)-1]
			onStack[top] = false
			comp = append(comp, top)
			if top == t {
				break
			}
		}
		out = append(out, comp)
	}

	for _, t := range g.tables {
		if _, seen := order[t]; !seen {
			visit(t)
		}
	}
	return out
}

// cyclePath walks from the first table of comp through unvisited members
// until it returns to the start.
func (g *fkGraph) cyclePath(comp []string) []string {
	if len(comp) == 0 {
		return []string{}
	}
	start := comp[0]
	path := []string{start}
	seen := map[string]bool{start: true}
	for cur := start; ; {
		step := ""
		for _, p := range g.refs[cur] {
			if p == start || (!seen[p] && slices.Contains(comp, p)) {
				step = p
				break
			}
		}
		if step == "" {
			return path
		}
		path = append(path, step)
		if step == start {
			return path
		}
		seen[step] = true
		cur = step
	}
}

func (g *fkGraph) warning(comp []string) CycleWarning {
	path := []string{comp[0], comp[0]}
	if len(comp) > 1 {
		path = g.cyclePath(comp)
	}

	level := "error"
	for i := 1; i < len(path); i++ {
		if !g.overKeys[fkEdge{path[i-1], path[i]}] {
			level = "warning"
			break
		}
	}

	what := "Foreign key cycle detected"
	if len(comp) == 1 {
		what = "Self-referencing table detected"
	}
	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("%s: %s", what, strings.Join(path, " → ")),
		Level:   level,
	}
}
