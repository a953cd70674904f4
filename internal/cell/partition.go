package cell

import (
	"slices"

	"github.com/roach88/viewgen/internal/metadata"
)

// Partition splits cells into independent groups: the connected
// components of a graph whose edges join cells that share a conceptual
// extent, share a table, map tables related by a foreign key, or map an
// association set and one of the entity sets at its ends. Groups are
// ordered by their smallest cell number; cells keep numeric order inside a
// group.
func Partition(cells []*Cell) [][]*Cell {
	graph := make(map[int][]int, len(cells))
	addEdge := func(a, b int) {
		if a == b {
			return
		}
		graph[a] = append(graph[a], b)
		graph[b] = append(graph[b], a)
	}

	byExtent := map[*metadata.Extent][]int{}
	for i, c := range cells {
		byExtent[c.CQuery.Extent] = append(byExtent[c.CQuery.Extent], i)
		byExtent[c.SQuery.Extent] = append(byExtent[c.SQuery.Extent], i)
	}
	for _, members := range byExtent {
		for _, m := range members[1:] {
			addEdge(members[0], m)
		}
	}
	for ext, members := range byExtent {
		switch ext.Kind {
		case metadata.Table:
			for _, fk := range ext.ForeignKeys {
				for _, other := range byExtent[fk.Parent] {
					addEdge(members[0], other)
				}
			}
		case metadata.AssociationSet:
			for _, end := range ext.Ends {
				for _, other := range byExtent[end.Set] {
					addEdge(members[0], other)
				}
			}
		}
	}

	visited := make([]bool, len(cells))
	var groups [][]*Cell
	for i := range cells {
		if visited[i] {
			continue
		}
		var comp []int
		var visit func(int)
		visit = func(n int) {
			visited[n] = true
			comp = append(comp, n)
			for _, w := range graph[n] {
				if !visited[w] {
					visit(w)
				}
			}
		}
		visit(i)
		slices.Sort(comp)
		group := make([]*Cell, len(comp))
		for j, n := range comp {
			group[j] = cells[n]
		}
		groups = append(groups, group)
	}
	slices.SortFunc(groups, func(a, b []*Cell) int {
		return a[0].Number - b[0].Number
	})
	return groups
}
