package compiler

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/viewgen/internal/metadata"
	"github.com/roach88/viewgen/internal/testutil"
)

// tables declares int tables keyed by Id with the given extra columns.
func tables(t *testing.T, s *metadata.Schema, defs map[string][]string, order ...string) {
	t.Helper()
	for _, name := range order {
		cols := []*metadata.Property{{Name: "Id", Type: metadata.TypeInt}}
		for _, c := range defs[name] {
			cols = append(cols, &metadata.Property{Name: c, Type: metadata.TypeInt, Nullable: true})
		}
		_, err := s.AddTable(name, []string{"Id"}, cols...)
		require.NoError(t, err)
	}
}

func fk(t *testing.T, s *metadata.Schema, child, col, parent string) {
	t.Helper()
	_, err := s.AddForeignKey("FK_"+child+"_"+col, s.Extent(child), []string{col}, s.Extent(parent), []string{"Id"})
	require.NoError(t, err)
}

// TestAnalyzeCycles_Empty tests that a schema without tables produces no warnings.
func TestAnalyzeCycles_Empty(t *testing.T) {
	warnings := AnalyzeCycles(metadata.NewSchema())
	assert.Empty(t, warnings)
}

// TestAnalyzeCycles_DAG tests that fixture hierarchies produce no warnings.
func TestAnalyzeCycles_DAG(t *testing.T) {
	for _, m := range []*metadata.Mapping{testutil.TablePerType(), testutil.CustomerOrders(), testutil.EntitySplitting()} {
		assert.Empty(t, AnalyzeCycles(m.Schema), m.Name)
	}
}

// TestAnalyzeCycles_SelfLoop tests detection of a self-referencing table.
func TestAnalyzeCycles_SelfLoop(t *testing.T) {
	s := metadata.NewSchema()
	tables(t, s, map[string][]string{"Employee": {"ManagerId"}}, "Employee")
	fk(t, s, "Employee", "ManagerId", "Employee")

	warnings := AnalyzeCycles(s)
	require.Len(t, warnings, 1)

	warning := warnings[0]
	assert.Equal(t, []string{"Employee", "Employee"}, warning.Path)
	assert.Contains(t, warning.Message, "Self-referencing")
	assert.Equal(t, "warning", warning.Level)
}

// TestAnalyzeCycles_TwoNodeCycle tests detection of A → B → A cycle.
func TestAnalyzeCycles_TwoNodeCycle(t *testing.T) {
	s := metadata.NewSchema()
	tables(t, s, map[string][]string{"B": {"AId"}, "A": {"BId"}}, "B", "A")
	fk(t, s, "A", "BId", "B")
	fk(t, s, "B", "AId", "A")

	warnings := AnalyzeCycles(s)
	require.Len(t, warnings, 1)

	warning := warnings[0]
	assert.Equal(t, []string{"A", "B", "A"}, warning.Path)
	assert.Equal(t, "Foreign key cycle detected: A → B → A", warning.Message)
	assert.Equal(t, "warning", warning.Level)
}

// TestAnalyzeCycles_PrimaryKeyCycle tests that a cycle of foreign keys
// over primary keys is an error.
func TestAnalyzeCycles_PrimaryKeyCycle(t *testing.T) {
	s := metadata.NewSchema()
	tables(t, s, nil, "A", "B", "C")
	fk(t, s, "A", "Id", "B")
	fk(t, s, "B", "Id", "C")
	fk(t, s, "C", "Id", "A")

	warnings := AnalyzeCycles(s)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"A", "B", "C", "A"}, warnings[0].Path)
	assert.Equal(t, "error", warnings[0].Level)
}

// TestAnalyzeCycles_MultipleIndependentCycles tests that each cycle is
// reported once, ordered by table name.
func TestAnalyzeCycles_MultipleIndependentCycles(t *testing.T) {
	s := metadata.NewSchema()
	tables(t, s, map[string][]string{
		"Z": {"ZId"},
		"M": {"NId"},
		"N": {"MId"},
		"Free": {"ZId"},
	}, "Z", "M", "N", "Free")
	fk(t, s, "Z", "ZId", "Z")
	fk(t, s, "M", "NId", "N")
	fk(t, s, "N", "MId", "M")
	fk(t, s, "Free", "ZId", "Z")

	warnings := AnalyzeCycles(s)
	require.Len(t, warnings, 2)
	assert.Equal(t, "M", warnings[0].Path[0])
	assert.Equal(t, []string{"Z", "Z"}, warnings[1].Path)
}

func graphOf(refs map[string][]string) *fkGraph {
	g := &fkGraph{refs: refs, overKeys: map[fkEdge]bool{}}
	for t := range refs {
		g.tables = append(g.tables, t)
	}
	slices.Sort(g.tables)
	return g
}

func TestNewFKGraph(t *testing.T) {
	g := newFKGraph(testutil.TablePerType().Schema)
	assert.Equal(t, []string{"BaseTable", "DerivedTable", "PersonTable"}, g.tables)
	assert.Equal(t, map[string][]string{
		"BaseTable":    {"PersonTable"},
		"DerivedTable": {"BaseTable"},
	}, g.refs)
	assert.True(t, g.overKeys[fkEdge{"BaseTable", "PersonTable"}])
	assert.True(t, g.overKeys[fkEdge{"DerivedTable", "BaseTable"}])
}

func TestFKGraph_References(t *testing.T) {
	g := graphOf(map[string][]string{"a": {"a"}, "b": {"a"}})
	assert.True(t, g.references("a", "a"))
	assert.True(t, g.references("b", "a"))
	assert.False(t, g.references("a", "b"))
}

func TestFKGraph_Components(t *testing.T) {
	assert.Equal(t, [][]string{{"a"}}, graphOf(map[string][]string{"a": {}}).components())

	comps := graphOf(map[string][]string{"a": {"b"}, "b": {"a"}}).components()
	require.Len(t, comps, 1)
	assert.ElementsMatch(t, []string{"a", "b"}, comps[0])

	assert.Len(t, graphOf(map[string][]string{"a": {"b"}, "b": {"c"}, "c": {}}).components(), 3)
}

func TestFKGraph_CyclePath(t *testing.T) {
	g := graphOf(map[string][]string{"a": {"b"}, "b": {"a"}})
	assert.Empty(t, g.cyclePath(nil))
	assert.Equal(t, []string{"a", "b", "a"}, g.cyclePath([]string{"a", "b"}))

	// c is outside the component and never entered.
	g = graphOf(map[string][]string{"a": {"c", "b"}, "b": {"a"}, "c": {}})
	assert.Equal(t, []string{"a", "b", "a"}, g.cyclePath([]string{"a", "b"}))
}
