package viewgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/viewgen/internal/boolexpr"
	"github.com/roach88/viewgen/internal/cell"
	"github.com/roach88/viewgen/internal/ir"
	"github.com/roach88/viewgen/internal/metadata"
	"github.com/roach88/viewgen/internal/testutil"
)

func TestTryMergeTwoCellQueriesUnion(t *testing.T) {
	ctx, _ := newContext(t, testutil.EmployeeSplit(), QueryView, "People")
	r0, r1 := ctx.Wrapper(0).Right, ctx.Wrapper(1).Right

	merged, ok, err := TryMergeTwoCellQueries(r0, r1, OpUnion)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, boolexpr.IsTrue(merged.Where), "IsEmployee is true or false: %s", merged.Where)
	assert.Equal(t, []int{0, 1}, merged.Cells())
	assert.Equal(t, "PersonTable.IsEmployee=True", merged.BoolVars[0].String())
	assert.Equal(t, "PersonTable.IsEmployee=False", merged.BoolVars[1].String())
}

func TestTryMergeTwoCellQueriesInnerJoin(t *testing.T) {
	ctx, _ := newContext(t, testutil.EmployeeSplit(), QueryView, "People")
	r0, r1 := ctx.Wrapper(0).Right, ctx.Wrapper(1).Right

	merged, ok, err := TryMergeTwoCellQueries(r0, r1, OpIJ)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, boolexpr.IsFalse(merged.Where))
}

func TestTryMergeTwoCellQueriesDifferentExtents(t *testing.T) {
	ctx, _ := newContext(t, testutil.TablePerType(), QueryView, "People")
	merged, ok, err := TryMergeTwoCellQueries(ctx.Wrapper(0).Right, ctx.Wrapper(1).Right, OpLOJ)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, merged)
}

func TestTryMergeTwoCellQueriesConflictingSlots(t *testing.T) {
	ctx, _ := newContext(t, testutil.EmployeeSplit(), QueryView, "People")
	r0, r1 := ctx.Wrapper(0).Right.Clone(), ctx.Wrapper(1).Right.Clone()
	table := r1.Extent
	// Slot 1 reads Name in one query and IsEmployee in the other.
	r1.Slots[1] = cell.MustMemberPath(table, "IsEmployee")

	_, ok, err := TryMergeTwoCellQueries(r0, r1, OpUnion)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTryMergeTwoCellQueriesUnaligned(t *testing.T) {
	ctx, _ := newContext(t, testutil.EmployeeSplit(), QueryView, "People")
	r0, r1 := ctx.Wrapper(0).Right, ctx.Wrapper(1).Right.Clone()
	r1.Slots = r1.Slots[:1]
	_, _, err := TryMergeTwoCellQueries(r0, r1, OpUnion)
	assert.Error(t, err)
}

func TestTryMergeTwoCellQueriesLeftOuterJoin(t *testing.T) {
	ctx, _ := newContext(t, testutil.EmployeeSplit(), QueryView, "People")
	r0, r1 := ctx.Wrapper(0).Right, ctx.Wrapper(1).Right

	merged, ok, err := TryMergeTwoCellQueries(r0, r1, OpLOJ)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, r0.Where.String(), merged.Where.String(), "LOJ keeps the driver's rows")
	assert.Equal(t, "PersonTable.IsEmployee=False", merged.BoolVars[1].String(), "the optional side keeps its guard")
}

func TestMergeNodesCountsMerges(t *testing.T) {
	ctx, _ := newContext(t, testutil.TablePerHierarchy(), QueryView, "People")
	tree, err := ctx.Rewrite(boolexpr.True)
	require.NoError(t, err)
	assert.True(t, tree.IsLeaf())
	assert.Equal(t, 1, ctx.Metrics().Count("merges"))

	w := tree.Wrapper
	disc := boolexpr.Eq(cell.MustMemberPath(w.RightExtent(), "Disc").Var(), ir.String("P"))
	assert.True(t, ctx.RightProcessor().IsContainedIn(disc, w.Right.Where))
}

func TestCheckLOJCycle(t *testing.T) {
	a, b, c := leaf(0), leaf(1), leaf(2)
	parentOf := map[*Node]*Node{b: a, c: b}

	assert.True(t, CheckLOJCycle(a, c, parentOf), "a under c closes a -> b -> c -> a")
	assert.True(t, CheckLOJCycle(a, a, parentOf))
	assert.False(t, CheckLOJCycle(c, a, map[*Node]*Node{b: a}))
	assert.False(t, CheckLOJCycle(leaf(3), c, parentOf))
}

// conflicting returns a copy of w, numbered n, that reads another column
// into the slot of Name and so never merges with the other cells.
func conflicting(w *LeftCellWrapper, n int) *LeftCellWrapper {
	c := *w
	c.Right = w.Right.Clone()
	c.Right.Slots[1] = cell.MustMemberPath(c.Right.Extent, "IsEmployee")
	c.Cells = []*cell.Cell{{Number: n}}
	return &c
}

func TestMergeNodesKeepsOptionalLegsApart(t *testing.T) {
	ctx, _ := newContext(t, testutil.EmployeeSplit(), QueryView, "People")
	driver := leafOn(9, table("X"), boolexpr.True)

	// Merging c1 into c0 under LOJ would keep c0's where clause and drop
	// the rows only c1 selects.
	tree, err := MergeNodes(ctx, NewNode(OpLOJ, driver, Leaf(ctx.Wrapper(0)), Leaf(ctx.Wrapper(1))))
	require.NoError(t, err)
	assert.Equal(t, "LOJ(c9, c0, c1)", tree.String())
	assert.Zero(t, ctx.Metrics().Count("merges"))
}

func TestMergeNodesStopsAfterFailedDriverMerge(t *testing.T) {
	ctx, _ := newContext(t, testutil.EmployeeSplit(), QueryView, "People")
	w0, w1 := ctx.Wrapper(0), ctx.Wrapper(1)

	tree, err := MergeNodes(ctx, NewNode(OpLOJ, Leaf(w0), Leaf(conflicting(w1, 5)), Leaf(w1)))
	require.NoError(t, err)
	assert.Equal(t, "LOJ(c0, c5, c1)", tree.String())
	assert.Zero(t, ctx.Metrics().Count("merges"))

	tree, err = MergeNodes(ctx, NewNode(OpLOJ, Leaf(w0), Leaf(w1)))
	require.NoError(t, err)
	assert.Equal(t, "c0+c1", tree.String(), "a lone leg merges into the driver")
}

func TestRestructureTreeForMerges(t *testing.T) {
	t1, t2, t3, t4 := table("T1"), table("T2"), table("T3"), table("T4")
	on := func(n int, e *metadata.Extent) *Node { return leafOn(n, e, boolexpr.True) }

	changed := []struct {
		name string
		in   *Node
		want string
	}{
		{
			"shared extent factors out",
			NewNode(OpUnion, NewNode(OpIJ, on(0, t1), on(1, t2)), NewNode(OpIJ, on(2, t1), on(3, t3))),
			"IJ(Union(c0, c2), Union(c1, c3))",
		},
		{
			"one column per shared extent",
			NewNode(OpUnion, NewNode(OpIJ, on(0, t1), on(1, t2), on(2, t3)), NewNode(OpIJ, on(3, t2), on(4, t1), on(5, t4))),
			"IJ(Union(c0, c4), Union(c1, c3), Union(c2, c5))",
		},
		{
			"outer join parent",
			NewNode(OpFOJ, NewNode(OpIJ, on(0, t1), on(1, t2)), NewNode(OpIJ, on(2, t1), on(3, t3))),
			"IJ(FOJ(c0, c2), FOJ(c1, c3))",
		},
	}
	for _, tt := range changed {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, restructureTreeForMerges(tt.in).String())
		})
	}

	kept := []struct {
		name string
		in   *Node
	}{
		{"no shared extent", NewNode(OpUnion, NewNode(OpIJ, on(0, t1), on(1, t2)), NewNode(OpIJ, on(2, t3), on(3, t3)))},
		{"inner join parent", NewNode(OpIJ, NewNode(OpUnion, on(0, t1), on(1, t2)), NewNode(OpUnion, on(2, t1), on(3, t3)))},
		{"mixed child operators", NewNode(OpUnion, NewNode(OpIJ, on(0, t1), on(1, t2)), NewNode(OpFOJ, on(2, t1), on(3, t3)))},
		{"no residual", NewNode(OpUnion, NewNode(OpIJ, on(0, t1), on(1, t2)), NewNode(OpIJ, on(2, t1), on(3, t2)))},
		{"non-associative parent", NewNode(OpLOJ, NewNode(OpIJ, on(0, t1), on(1, t2)), NewNode(OpIJ, on(2, t1), on(3, t3)))},
	}
	for _, tt := range kept {
		t.Run(tt.name, func(t *testing.T) {
			assert.Same(t, tt.in, restructureTreeForMerges(tt.in))
		})
	}
}

func TestMergeNodesFactorsSharedExtents(t *testing.T) {
	ctx, _ := newContext(t, testutil.EmployeeSplit(), QueryView, "People")
	x, y := leafOn(8, table("X"), boolexpr.True), leafOn(9, table("Y"), boolexpr.True)
	w0, w1 := ctx.Wrapper(0), ctx.Wrapper(1)

	tree, err := MergeNodes(ctx, NewNode(OpUnion, NewNode(OpIJ, Leaf(w0), x), NewNode(OpIJ, Leaf(w1), y)))
	require.NoError(t, err)
	assert.Equal(t, "IJ(c0+c1, Union(c8, c9))", tree.String())
	assert.Equal(t, 1, ctx.Metrics().Count("merges"))
}

func TestMergeNodesKeepsFactoringOnlyWhenItMerges(t *testing.T) {
	ctx, _ := newContext(t, testutil.EmployeeSplit(), QueryView, "People")
	x, y := leafOn(8, table("X"), boolexpr.True), leafOn(9, table("Y"), boolexpr.True)
	w0 := ctx.Wrapper(0)

	tree, err := MergeNodes(ctx, NewNode(OpUnion, NewNode(OpIJ, Leaf(w0), x), NewNode(OpIJ, Leaf(conflicting(ctx.Wrapper(1), 5)), y)))
	require.NoError(t, err)
	assert.Equal(t, "Union(IJ(c0, c8), IJ(c5, c9))", tree.String())
	assert.Zero(t, ctx.Metrics().Count("merges"))
}
