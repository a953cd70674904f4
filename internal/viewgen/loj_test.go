package viewgen

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/viewgen/internal/boolexpr"
)

func TestConvertUnionsToNormalizedLOJs(t *testing.T) {
	base, derived, other, more := table("Base"), table("Derived"), table("Other"), table("More")
	extends(derived, base)

	t.Run("leg nests under the table it extends", func(t *testing.T) {
		p, c, d := leafOn(0, other, boolexpr.True), leafOn(1, base, boolexpr.True), leafOn(2, derived, boolexpr.True)
		g := bareGenerator(QueryView, p, c, d)
		out := g.convertUnionsToNormalizedLOJs(NewNode(OpLOJ, p, d, c))
		assert.Equal(t, "LOJ(c0, LOJ(c1, c2))", out.String())
	})

	t.Run("unions among legs are flattened", func(t *testing.T) {
		p, a, b := leafOn(0, other, boolexpr.True), leafOn(1, base, boolexpr.True), leafOn(2, more, boolexpr.True)
		g := bareGenerator(QueryView, p, a, b)
		out := g.convertUnionsToNormalizedLOJs(NewNode(OpLOJ, p, NewNode(OpUnion, a, b)))
		assert.Equal(t, "LOJ(c0, c1, c2)", out.String())
	})

	t.Run("leg hangs under an inner join operand", func(t *testing.T) {
		p, q, c := leafOn(0, base, boolexpr.True), leafOn(1, more, boolexpr.True), leafOn(2, derived, boolexpr.True)
		g := bareGenerator(QueryView, p, q, c)
		out := g.convertUnionsToNormalizedLOJs(NewNode(OpLOJ, NewNode(OpIJ, p, q), c))
		assert.Equal(t, "IJ(LOJ(c0, c2), c1)", out.String())
	})

	t.Run("operand driving its own legs is not a parent", func(t *testing.T) {
		p, q, c := leafOn(0, base, boolexpr.True), leafOn(1, more, boolexpr.True), leafOn(2, derived, boolexpr.True)
		a := leafOn(3, other, boolexpr.True)
		g := bareGenerator(QueryView, p, q, c, a)
		ij := NewNode(OpIJ, NewNode(OpLOJ, p, a), q)
		out := g.convertUnionsToNormalizedLOJs(NewNode(OpLOJ, ij, c))
		assert.Equal(t, "LOJ(IJ(LOJ(c0, c3), c1), c2)", out.String())
	})

	t.Run("other operators are kept", func(t *testing.T) {
		p, q := leafOn(0, base, boolexpr.True), leafOn(1, derived, boolexpr.True)
		g := bareGenerator(QueryView, p, q)
		out := g.convertUnionsToNormalizedLOJs(NewNode(OpUnion, p, q))
		assert.Equal(t, "Union(c0, c1)", out.String())
	})
}

func TestConvertUnionsToNormalizedLOJsRefusesCycles(t *testing.T) {
	left, right, root := table("Left"), table("Right"), table("Root")
	// Each table's key references the other's.
	extends(left, right)
	extends(right, left)

	p, a, b := leafOn(0, root, boolexpr.True), leafOn(1, left, boolexpr.True), leafOn(2, right, boolexpr.True)
	g := bareGenerator(QueryView, p, a, b)
	out := g.convertUnionsToNormalizedLOJs(NewNode(OpLOJ, p, a, b))

	assert.Equal(t, "LOJ(c0, LOJ(c2, c1))", out.String())
	assert.Len(t, out.Leaves(), 3, "no leg is lost to the refused nesting")
}

func TestDrivingTable(t *testing.T) {
	base, derived := table("Base"), table("Derived")
	p, c := leafOn(0, base, boolexpr.True), leafOn(1, derived, boolexpr.True)

	assert.Same(t, base, drivingTable(p))
	assert.Same(t, base, drivingTable(NewNode(OpLOJ, NewNode(OpLOJ, p, c), c)))
	assert.Nil(t, drivingTable(NewNode(OpIJ, p, c)))
}
