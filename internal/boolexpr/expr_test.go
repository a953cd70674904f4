package boolexpr

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/viewgen/internal/ir"
)

var (
	flag  = NewBoolVar("Person.IsEmployee", false)
	nflag = NewBoolVar("Person.Active", true)
	disc  = &Var{Name: "PersonTable.Disc"}
	ndisc = &Var{Name: "PersonTable.Kind", Nullable: true}
	typ   = &Var{Name: "Person.$type", Domain: []ir.Value{ir.String("Customer"), ir.String("Person")}}
)

func TestInFoldsClosedDomains(t *testing.T) {
	assert.Equal(t, True, In(flag, ir.Bool(true), ir.Bool(false)))
	assert.Equal(t, False, In(flag))
	assert.Equal(t, False, In(flag, ir.String("x")), "value outside a closed domain")
	assert.Equal(t, False, IsNull(flag), "non-nullable")
	assert.Equal(t, True, IsNotNull(flag))
	assert.Equal(t, "Person.IsEmployee=True", Eq(flag, ir.Bool(true)).String())

	// Nullable closed domains need NULL to be total.
	assert.IsType(t, &Term{}, In(nflag, ir.Bool(true), ir.Bool(false)))
	assert.Equal(t, True, In(nflag, ir.Bool(true), ir.Bool(false), ir.Null{}))
}

func TestInSortsAndDedupes(t *testing.T) {
	e := In(disc, ir.String("B"), ir.String("A"), ir.String("B"))
	assert.Equal(t, "PersonTable.Disc IN (A, B)", e.String())
}

func TestNotComplementsClosedTerms(t *testing.T) {
	assert.Equal(t, "Person.IsEmployee=False", NewNot(Eq(flag, ir.Bool(true))).String())
	assert.Equal(t, "Person.$type=Person", NewNot(Eq(typ, ir.String("Customer"))).String())
	assert.Equal(t, "NOT(PersonTable.Disc=A)", NewNot(Eq(disc, ir.String("A"))).String())
	assert.Equal(t, "PersonTable.Kind IS NULL", NewNot(IsNotNull(ndisc)).String())
	assert.Equal(t, False, NewNot(True))
}

func TestConstructorsFlatten(t *testing.T) {
	a, b, c := Eq(disc, ir.String("A")), Eq(flag, ir.Bool(true)), IsNull(ndisc)
	e := NewAnd(a, NewAnd(b, c), True)
	assert.Len(t, e, 3)
	assert.Equal(t, False, NewAnd(a, False))
	assert.Equal(t, True, NewOr(a, True))
	assert.Equal(t, a, NewOr(False, a))
	assert.Equal(t, "PersonTable.Disc=A AND (Person.IsEmployee=True OR PersonTable.Kind IS NULL)",
		NewAnd(a, NewOr(b, c)).String())
}

func TestSimplifyMergesTerms(t *testing.T) {
	a := In(disc, ir.String("A"), ir.String("B"))
	b := In(disc, ir.String("B"), ir.String("C"))
	assert.Equal(t, "PersonTable.Disc=B", Simplify(NewAnd(a, b)).String())
	assert.Equal(t, "PersonTable.Disc IN (A, B, C)", Simplify(NewOr(a, b)).String())

	assert.Equal(t, False, Simplify(NewAnd(Eq(disc, ir.String("A")), Eq(disc, ir.String("B")))))
	assert.Equal(t, True, Simplify(NewOr(Eq(flag, ir.Bool(true)), Eq(flag, ir.Bool(false)))))
}

func TestSimplifyComplementaryChildren(t *testing.T) {
	x := Eq(disc, ir.String("A"))
	assert.Equal(t, False, Simplify(NewAnd(x, NewNot(x))))
	assert.Equal(t, True, Simplify(NewOr(x, NewNot(x))))
}

func TestVarsAndRename(t *testing.T) {
	e := NewAnd(Eq(disc, ir.String("A")), NewOr(Eq(flag, ir.Bool(true)), Eq(disc, ir.String("B"))))
	vars := Vars(e)
	assert.Len(t, vars, 2)
	assert.Equal(t, "PersonTable.Disc", vars[0].Name)

	renamed := RenameVars(e, map[string]*Var{"PersonTable.Disc": {Name: "T.D"}})
	assert.Equal(t, "T.D=A AND (Person.IsEmployee=True OR T.D=B)", renamed.String())
}

func TestRender(t *testing.T) {
	col := func(v *Var) string { return "T1." + v.Name }
	tests := []struct {
		name string
		e    Expr
		want string
	}{
		{"const", True, "True"},
		{"eq", Eq(disc, ir.String("A")), "T1.PersonTable.Disc = 'A'"},
		{"in", In(disc, ir.String("A"), ir.String("B")), "T1.PersonTable.Disc IN {'A', 'B'}"},
		{"null", IsNull(ndisc), "T1.PersonTable.Kind IS NULL"},
		{"not null", IsNotNull(ndisc), "T1.PersonTable.Kind IS NOT NULL"},
		{"in or null", In(ndisc, ir.String("A"), ir.Null{}), "T1.PersonTable.Kind = 'A' OR T1.PersonTable.Kind IS NULL"},
		{"nested", NewAnd(Eq(flag, ir.Bool(true)), NewOr(Eq(disc, ir.String("A")), IsNull(ndisc))),
			"T1.Person.IsEmployee = True AND (T1.PersonTable.Disc = 'A' OR T1.PersonTable.Kind IS NULL)"},
		{"not", NewNot(Eq(disc, ir.String("A"))), "NOT (T1.PersonTable.Disc = 'A')"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Render(tt.e, col))
		})
	}
}
