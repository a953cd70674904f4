package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/viewgen/internal/ir"
)

func hierarchy(t *testing.T) (*Schema, *EntityType, *EntityType, *EntityType) {
	t.Helper()
	s := NewSchema()
	person, err := s.AddEntityType("Person", nil, false, []string{"Id"},
		&Property{Name: "Id", Type: TypeInt},
		&Property{Name: "Name", Type: TypeString, Nullable: true},
	)
	require.NoError(t, err)
	customer, err := s.AddEntityType("Customer", person, false, nil,
		&Property{Name: "Credit", Type: TypeInt},
	)
	require.NoError(t, err)
	premium, err := s.AddEntityType("PremiumCustomer", customer, false, nil,
		&Property{Name: "Tier", Type: TypeString, Nullable: true},
	)
	require.NoError(t, err)
	return s, person, customer, premium
}

func TestEntityTypeHierarchy(t *testing.T) {
	_, person, customer, premium := hierarchy(t)

	assert.Equal(t, person, premium.Root())
	assert.Equal(t, []string{"Id"}, premium.KeyNames())
	assert.Equal(t, []*EntityType{person, customer, premium}, person.Descendants())
	assert.Equal(t, []*EntityType{customer, premium}, customer.Descendants())
	assert.True(t, premium.IsSubtypeOf(person))
	assert.False(t, person.IsSubtypeOf(customer))
	assert.Equal(t, 2, premium.Depth())
	assert.True(t, person.HasHierarchy())

	var names []string
	for _, p := range premium.AllProperties() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"Id", "Name", "Credit", "Tier"}, names)
	assert.Equal(t, customer, premium.Property("Credit").DeclaringType)
	assert.Nil(t, person.Property("Credit"))
}

func TestKeyPropertiesAreNotNullable(t *testing.T) {
	s := NewSchema()
	et, err := s.AddEntityType("T", nil, false, []string{"K"}, &Property{Name: "K", Type: TypeInt, Nullable: true})
	require.NoError(t, err)
	assert.False(t, et.Property("K").Nullable)

	tbl, err := s.AddTable("Tbl", []string{"K"}, &Property{Name: "K", Type: TypeInt, Nullable: true})
	require.NoError(t, err)
	assert.False(t, tbl.Column("K").Nullable)
}

func TestSchemaRejectsInvalidDeclarations(t *testing.T) {
	s, person, _, _ := hierarchy(t)

	_, err := s.AddEntityType("Person", nil, false, nil)
	assert.Error(t, err)

	_, err = s.AddEntityType("Sub", person, false, []string{"Id"})
	assert.ErrorContains(t, err, "root type")

	_, err = s.AddEntityType("NoKey", nil, false, []string{"Missing"})
	assert.ErrorContains(t, err, "not declared")

	_, err = s.AddTable("T", []string{"Missing"})
	assert.Error(t, err)

	_, err = s.AddEntitySet("Nil", nil)
	assert.Error(t, err)

	people, err := s.AddEntitySet("People", person)
	require.NoError(t, err)
	_, err = s.AddEntitySet("People", person)
	assert.Error(t, err)

	_, err = s.AddAssociationSet("OneEnd", &AssociationEnd{Name: "A", Set: people})
	assert.Error(t, err)
}

func TestExtentInterning(t *testing.T) {
	s, person, _, _ := hierarchy(t)
	people, err := s.AddEntitySet("People", person)
	require.NoError(t, err)

	assert.Same(t, people, s.Extent("People"))
	assert.Nil(t, s.Extent("Nobody"))
	assert.Equal(t, []*Extent{people}, s.Extents())
}

func TestForeignKeyOverPrimaryKeys(t *testing.T) {
	s := NewSchema()
	base, err := s.AddTable("BaseTable", []string{"Id"}, &Property{Name: "Id", Type: TypeInt})
	require.NoError(t, err)
	derived, err := s.AddTable("DerivedTable", []string{"Id"},
		&Property{Name: "Id", Type: TypeInt},
		&Property{Name: "OwnerId", Type: TypeInt},
	)
	require.NoError(t, err)

	pk, err := s.AddForeignKey("FK_Derived_Base", derived, []string{"Id"}, base, []string{"Id"})
	require.NoError(t, err)
	other, err := s.AddForeignKey("FK_Owner", derived, []string{"OwnerId"}, base, []string{"Id"})
	require.NoError(t, err)

	assert.True(t, pk.IsOverPrimaryKeys())
	assert.False(t, other.IsOverPrimaryKeys())
	assert.Equal(t, []*ForeignKey{pk, other}, s.ForeignKeysBetween(derived, base))
	assert.Empty(t, s.ForeignKeysBetween(base, derived))

	_, err = s.AddForeignKey("Bad", derived, []string{"Id", "OwnerId"}, base, []string{"Id"})
	assert.ErrorContains(t, err, "column count")
}

func TestScalarTypeDomain(t *testing.T) {
	assert.Equal(t, []ir.Value{ir.Bool(false), ir.Bool(true)}, TypeBool.Domain())
	assert.Nil(t, TypeString.Domain())
	assert.True(t, TypeGuid.Valid())
	assert.False(t, ScalarType("float").Valid())
}

func TestMappingHashIsStable(t *testing.T) {
	build := func() *Mapping {
		s := NewSchema()
		et, _ := s.AddEntityType("Person", nil, false, []string{"Id"}, &Property{Name: "Id", Type: TypeInt})
		set, _ := s.AddEntitySet("People", et)
		tbl, _ := s.AddTable("PersonTable", []string{"Id"}, &Property{Name: "Id", Type: TypeInt})
		return &Mapping{Name: "m", Schema: s, Fragments: []*Fragment{{
			Set:        set,
			Types:      []TypeRef{{Type: et, IsOf: true}},
			Table:      tbl,
			Properties: []PropertyMap{{Member: "Id", Column: "Id"}},
			Conditions: []Condition{{Side: SSide, Member: "Id", Op: IsNotNull}},
		}}}
	}

	h1, err := build().Hash()
	require.NoError(t, err)
	h2, err := build().Hash()
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	m := build()
	m.Fragments[0].Distinct = true
	h3, err := m.Hash()
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestFragmentString(t *testing.T) {
	_, person, customer, _ := hierarchy(t)
	f := &Fragment{
		Set:   &Extent{Name: "People", Kind: EntitySet, Type: person},
		Types: []TypeRef{{Type: person}, {Type: customer, IsOf: true}},
		Table: &Extent{Name: "PersonTable", Kind: Table},
	}
	assert.Equal(t, "People[Person,IsTypeOf(Customer)] <-> PersonTable", f.String())
	assert.Equal(t, "C:IsEmployee = True", Condition{Member: "IsEmployee", Value: ir.Bool(true)}.String())
	assert.Equal(t, "S:Id IS NULL", Condition{Side: SSide, Member: "Id", Op: IsNull}.String())
}
