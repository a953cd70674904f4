package cell

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/viewgen/internal/ir"
	"github.com/roach88/viewgen/internal/metadata"
	"github.com/roach88/viewgen/internal/testutil"
)

func TestMemberPathResolution(t *testing.T) {
	m := testutil.TablePerType()
	people := m.Schema.Extent("People")

	id := MustMemberPath(people, "Id")
	assert.Equal(t, "People.Id", id.String())
	assert.Equal(t, "Id", id.Name())
	assert.Equal(t, "People_Id", id.Alias())
	assert.True(t, id.IsKey())
	assert.False(t, id.Nullable())

	// Declared on a subtype: nullable from the set's point of view.
	credit := MustMemberPath(people, "Credit")
	assert.True(t, credit.Nullable())
	assert.Equal(t, "Customer", credit.DeclaringType().Name)

	_, err := NewMemberPath(people, "Missing")
	assert.Error(t, err)
	_, err = NewMemberPath(people, "A", "B")
	assert.Error(t, err)

	typ := TypeMember(people)
	assert.True(t, typ.IsType())
	assert.Equal(t, "People.$type", typ.String())
	assert.Equal(t, []ir.Value{ir.String("Person"), ir.String("Customer"), ir.String("PremiumCustomer")}, typ.Var().Domain)
}

func TestMemberPathAssociationEnds(t *testing.T) {
	m := testutil.CustomerOrders()
	placed := m.Schema.Extent("CustomerOrders")

	mp, err := NewMemberPath(placed, "Customer", "Id")
	require.NoError(t, err)
	assert.Equal(t, "CustomerOrders.Customer.Id", mp.String())
	assert.True(t, mp.IsKey())

	_, err = NewMemberPath(placed, "Customer", "Name")
	assert.ErrorContains(t, err, "not a key")
	_, err = NewMemberPath(placed, "Nobody", "Id")
	assert.Error(t, err)

	var names []string
	for _, k := range KeyMembers(placed) {
		names = append(names, k.Name())
	}
	assert.Equal(t, []string{"Customer.Id", "Order.Id"}, names)
}

func TestAllMembers(t *testing.T) {
	m := testutil.TablePerType()
	var names []string
	for _, mp := range AllMembers(m.Schema.Extent("People")) {
		names = append(names, mp.Name())
	}
	assert.Equal(t, []string{"Id", "Name", "Credit", "Tier", "$type"}, names)

	names = nil
	for _, mp := range AllMembers(m.Schema.Extent("BaseTable")) {
		names = append(names, mp.Name())
	}
	assert.Equal(t, []string{"Id", "Credit"}, names)
}

func TestMemberVarDomains(t *testing.T) {
	m := testutil.EmployeeSplit()
	flag := MustMemberPath(m.Schema.Extent("People"), "IsEmployee").Var()
	assert.True(t, flag.Closed())
	assert.False(t, flag.Nullable)

	name := MustMemberPath(m.Schema.Extent("People"), "Name").Var()
	assert.False(t, name.Closed())
	assert.True(t, name.Nullable)

	assert.Equal(t, metadata.TypeString, TypeMember(m.Schema.Extent("People")).ScalarType())
}
