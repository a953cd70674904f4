package cell

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/viewgen/internal/errlog"
	"github.com/roach88/viewgen/internal/ir"
	"github.com/roach88/viewgen/internal/metadata"
	"github.com/roach88/viewgen/internal/testutil"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func generate(t *testing.T, m *metadata.Mapping) ([]*Cell, *errlog.Log) {
	t.Helper()
	log := errlog.New(discard())
	return NewCreator(m, log, discard()).Generate(), log
}

func TestCreatorOneCellPerFragment(t *testing.T) {
	cells, log := generate(t, testutil.EmployeeSplit())
	require.Zero(t, log.Count())
	require.Len(t, cells, 2)

	c0 := cells[0]
	assert.Equal(t, 0, c0.Number)
	assert.Equal(t, "People", c0.CQuery.Extent.Name)
	assert.Equal(t, "PersonTable", c0.SQuery.Extent.Name)
	assert.Equal(t, []string{"Id", "Name"}, c0.CQuery.Attributes())
	assert.Equal(t, []string{"Id", "Name"}, c0.SQuery.Attributes())
	assert.Equal(t, "People.IsEmployee=True", c0.CQuery.Where.String())
	assert.Equal(t, "PersonTable.IsEmployee=False", cells[1].SQuery.Where.String())
	assert.Equal(t, "employees", c0.Source())

	// One "from" indicator per cell, set only for the cell itself.
	assert.Equal(t, []int{0}, c0.CQuery.Cells())
	assert.Equal(t, []int{1}, cells[1].SQuery.Cells())
	assert.Len(t, c0.CQuery.BoolVars, 2)
}

func TestCreatorTypeConditions(t *testing.T) {
	cells, log := generate(t, testutil.TablePerType())
	require.Zero(t, log.Count())
	require.Len(t, cells, 3)

	assert.Equal(t, "True", cells[0].CQuery.Where.String(), "IsTypeOf(root) admits every type")
	assert.Equal(t, "People.$type IN (Customer, PremiumCustomer)", cells[1].CQuery.Where.String())
	assert.Equal(t, "People.$type=PremiumCustomer", cells[2].CQuery.Where.String())

	var names []string
	for _, ty := range cells[1].Types {
		names = append(names, ty.Name)
	}
	assert.Equal(t, []string{"Customer", "PremiumCustomer"}, names)
}

func TestCreatorAssociationSetMembers(t *testing.T) {
	cells, log := generate(t, testutil.CustomerOrders())
	require.Zero(t, log.Count())
	require.Len(t, cells, 3)

	assoc := cells[2]
	assert.Equal(t, metadata.AssociationSet, assoc.CQuery.Extent.Kind)
	assert.Equal(t, []string{"Order.Id", "Customer.Id"}, assoc.CQuery.Attributes())
	assert.Equal(t, "NOT(OrderTable.CustomerId IS NULL)", assoc.SQuery.Where.String())
	assert.Nil(t, assoc.Types)
}

func TestCreatorExpandsClosedDomains(t *testing.T) {
	s := metadata.NewSchema()
	person, err := s.AddEntityType("Person", nil, false, []string{"Id"},
		&metadata.Property{Name: "Id", Type: metadata.TypeInt},
		&metadata.Property{Name: "IsEmployee", Type: metadata.TypeBool},
	)
	require.NoError(t, err)
	people, _ := s.AddEntitySet("People", person)
	t1, _ := s.AddTable("T1", []string{"Id"},
		&metadata.Property{Name: "Id", Type: metadata.TypeInt},
		&metadata.Property{Name: "Flag", Type: metadata.TypeBool},
	)
	t2, _ := s.AddTable("T2", []string{"Id"}, &metadata.Property{Name: "Id", Type: metadata.TypeInt})
	m := &metadata.Mapping{Schema: s, Fragments: []*metadata.Fragment{
		{Set: people, Table: t1, Properties: []metadata.PropertyMap{{Member: "Id", Column: "Id"}, {Member: "IsEmployee", Column: "Flag"}}},
		{Set: people, Table: t2, Properties: []metadata.PropertyMap{{Member: "Id", Column: "Id"}},
			Conditions: []metadata.Condition{{Side: metadata.CSide, Member: "IsEmployee", Value: ir.Bool(true)}}},
	}}

	cells, log := generate(t, m)
	require.Zero(t, log.Count())
	require.Len(t, cells, 3)

	assert.Equal(t, "People.IsEmployee=False", cells[0].CQuery.Where.String())
	assert.Equal(t, "T1.Flag=False", cells[0].SQuery.Where.String())
	assert.Equal(t, "People.IsEmployee=True", cells[1].CQuery.Where.String())
	assert.Equal(t, "T1.Flag=True", cells[1].SQuery.Where.String())
	assert.True(t, cells[1].CQuery.Projects(MustMemberPath(people, "IsEmployee")), "expanded cells still project the member")
	assert.Equal(t, "T2", cells[2].SQuery.Extent.Name)
	assert.Equal(t, []int{0, 1, 2}, Numbers(cells))
}

func TestCreatorLogsInvalidReferences(t *testing.T) {
	m := testutil.EmployeeSplit()
	m.Fragments[0].Properties = append(m.Fragments[0].Properties, metadata.PropertyMap{Member: "Salary", Column: "Salary"})

	cells, log := generate(t, m)
	assert.Len(t, cells, 1, "bad fragment is skipped")
	assert.Equal(t, []errlog.Code{errlog.InvalidMappingReference}, log.Codes())
	assert.Equal(t, "employees", log.Records()[0].Source)
}

func TestCreatorConditionOnUnmappedMember(t *testing.T) {
	m := testutil.TablePerHierarchy()
	// The exact-Person fragment cannot restrict a Customer-only property.
	m.Fragments[0].Conditions = append(m.Fragments[0].Conditions,
		metadata.Condition{Side: metadata.CSide, Member: "Credit", Op: metadata.IsNull})

	_, log := generate(t, m)
	assert.Equal(t, []errlog.Code{errlog.ConditionOnUnmappedMember}, log.Codes())
}
