package compiler

import (
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/viewgen/internal/ir"
	"github.com/roach88/viewgen/internal/metadata"
	"github.com/roach88/viewgen/internal/testutil"
)

func compile(t *testing.T, src string) (*metadata.Mapping, error) {
	t.Helper()
	v := cuecontext.New().CompileString(src, cue.Filename("mapping.cue"))
	return CompileMapping(v)
}

const tphSource = `
mapping: "table-per-hierarchy"

types: {
	Person: {
		key: ["Id"]
		properties: {Id: int, Name: string | null}
	}
	Customer: {
		base: "Person"
		properties: Credit: int
	}
}

entity_sets: People: type: "Person"

tables: PersonTable: {
	key: ["Id"]
	columns: {Id: int, Name: string | null, Credit: int | null, Disc: string}
}

fragments: [{
	name:  "person"
	set:   "People"
	types: ["Person"]
	table: "PersonTable"
	properties: {Id: "Id", Name: "Name"}
	conditions: [{side: "S", member: "Disc", equals: "P"}]
}, {
	name:  "customer"
	set:   "People"
	types: ["Customer"]
	table: "PersonTable"
	properties: {Id: "Id", Name: "Name", Credit: "Credit"}
	conditions: [{side: "S", member: "Disc", equals: "C"}]
}]
`

func TestCompileMappingTablePerHierarchy(t *testing.T) {
	m, err := compile(t, tphSource)
	require.NoError(t, err)

	assert.Equal(t, "table-per-hierarchy", m.Name)
	require.Len(t, m.Fragments, 2)
	assert.Equal(t, "person", m.Fragments[0].Source)
	assert.Equal(t, "People[Customer] <-> PersonTable", m.Fragments[1].String())
	assert.True(t, m.Schema.Extent("PersonTable").Column("Credit").Nullable)
	assert.False(t, m.Schema.EntityType("Customer").Property("Credit").Nullable)

	// Same content as the hand-built fixture.
	got, err := m.Hash()
	require.NoError(t, err)
	want, err := testutil.TablePerHierarchy().Hash()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestCompileMappingAssociation(t *testing.T) {
	m, err := compile(t, `
		mapping: "customer-orders"
		types: {
			Customer: {key: ["Id"], properties: {Id: int, Name: string | null}}
			Order: {key: ["Id"], properties: {Id: int, Total: int}}
		}
		entity_sets: {
			Customers: type: "Customer"
			Orders: type: "Order"
		}
		association_sets: CustomerOrders: ends: [
			{name: "Customer", set: "Customers"},
			{name: "Order", set: "Orders", many: true},
		]
		tables: {
			CustomerTable: {key: ["Id"], columns: {Id: int, Name: string | null}}
			OrderTable: {
				key: ["Id"]
				columns: {Id: int, Total: int, CustomerId: int | null}
				foreign_keys: FK_Order_Customer: {columns: ["CustomerId"], references: "CustomerTable"}
			}
		}
		fragments: [
			{name: "customers", set: "Customers", table: "CustomerTable", properties: {Id: "Id", Name: "Name"}},
			{name: "orders", set: "Orders", table: "OrderTable", properties: {Id: "Id", Total: "Total"}},
			{
				name: "customer-orders", set: "CustomerOrders", table: "OrderTable"
				properties: {"Order.Id": "Id", "Customer.Id": "CustomerId"}
				conditions: [{side: "S", member: "CustomerId", is_null: false}]
			},
		]
	`)
	require.NoError(t, err)

	fk := m.Schema.Extent("OrderTable").ForeignKeys
	require.Len(t, fk, 1)
	assert.Equal(t, []string{"Id"}, fk[0].ParentColumns, "parent columns default to the parent key")
	assert.Equal(t, metadata.IsNotNull, m.Fragments[2].Conditions[0].Op)
	assert.True(t, m.Schema.Extent("CustomerOrders").End("Order").Many)

	got, err := m.Hash()
	require.NoError(t, err)
	want, err := testutil.CustomerOrders().Hash()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestCompileMappingDerivedBeforeBase(t *testing.T) {
	m, err := compile(t, `
		mapping: "order"
		types: {
			Premium: {base: "Customer", properties: Tier: "string?"}
			Customer: {base: "Person", properties: Credit: int}
			Person: {key: ["Id"], properties: Id: "guid"}
		}
		entity_sets: People: type: "Person"
		tables: T: {key: ["Id"], columns: {Id: "guid", Tier: string | null}}
		fragments: [{set: "People", is_of: ["Premium"], table: "T", properties: {Id: "Id", Tier: "Tier"}}]
	`)
	require.NoError(t, err)

	premium := m.Schema.EntityType("Premium")
	require.NotNil(t, premium)
	assert.Equal(t, 2, premium.Depth())
	assert.Equal(t, metadata.TypeGuid, m.Schema.EntityType("Person").Property("Id").Type)
	assert.True(t, premium.Property("Tier").Nullable)
	assert.Equal(t, []metadata.TypeRef{{Type: premium, IsOf: true}}, m.Fragments[0].Types)
	assert.Equal(t, "fragments[0]", m.Fragments[0].Source)
}

func TestCompileMappingConditionValues(t *testing.T) {
	m, err := compile(t, `
		mapping: "flags"
		types: P: {key: ["Id"], properties: {Id: int, Active: bool, Rank: int | null}}
		entity_sets: Ps: type: "P"
		tables: T: {key: ["Id"], columns: {Id: int, Active: bool, Rank: int | null}}
		fragments: [{
			set: "Ps", table: "T", properties: Id: "Id"
			conditions: [
				{side: "C", member: "Active", equals: true},
				{side: "s", member: "Rank", equals: 3},
				{side: "S", member: "Rank", equals: null},
			]
		}]
	`)
	require.NoError(t, err)

	conds := m.Fragments[0].Conditions
	require.Len(t, conds, 3)
	assert.Equal(t, metadata.Condition{Side: metadata.CSide, Member: "Active", Op: metadata.Equals, Value: ir.Bool(true)}, conds[0])
	assert.Equal(t, metadata.Condition{Side: metadata.SSide, Member: "Rank", Op: metadata.Equals, Value: ir.Int(3)}, conds[1])
	assert.Equal(t, metadata.IsNull, conds[2].Op)
}

func TestCompileMappingErrors(t *testing.T) {
	base := `
		types: P: {key: ["Id"], properties: Id: int}
		entity_sets: Ps: type: "P"
		tables: T: {key: ["Id"], columns: Id: int}
	`
	tests := []struct {
		name  string
		src   string
		field string
		msg   string
	}{
		{
			name:  "missing name",
			src:   base + `fragments: [{set: "Ps", table: "T"}]`,
			field: "mapping",
			msg:   "required",
		},
		{
			name:  "no fragments",
			src:   `mapping: "m"` + base,
			field: "fragments",
			msg:   "at least one fragment",
		},
		{
			name:  "float property",
			src:   `mapping: "m", types: P: {key: ["Id"], properties: {Id: int, Score: float}}`,
			field: "types.P.properties.Score",
			msg:   "float types are forbidden",
		},
		{
			name:  "unknown type name",
			src:   `mapping: "m", types: P: {key: ["Id"], properties: Id: "decimal"}`,
			field: "types.P.properties.Id",
			msg:   "unknown type name",
		},
		{
			name:  "cyclic base",
			src:   `mapping: "m", types: {A: {base: "B"}, B: {base: "A"}}`,
			field: "types.A.base",
			msg:   "unknown or cyclic base type",
		},
		{
			name:  "unknown element type",
			src:   `mapping: "m", types: P: {key: ["Id"], properties: Id: int}, entity_sets: Qs: type: "Q"`,
			field: "entity_sets.Qs.type",
			msg:   `unknown entity type "Q"`,
		},
		{
			name:  "fragment on a table",
			src:   `mapping: "m"` + base + `fragments: [{set: "T", table: "T"}]`,
			field: "fragments[0].set",
			msg:   "unknown entity or association set",
		},
		{
			name:  "unknown table",
			src:   `mapping: "m"` + base + `fragments: [{set: "Ps", table: "U"}]`,
			field: "fragments[0].table",
			msg:   `unknown table "U"`,
		},
		{
			name:  "exclusive condition forms",
			src:   `mapping: "m"` + base + `fragments: [{set: "Ps", table: "T", conditions: [{side: "S", member: "Id", equals: 1, is_null: false}]}]`,
			field: "fragments[0].conditions[0]",
			msg:   "exclusive",
		},
		{
			name:  "bad side",
			src:   `mapping: "m"` + base + `fragments: [{set: "Ps", table: "T", conditions: [{side: "X", member: "Id", equals: 1}]}]`,
			field: "fragments[0].conditions[0].side",
			msg:   `side must be "C" or "S"`,
		},
		{
			name:  "unknown fk parent",
			src:   `mapping: "m", types: P: {key: ["Id"], properties: Id: int}, tables: T: {key: ["Id"], columns: Id: int, foreign_keys: F: {columns: ["Id"], references: "U"}}`,
			field: "tables.T.foreign_keys.F.references",
			msg:   "unknown table",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compile(t, tt.src)
			require.Error(t, err)
			var ce *CompileError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
			assert.Contains(t, ce.Message, tt.msg)
		})
	}
}

func TestCompileMappingCUEError(t *testing.T) {
	_, err := compile(t, `
		mapping: "m"
		mapping: "n"
	`)
	require.Error(t, err)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "cue", ce.Field)
	assert.True(t, ce.Pos.IsValid())
	assert.Contains(t, err.Error(), "mapping.cue:")
}

func TestCompileErrorFormat(t *testing.T) {
	err := &CompileError{Field: "types.P", Message: "bad"}
	assert.Equal(t, "types.P: bad", err.Error())
}
