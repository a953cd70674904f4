package testutil

import (
	"github.com/roach88/viewgen/internal/ir"
	"github.com/roach88/viewgen/internal/metadata"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func prop(name string, t metadata.ScalarType, nullable bool) *metadata.Property {
	return &metadata.Property{Name: name, Type: t, Nullable: nullable}
}

func maps(pairs ...string) []metadata.PropertyMap {
	out := make([]metadata.PropertyMap, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, metadata.PropertyMap{Member: pairs[i], Column: pairs[i+1]})
	}
	return out
}

func eq(side metadata.Side, member string, v ir.Value) metadata.Condition {
	return metadata.Condition{Side: side, Member: member, Op: metadata.Equals, Value: v}
}

// EmployeeSplit maps People to PersonTable twice, once for employees and
// once for everyone else, with the flag fixed on both sides.
func EmployeeSplit() *metadata.Mapping {
	s := metadata.NewSchema()
	person := must(s.AddEntityType("Person", nil, false, []string{"Id"},
		prop("Id", metadata.TypeInt, false),
		prop("Name", metadata.TypeString, true),
		prop("IsEmployee", metadata.TypeBool, false),
	))
	people := must(s.AddEntitySet("People", person))
	table := must(s.AddTable("PersonTable", []string{"Id"},
		prop("Id", metadata.TypeInt, false),
		prop("Name", metadata.TypeString, true),
		prop("IsEmployee", metadata.TypeBool, false),
	))
	frag := func(flag bool, src string) *metadata.Fragment {
		return &metadata.Fragment{
			Set:        people,
			Types:      []metadata.TypeRef{{Type: person, IsOf: true}},
			Table:      table,
			Properties: maps("Id", "Id", "Name", "Name"),
			Conditions: []metadata.Condition{
				eq(metadata.CSide, "IsEmployee", ir.Bool(flag)),
				eq(metadata.SSide, "IsEmployee", ir.Bool(flag)),
			},
			Source: src,
		}
	}
	return &metadata.Mapping{
		Name:      "employee-split",
		Schema:    s,
		Fragments: []*metadata.Fragment{frag(true, "employees"), frag(false, "others")},
	}
}

// TablePerType maps a three-level hierarchy Person > Customer >
// PremiumCustomer to one table per type, each table's key a foreign key to
// its base type's table.
func TablePerType() *metadata.Mapping {
	s := metadata.NewSchema()
	person := must(s.AddEntityType("Person", nil, false, []string{"Id"},
		prop("Id", metadata.TypeInt, false),
		prop("Name", metadata.TypeString, true),
	))
	customer := must(s.AddEntityType("Customer", person, false, nil,
		prop("Credit", metadata.TypeInt, false),
	))
	premium := must(s.AddEntityType("PremiumCustomer", customer, false, nil,
		prop("Tier", metadata.TypeString, true),
	))
	people := must(s.AddEntitySet("People", person))
	personTable := must(s.AddTable("PersonTable", []string{"Id"},
		prop("Id", metadata.TypeInt, false),
		prop("Name", metadata.TypeString, true),
	))
	baseTable := must(s.AddTable("BaseTable", []string{"Id"},
		prop("Id", metadata.TypeInt, false),
		prop("Credit", metadata.TypeInt, false),
	))
	derivedTable := must(s.AddTable("DerivedTable", []string{"Id"},
		prop("Id", metadata.TypeInt, false),
		prop("Tier", metadata.TypeString, true),
	))
	must(s.AddForeignKey("FK_Base_Person", baseTable, []string{"Id"}, personTable, []string{"Id"}))
	must(s.AddForeignKey("FK_Derived_Base", derivedTable, []string{"Id"}, baseTable, []string{"Id"}))

	return &metadata.Mapping{
		Name:   "table-per-type",
		Schema: s,
		Fragments: []*metadata.Fragment{
			{
				Set: people, Types: []metadata.TypeRef{{Type: person, IsOf: true}},
				Table: personTable, Properties: maps("Id", "Id", "Name", "Name"), Source: "person",
			},
			{
				Set: people, Types: []metadata.TypeRef{{Type: customer, IsOf: true}},
				Table: baseTable, Properties: maps("Id", "Id", "Credit", "Credit"), Source: "customer",
			},
			{
				Set: people, Types: []metadata.TypeRef{{Type: premium, IsOf: true}},
				Table: derivedTable, Properties: maps("Id", "Id", "Tier", "Tier"), Source: "premium",
			},
		},
	}
}

// VersionedKey maps Docs (key Id) to DocTable (key Id, Version). With
// projectVersion the Version column is mapped to a non-key property;
// otherwise it is not mapped at all.
func VersionedKey(projectVersion bool) *metadata.Mapping {
	s := metadata.NewSchema()
	doc := must(s.AddEntityType("Doc", nil, false, []string{"Id"},
		prop("Id", metadata.TypeInt, false),
		prop("Version", metadata.TypeInt, false),
		prop("Title", metadata.TypeString, true),
	))
	docs := must(s.AddEntitySet("Docs", doc))
	table := must(s.AddTable("DocTable", []string{"Id", "Version"},
		prop("Id", metadata.TypeInt, false),
		prop("Version", metadata.TypeInt, false),
		prop("Title", metadata.TypeString, true),
	))
	props := maps("Id", "Id", "Title", "Title")
	if projectVersion {
		props = maps("Id", "Id", "Version", "Version", "Title", "Title")
	}
	return &metadata.Mapping{
		Name:   "versioned-key",
		Schema: s,
		Fragments: []*metadata.Fragment{{
			Set: docs, Table: table, Properties: props, Source: "docs",
		}},
	}
}

// DistinctConflict maps People to PersonTable through two fragments that
// both select distinct rows.
func DistinctConflict() *metadata.Mapping {
	m := EmployeeSplit()
	m.Name = "distinct-conflict"
	for _, f := range m.Fragments {
		f.Distinct = true
	}
	return m
}

// EntitySplitting maps every Person to two tables sharing the key.
func EntitySplitting() *metadata.Mapping {
	s := metadata.NewSchema()
	person := must(s.AddEntityType("Person", nil, false, []string{"Id"},
		prop("Id", metadata.TypeInt, false),
		prop("Name", metadata.TypeString, true),
		prop("Bio", metadata.TypeString, true),
	))
	people := must(s.AddEntitySet("People", person))
	main := must(s.AddTable("PersonTable", []string{"Id"},
		prop("Id", metadata.TypeInt, false),
		prop("Name", metadata.TypeString, true),
	))
	detail := must(s.AddTable("PersonDetail", []string{"Id"},
		prop("Id", metadata.TypeInt, false),
		prop("Bio", metadata.TypeString, true),
	))
	must(s.AddForeignKey("FK_Detail_Person", detail, []string{"Id"}, main, []string{"Id"}))
	return &metadata.Mapping{
		Name:   "entity-splitting",
		Schema: s,
		Fragments: []*metadata.Fragment{
			{Set: people, Table: main, Properties: maps("Id", "Id", "Name", "Name"), Source: "main"},
			{Set: people, Table: detail, Properties: maps("Id", "Id", "Bio", "Bio"), Source: "detail"},
		},
	}
}

// TablePerHierarchy maps Person and Customer to one table with a
// discriminator column.
func TablePerHierarchy() *metadata.Mapping {
	s := metadata.NewSchema()
	person := must(s.AddEntityType("Person", nil, false, []string{"Id"},
		prop("Id", metadata.TypeInt, false),
		prop("Name", metadata.TypeString, true),
	))
	customer := must(s.AddEntityType("Customer", person, false, nil,
		prop("Credit", metadata.TypeInt, false),
	))
	people := must(s.AddEntitySet("People", person))
	table := must(s.AddTable("PersonTable", []string{"Id"},
		prop("Id", metadata.TypeInt, false),
		prop("Name", metadata.TypeString, true),
		prop("Credit", metadata.TypeInt, true),
		prop("Disc", metadata.TypeString, false),
	))
	return &metadata.Mapping{
		Name:   "table-per-hierarchy",
		Schema: s,
		Fragments: []*metadata.Fragment{
			{
				Set: people, Types: []metadata.TypeRef{{Type: person}},
				Table: table, Properties: maps("Id", "Id", "Name", "Name"),
				Conditions: []metadata.Condition{eq(metadata.SSide, "Disc", ir.String("P"))},
				Source:     "person",
			},
			{
				Set: people, Types: []metadata.TypeRef{{Type: customer}},
				Table: table, Properties: maps("Id", "Id", "Name", "Name", "Credit", "Credit"),
				Conditions: []metadata.Condition{eq(metadata.SSide, "Disc", ir.String("C"))},
				Source:     "customer",
			},
		},
	}
}

// CustomerOrders maps two entity sets and the association between them;
// the association shares the order table through a nullable foreign key.
func CustomerOrders() *metadata.Mapping {
	s := metadata.NewSchema()
	customer := must(s.AddEntityType("Customer", nil, false, []string{"Id"},
		prop("Id", metadata.TypeInt, false),
		prop("Name", metadata.TypeString, true),
	))
	order := must(s.AddEntityType("Order", nil, false, []string{"Id"},
		prop("Id", metadata.TypeInt, false),
		prop("Total", metadata.TypeInt, false),
	))
	customers := must(s.AddEntitySet("Customers", customer))
	orders := must(s.AddEntitySet("Orders", order))
	placed := must(s.AddAssociationSet("CustomerOrders",
		&metadata.AssociationEnd{Name: "Customer", Set: customers},
		&metadata.AssociationEnd{Name: "Order", Set: orders, Many: true},
	))
	customerTable := must(s.AddTable("CustomerTable", []string{"Id"},
		prop("Id", metadata.TypeInt, false),
		prop("Name", metadata.TypeString, true),
	))
	orderTable := must(s.AddTable("OrderTable", []string{"Id"},
		prop("Id", metadata.TypeInt, false),
		prop("Total", metadata.TypeInt, false),
		prop("CustomerId", metadata.TypeInt, true),
	))
	must(s.AddForeignKey("FK_Order_Customer", orderTable, []string{"CustomerId"}, customerTable, []string{"Id"}))
	return &metadata.Mapping{
		Name:   "customer-orders",
		Schema: s,
		Fragments: []*metadata.Fragment{
			{Set: customers, Table: customerTable, Properties: maps("Id", "Id", "Name", "Name"), Source: "customers"},
			{Set: orders, Table: orderTable, Properties: maps("Id", "Id", "Total", "Total"), Source: "orders"},
			{
				Set: placed, Table: orderTable,
				Properties: maps("Order.Id", "Id", "Customer.Id", "CustomerId"),
				Conditions: []metadata.Condition{{Side: metadata.SSide, Member: "CustomerId", Op: metadata.IsNotNull}},
				Source:     "customer-orders",
			},
		},
	}
}

// Combine merges independent mappings into one. Type, extent and fragment
// names must not collide.
func Combine(name string, ms ...*metadata.Mapping) *metadata.Mapping {
	out := &metadata.Mapping{Name: name, Schema: metadata.NewSchema()}
	for _, m := range ms {
		copySchema(out.Schema, m.Schema)
		for _, f := range m.Fragments {
			nf := *f
			nf.Set = out.Schema.Extent(f.Set.Name)
			nf.Table = out.Schema.Extent(f.Table.Name)
			nf.Types = nil
			for _, r := range f.Types {
				nf.Types = append(nf.Types, metadata.TypeRef{Type: out.Schema.EntityType(r.Type.Name), IsOf: r.IsOf})
			}
			out.Fragments = append(out.Fragments, &nf)
		}
	}
	return out
}

func copySchema(dst, src *metadata.Schema) {
	for _, t := range src.EntityTypes() {
		var base *metadata.EntityType
		if t.Base != nil {
			base = dst.EntityType(t.Base.Name)
		}
		var props []*metadata.Property
		for _, p := range t.Properties {
			props = append(props, prop(p.Name, p.Type, p.Nullable))
		}
		must(dst.AddEntityType(t.Name, base, t.Abstract, t.Key, props...))
	}
	for _, e := range src.Extents() {
		switch e.Kind {
		case metadata.EntitySet:
			must(dst.AddEntitySet(e.Name, dst.EntityType(e.Type.Name)))
		case metadata.AssociationSet:
			var ends []*metadata.AssociationEnd
			for _, end := range e.Ends {
				ends = append(ends, &metadata.AssociationEnd{Name: end.Name, Set: dst.Extent(end.Set.Name), Many: end.Many})
			}
			must(dst.AddAssociationSet(e.Name, ends...))
		case metadata.Table:
			var cols []*metadata.Property
			for _, c := range e.Columns {
				cols = append(cols, prop(c.Name, c.Type, c.Nullable))
			}
			must(dst.AddTable(e.Name, e.Key, cols...))
		}
	}
	for _, e := range src.Extents() {
		for _, fk := range e.ForeignKeys {
			must(dst.AddForeignKey(fk.Name, dst.Extent(e.Name), fk.ChildColumns, dst.Extent(fk.Parent.Name), fk.ParentColumns))
		}
	}
}
