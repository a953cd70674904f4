package metadata

import (
	"fmt"
	"strings"

	"github.com/roach88/viewgen/internal/ir"
)

// Side selects the conceptual or store half of a fragment.
type Side int

const (
	CSide Side = iota
	SSide
)

func (s Side) String() string {
	if s == CSide {
		return "C"
	}
	return "S"
}

// CondOp is the operator of a fragment condition.
type CondOp int

const (
	Equals CondOp = iota
	IsNull
	IsNotNull
)

func (o CondOp) String() string {
	switch o {
	case Equals:
		return "="
	case IsNull:
		return "IS NULL"
	case IsNotNull:
		return "IS NOT NULL"
	default:
		return fmt.Sprintf("CondOp(%d)", int(o))
	}
}

// Condition restricts a member (C side) or column (S side) of a fragment.
// Value is only set for Equals.
type Condition struct {
	Side   Side
	Member string
	Op     CondOp
	Value  ir.Value
}

func (c Condition) String() string {
	if c.Op == Equals {
		return fmt.Sprintf("%s:%s = %s", c.Side, c.Member, ir.Literal(c.Value))
	}
	return fmt.Sprintf("%s:%s %s", c.Side, c.Member, c.Op)
}

// TypeRef names the entity types a fragment covers. IsOf covers the type
// and all its descendants; otherwise exactly the type.
type TypeRef struct {
	Type *EntityType
	IsOf bool
}

func (r TypeRef) String() string {
	if r.IsOf {
		return "IsTypeOf(" + r.Type.Name + ")"
	}
	return r.Type.Name
}

// Covers returns the types r admits.
func (r TypeRef) Covers() []*EntityType {
	if r.IsOf {
		return r.Type.Descendants()
	}
	return []*EntityType{r.Type}
}

// PropertyMap maps a conceptual member to a store column. Members of an
// association set are written "End.KeyProperty".
type PropertyMap struct {
	Member string
	Column string
}

// Fragment is one declarative mapping between a conceptual extent and a
// table: the raw material of a cell.
type Fragment struct {
	Set        *Extent
	Types      []TypeRef
	Table      *Extent
	Properties []PropertyMap
	Conditions []Condition
	Distinct   bool

	// Source locates the fragment in the mapping document.
	Source string
}

func (f *Fragment) String() string {
	var types []string
	for _, t := range f.Types {
		types = append(types, t.String())
	}
	if len(types) == 0 {
		return fmt.Sprintf("%s <-> %s", f.Set.Name, f.Table.Name)
	}
	return fmt.Sprintf("%s[%s] <-> %s", f.Set.Name, strings.Join(types, ","), f.Table.Name)
}

// Mapping is the complete input of view generation.
type Mapping struct {
	Name      string
	Schema    *Schema
	Fragments []*Fragment
}

// Document renders the mapping as a canonical document for hashing.
func (m *Mapping) Document() ir.Object {
	var types ir.Array
	for _, t := range m.Schema.EntityTypes() {
		obj := ir.Object{
			"name":       ir.String(t.Name),
			"abstract":   ir.Bool(t.Abstract),
			"properties": propertiesDoc(t.Properties),
			"key":        stringsDoc(t.Key),
		}
		if t.Base != nil {
			obj["base"] = ir.String(t.Base.Name)
		}
		types = append(types, obj)
	}
	var extents ir.Array
	for _, e := range m.Schema.Extents() {
		obj := ir.Object{"name": ir.String(e.Name), "kind": ir.String(e.Kind.String())}
		switch e.Kind {
		case EntitySet:
			obj["type"] = ir.String(e.Type.Name)
		case AssociationSet:
			var ends ir.Array
			for _, end := range e.Ends {
				ends = append(ends, ir.Object{
					"name": ir.String(end.Name),
					"set":  ir.String(end.Set.Name),
					"many": ir.Bool(end.Many),
				})
			}
			obj["ends"] = ends
		case Table:
			obj["columns"] = propertiesDoc(e.Columns)
			obj["key"] = stringsDoc(e.Key)
			var fks ir.Array
			for _, fk := range e.ForeignKeys {
				fks = append(fks, ir.Object{
					"name":           ir.String(fk.Name),
					"columns":        stringsDoc(fk.ChildColumns),
					"parent":         ir.String(fk.Parent.Name),
					"parent_columns": stringsDoc(fk.ParentColumns),
				})
			}
			obj["foreign_keys"] = fks
		}
		extents = append(extents, obj)
	}
	var frags ir.Array
	for _, f := range m.Fragments {
		var refs, props, conds ir.Array
		for _, r := range f.Types {
			refs = append(refs, ir.String(r.String()))
		}
		for _, p := range f.Properties {
			props = append(props, ir.Object{"member": ir.String(p.Member), "column": ir.String(p.Column)})
		}
		for _, c := range f.Conditions {
			conds = append(conds, ir.String(c.String()))
		}
		frags = append(frags, ir.Object{
			"set":        ir.String(f.Set.Name),
			"table":      ir.String(f.Table.Name),
			"types":      refs,
			"properties": props,
			"conditions": conds,
			"distinct":   ir.Bool(f.Distinct),
		})
	}
	return ir.Object{
		"name":      ir.String(m.Name),
		"types":     types,
		"extents":   extents,
		"fragments": frags,
	}
}

// Hash returns the content hash of the mapping.
func (m *Mapping) Hash() (string, error) {
	return ir.MappingHash(m.Document())
}

func propertiesDoc(props []*Property) ir.Array {
	out := ir.Array{}
	for _, p := range props {
		out = append(out, ir.Object{
			"name":     ir.String(p.Name),
			"type":     ir.String(string(p.Type)),
			"nullable": ir.Bool(p.Nullable),
		})
	}
	return out
}

func stringsDoc(ss []string) ir.Array {
	out := ir.Array{}
	for _, s := range ss {
		out = append(out, ir.String(s))
	}
	return out
}
