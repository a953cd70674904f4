package metadata

import (
	"fmt"
	"slices"

	"github.com/cockroachdb/errors"

	"github.com/roach88/viewgen/internal/ir"
)

// ScalarType is the primitive type of a property or column.
type ScalarType string

const (
	TypeString ScalarType = "string"
	TypeInt    ScalarType = "int"
	TypeBool   ScalarType = "bool"
	TypeGuid   ScalarType = "guid"
)

// Valid reports whether t is a known scalar type.
func (t ScalarType) Valid() bool {
	switch t {
	case TypeString, TypeInt, TypeBool, TypeGuid:
		return true
	}
	return false
}

// Domain returns the closed domain of t, or nil when the domain is open.
// Only booleans have a closed domain.
func (t ScalarType) Domain() []ir.Value {
	if t == TypeBool {
		return []ir.Value{ir.Bool(false), ir.Bool(true)}
	}
	return nil
}

// Property is a scalar member of an entity type or a column of a table.
type Property struct {
	Name     string
	Type     ScalarType
	Nullable bool

	// DeclaringType is nil for table columns.
	DeclaringType *EntityType
}

// EntityType is a conceptual type. Keys are declared on the root type and
// inherited by every descendant.
type EntityType struct {
	Name       string
	Base       *EntityType
	Abstract   bool
	Properties []*Property
	Key        []string

	derived []*EntityType
}

// Root returns the top of t's hierarchy.
func (t *EntityType) Root() *EntityType {
	for t.Base != nil {
		t = t.Base
	}
	return t
}

// KeyNames returns the key property names inherited from the root.
func (t *EntityType) KeyNames() []string {
	return t.Root().Key
}

// AllProperties returns inherited properties first, then declared ones.
func (t *EntityType) AllProperties() []*Property {
	if t.Base == nil {
		return t.Properties
	}
	return append(slices.Clone(t.Base.AllProperties()), t.Properties...)
}

// Property finds a property by name, searching base types too.
func (t *EntityType) Property(name string) *Property {
	for cur := t; cur != nil; cur = cur.Base {
		for _, p := range cur.Properties {
			if p.Name == name {
				return p
			}
		}
	}
	return nil
}

// IsSubtypeOf reports whether t is other or derives from it.
func (t *EntityType) IsSubtypeOf(other *EntityType) bool {
	for cur := t; cur != nil; cur = cur.Base {
		if cur == other {
			return true
		}
	}
	return false
}

// Descendants returns t and every type deriving from it, in declaration
// order (t first).
func (t *EntityType) Descendants() []*EntityType {
	out := []*EntityType{t}
	for _, d := range t.derived {
		out = append(out, d.Descendants()...)
	}
	return out
}

// Derived returns the direct subtypes of t.
func (t *EntityType) Derived() []*EntityType {
	return t.derived
}

// Depth is the number of base types above t.
func (t *EntityType) Depth() int {
	n := 0
	for cur := t.Base; cur != nil; cur = cur.Base {
		n++
	}
	return n
}

// HasHierarchy reports whether t's hierarchy contains more than one type.
func (t *EntityType) HasHierarchy() bool {
	return len(t.Root().derived) > 0
}

// ConcreteTypes returns the non-abstract types in the hierarchy under t.
func (t *EntityType) ConcreteTypes() []*EntityType {
	var out []*EntityType
	for _, d := range t.Descendants() {
		if !d.Abstract {
			out = append(out, d)
		}
	}
	return out
}

// ExtentKind distinguishes the three kinds of extents.
type ExtentKind int

const (
	EntitySet ExtentKind = iota
	AssociationSet
	Table
)

func (k ExtentKind) String() string {
	switch k {
	case EntitySet:
		return "EntitySet"
	case AssociationSet:
		return "AssociationSet"
	case Table:
		return "Table"
	default:
		return fmt.Sprintf("ExtentKind(%d)", int(k))
	}
}

// IsConceptual reports whether the extent lives on the conceptual side.
func (k ExtentKind) IsConceptual() bool {
	return k != Table
}

// AssociationEnd is one end of an association set. Its key members are the
// key properties of the referenced entity set's type.
type AssociationEnd struct {
	Name string
	Set  *Extent
	Many bool
}

// ForeignKey relates columns of Child to the primary key columns of Parent.
type ForeignKey struct {
	Name          string
	Child         *Extent
	ChildColumns  []string
	Parent        *Extent
	ParentColumns []string
}

// IsOverPrimaryKeys reports whether the child columns are exactly the
// child's primary key and the parent columns exactly the parent's primary
// key, in order. Such a foreign key makes the child a one-to-one extension
// of the parent.
func (fk *ForeignKey) IsOverPrimaryKeys() bool {
	return slices.Equal(fk.ChildColumns, fk.Child.Key) &&
		slices.Equal(fk.ParentColumns, fk.Parent.Key)
}

// Extent is an entity set, association set or table.
type Extent struct {
	Name string
	Kind ExtentKind

	// Type is the element type of an entity set.
	Type *EntityType

	// Ends of an association set.
	Ends []*AssociationEnd

	// Columns, Key and ForeignKeys describe a table.
	Columns     []*Property
	Key         []string
	ForeignKeys []*ForeignKey
}

func (e *Extent) String() string {
	if e == nil {
		return "<nil>"
	}
	return e.Name
}

// Column finds a table column by name.
func (e *Extent) Column(name string) *Property {
	for _, c := range e.Columns {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// End finds an association end by name.
func (e *Extent) End(name string) *AssociationEnd {
	for _, end := range e.Ends {
		if end.Name == name {
			return end
		}
	}
	return nil
}

// Schema owns every type and extent of one mapping. It is the interning
// point for extents: lookups by name always return the same pointer.
type Schema struct {
	types     map[string]*EntityType
	typeOrder []*EntityType
	extents   map[string]*Extent
	order     []*Extent
}

// NewSchema returns an empty schema.
func NewSchema() *Schema {
	return &Schema{
		types:   make(map[string]*EntityType),
		extents: make(map[string]*Extent),
	}
}

// AddEntityType declares an entity type. base may be nil. Key must be set
// on root types only.
func (s *Schema) AddEntityType(name string, base *EntityType, abstract bool, key []string, props ...*Property) (*EntityType, error) {
	if _, dup := s.types[name]; dup {
		return nil, errors.Newf("entity type %q declared twice", name)
	}
	if base != nil && len(key) > 0 {
		return nil, errors.Newf("entity type %q: key must be declared on the root type", name)
	}
	t := &EntityType{Name: name, Base: base, Abstract: abstract, Key: key, Properties: props}
	for _, p := range props {
		p.DeclaringType = t
	}
	if base != nil {
		base.derived = append(base.derived, t)
	}
	for _, k := range t.KeyNames() {
		p := t.Property(k)
		if p == nil {
			return nil, errors.Newf("entity type %q: key property %q not declared", name, k)
		}
		p.Nullable = false
	}
	s.types[name] = t
	s.typeOrder = append(s.typeOrder, t)
	return t, nil
}

// AddEntitySet declares an entity set of type t.
func (s *Schema) AddEntitySet(name string, t *EntityType) (*Extent, error) {
	if t == nil {
		return nil, errors.Newf("entity set %q has no element type", name)
	}
	return s.addExtent(&Extent{Name: name, Kind: EntitySet, Type: t})
}

// AddAssociationSet declares an association set between entity sets.
func (s *Schema) AddAssociationSet(name string, ends ...*AssociationEnd) (*Extent, error) {
	if len(ends) != 2 {
		return nil, errors.Newf("association set %q must have two ends, got %d", name, len(ends))
	}
	for _, end := range ends {
		if end.Set == nil || end.Set.Kind != EntitySet {
			return nil, errors.Newf("association set %q: end %q does not reference an entity set", name, end.Name)
		}
	}
	return s.addExtent(&Extent{Name: name, Kind: AssociationSet, Ends: ends})
}

// AddTable declares a table. Key columns are forced non-nullable.
func (s *Schema) AddTable(name string, key []string, columns ...*Property) (*Extent, error) {
	t := &Extent{Name: name, Kind: Table, Columns: columns, Key: key}
	for _, k := range key {
		c := t.Column(k)
		if c == nil {
			return nil, errors.Newf("table %q: key column %q not declared", name, k)
		}
		c.Nullable = false
	}
	return s.addExtent(t)
}

// AddForeignKey declares a foreign key from child to parent.
func (s *Schema) AddForeignKey(name string, child *Extent, childCols []string, parent *Extent, parentCols []string) (*ForeignKey, error) {
	if child.Kind != Table || parent.Kind != Table {
		return nil, errors.Newf("foreign key %q must relate two tables", name)
	}
	if len(childCols) != len(parentCols) || len(childCols) == 0 {
		return nil, errors.Newf("foreign key %q: column count mismatch", name)
	}
	for _, c := range childCols {
		if child.Column(c) == nil {
			return nil, errors.Newf("foreign key %q: column %q not in %s", name, c, child.Name)
		}
	}
	for _, c := range parentCols {
		if parent.Column(c) == nil {
			return nil, errors.Newf("foreign key %q: column %q not in %s", name, c, parent.Name)
		}
	}
	fk := &ForeignKey{Name: name, Child: child, ChildColumns: childCols, Parent: parent, ParentColumns: parentCols}
	child.ForeignKeys = append(child.ForeignKeys, fk)
	return fk, nil
}

func (s *Schema) addExtent(e *Extent) (*Extent, error) {
	if _, dup := s.extents[e.Name]; dup {
		return nil, errors.Newf("extent %q declared twice", e.Name)
	}
	s.extents[e.Name] = e
	s.order = append(s.order, e)
	return e, nil
}

// EntityType looks up a type by name.
func (s *Schema) EntityType(name string) *EntityType {
	return s.types[name]
}

// EntityTypes returns all types in declaration order.
func (s *Schema) EntityTypes() []*EntityType {
	return s.typeOrder
}

// Extent looks up an extent by name.
func (s *Schema) Extent(name string) *Extent {
	return s.extents[name]
}

// Extents returns all extents in declaration order.
func (s *Schema) Extents() []*Extent {
	return s.order
}

// ForeignKeysBetween returns the foreign keys from child to parent.
func (s *Schema) ForeignKeysBetween(child, parent *Extent) []*ForeignKey {
	var out []*ForeignKey
	for _, fk := range child.ForeignKeys {
		if fk.Parent == parent {
			out = append(out, fk)
		}
	}
	return out
}
