package cell

import (
	"slices"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/roach88/viewgen/internal/boolexpr"
	"github.com/roach88/viewgen/internal/ir"
	"github.com/roach88/viewgen/internal/metadata"
)

// TypeMemberName is the path element naming the entity type discriminator
// of an entity set.
const TypeMemberName = "$type"

// MemberPath names a member of an extent: a property of an entity set, an
// end key of an association set, a column of a table, or the type
// discriminator of an entity set (empty Path).
type MemberPath struct {
	Extent *metadata.Extent
	Path   []string

	// Prop is the leaf property; nil for the type discriminator.
	Prop *metadata.Property
}

// NewMemberPath resolves path against e.
func NewMemberPath(e *metadata.Extent, path ...string) (*MemberPath, error) {
	m := &MemberPath{Extent: e, Path: path}
	switch e.Kind {
	case metadata.EntitySet:
		if len(path) != 1 {
			return nil, errors.Newf("%s: entity set members have one path element, got %q", e.Name, strings.Join(path, "."))
		}
		m.Prop = findProperty(e.Type, path[0])
	case metadata.AssociationSet:
		if len(path) != 2 {
			return nil, errors.Newf("%s: association set members are End.Key, got %q", e.Name, strings.Join(path, "."))
		}
		end := e.End(path[0])
		if end == nil {
			return nil, errors.Newf("%s: no end %q", e.Name, path[0])
		}
		if !slices.Contains(end.Set.Type.KeyNames(), path[1]) {
			return nil, errors.Newf("%s: %q is not a key of end %q", e.Name, path[1], end.Name)
		}
		m.Prop = end.Set.Type.Property(path[1])
	case metadata.Table:
		if len(path) != 1 {
			return nil, errors.Newf("%s: columns have one path element, got %q", e.Name, strings.Join(path, "."))
		}
		m.Prop = e.Column(path[0])
	}
	if m.Prop == nil {
		return nil, errors.Newf("%s has no member %q", e.Name, strings.Join(path, "."))
	}
	return m, nil
}

// MustMemberPath is NewMemberPath that panics on error. Use only with
// static fixtures.
func MustMemberPath(e *metadata.Extent, path ...string) *MemberPath {
	m, err := NewMemberPath(e, path...)
	if err != nil {
		panic(err)
	}
	return m
}

// TypeMember returns the type discriminator of an entity set.
func TypeMember(e *metadata.Extent) *MemberPath {
	return &MemberPath{Extent: e}
}

// findProperty looks for name among the properties visible anywhere in
// t's hierarchy.
func findProperty(t *metadata.EntityType, name string) *metadata.Property {
	if p := t.Property(name); p != nil {
		return p
	}
	for _, d := range t.Descendants() {
		for _, p := range d.Properties {
			if p.Name == name {
				return p
			}
		}
	}
	return nil
}

// IsType reports whether m is the type discriminator.
func (m *MemberPath) IsType() bool {
	return len(m.Path) == 0
}

// String is the fully qualified name, e.g. "People.Name".
func (m *MemberPath) String() string {
	if m.IsType() {
		return m.Extent.Name + "." + TypeMemberName
	}
	return m.Extent.Name + "." + strings.Join(m.Path, ".")
}

// Name is the member name relative to its extent, e.g. "Name" or
// "Customer.Id".
func (m *MemberPath) Name() string {
	if m.IsType() {
		return TypeMemberName
	}
	return strings.Join(m.Path, ".")
}

// Alias is a CQL-safe column alias.
func (m *MemberPath) Alias() string {
	if m.IsType() {
		return m.Extent.Name + "_type"
	}
	return m.Extent.Name + "_" + strings.Join(m.Path, "_")
}

// Equal reports whether m and o name the same member of the same extent.
func (m *MemberPath) Equal(o *MemberPath) bool {
	if m == nil || o == nil {
		return m == o
	}
	return m.Extent == o.Extent && slices.Equal(m.Path, o.Path)
}

// DeclaringType returns the entity type declaring the member, or nil.
func (m *MemberPath) DeclaringType() *metadata.EntityType {
	if m.Prop == nil || m.Extent.Kind != metadata.EntitySet {
		return nil
	}
	return m.Prop.DeclaringType
}

// Nullable reports whether the member can be NULL in some row of the
// extent. Properties declared below the set's element type are NULL for
// rows of other types.
func (m *MemberPath) Nullable() bool {
	switch {
	case m.IsType():
		return false
	case m.Extent.Kind == metadata.AssociationSet:
		return false
	case m.Extent.Kind == metadata.EntitySet && m.Prop.DeclaringType != nil &&
		!m.Extent.Type.IsSubtypeOf(m.Prop.DeclaringType):
		return true
	}
	return m.Prop.Nullable
}

// IsKey reports whether m is a key member of its extent.
func (m *MemberPath) IsKey() bool {
	switch m.Extent.Kind {
	case metadata.EntitySet:
		return !m.IsType() && slices.Contains(m.Extent.Type.KeyNames(), m.Path[0])
	case metadata.AssociationSet:
		return true
	case metadata.Table:
		return slices.Contains(m.Extent.Key, m.Path[0])
	}
	return false
}

// ScalarType returns the member's scalar type. The discriminator is a
// string.
func (m *MemberPath) ScalarType() metadata.ScalarType {
	if m.IsType() {
		return metadata.TypeString
	}
	return m.Prop.Type
}

// Var returns the boolean-reasoning variable for m.
func (m *MemberPath) Var() *boolexpr.Var {
	v := &boolexpr.Var{Name: m.String(), Nullable: m.Nullable()}
	if m.IsType() {
		for _, t := range m.Extent.Type.ConcreteTypes() {
			v.Domain = append(v.Domain, ir.String(t.Name))
		}
		return v
	}
	v.Domain = m.Prop.Type.Domain()
	return v
}

// TypeCondition builds "type IN names(types)" for an entity set.
func TypeCondition(e *metadata.Extent, types []*metadata.EntityType) boolexpr.Expr {
	vals := make([]ir.Value, len(types))
	for i, t := range types {
		vals[i] = ir.String(t.Name)
	}
	return boolexpr.In(TypeMember(e).Var(), vals...)
}

// KeyMembers returns the key members of an extent in key order.
func KeyMembers(e *metadata.Extent) []*MemberPath {
	var out []*MemberPath
	switch e.Kind {
	case metadata.EntitySet:
		for _, k := range e.Type.KeyNames() {
			out = append(out, MustMemberPath(e, k))
		}
	case metadata.AssociationSet:
		for _, end := range e.Ends {
			for _, k := range end.Set.Type.KeyNames() {
				out = append(out, MustMemberPath(e, end.Name, k))
			}
		}
	case metadata.Table:
		for _, k := range e.Key {
			out = append(out, MustMemberPath(e, k))
		}
	}
	return out
}

// AllMembers returns every member of e: keys first, then the remaining
// members in declaration order, then the discriminator for entity sets
// whose type has a hierarchy.
func AllMembers(e *metadata.Extent) []*MemberPath {
	out := KeyMembers(e)
	has := func(name string) bool {
		for _, m := range out {
			if len(m.Path) == 1 && m.Path[0] == name {
				return true
			}
		}
		return false
	}
	switch e.Kind {
	case metadata.EntitySet:
		for _, t := range e.Type.Root().Descendants() {
			if !t.IsSubtypeOf(e.Type) && !e.Type.IsSubtypeOf(t) {
				continue
			}
			for _, p := range t.Properties {
				if !has(p.Name) {
					out = append(out, MustMemberPath(e, p.Name))
				}
			}
		}
		if e.Type.HasHierarchy() {
			out = append(out, TypeMember(e))
		}
	case metadata.Table:
		for _, c := range e.Columns {
			if !has(c.Name) {
				out = append(out, MustMemberPath(e, c.Name))
			}
		}
	}
	return out
}
