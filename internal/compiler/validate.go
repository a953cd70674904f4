package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/viewgen/internal/ir"
	"github.com/roach88/viewgen/internal/metadata"
)

// Validation error codes (E100-E199)
const (
	// Mapping errors (E101-E109)
	ErrMappingNameEmpty  = "E101" // mapping name is required
	ErrMappingNoFragment = "E102" // at least one fragment required
	ErrTypeNoKey         = "E103" // root entity type without key
	ErrInvalidFieldType  = "E104" // invalid scalar type
	ErrDuplicateName     = "E105" // duplicate property/column name
	ErrTableNoKey        = "E106" // table without key
	ErrAbstractLeaf      = "E107" // abstract type without concrete descendant

	// Fragment errors (E110-E119)
	ErrUnknownMember       = "E110" // property map names no member
	ErrUnknownColumn       = "E111" // property map or condition names no column
	ErrTypeMismatch        = "E112" // member and column types differ
	ErrColumnMappedTwice   = "E113" // two members mapped to one column
	ErrTypeOutsideSet      = "E114" // fragment type not under the set's type
	ErrConditionValue      = "E115" // condition value does not fit the member type
	ErrNotNullCondition    = "E116" // IS NULL on a non-nullable member
	ErrForeignKeyTypeClash = "E117" // foreign key column types differ
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled mapping against static schema rules.
// Returns all errors found (does not fail-fast).
//
// These are the checks that need no cells: names resolve, types line up,
// keys exist. The cell group validator covers what follows from the
// fragments taken together.
func Validate(m *metadata.Mapping) []ValidationError {
	var errs []ValidationError
	add := func(code, field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Code: code})
	}

	// E101: name is required
	if strings.TrimSpace(m.Name) == "" {
		add(ErrMappingNameEmpty, "mapping", "mapping name is required and must be non-empty")
	}
	// E102: at least one fragment
	if len(m.Fragments) == 0 {
		add(ErrMappingNoFragment, "fragments", "at least one fragment is required")
	}

	for _, t := range m.Schema.EntityTypes() {
		field := "types." + t.Name
		// E103: keys live on root types
		if t.Base == nil && len(t.Key) == 0 {
			add(ErrTypeNoKey, field+".key", "root entity type %q declares no key", t.Name)
		}
		seen := map[string]bool{}
		for _, p := range t.AllProperties() {
			// E105: a property may not shadow an inherited one
			if seen[p.Name] {
				add(ErrDuplicateName, field+".properties."+p.Name, "property %q declared twice in the hierarchy of %q", p.Name, t.Name)
			}
			seen[p.Name] = true
		}
		for _, p := range t.Properties {
			// E104: check for valid type
			if !p.Type.Valid() {
				add(ErrInvalidFieldType, field+".properties."+p.Name, "invalid type %q for property %q", p.Type, p.Name)
			}
		}
		// E107: an abstract leaf can hold no instance
		if t.Abstract && len(t.ConcreteTypes()) == 0 {
			add(ErrAbstractLeaf, field, "abstract type %q has no concrete descendant", t.Name)
		}
	}

	for _, e := range m.Schema.Extents() {
		if e.Kind != metadata.Table {
			continue
		}
		field := "tables." + e.Name
		// E106: every table needs a key
		if len(e.Key) == 0 {
			add(ErrTableNoKey, field+".key", "table %q declares no key", e.Name)
		}
		for _, c := range e.Columns {
			if !c.Type.Valid() {
				add(ErrInvalidFieldType, field+".columns."+c.Name, "invalid type %q for column %q", c.Type, c.Name)
			}
		}
		for _, fk := range e.ForeignKeys {
			for i, c := range fk.ChildColumns {
				child, parent := e.Column(c), fk.Parent.Column(fk.ParentColumns[i])
				// E117: foreign key columns must agree
				if child != nil && parent != nil && child.Type != parent.Type {
					add(ErrForeignKeyTypeClash, field+".foreign_keys."+fk.Name,
						"column %s.%s is %s but %s.%s is %s", e.Name, c, child.Type, fk.Parent.Name, parent.Name, parent.Type)
				}
			}
		}
	}

	for i, f := range m.Fragments {
		errs = append(errs, validateFragment(i, f)...)
	}
	return errs
}

func validateFragment(i int, f *metadata.Fragment) []ValidationError {
	var errs []ValidationError
	field := fmt.Sprintf("fragments[%d]", i)
	add := func(code, sub, format string, args ...any) {
		errs = append(errs, ValidationError{
			Field:   field + sub,
			Message: f.Source + ": " + fmt.Sprintf(format, args...),
			Code:    code,
		})
	}

	// E114: a fragment type must belong to its set
	if f.Set.Kind == metadata.EntitySet {
		for _, r := range f.Types {
			if !r.Type.IsSubtypeOf(f.Set.Type) {
				add(ErrTypeOutsideSet, ".types", "type %q is not a %s", r.Type.Name, f.Set.Type.Name)
			}
		}
	}

	columns := map[string]string{}
	for _, p := range f.Properties {
		sub := ".properties." + p.Member
		member := lookupMember(f, p.Member)
		col := f.Table.Column(p.Column)
		// E110: member must exist
		if member == nil {
			add(ErrUnknownMember, sub, "%s has no member %q", f.Set.Name, p.Member)
		}
		// E111: column must exist
		if col == nil {
			add(ErrUnknownColumn, sub, "table %s has no column %q", f.Table.Name, p.Column)
		}
		// E112: types must agree
		if member != nil && col != nil && member.Type != col.Type {
			add(ErrTypeMismatch, sub, "member %s is %s but column %s is %s", p.Member, member.Type, p.Column, col.Type)
		}
		// E113: one member per column
		if prev, dup := columns[p.Column]; dup {
			add(ErrColumnMappedTwice, sub, "column %s is mapped from both %s and %s", p.Column, prev, p.Member)
		}
		columns[p.Column] = p.Member
	}

	for j, c := range f.Conditions {
		sub := fmt.Sprintf(".conditions[%d]", j)
		var prop *metadata.Property
		if c.Side == metadata.CSide {
			if prop = lookupMember(f, c.Member); prop == nil {
				add(ErrUnknownMember, sub, "%s has no member %q", f.Set.Name, c.Member)
				continue
			}
		} else if prop = f.Table.Column(c.Member); prop == nil {
			add(ErrUnknownColumn, sub, "table %s has no column %q", f.Table.Name, c.Member)
			continue
		}
		switch c.Op {
		case metadata.Equals:
			// E115: the constant must fit the member
			if !valueFits(c.Value, prop.Type) {
				add(ErrConditionValue, sub, "%s cannot equal %s", prop.Type, ir.Literal(c.Value))
			}
		case metadata.IsNull:
			// E116: NULL is impossible for a required member
			if !prop.Nullable {
				add(ErrNotNullCondition, sub, "%s is not nullable", c.Member)
			}
		}
	}
	return errs
}

// lookupMember resolves a member of the fragment's set: a property of the
// set's type hierarchy, or "End.Key" for association sets.
func lookupMember(f *metadata.Fragment, name string) *metadata.Property {
	switch f.Set.Kind {
	case metadata.EntitySet:
		for _, t := range f.Set.Type.Root().Descendants() {
			if p := t.Property(name); p != nil {
				return p
			}
		}
	case metadata.AssociationSet:
		endName, key, ok := strings.Cut(name, ".")
		if !ok {
			return nil
		}
		if end := f.Set.End(endName); end != nil {
			return end.Set.Type.Property(key)
		}
	}
	return nil
}

func valueFits(v ir.Value, t metadata.ScalarType) bool {
	switch v.(type) {
	case ir.String:
		return t == metadata.TypeString || t == metadata.TypeGuid
	case ir.Int:
		return t == metadata.TypeInt
	case ir.Bool:
		return t == metadata.TypeBool
	}
	return false
}
