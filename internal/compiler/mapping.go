package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/viewgen/internal/ir"
	"github.com/roach88/viewgen/internal/metadata"
)

// CompileMapping parses a CUE mapping document into a Mapping.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The document declares entity types, the three kinds of extents and the
// fragments between them:
//
//	mapping: "people"
//	types: Person: {
//		key: ["Id"]
//		properties: {Id: int, Name: string | null}
//	}
//	entity_sets: People: type: "Person"
//	tables: PersonTable: {
//		key: ["Id"]
//		columns: {Id: int, Name: string | null}
//	}
//	fragments: [{
//		set: "People", table: "PersonTable"
//		properties: {Id: "Id", Name: "Name"}
//	}]
//
// Extents are declared in document order: entity sets, then association
// sets, then tables. Foreign keys are resolved after every table exists.
func CompileMapping(v cue.Value) (*metadata.Mapping, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	m := &metadata.Mapping{Schema: metadata.NewSchema()}

	nameVal := v.LookupPath(cue.ParsePath("mapping"))
	if !nameVal.Exists() {
		return nil, &CompileError{
			Field:   "mapping",
			Message: "mapping name is required",
			Pos:     v.Pos(),
		}
	}
	name, err := nameVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	m.Name = name

	if err := parseTypes(v, m.Schema); err != nil {
		return nil, err
	}
	if err := parseEntitySets(v, m.Schema); err != nil {
		return nil, err
	}
	if err := parseAssociationSets(v, m.Schema); err != nil {
		return nil, err
	}
	if err := parseTables(v, m.Schema); err != nil {
		return nil, err
	}
	m.Fragments, err = parseFragments(v, m.Schema)
	if err != nil {
		return nil, err
	}
	if len(m.Fragments) == 0 {
		return nil, &CompileError{
			Field:   "fragments",
			Message: "at least one fragment is required",
			Pos:     v.Pos(),
		}
	}
	return m, nil
}

// parseTypes declares entity types. A derived type may be declared before
// its base; declaration is retried until every base exists.
func parseTypes(v cue.Value, s *metadata.Schema) error {
	typesVal := v.LookupPath(cue.ParsePath("types"))
	if !typesVal.Exists() {
		return &CompileError{Field: "types", Message: "at least one entity type is required", Pos: v.Pos()}
	}
	iter, err := typesVal.Fields()
	if err != nil {
		return formatCUEError(err)
	}

	type pending struct {
		name string
		val  cue.Value
		base string
	}
	var todo []pending
	for iter.Next() {
		p := pending{name: iter.Label(), val: iter.Value()}
		if b := p.val.LookupPath(cue.ParsePath("base")); b.Exists() {
			if p.base, err = b.String(); err != nil {
				return formatCUEError(err)
			}
		}
		todo = append(todo, p)
	}

	for len(todo) > 0 {
		var next []pending
		for _, p := range todo {
			var base *metadata.EntityType
			if p.base != "" {
				if base = s.EntityType(p.base); base == nil {
					next = append(next, p)
					continue
				}
			}
			if err := declareType(s, p.name, base, p.val); err != nil {
				return err
			}
		}
		if len(next) == len(todo) {
			p := next[0]
			return &CompileError{
				Field:   "types." + p.name + ".base",
				Message: fmt.Sprintf("unknown or cyclic base type %q", p.base),
				Pos:     p.val.Pos(),
			}
		}
		todo = next
	}
	return nil
}

func declareType(s *metadata.Schema, name string, base *metadata.EntityType, v cue.Value) error {
	field := "types." + name
	key, err := stringList(v, "key")
	if err != nil {
		return err
	}
	abstract := false
	if a := v.LookupPath(cue.ParsePath("abstract")); a.Exists() {
		if abstract, err = a.Bool(); err != nil {
			return formatCUEError(err)
		}
	}
	props, err := parseProperties(v, "properties", field)
	if err != nil {
		return err
	}
	if _, err := s.AddEntityType(name, base, abstract, key, props...); err != nil {
		return &CompileError{Field: field, Message: err.Error(), Pos: v.Pos()}
	}
	return nil
}

// parseProperties reads a struct of name: type pairs.
func parseProperties(v cue.Value, path, field string) ([]*metadata.Property, error) {
	val := v.LookupPath(cue.ParsePath(path))
	if !val.Exists() {
		return nil, nil
	}
	iter, err := val.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var props []*metadata.Property
	for iter.Next() {
		typ, nullable, err := extractScalarType(iter.Value())
		if err != nil {
			var ce *CompileError
			if as(err, &ce) {
				ce.Field = field + "." + path + "." + iter.Label()
			}
			return nil, err
		}
		props = append(props, &metadata.Property{Name: iter.Label(), Type: typ, Nullable: nullable})
	}
	return props, nil
}

func parseEntitySets(v cue.Value, s *metadata.Schema) error {
	return eachField(v, "entity_sets", func(name string, val cue.Value) error {
		field := "entity_sets." + name
		typeName, err := stringField(val, "type", field)
		if err != nil {
			return err
		}
		t := s.EntityType(typeName)
		if t == nil {
			return &CompileError{Field: field + ".type", Message: fmt.Sprintf("unknown entity type %q", typeName), Pos: val.Pos()}
		}
		if _, err := s.AddEntitySet(name, t); err != nil {
			return &CompileError{Field: field, Message: err.Error(), Pos: val.Pos()}
		}
		return nil
	})
}

func parseAssociationSets(v cue.Value, s *metadata.Schema) error {
	return eachField(v, "association_sets", func(name string, val cue.Value) error {
		field := "association_sets." + name
		endsIter, err := val.LookupPath(cue.ParsePath("ends")).List()
		if err != nil {
			return formatCUEError(err)
		}
		var ends []*metadata.AssociationEnd
		for endsIter.Next() {
			ev := endsIter.Value()
			endName, err := stringField(ev, "name", field+".ends")
			if err != nil {
				return err
			}
			setName, err := stringField(ev, "set", field+".ends."+endName)
			if err != nil {
				return err
			}
			set := s.Extent(setName)
			if set == nil {
				return &CompileError{Field: field + ".ends." + endName, Message: fmt.Sprintf("unknown entity set %q", setName), Pos: ev.Pos()}
			}
			end := &metadata.AssociationEnd{Name: endName, Set: set}
			if mv := ev.LookupPath(cue.ParsePath("many")); mv.Exists() {
				if end.Many, err = mv.Bool(); err != nil {
					return formatCUEError(err)
				}
			}
			ends = append(ends, end)
		}
		if _, err := s.AddAssociationSet(name, ends...); err != nil {
			return &CompileError{Field: field, Message: err.Error(), Pos: val.Pos()}
		}
		return nil
	})
}

func parseTables(v cue.Value, s *metadata.Schema) error {
	type fkDecl struct {
		table string
		name  string
		val   cue.Value
	}
	var fks []fkDecl
	err := eachField(v, "tables", func(name string, val cue.Value) error {
		field := "tables." + name
		key, err := stringList(val, "key")
		if err != nil {
			return err
		}
		cols, err := parseProperties(val, "columns", field)
		if err != nil {
			return err
		}
		if _, err := s.AddTable(name, key, cols...); err != nil {
			return &CompileError{Field: field, Message: err.Error(), Pos: val.Pos()}
		}
		return eachField(val, "foreign_keys", func(fk string, fv cue.Value) error {
			fks = append(fks, fkDecl{table: name, name: fk, val: fv})
			return nil
		})
	})
	if err != nil {
		return err
	}

	for _, fk := range fks {
		field := "tables." + fk.table + ".foreign_keys." + fk.name
		cols, err := stringList(fk.val, "columns")
		if err != nil {
			return err
		}
		parentName, err := stringField(fk.val, "references", field)
		if err != nil {
			return err
		}
		parent := s.Extent(parentName)
		if parent == nil || parent.Kind != metadata.Table {
			return &CompileError{Field: field + ".references", Message: fmt.Sprintf("unknown table %q", parentName), Pos: fk.val.Pos()}
		}
		parentCols, err := stringList(fk.val, "parent_columns")
		if err != nil {
			return err
		}
		if len(parentCols) == 0 {
			parentCols = parent.Key
		}
		if _, err := s.AddForeignKey(fk.name, s.Extent(fk.table), cols, parent, parentCols); err != nil {
			return &CompileError{Field: field, Message: err.Error(), Pos: fk.val.Pos()}
		}
	}
	return nil
}

// parseFragments reads the fragment list. A fragment's Source is its name
// when given, else its index.
func parseFragments(v cue.Value, s *metadata.Schema) ([]*metadata.Fragment, error) {
	fragsVal := v.LookupPath(cue.ParsePath("fragments"))
	if !fragsVal.Exists() {
		return nil, nil
	}
	iter, err := fragsVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var frags []*metadata.Fragment
	for i := 0; iter.Next(); i++ {
		fv := iter.Value()
		field := fmt.Sprintf("fragments[%d]", i)
		f := &metadata.Fragment{Source: field}
		if nv := fv.LookupPath(cue.ParsePath("name")); nv.Exists() {
			if f.Source, err = nv.String(); err != nil {
				return nil, formatCUEError(err)
			}
		}

		setName, err := stringField(fv, "set", field)
		if err != nil {
			return nil, err
		}
		if f.Set = s.Extent(setName); f.Set == nil || !f.Set.Kind.IsConceptual() {
			return nil, &CompileError{Field: field + ".set", Message: fmt.Sprintf("unknown entity or association set %q", setName), Pos: fv.Pos()}
		}
		tableName, err := stringField(fv, "table", field)
		if err != nil {
			return nil, err
		}
		if f.Table = s.Extent(tableName); f.Table == nil || f.Table.Kind != metadata.Table {
			return nil, &CompileError{Field: field + ".table", Message: fmt.Sprintf("unknown table %q", tableName), Pos: fv.Pos()}
		}

		if f.Types, err = parseTypeRefs(fv, s, field); err != nil {
			return nil, err
		}
		if err := eachField(fv, "properties", func(member string, cv cue.Value) error {
			col, err := cv.String()
			if err != nil {
				return formatCUEError(err)
			}
			f.Properties = append(f.Properties, metadata.PropertyMap{Member: member, Column: col})
			return nil
		}); err != nil {
			return nil, err
		}
		if f.Conditions, err = parseConditions(fv, field); err != nil {
			return nil, err
		}
		if dv := fv.LookupPath(cue.ParsePath("distinct")); dv.Exists() {
			if f.Distinct, err = dv.Bool(); err != nil {
				return nil, formatCUEError(err)
			}
		}
		frags = append(frags, f)
	}
	return frags, nil
}

// parseTypeRefs reads "types" (exactly the named types) and "is_of" (the
// named types and their descendants).
func parseTypeRefs(fv cue.Value, s *metadata.Schema, field string) ([]metadata.TypeRef, error) {
	var refs []metadata.TypeRef
	for _, path := range []string{"types", "is_of"} {
		names, err := stringList(fv, path)
		if err != nil {
			return nil, err
		}
		for _, n := range names {
			t := s.EntityType(n)
			if t == nil {
				return nil, &CompileError{Field: field + "." + path, Message: fmt.Sprintf("unknown entity type %q", n), Pos: fv.Pos()}
			}
			refs = append(refs, metadata.TypeRef{Type: t, IsOf: path == "is_of"})
		}
	}
	return refs, nil
}

// parseConditions reads conditions of the form
//
//	{side: "S", member: "Disc", equals: "P"}
//	{side: "S", member: "CustomerId", is_null: false}
//
// "equals: null" is the same as "is_null: true".
func parseConditions(fv cue.Value, field string) ([]metadata.Condition, error) {
	val := fv.LookupPath(cue.ParsePath("conditions"))
	if !val.Exists() {
		return nil, nil
	}
	iter, err := val.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var conds []metadata.Condition
	for i := 0; iter.Next(); i++ {
		cv := iter.Value()
		cf := fmt.Sprintf("%s.conditions[%d]", field, i)
		side, err := stringField(cv, "side", cf)
		if err != nil {
			return nil, err
		}
		c := metadata.Condition{}
		switch strings.ToUpper(side) {
		case "C":
			c.Side = metadata.CSide
		case "S":
			c.Side = metadata.SSide
		default:
			return nil, &CompileError{Field: cf + ".side", Message: fmt.Sprintf("side must be \"C\" or \"S\", got %q", side), Pos: cv.Pos()}
		}
		if c.Member, err = stringField(cv, "member", cf); err != nil {
			return nil, err
		}

		eq := cv.LookupPath(cue.ParsePath("equals"))
		isNull := cv.LookupPath(cue.ParsePath("is_null"))
		switch {
		case eq.Exists() && isNull.Exists():
			return nil, &CompileError{Field: cf, Message: "equals and is_null are exclusive", Pos: cv.Pos()}
		case eq.Exists():
			value, err := extractValue(eq)
			if err != nil {
				return nil, err
			}
			if ir.IsNull(value) {
				c.Op = metadata.IsNull
			} else {
				c.Op, c.Value = metadata.Equals, value
			}
		case isNull.Exists():
			null, err := isNull.Bool()
			if err != nil {
				return nil, formatCUEError(err)
			}
			c.Op = metadata.IsNotNull
			if null {
				c.Op = metadata.IsNull
			}
		default:
			return nil, &CompileError{Field: cf, Message: "condition needs equals or is_null", Pos: cv.Pos()}
		}
		conds = append(conds, c)
	}
	return conds, nil
}

// extractScalarType converts a CUE type to a scalar type. "string | null"
// is a nullable string; a concrete string names the type, with a trailing
// "?" for nullable ("guid?").
// Floats are forbidden: conditions compare constants by identity.
func extractScalarType(v cue.Value) (metadata.ScalarType, bool, error) {
	if v.IsConcrete() && v.Kind() == cue.StringKind {
		s, err := v.String()
		if err != nil {
			return "", false, formatCUEError(err)
		}
		nullable := strings.HasSuffix(s, "?")
		t := metadata.ScalarType(strings.TrimSuffix(s, "?"))
		if !t.Valid() {
			return "", false, &CompileError{Field: "type", Message: fmt.Sprintf("unknown type name %q", s), Pos: v.Pos()}
		}
		return t, nullable, nil
	}

	kind := v.IncompleteKind()
	nullable := kind&cue.NullKind != 0
	switch kind &^ cue.NullKind {
	case cue.StringKind:
		return metadata.TypeString, nullable, nil
	case cue.IntKind:
		return metadata.TypeInt, nullable, nil
	case cue.BoolKind:
		return metadata.TypeBool, nullable, nil
	case cue.FloatKind, cue.NumberKind:
		return "", false, &CompileError{
			Field:   "type",
			Message: "float types are forbidden - use int instead",
			Pos:     v.Pos(),
		}
	default:
		return "", false, &CompileError{
			Field:   "type",
			Message: fmt.Sprintf("unsupported type kind: %v", kind),
			Pos:     v.Pos(),
		}
	}
}

// extractValue converts a concrete CUE scalar to a constant.
func extractValue(v cue.Value) (ir.Value, error) {
	switch v.Kind() {
	case cue.NullKind:
		return ir.Null{}, nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.String(s), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Int(n), nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Bool(b), nil
	}
	return nil, &CompileError{
		Field:   "value",
		Message: fmt.Sprintf("condition value must be a string, int, bool or null, got %v", v.Kind()),
		Pos:     v.Pos(),
	}
}

// eachField calls fn for every field of the struct at path, in document
// order. A missing struct is empty.
func eachField(v cue.Value, path string, fn func(string, cue.Value) error) error {
	val := v.LookupPath(cue.ParsePath(path))
	if !val.Exists() {
		return nil
	}
	iter, err := val.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		if err := fn(iter.Label(), iter.Value()); err != nil {
			return err
		}
	}
	return nil
}

func stringField(v cue.Value, path, field string) (string, error) {
	val := v.LookupPath(cue.ParsePath(path))
	if !val.Exists() {
		return "", &CompileError{Field: field + "." + path, Message: path + " is required", Pos: v.Pos()}
	}
	s, err := val.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

// stringList reads an optional list of strings.
func stringList(v cue.Value, path string) ([]string, error) {
	val := v.LookupPath(cue.ParsePath(path))
	if !val.Exists() {
		return nil, nil
	}
	iter, err := val.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func as(err error, target **CompileError) bool {
	ce, ok := err.(*CompileError)
	if ok {
		*target = ce
	}
	return ok
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
