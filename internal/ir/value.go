package ir

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode/utf16"
)

// Value is a sealed interface for the constants that appear in mapping
// conditions, CASE branches and hashed documents.
// Only Null, String, Int, Bool, Array and Object implement it.
// There is no float variant: conditions compare by identity, and floats
// break canonical hashing.
type Value interface {
	irValue()
}

// Null is the SQL/CQL NULL constant. A member restricted to Null is
// "IS NULL"; a member excluding it is "IS NOT NULL".
type Null struct{}

func (Null) irValue() {}

// String is a string constant.
type String string

func (String) irValue() {}

// Int is an integer constant. Always int64.
type Int int64

func (Int) irValue() {}

// Bool is a boolean constant.
type Bool bool

func (Bool) irValue() {}

// Array is an ordered list of values. Arrays only appear in hashed
// documents, never in conditions.
type Array []Value

func (Array) irValue() {}

// Object maps string keys to values. Use SortedKeys for deterministic
// iteration.
type Object map[string]Value

func (Object) irValue() {}

// Pair is a key/value pair for typed Object construction.
type Pair struct {
	Key   string
	Value Value
}

// O is shorthand for Pair.
func O(key string, value Value) Pair {
	return Pair{Key: key, Value: value}
}

// NewObject builds an Object from pairs.
func NewObject(pairs ...Pair) Object {
	obj := make(Object, len(pairs))
	for _, p := range pairs {
		obj[p.Key] = p.Value
	}
	return obj
}

// Key returns a string that identifies v among scalar values. Two scalars
// are the same constant iff their keys are equal, so keys can be used as
// map keys for value sets.
func Key(v Value) string {
	switch val := v.(type) {
	case nil, Null:
		return "null"
	case String:
		return "s:" + string(val)
	case Int:
		return "i:" + strconv.FormatInt(int64(val), 10)
	case Bool:
		if val {
			return "b:true"
		}
		return "b:false"
	default:
		b, err := MarshalCanonical(v)
		if err != nil {
			return fmt.Sprintf("?:%T", v)
		}
		return "j:" + string(b)
	}
}

// IsNull reports whether v is the NULL constant.
func IsNull(v Value) bool {
	switch v.(type) {
	case nil, Null:
		return true
	}
	return false
}

// Literal renders a scalar as a CQL literal.
func Literal(v Value) string {
	switch val := v.(type) {
	case nil, Null:
		return "NULL"
	case String:
		return "'" + strings.ReplaceAll(string(val), "'", "''") + "'"
	case Int:
		return strconv.FormatInt(int64(val), 10)
	case Bool:
		if val {
			return "True"
		}
		return "False"
	default:
		return fmt.Sprintf("<%T>", v)
	}
}

// Format renders a scalar for diagnostics: strings are unquoted.
func Format(v Value) string {
	if s, ok := v.(String); ok {
		return string(s)
	}
	return Literal(v)
}

// Compare orders scalar values: Null first, then Bool (false < true),
// Int, String. Used to keep value sets in a stable order.
func Compare(a, b Value) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch av := a.(type) {
	case Bool:
		bv := b.(Bool)
		if av == bv {
			return 0
		}
		if !bool(av) {
			return -1
		}
		return 1
	case Int:
		return cmp.Compare(av, b.(Int))
	case String:
		return compareKeysRFC8785(string(av), string(b.(String)))
	}
	return cmp.Compare(Key(a), Key(b))
}

func rank(v Value) int {
	switch v.(type) {
	case nil, Null:
		return 0
	case Bool:
		return 1
	case Int:
		return 2
	case String:
		return 3
	default:
		return 4
	}
}

// SortValues sorts scalars in place using Compare.
func SortValues(vs []Value) {
	slices.SortFunc(vs, Compare)
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// Go's string comparison orders by UTF-8 bytes, which differs for
// characters outside the BMP.
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			return cmp.Compare(a16[i], b16[i])
		}
	}
	return cmp.Compare(len(a16), len(b16))
}
